package main

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"botrelay/internal/config"
	"botrelay/internal/platform"
	"botrelay/internal/server"
	"botrelay/internal/worker"
)

func newWorkerCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the bot worker that the control plane connects to",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()
			return runWorker(ctx, cfg)
		},
	}
}

func runWorker(ctx context.Context, cfg config.Config) error {
	gin.SetMode(cfg.GinMode)

	srv := worker.NewServer(platform.NewDiscord())
	defer srv.Shutdown()

	httpSrv := server.NewHTTPServer(cfg.WorkerPort, srv.Router())
	log.Info().Int("port", cfg.WorkerPort).Msg("starting worker")

	eg, groupCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return server.Run(groupCtx, httpSrv, server.TLSFiles{})
	})
	return eg.Wait()
}

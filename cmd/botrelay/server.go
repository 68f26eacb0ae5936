package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"botrelay/internal/auth"
	"botrelay/internal/config"
	"botrelay/internal/controlplane"
	"botrelay/internal/hub"
	"botrelay/internal/middleware"
	"botrelay/internal/registry"
	"botrelay/internal/relay"
	"botrelay/internal/server"
	"botrelay/internal/store"
	"botrelay/internal/sweeper"
)

func newServerCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Run the control plane: HTTP API, dashboard websocket, relay link and expiry sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if err := cfg.RequireSecret(); err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()
			return runServer(ctx, cfg)
		},
	}
}

func runServer(ctx context.Context, cfg config.Config) error {
	gin.SetMode(cfg.GinMode)

	st, err := store.Open(store.Options{
		Driver:        cfg.Store.Driver,
		StateFile:     cfg.Store.StateFile,
		SQLitePath:    cfg.Store.SQLitePath,
		RedisAddr:     cfg.Store.RedisAddr,
		RedisPassword: cfg.Store.RedisPassword,
		RedisDB:       cfg.Store.RedisDB,
	})
	if err != nil {
		return errors.Wrap(err, "open store")
	}
	defer st.Close()

	reg := registry.New(registry.Options{Store: st, QuotaLimit: cfg.TrialQuota})
	viewers := hub.New()

	var svc *controlplane.Service
	channel := relay.NewChannel(relay.Config{
		URL:            cfg.WorkerURL,
		ReconnectDelay: cfg.ReconnectDelay,
		OnConnected:    func(ctx context.Context) { svc.Resync(ctx) },
	})
	svc = controlplane.New(controlplane.Options{Registry: reg, Link: channel, Viewers: viewers})
	channel.OnFrame(svc.HandleEvent)

	trialLimiter := middleware.NewRateLimiter(cfg.TrialRateLimit, time.Minute)
	router := server.NewRouter(server.Deps{
		Service: svc,
		Hub:     viewers,
		Link:    channel,
		TokenConfig: auth.TokenConfig{
			Secret: cfg.MasterSecret,
			Expiry: cfg.TokenExpiry,
			Issuer: "botrelay",
		},
		TrialLimiter: trialLimiter,
	})
	httpSrv := server.NewHTTPServer(cfg.Port, router)
	sw := sweeper.New(reg, channel, sweeper.Options{Interval: cfg.SweepInterval})

	log.Info().
		Str("store", cfg.Store.Driver).
		Str("worker_url", cfg.WorkerURL).
		Int("port", cfg.Port).
		Msg("starting control plane")

	eg, groupCtx := errgroup.WithContext(ctx)
	eg.Go(func() error { return channel.Run(groupCtx) })
	eg.Go(func() error { return sw.Run(groupCtx) })
	eg.Go(func() error {
		trialLimiter.Run(groupCtx)
		return nil
	})
	eg.Go(func() error {
		return server.Run(groupCtx, httpSrv, server.TLSFiles{CertFile: cfg.TLSCertFile, KeyFile: cfg.TLSKeyFile})
	})
	return eg.Wait()
}

package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"botrelay/internal/config"
)

type rootOptions struct {
	configFile string
	envFile    string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "botrelay",
		Short:         "Bot session relay: control plane, worker and tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "YAML config file (overrides CONFIG_FILE)")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file to load if present")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	flags.StringVar(&opts.logFormat, "log-format", "", "json or console (overrides LOG_FORMAT)")

	cmd.AddCommand(newServerCmd(opts), newWorkerCmd(opts), newTokenCmd(opts))
	return cmd
}

// load reads the dotenv file, the config file and the environment, then
// configures the global logger.
func (o *rootOptions) load() (config.Config, error) {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil && !os.IsNotExist(err) {
			return config.Config{}, errors.Wrapf(err, "load %s", o.envFile)
		}
	}

	cfg, err := config.LoadConfig(o.configFile)
	if err != nil {
		return config.Config{}, err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.logFormat != "" {
		cfg.LogFormat = o.logFormat
	}
	if err := setupLogging(cfg.LogLevel, cfg.LogFormat, os.Stderr); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func setupLogging(level, format string, out io.Writer) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "invalid log level %q", level)
	}
	zerolog.SetGlobalLevel(lvl)
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: out}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

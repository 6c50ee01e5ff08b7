package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirehub-server/internal/app"
	"github.com/vovakirdan/wirehub-server/internal/config"
	"github.com/vovakirdan/wirehub-server/internal/log"
)

func main() {
	var (
		configPath string
		overrides  config.Config
	)

	root := &cobra.Command{
		Use:           "wirehub-server",
		Short:         "WebSocket pub/sub hub server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			bootLogger := log.New("info", false)

			cfg, path, err := config.Load(bootLogger, configPath)
			if err != nil {
				return err
			}
			cfg.UpdateFrom(overrides)

			logger := log.New(cfg.LogLevel, cfg.Debug)
			logger.Info().Str("config", path).Str("addr", cfg.Addr).Msg("starting wirehub server")

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application := app.New(cfg, logger)
			if err := application.Run(ctx); err != nil {
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	flags := root.Flags()
	flags.StringVar(&configPath, "config", "", "path to config file")
	flags.StringVar(&overrides.Addr, "addr", "", "HTTP listen address")
	flags.DurationVar(&overrides.ReadHeaderTimeout, "read-header-timeout", 0, "HTTP read header timeout")
	flags.DurationVar(&overrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")
	flags.StringVar(&overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.BoolVar(&overrides.Debug, "debug", false, "verbose lifecycle logging")
	flags.IntVar(&overrides.GlobalChannelLimit, "global-channel-limit", 0, "capacity of the global channel")
	flags.IntVar(&overrides.DefaultChannelLimit, "default-channel-limit", 0, "default channel capacity")

	if err := root.Execute(); err != nil {
		bootLogger := log.New("error", false)
		bootLogger.Error().Err(err).Msg("server exited with error")
		os.Exit(1)
	}
}

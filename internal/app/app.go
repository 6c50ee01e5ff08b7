package app

import (
	"context"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirehub-server/internal/auth"
	"github.com/vovakirdan/wirehub-server/internal/config"
	"github.com/vovakirdan/wirehub-server/internal/core"
	transporthttp "github.com/vovakirdan/wirehub-server/internal/transport/http"
	"github.com/vovakirdan/wirehub-server/internal/transport/ws"
)

// App wires together the hub core and the transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) *App {
	hub := core.NewHub(&core.Options{
		GlobalLimit:         cfg.GlobalChannelLimit,
		DefaultChannelLimit: cfg.DefaultChannelLimit,
		Debug:               cfg.Debug,
		Logger:              logger,
	})

	wsServer := ws.NewServer(logger)
	hub.SetTransportServer(wsServer)

	var tokens *auth.Config
	if cfg.JWTSecret != "" {
		tokens = &auth.Config{
			Secret:   []byte(cfg.JWTSecret),
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
			TTL:      24 * time.Hour,
		}
	}

	server := transporthttp.NewServer(hub, wsServer, tokens, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		log:             logger,
	}
}

// Hub exposes the hub for callers embedding the app.
func (a *App) Hub() *core.Hub { return a.hub }

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-serverErr
	}
}

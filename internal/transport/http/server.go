package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirehub-server/internal/auth"
	"github.com/vovakirdan/wirehub-server/internal/config"
	"github.com/vovakirdan/wirehub-server/internal/core"
	"github.com/vovakirdan/wirehub-server/internal/transport/ws"
)

// channelStats is one row of the /stats channel snapshot.
type channelStats struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Members int    `json:"members"`
	Limit   int    `json:"limit"`
}

// NewServer builds the HTTP server: the upgrade endpoint plus health and
// stats routes.
func NewServer(hub *core.Hub, wsServer *ws.Server, tokens *auth.Config, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	handler := ws.NewHandler(hub, wsServer, tokens, logger)
	router.GET("/ws", handler.Handle)

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	router.GET("/stats", func(c *gin.Context) {
		channels := hub.GetChannels()
		stats := make([]channelStats, 0, len(channels))
		for _, ch := range channels {
			stats = append(stats, channelStats{
				ID:      ch.ID(),
				Name:    ch.Name(),
				Members: ch.GetSize(),
				Limit:   ch.Limit(),
			})
		}
		c.JSON(stdhttp.StatusOK, gin.H{
			"clients":  hub.GetClientCount(),
			"channels": stats,
		})
	})

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

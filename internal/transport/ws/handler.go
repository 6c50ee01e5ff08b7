package ws

import (
	"errors"
	"io"
	"net/http"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirehub-server/internal/auth"
	"github.com/vovakirdan/wirehub-server/internal/core"
	"github.com/vovakirdan/wirehub-server/internal/proto"
	"github.com/vovakirdan/wirehub-server/internal/utils"
)

// Handler upgrades HTTP requests and bridges the resulting connection to
// the hub lifecycle handlers.
type Handler struct {
	hub    *core.Hub
	server *Server
	tokens *auth.Config // nil disables token identities
	log    *zerolog.Logger
}

// NewHandler builds the upgrade handler. A nil token config means clients
// identify via query parameters or get a generated identity.
func NewHandler(hub *core.Hub, server *Server, tokens *auth.Config, logger *zerolog.Logger) *Handler {
	return &Handler{hub: hub, server: server, tokens: tokens, log: logger}
}

// Handle is the gin route for the upgrade endpoint. It resolves the client
// identity, registers the connection and pumps frames into the hub until
// the peer goes away.
func (h *Handler) Handle(c *gin.Context) {
	wsconn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}

	identity := h.resolveIdentity(c.Request)
	conn := newConn(wsconn, identity, h.server, h.log)

	h.hub.OnOpen(conn)

	ctx := c.Request.Context()
	code := int(websocket.StatusNormalClosure)
	reason := "closing"

	for {
		_, data, readErr := wsconn.Read(ctx)
		if readErr != nil {
			if s := websocket.CloseStatus(readErr); s != -1 {
				code = int(s)
				reason = readErr.Error()
			} else if !errors.Is(readErr, io.EOF) {
				code = int(websocket.StatusAbnormalClosure)
				reason = readErr.Error()
			}
			break
		}
		h.hub.OnMessage(conn, data)
	}

	h.server.dropConn(conn)
	h.hub.OnClose(conn, code, reason)
	_ = wsconn.Close(websocket.StatusNormalClosure, "bye")
}

// resolveIdentity decides who is connecting: a signed identity token when
// configured, explicit id/name query parameters, or a generated id.
func (h *Handler) resolveIdentity(r *http.Request) proto.Identity {
	q := r.URL.Query()

	if h.tokens != nil {
		if token := q.Get("token"); token != "" {
			identity, err := auth.ParseToken(h.tokens, token)
			if err == nil {
				return identity
			}
			h.log.Warn().Err(err).Msg("identity token rejected, falling back")
		}
	}

	if id := q.Get("id"); id != "" {
		return proto.Identity{ID: id, Name: q.Get("name")}
	}

	id := utils.NewID()
	name := q.Get("name")
	if name == "" {
		name = id
	}
	return proto.Identity{ID: id, Name: name}
}

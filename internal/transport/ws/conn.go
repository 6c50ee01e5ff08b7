package ws

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirehub-server/internal/proto"
)

// writeTimeout bounds a single frame write.
const writeTimeout = 10 * time.Second

// Conn wraps one WebSocket connection together with the identity assigned
// at upgrade time. Writes are serialized under a mutex; topic operations
// delegate to the shared Server registry.
type Conn struct {
	ws       *websocket.Conn
	identity proto.Identity
	server   *Server
	log      *zerolog.Logger

	writeMu sync.Mutex
}

func newConn(ws *websocket.Conn, identity proto.Identity, server *Server, logger *zerolog.Logger) *Conn {
	return &Conn{
		ws:       ws,
		identity: identity,
		server:   server,
		log:      logger,
	}
}

// Send writes one text frame.
func (c *Conn) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Subscribe joins this connection to a pub/sub topic.
func (c *Conn) Subscribe(topic string) error {
	return c.server.subscribe(topic, c)
}

// Unsubscribe removes this connection from a pub/sub topic.
func (c *Conn) Unsubscribe(topic string) error {
	return c.server.unsubscribe(topic, c)
}

// Close tears the socket down. Standard codes 1000-1015 and application
// codes 4000-4999 pass through unchanged.
func (c *Conn) Close(code int, reason string) error {
	return c.ws.Close(websocket.StatusCode(code), reason)
}

// Data returns the identity assigned at upgrade.
func (c *Conn) Data() proto.Identity {
	return c.identity
}

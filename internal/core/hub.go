package core

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirehub-server/internal/proto"
)

// GlobalChannelID names the channel every client joins on connect.
const GlobalChannelID = "global"

// GlobalChannelLimit is the bootstrap capacity of the global channel.
const GlobalChannelLimit = 1000

// ClientFactory builds the client wrapper for a new connection. Variants
// may embed Client and extend its behavior.
type ClientFactory func(conn Conn, logger *zerolog.Logger) *Client

// ChannelFactory builds channels; variants may embed Channel.
type ChannelFactory func(id, name string, limit int, logger *zerolog.Logger) *Channel

// Options configure a hub.
type Options struct {
	Hooks          Hooks
	ClientFactory  ClientFactory
	ChannelFactory ChannelFactory
	// ChannelsSeed is used in lieu of the default channel bootstrap. The
	// seed must include the global channel for connection handling to work.
	ChannelsSeed map[string]*Channel
	// GlobalLimit overrides GlobalChannelLimit when positive.
	GlobalLimit int
	// DefaultChannelLimit overrides DefaultChannelLimit when positive.
	DefaultChannelLimit int
	Debug               bool
	Logger              *zerolog.Logger
}

// Hub is the process-wide registry of clients and channels and the
// lifecycle coordinator the transport calls into. Construct one per process
// (or per test) and pass it by reference.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]*Channel
	clients  map[string]*Client
	server   TransportServer

	hooks          Hooks
	clientFactory  ClientFactory
	channelFactory ChannelFactory
	defaultLimit   int
	debug          bool
	log            *zerolog.Logger
}

// NewHub constructs a hub with the global channel pre-created, unless a
// channel seed supplies the channel set.
func NewHub(opts *Options) *Hub {
	o := Options{}
	if opts != nil {
		o = *opts
	}

	logger := o.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	h := &Hub{
		channels:       make(map[string]*Channel),
		clients:        make(map[string]*Client),
		hooks:          o.Hooks,
		clientFactory:  o.ClientFactory,
		channelFactory: o.ChannelFactory,
		defaultLimit:   o.DefaultChannelLimit,
		debug:          o.Debug,
		log:            logger,
	}
	if h.clientFactory == nil {
		h.clientFactory = NewClient
	}
	if h.channelFactory == nil {
		h.channelFactory = NewChannel
	}
	if h.defaultLimit <= 0 {
		h.defaultLimit = DefaultChannelLimit
	}

	if o.ChannelsSeed != nil {
		for id, ch := range o.ChannelsSeed {
			h.channels[id] = ch
		}
		return h
	}

	globalLimit := o.GlobalLimit
	if globalLimit <= 0 {
		globalLimit = GlobalChannelLimit
	}
	h.channels[GlobalChannelID] = h.channelFactory(GlobalChannelID, GlobalChannelID, globalLimit, logger)
	return h
}

// SetTransportServer late-binds the shared pub/sub server. Required before
// any broadcast reaches the wire.
func (h *Hub) SetTransportServer(srv TransportServer) {
	h.mu.Lock()
	h.server = srv
	channels := make([]*Channel, 0, len(h.channels))
	for _, ch := range h.channels {
		channels = append(channels, ch)
	}
	h.mu.Unlock()

	for _, ch := range channels {
		ch.setPublisher(srv)
	}
}

// CreateChannel returns the existing channel for id, or constructs one.
func (h *Hub) CreateChannel(id, name string, limit int) *Channel {
	h.mu.Lock()
	if ch, exists := h.channels[id]; exists {
		h.mu.Unlock()
		return ch
	}
	if limit <= 0 {
		limit = h.defaultLimit
	}
	ch := h.channelFactory(id, name, limit, h.log)
	ch.setPublisher(h.server)
	h.channels[id] = ch
	h.mu.Unlock()

	if h.debug {
		h.log.Debug().Str("channel", id).Int("limit", limit).Msg("channel created")
	}
	return ch
}

// RemoveChannel deletes a channel from the registry, evacuating its members
// with notifications first.
func (h *Hub) RemoveChannel(id string) bool {
	h.mu.Lock()
	ch, exists := h.channels[id]
	if exists {
		delete(h.channels, id)
	}
	h.mu.Unlock()

	if !exists {
		return false
	}
	ch.Delete()
	return true
}

// GetChannel returns a channel by id.
func (h *Hub) GetChannel(id string) (*Channel, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ch, ok := h.channels[id]
	return ch, ok
}

// GetChannels returns a snapshot of all channels.
func (h *Hub) GetChannels() []*Channel {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Channel, 0, len(h.channels))
	for _, ch := range h.channels {
		out = append(out, ch)
	}
	return out
}

// GetClient returns a connected client by id.
func (h *Hub) GetClient(id string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[id]
	return c, ok
}

// GetClients returns a snapshot of all connected clients.
func (h *Hub) GetClients() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	return out
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetChannelCount returns the number of channels.
func (h *Hub) GetChannelCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels)
}

// Broadcast publishes an envelope on a channel topic. The envelope shape is
// the channel broadcast shape: the serialized envelope goes on the wire
// directly.
func (h *Hub) Broadcast(channelID string, payload proto.Payload) error {
	h.mu.RLock()
	server := h.server
	ch, ok := h.channels[channelID]
	h.mu.RUnlock()

	if server == nil {
		return ErrTransportNotSet
	}
	if !ok {
		return ErrChannelNotFound
	}
	return ch.Broadcast(payload, nil)
}

// BroadcastAll publishes the payload on every channel. Per-channel failures
// are logged and do not stop the sweep.
func (h *Hub) BroadcastAll(payload proto.Payload) error {
	h.mu.RLock()
	server := h.server
	h.mu.RUnlock()
	if server == nil {
		return ErrTransportNotSet
	}

	for _, ch := range h.GetChannels() {
		if err := ch.Broadcast(payload, nil); err != nil {
			h.log.Error().
				Str("channel", ch.ID()).
				Err(err).
				Msg("broadcast failed")
		}
	}
	return nil
}

// Join adds a tracked client to a channel, creating the channel lazily with
// the default limit.
func (h *Hub) Join(channelID, clientID string) (MemberResult, error) {
	c, ok := h.GetClient(clientID)
	if !ok {
		return MemberResult{}, ErrClientNotFound
	}
	ch, ok := h.GetChannel(channelID)
	if !ok {
		ch = h.CreateChannel(channelID, channelID, 0)
	}
	return c.JoinChannel(ch, true), nil
}

// Leave removes a tracked client from a channel.
func (h *Hub) Leave(channelID, clientID string) error {
	c, ok := h.GetClient(clientID)
	if !ok {
		return ErrClientNotFound
	}
	ch, ok := h.GetChannel(channelID)
	if !ok {
		return ErrChannelNotFound
	}
	c.LeaveChannel(ch, true)
	return nil
}

// OnOpen handles a new connection: register the client, send the welcome
// envelope, join the global channel, then run the user hook.
func (h *Hub) OnOpen(conn Conn) {
	identity := conn.Data()
	if h.debug {
		h.log.Debug().Str("client_id", identity.ID).Str("name", identity.Name).Msg("connection opened")
	}

	global, ok := h.GetChannel(GlobalChannelID)
	if !ok {
		// The bootstrap channel cannot legally be absent at open time.
		panic(ErrGlobalChannelMissing)
	}

	client := h.clientFactory(conn, h.log)
	client.MarkConnected()

	h.mu.Lock()
	h.clients[client.ID()] = client
	h.mu.Unlock()

	_ = client.Send(proto.Payload{
		Type: proto.TypeClientConnected,
		Content: map[string]any{
			"message": "Welcome to the server",
			"client":  map[string]any{"id": client.ID(), "name": client.Name()},
		},
	}, nil)

	if res := global.AddMember(client, nil); !res.OK {
		h.log.Warn().
			Str("client_id", client.ID()).
			Str("reason", res.Reason).
			Msg("global channel join failed")
	}

	if h.hooks.Open != nil {
		h.hooks.Open(conn)
	}
}

// OnMessage handles one inbound frame. Bare "ping" frames are answered with
// a pong envelope; a user message hook replaces the default behavior of
// echoing and broadcasting the message to every channel.
func (h *Hub) OnMessage(conn Conn, msg []byte) {
	if string(msg) == proto.HeartbeatFrame {
		if err := conn.Send(proto.PongFrame()); err != nil {
			h.log.Warn().Str("client_id", conn.Data().ID).Err(err).Msg("pong write failed")
		}
		return
	}

	if h.hooks.Message != nil {
		h.hooks.Message(conn, msg)
		return
	}

	payload := proto.Payload{
		Type:    proto.TypeMessageReceived,
		Content: map[string]any{"message": string(msg)},
	}

	identity := conn.Data()
	if c, ok := h.GetClient(identity.ID); ok {
		_ = c.Send(payload, nil)
	}
	if err := h.BroadcastAll(payload); err != nil {
		h.log.Error().Err(err).Msg("broadcast-all failed")
	}
}

// OnClose handles a closing connection: run the user hook, evacuate every
// joined channel, then drop the client from the registry. The client leaves
// the registry only after channel evacuation completes.
func (h *Hub) OnClose(conn Conn, code int, reason string) {
	identity := conn.Data()
	if h.debug {
		h.log.Debug().
			Str("client_id", identity.ID).
			Int("code", code).
			Str("reason", reason).
			Msg("connection closed")
	}

	if h.hooks.Close != nil {
		h.hooks.Close(conn, code, reason)
	}

	client, ok := h.GetClient(identity.ID)
	if !ok {
		return
	}

	client.MarkDisconnecting()
	for _, ch := range client.Channels() {
		ch.RemoveMember(client.ID(), nil)
	}
	client.MarkDisconnected()

	h.mu.Lock()
	delete(h.clients, identity.ID)
	h.mu.Unlock()
}

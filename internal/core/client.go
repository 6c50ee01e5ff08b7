package core

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirehub-server/internal/proto"
)

// Client adapts one live connection: it owns the send gate, the connection
// state machine and the map of joined channels. Membership mutations go
// through the owning Channel; the client only tracks the back-reference.
type Client struct {
	identity proto.Identity
	conn     Conn
	log      *zerolog.Logger

	mu             sync.Mutex
	channels       map[string]*Channel
	state          ConnState
	connectedAt    time.Time
	disconnectedAt time.Time
}

// ConnectionInfo is a point-in-time snapshot of a client connection.
type ConnectionInfo struct {
	ID          string
	Name        string
	State       ConnState
	ConnectedAt time.Time
	Uptime      time.Duration
	Channels    int
}

// NewClient wraps a connection. The identity comes from the transport;
// a missing name falls back to the id.
func NewClient(conn Conn, logger *zerolog.Logger) *Client {
	identity := conn.Data()
	if identity.Name == "" {
		identity.Name = identity.ID
	}
	return &Client{
		identity: identity,
		conn:     conn,
		log:      logger,
		channels: make(map[string]*Channel),
		state:    StateConnecting,
	}
}

// ID returns the client identifier.
func (c *Client) ID() string { return c.identity.ID }

// Name returns the client display name.
func (c *Client) Name() string { return c.identity.Name }

// Whoami returns the identity attached to outgoing envelopes.
func (c *Client) Whoami() proto.Identity { return c.identity }

// State returns the current connection state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CanReceive reports whether the send gate is open. Teardown notifications
// may still flush while the client is disconnecting.
func (c *Client) CanReceive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateConnected || c.state == StateDisconnecting
}

// MarkConnected moves the client into CONNECTED and stamps the connect time.
func (c *Client) MarkConnected() {
	c.advance(StateConnected)
}

// MarkDisconnecting moves the client into DISCONNECTING.
func (c *Client) MarkDisconnecting() {
	c.advance(StateDisconnecting)
}

// MarkDisconnected moves the client into DISCONNECTED and stamps the
// disconnect time. Further sends are dropped.
func (c *Client) MarkDisconnected() {
	c.advance(StateDisconnected)
}

// advance moves the state machine forward only; stale transitions are
// ignored so a disconnected client cannot be revived.
func (c *Client) advance(target ConnState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if target <= c.state {
		return
	}
	c.state = target
	switch target {
	case StateConnected:
		c.connectedAt = time.Now()
	case StateDisconnected:
		c.disconnectedAt = time.Now()
	}
}

// Send builds an envelope from the payload and options, attributes it to
// this client, and writes it to the connection. Sends outside the
// CONNECTED/DISCONNECTING window are dropped with a warning. Transport
// failures are logged and swallowed; a failure that indicates a closed
// connection moves the client to DISCONNECTED.
func (c *Client) Send(payload proto.Payload, opts *proto.Options) error {
	if !c.CanReceive() {
		c.log.Warn().
			Str("client_id", c.identity.ID).
			Str("state", c.State().String()).
			Str("type", payload.Type).
			Msg("send dropped: client not receivable")
		return nil
	}

	o := proto.Options{}
	if opts != nil {
		o = *opts
	}
	identity := c.identity
	o.Client = &identity

	env := proto.Build(payload, &o)
	data, err := proto.Serialize(env, nil)
	if err != nil {
		return err
	}
	c.write(data)
	return nil
}

// deliver writes pre-serialized bytes to the connection, honoring the send
// gate. Channels use it for the per-recipient fan-out path.
func (c *Client) deliver(data []byte) {
	if !c.CanReceive() {
		c.log.Warn().
			Str("client_id", c.identity.ID).
			Str("state", c.State().String()).
			Msg("delivery dropped: client not receivable")
		return
	}
	c.write(data)
}

func (c *Client) write(data []byte) {
	if err := c.conn.Send(data); err != nil {
		if strings.Contains(err.Error(), "closed") {
			c.MarkDisconnected()
			c.log.Warn().
				Str("client_id", c.identity.ID).
				Err(err).
				Msg("connection closed during send")
			return
		}
		c.log.Error().
			Str("client_id", c.identity.ID).
			Err(err).
			Msg("send failed")
	}
}

// JoinChannel is a thin delegate: membership authority lives in the channel.
func (c *Client) JoinChannel(ch *Channel, notify bool) MemberResult {
	if c.tracks(ch.ID()) {
		return MemberResult{OK: false, Reason: ReasonAlreadyMember}
	}
	return ch.AddMember(c, &MemberOptions{Notify: notify})
}

// LeaveChannel removes this client from the channel. Leaving a channel the
// client never joined is a no-op.
func (c *Client) LeaveChannel(ch *Channel, notify bool) {
	if !c.tracks(ch.ID()) {
		return
	}
	ch.RemoveMember(c.identity.ID, &MemberOptions{Notify: notify})
}

// JoinChannels joins every listed channel without per-channel notifications,
// then sends one aggregate notification covering the channels that were
// actually joined.
func (c *Client) JoinChannels(channels []*Channel, notify bool) []MemberResult {
	results := make([]MemberResult, 0, len(channels))
	joined := make([]string, 0, len(channels))
	for _, ch := range channels {
		res := c.JoinChannel(ch, false)
		results = append(results, res)
		if res.OK {
			joined = append(joined, ch.ID())
		}
	}
	if notify && len(joined) > 0 {
		_ = c.Send(proto.Payload{
			Type: proto.TypeClientJoinChannels,
			Content: map[string]any{
				"channels": joined,
				"message":  "Joined channels",
			},
		}, nil)
	}
	return results
}

// LeaveChannels leaves the listed channels, or every joined channel when the
// list is nil, then sends one aggregate notification.
func (c *Client) LeaveChannels(channels []*Channel, notify bool) {
	if channels == nil {
		channels = c.Channels()
	}
	left := make([]string, 0, len(channels))
	for _, ch := range channels {
		if c.tracks(ch.ID()) {
			ch.RemoveMember(c.identity.ID, &MemberOptions{Notify: false})
			left = append(left, ch.ID())
		}
	}
	if notify && len(left) > 0 {
		_ = c.Send(proto.Payload{
			Type: proto.TypeClientLeaveChannels,
			Content: map[string]any{
				"channels": left,
				"message":  "Left channels",
			},
		}, nil)
	}
}

// Channels returns a snapshot of the joined channels.
func (c *Client) Channels() []*Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Channel, 0, len(c.channels))
	for _, ch := range c.channels {
		out = append(out, ch)
	}
	return out
}

// GetConnectionInfo snapshots the connection with its uptime and the number
// of joined channels.
func (c *Client) GetConnectionInfo() ConnectionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	var uptime time.Duration
	if !c.connectedAt.IsZero() {
		end := time.Now()
		if !c.disconnectedAt.IsZero() {
			end = c.disconnectedAt
		}
		uptime = end.Sub(c.connectedAt)
	}

	return ConnectionInfo{
		ID:          c.identity.ID,
		Name:        c.identity.Name,
		State:       c.state,
		ConnectedAt: c.connectedAt,
		Uptime:      uptime,
		Channels:    len(c.channels),
	}
}

func (c *Client) tracks(channelID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.channels[channelID]
	return ok
}

// trackChannel and untrackChannel maintain the client side of the two-way
// membership coordination. Only channels call them.
func (c *Client) trackChannel(ch *Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels[ch.ID()] = ch
}

func (c *Client) untrackChannel(channelID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.channels, channelID)
}

// subscribe and unsubscribe pass through to the transport.
func (c *Client) subscribe(topic string) error {
	return c.conn.Subscribe(topic)
}

func (c *Client) unsubscribe(topic string) error {
	return c.conn.Unsubscribe(topic)
}

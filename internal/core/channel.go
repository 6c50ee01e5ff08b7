package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirehub-server/internal/proto"
)

// DefaultChannelLimit caps membership when no explicit limit is given.
const DefaultChannelLimit = 5

// MemberOptions steer a single membership change. A nil options value means
// Notify: the joining or leaving client gets a notification envelope.
type MemberOptions struct {
	Notify bool
	// NotifyWhenFull sends the requester an error envelope when the join
	// fails on capacity.
	NotifyWhenFull bool
}

// Channel is the membership authority for one named topic. The capacity
// check and the insertion share a single critical section so concurrent
// joins can never overshoot the limit. The channel id doubles as the
// transport topic.
type Channel struct {
	id        string
	name      string
	limit     int
	createdAt time.Time
	log       *zerolog.Logger

	mu        sync.Mutex
	members   map[string]*Client
	metadata  map[string]string
	publisher TransportServer
}

// NewChannel constructs an empty channel. A non-positive limit falls back
// to DefaultChannelLimit.
func NewChannel(id, name string, limit int, logger *zerolog.Logger) *Channel {
	if limit <= 0 {
		limit = DefaultChannelLimit
	}
	if name == "" {
		name = id
	}
	return &Channel{
		id:        id,
		name:      name,
		limit:     limit,
		createdAt: time.Now(),
		log:       logger,
		members:   make(map[string]*Client),
		metadata:  make(map[string]string),
	}
}

// ID returns the channel id, stable for the channel's lifetime.
func (ch *Channel) ID() string { return ch.id }

// Name returns the display name.
func (ch *Channel) Name() string { return ch.name }

// Limit returns the member capacity.
func (ch *Channel) Limit() int { return ch.limit }

// CreatedAt returns the construction time.
func (ch *Channel) CreatedAt() time.Time { return ch.createdAt }

// AddMember inserts a client, wires the topic subscription and the client's
// back-reference, and optionally notifies the joiner. Failures after the
// insertion roll the membership back so the two-way coordination invariant
// holds.
func (ch *Channel) AddMember(c *Client, opts *MemberOptions) MemberResult {
	notify := true
	notifyWhenFull := false
	if opts != nil {
		notify = opts.Notify
		notifyWhenFull = opts.NotifyWhenFull
	}

	ch.mu.Lock()
	if _, exists := ch.members[c.ID()]; exists {
		ch.mu.Unlock()
		return MemberResult{OK: false, Reason: ReasonAlreadyMember}
	}
	if len(ch.members) >= ch.limit {
		size := len(ch.members)
		ch.mu.Unlock()
		if notifyWhenFull {
			_ = c.Send(proto.Payload{
				Type: proto.TypeError,
				Content: map[string]any{
					"code":    ErrCodeChannelFull,
					"channel": ch.id,
					"message": fmt.Sprintf("Channel %q is full (%d members)", ch.id, size),
				},
			}, nil)
		}
		return MemberResult{OK: false, Reason: ReasonFull}
	}
	ch.members[c.ID()] = c
	ch.mu.Unlock()

	// Transport and client coordination happen outside the channel lock.
	// Without the subscription the member would never see topic publishes.
	if err := c.subscribe(ch.id); err != nil {
		ch.rollback(c, false)
		return MemberResult{OK: false, Reason: ReasonError, Err: err}
	}
	c.trackChannel(ch)

	if notify {
		if err := c.Send(proto.Payload{
			Type:    proto.TypeClientJoinChannel,
			Channel: ch.id,
			Content: map[string]any{
				"channel": ch.id,
				"name":    ch.name,
				"message": fmt.Sprintf("Joined channel %q", ch.name),
			},
		}, nil); err != nil {
			ch.rollback(c, true)
			return MemberResult{OK: false, Reason: ReasonError, Err: err}
		}
	}

	return MemberResult{OK: true, Client: c}
}

// rollback undoes a partially completed AddMember.
func (ch *Channel) rollback(c *Client, subscribed bool) {
	ch.mu.Lock()
	delete(ch.members, c.ID())
	ch.mu.Unlock()
	if subscribed {
		if err := c.unsubscribe(ch.id); err != nil {
			ch.log.Warn().
				Str("channel", ch.id).
				Str("client_id", c.ID()).
				Err(err).
				Msg("rollback unsubscribe failed")
		}
	}
	c.untrackChannel(ch.id)
}

// RemoveMember deletes a member, unwires its subscription and
// back-reference, and optionally notifies it. Returns the removed client,
// or false when the id was not a member.
func (ch *Channel) RemoveMember(clientID string, opts *MemberOptions) (*Client, bool) {
	notify := true
	if opts != nil {
		notify = opts.Notify
	}

	ch.mu.Lock()
	c, exists := ch.members[clientID]
	if !exists {
		ch.mu.Unlock()
		return nil, false
	}
	delete(ch.members, clientID)
	ch.mu.Unlock()

	if err := c.unsubscribe(ch.id); err != nil {
		ch.log.Warn().
			Str("channel", ch.id).
			Str("client_id", clientID).
			Err(err).
			Msg("unsubscribe failed")
	}
	c.untrackChannel(ch.id)

	if notify {
		_ = c.Send(proto.Payload{
			Type:    proto.TypeClientLeaveChannel,
			Channel: ch.id,
			Content: map[string]any{
				"channel": ch.id,
				"name":    ch.name,
				"message": fmt.Sprintf("Left channel %q", ch.name),
			},
		}, nil)
	}

	return c, true
}

// Broadcast builds an envelope bound to this channel and fans it out. With
// exclusions the serialized bytes are written to each remaining member's
// connection; without, the envelope is published once on the channel topic
// and the transport handles fan-out.
func (ch *Channel) Broadcast(payload proto.Payload, opts *proto.Options) error {
	o := proto.Options{}
	if opts != nil {
		o = *opts
	}
	payload.Channel = ch.id

	if o.WantsChannelMetadata() {
		o.Metadata = ch.metadataFor(o.MetadataKeys)
	}

	env := proto.Build(payload, &o)
	data, err := proto.Serialize(env, nil)
	if err != nil {
		return err
	}

	if len(o.ExcludeClients) > 0 {
		excluded := make(map[string]struct{}, len(o.ExcludeClients))
		for _, id := range o.ExcludeClients {
			excluded[id] = struct{}{}
		}

		ch.mu.Lock()
		targets := make([]*Client, 0, len(ch.members))
		for id, m := range ch.members {
			if _, skip := excluded[id]; skip {
				continue
			}
			targets = append(targets, m)
		}
		ch.mu.Unlock()

		for _, m := range targets {
			m.deliver(data)
		}
		return nil
	}

	pub := ch.getPublisher()
	if pub == nil {
		return ErrTransportNotSet
	}
	return pub.PublishTopic(ch.id, data)
}

// BroadcastText is shorthand for broadcasting a plain chat message.
func (ch *Channel) BroadcastText(text string, opts *proto.Options) error {
	return ch.Broadcast(proto.Payload{Type: proto.TypeMessage, Content: text}, opts)
}

// HasMember reports whether the client id is currently a member.
func (ch *Channel) HasMember(clientID string) bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	_, ok := ch.members[clientID]
	return ok
}

// GetMember returns a member by id.
func (ch *Channel) GetMember(clientID string) (*Client, bool) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	c, ok := ch.members[clientID]
	return c, ok
}

// GetMembers returns the members matching the filter, or all members when
// the filter is nil.
func (ch *Channel) GetMembers(filter func(*Client) bool) []*Client {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	out := make([]*Client, 0, len(ch.members))
	for _, c := range ch.members {
		if filter == nil || filter(c) {
			out = append(out, c)
		}
	}
	return out
}

// GetSize returns the current member count.
func (ch *Channel) GetSize() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return len(ch.members)
}

// CanAddMember reports whether the channel has room for one more member.
func (ch *Channel) CanAddMember() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return len(ch.members) < ch.limit
}

// GetMetadata returns a copy of the channel metadata.
func (ch *Channel) GetMetadata() map[string]string {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	out := make(map[string]string, len(ch.metadata))
	for k, v := range ch.metadata {
		out[k] = v
	}
	return out
}

// SetMetadata stores one metadata entry.
func (ch *Channel) SetMetadata(key, value string) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.metadata[key] = value
}

// metadataFor returns the full metadata, or only the listed keys that are
// present when keys is non-nil.
func (ch *Channel) metadataFor(keys []string) map[string]string {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if keys == nil {
		out := make(map[string]string, len(ch.metadata))
		for k, v := range ch.metadata {
			out[k] = v
		}
		return out
	}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := ch.metadata[k]; ok {
			out[k] = v
		}
	}
	return out
}

// Delete evacuates every member with a leave notification and clears the
// channel. The channel object must not be reused afterwards.
func (ch *Channel) Delete() {
	ch.mu.Lock()
	ids := make([]string, 0, len(ch.members))
	for id := range ch.members {
		ids = append(ids, id)
	}
	ch.mu.Unlock()

	for _, id := range ids {
		ch.RemoveMember(id, &MemberOptions{Notify: true})
	}
}

func (ch *Channel) setPublisher(srv TransportServer) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.publisher = srv
}

func (ch *Channel) getPublisher() TransportServer {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.publisher
}

package proto

// Reserved message types placed in the envelope "type" field. The string
// values are stable wire identifiers.
const (
	TypeClientConnected     = "client.connected"
	TypeClientDisconnected  = "client.disconnected"
	TypeClientJoinChannel   = "client.join.channel"
	TypeClientLeaveChannel  = "client.leave.channel"
	TypeClientJoinChannels  = "client.join.channels"
	TypeClientLeaveChannels = "client.leave.channels"
	TypePing                = "ping"
	TypePong                = "pong"
	TypeMessage             = "message"
	TypeWhisper             = "whisper"
	TypeBroadcast           = "broadcast"
	TypePrompt              = "prompt"
	TypeError               = "error"
	TypeSystem              = "system"

	// TypeMessageReceived is emitted by the default inbound-message handler.
	TypeMessageReceived = "client.message.received"
)

// HeartbeatFrame is the bare text frame a client sends as a liveness probe.
// It is not JSON and is answered with a pong envelope.
const HeartbeatFrame = "ping"

// ChannelNone is the channel value for envelopes not bound to a channel.
const ChannelNone = "N/A"

// Identity names the sender or recipient of an envelope.
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Payload is what a caller hands to the builder: the message type, its
// content (string or object) and an optional channel override.
type Payload struct {
	Type    string
	Content any
	Channel string
}

// Envelope is the JSON structure placed on the wire. The root is open-ended
// so custom fields can merge alongside the reserved keys.
type Envelope map[string]any

// Type returns the envelope "type" field, or "" when absent.
func (e Envelope) Type() string {
	t, _ := e["type"].(string)
	return t
}

// Channel returns the envelope "channel" field, or "" when absent.
func (e Envelope) Channel() string {
	c, _ := e["channel"].(string)
	return c
}

// Content returns the envelope "content" object, or nil when absent.
func (e Envelope) Content() map[string]any {
	c, _ := e["content"].(map[string]any)
	return c
}

package proto

import (
	"encoding/json"
	"time"
)

// timestampLayout renders UTC instants with millisecond precision.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// unknownClientName labels senders that supplied an ID but no name.
const unknownClientName = "Unknown"

// SerializeFunc replaces the default JSON serialization of an envelope.
type SerializeFunc func(any) ([]byte, error)

// Build assembles a wire envelope from a payload and options. Options are
// applied in a fixed order: data, client, metadata, timestamp, priority,
// expiresAt, customFields, transform. A transform short-circuits and its
// return value is used verbatim, so the result may be any JSON-compatible
// value rather than an Envelope.
func Build(payload Payload, opts *Options) any {
	env := Envelope{
		"type":    payload.Type,
		"channel": resolveChannel(payload, opts),
		"content": normalizeContent(payload.Content),
	}

	if opts == nil {
		env["timestamp"] = now()
		return env
	}

	if opts.Data != nil {
		content := env.Content()
		if m, ok := opts.Data.(map[string]any); ok {
			for k, v := range m {
				content[k] = v
			}
		} else {
			content["data"] = opts.Data
		}
	}

	if opts.Client != nil && opts.Client.ID != "" {
		name := opts.Client.Name
		if name == "" {
			name = unknownClientName
		}
		env["client"] = map[string]any{"id": opts.Client.ID, "name": name}
	}

	if opts.Metadata != nil {
		meta := make(map[string]string, len(opts.Metadata))
		for k, v := range opts.Metadata {
			meta[k] = v
		}
		env["metadata"] = meta
	}

	if !opts.OmitTimestamp {
		env["timestamp"] = now()
	}

	if opts.Priority != nil {
		env["priority"] = *opts.Priority
	}
	if opts.ExpiresAt != 0 {
		env["expiresAt"] = opts.ExpiresAt
	}

	for k, v := range opts.CustomFields {
		env[k] = v
	}

	if opts.Transform != nil {
		return opts.Transform(env)
	}

	return env
}

// Serialize renders v for the wire. A non-nil transform takes over the
// whole serialization; otherwise the value is JSON-encoded.
func Serialize(v any, transform SerializeFunc) ([]byte, error) {
	if transform != nil {
		return transform(v)
	}
	return json.Marshal(v)
}

// PongFrame is the fixed heartbeat reply, rendered with a stable field
// order so clients may compare it byte-for-byte.
func PongFrame() []byte {
	frame := struct {
		Type    string            `json:"type"`
		Content map[string]string `json:"content"`
	}{Type: TypePong, Content: map[string]string{"message": "pong"}}
	b, _ := json.Marshal(frame)
	return b
}

func resolveChannel(payload Payload, opts *Options) string {
	if payload.Channel != "" {
		return payload.Channel
	}
	if opts != nil && opts.Channel != "" {
		return opts.Channel
	}
	return ChannelNone
}

// normalizeContent coerces arbitrary payload content into an object.
// Strings wrap as {message: s}, objects shallow-copy, anything else
// collapses to an empty object.
func normalizeContent(content any) map[string]any {
	switch c := content.(type) {
	case string:
		return map[string]any{"message": c}
	case map[string]any:
		out := make(map[string]any, len(c))
		for k, v := range c {
			out[k] = v
		}
		return out
	case Envelope:
		out := make(map[string]any, len(c))
		for k, v := range c {
			out[k] = v
		}
		return out
	default:
		return map[string]any{}
	}
}

func now() string {
	return time.Now().UTC().Format(timestampLayout)
}

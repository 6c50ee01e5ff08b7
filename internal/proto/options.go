package proto

// Priority grades an envelope for consumers that order their inbox.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// TransformFunc rewrites a finished envelope. The returned value replaces
// the envelope wholesale and may be any JSON-compatible shape.
type TransformFunc func(Envelope) any

// Options steer envelope construction and delivery. None of these keys ever
// appear in the serialized envelope; they are consumed server-side.
type Options struct {
	// Data is merged into content when it is an object, otherwise stored
	// under content.data.
	Data any

	// Client attributes the envelope to a sender. Ignored unless the ID is
	// non-empty; an empty name serializes as "Unknown".
	Client *Identity

	// Metadata is attached verbatim under the "metadata" key. Broadcasters
	// overwrite it with channel metadata when IncludeMetadata is set.
	Metadata map[string]string

	// IncludeMetadata asks a broadcasting channel to attach its metadata.
	// When MetadataKeys is non-nil only the listed keys are attached.
	IncludeMetadata bool
	MetadataKeys    []string

	// ExcludeClients lists recipient IDs to skip during channel fan-out.
	ExcludeClients []string

	// Channel overrides the envelope channel when the payload has none.
	Channel string

	// OmitTimestamp suppresses the default ISO 8601 timestamp.
	OmitTimestamp bool

	// CustomFields shallow-merge into the envelope root.
	CustomFields map[string]any

	// Transform runs last and replaces the envelope wholesale.
	Transform TransformFunc

	// Priority and ExpiresAt copy into the envelope when set. ExpiresAt is
	// milliseconds since epoch; zero means unset.
	Priority  *Priority
	ExpiresAt int64
}

// WantsChannelMetadata reports whether a broadcaster should attach channel
// metadata to the envelope.
func (o *Options) WantsChannelMetadata() bool {
	if o == nil {
		return false
	}
	return o.IncludeMetadata || o.MetadataKeys != nil
}

package core

import "github.com/vovakirdan/wirehub-server/internal/proto"

// Conn is the per-connection surface the hub consumes. Implementations
// carry one live socket and the identity assigned at upgrade time.
type Conn interface {
	// Send writes one frame to the connection.
	Send(data []byte) error
	// Subscribe joins the connection to a pub/sub topic.
	Subscribe(topic string) error
	// Unsubscribe removes the connection from a pub/sub topic.
	Unsubscribe(topic string) error
	// Close tears the connection down with a close code and reason.
	Close(code int, reason string) error
	// Data returns the identity assigned at upgrade.
	Data() proto.Identity
}

// TransportServer is the shared pub/sub surface used for topic fan-out.
// Subscribers of a topic observe publishes in publish order.
type TransportServer interface {
	PublishTopic(topic string, data []byte) error
}

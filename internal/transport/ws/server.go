package ws

import (
	"sync"

	"github.com/rs/zerolog"
)

// Server is the shared pub/sub side of the transport: a registry of topic
// subscriptions over live connections. Publishing writes to every
// subscriber; a failing subscriber is logged and skipped so one dead socket
// cannot stall a fan-out.
type Server struct {
	log *zerolog.Logger

	mu     sync.RWMutex
	topics map[string]map[*Conn]struct{}
	closed bool
}

// NewServer builds an empty topic registry.
func NewServer(logger *zerolog.Logger) *Server {
	return &Server{
		log:    logger,
		topics: make(map[string]map[*Conn]struct{}),
	}
}

// PublishTopic writes data to every subscriber of the topic. Subscribers
// are collected under a read lock and written to outside it.
func (s *Server) PublishTopic(topic string, data []byte) error {
	s.mu.RLock()
	subs := make([]*Conn, 0, len(s.topics[topic]))
	for c := range s.topics[topic] {
		subs = append(subs, c)
	}
	s.mu.RUnlock()

	for _, c := range subs {
		if err := c.Send(data); err != nil {
			s.log.Warn().
				Str("topic", topic).
				Str("client_id", c.identity.ID).
				Err(err).
				Msg("publish write failed")
		}
	}
	return nil
}

func (s *Server) subscribe(topic string, c *Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.topics[topic]
	if !ok {
		set = make(map[*Conn]struct{})
		s.topics[topic] = set
	}
	set[c] = struct{}{}
	return nil
}

func (s *Server) unsubscribe(topic string, c *Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.topics[topic]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(s.topics, topic)
		}
	}
	return nil
}

// dropConn removes a connection from every topic. Called when the
// connection's read loop exits.
func (s *Server) dropConn(c *Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for topic, set := range s.topics {
		delete(set, c)
		if len(set) == 0 {
			delete(s.topics, topic)
		}
	}
}

// SubscriberCount returns the number of subscribers on a topic.
func (s *Server) SubscriberCount(topic string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.topics[topic])
}

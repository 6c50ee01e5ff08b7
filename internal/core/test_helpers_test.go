package core

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirehub-server/internal/proto"
)

// fakeConn records every transport interaction so tests can assert on
// writes and subscriptions without a socket.
type fakeConn struct {
	identity proto.Identity

	mu       sync.Mutex
	writes   [][]byte
	subs     []string
	unsubs   []string
	sendErr  error
	subErr   error
	closed   bool
	closeArg int
}

func newFakeConn(id, name string) *fakeConn {
	return &fakeConn{identity: proto.Identity{ID: id, Name: name}}
}

func (f *fakeConn) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	f.writes = append(f.writes, buf)
	return nil
}

func (f *fakeConn) Subscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return f.subErr
	}
	f.subs = append(f.subs, topic)
	return nil
}

func (f *fakeConn) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubs = append(f.unsubs, topic)
	return nil
}

func (f *fakeConn) Close(code int, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.closeArg = code
	return nil
}

func (f *fakeConn) Data() proto.Identity { return f.identity }

func (f *fakeConn) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func (f *fakeConn) subscribedTo(topic string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.subs {
		if t == topic {
			return true
		}
	}
	return false
}

func (f *fakeConn) unsubscribedFrom(topic string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.unsubs {
		if t == topic {
			return true
		}
	}
	return false
}

// envelopeAt decodes write i as a JSON envelope.
func (f *fakeConn) envelopeAt(t *testing.T, i int) map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.writes) {
		t.Fatalf("expected at least %d writes, got %d", i+1, len(f.writes))
	}
	var env map[string]any
	if err := json.Unmarshal(f.writes[i], &env); err != nil {
		t.Fatalf("write %d is not JSON: %v", i, err)
	}
	return env
}

func (f *fakeConn) lastEnvelope(t *testing.T) map[string]any {
	t.Helper()
	return f.envelopeAt(t, f.writeCount()-1)
}

// findEnvelope returns the first write whose type field matches.
func (f *fakeConn) findEnvelope(t *testing.T, msgType string) map[string]any {
	t.Helper()
	for i := 0; i < f.writeCount(); i++ {
		env := f.envelopeAt(t, i)
		if env["type"] == msgType {
			return env
		}
	}
	t.Fatalf("no envelope of type %q among %d writes", msgType, f.writeCount())
	return nil
}

// fakeTransport records topic publishes.
type fakeTransport struct {
	mu        sync.Mutex
	publishes []publishRecord
	err       error
}

type publishRecord struct {
	topic string
	data  []byte
}

func (f *fakeTransport) PublishTopic(topic string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	f.publishes = append(f.publishes, publishRecord{topic: topic, data: buf})
	return nil
}

func (f *fakeTransport) publishCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.publishes)
}

func (f *fakeTransport) lastPublish(t *testing.T) publishRecord {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.publishes) == 0 {
		t.Fatal("expected at least one publish")
	}
	return f.publishes[len(f.publishes)-1]
}

var errClosedConn = errors.New("use of closed network connection")

func testLogger() *zerolog.Logger {
	nop := zerolog.Nop()
	return &nop
}

// newTestClient builds a connected client over a fake connection.
func newTestClient(id, name string) (*Client, *fakeConn) {
	conn := newFakeConn(id, name)
	c := NewClient(conn, testLogger())
	c.MarkConnected()
	return c, conn
}

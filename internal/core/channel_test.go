package core

import (
	"fmt"
	"sync"
	"testing"

	"github.com/vovakirdan/wirehub-server/internal/proto"
)

func TestAddMemberCoordinatesBothSides(t *testing.T) {
	ch := NewChannel("room", "Room", 5, testLogger())
	c, conn := newTestClient("u1", "Alice")

	res := ch.AddMember(c, nil)
	if !res.OK {
		t.Fatalf("expected join to succeed, got %+v", res)
	}
	if !ch.HasMember("u1") {
		t.Fatal("channel does not list the member")
	}
	if !conn.subscribedTo("room") {
		t.Fatal("member was not subscribed to the channel topic")
	}

	tracked := false
	for _, joined := range c.Channels() {
		if joined.ID() == "room" {
			tracked = true
		}
	}
	if !tracked {
		t.Fatal("client does not track the joined channel")
	}

	env := conn.findEnvelope(t, proto.TypeClientJoinChannel)
	if env["channel"] != "room" {
		t.Fatalf("join notification bound to %v, want room", env["channel"])
	}
}

func TestAddMemberIdempotent(t *testing.T) {
	ch := NewChannel("room", "Room", 5, testLogger())
	c, _ := newTestClient("u1", "Alice")

	if res := ch.AddMember(c, &MemberOptions{}); !res.OK {
		t.Fatalf("first join failed: %+v", res)
	}
	res := ch.AddMember(c, &MemberOptions{})
	if res.OK || res.Reason != ReasonAlreadyMember {
		t.Fatalf("expected already_member, got %+v", res)
	}
	if ch.GetSize() != 1 {
		t.Fatalf("size changed on duplicate join: %d", ch.GetSize())
	}
}

func TestAddMemberCapacity(t *testing.T) {
	ch := NewChannel("room", "Room", 2, testLogger())
	u1, _ := newTestClient("u1", "A")
	u2, _ := newTestClient("u2", "B")
	u3, conn3 := newTestClient("u3", "C")

	ch.AddMember(u1, &MemberOptions{})
	ch.AddMember(u2, &MemberOptions{})

	res := ch.AddMember(u3, &MemberOptions{NotifyWhenFull: true})
	if res.OK || res.Reason != ReasonFull {
		t.Fatalf("expected full, got %+v", res)
	}
	if ch.GetSize() != 2 {
		t.Fatalf("capacity overshoot: size %d", ch.GetSize())
	}

	env := conn3.findEnvelope(t, proto.TypeError)
	content := env["content"].(map[string]any)
	if content["code"] != ErrCodeChannelFull {
		t.Fatalf("error code = %v, want %s", content["code"], ErrCodeChannelFull)
	}
	if content["channel"] != "room" {
		t.Fatalf("error channel = %v, want room", content["channel"])
	}
	want := `Channel "room" is full (2 members)`
	if content["message"] != want {
		t.Fatalf("error message = %v, want %s", content["message"], want)
	}
}

func TestAddMemberRollbackOnSubscribeFailure(t *testing.T) {
	ch := NewChannel("room", "Room", 5, testLogger())
	conn := newFakeConn("u1", "Alice")
	conn.subErr = fmt.Errorf("subscribe refused")
	c := NewClient(conn, testLogger())
	c.MarkConnected()

	res := ch.AddMember(c, nil)
	if res.OK || res.Reason != ReasonError || res.Err == nil {
		t.Fatalf("expected rollback error result, got %+v", res)
	}
	if ch.HasMember("u1") {
		t.Fatal("member left behind after rollback")
	}
	if len(c.Channels()) != 0 {
		t.Fatal("client still tracks the channel after rollback")
	}
}

func TestRemoveMemberCoordinatesBothSides(t *testing.T) {
	ch := NewChannel("room", "Room", 5, testLogger())
	c, conn := newTestClient("u1", "Alice")
	ch.AddMember(c, &MemberOptions{})

	removed, ok := ch.RemoveMember("u1", &MemberOptions{Notify: true})
	if !ok || removed != c {
		t.Fatalf("expected removal of u1, got %v %v", removed, ok)
	}
	if ch.HasMember("u1") {
		t.Fatal("member still listed after removal")
	}
	if !conn.unsubscribedFrom("room") {
		t.Fatal("member was not unsubscribed from the topic")
	}
	if len(c.Channels()) != 0 {
		t.Fatal("client still tracks the channel")
	}
	conn.findEnvelope(t, proto.TypeClientLeaveChannel)

	if _, ok := ch.RemoveMember("u1", nil); ok {
		t.Fatal("second removal should report non-membership")
	}
}

func TestBroadcastFastPathPublishesOnce(t *testing.T) {
	ch := NewChannel("room", "Room", 5, testLogger())
	transport := &fakeTransport{}
	ch.setPublisher(transport)

	var conns []*fakeConn
	for i := 0; i < 3; i++ {
		c, conn := newTestClient(fmt.Sprintf("u%d", i+1), "user")
		ch.AddMember(c, &MemberOptions{})
		conns = append(conns, conn)
	}
	before := make([]int, len(conns))
	for i, conn := range conns {
		before[i] = conn.writeCount()
	}

	if err := ch.Broadcast(proto.Payload{Type: "x", Content: map[string]any{"n": 1}}, nil); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	if transport.publishCount() != 1 {
		t.Fatalf("publish count = %d, want 1", transport.publishCount())
	}
	if rec := transport.lastPublish(t); rec.topic != "room" {
		t.Fatalf("published on %q, want room", rec.topic)
	}
	for i, conn := range conns {
		if conn.writeCount() != before[i] {
			t.Fatalf("member %d received a direct write on the fast path", i+1)
		}
	}
}

func TestBroadcastExclusionUsesPerMemberPath(t *testing.T) {
	ch := NewChannel("room", "Room", 5, testLogger())
	transport := &fakeTransport{}
	ch.setPublisher(transport)

	u1, conn1 := newTestClient("u1", "A")
	u2, conn2 := newTestClient("u2", "B")
	u3, conn3 := newTestClient("u3", "C")
	for _, c := range []*Client{u1, u2, u3} {
		ch.AddMember(c, &MemberOptions{})
	}
	w1, w2, w3 := conn1.writeCount(), conn2.writeCount(), conn3.writeCount()

	err := ch.Broadcast(
		proto.Payload{Type: "x", Content: map[string]any{"n": 1}},
		&proto.Options{ExcludeClients: []string{"u2"}},
	)
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	if transport.publishCount() != 0 {
		t.Fatal("PublishTopic must not be used on the exclusion path")
	}
	if conn1.writeCount() != w1+1 || conn3.writeCount() != w3+1 {
		t.Fatal("included members did not receive exactly one write")
	}
	if conn2.writeCount() != w2 {
		t.Fatal("excluded member received a write")
	}

	env := conn1.lastEnvelope(t)
	if env["type"] != "x" || env["channel"] != "room" {
		t.Fatalf("unexpected envelope: %v", env)
	}
}

func TestBroadcastWithoutTransport(t *testing.T) {
	ch := NewChannel("room", "Room", 5, testLogger())
	if err := ch.BroadcastText("hi", nil); err != ErrTransportNotSet {
		t.Fatalf("expected ErrTransportNotSet, got %v", err)
	}
}

func TestBroadcastMetadata(t *testing.T) {
	ch := NewChannel("room", "Room", 5, testLogger())
	transport := &fakeTransport{}
	ch.setPublisher(transport)
	ch.SetMetadata("topic", "testing")
	ch.SetMetadata("owner", "ops")

	c, conn := newTestClient("u1", "A")
	ch.AddMember(c, &MemberOptions{})
	w := conn.writeCount()

	err := ch.BroadcastText("hi", &proto.Options{
		MetadataKeys:   []string{"topic", "missing"},
		ExcludeClients: []string{"nobody"},
	})
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if conn.writeCount() != w+1 {
		t.Fatal("member did not receive the broadcast")
	}

	env := conn.lastEnvelope(t)
	meta, ok := env["metadata"].(map[string]any)
	if !ok {
		t.Fatalf("metadata missing from envelope: %v", env)
	}
	if meta["topic"] != "testing" {
		t.Fatalf("metadata topic = %v", meta["topic"])
	}
	if _, present := meta["owner"]; present {
		t.Fatal("unlisted metadata key leaked into envelope")
	}
	if _, present := meta["missing"]; present {
		t.Fatal("absent metadata key materialized in envelope")
	}
}

func TestConcurrentJoinsRespectLimit(t *testing.T) {
	const limit = 3
	const contenders = 20

	ch := NewChannel("room", "Room", limit, testLogger())

	var wg sync.WaitGroup
	results := make([]MemberResult, contenders)
	for i := 0; i < contenders; i++ {
		c, _ := newTestClient(fmt.Sprintf("u%d", i), "user")
		wg.Add(1)
		go func(idx int, cl *Client) {
			defer wg.Done()
			results[idx] = ch.AddMember(cl, &MemberOptions{})
		}(i, c)
	}
	wg.Wait()

	joined := 0
	for _, res := range results {
		if res.OK {
			joined++
		} else if res.Reason != ReasonFull {
			t.Fatalf("unexpected failure reason %q", res.Reason)
		}
	}
	if joined != limit {
		t.Fatalf("joined = %d, want %d", joined, limit)
	}
	if ch.GetSize() != limit {
		t.Fatalf("size = %d, want %d", ch.GetSize(), limit)
	}
}

func TestDeleteEvacuatesMembers(t *testing.T) {
	ch := NewChannel("room", "Room", 5, testLogger())
	u1, conn1 := newTestClient("u1", "A")
	u2, _ := newTestClient("u2", "B")
	ch.AddMember(u1, &MemberOptions{})
	ch.AddMember(u2, &MemberOptions{})

	ch.Delete()

	if ch.GetSize() != 0 {
		t.Fatalf("size after delete = %d", ch.GetSize())
	}
	if len(u1.Channels()) != 0 || len(u2.Channels()) != 0 {
		t.Fatal("evacuated clients still track the channel")
	}
	conn1.findEnvelope(t, proto.TypeClientLeaveChannel)
}

func TestGetMembersFilter(t *testing.T) {
	ch := NewChannel("room", "Room", 5, testLogger())
	u1, _ := newTestClient("u1", "A")
	u2, _ := newTestClient("u2", "B")
	ch.AddMember(u1, &MemberOptions{})
	ch.AddMember(u2, &MemberOptions{})

	all := ch.GetMembers(nil)
	if len(all) != 2 {
		t.Fatalf("all members = %d, want 2", len(all))
	}
	only := ch.GetMembers(func(c *Client) bool { return c.ID() == "u2" })
	if len(only) != 1 || only[0].ID() != "u2" {
		t.Fatalf("filtered members = %v", only)
	}

	if !ch.CanAddMember() {
		t.Fatal("channel with room reports no capacity")
	}
}

package upstream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"
)

// fakeGateway is a loopback stand-in for the upstream network: it accepts
// one connection, answers the logon handshake, and lets tests push frames.
type fakeGateway struct {
	ln net.Listener

	mu   sync.Mutex
	conn net.Conn

	accepted chan struct{}
	frames   chan envelope
	reject   bool
}

func startFakeGateway(t *testing.T, reject bool) *fakeGateway {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	g := &fakeGateway{
		ln:       ln,
		accepted: make(chan struct{}),
		frames:   make(chan envelope, 16),
		reject:   reject,
	}
	go g.serve()
	t.Cleanup(func() { _ = ln.Close() })
	return g
}

func (g *fakeGateway) serve() {
	conn, err := g.ln.Accept()
	if err != nil {
		return
	}
	g.mu.Lock()
	g.conn = conn
	g.mu.Unlock()

	reader := bufio.NewReader(conn)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		return
	}
	var logon envelope
	if err := json.Unmarshal(line, &logon); err != nil || logon.Type != "logon" {
		_ = writeEnvelope(conn, envelope{Type: "error", Text: "bad handshake"})
		return
	}
	if g.reject {
		_ = writeEnvelope(conn, envelope{Type: "error", Text: "InvalidPassword"})
		return
	}
	_ = writeEnvelope(conn, envelope{Type: "logon_ok", ID: "76561198099999999"})
	close(g.accepted)

	go func() {
		for {
			line, err := reader.ReadBytes('\n')
			if err != nil {
				return
			}
			var env envelope
			if json.Unmarshal(line, &env) == nil {
				g.frames <- env
			}
		}
	}()
}

func (g *fakeGateway) push(t *testing.T, env envelope) {
	t.Helper()
	g.mu.Lock()
	conn := g.conn
	g.mu.Unlock()
	if err := writeEnvelope(conn, env); err != nil {
		t.Fatalf("push: %v", err)
	}
}

func (g *fakeGateway) nextFrame(t *testing.T) envelope {
	t.Helper()
	select {
	case env := <-g.frames:
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client frame")
		return envelope{}
	}
}

func TestLogOnSuccess(t *testing.T) {
	g := startFakeGateway(t, false)

	established := make(chan struct{})
	c := NewClient(g.ln.Addr().String())
	c.SetEvents(Events{SessionEstablished: func() { close(established) }})
	defer c.Close()

	if err := c.LogOn(context.Background(), "acct", "pw"); err != nil {
		t.Fatalf("logon: %v", err)
	}
	select {
	case <-established:
	case <-time.After(2 * time.Second):
		t.Fatal("SessionEstablished never fired")
	}
	if c.Account() != "76561198099999999" {
		t.Errorf("account = %q", c.Account())
	}
}

func TestLogOnRejected(t *testing.T) {
	g := startFakeGateway(t, true)

	c := NewClient(g.ln.Addr().String())
	c.SetEvents(Events{})

	err := c.LogOn(context.Background(), "acct", "wrong")
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
}

func TestLogOnUnreachable(t *testing.T) {
	c := NewClient("127.0.0.1:1")
	c.SetEvents(Events{})

	err := c.LogOn(context.Background(), "acct", "pw")
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError for unreachable gateway, got %v", err)
	}
}

func TestEventDispatch(t *testing.T) {
	g := startFakeGateway(t, false)

	type relEvent struct {
		id  string
		rel Relationship
	}
	synced := make(chan struct{}, 1)
	personas := make(chan [2]string, 1)
	rels := make(chan relEvent, 1)
	messages := make(chan [2]string, 1)

	c := NewClient(g.ln.Addr().String())
	c.SetEvents(Events{
		FriendListSynced:    func() { synced <- struct{}{} },
		PersonaUpdated:      func(id, name string) { personas <- [2]string{id, name} },
		RelationshipChanged: func(id string, rel Relationship) { rels <- relEvent{id, rel} },
		MessageReceived:     func(id, text string) { messages <- [2]string{id, text} },
	})
	defer c.Close()

	if err := c.LogOn(context.Background(), "acct", "pw"); err != nil {
		t.Fatalf("logon: %v", err)
	}
	<-g.accepted

	g.push(t, envelope{Type: "friends", Friends: map[string]string{
		"a": "friend",
		"b": "request_recipient",
	}})
	select {
	case <-synced:
	case <-time.After(2 * time.Second):
		t.Fatal("FriendListSynced never fired")
	}
	table := c.Relationships()
	if table["a"] != RelationshipFriend || table["b"] != RelationshipPendingIncoming {
		t.Errorf("relationship table = %v", table)
	}

	g.push(t, envelope{Type: "persona", ID: "a", Name: "Alice"})
	select {
	case p := <-personas:
		if p != [2]string{"a", "Alice"} {
			t.Errorf("persona event = %v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("PersonaUpdated never fired")
	}
	if name, ok := c.PersonaName("a"); !ok || name != "Alice" {
		t.Errorf("persona cache miss: %q %v", name, ok)
	}

	g.push(t, envelope{Type: "relationship", ID: "b", Rel: "none"})
	select {
	case ev := <-rels:
		if ev.id != "b" || ev.rel != RelationshipNone {
			t.Errorf("relationship event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RelationshipChanged never fired")
	}
	if _, ok := c.Relationships()["b"]; ok {
		t.Error("none relationship must leave the table")
	}

	g.push(t, envelope{Type: "message", ID: "a", Text: "hello"})
	select {
	case m := <-messages:
		if m != [2]string{"a", "hello"} {
			t.Errorf("message event = %v", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("MessageReceived never fired")
	}

	// Echo of our own account id is suppressed.
	g.push(t, envelope{Type: "message", ID: "76561198099999999", Text: "echo"})
	g.push(t, envelope{Type: "message", ID: "a", Text: "after"})
	select {
	case m := <-messages:
		if m[1] != "after" {
			t.Errorf("expected own echo suppressed, got %v", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("follow-up message never arrived")
	}
}

func TestSendMessageRequiresFriendship(t *testing.T) {
	g := startFakeGateway(t, false)

	synced := make(chan struct{}, 1)
	c := NewClient(g.ln.Addr().String())
	c.SetEvents(Events{FriendListSynced: func() { synced <- struct{}{} }})
	defer c.Close()

	if err := c.LogOn(context.Background(), "acct", "pw"); err != nil {
		t.Fatalf("logon: %v", err)
	}
	<-g.accepted

	var deliveryErr *DeliveryError
	if err := c.SendMessage("stranger", "hi"); !errors.As(err, &deliveryErr) {
		t.Fatalf("expected DeliveryError for non-friend, got %v", err)
	}

	g.push(t, envelope{Type: "friends", Friends: map[string]string{"pal": "friend"}})
	<-synced

	if err := c.SendMessage("pal", "hi"); err != nil {
		t.Fatalf("send to friend: %v", err)
	}
	frame := g.nextFrame(t)
	if frame.Type != "message" || frame.ID != "pal" || frame.Text != "hi" {
		t.Errorf("wire frame = %+v", frame)
	}
}

func TestCapabilityFrames(t *testing.T) {
	g := startFakeGateway(t, false)

	c := NewClient(g.ln.Addr().String())
	c.SetEvents(Events{})
	defer c.Close()

	if err := c.LogOn(context.Background(), "acct", "pw"); err != nil {
		t.Fatalf("logon: %v", err)
	}
	<-g.accepted

	if err := c.AddFriend("x"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if frame := g.nextFrame(t); frame.Type != "add_friend" || frame.ID != "x" {
		t.Errorf("add frame = %+v", frame)
	}

	if err := c.RemoveFriend("x"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if frame := g.nextFrame(t); frame.Type != "remove_friend" || frame.ID != "x" {
		t.Errorf("remove frame = %+v", frame)
	}

	c.RequestPersonas([]string{"x", "y"})
	frame := g.nextFrame(t)
	if frame.Type != "get_personas" || len(frame.IDs) != 2 {
		t.Errorf("persona frame = %+v", frame)
	}

	c.RequestPersonas(nil) // no-op, no frame
}

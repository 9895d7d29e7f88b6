package upstream

import (
	"bufio"
	"context"
	"encoding/json"
	"log"
	"net"
	"sync"
	"time"
)

const logonTimeout = 15 * time.Second

// envelope is the newline-delimited JSON frame exchanged with the upstream
// gateway, both directions.
type envelope struct {
	Type      string            `json:"type"`
	Account   string            `json:"account,omitempty"`
	Password  string            `json:"password,omitempty"`
	ID        string            `json:"id,omitempty"`
	IDs       []string          `json:"ids,omitempty"`
	Name      string            `json:"name,omitempty"`
	Text      string            `json:"text,omitempty"`
	Rel       string            `json:"relationship,omitempty"`
	Friends   map[string]string `json:"friends,omitempty"`
	Timestamp int64             `json:"ts,omitempty"`
}

// Client speaks the gateway's envelope protocol over a single TCP
// connection and maintains the authoritative relationship table and the
// persona cache. It implements Session.
type Client struct {
	addr   string
	events Events

	writeMu sync.Mutex
	conn    net.Conn

	mu       sync.Mutex
	rels     map[string]Relationship
	personas map[string]string
	account  string
}

var _ Session = (*Client)(nil)

// NewClient returns an unconnected client for the gateway at addr.
func NewClient(addr string) *Client {
	return &Client{
		addr:     addr,
		rels:     make(map[string]Relationship),
		personas: make(map[string]string),
	}
}

// SetEvents installs the callback set. Must be called before LogOn.
func (c *Client) SetEvents(events Events) {
	c.events = events
}

// LogOn dials the gateway and performs the logon handshake. On success the
// read loop is started and Events.SessionEstablished is fired.
func (c *Client) LogOn(ctx context.Context, account, password string) error {
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return &AuthError{Reason: err.Error()}
	}

	if err := writeEnvelope(conn, envelope{Type: "logon", Account: account, Password: password}); err != nil {
		_ = conn.Close()
		return &AuthError{Reason: err.Error()}
	}

	deadline := time.Now().Add(logonTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)

	reader := bufio.NewReader(conn)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		_ = conn.Close()
		return &AuthError{Reason: err.Error()}
	}
	var reply envelope
	if err := json.Unmarshal(line, &reply); err != nil {
		_ = conn.Close()
		return &AuthError{Reason: "malformed logon reply"}
	}
	if reply.Type != "logon_ok" {
		_ = conn.Close()
		reason := reply.Text
		if reason == "" {
			reason = "logon rejected"
		}
		return &AuthError{Reason: reason}
	}
	_ = conn.SetReadDeadline(time.Time{})

	c.mu.Lock()
	c.account = reply.ID
	c.mu.Unlock()
	c.conn = conn

	go c.readLoop(reader)

	if c.events.SessionEstablished != nil {
		c.events.SessionEstablished()
	}
	return nil
}

func (c *Client) readLoop(reader *bufio.Reader) {
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			log.Printf("upstream: connection closed: %v", err)
			return
		}
		var env envelope
		if err := json.Unmarshal(line, &env); err != nil {
			log.Printf("upstream: dropping malformed frame: %v", err)
			continue
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env envelope) {
	switch env.Type {
	case "friends":
		c.mu.Lock()
		c.rels = make(map[string]Relationship, len(env.Friends))
		for id, rel := range env.Friends {
			c.rels[id] = ParseRelationship(rel)
		}
		c.mu.Unlock()
		if c.events.FriendListSynced != nil {
			c.events.FriendListSynced()
		}
	case "persona":
		c.mu.Lock()
		c.personas[env.ID] = env.Name
		c.mu.Unlock()
		if c.events.PersonaUpdated != nil {
			c.events.PersonaUpdated(env.ID, env.Name)
		}
	case "relationship":
		rel := ParseRelationship(env.Rel)
		c.mu.Lock()
		if rel == RelationshipNone {
			delete(c.rels, env.ID)
		} else {
			c.rels[env.ID] = rel
		}
		c.mu.Unlock()
		if c.events.RelationshipChanged != nil {
			c.events.RelationshipChanged(env.ID, rel)
		}
	case "message":
		// The gateway echoes messages in group contexts; skip our own.
		c.mu.Lock()
		own := env.ID == c.account
		c.mu.Unlock()
		if own {
			return
		}
		if c.events.MessageReceived != nil {
			c.events.MessageReceived(env.ID, env.Text)
		}
	default:
		log.Printf("upstream: ignoring frame type %q", env.Type)
	}
}

func (c *Client) SendMessage(id, text string) error {
	c.mu.Lock()
	rel := c.rels[id]
	c.mu.Unlock()
	if rel != RelationshipFriend {
		return &DeliveryError{Op: "send", ID: id, Reason: "not currently a friend"}
	}
	if err := c.write(envelope{Type: "message", ID: id, Text: text}); err != nil {
		return &DeliveryError{Op: "send", ID: id, Reason: err.Error()}
	}
	return nil
}

func (c *Client) AddFriend(id string) error {
	if err := c.write(envelope{Type: "add_friend", ID: id}); err != nil {
		return &DeliveryError{Op: "add_friend", ID: id, Reason: err.Error()}
	}
	return nil
}

func (c *Client) RemoveFriend(id string) error {
	if err := c.write(envelope{Type: "remove_friend", ID: id}); err != nil {
		return &DeliveryError{Op: "remove_friend", ID: id, Reason: err.Error()}
	}
	return nil
}

func (c *Client) RequestPersonas(ids []string) {
	if len(ids) == 0 {
		return
	}
	if err := c.write(envelope{Type: "get_personas", IDs: ids}); err != nil {
		log.Printf("upstream: persona request failed: %v", err)
	}
}

func (c *Client) Relationships() map[string]Relationship {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]Relationship, len(c.rels))
	for id, rel := range c.rels {
		out[id] = rel
	}
	return out
}

func (c *Client) PersonaName(id string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name, ok := c.personas[id]
	return name, ok && name != ""
}

// Account returns the logged-on account id reported by the gateway.
func (c *Client) Account() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.account
}

func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) write(env envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return net.ErrClosed
	}
	return writeEnvelope(c.conn, env)
}

func writeEnvelope(conn net.Conn, env envelope) error {
	env.Timestamp = time.Now().Unix()
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	_, err = conn.Write(append(b, '\n'))
	return err
}

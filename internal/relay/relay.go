// Package relay is the event core of the bridge: it normalizes upstream
// session events and client commands into a single stream, applies them to
// the in-memory state, and fans the resulting frames out to every connected
// push-channel client.
//
// All state mutation happens on the one goroutine running Run. Upstream
// callbacks and websocket read loops only post events into the queue, so no
// two mutations ever interleave.
package relay

import (
	"context"
	"log"
	"time"

	"steambridge/backend/internal/hub"
	"steambridge/backend/internal/models"
	"steambridge/backend/internal/upstream"
)

const eventQueueSize = 256

// event is the tagged union of everything the relay goroutine reacts to.
type event interface {
	kind() string
}

type evSessionEstablished struct{}
type evFriendListSynced struct{}
type evPersonaUpdated struct{ id, name string }
type evRelationshipChanged struct {
	id  string
	rel upstream.Relationship
}
type evMessageReceived struct{ id, text string }
type evClientRegister struct{ client *hub.Client }
type evClientUnregister struct{ client *hub.Client }
type evClientCommand struct {
	client *hub.Client
	raw    []byte
}

func (evSessionEstablished) kind() string { return "sessionEstablished" }
func (evFriendListSynced) kind() string { return "friendListSynced" }
func (evPersonaUpdated) kind() string { return "personaUpdated" }
func (evRelationshipChanged) kind() string { return "relationshipChanged" }
func (evMessageReceived) kind() string { return "messageReceived" }
func (evClientRegister) kind() string { return "clientRegister" }
func (evClientUnregister) kind() string { return "clientUnregister" }
func (evClientCommand) kind() string { return "clientCommand" }

// Relay owns the state store and the hub and runs the single-writer event
// loop.
type Relay struct {
	session upstream.Session
	state   *State
	hub     *hub.Hub
	events  chan event

	now func() int64 // Unix milliseconds; swappable in tests
}

func New(session upstream.Session, h *hub.Hub) *Relay {
	return &Relay{
		session: session,
		state:   NewState(),
		hub:     h,
		events:  make(chan event, eventQueueSize),
		now:     func() int64 { return time.Now().UnixMilli() },
	}
}

// Events returns the upstream callback set, each one posting into the
// relay's queue. Pass this to the session before LogOn.
func (r *Relay) Events() upstream.Events {
	return upstream.Events{
		SessionEstablished:  func() { r.post(evSessionEstablished{}) },
		FriendListSynced:    func() { r.post(evFriendListSynced{}) },
		PersonaUpdated:      func(id, name string) { r.post(evPersonaUpdated{id: id, name: name}) },
		RelationshipChanged: func(id string, rel upstream.Relationship) { r.post(evRelationshipChanged{id: id, rel: rel}) },
		MessageReceived:     func(id, text string) { r.post(evMessageReceived{id: id, text: text}) },
	}
}

// Attach registers a push-channel client; the loop sends it the full state
// snapshot before any later broadcast can reach it.
func (r *Relay) Attach(c *hub.Client) {
	r.post(evClientRegister{client: c})
}

// Detach removes a client on its disconnect signal.
func (r *Relay) Detach(c *hub.Client) {
	r.post(evClientUnregister{client: c})
}

// Command submits a raw inbound client frame for dispatch.
func (r *Relay) Command(c *hub.Client, raw []byte) {
	r.post(evClientCommand{client: c, raw: raw})
}

func (r *Relay) post(ev event) {
	select {
	case r.events <- ev:
	default:
		// Queue overflow means the loop is wedged; dropping is the only
		// option that keeps upstream callbacks non-blocking.
		log.Printf("relay: event queue full, dropping %s", ev.kind())
	}
}

// Run drains the event queue until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-r.events:
			log.Printf("relay: event %s", ev.kind())
			r.handle(ev)
		}
	}
}

func (r *Relay) handle(ev event) {
	switch ev := ev.(type) {
	case evSessionEstablished:
		r.handleSessionEstablished()
	case evFriendListSynced:
		r.handleFriendListSynced()
	case evPersonaUpdated:
		r.handlePersonaUpdated(ev.id, ev.name)
	case evRelationshipChanged:
		r.handleRelationshipChanged(ev.id, ev.rel)
	case evMessageReceived:
		r.handleMessageReceived(ev.id, ev.text)
	case evClientRegister:
		r.handleRegister(ev.client)
	case evClientUnregister:
		r.hub.Unregister(ev.client)
	case evClientCommand:
		r.handleCommand(ev.client, ev.raw)
	}
}

// handleSessionEstablished warms the persona cache for every known id.
func (r *Relay) handleSessionEstablished() {
	rels := r.session.Relationships()
	ids := make([]string, 0, len(rels))
	for id := range rels {
		ids = append(ids, id)
	}
	log.Printf("relay: session up, requesting personas for %d contacts", len(ids))
	r.session.RequestPersonas(ids)
}

// handleFriendListSynced reconciles the store against the authoritative
// relationship table: upsert every current friend, prune everything else.
// Idempotent, so persona/relationship races resolve on the next sync.
func (r *Relay) handleFriendListSynced() {
	rels := r.session.Relationships()
	keep := make(map[string]bool, len(rels))
	for id, rel := range rels {
		if rel != upstream.RelationshipFriend {
			continue
		}
		keep[id] = true
		name, ok := r.session.PersonaName(id)
		if !ok {
			name = r.state.FriendName(id)
		}
		r.state.UpsertFriend(id, name)
	}
	r.state.PruneExcept(keep)
	r.broadcastFriends()
}

func (r *Relay) handlePersonaUpdated(id, name string) {
	if name == "" {
		name = id
	}
	if r.state.RenameRequest(id, name) {
		r.broadcastRequests()
	}
	if r.session.Relationships()[id] == upstream.RelationshipFriend {
		r.state.UpsertFriend(id, name)
		r.broadcastFriends()
	}
}

func (r *Relay) handleRelationshipChanged(id string, rel upstream.Relationship) {
	switch rel {
	case upstream.RelationshipPendingIncoming:
		name, ok := r.session.PersonaName(id)
		if !ok {
			name = id
		}
		if r.state.AddOrUpdateRequest(id, name) {
			log.Printf("relay: incoming friend request from %s (%s)", name, id)
			r.broadcastRequests()
		}
		if !ok {
			r.session.RequestPersonas([]string{id})
		}
	case upstream.RelationshipFriend:
		if r.state.RemoveRequest(id) {
			r.broadcastRequests()
		}
		name, ok := r.session.PersonaName(id)
		if !ok {
			name = r.state.FriendName(id)
		}
		r.state.UpsertFriend(id, name)
		r.broadcastFriends()
	case upstream.RelationshipNone:
		if r.state.RemoveRequest(id) {
			r.broadcastRequests()
		}
		r.state.RemoveFriend(id)
		r.broadcastFriends()
	}
}

func (r *Relay) handleMessageReceived(id, text string) {
	msg := models.Message{From: models.SenderThem, Text: text, Timestamp: r.now()}
	created := r.state.AppendMessage(id, msg)
	if created {
		log.Printf("relay: message from unknown contact %s, requesting persona", id)
		r.session.RequestPersonas([]string{id})
	}
	r.hub.Broadcast(newMessageFrame(id, msg))
	r.broadcastFriends()
}

// handleRegister adds the client and delivers the full snapshot. Running
// inside the loop guarantees the snapshot lands before any later broadcast.
func (r *Relay) handleRegister(c *hub.Client) {
	r.hub.Register(c)
	c.EnqueueJSON(newFriendsFrame(r.state))
	c.EnqueueJSON(newRequestsFrame(r.state))
	log.Printf("relay: client %s connected (%d total)", c.ID, r.hub.Len())
}

func (r *Relay) handleCommand(c *hub.Client, raw []byte) {
	cmd, err := parseCommand(raw)
	if err != nil {
		log.Printf("relay: dropping command from client %s: %v", c.ID, err)
		return
	}
	switch cmd.Type {
	case CommandSend:
		r.handleSend(c, cmd.To, cmd.Text)
	case CommandFriendRequest:
		r.handleFriendRequest(c, cmd.SteamID, cmd.Action)
	}
}

func (r *Relay) handleSend(c *hub.Client, to, text string) {
	if err := r.session.SendMessage(to, text); err != nil {
		log.Printf("relay: send to %s failed: %v", to, err)
		c.EnqueueJSON(newErrorFrame("Failed to send message: " + err.Error()))
		return
	}
	msg := models.Message{From: models.SenderMe, Text: text, Timestamp: r.now()}
	r.state.AppendMessage(to, msg)
	r.hub.Broadcast(newMessageFrame(to, msg))
}

func (r *Relay) handleFriendRequest(c *hub.Client, id, action string) {
	var err error
	switch action {
	case ActionAccept:
		err = r.session.AddFriend(id)
	case ActionDecline:
		err = r.session.RemoveFriend(id)
	}
	if err != nil {
		log.Printf("relay: %s friend request from %s failed: %v", action, id, err)
		c.EnqueueJSON(newErrorFrame("Failed to " + action + " friend request: " + err.Error()))
		return
	}
	log.Printf("relay: %sed friend request from %s", action, id)
	if r.state.RemoveRequest(id) {
		r.broadcastRequests()
	}
}

func (r *Relay) broadcastFriends() {
	r.hub.Broadcast(newFriendsFrame(r.state))
}

func (r *Relay) broadcastRequests() {
	r.hub.Broadcast(newRequestsFrame(r.state))
}

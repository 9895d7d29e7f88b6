package upstream

import (
	"context"
	"fmt"
)

// Relationship is the upstream-tracked state between the local account and a
// given id. Transitions are driven entirely by the network; the session only
// reports them.
type Relationship int

const (
	RelationshipNone Relationship = iota
	RelationshipFriend
	RelationshipPendingIncoming
)

func (r Relationship) String() string {
	switch r {
	case RelationshipFriend:
		return "friend"
	case RelationshipPendingIncoming:
		return "request_recipient"
	default:
		return "none"
	}
}

// ParseRelationship maps a wire relationship string to its enum value.
// Unknown strings map to RelationshipNone.
func ParseRelationship(s string) Relationship {
	switch s {
	case "friend":
		return RelationshipFriend
	case "request_recipient":
		return RelationshipPendingIncoming
	default:
		return RelationshipNone
	}
}

// AuthError reports a failed logon: bad credentials or an unreachable
// network. Fatal at startup.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("upstream logon failed: %s", e.Reason)
}

// DeliveryError reports a rejected capability call (send, add, remove).
// Recovered locally and surfaced to the originating client only.
type DeliveryError struct {
	Op     string
	ID     string
	Reason string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("upstream %s for %s failed: %s", e.Op, e.ID, e.Reason)
}

// Events is the callback set a Session fires as network events arrive.
// Callbacks run on the session's read goroutine, in arrival order; handlers
// must not block.
type Events struct {
	SessionEstablished  func()
	FriendListSynced    func()
	PersonaUpdated      func(id, name string)
	RelationshipChanged func(id string, rel Relationship)
	MessageReceived     func(id, text string)
}

// Session is the single logged-in connection to the upstream network,
// treated as an opaque capability by the rest of the bridge.
type Session interface {
	// LogOn authenticates. It returns *AuthError on bad credentials or
	// network failure and must be called before any other capability.
	LogOn(ctx context.Context, account, password string) error

	// SendMessage delivers a chat message to a current friend. Returns
	// *DeliveryError if the id is not a friend or the upstream rejects it.
	SendMessage(id, text string) error

	// AddFriend accepts a pending request (or sends an outgoing one).
	AddFriend(id string) error

	// RemoveFriend declines a pending request or removes an existing friend.
	RemoveFriend(id string) error

	// RequestPersonas asks the upstream for display names. Fire-and-forget;
	// results arrive later via Events.PersonaUpdated.
	RequestPersonas(ids []string)

	// Relationships returns a copy of the authoritative relationship table.
	Relationships() map[string]Relationship

	// PersonaName returns the cached display name for an id, if known.
	PersonaName(id string) (string, bool)

	Close() error
}

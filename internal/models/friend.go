package models

// MessageSender identifies which side of the conversation authored a message.
type MessageSender string

const (
	// SenderMe is a message sent by the local account.
	SenderMe MessageSender = "me"

	// SenderThem is a message received from the friend.
	SenderThem MessageSender = "them"
)

// Message is a single chat message in a friend's log. Immutable once appended.
type Message struct {
	From      MessageSender `json:"from"`
	Text      string        `json:"text"`
	Timestamp int64         `json:"timestamp"` // Unix milliseconds
}

// Friend is the bridge's view of one contact: display name plus the
// chronological message log for the current process lifetime.
type Friend struct {
	Name     string    `json:"name"`
	Messages []Message `json:"messages"`
}

// FriendRequest is a pending incoming friend request. Name is a snapshot
// taken when the request arrived; it may be refreshed by a later persona
// update while the request is still pending.
type FriendRequest struct {
	SteamID string `json:"steamId"`
	Name    string `json:"name"`
}

package relay

import (
	"encoding/json"
	"errors"
	"fmt"

	"steambridge/backend/internal/models"
)

// Server-to-client frame types.
type friendsFrame struct {
	Type    string                    `json:"type"`
	Friends map[string]*models.Friend `json:"friends"`
}

type requestsFrame struct {
	Type     string                 `json:"type"`
	Requests []models.FriendRequest `json:"requests"`
}

type messageFrame struct {
	Type     string         `json:"type"`
	FriendID string         `json:"friendId"`
	Message  models.Message `json:"message"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func newFriendsFrame(s *State) friendsFrame {
	return friendsFrame{Type: "friends", Friends: s.Friends()}
}

func newRequestsFrame(s *State) requestsFrame {
	return requestsFrame{Type: "friendRequests", Requests: s.Requests()}
}

func newMessageFrame(friendID string, msg models.Message) messageFrame {
	return messageFrame{Type: "message", FriendID: friendID, Message: msg}
}

func newErrorFrame(msg string) errorFrame {
	return errorFrame{Type: "error", Message: msg}
}

// Command is the client-to-server side of the push-channel protocol: a
// tagged union discriminated by Type.
type Command struct {
	Type string `json:"type"`

	// type == "send"
	To   string `json:"to,omitempty"`
	Text string `json:"text,omitempty"`

	// type == "friendRequest"
	SteamID string `json:"steamId,omitempty"`
	Action  string `json:"action,omitempty"`
}

const (
	CommandSend          = "send"
	CommandFriendRequest = "friendRequest"

	ActionAccept  = "accept"
	ActionDecline = "decline"
)

var errMalformedCommand = errors.New("malformed command")

// parseCommand validates an inbound frame against the command schema.
// Unknown discriminants and missing fields are rejected.
func parseCommand(raw []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %v", errMalformedCommand, err)
	}
	switch cmd.Type {
	case CommandSend:
		if cmd.To == "" {
			return Command{}, fmt.Errorf("%w: send without target", errMalformedCommand)
		}
	case CommandFriendRequest:
		if cmd.SteamID == "" {
			return Command{}, fmt.Errorf("%w: friendRequest without steamId", errMalformedCommand)
		}
		if cmd.Action != ActionAccept && cmd.Action != ActionDecline {
			return Command{}, fmt.Errorf("%w: unknown action %q", errMalformedCommand, cmd.Action)
		}
	default:
		return Command{}, fmt.Errorf("%w: unknown type %q", errMalformedCommand, cmd.Type)
	}
	return cmd, nil
}

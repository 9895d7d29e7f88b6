package relay

import "steambridge/backend/internal/models"

// State is the process-wide view of friends and pending requests. It is
// owned exclusively by the relay goroutine; no locking.
type State struct {
	friends  map[string]*models.Friend
	requests []models.FriendRequest
}

func NewState() *State {
	return &State{friends: make(map[string]*models.Friend)}
}

// UpsertFriend creates or renames a friend, preserving its message log.
func (s *State) UpsertFriend(id, name string) {
	if name == "" {
		name = id
	}
	if f, ok := s.friends[id]; ok {
		f.Name = name
		return
	}
	s.friends[id] = &models.Friend{Name: name, Messages: []models.Message{}}
}

// AppendMessage appends to the friend's log, creating the record with the
// id as a placeholder name if the friend is unknown. Returns true if the
// friend record was created by this call.
func (s *State) AppendMessage(id string, msg models.Message) bool {
	f, ok := s.friends[id]
	if !ok {
		f = &models.Friend{Name: id, Messages: []models.Message{}}
		s.friends[id] = f
	}
	f.Messages = append(f.Messages, msg)
	return !ok
}

// RemoveFriend deletes the friend record outright, log included.
func (s *State) RemoveFriend(id string) {
	delete(s.friends, id)
}

// HasFriend reports whether a record exists for id.
func (s *State) HasFriend(id string) bool {
	_, ok := s.friends[id]
	return ok
}

// FriendName returns the stored display name for id, or the id itself.
func (s *State) FriendName(id string) string {
	if f, ok := s.friends[id]; ok {
		return f.Name
	}
	return id
}

// Friends exposes the live friends map for snapshot serialization. Callers
// on the relay goroutine only.
func (s *State) Friends() map[string]*models.Friend {
	return s.friends
}

// PruneExcept removes every friend whose id is not in keep. Used by the
// friend-list reconciliation pass.
func (s *State) PruneExcept(keep map[string]bool) {
	for id := range s.friends {
		if !keep[id] {
			delete(s.friends, id)
		}
	}
}

// AddOrUpdateRequest tracks a pending incoming request, deduplicated by id.
// Returns true when a new entry was added; a repeat id is a no-op.
func (s *State) AddOrUpdateRequest(id, name string) bool {
	for _, req := range s.requests {
		if req.SteamID == id {
			return false
		}
	}
	if name == "" {
		name = id
	}
	s.requests = append(s.requests, models.FriendRequest{SteamID: id, Name: name})
	return true
}

// RenameRequest refreshes the name snapshot of a pending request. Returns
// true when a matching entry was updated.
func (s *State) RenameRequest(id, name string) bool {
	for i := range s.requests {
		if s.requests[i].SteamID == id {
			s.requests[i].Name = name
			return true
		}
	}
	return false
}

// RemoveRequest drops the pending request for id, if tracked.
func (s *State) RemoveRequest(id string) bool {
	for i, req := range s.requests {
		if req.SteamID == id {
			s.requests = append(s.requests[:i], s.requests[i+1:]...)
			return true
		}
	}
	return false
}

// Requests returns the pending request list in arrival order. Never nil,
// so it serializes as [] rather than null.
func (s *State) Requests() []models.FriendRequest {
	if s.requests == nil {
		return []models.FriendRequest{}
	}
	return s.requests
}

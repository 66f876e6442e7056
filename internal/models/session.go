package models

import "time"

// SearchState is the step of the guided search a chat is in.
type SearchState int

const (
	StateIdle SearchState = iota
	StateAwaitingCity
	StateAwaitingType
	StateAwaitingRooms
	StateAwaitingBudget
)

func (s SearchState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingCity:
		return "awaiting_city"
	case StateAwaitingType:
		return "awaiting_type"
	case StateAwaitingRooms:
		return "awaiting_rooms"
	case StateAwaitingBudget:
		return "awaiting_budget"
	default:
		return "unknown"
	}
}

// Slots holds the criteria collected so far. Empty means not filled yet.
type Slots struct {
	City         string `json:"city,omitempty"`
	PropertyType string `json:"property_type,omitempty"`
	Rooms        string `json:"rooms,omitempty"`
	Budget       string `json:"budget,omitempty"`
}

// Session is the conversation state of one chat.
// LastCity survives Reset and biases later free-text searches.
type Session struct {
	UserID     int64       `json:"user_id"`
	State      SearchState `json:"state"`
	Slots      Slots       `json:"slots"`
	LastCity   string      `json:"last_city,omitempty"`
	LastUsedAt time.Time   `json:"last_used_at"`
}

// Reset returns the session to Idle with empty slots.
func (s *Session) Reset() {
	s.State = StateIdle
	s.Slots = Slots{}
}

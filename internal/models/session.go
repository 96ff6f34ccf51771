package models

import "time"

// Chat session states. Ended and Abandoned are terminal.
const (
	SessionPending   = "pending"
	SessionActive    = "active"
	SessionEnded     = "ended"
	SessionAbandoned = "abandoned"
)

// ChatSession represents one bounded conversation between a sharer and a
// listener. Exactly one non-terminal session may exist per participant.
type ChatSession struct {
	SessionID string `gorm:"primaryKey" json:"session_id"` // UUID
	SharerID  string `gorm:"index;not null" json:"sharer_id"`
	ListenerID string `gorm:"index;not null" json:"listener_id"`
	// Status is one of the Session* constants above.
	Status    string     `gorm:"index;not null" json:"status"`
	Topic     string     `json:"topic,omitempty"`
	Language  string     `json:"language,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	// EndedBy records which participant closed the session, or "system"
	// when a watchdog marked it abandoned.
	EndedBy string `json:"ended_by,omitempty"`
}

// Terminal reports whether the session has reached a final state.
func (s *ChatSession) Terminal() bool {
	return s.Status == SessionEnded || s.Status == SessionAbandoned
}

// Participant reports whether userID is one of the two session parties.
func (s *ChatSession) Participant(userID string) bool {
	return userID == s.SharerID || userID == s.ListenerID
}

// PeerOf returns the other participant's ID, or "" if userID is not a party.
func (s *ChatSession) PeerOf(userID string) string {
	switch userID {
	case s.SharerID:
		return s.ListenerID
	case s.ListenerID:
		return s.SharerID
	}
	return ""
}

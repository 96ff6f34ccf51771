package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message is a saved chat message. Rows are hard-deleted once SentAt falls
// outside the retention window, even while the session is still active.
type Message struct {
	ID        string `gorm:"primaryKey" json:"id"` // UUID
	SessionID string `gorm:"type:uuid;not null;index:idx_session_seq" json:"session_id"`
	SenderID  string `gorm:"type:text;not null" json:"sender_id"`
	// SenderRole is "sharer" or "listener" within the owning session.
	SenderRole string `gorm:"type:text;not null" json:"sender_role"`
	Content    string `gorm:"type:text;not null" json:"content"`
	// Seq is the per-session sequence number assigned at write time. Delivery
	// and history ordering follow Seq, never wall clock alone.
	Seq    uint64    `gorm:"not null;index:idx_session_seq" json:"seq"`
	SentAt time.Time `gorm:"index;not null" json:"sent_at"`

	Flagged       bool   `json:"-"`
	FlaggedReason string `json:"-"`
}

// BeforeCreate assigns a UUID when the ID has not been set yet.
func (m *Message) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return
}

package models

import (
	"github.com/google/uuid"
	"github.com/lib/pq" // needed for pq.StringArray
	"gorm.io/gorm"
)

// Role capabilities carried on the identity record. Core logic dispatches on
// membership, never on a user "type".
const (
	RoleSharer   = "sharer"
	RoleListener = "listener"
)

// Listener availability states. AvailabilityInChat is owned by the session
// manager; a listener may only self-set the other two.
const (
	AvailabilityAvailable   = "available"
	AvailabilityUnavailable = "unavailable"
	AvailabilityInChat      = "in_chat"
)

// User represents a participant. Sharers and listeners share the same record;
// the listener_* fields are meaningful only when Roles contains "listener".
type User struct {
	ID        string         `gorm:"primaryKey" json:"id"` // anonymous UUID
	Pseudonym string         `gorm:"uniqueIndex" json:"pseudonym"`
	Roles     pq.StringArray `gorm:"type:text[]" json:"roles"`
	Interests pq.StringArray `gorm:"type:text[]" json:"interests"`
	Languages pq.StringArray `gorm:"type:text[]" json:"languages"`

	ListenerTopics       pq.StringArray `gorm:"type:text[]" json:"listener_topics"`
	ListenerAvailability string         `gorm:"default:unavailable" json:"listener_availability"`
	ListenerRating       float64        `json:"listener_rating"` // rolling average, 0-5
	ListenerTotalChats   int            `json:"listener_total_chats"`

	IsActive bool `gorm:"default:true" json:"is_active"`
}

// BeforeCreate is a GORM hook that generates a new UUID for the user
// if the ID has not been set yet.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}

// IsListener reports whether the user carries the listener capability.
func (u *User) IsListener() bool {
	for _, r := range u.Roles {
		if r == RoleListener {
			return true
		}
	}
	return false
}

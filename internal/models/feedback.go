package models

import "gorm.io/gorm"

// Feedback is a post-session artifact, created once by a participant and
// immutable afterward. One row per (session, reviewer).
type Feedback struct {
	gorm.Model

	SessionID  string `gorm:"type:uuid;not null;uniqueIndex:idx_session_reviewer"`
	ReviewerID string `gorm:"type:text;not null;uniqueIndex:idx_session_reviewer"`
	RevieweeID string `gorm:"type:text;not null;index"`

	// All scores are 1-5.
	Rating      int
	Helpfulness int
	Empathy     int
	Safety      int
	Comment     string `gorm:"type:text"`
}

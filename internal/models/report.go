package models

import "gorm.io/gorm"

// Report reasons accepted from clients.
var ReportReasons = []string{"harassment", "inappropriate", "spam", "safety_concern", "other"}

// Report statuses mutated by the moderation workflow.
const (
	ReportStatusNew      = "new"
	ReportStatusResolved = "resolved"
)

// Report is an abuse report referencing a session and optionally a message.
// Created once; only Status and Resolution change afterward.
type Report struct {
	gorm.Model

	ReporterID     string `gorm:"type:text;not null"`
	ReportedUserID string `gorm:"type:text;not null;index"`
	SessionID      string `gorm:"type:uuid;index"`
	MessageID      string `gorm:"type:uuid"`
	Reason         string `gorm:"type:text;not null"`
	Description    string `gorm:"type:text"`
	Status         string `gorm:"type:text;default:new"`
	Resolution     string `gorm:"type:text"`
}

// ValidReportReason reports whether reason is one of the accepted values.
func ValidReportReason(reason string) bool {
	for _, r := range ReportReasons {
		if r == reason {
			return true
		}
	}
	return false
}

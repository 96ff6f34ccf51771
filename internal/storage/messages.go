package storage

import (
	"log"
	"time"

	"heartline/backend/internal/models"
)

// SaveMessage persists a message row. ID and Seq must already be assigned
// by the router.
func (s *Service) SaveMessage(msg *models.Message) error {
	if err := s.DB.Create(msg).Error; err != nil {
		log.Printf("ERROR: Failed to save message for session %s: %v", msg.SessionID, err)
		return err
	}
	return nil
}

// MessagesBySession returns up to limit messages in ascending sequence
// order, strictly newer than cutoff. beforeSeq > 0 pages backward: only
// messages with Seq < beforeSeq are returned.
func (s *Service) MessagesBySession(sessionID string, beforeSeq uint64, limit int, cutoff time.Time) ([]models.Message, error) {
	q := s.DB.
		Where("session_id = ?", sessionID).
		Where("sent_at > ?", cutoff)
	if beforeSeq > 0 {
		q = q.Where("seq < ?", beforeSeq)
	}

	// Fetch the newest page, then reverse into chronological order.
	var page []models.Message
	if err := q.Order("seq desc").Limit(limit).Find(&page).Error; err != nil {
		log.Printf("ERROR: Failed to get history for session %s: %v", sessionID, err)
		return nil, err
	}
	for i, j := 0, len(page)-1; i < j; i, j = i+1, j-1 {
		page[i], page[j] = page[j], page[i]
	}
	return page, nil
}

// MaxSeq returns the highest sequence number assigned in the session, used
// to recover counters after a restart.
func (s *Service) MaxSeq(sessionID string) (uint64, error) {
	var max uint64
	err := s.DB.Model(&models.Message{}).
		Where("session_id = ?", sessionID).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&max).Error
	return max, err
}

// PurgeExpiredMessages hard-deletes every message sent before the cutoff,
// regardless of the owning session's status. Returns the rows removed.
func (s *Service) PurgeExpiredMessages(cutoff time.Time) (int64, error) {
	res := s.DB.Where("sent_at <= ?", cutoff).Delete(&models.Message{})
	if res.Error != nil {
		log.Printf("ERROR: Retention purge failed: %v", res.Error)
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

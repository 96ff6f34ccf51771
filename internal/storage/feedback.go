package storage

import (
	"errors"
	"log"

	"heartline/backend/internal/models"

	"gorm.io/gorm"
)

// SaveFeedback persists a feedback row. The unique index on
// (session, reviewer) rejects duplicates at the database as well.
func (s *Service) SaveFeedback(fb *models.Feedback) error {
	if err := s.DB.Create(fb).Error; err != nil {
		log.Printf("ERROR: Failed to save feedback for session %s: %v", fb.SessionID, err)
		return err
	}
	return nil
}

// FeedbackExists reports whether the reviewer already rated this session.
func (s *Service) FeedbackExists(sessionID, reviewerID string) (bool, error) {
	var count int64
	err := s.DB.Model(&models.Feedback{}).
		Where("session_id = ? AND reviewer_id = ?", sessionID, reviewerID).
		Count(&count).Error
	return count > 0, err
}

// AverageRating recomputes the reviewee's rolling average over all feedback.
func (s *Service) AverageRating(revieweeID string) (float64, error) {
	var avg float64
	err := s.DB.Model(&models.Feedback{}).
		Where("reviewee_id = ?", revieweeID).
		Select("COALESCE(AVG(rating), 0)").
		Scan(&avg).Error
	return avg, err
}

// SaveReport persists an abuse report.
func (s *Service) SaveReport(report *models.Report) error {
	if report.Status == "" {
		report.Status = models.ReportStatusNew
	}
	if err := s.DB.Create(report).Error; err != nil {
		log.Printf("ERROR: Failed to save report against %s: %v", report.ReportedUserID, err)
		return err
	}
	return nil
}

// GetReportByID loads a report row.
func (s *Service) GetReportByID(id uint) (*models.Report, error) {
	var report models.Report
	err := s.DB.First(&report, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// ResolveReport closes a report with the moderator's resolution note.
func (s *Service) ResolveReport(id uint, resolution string) error {
	return s.DB.Model(&models.Report{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     models.ReportStatusResolved,
			"resolution": resolution,
		}).Error
}

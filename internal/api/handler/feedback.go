package handler

import (
	"errors"
	"net/http"

	"heartline/backend/internal/config"
	"heartline/backend/internal/models"
	"heartline/backend/internal/storage"

	"github.com/gin-gonic/gin"
)

type feedbackRequest struct {
	SessionID   string `json:"session_id" binding:"required"`
	Rating      int    `json:"rating" binding:"required"`
	Helpfulness int    `json:"helpfulness"`
	Empathy     int    `json:"empathy"`
	Safety      int    `json:"safety"`
	Comment     string `json:"comment"`
}

func validScore(v int, required bool) bool {
	if v == 0 && !required {
		return true
	}
	return v >= 1 && v <= 5
}

// SubmitFeedback records a post-session rating and folds it into the
// reviewee's rolling average. One feedback per participant per session,
// and only once the session has ended.
func (h *Handler) SubmitFeedback(c *gin.Context) {
	identity := currentIdentity(c)

	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id and rating required"})
		return
	}
	if !validScore(req.Rating, true) || !validScore(req.Helpfulness, false) ||
		!validScore(req.Empathy, false) || !validScore(req.Safety, false) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ratings must be between 1 and 5"})
		return
	}
	if len(req.Comment) > config.MaxFeedbackComment {
		c.JSON(http.StatusBadRequest, gin.H{"error": "comment too long"})
		return
	}

	sess, err := h.Sessions.Get(req.SessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if !sess.Participant(identity.UserID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant of this session"})
		return
	}
	if !sess.Terminal() {
		c.JSON(http.StatusConflict, gin.H{"error": "session has not ended yet"})
		return
	}

	if exists, err := h.Storage.FeedbackExists(req.SessionID, identity.UserID); err == nil && exists {
		c.JSON(http.StatusConflict, gin.H{"error": "feedback already submitted for this session"})
		return
	}

	revieweeID := sess.PeerOf(identity.UserID)
	fb := &models.Feedback{
		SessionID:   req.SessionID,
		ReviewerID:  identity.UserID,
		RevieweeID:  revieweeID,
		Rating:      req.Rating,
		Helpfulness: req.Helpfulness,
		Empathy:     req.Empathy,
		Safety:      req.Safety,
		Comment:     req.Comment,
	}
	if err := h.Storage.SaveFeedback(fb); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save feedback"})
		return
	}

	// Rating averages only matter for listeners; sharers carry none.
	if revieweeID == sess.ListenerID {
		if avg, err := h.Storage.AverageRating(revieweeID); err == nil {
			if err := h.Storage.UpdateListenerRating(revieweeID, avg); err == nil {
				if reviewee, err := h.Storage.GetUserByID(revieweeID); err == nil {
					h.Pool.UpdateStats(revieweeID, avg, reviewee.ListenerTotalChats)
				}
			}
		}
	}

	c.JSON(http.StatusCreated, gin.H{"message": "feedback recorded"})
}

type reportRequest struct {
	ReportedUserID string `json:"reported_user_id" binding:"required"`
	Reason         string `json:"reason" binding:"required"`
	SessionID      string `json:"session_id"`
	MessageID      string `json:"message_id"`
	Description    string `json:"description"`
}

// SubmitReport files an abuse report and pings the moderation channel.
func (h *Handler) SubmitReport(c *gin.Context) {
	identity := currentIdentity(c)

	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reported_user_id and reason required"})
		return
	}
	if !models.ValidReportReason(req.Reason) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown report reason"})
		return
	}
	if len(req.Description) > config.MaxReportLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "description too long"})
		return
	}
	if req.ReportedUserID == identity.UserID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot report yourself"})
		return
	}

	if _, err := h.Storage.GetUserByID(req.ReportedUserID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "reported user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify reported user"})
		return
	}

	report := &models.Report{
		ReporterID:     identity.UserID,
		ReportedUserID: req.ReportedUserID,
		SessionID:      req.SessionID,
		MessageID:      req.MessageID,
		Reason:         req.Reason,
		Description:    req.Description,
	}
	if err := h.Storage.SaveReport(report); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save report"})
		return
	}

	h.Notifier.NotifyReport(report)

	c.JSON(http.StatusCreated, gin.H{"report_id": report.ID, "status": report.Status})
}

package handler

import (
	"errors"
	"net/http"

	"heartline/backend/internal/chathub"
	"heartline/backend/internal/models"

	"github.com/gin-gonic/gin"
)

type preferencesRequest struct {
	Topic     string  `json:"topic"`
	Language  string  `json:"language"`
	MinRating float64 `json:"preferred_min_rating"`
}

func (p preferencesRequest) toPrefs() models.MatchPreferences {
	return models.MatchPreferences{Topic: p.Topic, Language: p.Language, MinRating: p.MinRating}
}

// FindListeners returns the top suggested listeners for the sharer's
// preferences, without reserving anyone.
func (h *Handler) FindListeners(c *gin.Context) {
	identity := currentIdentity(c)

	var req preferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid preferences"})
		return
	}

	matches := h.Matcher.FindListeners(identity.UserID, req.toPrefs())
	if len(matches) == 0 {
		c.JSON(http.StatusOK, gin.H{
			"matches": []gin.H{},
			"message": "No available listeners match your preferences right now. Please try again later.",
		})
		return
	}

	out := make([]gin.H, 0, len(matches))
	for _, m := range matches {
		out = append(out, gin.H{
			"id":                   m.ID,
			"pseudonym":            m.Pseudonym,
			"languages":            m.Languages,
			"listener_topics":      m.Topics,
			"listener_rating":      m.Rating,
			"listener_total_chats": m.TotalChats,
			"match_score":          m.Score,
		})
	}
	c.JSON(http.StatusOK, gin.H{"matches": out})
}

// RequestMatch asks the engine to pick and reserve the best listener.
func (h *Handler) RequestMatch(c *gin.Context) {
	identity := currentIdentity(c)

	var req preferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid preferences"})
		return
	}

	sess, listener, err := h.Matcher.RequestMatch(identity.UserID, req.toPrefs())
	if err != nil {
		h.matchError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sessionResponse(sess, listener))
}

type requestChatBody struct {
	ListenerID string `json:"listener_id" binding:"required"`
	Topic      string `json:"topic"`
}

// RequestChat reserves one specific listener the sharer picked.
func (h *Handler) RequestChat(c *gin.Context) {
	identity := currentIdentity(c)

	var req requestChatBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "listener_id required"})
		return
	}

	sess, listener, err := h.Matcher.RequestChat(identity.UserID, req.ListenerID, req.Topic)
	if err != nil {
		h.matchError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sessionResponse(sess, listener))
}

func sessionResponse(sess models.ChatSession, listener chathub.ListenerState) gin.H {
	return gin.H{
		"session_id": sess.SessionID,
		"listener": gin.H{
			"id":        listener.ID,
			"pseudonym": listener.Pseudonym,
		},
		"topic":      sess.Topic,
		"started_at": sess.StartedAt,
		"status":     sess.Status,
	}
}

func (h *Handler) matchError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chathub.ErrAlreadyInSession):
		c.JSON(http.StatusConflict, gin.H{"error": "you already have an active chat session"})
	case errors.Is(err, chathub.ErrNoListenerAvailable):
		c.JSON(http.StatusConflict, gin.H{"error": "no listener available"})
	case errors.Is(err, chathub.ErrUnknownListener):
		c.JSON(http.StatusNotFound, gin.H{"error": "listener not found"})
	case errors.Is(err, chathub.ErrUserBanned):
		c.JSON(http.StatusForbidden, gin.H{"error": "account suspended"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "match failed"})
	}
}

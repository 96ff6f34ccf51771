package handler

import (
	"errors"
	"net/http"
	"strconv"

	"heartline/backend/internal/chathub"
	"heartline/backend/internal/models"

	"github.com/gin-gonic/gin"
)

// GetActiveSession returns the caller's current non-terminal session, with
// the peer exposed by pseudonym only.
func (h *Handler) GetActiveSession(c *gin.Context) {
	identity := currentIdentity(c)

	sess, ok := h.Sessions.ActiveSessionFor(identity.UserID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active session"})
		return
	}

	userRole := models.RoleSharer
	if identity.UserID == sess.ListenerID {
		userRole = models.RoleListener
	}
	peerPseudonym := ""
	if peer, err := h.Storage.GetUserByID(sess.PeerOf(identity.UserID)); err == nil {
		peerPseudonym = peer.Pseudonym
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id":        sess.SessionID,
		"status":            sess.Status,
		"topic":             sess.Topic,
		"started_at":        sess.StartedAt,
		"user_role":         userRole,
		"partner_pseudonym": peerPseudonym,
	})
}

// GetMessages pages through a session's retained history, oldest first
// within the page. ?before=<seq> pages backward; ?limit caps the page.
func (h *Handler) GetMessages(c *gin.Context) {
	identity := currentIdentity(c)
	sessionID := c.Param("id")

	beforeSeq, _ := strconv.ParseUint(c.Query("before"), 10, 64)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	msgs, hasMore, err := h.Router.History(sessionID, identity.UserID, beforeSeq, limit)
	if err != nil {
		h.sessionError(c, err)
		return
	}

	out := make([]gin.H, 0, len(msgs))
	for _, m := range msgs {
		pseudonym := ""
		if sender, serr := h.Storage.GetUserByID(m.SenderID); serr == nil {
			pseudonym = sender.Pseudonym
		}
		out = append(out, gin.H{
			"id":               m.ID,
			"seq":              m.Seq,
			"sender_pseudonym": pseudonym,
			"sender_role":      m.SenderRole,
			"content":          m.Content,
			"sent_at":          m.SentAt,
			"is_own_message":   m.SenderID == identity.UserID,
		})
	}

	c.JSON(http.StatusOK, gin.H{"messages": out, "has_more": hasMore})
}

// EndChat terminates the caller's session. Idempotent: ending an already
// ended session reports success.
func (h *Handler) EndChat(c *gin.Context) {
	identity := currentIdentity(c)
	sessionID := c.Param("id")

	sess, err := h.Sessions.Get(sessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if !sess.Participant(identity.UserID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant of this session"})
		return
	}

	if err := h.Sessions.End(sessionID, identity.UserID); err != nil && !errors.Is(err, chathub.ErrSessionNotActive) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to end session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "status": models.SessionEnded})
}

func (h *Handler) sessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chathub.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, chathub.ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant of this session"})
	case errors.Is(err, chathub.ErrSessionNotActive):
		c.JSON(http.StatusConflict, gin.H{"error": "session is not active"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "request failed"})
	}
}

package chathub

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"heartline/backend/internal/config"
	"heartline/backend/internal/models"
	"heartline/backend/internal/moderation"
	"heartline/backend/internal/storage"
)

// seqCounter assigns the per-session sequence numbers. The counter is lazy:
// the first assignment after a restart recovers from the highest persisted
// sequence, so numbers never repeat.
type seqCounter struct {
	mu     sync.Mutex
	loaded bool
	last   uint64
}

// MessageRouter relays messages between the two participants of an active
// session: sequence assignment, persistence, moderation, live delivery or
// durable queuing, history reads, and the retention sweep.
type MessageRouter struct {
	storage   storage.Storage
	sessions  *SessionManager
	moderator *moderation.Service
	notify    Dispatcher

	mu   sync.Mutex
	seqs map[string]*seqCounter

	stopCh chan struct{}
}

// NewMessageRouter constructor. moderator may be nil to relay unscreened.
func NewMessageRouter(s storage.Storage, sessions *SessionManager, moderator *moderation.Service) *MessageRouter {
	return &MessageRouter{
		storage:   s,
		sessions:  sessions,
		moderator: moderator,
		seqs:      make(map[string]*seqCounter),
		stopCh:    make(chan struct{}),
	}
}

// SetDispatcher wires the event sink.
func (r *MessageRouter) SetDispatcher(d Dispatcher) { r.notify = d }

// Send relays one message. The sender must be a participant and the session
// active (a pending session activates on its first message). The message is
// sequenced, persisted, then pushed to the peer; if the peer is offline the
// event lands in their durable outbox and is flushed on reconnect.
func (r *MessageRouter) Send(sessionID, senderID, content string) (models.Message, error) {
	if len(content) > config.MaxMessageLength {
		return models.Message{}, ErrMessageTooLong
	}

	sess, err := r.sessions.Get(sessionID)
	if err != nil {
		return models.Message{}, ErrSessionNotFound
	}
	if !sess.Participant(senderID) {
		return models.Message{}, ErrNotParticipant
	}
	if sess.Terminal() {
		return models.Message{}, ErrSessionNotActive
	}
	if sess.Status == models.SessionPending {
		// First message acknowledges the match.
		if err := r.sessions.Activate(sessionID); err != nil {
			return models.Message{}, ErrSessionNotActive
		}
	}

	status, reason := moderation.StatusApproved, ""
	if r.moderator != nil {
		status, reason = r.moderator.Moderate(content)
		if status == moderation.StatusBlocked {
			return models.Message{}, &BlockedError{Reason: reason}
		}
	}

	seq, err := r.nextSeq(sessionID)
	if err != nil {
		return models.Message{}, err
	}

	role := models.RoleSharer
	if senderID == sess.ListenerID {
		role = models.RoleListener
	}
	msg := models.Message{
		SessionID:     sessionID,
		SenderID:      senderID,
		SenderRole:    role,
		Content:       content,
		Seq:           seq,
		SentAt:        time.Now(),
		Flagged:       status == moderation.StatusFlagged,
		FlaggedReason: reason,
	}
	if err := r.storage.SaveMessage(&msg); err != nil {
		return models.Message{}, err
	}
	r.sessions.TouchActivity(sessionID)

	if r.notify != nil {
		r.notify.Send(sess.PeerOf(senderID), r.toEvent(msg), true)
	}
	return msg, nil
}

// Typing forwards a typing indicator to the peer. Ephemeral: never queued,
// silently dropped on any mismatch.
func (r *MessageRouter) Typing(sessionID, senderID string) {
	sess, err := r.sessions.Get(sessionID)
	if err != nil || !sess.Participant(senderID) || sess.Status != models.SessionActive {
		return
	}
	if r.notify != nil {
		r.notify.Send(sess.PeerOf(senderID), models.Event{
			Type:      models.EventTyping,
			SessionID: sessionID,
		}, false)
	}
}

// History returns up to limit messages in ascending sequence order,
// strictly younger than the retention window, plus whether an older page
// remains. beforeSeq > 0 pages backward.
func (r *MessageRouter) History(sessionID, userID string, beforeSeq uint64, limit int) ([]models.Message, bool, error) {
	sess, err := r.sessions.Get(sessionID)
	if err != nil {
		return nil, false, ErrSessionNotFound
	}
	if !sess.Participant(userID) {
		return nil, false, ErrNotParticipant
	}

	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	cutoff := time.Now().Add(-config.RetentionWindow)
	msgs, err := r.storage.MessagesBySession(sessionID, beforeSeq, limit, cutoff)
	if err != nil {
		return nil, false, err
	}
	// A short page is definitive: whatever preceded it was purged or never
	// written. Sequence gaps alone say nothing once retention kicked in.
	return msgs, len(msgs) == limit, nil
}

// FlushOutbox replays the user's queued events in order through deliver and
// clears the queue only after every event was taken. Expired message events
// are dropped, not delivered: retention beats delivery.
func (r *MessageRouter) FlushOutbox(userID string, deliver func(models.Event) bool) {
	entries, err := r.storage.PeekOutbox(userID)
	if err != nil {
		log.Printf("ERROR: Outbox read for %s: %v", userID, err)
		return
	}
	if len(entries) == 0 {
		return
	}

	cutoff := time.Now().Add(-config.RetentionWindow)
	for _, raw := range entries {
		var ev models.Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			log.Printf("ERROR: Corrupt outbox entry for %s: %v", userID, err)
			continue
		}
		if ev.Type == models.EventMessageReceived && ev.SentAt != nil && ev.SentAt.Before(cutoff) {
			continue
		}
		if !deliver(ev) {
			// Connection went away mid-flush; keep the queue intact for
			// the next reconnect. At-least-once allows the re-delivery.
			return
		}
	}
	// Trim only what was peeked; entries enqueued during the flush stay.
	if err := r.storage.ClearOutbox(userID, int64(len(entries))); err != nil {
		log.Printf("ERROR: Outbox clear for %s: %v", userID, err)
	}
	log.Printf("Flushed %d queued events to %s", len(entries), userID)
}

// RunRetentionSweeper purges messages older than the retention window on a
// fixed interval, independent of session status.
func (r *MessageRouter) RunRetentionSweeper() {
	log.Println("Retention sweeper started.")
	ticker := time.NewTicker(config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-config.RetentionWindow)
			removed, err := r.storage.PurgeExpiredMessages(cutoff)
			if err != nil {
				continue
			}
			if removed > 0 {
				log.Printf("Retention sweep removed %d messages", removed)
			}
		}
	}
}

// Stop terminates the sweeper.
func (r *MessageRouter) Stop() { close(r.stopCh) }

func (r *MessageRouter) nextSeq(sessionID string) (uint64, error) {
	r.mu.Lock()
	c, ok := r.seqs[sessionID]
	if !ok {
		c = &seqCounter{}
		r.seqs[sessionID] = c
	}
	r.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		max, err := r.storage.MaxSeq(sessionID)
		if err != nil {
			return 0, err
		}
		c.last = max
		c.loaded = true
	}
	c.last++
	return c.last, nil
}

// toEvent renders a stored message as its wire event. The sender is exposed
// to the peer by pseudonym only, never by real identity.
func (r *MessageRouter) toEvent(msg models.Message) models.Event {
	pseudonym := ""
	if sender, err := r.storage.GetUserByID(msg.SenderID); err == nil {
		pseudonym = sender.Pseudonym
	}
	sentAt := msg.SentAt
	return models.Event{
		Type:            models.EventMessageReceived,
		SessionID:       msg.SessionID,
		MessageID:       msg.ID,
		Seq:             msg.Seq,
		SenderPseudonym: pseudonym,
		Content:         msg.Content,
		SentAt:          &sentAt,
	}
}

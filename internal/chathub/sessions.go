package chathub

import (
	"log"
	"sync"
	"time"

	"heartline/backend/internal/config"
	"heartline/backend/internal/models"
	"heartline/backend/internal/storage"

	"github.com/google/uuid"
)

// Dispatcher pushes events to users. The hub implements it; the session
// manager, matcher and router stay decoupled from the transport through it.
type Dispatcher interface {
	// Send delivers an event to a user: locally when connected to this
	// node, via pub/sub otherwise. Durable events are also queued in the
	// user's offline outbox when no connection takes them.
	Send(targetID string, ev models.Event, durable bool)
}

// Session close reasons carried on session_ended events.
const (
	ReasonEnded            = "ended"
	ReasonPendingTimeout   = "pending_timeout"
	ReasonIdleTimeout      = "idle_timeout"
	ReasonPeerDisconnected = "peer_disconnected"
)

type sessionEntry struct {
	mu   sync.Mutex
	data models.ChatSession

	pendingTimer *time.Timer
	idleTimer    *time.Timer
	graceTimers  map[string]*time.Timer // participant -> disconnect grace
}

// SessionManager owns the per-session state machine
// (pending -> active -> ended/abandoned) and is the single source of truth
// for who is in a session with whom. Each session carries its own lock;
// the registry lock only guards the maps, so unrelated sessions never
// serialize on each other.
type SessionManager struct {
	storage storage.Storage
	pool    *Pool
	notify  Dispatcher

	// Watchdog windows. Overridable before traffic flows, like SetDispatcher.
	PendingTimeout time.Duration
	IdleTimeout    time.Duration
	ReconnectGrace time.Duration

	mu       sync.RWMutex
	sessions map[string]*sessionEntry
	byUser   map[string]string // participant -> non-terminal session id
}

// NewSessionManager constructor.
func NewSessionManager(s storage.Storage, pool *Pool) *SessionManager {
	return &SessionManager{
		storage:        s,
		pool:           pool,
		PendingTimeout: config.PendingTimeout,
		IdleTimeout:    config.IdleTimeout,
		ReconnectGrace: config.ReconnectGrace,
		sessions:       make(map[string]*sessionEntry),
		byUser:         make(map[string]string),
	}
}

// SetDispatcher wires the event sink. Must be called before traffic flows.
func (m *SessionManager) SetDispatcher(d Dispatcher) { m.notify = d }

// Create opens a new session in pending state. The listener must already be
// reserved by the caller; Create fails with ErrParticipantBusy if either
// party still owns a non-terminal session.
func (m *SessionManager) Create(sharerID, listenerID, topic, language string) (models.ChatSession, error) {
	entry := &sessionEntry{
		data: models.ChatSession{
			SessionID:  uuid.New().String(),
			SharerID:   sharerID,
			ListenerID: listenerID,
			Status:     models.SessionPending,
			Topic:      topic,
			Language:   language,
			StartedAt:  time.Now(),
		},
		graceTimers: make(map[string]*time.Timer),
	}

	m.mu.Lock()
	if _, busy := m.byUser[sharerID]; busy {
		m.mu.Unlock()
		return models.ChatSession{}, ErrParticipantBusy
	}
	if _, busy := m.byUser[listenerID]; busy {
		m.mu.Unlock()
		return models.ChatSession{}, ErrParticipantBusy
	}
	m.sessions[entry.data.SessionID] = entry
	m.byUser[sharerID] = entry.data.SessionID
	m.byUser[listenerID] = entry.data.SessionID
	m.mu.Unlock()

	if err := m.storage.SaveSession(&entry.data); err != nil {
		m.mu.Lock()
		delete(m.sessions, entry.data.SessionID)
		delete(m.byUser, sharerID)
		delete(m.byUser, listenerID)
		m.mu.Unlock()
		return models.ChatSession{}, err
	}

	sessionID := entry.data.SessionID
	entry.pendingTimer = time.AfterFunc(m.PendingTimeout, func() {
		if err := m.MarkAbandoned(sessionID, ReasonPendingTimeout); err != nil {
			log.Printf("ERROR: Pending watchdog for session %s: %v", sessionID, err)
		}
	})

	log.Printf("Session %s created: sharer=%s listener=%s", sessionID, sharerID, listenerID)
	return entry.data, nil
}

// Activate transitions a pending session to active. Idempotent: activating
// an already-active session is a no-op.
func (m *SessionManager) Activate(sessionID string) error {
	entry, ok := m.entry(sessionID)
	if !ok {
		return ErrSessionNotFound
	}

	entry.mu.Lock()
	switch entry.data.Status {
	case models.SessionActive:
		entry.mu.Unlock()
		return nil
	case models.SessionEnded, models.SessionAbandoned:
		entry.mu.Unlock()
		return ErrSessionNotActive
	}

	entry.data.Status = models.SessionActive
	if entry.pendingTimer != nil {
		entry.pendingTimer.Stop()
		entry.pendingTimer = nil
	}
	entry.idleTimer = time.AfterFunc(m.IdleTimeout, func() {
		if err := m.MarkAbandoned(sessionID, ReasonIdleTimeout); err != nil {
			log.Printf("ERROR: Idle watchdog for session %s: %v", sessionID, err)
		}
	})
	data := entry.data
	entry.mu.Unlock()

	return m.storage.SaveSession(&data)
}

// End closes a session on behalf of a participant. Safe to call twice: the
// second call finds a terminal session and is a no-op.
func (m *SessionManager) End(sessionID, by string) error {
	return m.finish(sessionID, models.SessionEnded, by, ReasonEnded)
}

// MarkAbandoned is the watchdog path: pending/idle timeout or a disconnect
// past the grace window. Same release semantics as End.
func (m *SessionManager) MarkAbandoned(sessionID, reason string) error {
	return m.finish(sessionID, models.SessionAbandoned, "system", reason)
}

// finish performs the terminal transition exactly once. Releasing the
// listener here is the only path back to available.
func (m *SessionManager) finish(sessionID, status, by, reason string) error {
	entry, ok := m.entry(sessionID)
	if !ok {
		// Already terminal and evicted, or never existed. Duplicate end
		// signals land here; not an error.
		if _, err := m.storage.GetSessionByID(sessionID); err == nil {
			return nil
		}
		return ErrSessionNotFound
	}

	entry.mu.Lock()
	if entry.data.Terminal() {
		entry.mu.Unlock()
		return nil
	}
	now := time.Now()
	entry.data.Status = status
	entry.data.EndedAt = &now
	entry.data.EndedBy = by
	if entry.pendingTimer != nil {
		entry.pendingTimer.Stop()
	}
	if entry.idleTimer != nil {
		entry.idleTimer.Stop()
	}
	for _, t := range entry.graceTimers {
		t.Stop()
	}
	data := entry.data
	entry.mu.Unlock()

	m.mu.Lock()
	delete(m.sessions, sessionID)
	delete(m.byUser, data.SharerID)
	delete(m.byUser, data.ListenerID)
	m.mu.Unlock()

	if err := m.storage.FinalizeSession(sessionID, status, by); err != nil {
		log.Printf("ERROR: Failed to finalize session %s: %v", sessionID, err)
	}

	m.pool.Release(data.ListenerID)
	if status == models.SessionEnded {
		if err := m.storage.IncrementListenerChats(data.ListenerID); err != nil {
			log.Printf("ERROR: Failed to bump chat count for %s: %v", data.ListenerID, err)
		}
		if l, ok := m.pool.Get(data.ListenerID); ok {
			m.pool.UpdateStats(data.ListenerID, l.Rating, l.TotalChats+1)
		}
	}

	if m.notify != nil {
		ev := models.Event{Type: models.EventSessionEnded, SessionID: sessionID, Reason: reason}
		m.notify.Send(data.SharerID, ev, true)
		m.notify.Send(data.ListenerID, ev, true)
	}

	log.Printf("Session %s closed: status=%s by=%s reason=%s", sessionID, status, by, reason)
	return nil
}

// TouchActivity resets the idle watchdog; the router calls it on every
// delivered message.
func (m *SessionManager) TouchActivity(sessionID string) {
	entry, ok := m.entry(sessionID)
	if !ok {
		return
	}
	entry.mu.Lock()
	if entry.idleTimer != nil {
		entry.idleTimer.Reset(m.IdleTimeout)
	}
	entry.mu.Unlock()
}

// OnDisconnect arms the reconnect grace timer for a participant. If the
// timer fires before OnReconnect, the session is abandoned.
func (m *SessionManager) OnDisconnect(userID string) {
	sessionID, ok := m.sessionFor(userID)
	if !ok {
		return
	}
	entry, ok := m.entry(sessionID)
	if !ok {
		return
	}
	entry.mu.Lock()
	if old, ok := entry.graceTimers[userID]; ok {
		old.Stop()
	}
	entry.graceTimers[userID] = time.AfterFunc(m.ReconnectGrace, func() {
		if err := m.MarkAbandoned(sessionID, ReasonPeerDisconnected); err != nil {
			log.Printf("ERROR: Grace watchdog for session %s: %v", sessionID, err)
		}
	})
	entry.mu.Unlock()
}

// OnReconnect cancels the participant's grace timer; the session resumes
// transparently.
func (m *SessionManager) OnReconnect(userID string) {
	sessionID, ok := m.sessionFor(userID)
	if !ok {
		return
	}
	entry, ok := m.entry(sessionID)
	if !ok {
		return
	}
	entry.mu.Lock()
	if t, ok := entry.graceTimers[userID]; ok {
		t.Stop()
		delete(entry.graceTimers, userID)
	}
	entry.mu.Unlock()
}

// Get returns the session by id, falling back to storage for terminal ones.
func (m *SessionManager) Get(sessionID string) (models.ChatSession, error) {
	if entry, ok := m.entry(sessionID); ok {
		entry.mu.Lock()
		data := entry.data
		entry.mu.Unlock()
		return data, nil
	}
	stored, err := m.storage.GetSessionByID(sessionID)
	if err != nil {
		return models.ChatSession{}, ErrSessionNotFound
	}
	return *stored, nil
}

// ActiveSessionFor returns the user's non-terminal session, if any.
func (m *SessionManager) ActiveSessionFor(userID string) (models.ChatSession, bool) {
	sessionID, ok := m.sessionFor(userID)
	if !ok {
		return models.ChatSession{}, false
	}
	data, err := m.Get(sessionID)
	if err != nil {
		return models.ChatSession{}, false
	}
	return data, true
}

// Recover rebuilds in-memory state from persisted non-terminal sessions
// after a restart. Listeners are re-reserved and both participants get a
// fresh grace window to reconnect.
func (m *SessionManager) Recover() error {
	sessions, err := m.storage.ActiveSessions()
	if err != nil {
		return err
	}

	for i := range sessions {
		data := sessions[i]
		entry := &sessionEntry{data: data, graceTimers: make(map[string]*time.Timer)}

		m.mu.Lock()
		m.sessions[data.SessionID] = entry
		m.byUser[data.SharerID] = data.SessionID
		m.byUser[data.ListenerID] = data.SessionID
		m.mu.Unlock()

		if !m.pool.Reserve(data.ListenerID, data.SharerID, data.SessionID) {
			m.pool.BindSession(data.ListenerID, data.SessionID)
		}

		sessionID := data.SessionID
		if data.Status == models.SessionPending {
			entry.pendingTimer = time.AfterFunc(m.PendingTimeout, func() {
				m.MarkAbandoned(sessionID, ReasonPendingTimeout)
			})
		} else {
			entry.idleTimer = time.AfterFunc(m.IdleTimeout, func() {
				m.MarkAbandoned(sessionID, ReasonIdleTimeout)
			})
		}
		m.OnDisconnect(data.SharerID)
		m.OnDisconnect(data.ListenerID)
	}

	log.Printf("Recovery complete: %d live sessions restored", len(sessions))
	return nil
}

func (m *SessionManager) entry(sessionID string) (*sessionEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.sessions[sessionID]
	return entry, ok
}

func (m *SessionManager) sessionFor(userID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byUser[userID]
	return id, ok
}

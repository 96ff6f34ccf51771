package chathub_test

import (
	"sync"
	"testing"
	"time"

	"heartline/backend/internal/chathub"
	"heartline/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type sentEvent struct {
	TargetID string
	Event    models.Event
	Durable  bool
}

// recordingDispatcher captures everything the core pushes out, in order.
type recordingDispatcher struct {
	mu   sync.Mutex
	sent []sentEvent
}

func (d *recordingDispatcher) Send(targetID string, ev models.Event, durable bool) {
	d.mu.Lock()
	d.sent = append(d.sent, sentEvent{TargetID: targetID, Event: ev, Durable: durable})
	d.mu.Unlock()
}

func (d *recordingDispatcher) events() []sentEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]sentEvent, len(d.sent))
	copy(out, d.sent)
	return out
}

// newSessionFixture wires a session manager over a permissive storage mock
// and a pool holding one reserved listener.
func newSessionFixture(t *testing.T) (*chathub.SessionManager, *chathub.Pool, *MockStorage, *recordingDispatcher) {
	t.Helper()
	storageMock := new(MockStorage)
	storageMock.On("UpdateListenerAvailability", mock.Anything, mock.Anything).Return(nil).Maybe()
	storageMock.On("MirrorAvailability", mock.Anything, mock.Anything).Return(nil).Maybe()
	storageMock.On("SaveSession", mock.AnythingOfType("*models.ChatSession")).Return(nil).Maybe()
	storageMock.On("FinalizeSession", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	storageMock.On("IncrementListenerChats", mock.Anything).Return(nil).Maybe()

	pool := chathub.NewPool(storageMock)
	pool.Upsert(chathub.ListenerState{ID: "listener_1", Availability: models.AvailabilityAvailable})

	sessions := chathub.NewSessionManager(storageMock, pool)
	dispatcher := &recordingDispatcher{}
	sessions.SetDispatcher(dispatcher)
	return sessions, pool, storageMock, dispatcher
}

// TestSessionCreate_ParticipantBusy verifies neither participant can hold
// two non-terminal sessions at once.
func TestSessionCreate_ParticipantBusy(t *testing.T) {
	sessions, pool, _, _ := newSessionFixture(t)
	pool.Upsert(chathub.ListenerState{ID: "listener_2", Availability: models.AvailabilityAvailable})

	assert.True(t, pool.Reserve("listener_1", "sharer_1", ""))
	_, err := sessions.Create("sharer_1", "listener_1", "anxiety", "en")
	assert.NoError(t, err)

	// Same sharer, different listener
	_, err = sessions.Create("sharer_1", "listener_2", "grief", "en")
	assert.ErrorIs(t, err, chathub.ErrParticipantBusy)

	// Same listener, different sharer
	_, err = sessions.Create("sharer_2", "listener_1", "grief", "en")
	assert.ErrorIs(t, err, chathub.ErrParticipantBusy)
}

// TestSessionEnd_Idempotent verifies the terminal transition runs exactly
// once: one finalize, one listener release, one chat-count bump.
func TestSessionEnd_Idempotent(t *testing.T) {
	sessions, pool, storageMock, _ := newSessionFixture(t)

	assert.True(t, pool.Reserve("listener_1", "sharer_1", ""))
	sess, err := sessions.Create("sharer_1", "listener_1", "anxiety", "en")
	assert.NoError(t, err)
	assert.NoError(t, sessions.Activate(sess.SessionID))

	ended := sess
	ended.Status = models.SessionEnded
	storageMock.On("GetSessionByID", sess.SessionID).Return(&ended, nil).Maybe()

	assert.NoError(t, sessions.End(sess.SessionID, "sharer_1"))
	assert.NoError(t, sessions.End(sess.SessionID, "listener_1"))

	storageMock.AssertNumberOfCalls(t, "FinalizeSession", 1)
	storageMock.AssertNumberOfCalls(t, "IncrementListenerChats", 1)

	state, _ := pool.Get("listener_1")
	assert.Equal(t, models.AvailabilityAvailable, state.Availability)

	// Both participants freed for new sessions
	_, busy := sessions.ActiveSessionFor("sharer_1")
	assert.False(t, busy)
	_, busy = sessions.ActiveSessionFor("listener_1")
	assert.False(t, busy)
}

// TestSessionEnd_NotifiesBothParties verifies both sides receive a durable
// session_ended event carrying the close reason.
func TestSessionEnd_NotifiesBothParties(t *testing.T) {
	sessions, pool, _, dispatcher := newSessionFixture(t)

	assert.True(t, pool.Reserve("listener_1", "sharer_1", ""))
	sess, _ := sessions.Create("sharer_1", "listener_1", "anxiety", "en")
	assert.NoError(t, sessions.End(sess.SessionID, "sharer_1"))

	events := dispatcher.events()
	assert.Len(t, events, 2)
	targets := []string{events[0].TargetID, events[1].TargetID}
	assert.ElementsMatch(t, []string{"sharer_1", "listener_1"}, targets)
	for _, e := range events {
		assert.Equal(t, models.EventSessionEnded, e.Event.Type)
		assert.Equal(t, chathub.ReasonEnded, e.Event.Reason)
		assert.True(t, e.Durable, "session_ended must survive an offline peer")
	}
}

// TestSessionMarkAbandoned verifies the watchdog path releases the listener
// without crediting a completed chat.
func TestSessionMarkAbandoned(t *testing.T) {
	sessions, pool, storageMock, dispatcher := newSessionFixture(t)

	assert.True(t, pool.Reserve("listener_1", "sharer_1", ""))
	sess, _ := sessions.Create("sharer_1", "listener_1", "anxiety", "en")

	assert.NoError(t, sessions.MarkAbandoned(sess.SessionID, chathub.ReasonPendingTimeout))

	storageMock.AssertCalled(t, "FinalizeSession", sess.SessionID, models.SessionAbandoned, "system")
	storageMock.AssertNotCalled(t, "IncrementListenerChats", "listener_1")

	state, _ := pool.Get("listener_1")
	assert.Equal(t, models.AvailabilityAvailable, state.Availability)

	events := dispatcher.events()
	assert.Len(t, events, 2)
	assert.Equal(t, chathub.ReasonPendingTimeout, events[0].Event.Reason)
}

// sawReason reports whether the dispatcher recorded a session_ended event
// carrying the given close reason.
func sawReason(d *recordingDispatcher, reason string) func() bool {
	return func() bool {
		for _, e := range d.events() {
			if e.Event.Type == models.EventSessionEnded && e.Event.Reason == reason {
				return true
			}
		}
		return false
	}
}

// TestSessionPendingTimeout verifies a session nobody activates is abandoned
// by the watchdog on its own, releasing the listener exactly once.
func TestSessionPendingTimeout(t *testing.T) {
	sessions, pool, storageMock, dispatcher := newSessionFixture(t)
	sessions.PendingTimeout = 20 * time.Millisecond

	assert.True(t, pool.Reserve("listener_1", "sharer_1", ""))
	sess, err := sessions.Create("sharer_1", "listener_1", "anxiety", "en")
	assert.NoError(t, err)

	assert.Eventually(t, sawReason(dispatcher, chathub.ReasonPendingTimeout),
		time.Second, 5*time.Millisecond, "Watchdog should abandon the pending session")

	storageMock.AssertNumberOfCalls(t, "FinalizeSession", 1)
	storageMock.AssertCalled(t, "FinalizeSession", sess.SessionID, models.SessionAbandoned, "system")
	storageMock.AssertNotCalled(t, "IncrementListenerChats", "listener_1")

	state, _ := pool.Get("listener_1")
	assert.Equal(t, models.AvailabilityAvailable, state.Availability)
	_, busy := sessions.ActiveSessionFor("sharer_1")
	assert.False(t, busy)
}

// TestSessionIdleTimeout verifies an activated but silent session is closed
// by the idle watchdog.
func TestSessionIdleTimeout(t *testing.T) {
	sessions, pool, storageMock, dispatcher := newSessionFixture(t)
	sessions.IdleTimeout = 20 * time.Millisecond

	assert.True(t, pool.Reserve("listener_1", "sharer_1", ""))
	sess, err := sessions.Create("sharer_1", "listener_1", "anxiety", "en")
	assert.NoError(t, err)
	assert.NoError(t, sessions.Activate(sess.SessionID))

	assert.Eventually(t, sawReason(dispatcher, chathub.ReasonIdleTimeout),
		time.Second, 5*time.Millisecond, "Watchdog should abandon the idle session")

	storageMock.AssertNumberOfCalls(t, "FinalizeSession", 1)
	state, _ := pool.Get("listener_1")
	assert.Equal(t, models.AvailabilityAvailable, state.Availability)
}

// TestSessionDisconnectGrace verifies a reconnect inside the grace window
// keeps the session alive and a missed one abandons it.
func TestSessionDisconnectGrace(t *testing.T) {
	sessions, pool, storageMock, dispatcher := newSessionFixture(t)
	sessions.ReconnectGrace = 40 * time.Millisecond

	assert.True(t, pool.Reserve("listener_1", "sharer_1", ""))
	sess, err := sessions.Create("sharer_1", "listener_1", "anxiety", "en")
	assert.NoError(t, err)
	assert.NoError(t, sessions.Activate(sess.SessionID))

	// Reconnect in time: nothing happens
	sessions.OnDisconnect("sharer_1")
	sessions.OnReconnect("sharer_1")
	time.Sleep(80 * time.Millisecond)
	storageMock.AssertNotCalled(t, "FinalizeSession", sess.SessionID, mock.Anything, mock.Anything)
	_, busy := sessions.ActiveSessionFor("sharer_1")
	assert.True(t, busy)

	// Stay away past the window: session abandoned
	sessions.OnDisconnect("sharer_1")
	assert.Eventually(t, sawReason(dispatcher, chathub.ReasonPeerDisconnected),
		time.Second, 5*time.Millisecond, "Watchdog should abandon after the grace window")

	storageMock.AssertNumberOfCalls(t, "FinalizeSession", 1)
	state, _ := pool.Get("listener_1")
	assert.Equal(t, models.AvailabilityAvailable, state.Availability)
}

// TestSessionActivate verifies the pending to active transition and its
// idempotency.
func TestSessionActivate(t *testing.T) {
	sessions, pool, storageMock, _ := newSessionFixture(t)

	assert.True(t, pool.Reserve("listener_1", "sharer_1", ""))
	sess, _ := sessions.Create("sharer_1", "listener_1", "anxiety", "en")

	assert.NoError(t, sessions.Activate(sess.SessionID))
	got, err := sessions.Get(sess.SessionID)
	assert.NoError(t, err)
	assert.Equal(t, models.SessionActive, got.Status)

	// Second activation is a no-op
	assert.NoError(t, sessions.Activate(sess.SessionID))

	// Terminal sessions reject activation
	ended := got
	ended.Status = models.SessionEnded
	storageMock.On("GetSessionByID", sess.SessionID).Return(&ended, nil).Maybe()
	assert.NoError(t, sessions.End(sess.SessionID, "sharer_1"))
	assert.ErrorIs(t, sessions.Activate(sess.SessionID), chathub.ErrSessionNotFound)

	// Unknown session
	storageMock.On("GetSessionByID", "nope").Return(nil, assert.AnError).Maybe()
	assert.ErrorIs(t, sessions.Activate("nope"), chathub.ErrSessionNotFound)
}

// TestSessionRecover verifies persisted non-terminal sessions are rebuilt
// and their listeners re-reserved after a restart.
func TestSessionRecover(t *testing.T) {
	storageMock := new(MockStorage)
	storageMock.On("UpdateListenerAvailability", mock.Anything, mock.Anything).Return(nil).Maybe()
	storageMock.On("MirrorAvailability", mock.Anything, mock.Anything).Return(nil).Maybe()

	pool := chathub.NewPool(storageMock)
	pool.Upsert(chathub.ListenerState{ID: "listener_1", Availability: models.AvailabilityAvailable})

	sessions := chathub.NewSessionManager(storageMock, pool)
	storageMock.On("ActiveSessions").Return([]models.ChatSession{
		{SessionID: "sess_1", SharerID: "sharer_1", ListenerID: "listener_1", Status: models.SessionActive},
	}, nil).Once()

	assert.NoError(t, sessions.Recover())

	state, ok := pool.Get("listener_1")
	assert.True(t, ok)
	assert.Equal(t, models.AvailabilityInChat, state.Availability)
	assert.Equal(t, "sess_1", state.SessionID)

	got, busy := sessions.ActiveSessionFor("sharer_1")
	assert.True(t, busy)
	assert.Equal(t, "sess_1", got.SessionID)
}

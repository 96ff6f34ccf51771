package chathub_test

import (
	"testing"
	"time"

	"heartline/backend/internal/chathub"
	"heartline/backend/internal/models"
	"heartline/backend/internal/moderation"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// newHubFixture assembles the full core over a permissive storage mock and
// starts the hub loop.
func newHubFixture(t *testing.T) (*chathub.Hub, *chathub.Pool, *chathub.Matcher, *MockStorage) {
	t.Helper()
	storageMock := new(MockStorage)
	storageMock.On("UpdateListenerAvailability", mock.Anything, mock.Anything).Return(nil).Maybe()
	storageMock.On("MirrorAvailability", mock.Anything, mock.Anything).Return(nil).Maybe()
	storageMock.On("SaveSession", mock.AnythingOfType("*models.ChatSession")).Return(nil).Maybe()
	storageMock.On("SaveMessage", mock.AnythingOfType("*models.Message")).Return(nil).Maybe()
	storageMock.On("MaxSeq", mock.Anything).Return(uint64(0), nil).Maybe()
	storageMock.On("RecentPartnerIDs", mock.Anything, mock.Anything).Return([]string{}, nil).Maybe()
	storageMock.On("IsUserBanned", mock.Anything).Return(false, nil).Maybe()
	storageMock.On("PeekOutbox", mock.Anything).Return([]string{}, nil).Maybe()

	pool := chathub.NewPool(storageMock)
	sessions := chathub.NewSessionManager(storageMock, pool)
	matcher := chathub.NewMatcher(pool, sessions, storageMock)
	router := chathub.NewMessageRouter(storageMock, sessions, moderation.NewService())
	hub := chathub.NewHub(storageMock, pool, sessions, matcher, router)

	go hub.Run()
	return hub, pool, matcher, storageMock
}

func sharerUser(id string) *models.User {
	return &models.User{
		ID:        id,
		Pseudonym: "anon-" + id,
		Roles:     pq.StringArray{models.RoleSharer},
		IsActive:  true,
	}
}

func listenerUser(id string) *models.User {
	return &models.User{
		ID:             id,
		Pseudonym:      "anon-" + id,
		Roles:          pq.StringArray{models.RoleListener},
		ListenerTopics: pq.StringArray{"anxiety"},
		Languages:      pq.StringArray{"en"},
		IsActive:       true,
	}
}

func register(t *testing.T, hub *chathub.Hub, client *MockClient) {
	t.Helper()
	hub.RegisterCh <- client
	assert.Eventually(t, func() bool {
		return hub.Connected(client.GetUserID())
	}, time.Second, 5*time.Millisecond)
}

// TestHubRegisterUnregister verifies the connection registry lifecycle.
func TestHubRegisterUnregister(t *testing.T) {
	hub, _, _, storageMock := newHubFixture(t)
	storageMock.On("GetUserByID", "user_1").Return(sharerUser("user_1"), nil)

	client := newMockClient("user_1", models.RoleSharer)
	register(t, hub, client)

	hub.UnregisterCh <- client
	assert.Eventually(t, func() bool {
		return !hub.Connected("user_1")
	}, time.Second, 5*time.Millisecond)
	assert.Eventually(t, client.isClosed, time.Second, 5*time.Millisecond)
}

// TestHubRegister_ListenerJoinsPool verifies a connecting listener enters
// the pool with its capability metadata.
func TestHubRegister_ListenerJoinsPool(t *testing.T) {
	hub, pool, _, storageMock := newHubFixture(t)
	storageMock.On("GetUserByID", "listener_1").Return(listenerUser("listener_1"), nil)

	register(t, hub, newMockClient("listener_1", models.RoleListener))

	state, ok := pool.Get("listener_1")
	assert.True(t, ok)
	assert.Equal(t, []string{"anxiety"}, []string(state.Topics))
	// Presence alone does not make a listener matchable
	assert.Equal(t, models.AvailabilityUnavailable, state.Availability)
}

// TestHubRegister_NewerConnectionWins verifies a second connection for the
// same user replaces the first.
func TestHubRegister_NewerConnectionWins(t *testing.T) {
	hub, _, _, storageMock := newHubFixture(t)
	storageMock.On("GetUserByID", "user_1").Return(sharerUser("user_1"), nil)

	first := newMockClient("user_1", models.RoleSharer)
	second := newMockClient("user_1", models.RoleSharer)
	register(t, hub, first)
	register(t, hub, second)

	assert.Eventually(t, first.isClosed, time.Second, 5*time.Millisecond)

	assert.True(t, hub.Deliver("user_1", models.Event{Type: models.EventQueueUpdate}))
	assert.Equal(t, models.EventQueueUpdate, second.nextEvent().Type)
	assert.Empty(t, first.RecvChannel)
}

// TestHubRegister_FlushesOutbox verifies events queued while offline are
// replayed on connect.
func TestHubRegister_FlushesOutbox(t *testing.T) {
	hub, _, _, storageMock := newHubFixture(t)
	storageMock.ExpectedCalls = nil
	storageMock.On("GetUserByID", "user_1").Return(sharerUser("user_1"), nil)
	storageMock.On("PeekOutbox", "user_1").Return([]string{
		`{"type":"session_ended","session_id":"sess_1","reason":"ended"}`,
	}, nil)
	storageMock.On("ClearOutbox", "user_1", int64(1)).Return(nil).Once()

	client := newMockClient("user_1", models.RoleSharer)
	register(t, hub, client)

	ev := client.nextEvent()
	assert.Equal(t, models.EventSessionEnded, ev.Type)
	assert.Equal(t, "sess_1", ev.SessionID)
	storageMock.AssertCalled(t, "ClearOutbox", "user_1", int64(1))
}

// TestHubReconnectUnderTraffic verifies delivery racing rapid connection
// replacement never panics: closing a replaced client must not tear down
// the channel concurrent sends still hold. The hub loop closes the old
// connection while this goroutine keeps delivering.
func TestHubReconnectUnderTraffic(t *testing.T) {
	hub, _, _, storageMock := newHubFixture(t)
	storageMock.On("GetUserByID", "user_1").Return(sharerUser("user_1"), nil)

	identity := models.Identity{UserID: "user_1", Roles: []string{models.RoleSharer}, Pseudonym: "anon-user_1"}
	for i := 0; i < 20000; i++ {
		hub.RegisterCh <- chathub.NewWebSocketClient(hub, identity, nil)
		hub.Deliver("user_1", models.Event{Type: models.EventQueueUpdate})
	}

	assert.True(t, hub.Connected("user_1"))
}

// TestHubSend_OfflineFallsBackToOutbox verifies durable events for offline
// users land in the outbox and go over pub/sub.
func TestHubSend_OfflineFallsBackToOutbox(t *testing.T) {
	hub, _, _, storageMock := newHubFixture(t)
	storageMock.On("EnqueueOutbox", "ghost", mock.Anything).Return(nil).Once()
	storageMock.On("PublishEvent", "ghost", mock.Anything).Return(nil).Twice()

	hub.Send("ghost", models.Event{Type: models.EventSessionEnded}, true)
	hub.Send("ghost", models.Event{Type: models.EventTyping}, false)

	storageMock.AssertExpectations(t)
	storageMock.AssertNumberOfCalls(t, "EnqueueOutbox", 1)
}

// TestHubHandleCommand_RoleGates verifies commands are checked against the
// caller's roles.
func TestHubHandleCommand_RoleGates(t *testing.T) {
	hub, _, _, storageMock := newHubFixture(t)
	storageMock.On("GetUserByID", mock.Anything).Return(sharerUser("user_1"), nil).Maybe()

	// A listener cannot join the matching queue
	listener := newMockClient("listener_1", models.RoleListener)
	register(t, hub, listener)
	hub.HandleCommand(listener, models.Command{Type: models.CmdJoinQueue})
	ev := listener.nextEvent()
	assert.Equal(t, models.EventError, ev.Type)

	// A sharer cannot change listener availability
	sharer := newMockClient("sharer_1", models.RoleSharer)
	register(t, hub, sharer)
	hub.HandleCommand(sharer, models.Command{Type: models.CmdStatusChange, Availability: models.AvailabilityAvailable})
	ev = sharer.nextEvent()
	assert.Equal(t, models.EventError, ev.Type)

	// Unknown commands are reported, not dropped
	hub.HandleCommand(sharer, models.Command{Type: "bogus"})
	ev = sharer.nextEvent()
	assert.Equal(t, models.EventError, ev.Type)
	assert.Contains(t, ev.Error, "bogus")
}

// TestHubHandleCommand_StatusChange verifies a connected listener can flip
// availability and a queued sharer hears about it.
func TestHubHandleCommand_StatusChange(t *testing.T) {
	hub, pool, _, storageMock := newHubFixture(t)
	storageMock.On("GetUserByID", "listener_1").Return(listenerUser("listener_1"), nil)

	listener := newMockClient("listener_1", models.RoleListener)
	register(t, hub, listener)

	hub.HandleCommand(listener, models.Command{Type: models.CmdStatusChange, Availability: models.AvailabilityAvailable})

	state, _ := pool.Get("listener_1")
	assert.Equal(t, models.AvailabilityAvailable, state.Availability)
}

// TestHubHandleCommand_FullChatFlow drives a complete exchange through the
// command surface: queue join, match, message, end.
func TestHubHandleCommand_FullChatFlow(t *testing.T) {
	hub, pool, _, storageMock := newHubFixture(t)
	storageMock.On("GetUserByID", "sharer_1").Return(sharerUser("sharer_1"), nil)
	storageMock.On("GetUserByID", "listener_1").Return(listenerUser("listener_1"), nil)
	storageMock.On("FinalizeSession", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	storageMock.On("IncrementListenerChats", mock.Anything).Return(nil).Maybe()

	listener := newMockClient("listener_1", models.RoleListener)
	sharer := newMockClient("sharer_1", models.RoleSharer)
	register(t, hub, listener)
	register(t, hub, sharer)

	hub.HandleCommand(listener, models.Command{Type: models.CmdStatusChange, Availability: models.AvailabilityAvailable})
	hub.HandleCommand(sharer, models.Command{Type: models.CmdJoinQueue, Preferences: models.MatchPreferences{Topic: "anxiety"}})

	matchEv := sharer.nextEvent()
	assert.Equal(t, models.EventMatchFound, matchEv.Type)
	sessionID := matchEv.SessionID
	assert.NotEmpty(t, sessionID)

	requestEv := listener.nextEvent()
	assert.Equal(t, models.EventChatRequest, requestEv.Type)
	assert.Equal(t, sessionID, requestEv.SessionID)

	hub.HandleCommand(sharer, models.Command{Type: models.CmdSendMessage, SessionID: sessionID, Content: "hello"})
	msgEv := listener.nextEvent()
	assert.Equal(t, models.EventMessageReceived, msgEv.Type)
	assert.Equal(t, "hello", msgEv.Content)
	assert.Equal(t, uint64(1), msgEv.Seq)

	hub.HandleCommand(listener, models.Command{Type: models.CmdEndChat, SessionID: sessionID})
	endEv := sharer.nextEvent()
	assert.Equal(t, models.EventSessionEnded, endEv.Type)

	state, _ := pool.Get("listener_1")
	assert.Equal(t, models.AvailabilityAvailable, state.Availability)
}

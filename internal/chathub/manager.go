package chathub

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"heartline/backend/internal/models"
	"heartline/backend/internal/storage"
)

// Hub owns the connection registry: one logical connection per user. It
// implements Dispatcher for the matcher, session manager and router, and
// dispatches inbound client commands to them.
type Hub struct {
	storage  storage.Storage
	pool     *Pool
	sessions *SessionManager
	matcher  *Matcher
	router   *MessageRouter

	RegisterCh   chan Client
	UnregisterCh chan Client

	mu      sync.RWMutex
	clients map[string]Client
}

// NewHub wires the hub to the core services and registers itself as their
// dispatcher.
func NewHub(s storage.Storage, pool *Pool, sessions *SessionManager, matcher *Matcher, router *MessageRouter) *Hub {
	h := &Hub{
		storage:      s,
		pool:         pool,
		sessions:     sessions,
		matcher:      matcher,
		router:       router,
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		clients:      make(map[string]Client),
	}
	sessions.SetDispatcher(h)
	matcher.SetDispatcher(h)
	router.SetDispatcher(h)
	return h
}

// Run is the hub's main loop, processing connection registrations.
func (h *Hub) Run() {
	log.Println("Hub started.")
	for {
		select {
		case client := <-h.RegisterCh:
			h.register(client)
		case client := <-h.UnregisterCh:
			h.unregister(client)
		}
	}
}

func (h *Hub) register(client Client) {
	userID := client.GetUserID()

	h.mu.Lock()
	if old, ok := h.clients[userID]; ok {
		// One logical connection per user: the newer one wins.
		old.Close()
	}
	h.clients[userID] = client
	h.mu.Unlock()

	// A reconnect within the grace window resumes the session transparently.
	h.sessions.OnReconnect(userID)

	// Listeners re-enter the pool with fresh capability metadata.
	if user, err := h.storage.GetUserByID(userID); err == nil && user.IsListener() {
		h.pool.Upsert(ListenerState{
			ID:         user.ID,
			Pseudonym:  user.Pseudonym,
			Topics:     user.ListenerTopics,
			Interests:  user.Interests,
			Languages:  user.Languages,
			Rating:     user.ListenerRating,
			TotalChats: user.ListenerTotalChats,
		})
	}

	// Replay whatever queued up while the user was offline, in order.
	h.router.FlushOutbox(userID, func(ev models.Event) bool {
		return h.Deliver(userID, ev)
	})

	log.Printf("Client registered: %s", userID)
}

func (h *Hub) unregister(client Client) {
	userID := client.GetUserID()

	h.mu.Lock()
	current, ok := h.clients[userID]
	if !ok || current != client {
		// A replacement connection already took over; nothing to tear down.
		h.mu.Unlock()
		return
	}
	delete(h.clients, userID)
	h.mu.Unlock()

	client.Close()
	h.matcher.Cancel(userID)
	h.sessions.OnDisconnect(userID)
	log.Printf("Client unregistered: %s", userID)
}

// Deliver pushes an event to a locally connected user. Returns false when
// the user is not connected to this node or their send buffer is full.
func (h *Hub) Deliver(userID string, ev models.Event) bool {
	h.mu.RLock()
	client, ok := h.clients[userID]
	h.mu.RUnlock()
	if !ok {
		return false
	}

	select {
	case client.GetSendChannel() <- ev:
		return true
	default:
		log.Printf("WARNING: Send buffer full for %s, dropping local delivery", userID)
		return false
	}
}

// Send implements Dispatcher. Local delivery first; otherwise the event
// goes over pub/sub for whichever node holds the connection, and durable
// events are additionally queued in the user's offline outbox. A user who
// turns out to be online elsewhere may later see the queued copy again on
// reconnect; delivery is at-least-once and clients de-duplicate by
// message id.
func (h *Hub) Send(targetID string, ev models.Event, durable bool) {
	if h.Deliver(targetID, ev) {
		return
	}

	if durable {
		payload, err := json.Marshal(ev)
		if err == nil {
			if err := h.storage.EnqueueOutbox(targetID, payload); err != nil {
				log.Printf("ERROR: Outbox enqueue for %s: %v", targetID, err)
			}
		}
	}
	if err := h.storage.PublishEvent(targetID, ev); err != nil {
		log.Printf("ERROR: Event publish for %s: %v", targetID, err)
	}
}

// HandleCommand dispatches one inbound client command.
func (h *Hub) HandleCommand(client Client, cmd models.Command) {
	identity := client.GetIdentity()
	userID := identity.UserID

	switch cmd.Type {
	case models.CmdJoinQueue:
		if !hasRole(identity.Roles, models.RoleSharer) {
			h.sendError(userID, cmd.SessionID, "only sharers can join the matching queue")
			return
		}
		h.matcher.Enqueue(models.MatchRequest{
			SharerID:    userID,
			Preferences: cmd.Preferences,
			CreatedAt:   time.Now(),
		})
		if h.matcher.Waiting(userID) {
			h.Deliver(userID, models.Event{Type: models.EventQueueUpdate, State: "waiting"})
		}

	case models.CmdCancelMatching:
		h.matcher.Cancel(userID)

	case models.CmdSendMessage:
		if _, err := h.router.Send(cmd.SessionID, userID, cmd.Content); err != nil {
			h.sendError(userID, cmd.SessionID, err.Error())
		}

	case models.CmdTyping:
		h.router.Typing(cmd.SessionID, userID)

	case models.CmdEndChat:
		sess, err := h.sessions.Get(cmd.SessionID)
		if err != nil {
			h.sendError(userID, cmd.SessionID, ErrSessionNotFound.Error())
			return
		}
		if !sess.Participant(userID) {
			h.sendError(userID, cmd.SessionID, ErrNotParticipant.Error())
			return
		}
		if err := h.sessions.End(cmd.SessionID, userID); err != nil {
			h.sendError(userID, cmd.SessionID, err.Error())
		}

	case models.CmdActivate:
		sess, err := h.sessions.Get(cmd.SessionID)
		if err != nil || !sess.Participant(userID) {
			h.sendError(userID, cmd.SessionID, ErrSessionNotFound.Error())
			return
		}
		if err := h.sessions.Activate(cmd.SessionID); err != nil {
			h.sendError(userID, cmd.SessionID, err.Error())
		}

	case models.CmdStatusChange:
		if !hasRole(identity.Roles, models.RoleListener) {
			h.sendError(userID, "", "user is not a listener")
			return
		}
		if err := h.pool.SetAvailability(userID, cmd.Availability); err != nil {
			h.sendError(userID, "", err.Error())
		}

	default:
		h.sendError(userID, cmd.SessionID, "unknown command: "+cmd.Type)
	}
}

// Connected reports whether the user holds a connection on this node.
func (h *Hub) Connected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

func (h *Hub) sendError(userID, sessionID, msg string) {
	h.Deliver(userID, models.Event{
		Type:      models.EventError,
		SessionID: sessionID,
		Error:     msg,
	})
}

func hasRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

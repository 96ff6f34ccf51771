package chathub

import (
	"log"
	"sort"
	"sync"
	"time"

	"heartline/backend/internal/config"
	"heartline/backend/internal/models"
	"heartline/backend/internal/storage"
)

// ScoredListener is a candidate with its computed match score, as returned
// to sharers by the preview route.
type ScoredListener struct {
	ListenerState
	Score int
}

// Matcher selects and atomically reserves listeners for sharers. Sharers
// with no candidate wait in the queue and are retried whenever the pool
// changes.
type Matcher struct {
	pool     *Pool
	sessions *SessionManager
	storage  storage.Storage
	notify   Dispatcher
	weights  config.MatchWeights

	mu    sync.Mutex
	queue map[string]models.MatchRequest

	stopCh chan struct{}
}

// NewMatcher constructor.
func NewMatcher(pool *Pool, sessions *SessionManager, s storage.Storage) *Matcher {
	return &Matcher{
		pool:     pool,
		sessions: sessions,
		storage:  s,
		weights:  config.DefaultMatchWeights,
		queue:    make(map[string]models.MatchRequest),
		stopCh:   make(chan struct{}),
	}
}

// SetDispatcher wires the event sink.
func (m *Matcher) SetDispatcher(d Dispatcher) { m.notify = d }

// Run drains the waiting queue: every pool transition to available, and a
// periodic re-scan, retries the queued sharers. Queued sharers also receive
// listener_status_changed nudges while they wait.
func (m *Matcher) Run() {
	log.Println("Matcher service started.")
	poolEvents := m.pool.Subscribe()
	ticker := time.NewTicker(config.MatcherWakeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case ev := <-poolEvents:
			m.nudgeWaiting(ev)
			if ev.State == models.AvailabilityAvailable {
				m.drainQueue()
			}
		case <-ticker.C:
			m.drainQueue()
		}
	}
}

// Stop terminates the Run loop.
func (m *Matcher) Stop() { close(m.stopCh) }

// Enqueue puts a sharer into the matching queue and immediately attempts a
// match. When no listener is available the request stays queued until
// matched, cancelled, or the sharer disconnects.
func (m *Matcher) Enqueue(req models.MatchRequest) {
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	m.mu.Lock()
	m.queue[req.SharerID] = req
	m.mu.Unlock()
	log.Printf("Match request queued: %s", req.SharerID)

	if _, _, err := m.RequestMatch(req.SharerID, req.Preferences); err == ErrAlreadyInSession || err == ErrUserBanned {
		m.Cancel(req.SharerID)
	}
}

// Cancel removes a sharer from the queue. A no-op if the request was
// already matched or never queued.
func (m *Matcher) Cancel(sharerID string) {
	m.mu.Lock()
	_, queued := m.queue[sharerID]
	delete(m.queue, sharerID)
	m.mu.Unlock()
	if queued {
		log.Printf("Match request cancelled: %s", sharerID)
	}
}

// Waiting reports whether the sharer currently sits in the queue.
func (m *Matcher) Waiting(sharerID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.queue[sharerID]
	return ok
}

// FindListeners returns the top-scored available candidates for a sharer
// without reserving anyone. Preview only; the reservation race is resolved
// later by RequestChat or RequestMatch.
func (m *Matcher) FindListeners(sharerID string, prefs models.MatchPreferences) []ScoredListener {
	return m.rank(sharerID, prefs, config.FindListenersLimit)
}

// RequestMatch finds, scores, and atomically reserves the best listener for
// the sharer. Losing a reservation race moves on to the next candidate, up
// to a bounded number of attempts.
func (m *Matcher) RequestMatch(sharerID string, prefs models.MatchPreferences) (models.ChatSession, ListenerState, error) {
	if banned, err := m.storage.IsUserBanned(sharerID); err == nil && banned {
		return models.ChatSession{}, ListenerState{}, ErrUserBanned
	}
	if _, busy := m.sessions.ActiveSessionFor(sharerID); busy {
		return models.ChatSession{}, ListenerState{}, ErrAlreadyInSession
	}

	ranked := m.rank(sharerID, prefs, 0)
	if len(ranked) == 0 {
		return models.ChatSession{}, ListenerState{}, ErrNoListenerAvailable
	}

	attempts := len(ranked)
	if attempts > config.MaxReserveAttempts {
		attempts = config.MaxReserveAttempts
	}
	for _, cand := range ranked[:attempts] {
		if !m.pool.Reserve(cand.ID, sharerID, "") {
			// Lost the race to a concurrent request; next candidate.
			continue
		}
		sess, err := m.sessions.Create(sharerID, cand.ID, prefs.Topic, prefs.Language)
		if err != nil {
			m.pool.Release(cand.ID)
			if err == ErrParticipantBusy {
				if _, busy := m.sessions.ActiveSessionFor(sharerID); busy {
					return models.ChatSession{}, ListenerState{}, ErrAlreadyInSession
				}
				continue
			}
			return models.ChatSession{}, ListenerState{}, err
		}
		m.pool.BindSession(cand.ID, sess.SessionID)
		m.announce(sess, cand)
		return sess, cand.ListenerState, nil
	}

	return models.ChatSession{}, ListenerState{}, ErrNoListenerAvailable
}

// RequestChat reserves one specific listener the sharer picked from the
// preview list.
func (m *Matcher) RequestChat(sharerID, listenerID, topic string) (models.ChatSession, ListenerState, error) {
	if banned, err := m.storage.IsUserBanned(sharerID); err == nil && banned {
		return models.ChatSession{}, ListenerState{}, ErrUserBanned
	}
	if _, busy := m.sessions.ActiveSessionFor(sharerID); busy {
		return models.ChatSession{}, ListenerState{}, ErrAlreadyInSession
	}
	cand, ok := m.pool.Get(listenerID)
	if !ok {
		return models.ChatSession{}, ListenerState{}, ErrUnknownListener
	}
	if !m.pool.Reserve(listenerID, sharerID, "") {
		return models.ChatSession{}, ListenerState{}, ErrNoListenerAvailable
	}
	sess, err := m.sessions.Create(sharerID, listenerID, topic, "")
	if err != nil {
		m.pool.Release(listenerID)
		if err == ErrParticipantBusy {
			return models.ChatSession{}, ListenerState{}, ErrAlreadyInSession
		}
		return models.ChatSession{}, ListenerState{}, err
	}
	m.pool.BindSession(listenerID, sess.SessionID)
	m.announce(sess, ScoredListener{ListenerState: cand})
	return sess, cand, nil
}

// rank returns scored candidates, best first. limit == 0 returns all.
func (m *Matcher) rank(sharerID string, prefs models.MatchPreferences, limit int) []ScoredListener {
	candidates := m.pool.Candidates(prefs)
	if len(candidates) == 0 {
		return nil
	}

	exclude := map[string]struct{}{sharerID: {}}
	recent, err := m.storage.RecentPartnerIDs(sharerID, time.Now().Add(-config.RecentPartnerWindow))
	if err != nil {
		log.Printf("ERROR: Recent-partner lookup for %s: %v", sharerID, err)
	}
	for _, id := range recent {
		exclude[id] = struct{}{}
	}

	ranked := make([]ScoredListener, 0, len(candidates))
	for _, cand := range candidates {
		if _, skip := exclude[cand.ID]; skip {
			continue
		}
		ranked = append(ranked, ScoredListener{
			ListenerState: cand,
			Score:         m.score(cand, prefs),
		})
	}

	// Ties go to the listener idle longest, so the same top-rated listener
	// is not repeatedly slammed.
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].AvailableSince.Before(ranked[j].AvailableSince)
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// score computes the weighted sum for one candidate.
func (m *Matcher) score(l ListenerState, prefs models.MatchPreferences) int {
	w := m.weights
	score := float64(w.Base)

	if prefs.Topic != "" {
		if containsFold(l.Topics, prefs.Topic) {
			score += float64(w.TopicExact)
		} else if containsFold(l.Interests, prefs.Topic) {
			score += float64(w.TopicInterest)
		}
	}
	if prefs.Language != "" && contains(l.Languages, prefs.Language) {
		score += float64(w.Language)
	}

	ratingBonus := (l.Rating - w.RatingBaseline) * w.RatingPerPoint
	if ratingBonus > 0 {
		score += ratingBonus
	}

	experience := float64(l.TotalChats) / w.ExperienceDiv
	if experience > w.ExperienceCap {
		experience = w.ExperienceCap
	}
	score += experience

	return int(score)
}

// announce notifies both parties of the new pending session.
func (m *Matcher) announce(sess models.ChatSession, cand ScoredListener) {
	m.Cancel(sess.SharerID)

	if m.notify == nil {
		return
	}
	m.notify.Send(sess.SharerID, models.Event{
		Type:          models.EventMatchFound,
		SessionID:     sess.SessionID,
		PeerPseudonym: cand.Pseudonym,
		Topic:         sess.Topic,
	}, false)

	sharerPseudonym := ""
	if sharer, err := m.storage.GetUserByID(sess.SharerID); err == nil {
		sharerPseudonym = sharer.Pseudonym
	}
	m.notify.Send(sess.ListenerID, models.Event{
		Type:          models.EventChatRequest,
		SessionID:     sess.SessionID,
		PeerPseudonym: sharerPseudonym,
		Topic:         sess.Topic,
	}, false)

	log.Printf("Match made: sharer=%s listener=%s session=%s", sess.SharerID, cand.ID, sess.SessionID)
}

// nudgeWaiting relays a pool transition to every queued sharer.
func (m *Matcher) nudgeWaiting(ev PoolEvent) {
	if m.notify == nil {
		return
	}
	m.mu.Lock()
	waiting := make([]string, 0, len(m.queue))
	for sharerID := range m.queue {
		waiting = append(waiting, sharerID)
	}
	m.mu.Unlock()

	for _, sharerID := range waiting {
		m.notify.Send(sharerID, models.Event{
			Type:       models.EventListenerStatus,
			ListenerID: ev.ListenerID,
			State:      ev.State,
		}, false)
	}
}

// drainQueue retries queued requests, oldest first.
func (m *Matcher) drainQueue() {
	m.mu.Lock()
	pending := make([]models.MatchRequest, 0, len(m.queue))
	for _, req := range m.queue {
		pending = append(pending, req)
	}
	m.mu.Unlock()
	if len(pending) == 0 {
		return
	}

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})

	for _, req := range pending {
		if !m.Waiting(req.SharerID) {
			continue
		}
		if _, _, err := m.RequestMatch(req.SharerID, req.Preferences); err == nil {
			m.Cancel(req.SharerID)
		} else if err == ErrAlreadyInSession || err == ErrUserBanned {
			m.Cancel(req.SharerID)
		}
	}
}

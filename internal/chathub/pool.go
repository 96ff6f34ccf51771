package chathub

import (
	"hash/fnv"
	"log"
	"strings"
	"sync"
	"time"

	"heartline/backend/internal/models"
	"heartline/backend/internal/storage"
)

const poolShardCount = 32

// ListenerState is the pool's view of one listener. Values returned from the
// pool are copies; the pool owns the live records.
type ListenerState struct {
	ID         string
	Pseudonym  string
	Topics     []string
	Interests  []string
	Languages  []string
	Rating     float64
	TotalChats int

	Availability string
	// ReservedBy and SessionID bind an in_chat listener to exactly one
	// active session.
	ReservedBy string
	SessionID  string
	// AvailableSince orders the longest-idle fairness tie-break.
	AvailableSince time.Time
}

// PoolEvent is emitted on every availability transition.
type PoolEvent struct {
	ListenerID string
	State      string
}

type poolShard struct {
	mu        sync.Mutex
	listeners map[string]*ListenerState
}

// Pool tracks listener availability. State is sharded by listener ID with a
// per-shard mutex, so reservations on unrelated listeners never contend.
// Reserve is the only path into in_chat and Release the only path out.
type Pool struct {
	shards [poolShardCount]*poolShard

	storage storage.Storage

	subMu sync.RWMutex
	subs  []chan PoolEvent
}

// NewPool creates an empty pool.
func NewPool(s storage.Storage) *Pool {
	p := &Pool{storage: s}
	for i := range p.shards {
		p.shards[i] = &poolShard{listeners: make(map[string]*ListenerState)}
	}
	return p
}

func (p *Pool) shardFor(listenerID string) *poolShard {
	h := fnv.New32a()
	h.Write([]byte(listenerID))
	return p.shards[h.Sum32()%poolShardCount]
}

// Load seeds the pool from persisted listener rows. Rows persisted as
// in_chat load as available; session recovery re-reserves the ones that
// still belong to a live session.
func (p *Pool) Load() error {
	listeners, err := p.storage.FindListeners()
	if err != nil {
		return err
	}
	for i := range listeners {
		l := &listeners[i]
		state := l.ListenerAvailability
		if state == "" || state == models.AvailabilityInChat {
			state = models.AvailabilityAvailable
		}
		p.Upsert(ListenerState{
			ID:           l.ID,
			Pseudonym:    l.Pseudonym,
			Topics:       l.ListenerTopics,
			Interests:    l.Interests,
			Languages:    l.Languages,
			Rating:       l.ListenerRating,
			TotalChats:   l.ListenerTotalChats,
			Availability: state,
		})
	}
	log.Printf("Listener pool loaded: %d listeners", len(listeners))
	return nil
}

// Upsert registers a listener or refreshes its capability metadata. An
// existing reservation is never disturbed.
func (p *Pool) Upsert(l ListenerState) {
	shard := p.shardFor(l.ID)
	shard.mu.Lock()
	existing, ok := shard.listeners[l.ID]
	if ok {
		existing.Pseudonym = l.Pseudonym
		existing.Topics = l.Topics
		existing.Interests = l.Interests
		existing.Languages = l.Languages
		existing.Rating = l.Rating
		existing.TotalChats = l.TotalChats
		shard.mu.Unlock()
		return
	}
	if l.Availability == "" {
		l.Availability = models.AvailabilityUnavailable
	}
	if l.AvailableSince.IsZero() {
		l.AvailableSince = time.Now()
	}
	cp := l
	shard.listeners[l.ID] = &cp
	shard.mu.Unlock()
}

// Get returns a copy of the listener's state.
func (p *Pool) Get(listenerID string) (ListenerState, bool) {
	shard := p.shardFor(listenerID)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	l, ok := shard.listeners[listenerID]
	if !ok {
		return ListenerState{}, false
	}
	return *l, true
}

// SetAvailability applies a listener-initiated availability change. The
// session manager, not the listener, owns in_chat: self-setting it, or
// leaving it while a session still holds the reservation, is rejected.
func (p *Pool) SetAvailability(listenerID, state string) error {
	if state != models.AvailabilityAvailable && state != models.AvailabilityUnavailable {
		return ErrInvalidTransition
	}

	shard := p.shardFor(listenerID)
	shard.mu.Lock()
	l, ok := shard.listeners[listenerID]
	if !ok {
		shard.mu.Unlock()
		return ErrUnknownListener
	}
	if l.Availability == models.AvailabilityInChat {
		shard.mu.Unlock()
		return ErrInvalidTransition
	}
	if l.Availability == state {
		shard.mu.Unlock()
		return nil
	}
	l.Availability = state
	if state == models.AvailabilityAvailable {
		l.AvailableSince = time.Now()
	}
	shard.mu.Unlock()

	p.persist(listenerID, state)
	p.notify(PoolEvent{ListenerID: listenerID, State: state})
	return nil
}

// Reserve atomically claims an available listener for a specific sharer.
// The compare-and-swap under the shard lock is what makes concurrent match
// attempts safe: exactly one caller wins, the rest see false.
func (p *Pool) Reserve(listenerID, sharerID, sessionID string) bool {
	shard := p.shardFor(listenerID)
	shard.mu.Lock()
	l, ok := shard.listeners[listenerID]
	if !ok || l.Availability != models.AvailabilityAvailable {
		shard.mu.Unlock()
		return false
	}
	l.Availability = models.AvailabilityInChat
	l.ReservedBy = sharerID
	l.SessionID = sessionID
	shard.mu.Unlock()

	p.persist(listenerID, models.AvailabilityInChat)
	p.notify(PoolEvent{ListenerID: listenerID, State: models.AvailabilityInChat})
	return true
}

// BindSession records the session id on an already-held reservation, for
// reservations made before the session row exists.
func (p *Pool) BindSession(listenerID, sessionID string) {
	shard := p.shardFor(listenerID)
	shard.mu.Lock()
	if l, ok := shard.listeners[listenerID]; ok && l.Availability == models.AvailabilityInChat {
		l.SessionID = sessionID
	}
	shard.mu.Unlock()
}

// Release returns a reserved listener to available. Called by the session
// manager on terminal transitions only; releasing a listener that is not
// in_chat is a no-op, which keeps End/MarkAbandoned idempotent.
func (p *Pool) Release(listenerID string) {
	shard := p.shardFor(listenerID)
	shard.mu.Lock()
	l, ok := shard.listeners[listenerID]
	if !ok || l.Availability != models.AvailabilityInChat {
		shard.mu.Unlock()
		return
	}
	l.Availability = models.AvailabilityAvailable
	l.ReservedBy = ""
	l.SessionID = ""
	l.AvailableSince = time.Now()
	shard.mu.Unlock()

	p.persist(listenerID, models.AvailabilityAvailable)
	p.notify(PoolEvent{ListenerID: listenerID, State: models.AvailabilityAvailable})
}

// UpdateStats refreshes the rating and completed-chat counter after
// feedback or session close.
func (p *Pool) UpdateStats(listenerID string, rating float64, totalChats int) {
	shard := p.shardFor(listenerID)
	shard.mu.Lock()
	if l, ok := shard.listeners[listenerID]; ok {
		l.Rating = rating
		l.TotalChats = totalChats
	}
	shard.mu.Unlock()
}

// Candidates returns a snapshot of available listeners whose capability
// sets intersect the filter; an empty filter matches all. The snapshot does
// not block writers: a returned listener may become unavailable immediately
// after, which the matcher resolves with Reserve.
func (p *Pool) Candidates(filter models.MatchPreferences) []ListenerState {
	var out []ListenerState
	for _, shard := range p.shards {
		shard.mu.Lock()
		for _, l := range shard.listeners {
			if l.Availability != models.AvailabilityAvailable {
				continue
			}
			if !matchesFilter(l, filter) {
				continue
			}
			out = append(out, *l)
		}
		shard.mu.Unlock()
	}
	return out
}

func matchesFilter(l *ListenerState, filter models.MatchPreferences) bool {
	if filter.Language != "" && !contains(l.Languages, filter.Language) {
		return false
	}
	if filter.MinRating > 0 && l.Rating < filter.MinRating {
		return false
	}
	if filter.Topic != "" &&
		!containsFold(l.Topics, filter.Topic) && !containsFold(l.Interests, filter.Topic) {
		return false
	}
	return true
}

// Subscribe returns a channel receiving every pool transition. Slow
// subscribers drop events rather than block state changes.
func (p *Pool) Subscribe() <-chan PoolEvent {
	ch := make(chan PoolEvent, 64)
	p.subMu.Lock()
	p.subs = append(p.subs, ch)
	p.subMu.Unlock()
	return ch
}

func (p *Pool) notify(ev PoolEvent) {
	p.subMu.RLock()
	defer p.subMu.RUnlock()
	for _, ch := range p.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// persist mirrors a transition to the users table and Redis, best effort.
func (p *Pool) persist(listenerID, state string) {
	if p.storage == nil {
		return
	}
	if err := p.storage.UpdateListenerAvailability(listenerID, state); err != nil {
		log.Printf("ERROR: Failed to persist availability for %s: %v", listenerID, err)
	}
	if err := p.storage.MirrorAvailability(listenerID, state); err != nil {
		log.Printf("ERROR: Failed to mirror availability for %s: %v", listenerID, err)
	}
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func containsFold(set []string, v string) bool {
	for _, s := range set {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

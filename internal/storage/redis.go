package storage

import (
	"encoding/json"
	"errors"
	"time"

	"heartline/backend/internal/models"

	"github.com/redis/go-redis/v9"
)

// EventsChannel is the pub/sub channel carrying session events between
// server nodes.
const EventsChannel = "heartline:events"

func banKey(userID string) string    { return "ban:" + userID }
func outboxKey(userID string) string { return "outbox:" + userID }
func availKey(listenerID string) string {
	return "listener:avail:" + listenerID
}

// IsUserBanned checks the ban flag in Redis.
func (s *Service) IsUserBanned(userID string) (bool, error) {
	status, err := s.Redis.Get(s.Ctx, banKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return status != "", nil
}

// BanUser sets the ban flag, optionally expiring. d <= 0 bans indefinitely.
func (s *Service) BanUser(userID string, d time.Duration) error {
	if d <= 0 {
		return s.Redis.Set(s.Ctx, banKey(userID), "banned", 0).Err()
	}
	return s.Redis.Set(s.Ctx, banKey(userID), "banned", d).Err()
}

// UnbanUser clears the ban flag.
func (s *Service) UnbanUser(userID string) error {
	return s.Redis.Del(s.Ctx, banKey(userID)).Err()
}

// PublishEvent broadcasts a targeted session event to every server node;
// the node holding the target's connection delivers it.
func (s *Service) PublishEvent(targetID string, ev models.Event) error {
	payload, err := json.Marshal(models.RemoteEvent{TargetID: targetID, Event: ev})
	if err != nil {
		return err
	}
	return s.Redis.Publish(s.Ctx, EventsChannel, payload).Err()
}

// SubscribeEvents subscribes to the cross-node event channel.
func (s *Service) SubscribeEvents() *redis.PubSub {
	return s.Redis.Subscribe(s.Ctx, EventsChannel)
}

// EnqueueOutbox appends a serialized event to the user's durable offline
// queue. Entries survive until the user reconnects and the flush completes.
func (s *Service) EnqueueOutbox(userID string, payload []byte) error {
	return s.Redis.RPush(s.Ctx, outboxKey(userID), payload).Err()
}

// PeekOutbox returns the user's queued events in enqueue order without
// removing them. The caller clears the queue only after delivery succeeds,
// so a crash in between re-delivers rather than drops.
func (s *Service) PeekOutbox(userID string) ([]string, error) {
	entries, err := s.Redis.LRange(s.Ctx, outboxKey(userID), 0, -1).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return entries, err
}

// ClearOutbox drops the first n queued events after a successful flush.
// Entries pushed by another node during the flush stay queued.
func (s *Service) ClearOutbox(userID string, n int64) error {
	return s.Redis.LTrim(s.Ctx, outboxKey(userID), n, -1).Err()
}

// MirrorAvailability copies a listener's pool state into Redis so other
// nodes can read it without owning the pool shard.
func (s *Service) MirrorAvailability(listenerID, state string) error {
	return s.Redis.Set(s.Ctx, availKey(listenerID), state, 0).Err()
}

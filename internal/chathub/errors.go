package chathub

import (
	"errors"
	"fmt"
)

// Typed failures surfaced to callers. Anything transient is retried
// internally with bounded attempts; these are what remains.
var (
	// ErrNoListenerAvailable is recoverable: the caller may wait in the
	// queue or retry later.
	ErrNoListenerAvailable = errors.New("no listener available")

	// ErrAlreadyInSession rejects a match request from a sharer who already
	// owns a non-terminal session.
	ErrAlreadyInSession = errors.New("requester already in a session")

	// ErrParticipantBusy rejects session creation when either party already
	// owns a non-terminal session.
	ErrParticipantBusy = errors.New("participant already in a session")

	// ErrSessionNotFound means the session id does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionNotActive means stale client state; the client should
	// resync its active session.
	ErrSessionNotActive = errors.New("session is not active")

	// ErrNotParticipant rejects operations from users outside the session.
	ErrNotParticipant = errors.New("not a session participant")

	// ErrInvalidTransition is a protocol error: an availability change the
	// listener is not allowed to make.
	ErrInvalidTransition = errors.New("invalid availability transition")

	// ErrUnknownListener means the listener is not registered in the pool.
	ErrUnknownListener = errors.New("listener not in pool")

	// ErrMessageTooLong rejects oversized message content.
	ErrMessageTooLong = errors.New("message too long")

	// ErrUserBanned rejects match requests from banned sharers.
	ErrUserBanned = errors.New("user is banned")
)

// BlockedError rejects a message the moderation filter refused to relay.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("message blocked: %s", e.Reason)
}

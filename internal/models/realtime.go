package models

import "time"

// Server-pushed event types.
const (
	EventMatchFound      = "match_found"
	EventChatRequest     = "chat_request"
	EventMessageReceived = "message_received"
	EventTyping          = "typing"
	EventSessionEnded    = "session_ended"
	EventListenerStatus  = "listener_status_changed"
	EventQueueUpdate     = "queue_update"
	EventError           = "error"
)

// Client command types.
const (
	CmdJoinQueue      = "join_matching_queue"
	CmdCancelMatching = "cancel_matching"
	CmdSendMessage    = "send_message"
	CmdTyping         = "typing"
	CmdEndChat        = "end_chat"
	CmdStatusChange   = "status_change"
	CmdActivate       = "activate"
)

// Identity is the verified identity supplied by the gateway on connection
// registration. The core treats it as opaque and trusted.
type Identity struct {
	UserID    string   `json:"user_id"`
	Roles     []string `json:"roles"`
	Pseudonym string   `json:"pseudonym"`
}

// Event is the single server-to-client wire unit. Type selects which of the
// optional fields are populated.
type Event struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`

	// message_received
	MessageID       string     `json:"message_id,omitempty"`
	Seq             uint64     `json:"seq,omitempty"`
	SenderPseudonym string     `json:"sender_pseudonym,omitempty"`
	Content         string     `json:"content,omitempty"`
	SentAt          *time.Time `json:"sent_at,omitempty"`

	// match_found / chat_request
	PeerPseudonym string `json:"peer_pseudonym,omitempty"`
	Topic         string `json:"topic,omitempty"`

	// session_ended
	Reason string `json:"reason,omitempty"`

	// listener_status_changed
	ListenerID string `json:"listener_id,omitempty"`
	State      string `json:"state,omitempty"`

	// error
	Error string `json:"error,omitempty"`
}

// Command is the single client-to-server wire unit.
type Command struct {
	Type         string           `json:"type"`
	SessionID    string           `json:"session_id,omitempty"`
	Content      string           `json:"content,omitempty"`
	Availability string           `json:"availability,omitempty"`
	Preferences  MatchPreferences `json:"preferences,omitempty"`
}

// MatchPreferences are the sharer's optional match filters.
type MatchPreferences struct {
	Topic     string  `json:"topic,omitempty"`
	Language  string  `json:"language,omitempty"`
	MinRating float64 `json:"min_rating,omitempty"`
}

// RemoteEvent is the envelope carried over the cross-node pub/sub channel:
// an event addressed to one user, deliverable by whichever node holds their
// connection.
type RemoteEvent struct {
	TargetID string `json:"target_id"`
	Event    Event  `json:"event"`
}

// MatchRequest is a pending request in the matching queue. It lives only
// until matched, cancelled, or the requester disconnects.
type MatchRequest struct {
	SharerID    string
	Preferences MatchPreferences
	CreatedAt   time.Time
}

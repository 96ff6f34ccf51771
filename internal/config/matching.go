package config

import "time"

// MatchWeights holds the scoring policy for ranking listener candidates.
// The values are tunable; the defaults mirror the numbers the product team
// settled on, not a law of nature.
type MatchWeights struct {
	Base            int
	TopicExact      int     // preferred topic is one of the listener's topics
	TopicInterest   int     // preferred topic only appears in the listener's interests
	Language        int     // preferred language is spoken by the listener
	RatingPerPoint  float64 // bonus per rating point above RatingBaseline, never negative
	RatingBaseline  float64
	ExperienceDiv   float64 // completed chats divided by this...
	ExperienceCap   float64 // ...capped here
}

// DefaultMatchWeights is the active scoring policy.
var DefaultMatchWeights = MatchWeights{
	Base:           100,
	TopicExact:     50,
	TopicInterest:  25,
	Language:       30,
	RatingPerPoint: 10,
	RatingBaseline: 3.0,
	ExperienceDiv:  10,
	ExperienceCap:  20,
}

const (
	// Matching
	MaxReserveAttempts   = 3               // reservation retries before giving up
	FindListenersLimit   = 3               // candidates returned by the preview route
	RecentPartnerWindow  = 24 * time.Hour  // skip listeners chatted with this recently
	MatcherWakeInterval  = 2 * time.Second // re-scan cadence for the waiting queue

	// Session lifecycle
	PendingTimeout = 2 * time.Minute  // pending with no activation -> abandoned
	IdleTimeout    = 30 * time.Minute // active with no messages -> abandoned
	ReconnectGrace = 60 * time.Second // disconnect longer than this -> abandoned

	// Messages
	MaxMessageLength = 2000
	RetentionWindow  = 24 * time.Hour // messages older than this are hard-deleted
	SweepInterval    = time.Minute

	// Feedback
	MaxFeedbackComment = 500
	MaxReportLength    = 1000
)

// Package moderation screens message content before the router relays it.
// Blocked content never reaches the peer; flagged content is delivered but
// marked for the moderation workflow.
package moderation

import (
	"regexp"
	"strings"
)

// Moderation outcomes.
const (
	StatusApproved = "approved"
	StatusBlocked  = "blocked"
	StatusFlagged  = "flagged"
)

type blockedPattern struct {
	re     *regexp.Regexp
	reason string
}

// Service holds the compiled pattern tables.
type Service struct {
	blocked []blockedPattern
	flagged []string
}

// NewService compiles the default pattern tables.
func NewService() *Service {
	compile := func(expr string) *regexp.Regexp { return regexp.MustCompile(`(?i)` + expr) }
	return &Service{
		blocked: []blockedPattern{
			{compile(`\b\d{3}[-.]?\d{3}[-.]?\d{4}\b`), "phone number"},
			{compile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), "email address"},
			{compile(`\b(whatsapp|telegram|snapchat|instagram|facebook|twitter)\s*[@:]?\s*\w+`), "social media contact"},
			{compile(`\b(meet me|my address|come to|visit me)\b`), "meeting request"},
		},
		flagged: []string{
			"kill myself",
			"end it all",
			"suicide",
			"hurt myself",
			"can't go on",
			"want to die",
			"better off dead",
		},
	}
}

// Moderate classifies content. The returned reason is only set for blocked
// and flagged outcomes.
func (s *Service) Moderate(content string) (status, reason string) {
	if strings.TrimSpace(content) == "" {
		return StatusBlocked, "empty message"
	}

	for _, p := range s.blocked {
		if p.re.MatchString(content) {
			return StatusBlocked, "contains " + p.reason
		}
	}

	lower := strings.ToLower(content)
	for _, kw := range s.flagged {
		if strings.Contains(lower, kw) {
			return StatusFlagged, "concerning content: " + kw
		}
	}

	return StatusApproved, ""
}

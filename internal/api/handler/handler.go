package handler

import (
	"heartline/backend/internal/chathub"
	"heartline/backend/internal/storage"
	"heartline/backend/internal/telegram"
)

// Handler carries the core services the HTTP boundary fronts.
type Handler struct {
	Hub      *chathub.Hub
	Pool     *chathub.Pool
	Matcher  *chathub.Matcher
	Sessions *chathub.SessionManager
	Router   *chathub.MessageRouter
	Storage  storage.Storage
	Notifier *telegram.Notifier

	JWTSecret []byte
}

// NewHandler constructor. notifier may be nil when no admin chat is wired.
func NewHandler(
	hub *chathub.Hub,
	pool *chathub.Pool,
	matcher *chathub.Matcher,
	sessions *chathub.SessionManager,
	router *chathub.MessageRouter,
	s storage.Storage,
	notifier *telegram.Notifier,
	jwtSecret []byte,
) *Handler {
	return &Handler{
		Hub:       hub,
		Pool:      pool,
		Matcher:   matcher,
		Sessions:  sessions,
		Router:    router,
		Storage:   s,
		Notifier:  notifier,
		JWTSecret: jwtSecret,
	}
}

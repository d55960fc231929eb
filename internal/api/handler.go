package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"employee-chat-backend/internal/auth"
	"employee-chat-backend/internal/relay"
	"employee-chat-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store     store.Store
	webpush   *webpush.Options
	tokens    auth.TokenService
	relay     *relay.Router
	startedAt time.Time
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, webpushOptions *webpush.Options, tokens auth.TokenService, relayRouter *relay.Router) *Handler {
	return &Handler{
		store:     s,
		webpush:   webpushOptions,
		tokens:    tokens,
		relay:     relayRouter,
		startedAt: time.Now(),
	}
}

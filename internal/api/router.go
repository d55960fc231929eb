package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"employee-chat-backend/config"
	"employee-chat-backend/internal/auth"
	"employee-chat-backend/internal/mw"
	"employee-chat-backend/internal/relay"
	"employee-chat-backend/internal/store"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.ServerConfig, s store.Store, webpushOptions *webpush.Options, tokens auth.TokenService, relayRouter *relay.Router) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(s, webpushOptions, tokens, relayRouter)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	requireAuth := mw.Auth(tokens)

	// Liveness surface; unauthenticated and unthrottled for monitoring.
	r.GET("/api/health", handler.GetHealth)

	// Websocket upgrade; the token rides in the query string because
	// browsers cannot set headers on websocket connects.
	r.GET("/ws", handler.ServeWS)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/vapid_public_key", caching, handler.GetVAPIDPublicKey)

		subs := api.Group("/subscriptions")
		subs.Use(requireAuth)
		{
			subs.GET("", handler.GetSubscriptions)
			subs.PUT("", handler.PutSubscription)
			subs.DELETE("", handler.DeleteSubscription)
		}
	}

	return r
}

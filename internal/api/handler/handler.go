// Package handler is the HTTP and websocket surface of the hub.
package handler

import (
	"randomchat/backend/internal/api/middleware"
	"randomchat/backend/internal/chathub"
	"randomchat/backend/internal/config"
	"randomchat/backend/internal/localization"
	"randomchat/backend/internal/storage"

	"github.com/gin-gonic/gin"
)

// Handler містить посилання на ChatHub
type Handler struct {
	Hub     *chathub.ManagerService
	Storage storage.Storage
	JWT     *config.JWTConfig
	Loc     *localization.Localizer
}

// NewHandler creates a Handler. st may be nil; anonymous users are then not
// recorded.
func NewHandler(hub *chathub.ManagerService, st storage.Storage, jwtCfg *config.JWTConfig, loc *localization.Localizer) *Handler {
	if loc == nil {
		loc = localization.Bundled()
	}
	return &Handler{Hub: hub, Storage: st, JWT: jwtCfg, Loc: loc}
}

// Routes mounts the API on r. limiter may be nil.
func (h *Handler) Routes(r gin.IRouter, limiter *middleware.InMemoryRateLimiter) {
	public := r.Group("/")
	if limiter != nil {
		public.Use(middleware.RateLimit(limiter))
	}
	public.GET("/anonid", h.GetAnonID)

	authed := r.Group("/")
	authed.Use(middleware.AuthRequired(h.JWT))

	// typing is sent per keystroke and gets its own bucket
	typing := authed.Group("/")
	api := authed.Group("/")
	if limiter != nil {
		typing.Use(middleware.RateLimitScope(limiter, "typing"))
		api.Use(middleware.RateLimit(limiter))
	}
	typing.PUT("/sessions/:id/typing", h.SetTyping)

	api.GET("/ws", h.ServeWebSocket)

	api.POST("/presence/heartbeat", h.Heartbeat)
	api.GET("/presence/online", h.OnlineCount)
	api.GET("/presence/:userId", h.GetPresence)

	api.POST("/search", h.StartSearch)
	api.DELETE("/search", h.CancelSearch)

	sessions := api.Group("/sessions")
	sessions.GET("/current", h.CurrentSession)
	sessions.DELETE("/:id", h.EndSession)
	sessions.POST("/:id/offer", h.PublishOffer)
	sessions.POST("/:id/answer", h.PublishAnswer)
	sessions.POST("/:id/candidates", h.AppendCandidate)
	sessions.GET("/:id/signaling", h.Signaling)
	sessions.GET("/:id/observe", h.ObserveSession)
	sessions.GET("/:id/messages", h.Messages)
	sessions.POST("/:id/messages", h.SendMessage)
	sessions.GET("/:id/history", h.History)
}

// NewRouter builds a gin engine with the API mounted.
func NewRouter(h *Handler, limiter *middleware.InMemoryRateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	h.Routes(r, limiter)
	return r
}

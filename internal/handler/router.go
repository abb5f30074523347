package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wooogler/swag/internal/cache"
	"github.com/wooogler/swag/internal/config"
	"github.com/wooogler/swag/internal/limiter"
	"github.com/wooogler/swag/internal/middleware"
	"github.com/wooogler/swag/internal/store"
)

// NewRouter wires every route. rc and lim may be nil; caching and rate
// limiting are then skipped.
func NewRouter(cfg *config.Config, st *store.Store, rc *cache.RedisCache, lim *limiter.Limiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", cfg.FrontendURL)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})
	r.Use(middleware.MetricsMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	eventsHandler := NewEventsHandler(st, rc)
	sessionHandler := NewSessionHandler(st)
	conversationHandler := NewConversationHandler(st, rc)
	replayHandler := NewReplayHandler(st, rc, cfg.Idle, cfg.ReplayCacheTTL)

	api := r.Group("/api")
	{
		// Student writing surface
		api.POST("/events", middleware.RateLimit(lim, "events"), eventsHandler.Save)
		api.POST("/events/submissions", eventsHandler.Submissions)

		api.POST("/sessions/start", middleware.RateLimit(lim, "sessions"), sessionHandler.Start)
		api.GET("/sessions/:id", sessionHandler.Get)
		api.GET("/sessions/:id/conversations", conversationHandler.List)

		api.POST("/conversations", middleware.RateLimit(lim, "chat"), conversationHandler.Create)
		api.PATCH("/conversations/:id", conversationHandler.Rename)
		api.POST("/conversations/:id/messages", middleware.RateLimit(lim, "chat"), conversationHandler.AppendMessage)
		api.GET("/conversations/:id/messages", conversationHandler.ListMessages)

		// Instructor views
		instructor := api.Group("", middleware.InstructorAuth(cfg.JWTSecret))
		instructor.GET("/replay/:sessionId", replayHandler.Get)
		instructor.GET("/replay/:sessionId/frame", replayHandler.Frame)
		instructor.DELETE("/replay/:sessionId", replayHandler.Delete)
		instructor.GET("/summary/:sessionId", replayHandler.Summary)
		instructor.GET("/export/:sessionId", replayHandler.Export)
	}

	return r
}

// RateLimits builds the per-action limits used by NewRouter's routes.
func RateLimits(cfg *config.Config) map[string]limiter.ActionConfig {
	return map[string]limiter.ActionConfig{
		"events":   {Limit: cfg.EventsRateLimit, Window: cfg.EventsRateWindow},
		"sessions": {Limit: 30, Window: cfg.EventsRateWindow},
		"chat":     {Limit: 60, Window: cfg.EventsRateWindow},
	}
}

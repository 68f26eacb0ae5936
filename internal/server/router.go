package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"botrelay/internal/auth"
	"botrelay/internal/controlplane"
	"botrelay/internal/handler"
	"botrelay/internal/hub"
	"botrelay/internal/middleware"
)

type Deps struct {
	Service     *controlplane.Service
	Hub         *hub.Hub
	Link        handler.LinkStatus
	TokenConfig auth.TokenConfig
	// TrialLimiter throttles the trial endpoints. Nil means 30 per minute.
	TrialLimiter *middleware.RateLimiter
}

func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())

	healthHandler := &handler.HealthHandler{Link: deps.Link}
	r.GET("/health", healthHandler.Health)

	trialLimiter := deps.TrialLimiter
	if trialLimiter == nil {
		trialLimiter = middleware.NewRateLimiter(30, time.Minute)
	}

	api := r.Group("/api")
	api.Use(middleware.RequireAuth(deps.TokenConfig))

	botHandler := &handler.BotHandler{Service: deps.Service}
	api.POST("/bots/trial", middleware.RateLimitMiddleware(trialLimiter), botHandler.StartTrial)
	api.POST("/bots/trial/message", middleware.RateLimitMiddleware(trialLimiter), botHandler.SendTrialMessage)
	api.GET("/bots", botHandler.List)
	api.POST("/bots", botHandler.Add)

	adminHandler := &handler.AdminHandler{Service: deps.Service}
	admin := api.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	admin.GET("/bots", adminHandler.List)
	admin.POST("/bots/:id/authorize", adminHandler.Authorize)
	admin.POST("/bots/:id/toggle", adminHandler.Toggle)
	admin.DELETE("/bots/:id", adminHandler.Delete)

	wsHandler := &handler.WebSocketHandler{Hub: deps.Hub, TokenConfig: deps.TokenConfig}
	r.GET("/ws", wsHandler.Serve)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})

	return r
}

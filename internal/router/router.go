package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizrunner/internal/config"
	"github.com/stemsi/quizrunner/internal/handler"
	"github.com/stemsi/quizrunner/internal/middleware"
	"github.com/stemsi/quizrunner/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	QuizSession *handler.QuizSessionHandler
	WS          *handler.WSHandler
	System      *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// startLimiter may be nil to disable the limit on starting attempts.
func SetupRouter(
	auth middleware.TokenValidator,
	handlers *Handlers,
	cfg *config.Config,
	startLimiter *middleware.RateLimiter,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// Restrict to AllowedOrigins when set, otherwise allow all.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(response.AccessLog(log.With().Str("component", "http").Logger()))
	router.Use(middleware.Brotli())

	router.GET("/health", handlers.System.Health)

	// ─── 1. Candidate API (JWT) ────────────────────────────────────────
	api := router.Group("/api/v1")
	api.Use(middleware.RequireCandidateJWT(auth))
	{
		start := []gin.HandlerFunc{handlers.QuizSession.Start}
		if startLimiter != nil {
			start = append([]gin.HandlerFunc{startLimiter.Middleware()}, start...)
		}

		sessions := api.Group("/quiz-sessions")
		{
			sessions.POST("", start...)
			sessions.GET("/:session_id", handlers.QuizSession.Get)
			sessions.DELETE("/:session_id", handlers.QuizSession.Close)
			sessions.POST("/:session_id/select", handlers.QuizSession.Select)
			sessions.POST("/:session_id/next", handlers.QuizSession.Next)
			sessions.POST("/:session_id/previous", handlers.QuizSession.Previous)
			sessions.POST("/:session_id/quit", handlers.QuizSession.Quit)
			sessions.POST("/:session_id/retry", handlers.QuizSession.Retry)
		}

		api.GET("/attempts", handlers.QuizSession.ListAttempts)
	}

	// ─── 2. WebSocket Group (query token) ──────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireCandidateWSAuth(auth))
	{
		ws.GET("/quiz-sessions/:session_id/stream", handlers.WS.SessionStream)
	}

	return router
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/quizrunner/internal/cache"
	"github.com/stemsi/quizrunner/internal/config"
	"github.com/stemsi/quizrunner/internal/database"
	"github.com/stemsi/quizrunner/internal/handler"
	"github.com/stemsi/quizrunner/internal/lms"
	"github.com/stemsi/quizrunner/internal/logger"
	"github.com/stemsi/quizrunner/internal/middleware"
	"github.com/stemsi/quizrunner/internal/repository"
	"github.com/stemsi/quizrunner/internal/router"
	"github.com/stemsi/quizrunner/internal/service"
	"github.com/stemsi/quizrunner/internal/validator"
	"github.com/stemsi/quizrunner/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("lms", cfg.LMSBaseURL).
		Int("question_seconds", cfg.QuestionSeconds).
		Msg("Starting quiz runner")

	if cfg.JWTSecret == "" {
		log.Fatal().Msg("JWT_SECRET is not set")
	}

	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Repositories, Services ───────────────────────────────────────
	outcomeRepo := repository.NewAttemptOutcomeRepository(pool)

	authService := service.NewAuthService(cfg)
	lmsClient := lms.NewClient(cfg.LMSBaseURL, cfg.LMSTimeout, log)
	quizCache := cache.NewQuizCache(rdb, cfg.QuizCacheTTL)
	outcomeQueue := worker.NewOutcomeQueue(rdb)
	sessionService := service.NewQuizSessionService(lmsClient, quizCache, outcomeQueue, cfg, log)
	attemptService := service.NewAttemptService(outcomeRepo)

	// ─── Handlers ─────────────────────────────────────────────────────
	handlers := &router.Handlers{
		QuizSession: handler.NewQuizSessionHandler(sessionService, attemptService, log),
		WS:          handler.NewWSHandler(sessionService, log, cfg.AllowedOrigins),
		System:      handler.NewSystemHandler(pool, rdb, sessionService, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	outcomeWorker := worker.NewOutcomeWorker(outcomeRepo, rdb, log)
	go outcomeWorker.Start(workerCtx)
	go sessionService.StartJanitor(workerCtx, time.Minute)

	startLimiter := middleware.NewRateLimiter(cfg.StartRatePerMin, time.Minute, middleware.ByCandidate)
	go startLimiter.RunCleanup(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg, startLimiter, log)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Abandon live attempts, wait for in-flight submissions and outcome records.
	sessionService.Shutdown()

	// 3. Stop the outcome worker and let it drain the queue.
	workerCancel()
	select {
	case <-outcomeWorker.Done():
	case <-time.After(10 * time.Second):
		log.Warn().Msg("Outcome worker did not drain in time")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}

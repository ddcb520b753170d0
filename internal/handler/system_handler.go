package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizrunner/internal/config"
	"github.com/stemsi/quizrunner/internal/response"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ActiveCounter reports live sessions.
type ActiveCounter interface {
	Active() int
}

// SystemHandler reports process and dependency health.
type SystemHandler struct {
	db        Pinger
	rdb       *redis.Client
	sessions  ActiveCounter
	startTime time.Time
	log       zerolog.Logger
}

// NewSystemHandler creates a new SystemHandler. db and rdb may be nil.
func NewSystemHandler(db Pinger, rdb *redis.Client, sessions ActiveCounter, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		db:        db,
		rdb:       rdb,
		sessions:  sessions,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

type healthReport struct {
	Status         string            `json:"status"`
	Uptime         string            `json:"uptime"`
	GoVersion      string            `json:"go_version"`
	Goroutines     int               `json:"goroutines"`
	ActiveSessions int               `json:"active_sessions"`
	OutcomeQueue   int64             `json:"outcome_queue"`
	Checks         map[string]string `json:"checks"`
}

// Health godoc
// GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	report := healthReport{
		Status:         "ok",
		Uptime:         formatDuration(time.Since(h.startTime)),
		GoVersion:      runtime.Version(),
		Goroutines:     runtime.NumGoroutine(),
		ActiveSessions: h.sessions.Active(),
		Checks:         map[string]string{},
	}

	if h.db != nil {
		report.Checks["postgres"] = checkResult(h.db.Ping(ctx))
	}
	if h.rdb != nil {
		report.Checks["redis"] = checkResult(h.rdb.Ping(ctx).Err())
		report.OutcomeQueue, _ = h.rdb.LLen(ctx, config.WorkerKey.PersistOutcomesQueue).Result()
	}

	status := http.StatusOK
	for name, result := range report.Checks {
		if result != "ok" {
			report.Status = "degraded"
			status = http.StatusServiceUnavailable
			h.log.Warn().Str("check", name).Str("result", result).Msg("Health check failed")
		}
	}
	response.Success(c, status, report)
}

func checkResult(err error) string {
	if err != nil {
		return err.Error()
	}
	return "ok"
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}

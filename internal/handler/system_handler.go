package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-classroom/internal/config"
	"github.com/stemsi/exstem-classroom/internal/response"
)

const healthTimeout = 2 * time.Second

// SystemHandler reports service health and worker queue depths.
type SystemHandler struct {
	pool      *pgxpool.Pool
	rdb       *redis.Client
	startTime time.Time
	log       zerolog.Logger
}

func NewSystemHandler(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		pool:      pool,
		rdb:       rdb,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

type systemStatus struct {
	Status   string `json:"status"`
	Postgres string `json:"postgres"`
	Redis    string `json:"redis"`
	Uptime   string `json:"uptime"`

	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heap_alloc"`
	GoVersion  string `json:"go_version"`

	// Worker Queues
	QueueFeedback  int64 `json:"queue_feedback"`
	QueueIntegrity int64 `json:"queue_integrity"`
}

// Health godoc
// GET /health
// Pings PostgreSQL and Redis. 503 when either is down.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	s := h.collect(ctx)
	status := http.StatusOK
	if s.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	response.Success(c, status, s)
}

func (h *SystemHandler) collect(ctx context.Context) systemStatus {
	s := systemStatus{
		Status:     "ok",
		Postgres:   "ok",
		Redis:      "ok",
		Uptime:     time.Since(h.startTime).Round(time.Second).String(),
		Goroutines: runtime.NumGoroutine(),
		GoVersion:  runtime.Version(),
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	s.HeapAlloc = ms.HeapAlloc

	if err := h.pool.Ping(ctx); err != nil {
		h.log.Warn().Err(err).Msg("PostgreSQL health check failed")
		s.Postgres, s.Status = "down", "degraded"
	}

	// Pipelined LLEN doubles as the Redis ping.
	pipe := h.rdb.Pipeline()
	feedbackCmd := pipe.LLen(ctx, config.WorkerKey.GenerateFeedbackQueue)
	integrityCmd := pipe.LLen(ctx, config.WorkerKey.PersistIntegrityQueue)
	if _, err := pipe.Exec(ctx); err != nil {
		h.log.Warn().Err(err).Msg("Redis health check failed")
		s.Redis, s.Status = "down", "degraded"
	} else {
		s.QueueFeedback, _ = feedbackCmd.Result()
		s.QueueIntegrity, _ = integrityCmd.Result()
	}
	return s
}

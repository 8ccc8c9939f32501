package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/stemsi/exstem-classroom/internal/config"
	"github.com/stemsi/exstem-classroom/internal/database"
	"github.com/stemsi/exstem-classroom/internal/handler"
	"github.com/stemsi/exstem-classroom/internal/llm"
	"github.com/stemsi/exstem-classroom/internal/logger"
	"github.com/stemsi/exstem-classroom/internal/middleware"
	"github.com/stemsi/exstem-classroom/internal/repository"
	"github.com/stemsi/exstem-classroom/internal/router"
	"github.com/stemsi/exstem-classroom/internal/service"
	"github.com/stemsi/exstem-classroom/internal/session"
	"github.com/stemsi/exstem-classroom/internal/validator"
	"github.com/stemsi/exstem-classroom/internal/worker"
)

// sessionDrainTimeout covers a result write, its one retry and the backoff
// between them.
const sessionDrainTimeout = 45 * time.Second

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Str("llm_model", cfg.LLMModel).
		Msg("Starting ExStem Classroom")

	if cfg.LLMAPIKey == "" {
		log.Warn().Msg("LLM_API_KEY is empty, question generation and feedback will fail")
	}

	// ─── Initialize Validator ──────────────────────────────────────────
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

	// ─── Initialize Repositories ───────────────────────────────────────
	docs := repository.NewDocumentStore(pool)
	examRepo := repository.NewExamRepository(docs, rdb, cfg.ExamCacheTTL, log)
	courseRepo := repository.NewCourseRepository(docs, rdb, cfg.ExamCacheTTL)
	attemptRepo := repository.NewAttemptRepository(docs)
	professorRepo := repository.NewProfessorRepository(docs)

	// ─── Initialize Services ──────────────────────────────────────────
	llmClient := llm.New(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, log)

	authService := service.NewAuthService(cfg, rdb, professorRepo)
	accessService := service.NewAccessService(examRepo, attemptRepo, authService, log)
	examService := service.NewExamService(examRepo, courseRepo, attemptRepo, llmClient, log)
	feedbackService := service.NewFeedbackService(rdb, examRepo, attemptRepo, llmClient, log)
	integrityRecorder := service.NewIntegrityRecorder(rdb)
	catalog := service.NewExamCatalog(examRepo, courseRepo)

	sessionCfg := session.DefaultConfig()
	sessionCfg.InactivityWarning = cfg.InactivityWarning
	sessionCfg.InactivityLimit = cfg.InactivityLimit
	sessionCfg.RetryBackoff = cfg.SubmitRetryBackoff

	// ─── Initialize Handlers ──────────────────────────────────────────
	limiter := middleware.NewRateLimiter(cfg.AccessRateLimit, time.Minute)
	stopLimiter := make(chan struct{})
	go limiter.RunCleanup(stopLimiter)

	handlers := &router.Handlers{
		Auth:   handler.NewAuthHandler(authService, professorRepo),
		Access: handler.NewAccessHandler(accessService),
		Course: handler.NewCourseHandler(courseRepo),
		Exam:   handler.NewExamHandler(examService),
		WS: handler.NewWSHandler(handler.SessionDeps{
			Exams:     catalog,
			Attempts:  attemptRepo,
			Feedback:  feedbackService,
			Integrity: integrityRecorder,
			Config:    sessionCfg,
		}, log, cfg.AllowedOrigins),
		System:  handler.NewSystemHandler(pool, rdb, log),
		Limiter: limiter,
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	integrityWorker := worker.NewIntegrityWorker(pool, rdb, log)
	feedbackWorker := worker.NewFeedbackWorker(rdb, feedbackService, cfg.FeedbackWorkers, log)

	workers.Add(2)
	go func() { defer workers.Done(); integrityWorker.Start(workerCtx) }()
	go func() { defer workers.Done(); feedbackWorker.Start(workerCtx) }()

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
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
	close(stopLimiter)

	// Exam sockets are hijacked, so srv.Shutdown does not see them. Wait for
	// submissions in flight to reach the store before the process exits.
	sessionCtx, sessionCancel := context.WithTimeout(context.Background(), sessionDrainTimeout)
	defer sessionCancel()
	if err := handlers.WS.Shutdown(sessionCtx); err != nil {
		log.Error().Err(err).Msg("Exam sessions did not drain")
	}

	// 2. Stop background workers and wait for them to flush.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

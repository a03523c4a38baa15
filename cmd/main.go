// Challengecore Server
//
// HTTP server for the adaptive learning workflow engine: lesson generation,
// challenge authoring, submission evaluation, and progressive remediation,
// checkpointed after every stage so sessions survive restarts.
//
// Usage:
//
//	go run ./cmd                          # Default :8080
//	PORT=9090 go run ./cmd                # Custom port
//	go build -o challengecore ./cmd && ./challengecore
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/adaptive-learning-os/challengecore/coreengine/checkpoint"
	"github.com/adaptive-learning-os/challengecore/coreengine/config"
	"github.com/adaptive-learning-os/challengecore/coreengine/controller"
	"github.com/adaptive-learning-os/challengecore/coreengine/httpapi"
	"github.com/adaptive-learning-os/challengecore/coreengine/observability"
	"github.com/adaptive-learning-os/challengecore/coreengine/progress"
	"github.com/adaptive-learning-os/challengecore/coreengine/stages"
	"github.com/adaptive-learning-os/challengecore/coreengine/structured"
	"github.com/adaptive-learning-os/challengecore/coreengine/workflow"
	"github.com/adaptive-learning-os/challengecore/events"
)

// slogLogger adapts slog to the stages.Logger interface.
type slogLogger struct {
	l *slog.Logger
}

func (s *slogLogger) Debug(msg string, fields ...any) { s.l.Debug(msg, fields...) }
func (s *slogLogger) Info(msg string, fields ...any)  { s.l.Info(msg, fields...) }
func (s *slogLogger) Warn(msg string, fields ...any)  { s.l.Warn(msg, fields...) }
func (s *slogLogger) Error(msg string, fields ...any) { s.l.Error(msg, fields...) }
func (s *slogLogger) Bind(fields ...any) stages.Logger {
	return &slogLogger{l: s.l.With(fields...)}
}

func main() {
	slogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(slogger)
	logger := &slogLogger{l: slogger}

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("challengecore_starting", "version", "1.0.0", "port", cfg.Port)

	// Tracing is opt-in; the exporter needs a collector to talk to.
	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracer(cfg.ServiceName, cfg.OTLPEndpoint)
		if err != nil {
			logger.Error("failed to initialize tracing", "error", err)
			os.Exit(1)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				logger.Warn("tracer shutdown failed", "error", err)
			}
		}()
		logger.Info("tracing_enabled", "endpoint", cfg.OTLPEndpoint)
	}

	// Storage.
	store, err := checkpoint.NewSQLite(cfg.CheckpointDBPath)
	if err != nil {
		logger.Error("failed to open checkpoint store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close checkpoint store", "error", err)
		}
	}()

	repo, err := progress.NewSQLite(cfg.ProgressDBPath)
	if err != nil {
		logger.Error("failed to open progress store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Error("failed to close progress store", "error", err)
		}
	}()
	logger.Info("storage_ready", "checkpoints", cfg.CheckpointDBPath, "progress", cfg.ProgressDBPath)

	// Generator and stages.
	generator := structured.NewHTTPGenerator(cfg.GeneratorURL, cfg.GeneratorModel, cfg.GeneratorAPIKey, cfg.GeneratorTimeout)
	adapter := structured.NewAdapter(generator)
	retry := structured.RetryConfig{
		MaxAttempts: uint64(cfg.GeneratorMaxAttempts),
		BaseDelay:   cfg.GeneratorBaseDelay,
	}

	set := workflow.StageSet{
		Lesson:    stages.NewLessonStage(adapter, logger).WithRetry(retry),
		Challenge: stages.NewChallengeStage(adapter, logger).WithRetry(retry),
		Evaluate:  stages.NewEvaluateStage(adapter, logger).WithRetry(retry),
		Remediate: stages.NewRemediateStage(adapter, logger).WithRetry(retry),
	}

	// Event bus with logging and a circuit breaker around subscribers.
	bus := events.NewInMemoryBus()
	bus.AddMiddleware(events.NewLoggingMiddleware())
	bus.AddMiddleware(events.NewCircuitBreakerMiddleware(5, 30*time.Second, nil))

	machine, err := workflow.NewMachine(set, store, bus, logger)
	if err != nil {
		logger.Error("failed to build workflow machine", "error", err)
		os.Exit(1)
	}

	ctrl := controller.New(machine, bus, logger)
	handler := httpapi.NewHandler(ctrl, repo, logger)
	router := httpapi.NewRouter(handler)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // stage runs block on generator calls
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("challengecore_ready", "addr", srv.Addr, "generator", cfg.GeneratorURL, "model", cfg.GeneratorModel)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutdown_signal_received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("challengecore_stopped")
}

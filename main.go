package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/firmlens/orchestrator/internal/agents"
	"github.com/firmlens/orchestrator/internal/checkpoint"
	"github.com/firmlens/orchestrator/internal/config"
	"github.com/firmlens/orchestrator/internal/db"
	"github.com/firmlens/orchestrator/internal/engine"
	"github.com/firmlens/orchestrator/internal/health"
	"github.com/firmlens/orchestrator/internal/httpapi"
	"github.com/firmlens/orchestrator/internal/llm"
	"github.com/firmlens/orchestrator/internal/search"
	"github.com/firmlens/orchestrator/internal/streaming"
	"github.com/firmlens/orchestrator/internal/tracing"
)

const engineOverridesFile = "engine.yaml"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := tracing.Initialize(tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
	}, logger); err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	// Checkpoint store: Redis when reachable, in-memory otherwise. The
	// in-memory fallback loses suspended runs on restart and is only
	// meant for local development.
	var store checkpoint.Store
	redisStore, err := checkpoint.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, 0, logger)
	if err != nil {
		logger.Warn("Redis unavailable, falling back to in-memory checkpoints",
			zap.String("addr", cfg.Redis.Addr),
			zap.Error(err),
		)
		store = checkpoint.NewMemoryStore()
	} else {
		store = redisStore
	}

	// Optional run archive.
	var archive *db.Client
	if cfg.Database.Enabled {
		archive, err = db.NewClient(&db.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.Database,
			SSLMode:  cfg.Database.SSLMode,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to connect run archive", zap.Error(err))
		}
		defer archive.Close()
	}

	model := llm.NewHTTPClient(cfg.LLM.BaseURL, cfg.LLM.Timeout, logger)
	provider := search.NewHTTPProvider(cfg.Search.BaseURL, search.Options{
		Timeout:           cfg.Search.Timeout,
		RequestsPerSecond: cfg.Search.RequestsPerSecond,
		Burst:             cfg.Search.Burst,
	}, logger)

	registry := agents.NewRegistry(
		agents.NewClarityAgent(model, logger),
		agents.NewResearchAgent(provider, logger),
		agents.NewValidatorAgent(model, logger),
		agents.NewSynthesisAgent(model, logger),
		agents.NewErrorRecoveryAgent(logger),
	)

	events := streaming.NewManager(cfg.Streaming.ReplayCapacity)

	opts := []engine.Option{engine.WithEvents(events)}
	if archive != nil {
		opts = append(opts, engine.WithArchive(archive))
	}
	eng := engine.New(registry, store, engine.Config{
		ConfidenceThreshold:      cfg.Engine.ConfidenceThreshold,
		MaxResearchAttempts:      cfg.Engine.MaxResearchAttempts,
		MaxClarificationAttempts: cfg.Engine.MaxClarificationAttempts,
		MaxTransitions:           cfg.Engine.MaxTransitions,
	}, logger, opts...)

	// Hot-reload of routing thresholds from the overrides directory.
	if dir := os.Getenv("OVERRIDES_DIR"); dir != "" {
		watcher, err := config.NewWatcher(dir, logger)
		if err != nil {
			logger.Fatal("Failed to create override watcher", zap.Error(err))
		}
		watcher.OnChange(engineOverridesFile, func(event config.ChangeEvent) error {
			current := eng.Config()
			next := config.EngineOverrides(event.Values, config.EngineConfig{
				ConfidenceThreshold:      current.ConfidenceThreshold,
				MaxResearchAttempts:      current.MaxResearchAttempts,
				MaxClarificationAttempts: current.MaxClarificationAttempts,
				MaxTransitions:           current.MaxTransitions,
			})
			eng.UpdateConfig(engine.Config{
				ConfidenceThreshold:      next.ConfidenceThreshold,
				MaxResearchAttempts:      next.MaxResearchAttempts,
				MaxClarificationAttempts: next.MaxClarificationAttempts,
				MaxTransitions:           next.MaxTransitions,
			})
			return nil
		})
		if err := watcher.Start(); err != nil {
			logger.Fatal("Failed to start override watcher", zap.Error(err))
		}
		defer watcher.Stop()
	}

	// Dependency readiness checks.
	hm := health.NewManager(15*time.Second, logger)
	if redisStore != nil {
		hm.Register(health.CheckFunc{CheckName: "redis", Fn: redisStore.Ping})
	}
	hm.Register(health.CheckFunc{CheckName: "search", Fn: func(ctx context.Context) error {
		if !provider.IsAvailable(ctx) {
			return errors.New("search service unavailable")
		}
		return nil
	}})
	if archive != nil {
		hm.Register(health.CheckFunc{CheckName: "database", Fn: archive.Ping})
	}
	hm.Start()
	defer hm.Stop()

	// API server.
	mux := http.NewServeMux()
	httpapi.NewThreadHandler(eng, store, logger).RegisterRoutes(mux)
	httpapi.NewStreamingHandler(events, logger).RegisterRoutes(mux)
	hm.RegisterRoutes(mux)

	apiServer := &http.Server{
		Addr:         cfg.Service.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  cfg.Service.ReadTimeout,
		WriteTimeout: cfg.Service.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("API server listening", zap.String("addr", cfg.Service.HTTPAddr))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("API server failed", zap.Error(err))
		}
	}()

	// Metrics server on its own port.
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:         cfg.Service.MetricsAddr,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Metrics server listening", zap.String("addr", cfg.Service.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	// WebSocket streams hold long-lived connections; SSE clients reconnect
	// on their own. Give both the graceful timeout to drain.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Service.GracefulTimeout)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		logger.Error("API server shutdown failed", zap.Error(err))
	}
	if err := metricsServer.Shutdown(ctx); err != nil {
		logger.Error("Metrics server shutdown failed", zap.Error(err))
	}
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}
	return zcfg.Build()
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/zj00777/feishu-power-skill/internal/bitable"
	"github.com/zj00777/feishu-power-skill/internal/config"
	"github.com/zj00777/feishu-power-skill/internal/docflow"
	"github.com/zj00777/feishu-power-skill/internal/eval/cel"
	"github.com/zj00777/feishu-power-skill/internal/eval/handlebars"
	"github.com/zj00777/feishu-power-skill/internal/feishu"
	"github.com/zj00777/feishu-power-skill/internal/schedule"
	"github.com/zj00777/feishu-power-skill/internal/worker"
)

var (
	// Version is set at build time
	Version = "dev"
	// BuildTime is set at build time
	BuildTime = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting report worker",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("worker_id", cfg.WorkerID),
	)

	// Log configuration (without sensitive data)
	logger.Info("configuration loaded", zap.String("config", cfg.String()))

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	// Test Redis connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))

	// Feishu client (API calls fail with ErrMissingCredentials when unset)
	if !cfg.HasFeishuCredentials() {
		logger.Warn("feishu credentials not provided (bitable and document jobs will fail)")
	}
	client := feishu.NewClient(feishu.Config{
		AppID:     cfg.FeishuAppID,
		AppSecret: cfg.FeishuAppSecret,
		BaseURL:   cfg.FeishuBaseURL,
		Timeout:   cfg.HTTPTimeout,
	}, logger)

	publisher := docflow.NewPublisher(client, logger,
		docflow.WithBatchSize(cfg.DocBatchSize),
		docflow.WithBatchPause(cfg.DocBatchPause),
		docflow.WithDocURL(cfg.FeishuDocURL),
	)

	// Initialize schedule state store
	stateStore, closeStore, err := initStateStore(cfg, redisClient)
	if err != nil {
		logger.Fatal("failed to open state store", zap.Error(err))
	}
	defer closeStore()
	logger.Info("state store initialized", zap.String("backend", cfg.StateBackend))

	// Initialize job runner
	jobs := schedule.Static(nil)
	if cfg.ScheduleFile != "" {
		jobs = schedule.FromFile(cfg.ScheduleFile)
		if _, err := jobs(); err != nil {
			logger.Fatal("failed to load schedule", zap.Error(err))
		}
	}
	runner := schedule.NewRunner(jobs, stateStore, logger)
	schedule.RegisterDefaults(runner, schedule.Deps{
		Generator:    docflow.NewGenerator(publisher, logger),
		Publisher:    publisher,
		Source:       client,
		Joiner:       bitable.NewEngine(client, logger),
		Evaluator:    cel.NewEvaluator(),
		Patterns:     handlebars.NewEngine(),
		TemplatesDir: cfg.TemplatesDir,
		ConfigsDir:   cfg.ConfigsDir,
		ScriptsDir:   cfg.ScriptsDir,
		Logger:       logger,
	})
	logger.Info("job runner initialized", zap.Strings("types", runner.Types()))

	metrics := worker.NewMetrics(prometheus.DefaultRegisterer)

	// Initialize worker
	w := worker.NewWorker(cfg, redisClient, runner, metrics, logger)

	// Start worker
	if err := w.Start(); err != nil {
		logger.Fatal("failed to start worker", zap.Error(err))
	}

	// Start health server
	healthServer := worker.NewHealthServer(cfg.HealthPort, redisClient, prometheus.DefaultGatherer, logger)
	if err := healthServer.Start(); err != nil {
		logger.Fatal("failed to start health server", zap.Error(err))
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("report worker running, press Ctrl+C to stop")
	<-sigChan

	logger.Info("shutdown signal received, stopping worker")

	// Stop health server
	if err := healthServer.Stop(); err != nil {
		logger.Error("failed to stop health server", zap.Error(err))
	}

	// Stop worker
	if err := w.Stop(); err != nil {
		logger.Error("failed to stop worker", zap.Error(err))
	}

	// Close Redis connection
	if err := redisClient.Close(); err != nil {
		logger.Error("failed to close redis connection", zap.Error(err))
	}

	logger.Info("worker stopped")
}

// initLogger initializes the logger
func initLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return config.Build()
}

// initStateStore opens the configured schedule state backend. The returned
// func releases it.
func initStateStore(cfg *config.Config, redisClient *redis.Client) (schedule.StateStore, func(), error) {
	switch cfg.StateBackend {
	case config.StateBackendRedis:
		return schedule.NewRedisStore(redisClient, cfg.StateKey), func() {}, nil
	case config.StateBackendSQLite:
		store, err := schedule.NewSQLiteStore(cfg.StateDB)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return schedule.NewFileStore(cfg.StateFile), func() {}, nil
	}
}

package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/parthgupta9/ride-pooling/internal/config"
	"github.com/parthgupta9/ride-pooling/internal/dispatch"
	httpapi "github.com/parthgupta9/ride-pooling/internal/http"
	"github.com/parthgupta9/ride-pooling/internal/ingest"
	"github.com/parthgupta9/ride-pooling/internal/logging"
	"github.com/parthgupta9/ride-pooling/internal/match"
	"github.com/parthgupta9/ride-pooling/internal/pooling"
	"github.com/parthgupta9/ride-pooling/internal/pricing"
	"github.com/parthgupta9/ride-pooling/internal/queue"
	"github.com/parthgupta9/ride-pooling/internal/scheduler"
	"github.com/parthgupta9/ride-pooling/internal/storage"
)

func main() {
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if cfg.PGDSN != "" && cfg.RunMigrations {
		runMigrations(cfg.PGDSN, logger)
	}

	var store storage.Store
	if cfg.PGDSN != "" {
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		store = ps
	} else {
		store = storage.NewMemoryStore()
		logger.Warn("PG_DSN unset, using in-memory store")
	}

	var q queue.Queue
	if cfg.RedisAddr != "" {
		q = queue.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisQueueKey)
	} else {
		q = queue.NewMemory()
		logger.Warn("REDIS_ADDR unset, using in-memory queue")
	}

	wsreg := dispatch.NewWSRegistry()
	notifier := dispatch.NewPushNotifier(cfg.PushEndpoint, wsreg)

	svc := &pooling.Service{
		Store:         store,
		Queue:         q,
		Notifier:      notifier,
		Builder:       &match.Builder{},
		Logger:        logger,
		EstimateCache: pricing.NewCache(cfg.EstimateCacheTTL),
		BatchSize:     cfg.BatchSize,
	}
	if len(cfg.KafkaBrokers) > 0 {
		kp := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
		svc.Events = kp
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := &scheduler.Scheduler{
		Cycler:          svc,
		Logger:          logger,
		TickInterval:    cfg.TickInterval,
		MaxSkippedTicks: cfg.MaxSkippedTicks,
		ErrorHandler: func(err error) {
			logger.Error("fatal scheduler fault", "error", err)
			stop()
		},
	}
	go sched.Run(ctx)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewServer(svc, store, wsreg, logger),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("ride-pooling listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown incomplete", "error", err)
	}
	logger.Info("ride-pooling stopped")
}

func runMigrations(dsn string, logger *slog.Logger) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logger.Error("migration db open failed", "error", err)
		return
	}
	defer db.Close()
	b, err := os.ReadFile(filepath.Join("migrations", "001_create_schema.sql"))
	if err != nil {
		logger.Error("migration file unreadable", "error", err)
		return
	}
	if _, err := db.Exec(string(b)); err != nil {
		logger.Error("migration exec failed", "error", err)
		return
	}
	logger.Info("migration applied", "file", "001_create_schema.sql")
}

// Command taskboard-server serves the board JSON API over HTTP and a gRPC
// health endpoint for orchestrator probes.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/and161185/taskboard/internal/app"
	"github.com/and161185/taskboard/internal/config"
	"github.com/and161185/taskboard/internal/events"
	"github.com/and161185/taskboard/internal/limiter"
	"github.com/and161185/taskboard/internal/migrate"
	"github.com/and161185/taskboard/internal/repository/memory"
	"github.com/and161185/taskboard/internal/repository/postgres"
	"github.com/and161185/taskboard/internal/server/httpapi"
	"github.com/and161185/taskboard/internal/storage"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, prepares storage and serves until SIGINT/SIGTERM.
func main() {
	cfg, err := config.LoadServer(os.Args[1:])
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	var logger *zap.Logger
	if cfg.Dev {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage: PostgreSQL when a DSN is configured, otherwise an in-process store
	var (
		repos app.Repos
		lim   limiter.Limiter
	)
	if cfg.DSN != "" {
		if err := migrate.Up(ctx, cfg.DSN, logger); err != nil {
			logger.Fatal("migrate up", zap.Error(err))
		}
		db, err := postgres.New(ctx, cfg.DSN)
		if err != nil {
			logger.Fatal("pgxpool.New", zap.Error(err))
		}
		defer db.Close()
		repos = app.PostgresRepos(db)
		lim = limiter.NewPG(db.Pool, 15*time.Minute, 5, 15*time.Minute)
	} else {
		logger.Warn("no DATABASE_DSN, using in-memory store; data is lost on exit")
		repos = app.MemoryRepos(memory.New())
		lim = limiter.Nop{}
	}

	blobs, err := storage.NewDisk(cfg.UploadDir, cfg.MaxUploadBytes)
	if err != nil {
		logger.Fatal("upload dir", zap.String("dir", cfg.UploadDir), zap.Error(err))
	}

	var pub events.Publisher = events.Nop{}
	if cfg.AMQPURL != "" {
		amqpPub, err := events.DialAMQP(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("amqp unavailable, activity events disabled", zap.Error(err))
		} else {
			defer func() { _ = amqpPub.Close() }()
			pub = amqpPub
		}
	}

	svc := app.Services(repos, app.Deps{
		SignKey:   cfg.JWTKey,
		AccessTTL: cfg.AccessTTL,
		MaxBatch:  cfg.MaxBatch,
		Limiter:   lim,
		Blobs:     blobs,
		Publisher: pub,
		Log:       logger,
	})

	opts := []httpapi.Option{
		httpapi.WithMaxUpload(cfg.MaxUploadBytes),
		httpapi.WithCORS(cfg.CORSOrigins),
	}
	if rdb := httpapi.DialRedis(cfg.RedisAddr, logger); rdb != nil {
		defer func() { _ = rdb.Close() }()
		opts = append(opts, httpapi.WithRateLimit(httpapi.NewRedisCounter(rdb), cfg.RateLimitPerMin))
	}
	api := httpapi.New(svc, cfg.JWTKey, logger, opts...)

	hs := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Health
	healthSrv := health.NewServer()
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, healthSrv)

	errCh := make(chan error, 2)
	if cfg.HealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.HealthAddr)
		if err != nil {
			logger.Fatal("listen health", zap.Error(err))
		}
		go func() {
			logger.Info("health listening", zap.String("addr", cfg.HealthAddr))
			errCh <- gs.Serve(lis)
		}()
	}
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	// Wait for stop
	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	healthSrv.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	done := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		gs.Stop()
	}

	logger.Info("shutdown complete")
}

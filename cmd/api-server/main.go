package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kojjob/wellness-connect-sub000/internal/api"
	"github.com/kojjob/wellness-connect-sub000/internal/booking"
	"github.com/kojjob/wellness-connect-sub000/internal/config"
	"github.com/kojjob/wellness-connect-sub000/internal/db"
	"github.com/kojjob/wellness-connect-sub000/internal/gateway"
	"github.com/kojjob/wellness-connect-sub000/internal/logger"
	"github.com/kojjob/wellness-connect-sub000/internal/notify"
	"github.com/kojjob/wellness-connect-sub000/internal/policy"
	redisclient "github.com/kojjob/wellness-connect-sub000/internal/redis"
	"github.com/kojjob/wellness-connect-sub000/internal/webhook"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	zlog, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer zlog.Sync()

	zlog.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
	)

	if cfg.WebhookSecret == "" && cfg.AllowUnsignedWebhooks {
		zlog.Warn("unsigned webhooks enabled; never run this configuration in prod")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		zlog.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	zlog.Info("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		zlog.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			zlog.Error("error closing redis", zap.Error(err))
		}
	}()
	zlog.Info("connected to Redis")

	repo := booking.NewPgRepository(pgPool)
	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
	gw := gateway.NewHTTPClient(cfg.GatewayBaseURL, cfg.GatewayAPIKey, cfg.GatewayTimeout)
	trigger := &notify.LogTrigger{Log: zlog}

	bookings := booking.NewService(repo, locker, gw, zlog, cfg.GatewayTimeout)
	cancellations := policy.NewEngine(repo, gw, trigger, zlog, cfg.RefundCutoff, cfg.GatewayTimeout)

	verifier := webhook.NewVerifier(cfg.WebhookSecret, cfg.AllowUnsignedWebhooks)
	ingestor := webhook.NewIngestor(repo, trigger, zlog)
	webhookHandler := webhook.NewHandler(verifier, ingestor, zlog)

	router := api.NewRouter(api.RouterConfig{
		Bookings:       bookings,
		Cancellations:  cancellations,
		WebhookHandler: webhookHandler,
		PgPool:         pgPool,
		Redis:          rdb,
		Log:            zlog,
		Env:            cfg.Env,
		Version:        version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		zlog.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("http server error", zap.Error(err))
		}
	}()

	<-rootCtx.Done()

	zlog.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("http shutdown error", zap.Error(err))
	}
}

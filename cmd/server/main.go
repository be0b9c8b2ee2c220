package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/prospectly/outreach-engine/internal/api"
	"github.com/prospectly/outreach-engine/internal/audit"
	"github.com/prospectly/outreach-engine/internal/config"
	"github.com/prospectly/outreach-engine/internal/pkg/distlock"
	"github.com/prospectly/outreach-engine/internal/pkg/logger"
	"github.com/prospectly/outreach-engine/internal/provider"
	"github.com/prospectly/outreach-engine/internal/ratelimit"
	"github.com/prospectly/outreach-engine/internal/repository/postgres"
	"github.com/prospectly/outreach-engine/internal/service/deadletter"
	"github.com/prospectly/outreach-engine/internal/service/enrollment"
	"github.com/prospectly/outreach-engine/internal/service/ingest"
)

func main() {
	configPath := "config/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		configPath = v
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	if cfg.Log.RedactPII != nil {
		logger.SetRedactPII(*cfg.Log.RedactPII)
	}

	db, err := openDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable, falling back to in-process counters", "addr", cfg.Redis.Addr, "error", err)
			redisClient = nil
		}
		cancel()
	}

	registry, err := provider.NewRegistry(cfg.Providers, provider.FreshnessPolicy{
		MaxAge:        cfg.Webhook.MaxAge(),
		MaxFutureSkew: cfg.Webhook.MaxFutureSkew(),
	})
	if err != nil {
		log.Fatalf("providers: %v", err)
	}
	logger.Info("providers configured", "names", fmt.Sprintf("%v", registry.Names()))

	enrollmentRepo := postgres.NewEnrollmentRepo(db)
	eventRepo := postgres.NewEventRepo(db)
	deadLetterRepo := postgres.NewDeadLetterRepo(db)

	var signaler ingest.AuditSignaler
	if cfg.Audit.QueueURL != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(cfg.Audit.Region))
		if err != nil {
			log.Fatalf("aws config: %v", err)
		}
		signaler = audit.NewPublisher(sqs.NewFromConfig(awsCfg), cfg.Audit.QueueURL)
		logger.Info("audit signals enabled", "queue", cfg.Audit.QueueURL)
	}

	enrollmentSvc := enrollment.NewService(enrollmentRepo)
	ingestSvc := ingest.NewService(registry, eventRepo, enrollmentSvc, deadLetterRepo, signaler,
		time.Duration(cfg.Webhook.RecordTimeoutMS)*time.Millisecond)

	lockFactory := func(key string) distlock.DistLock {
		return distlock.NewLock(redisClient, db, key, 2*time.Minute)
	}
	deadletterSvc := deadletter.NewService(deadLetterRepo, ingestSvc, lockFactory)

	var counters ratelimit.CounterStore
	if redisClient != nil {
		counters = ratelimit.NewRedisStore(redisClient)
	} else {
		counters = ratelimit.NewMemoryStore()
	}
	guard := ratelimit.NewGuard(counters,
		cfg.RateLimit.BurstPerMinute,
		cfg.RateLimit.LockoutThreshold,
		time.Duration(cfg.RateLimit.LockoutSeconds)*time.Second)

	server := api.NewServer(cfg.Server, cfg.Webhook, ingestSvc, enrollmentSvc, deadletterSvc, guard)

	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(cfg.Server.Addr()); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	if redisClient != nil {
		redisClient.Close()
	}
}

func openDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	dbURL := cfg.URL
	if cfg.StatementTimeoutMS > 0 && !strings.Contains(dbURL, "options=") {
		sep := "?"
		if strings.Contains(dbURL, "?") {
			sep = "&"
		}
		dbURL += fmt.Sprintf("%soptions=-c%%20statement_timeout%%3D%d", sep, cfg.StatementTimeoutMS)
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}
	return db, nil
}

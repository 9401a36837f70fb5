package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/example/fleetwise/internal/fleet/domain"
	"github.com/example/fleetwise/internal/fleet/finance"
	"github.com/example/fleetwise/internal/fleet/handler"
	"github.com/example/fleetwise/internal/fleet/report"
	"github.com/example/fleetwise/internal/fleet/repository"
	"github.com/example/fleetwise/internal/fleet/resolve"
	fleetservice "github.com/example/fleetwise/internal/fleet/service"
	ratelimitmw "github.com/example/fleetwise/internal/http/middleware"
	"github.com/example/fleetwise/internal/outbox"
	"github.com/example/fleetwise/pkg/events"
	"github.com/example/fleetwise/pkg/observability"
)

type appConfig struct {
	HTTPAddr        string
	PostgresDSN     string
	RedisAddr       string
	NATSURL         string
	ProfitThreshold float64
	RateWriteRPS    float64
	RateWriteBurst  float64
	OutboxPoll      time.Duration
	OutboxBatch     int
	OutboxRetry     int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := observability.SetupLogger("fleet-service")
	defer logger.Sync() //nolint:errcheck

	shutdown, err := observability.SetupTracer(ctx, "fleet-service")
	if err != nil {
		logger.Warn("tracer setup failed", zap.Error(err))
	} else {
		defer shutdown(context.Background())
	}

	cfg := loadConfig()

	var db *sql.DB
	if cfg.PostgresDSN != "" {
		db, err = sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			logger.Fatal("postgres connect", zap.Error(err))
		}
		db.SetMaxOpenConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(ctx); err != nil {
			logger.Fatal("postgres ping", zap.Error(err))
		}
		defer db.Close()
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis ping", zap.Error(err))
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		if conn, err := nats.Connect(cfg.NATSURL, nats.Name("fleetservice")); err == nil {
			natsConn = conn
			defer conn.Drain() //nolint:errcheck
		} else {
			logger.Warn("nats connection failed", zap.Error(err))
		}
	}

	store := buildStore(ctx, db, logger)
	resolver := resolve.New(store)

	// With postgres the outbox relay delivers every trip event; publishing
	// live here as well would emit each mutation twice on the subject.
	var publisher domain.EventPublisher
	if db == nil {
		publisher = events.NewPublisher(natsConn, "fleet.trips")
	}

	svc := fleetservice.New(store, resolver, publisher, domain.SystemClock{}, logger.Named("service"))
	projector := report.NewProjector(store, resolver, finance.NewClassifier(cfg.ProfitThreshold))
	fleetHTTP := handler.NewHTTP(svc, projector)

	limiter := ratelimitmw.NewMutationLimiter(redisClient, ratelimitmw.RateConfig{
		Rate:  cfg.RateWriteRPS,
		Burst: cfg.RateWriteBurst,
	})

	r := chi.NewRouter()
	if limiter != nil {
		r.Use(limiter.Middleware)
	}
	r.Mount("/", fleetHTTP.Router())
	r.Mount("/observability", observability.MetricsRouter())

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if db != nil && natsConn != nil {
		relay := outbox.NewRelay(db, natsConn, logger.Named("outbox"), outbox.Config{
			PollInterval: cfg.OutboxPoll,
			BatchSize:    cfg.OutboxBatch,
			RetryMax:     cfg.OutboxRetry,
		})
		go func() {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("outbox relay stopped", zap.Error(err))
			}
		}()
	} else {
		logger.Warn("outbox relay disabled", zap.Bool("db", db != nil), zap.Bool("nats", natsConn != nil))
	}

	go func() {
		logger.Info("fleet service listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// buildStore prefers postgres and falls back to the in-memory store for
// local demos without a database.
func buildStore(ctx context.Context, db *sql.DB, logger *zap.Logger) repository.EntityStore {
	if db == nil {
		logger.Warn("no postgres configured, using in-memory store")
		return repository.NewMemoryStore()
	}
	store := repository.NewPostgresStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Fatal("schema setup", zap.Error(err))
	}
	return store
}

func loadConfig() appConfig {
	return appConfig{
		HTTPAddr:        getenv("HTTP_ADDR", ":8080"),
		PostgresDSN:     firstNonEmpty(os.Getenv("POSTGRES_DSN"), os.Getenv("DATABASE_URL")),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		NATSURL:         os.Getenv("NATS_URL"),
		ProfitThreshold: parseFloatEnv("PROFIT_THRESHOLD", finance.DefaultProfitThreshold),
		RateWriteRPS:    parseFloatEnv("RATE_WRITE_RPS", 10),
		RateWriteBurst:  parseFloatEnv("RATE_WRITE_BURST", 20),
		OutboxPoll:      time.Duration(parseIntEnv("OUTBOX_POLL_MS", 200)) * time.Millisecond,
		OutboxBatch:     parseIntEnv("OUTBOX_BATCH", 100),
		OutboxRetry:     parseIntEnv("OUTBOX_RETRY_MAX", 3),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseIntEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func parseFloatEnv(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

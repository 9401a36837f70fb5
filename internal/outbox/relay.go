// Package outbox ships trip lifecycle events that the postgres store queued
// alongside its writes. Publishing after commit keeps consumers from seeing
// events for rolled-back mutations.
package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	relayPublishTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleet_outbox_publish_total",
		Help: "Total number of successfully relayed fleet events.",
	})
	relayFailTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleet_outbox_fail_total",
		Help: "Total number of relay failures after exhausting retries.",
	})
	relayLagSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_outbox_lag_seconds",
		Help: "Age of the oldest relayed fleet event in seconds.",
	})
)

// Config defines tunables for the relay loop.
type Config struct {
	PollInterval time.Duration
	BatchSize    int
	RetryMax     int
}

type natsPublisher interface {
	PublishMsg(msg *nats.Msg) error
}

// Relay drains the outbox table into NATS. Rows stay locked (FOR UPDATE SKIP
// LOCKED) for the whole drain pass, so multiple relay instances never deliver
// the same event twice.
type Relay struct {
	db        *sql.DB
	publisher natsPublisher
	logger    *zap.Logger
	cfg       Config
	tracer    trace.Tracer
}

// NewRelay constructs a relay with sane defaults.
func NewRelay(db *sql.DB, conn *nats.Conn, logger *zap.Logger, cfg Config) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 200 * time.Millisecond
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		db:        db,
		publisher: conn,
		logger:    logger,
		cfg:       cfg,
		tracer:    otel.Tracer("fleet.outbox.relay"),
	}
}

// Run drains on every tick until the context is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	if r.db == nil || r.publisher == nil {
		return errors.New("outbox relay requires database and NATS connection")
	}
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if n, err := r.drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("outbox drain failed", zap.Error(err))
		} else if n > 0 {
			r.logger.Debug("outbox drained", zap.Int("events", n))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

type pendingEvent struct {
	ID        int64
	Topic     string
	Payload   []byte
	CreatedAt time.Time
}

// drain locks one batch of unpublished rows, publishes each and marks the
// batch inside the same transaction. Any publish failure rolls the whole
// batch back, so delivery is at-least-once and in insertion order.
func (r *Relay) drain(ctx context.Context) (int, error) {
	ctx, span := r.tracer.Start(ctx, "outbox.drain")
	defer span.End()

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	batch, err := lockPending(ctx, tx, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		return 0, tx.Commit()
	}

	published := make([]int64, 0, len(batch))
	oldest := batch[0].CreatedAt
	for _, ev := range batch {
		if err := r.publish(ctx, ev); err != nil {
			return 0, err
		}
		published = append(published, ev.ID)
		relayPublishTotal.Inc()
		if ev.CreatedAt.Before(oldest) {
			oldest = ev.CreatedAt
		}
	}
	relayLagSeconds.Set(time.Since(oldest).Seconds())

	if _, err := tx.ExecContext(ctx,
		`UPDATE outbox SET published = true WHERE id = ANY($1)`, published); err != nil {
		return 0, fmt.Errorf("mark published: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}
	return len(published), nil
}

func lockPending(ctx context.Context, tx *sql.Tx, limit int) ([]pendingEvent, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, topic, payload, created_at FROM outbox
		 WHERE published = false ORDER BY id LIMIT $1 FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, fmt.Errorf("select outbox: %w", err)
	}
	defer rows.Close()
	var batch []pendingEvent
	for rows.Next() {
		var ev pendingEvent
		if err := rows.Scan(&ev.ID, &ev.Topic, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		batch = append(batch, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return batch, nil
}

// publish delivers one event, retrying transient broker failures with a
// quadratic backoff before giving up.
func (r *Relay) publish(ctx context.Context, ev pendingEvent) error {
	ctx, span := r.tracer.Start(ctx, "outbox.publish")
	defer span.End()
	if ev.Topic == "" {
		return fmt.Errorf("outbox %d: missing topic", ev.ID)
	}

	msg := nats.NewMsg(ev.Topic)
	msg.Data = ev.Payload
	if sc := span.SpanContext(); sc.IsValid() {
		msg.Header.Set("traceparent", fmt.Sprintf("00-%s-%s-01", sc.TraceID(), sc.SpanID()))
	}

	var lastErr error
	for attempt := 1; attempt <= r.cfg.RetryMax; attempt++ {
		if lastErr = r.publisher.PublishMsg(msg); lastErr == nil {
			return nil
		}
		r.logger.Warn("publish failed",
			zap.Error(lastErr), zap.Int("attempt", attempt), zap.Int64("outbox_id", ev.ID))
		if attempt == r.cfg.RetryMax {
			break
		}
		select {
		case <-time.After(time.Duration(attempt*attempt) * 100 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	relayFailTotal.Inc()
	return fmt.Errorf("publish outbox %d: %w", ev.ID, lastErr)
}

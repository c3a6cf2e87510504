// Package outbox drains the transactional outbox to Kafka. Stores write
// events into the outbox table inside the same transaction as their state
// change; this relay is the only component that publishes them, so an event
// exists on the broker if and only if the transaction committed.
package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Publisher produces one record to the broker. Satisfied by the platform
// Kafka producer.
type Publisher interface {
	Produce(ctx context.Context, topic string, key, value []byte) error
}

const (
	batchSize    = 50
	pollInterval = 500 * time.Millisecond
	maxAttempts  = 10
)

// Relay polls pending outbox rows and publishes them in insertion order.
// Claiming rows with FOR UPDATE SKIP LOCKED lets replicas drain the table
// concurrently without double-publishing a committed row.
type Relay struct {
	pool      *pgxpool.Pool
	publisher Publisher
	topic     string
	logger    *slog.Logger
}

func NewRelay(pool *pgxpool.Pool, publisher Publisher, topic string, logger *slog.Logger) *Relay {
	return &Relay{pool: pool, publisher: publisher, topic: topic, logger: logger}
}

// Run drains until the context is canceled. Intended to be one errgroup
// member of the server process.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.drainBatch(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("outbox drain failed", "error", err)
			}
		}
	}
}

type row struct {
	ID        int64
	EventType string
	Aggregate string
	Payload   []byte
}

// drainBatch claims up to batchSize pending rows, publishes each, and marks
// the outcome inside the claiming transaction. A row that keeps failing is
// parked as dead after maxAttempts so one poison event cannot wedge the
// whole table.
func (r *Relay) drainBatch(ctx context.Context) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin outbox batch: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id, event_type, aggregate_id, payload
		FROM outbox
		WHERE status = 'pending'
		ORDER BY id
		FOR UPDATE SKIP LOCKED
		LIMIT $1
	`, batchSize)
	if err != nil {
		return fmt.Errorf("claim outbox rows: %w", err)
	}

	claimed := make([]row, 0, batchSize)
	for rows.Next() {
		var entry row
		if err := rows.Scan(&entry.ID, &entry.EventType, &entry.Aggregate, &entry.Payload); err != nil {
			rows.Close()
			return fmt.Errorf("scan outbox row: %w", err)
		}
		claimed = append(claimed, entry)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate outbox rows: %w", err)
	}
	if len(claimed) == 0 {
		return nil
	}

	for _, entry := range claimed {
		if err := r.publisher.Produce(ctx, r.topic, []byte(entry.Aggregate), entry.Payload); err != nil {
			r.logger.Warn("outbox publish failed",
				"id", entry.ID, "event_type", entry.EventType, "error", err)
			if _, execErr := tx.Exec(ctx, `
				UPDATE outbox
				SET attempts = attempts + 1,
				    status = CASE WHEN attempts + 1 >= $2 THEN 'dead' ELSE 'pending' END,
				    last_attempt_at = NOW()
				WHERE id = $1
			`, entry.ID, maxAttempts); execErr != nil {
				return fmt.Errorf("record outbox failure: %w", execErr)
			}
			continue
		}
		if _, err := tx.Exec(ctx, `
			UPDATE outbox
			SET status = 'published', published_at = NOW(), last_attempt_at = NOW()
			WHERE id = $1
		`, entry.ID); err != nil {
			return fmt.Errorf("mark outbox row published: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit outbox batch: %w", err)
	}
	return nil
}

// Package outbox relays rows written by the postgres audit store to a
// message broker.
package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Producer publishes one message synchronously.
type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Relay claims unpublished outbox rows with SKIP LOCKED, publishes them and
// marks them published in the same transaction. Several relays may run
// against one database.
type Relay struct {
	db        *sql.DB
	producer  Producer
	topic     string
	batchSize int
	interval  time.Duration
	logger    *slog.Logger
}

type Option func(*Relay)

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func NewRelay(db *sql.DB, producer Producer, topic string, opts ...Option) *Relay {
	r := &Relay{
		db:        db,
		producer:  producer,
		topic:     topic,
		batchSize: 100,
		interval:  time.Second,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		n, err := r.RelayOnce(ctx)
		if err != nil {
			r.logger.ErrorContext(ctx, "outbox relay failed", "error", err)
		}
		// Keep draining without waiting while full batches come back.
		if err == nil && n == r.batchSize {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

type row struct {
	id          string
	aggregateID string
	payload     []byte
}

// RelayOnce publishes at most one batch and returns how many rows were sent.
func (r *Relay) RelayOnce(ctx context.Context) (n int, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin outbox tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, aggregate_id, payload FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("claim outbox rows: %w", err)
	}
	var batch []row
	for rows.Next() {
		var rw row
		if err = rows.Scan(&rw.id, &rw.aggregateID, &rw.payload); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan outbox row: %w", err)
		}
		batch = append(batch, rw)
	}
	if err = rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("iterate outbox rows: %w", err)
	}
	rows.Close()

	for _, rw := range batch {
		if err = r.producer.Publish(ctx, r.topic, []byte(rw.aggregateID), rw.payload); err != nil {
			return n, fmt.Errorf("publish outbox row %s: %w", rw.id, err)
		}
		if _, err = tx.ExecContext(ctx, `UPDATE outbox SET published_at = $2 WHERE id = $1`, rw.id, time.Now().UTC()); err != nil {
			return n, fmt.Errorf("mark outbox row %s published: %w", rw.id, err)
		}
		n++
	}
	return n, nil
}

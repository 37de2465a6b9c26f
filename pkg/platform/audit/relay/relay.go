// Package relay moves outbox rows to the message broker.
//
// Delivery is at-least-once: a crash between publish and MarkPublished
// republishes the batch. Consumers deduplicate on the record id.
package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	audit "esocial/pkg/platform/audit"
)

// Producer publishes a batch of outbox entries, keyed by aggregate id.
type Producer interface {
	Publish(ctx context.Context, entries []audit.OutboxEntry) error
}

// Relay polls the outbox and forwards pending rows to the producer.
type Relay struct {
	outbox    audit.Outbox
	producer  Producer
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

// Option configures the Relay.
type Option func(*Relay)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) { r.logger = logger }
}

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func New(outbox audit.Outbox, producer Producer, opts ...Option) *Relay {
	r := &Relay{
		outbox:    outbox,
		producer:  producer,
		logger:    slog.Default(),
		interval:  time.Second,
		batchSize: 100,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run relays until ctx is cancelled. Batch failures are logged and retried on
// the next tick.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for {
				n, err := r.RunOnce(ctx)
				if err != nil {
					r.logger.ErrorContext(ctx, "outbox relay batch failed", "error", err)
					break
				}
				if n < r.batchSize {
					break
				}
			}
		}
	}
}

// RunOnce relays a single batch and returns how many rows it published.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	entries, err := r.outbox.FetchPending(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}
	if err := r.producer.Publish(ctx, entries); err != nil {
		return 0, err
	}
	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	if err := r.outbox.MarkPublished(ctx, ids, r.now()); err != nil {
		return 0, err
	}
	r.logger.DebugContext(ctx, "outbox batch relayed", "count", len(entries))
	return len(entries), nil
}

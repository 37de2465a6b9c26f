// Package poller periodically consults the registry for every SUBMITTED event.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"golang.org/x/sync/errgroup"

	"esocial/internal/events/metrics"
	"esocial/internal/events/models"
	id "esocial/pkg/domain"
	"esocial/pkg/requestcontext"
)

// Lifecycle is the slice of the lifecycle service the poller drives.
type Lifecycle interface {
	List(ctx context.Context, filter models.ListFilter) ([]*models.ComplianceEvent, error)
	Consult(ctx context.Context, eventID id.EventID) (*models.ComplianceEvent, error)
}

type Poller struct {
	lifecycle   Lifecycle
	scheduler   gocron.Scheduler
	logger      *slog.Logger
	metrics     *metrics.Metrics
	interval    time.Duration
	batchSize   int
	concurrency int
	runTimeout  time.Duration
}

type Option func(*Poller)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Poller) { p.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Poller) { p.metrics = m }
}

func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(p *Poller) {
		if n > 0 {
			p.batchSize = min(n, models.MaxListLimit)
		}
	}
}

func WithConcurrency(n int) Option {
	return func(p *Poller) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithRunTimeout bounds one full pass over the SUBMITTED events.
func WithRunTimeout(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.runTimeout = d
		}
	}
}

func New(lifecycle Lifecycle, opts ...Option) (*Poller, error) {
	p := &Poller{
		lifecycle:   lifecycle,
		logger:      slog.Default(),
		interval:    30 * time.Second,
		batchSize:   50,
		concurrency: 4,
		runTimeout:  5 * time.Minute,
	}
	for _, opt := range opts {
		opt(p)
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create consult scheduler: %w", err)
	}
	p.scheduler = s
	return p, nil
}

// Run schedules the consult job and blocks until ctx is cancelled. Runs never
// overlap: a run still in progress when the next tick fires is rescheduled.
func (p *Poller) Run(ctx context.Context) error {
	_, err := p.scheduler.NewJob(
		gocron.DurationJob(p.interval),
		gocron.NewTask(func() {
			runCtx, cancel := context.WithTimeout(ctx, p.runTimeout)
			defer cancel()
			if _, err := p.RunOnce(runCtx); err != nil {
				p.logger.ErrorContext(ctx, "consult poll failed", "error", err)
			}
		}),
		gocron.WithName("consult-submitted-events"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule consult job: %w", err)
	}

	p.logger.InfoContext(ctx, "consult poller started", "interval", p.interval, "batch_size", p.batchSize)
	p.scheduler.Start()
	<-ctx.Done()
	if err := p.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("stop consult scheduler: %w", err)
	}
	p.logger.Info("consult poller stopped")
	return nil
}

// Stats summarizes one poll run.
type Stats struct {
	Consulted int
	Resolved  int
	Failed    int
}

// RunOnce pages through every SUBMITTED event and consults each one. Events
// that stay SUBMITTED keep their place, so paging advances past them only.
// Per-event failures are logged and counted, never returned.
func (p *Poller) RunOnce(ctx context.Context) (Stats, error) {
	ctx = requestcontext.WithTime(ctx, time.Now())
	var stats Stats
	offset := 0
	for {
		page, err := p.lifecycle.List(ctx, models.ListFilter{
			Statuses: []models.Status{models.StatusSubmitted},
			Limit:    p.batchSize,
			Offset:   offset,
		})
		if err != nil {
			p.metrics.IncPollerRun("error")
			return stats, fmt.Errorf("list submitted events: %w", err)
		}

		var resolved, failed atomic.Int64
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.concurrency)
		for _, e := range page {
			g.Go(func() error {
				got, err := p.lifecycle.Consult(gctx, e.ID)
				switch {
				case err != nil:
					failed.Add(1)
					p.metrics.IncPollerConsulted("error")
					p.logger.WarnContext(gctx, "consult failed", "event_id", e.ID, "protocol", e.Protocol, "error", err)
				case got.Status == models.StatusSubmitted:
					p.metrics.IncPollerConsulted("pending")
				default:
					resolved.Add(1)
					p.metrics.IncPollerConsulted(string(got.Status))
				}
				return nil
			})
		}
		_ = g.Wait()

		stats.Consulted += len(page)
		stats.Resolved += int(resolved.Load())
		stats.Failed += int(failed.Load())
		offset += len(page) - int(resolved.Load())

		if len(page) < p.batchSize || ctx.Err() != nil {
			break
		}
	}

	if err := ctx.Err(); err != nil {
		p.metrics.IncPollerRun("cancelled")
		return stats, err
	}
	p.metrics.IncPollerRun("ok")
	if stats.Consulted > 0 {
		p.logger.InfoContext(ctx, "consult poll finished",
			"consulted", stats.Consulted,
			"resolved", stats.Resolved,
			"failed", stats.Failed,
		)
	}
	return stats, nil
}

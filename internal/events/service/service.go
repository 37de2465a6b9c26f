// Package service implements the compliance event lifecycle: validation,
// the status state machine, the gateway protocol and cancellation policy.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"esocial/internal/events/lock"
	"esocial/internal/events/metrics"
	"esocial/internal/events/models"
	"esocial/internal/events/notifications"
	"esocial/internal/events/policy"
	"esocial/internal/events/ports"
	"esocial/internal/events/schema"
	id "esocial/pkg/domain"
	dErrors "esocial/pkg/domain-errors"
	"esocial/pkg/platform/audit"
	"esocial/pkg/platform/sentinel"
	"esocial/pkg/requestcontext"
)

const (
	defaultGatewayTimeout = 10 * time.Second
	tracerName            = "esocial/events"
)

// Service is the EventLifecycleManager. Every mutating operation runs under
// the per-event lock, and its store write, notification and audit record
// share one transaction.
type Service struct {
	events    ports.EventStore
	tracker   *notifications.Tracker
	validator *schema.Validator
	gateway   ports.Gateway
	policy    *policy.Policy

	locker         ports.Locker
	tx             ports.TxRunner
	auditor        ports.AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
	logger         *slog.Logger
	gatewayTimeout time.Duration
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) { s.tracer = tracer }
}

// WithLocker replaces the in-process locker, e.g. with a Redis lease lock.
func WithLocker(l ports.Locker) Option {
	return func(s *Service) { s.locker = l }
}

// WithTx makes store writes, notifications and audit records atomic.
func WithTx(tx ports.TxRunner) Option {
	return func(s *Service) { s.tx = tx }
}

// WithAuditPublisher enables the compliance audit trail. Emit failures fail
// the operation.
func WithAuditPublisher(p ports.AuditPublisher) Option {
	return func(s *Service) { s.auditor = p }
}

// WithGatewayTimeout bounds every gateway call.
func WithGatewayTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.gatewayTimeout = d
		}
	}
}

func New(
	events ports.EventStore,
	tracker *notifications.Tracker,
	validator *schema.Validator,
	gateway ports.Gateway,
	cancelPolicy *policy.Policy,
	opts ...Option,
) *Service {
	s := &Service{
		events:         events,
		tracker:        tracker,
		validator:      validator,
		gateway:        gateway,
		policy:         cancelPolicy,
		locker:         lock.NewMemoryLocker(),
		tx:             ports.NopTx{},
		tracer:         otel.Tracer(tracerName),
		logger:         slog.Default(),
		gatewayTimeout: defaultGatewayTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// observe starts a span and returns a func that ends it and records the
// operation outcome. Call it with a pointer to the named error result.
func (s *Service) observe(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "events."+op, trace.WithAttributes(attrs...))
	return ctx, func(errp *error) {
		outcome := "ok"
		if err := *errp; err != nil {
			outcome = string(dErrors.CodeOf(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		span.End()
		s.metrics.ObserveOperation(op, outcome, time.Since(start))
	}
}

// withEvent serializes fn with every other operation on eventID.
func (s *Service) withEvent(ctx context.Context, eventID id.EventID, fn func(ctx context.Context) error) error {
	err := s.locker.WithLock(ctx, eventID.String(), fn)
	if err == nil {
		return nil
	}
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "timed out waiting for the event lock")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to lock event")
	}
}

// load fetches an event and checks that the caller's employer owns it.
// Background callers without an employer in ctx see every event.
func (s *Service) load(ctx context.Context, eventID id.EventID) (*models.ComplianceEvent, error) {
	if eventID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "event ID is required")
	}
	e, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "event not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load event")
	}
	if employer := requestcontext.EmployerID(ctx); !employer.IsNil() && employer != e.EmployerID {
		return nil, dErrors.New(dErrors.CodeForbidden, "event belongs to another employer")
	}
	return e, nil
}

// transition describes the side records of one state change.
type transition struct {
	action  audit.Action
	from    models.Status
	kind    models.NotificationKind
	message string
	reason  string
}

// commit persists e together with its notification and audit record.
func (s *Service) commit(ctx context.Context, e *models.ComplianceEvent, t transition) error {
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.events.Save(ctx, e); err != nil {
			return translateStoreError(err)
		}
		if t.message != "" {
			n, err := s.tracker.Append(ctx, e.ID, t.kind, t.message)
			if err != nil {
				return err
			}
			e.Notifications = append(e.Notifications, n)
		}
		return s.emit(ctx, e, t)
	})
	if err != nil {
		return err
	}

	if t.from != e.Status {
		s.metrics.IncTransition(string(e.Type), string(e.Status))
	}
	s.logger.InfoContext(ctx, "compliance event saved",
		"event_id", e.ID,
		"event_type", e.Type,
		"action", t.action,
		"from_status", t.from,
		"status", e.Status,
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

func (s *Service) emit(ctx context.Context, e *models.ComplianceEvent, t transition) error {
	if s.auditor == nil {
		return nil
	}
	err := s.auditor.Emit(ctx, audit.Event{
		Action:        t.action,
		EmployerID:    e.EmployerID,
		EventID:       e.ID,
		EventType:     string(e.Type),
		FromStatus:    string(t.from),
		ToStatus:      string(e.Status),
		Protocol:      e.Protocol,
		ReceiptNumber: e.ReceiptNumber,
		Reason:        t.reason,
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record compliance audit")
	}
	return nil
}

func translateStoreError(err error) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "event was modified concurrently")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "event not found")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save event")
	}
}

// gatewayCall bounds one gateway call by the configured timeout.
func (s *Service) gatewayCall(ctx context.Context, name string, e *models.ComplianceEvent, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "gateway."+name, trace.WithAttributes(
		attribute.String("event.id", e.ID.String()),
		attribute.String("event.type", string(e.Type)),
	))
	defer span.End()

	err := fn(ctx)
	if err == nil {
		return nil
	}
	ge, ok := ports.AsGatewayError(err)
	if !ok {
		category := ports.CategoryInternal
		if errors.Is(err, context.DeadlineExceeded) {
			category = ports.CategoryTimeout
		}
		ge = ports.NewGatewayError(category, "gateway call failed", err)
	}
	span.RecordError(ge)
	span.SetStatus(codes.Error, string(ge.Category))
	return ge
}

// surfaceGatewayError turns a gateway failure into the error returned by
// consult and cancel. The *ports.GatewayError stays in the chain.
func surfaceGatewayError(err error, op string) error {
	if ports.CategoryOf(err) == ports.CategoryTimeout {
		return dErrors.Wrap(err, dErrors.CodeTimeout, op+" timed out at the registry")
	}
	return dErrors.Wrap(err, dErrors.CodeGateway, op+" failed at the registry")
}

func gatewayMessage(err error) string {
	if ge, ok := ports.AsGatewayError(err); ok && ge.Message != "" {
		return ge.Message
	}
	return err.Error()
}

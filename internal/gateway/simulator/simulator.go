// Package simulator is a deterministic in-memory registry for development and
// tests. Protocols and receipts are sequential, and every submission turns
// PROCESSED after a configurable number of pending consults.
package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"esocial/internal/events/models"
	"esocial/internal/events/ports"
)

// Rejector decides whether the registry rejects a submission. A non-empty
// result rejects it with those details on the first consult that resolves it.
type Rejector func(eventType models.EventType, payload json.RawMessage) []models.ErrorDetail

type submission struct {
	eventType models.EventType
	payload   json.RawMessage
	pollsLeft int
	receipt   string
	rejected  []models.ErrorDetail
	resolved  bool
	cancelled bool
}

// Gateway implements ports.Gateway.
type Gateway struct {
	mu          sync.Mutex
	latency     time.Duration
	pendingPoll int
	reject      Rejector
	failNext    map[string]ports.ErrorCategory

	seq        int
	receiptSeq int
	byProtocol map[string]*submission
	byReceipt  map[string]*submission
}

type Option func(*Gateway)

// WithLatency delays every call, honouring ctx.
func WithLatency(d time.Duration) Option {
	return func(g *Gateway) { g.latency = d }
}

// WithPendingPolls sets how many consults report pending before resolving.
func WithPendingPolls(n int) Option {
	return func(g *Gateway) {
		if n >= 0 {
			g.pendingPoll = n
		}
	}
}

func WithRejector(r Rejector) Option {
	return func(g *Gateway) { g.reject = r }
}

func New(opts ...Option) *Gateway {
	g := &Gateway{
		pendingPoll: 1,
		failNext:    map[string]ports.ErrorCategory{},
		byProtocol:  map[string]*submission{},
		byReceipt:   map[string]*submission{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// FailNext makes the next call of op ("submit", "consult" or "cancel") fail
// with category.
func (g *Gateway) FailNext(op string, category ports.ErrorCategory) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failNext[op] = category
}

func (g *Gateway) Submit(ctx context.Context, eventType models.EventType, payload json.RawMessage) (ports.SubmitResult, error) {
	if err := g.enter(ctx, "submit"); err != nil {
		return ports.SubmitResult{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	g.seq++
	protocol := fmt.Sprintf("P-%06d", g.seq)
	s := &submission{eventType: eventType, payload: slices.Clone(payload), pollsLeft: g.pendingPoll}
	if g.reject != nil {
		s.rejected = g.reject(eventType, payload)
	}
	g.byProtocol[protocol] = s
	return ports.SubmitResult{Protocol: protocol}, nil
}

func (g *Gateway) ConsultByProtocol(ctx context.Context, protocol string) (ports.ConsultResult, error) {
	if err := g.enter(ctx, "consult"); err != nil {
		return ports.ConsultResult{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.byProtocol[protocol]
	if !ok {
		return ports.ConsultResult{}, ports.NewGatewayError(ports.CategoryRejected, "unknown protocol "+protocol, nil)
	}
	if s.pollsLeft > 0 {
		s.pollsLeft--
		return ports.ConsultResult{Outcome: ports.OutcomePending}, nil
	}
	if len(s.rejected) > 0 {
		return ports.ConsultResult{Outcome: ports.OutcomeRejected, Errors: slices.Clone(s.rejected)}, nil
	}
	if !s.resolved {
		g.receiptSeq++
		s.receipt = fmt.Sprintf("R-%06d", g.receiptSeq)
		s.resolved = true
		g.byReceipt[s.receipt] = s
	}
	return ports.ConsultResult{Outcome: ports.OutcomeAccepted, ReceiptNumber: s.receipt}, nil
}

func (g *Gateway) Cancel(ctx context.Context, receiptNumber, reason string) error {
	if err := g.enter(ctx, "cancel"); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.byReceipt[receiptNumber]
	switch {
	case !ok:
		return ports.NewGatewayError(ports.CategoryRejected, "unknown receipt "+receiptNumber, nil)
	case s.cancelled:
		return ports.NewGatewayError(ports.CategoryRejected, "receipt "+receiptNumber+" already cancelled", nil)
	case reason == "":
		return ports.NewGatewayError(ports.CategoryRejected, "cancellation reason is required", nil)
	}
	s.cancelled = true
	return nil
}

// enter applies latency and injected failures.
func (g *Gateway) enter(ctx context.Context, op string) error {
	if g.latency > 0 {
		t := time.NewTimer(g.latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ports.NewGatewayError(ports.CategoryTimeout, "simulated registry timed out", ctx.Err())
		case <-t.C:
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if category, ok := g.failNext[op]; ok {
		delete(g.failNext, op)
		return ports.NewGatewayError(category, "simulated "+string(category)+" failure", nil)
	}
	return nil
}

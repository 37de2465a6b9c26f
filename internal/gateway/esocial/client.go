// Package esocial is the HTTP client of the government compliance registry.
package esocial

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"esocial/internal/events/models"
	"esocial/internal/events/ports"
	"esocial/pkg/platform/circuit"
)

const maxResponseBytes = 1 << 20

// Config holds the registry endpoint and client limits.
type Config struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	RateLimit float64 // requests per second; 0 disables limiting
	RateBurst int
}

// Client implements ports.Gateway over the registry's JSON API.
type Client struct {
	baseURL *url.URL
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	breaker *circuit.Breaker
	tracer  trace.Tracer
	logger  *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(cl *Client) { cl.breaker = b }
}

func WithTracer(t trace.Tracer) Option {
	return func(cl *Client) { cl.tracer = t }
}

func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

func New(cfg Config, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid registry base URL %q", cfg.BaseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := max(cfg.RateBurst, 1)

	c := &Client{
		baseURL: base,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
		breaker: circuit.New("esocial-registry"),
		tracer:  otel.Tracer("esocial/gateway"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type submitRequest struct {
	EventType string          `json:"event_type"`
	EventCode string          `json:"event_code"`
	Payload   json.RawMessage `json:"payload"`
}

type submitResponse struct {
	Protocol string `json:"protocol"`
}

type consultResponse struct {
	Status        string               `json:"status"`
	ReceiptNumber string               `json:"receipt_number"`
	Errors        []models.ErrorDetail `json:"errors"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type errorResponse struct {
	Message string               `json:"message"`
	Errors  []models.ErrorDetail `json:"errors"`
}

// Submit posts one event and returns the registry's protocol.
func (c *Client) Submit(ctx context.Context, eventType models.EventType, payload json.RawMessage) (ports.SubmitResult, error) {
	body, err := json.Marshal(submitRequest{EventType: string(eventType), EventCode: eventType.Code(), Payload: payload})
	if err != nil {
		return ports.SubmitResult{}, ports.NewGatewayError(ports.CategoryInternal, "encode submission", err)
	}
	var resp submitResponse
	if err := c.do(ctx, "submit", http.MethodPost, "/events", body, &resp); err != nil {
		return ports.SubmitResult{}, err
	}
	if resp.Protocol == "" {
		return ports.SubmitResult{}, ports.NewGatewayError(ports.CategoryBadResponse, "registry returned no protocol", nil)
	}
	return ports.SubmitResult{Protocol: resp.Protocol}, nil
}

// ConsultByProtocol fetches the processing outcome of a submission.
func (c *Client) ConsultByProtocol(ctx context.Context, protocol string) (ports.ConsultResult, error) {
	var resp consultResponse
	if err := c.do(ctx, "consult", http.MethodGet, "/events/protocol/"+url.PathEscape(protocol), nil, &resp); err != nil {
		return ports.ConsultResult{}, err
	}
	return parseConsult(resp)
}

func parseConsult(resp consultResponse) (ports.ConsultResult, error) {
	switch strings.ToLower(resp.Status) {
	case "pending", "processing", "received":
		return ports.ConsultResult{Outcome: ports.OutcomePending}, nil
	case "accepted", "processed":
		if resp.ReceiptNumber == "" {
			return ports.ConsultResult{}, ports.NewGatewayError(ports.CategoryBadResponse, "accepted without receipt number", nil)
		}
		return ports.ConsultResult{Outcome: ports.OutcomeAccepted, ReceiptNumber: resp.ReceiptNumber}, nil
	case "rejected":
		return ports.ConsultResult{Outcome: ports.OutcomeRejected, Errors: resp.Errors}, nil
	default:
		return ports.ConsultResult{}, ports.NewGatewayError(ports.CategoryBadResponse, "unknown processing status "+resp.Status, nil)
	}
}

// Cancel asks the registry to withdraw a processed event.
func (c *Client) Cancel(ctx context.Context, receiptNumber, reason string) error {
	body, err := json.Marshal(cancelRequest{Reason: reason})
	if err != nil {
		return ports.NewGatewayError(ports.CategoryInternal, "encode cancellation", err)
	}
	return c.do(ctx, "cancel", http.MethodPost, "/events/receipt/"+url.PathEscape(receiptNumber)+"/cancel", body, nil)
}

// do runs one request through the rate limiter and circuit breaker and
// decodes a 2xx body into out. Every failure is a *ports.GatewayError.
func (c *Client) do(ctx context.Context, op, method, path string, body []byte, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "esocial."+op, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(ports.CategoryOf(err)))
		}
		span.End()
	}()

	if !c.breaker.Allow() {
		return ports.NewGatewayError(ports.CategoryUnavailable, "registry circuit is open", nil)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return ports.NewGatewayError(ports.CategoryTimeout, "waiting for rate limiter", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return ports.NewGatewayError(ports.CategoryInternal, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		ge := transportError(err)
		c.record(ctx, op, ge)
		return ge
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		ge := transportError(err)
		c.record(ctx, op, ge)
		return ge
	}
	if ge := statusError(resp.StatusCode, raw); ge != nil {
		c.record(ctx, op, ge)
		return ge
	}
	c.record(ctx, op, nil)
	c.logger.DebugContext(ctx, "registry call", "op", op, "status", resp.StatusCode, "duration", time.Since(start))

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		if out != nil {
			return ports.NewGatewayError(ports.CategoryBadResponse, "empty response body", nil)
		}
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return ports.NewGatewayError(ports.CategoryBadResponse, "decode response", err)
	}
	return nil
}

// record feeds the breaker. Only upstream health failures count against it;
// a rejected payload is a healthy answer.
func (c *Client) record(ctx context.Context, op string, ge *ports.GatewayError) {
	if ge == nil || !ge.Retryable {
		if _, change := c.breaker.RecordSuccess(); change.Closed {
			c.logger.InfoContext(ctx, "registry circuit closed", "op", op)
		}
		return
	}
	if _, change := c.breaker.RecordFailure(); change.Opened {
		c.logger.WarnContext(ctx, "registry circuit opened", "op", op, "category", ge.Category)
	}
}

func transportError(err error) *ports.GatewayError {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return ports.NewGatewayError(ports.CategoryTimeout, "registry did not respond in time", err)
	case errors.Is(err, context.Canceled):
		return ports.NewGatewayError(ports.CategoryTimeout, "request cancelled", err)
	default:
		return ports.NewGatewayError(ports.CategoryUnavailable, "registry unreachable", err)
	}
}

// statusError maps a non-2xx response onto the gateway error taxonomy.
func statusError(status int, body []byte) *ports.GatewayError {
	if status >= 200 && status < 300 {
		return nil
	}
	msg := http.StatusText(status)
	var er errorResponse
	if json.Unmarshal(body, &er) == nil {
		switch {
		case er.Message != "":
			msg = er.Message
		case len(er.Errors) > 0:
			msg = er.Errors[0].Code + ": " + er.Errors[0].Description
		}
	}

	var category ports.ErrorCategory
	switch {
	case status == http.StatusTooManyRequests:
		category = ports.CategoryRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		category = ports.CategoryTimeout
	case status >= 500:
		category = ports.CategoryUnavailable
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		category = ports.CategoryInternal
		msg = "registry refused credentials: " + msg
	default:
		category = ports.CategoryRejected
	}
	return ports.NewGatewayError(category, msg, fmt.Errorf("registry responded %d", status))
}

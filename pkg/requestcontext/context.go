// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets the values; services and stores read them without importing
// net/http. Tests inject them directly:
//
//	ctx = requestcontext.WithEmployerID(ctx, employerID)
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"

	id "esocial/pkg/domain"
)

type (
	employerIDKey  struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
	clientIPKey    struct{}
	userAgentKey   struct{}
)

// Exported context keys for tests that need context.WithValue directly.
var (
	ContextKeyEmployerID  = employerIDKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
	ContextKeyClientIP    = clientIPKey{}
	ContextKeyUserAgent   = userAgentKey{}
)

// EmployerID retrieves the authenticated employer ID.
// Returns the zero value (nil UUID) if not set.
func EmployerID(ctx context.Context) id.EmployerID {
	if employerID, ok := ctx.Value(ContextKeyEmployerID).(id.EmployerID); ok {
		return employerID
	}
	return id.EmployerID{}
}

// WithEmployerID injects the authenticated employer ID.
func WithEmployerID(ctx context.Context, employerID id.EmployerID) context.Context {
	return context.WithValue(ctx, ContextKeyEmployerID, employerID)
}

// RequestID retrieves the request correlation ID.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request correlation ID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// ClientIP retrieves the caller IP address.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ContextKeyClientIP).(string); ok {
		return ip
	}
	return ""
}

// UserAgent retrieves the caller User-Agent.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(ContextKeyUserAgent).(string); ok {
		return ua
	}
	return ""
}

// WithClientMetadata injects client IP and User-Agent.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyClientIP, clientIP)
	return context.WithValue(ctx, ContextKeyUserAgent, userAgent)
}

// Now retrieves the request-scoped time.
// Falls back to time.Now() outside HTTP requests (poller, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time. The poller uses it to stamp a whole batch
// with one instant; tests use it to pin transitions.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}

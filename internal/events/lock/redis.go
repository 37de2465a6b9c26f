package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"esocial/pkg/platform/sentinel"
)

const (
	defaultLeaseTTL      = 30 * time.Second
	defaultRetryInterval = 25 * time.Millisecond
	defaultKeyPrefix     = "esocial:lock:"
	releaseTimeout       = 2 * time.Second
	minRenewInterval     = 5 * time.Millisecond
)

// ErrLeaseLost is the cancellation cause of fn's context when another holder
// took the key or the lease could not be extended before it expired.
var ErrLeaseLost = errors.New("event lock lease lost")

// releaseScript deletes the lock only if it still carries our token, so an
// expired lease taken over by another holder is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// renewScript extends the lease only while it still carries our token.
var renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker is a lease lock shared by every instance using the same Redis.
// The lease is extended every ttl/3 while fn runs; once it is lost, fn's
// context is cancelled with ErrLeaseLost.
type RedisLocker struct {
	client        *redis.Client
	ttl           time.Duration
	retryInterval time.Duration
	prefix        string
	logger        *slog.Logger
}

type RedisOption func(*RedisLocker)

func WithTTL(ttl time.Duration) RedisOption {
	return func(l *RedisLocker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

func WithRetryInterval(d time.Duration) RedisOption {
	return func(l *RedisLocker) {
		if d > 0 {
			l.retryInterval = d
		}
	}
}

func WithKeyPrefix(prefix string) RedisOption {
	return func(l *RedisLocker) { l.prefix = prefix }
}

func WithLogger(logger *slog.Logger) RedisOption {
	return func(l *RedisLocker) { l.logger = logger }
}

func NewRedisLocker(client *redis.Client, opts ...RedisOption) *RedisLocker {
	l := &RedisLocker{
		client:        client,
		ttl:           defaultLeaseTTL,
		retryInterval: defaultRetryInterval,
		prefix:        defaultKeyPrefix,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// WithLock acquires key with SET NX PX, retrying until ctx is done, runs fn
// while keeping the lease alive and releases it with a token-checked delete.
func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	redisKey := l.prefix + key
	token := uuid.NewString()
	if err := l.acquire(ctx, redisKey, token); err != nil {
		return err
	}
	defer l.release(ctx, redisKey, token)

	fnCtx, lose := context.WithCancelCause(ctx)
	defer lose(nil)
	renewCtx, stopRenew := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.keepAlive(renewCtx, redisKey, token, lose)
	}()

	err := fn(fnCtx)
	stopRenew()
	wg.Wait()
	return err
}

// keepAlive extends the lease until ctx is done. A lease that is no longer
// ours, or that would expire before the next attempt, cancels fn.
func (l *RedisLocker) keepAlive(ctx context.Context, key, token string, lose context.CancelCauseFunc) {
	interval := max(l.ttl/3, minRenewInterval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	extendedAt := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		n, err := renewScript.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int()
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			if time.Since(extendedAt)+interval < l.ttl {
				l.logger.WarnContext(ctx, "failed to extend event lock lease; retrying", "key", key, "error", err)
				continue
			}
			l.logger.ErrorContext(ctx, "event lock lease expiring without renewal", "key", key, "error", err)
			lose(ErrLeaseLost)
			return
		case n == 0:
			l.logger.ErrorContext(ctx, "event lock lease taken by another holder", "key", key)
			lose(ErrLeaseLost)
			return
		default:
			extendedAt = time.Now()
		}
	}
}

func (l *RedisLocker) acquire(ctx context.Context, key, token string) error {
	ticker := time.NewTicker(l.retryInterval)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("acquire lock %s: %w", key, ctxErr)
			}
			return fmt.Errorf("acquire lock %s: %w", key, errors.Join(sentinel.ErrUnavailable, err))
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("acquire lock %s: %w", key, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) release(ctx context.Context, key, token string) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
		l.logger.WarnContext(ctx, "failed to release event lock; lease will expire",
			"key", key,
			"error", err,
		)
	}
}

//go:build integration

package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"esocial/pkg/testutil/containers"
)

type RedisLockerSuite struct {
	suite.Suite
	redis *containers.RedisContainer
}

func TestRedisLockerSuite(t *testing.T) {
	suite.Run(t, new(RedisLockerSuite))
}

func (s *RedisLockerSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *RedisLockerSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisLockerSuite) TestExcludesAcrossLockers() {
	// Two lockers model two service instances sharing one Redis.
	a := NewRedisLocker(s.redis.Client, WithRetryInterval(5*time.Millisecond))
	b := NewRedisLocker(s.redis.Client, WithRetryInterval(5*time.Millisecond))

	var inside, violations int32
	var wg sync.WaitGroup
	for i := range 10 {
		locker := a
		if i%2 == 1 {
			locker = b
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithLock(context.Background(), "event-1", func(ctx context.Context) error {
				if atomic.AddInt32(&inside, 1) > 1 {
					atomic.AddInt32(&violations, 1)
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			s.NoError(err)
		}()
	}
	wg.Wait()

	s.Zero(atomic.LoadInt32(&violations))
	exists, err := s.redis.Client.Exists(context.Background(), defaultKeyPrefix+"event-1").Result()
	s.Require().NoError(err)
	s.Zero(exists, "lease is released")
}

func (s *RedisLockerSuite) TestWaitRespectsContext() {
	l := NewRedisLocker(s.redis.Client)
	ctx := context.Background()
	s.Require().NoError(s.redis.Client.Set(ctx, defaultKeyPrefix+"busy", "someone-else", time.Minute).Err())

	waitCtx, cancel := context.WithTimeout(ctx, 60*time.Millisecond)
	defer cancel()
	err := l.WithLock(waitCtx, "busy", func(ctx context.Context) error {
		s.Fail("fn must not run without the lock")
		return nil
	})
	s.Require().ErrorIs(err, context.DeadlineExceeded)
}

func (s *RedisLockerSuite) TestReleaseKeepsForeignLease() {
	l := NewRedisLocker(s.redis.Client, WithTTL(time.Minute))
	ctx := context.Background()
	key := defaultKeyPrefix + "event-2"

	err := l.WithLock(ctx, "event-2", func(ctx context.Context) error {
		// Another instance took the key, e.g. after a Redis failover.
		return s.redis.Client.Set(ctx, key, "other-token", time.Minute).Err()
	})
	s.Require().NoError(err)

	val, err := s.redis.Client.Get(ctx, key).Result()
	s.Require().NoError(err)
	s.Equal("other-token", val)
}

func (s *RedisLockerSuite) TestLeaseIsExtendedWhileFnRuns() {
	const ttl = 90 * time.Millisecond
	a := NewRedisLocker(s.redis.Client, WithTTL(ttl))
	b := NewRedisLocker(s.redis.Client, WithTTL(ttl), WithRetryInterval(5*time.Millisecond))
	ctx := context.Background()

	err := a.WithLock(ctx, "event-3", func(ctx context.Context) error {
		// Outlive several TTLs; a second instance must still be locked out.
		waitCtx, cancel := context.WithTimeout(ctx, 4*ttl)
		defer cancel()
		err := b.WithLock(waitCtx, "event-3", func(context.Context) error {
			s.Fail("second holder entered while the lease was held")
			return nil
		})
		s.ErrorIs(err, context.DeadlineExceeded)
		s.NoError(ctx.Err(), "lease stayed ours")
		return nil
	})
	s.Require().NoError(err)
}

func (s *RedisLockerSuite) TestLostLeaseCancelsFn() {
	l := NewRedisLocker(s.redis.Client, WithTTL(60*time.Millisecond))
	ctx := context.Background()
	key := defaultKeyPrefix + "event-4"

	err := l.WithLock(ctx, "event-4", func(ctx context.Context) error {
		s.Require().NoError(s.redis.Client.Set(context.Background(), key, "other-token", time.Minute).Err())
		select {
		case <-ctx.Done():
			s.ErrorIs(context.Cause(ctx), ErrLeaseLost)
			return ctx.Err()
		case <-time.After(time.Second):
			s.Fail("fn kept running after the lease was taken")
			return nil
		}
	})
	s.ErrorIs(err, context.Canceled)
}

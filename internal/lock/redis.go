package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// RedisOptions configures a Redis locker.
type RedisOptions struct {
	Prefix     string        // key prefix, default "ledger:lock:account:"
	Expiry     time.Duration // lock TTL, extended every Expiry/3 while held
	Tries      int           // acquisition attempts per key
	RetryDelay time.Duration // delay between attempts
	Logger     *zap.Logger
}

// Redis is a distributed Locker backed by redsync. Backend failures trip a
// circuit breaker so callers fail fast while Redis is down; lock contention
// does not count as a failure.
type Redis struct {
	rs      *redsync.Redsync
	breaker *gobreaker.CircuitBreaker
	opts    RedisOptions
	logger  *zap.Logger
}

// NewRedis creates a Redis locker on top of client.
func NewRedis(client redis.UniversalClient, opts RedisOptions) *Redis {
	if opts.Prefix == "" {
		opts.Prefix = "ledger:lock:account:"
	}
	if opts.Expiry <= 0 {
		opts.Expiry = 8 * time.Second
	}
	if opts.Tries < 1 {
		opts.Tries = 32
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 50 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-lock",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("lock circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Redis{
		rs:      redsync.New(goredis.NewPool(client)),
		breaker: breaker,
		opts:    opts,
		logger:  logger,
	}
}

// Acquire implements Locker.
func (r *Redis) Acquire(ctx context.Context, keys ...string) (Release, error) {
	ordered := Order(keys)
	held := make([]*redsync.Mutex, 0, len(ordered))
	for _, k := range ordered {
		m, err := r.lock(ctx, k)
		if err != nil {
			r.unlockAll(held)
			return nil, err
		}
		held = append(held, m)
	}

	stop := r.keepAlive(held)
	var once sync.Once
	return func() {
		once.Do(func() {
			stop()
			r.unlockAll(held)
		})
	}, nil
}

// keepAlive extends every held mutex at a third of its expiry until stop is
// called, so a long critical section keeps its locks.
func (r *Redis) keepAlive(held []*redsync.Mutex) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(r.opts.Expiry / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				for _, m := range held {
					if ok, err := m.ExtendContext(context.Background()); !ok || err != nil {
						r.logger.Error("failed to extend lock",
							zap.String("lock_key", m.Name()),
							zap.Bool("extend_ok", ok),
							zap.Error(err))
					}
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

func (r *Redis) lock(ctx context.Context, key string) (*redsync.Mutex, error) {
	m := r.rs.NewMutex(
		r.opts.Prefix+key,
		redsync.WithExpiry(r.opts.Expiry),
		redsync.WithTries(r.opts.Tries),
		redsync.WithRetryDelay(r.opts.RetryDelay),
	)

	var lockErr error
	_, err := r.breaker.Execute(func() (interface{}, error) {
		lockErr = m.LockContext(ctx)
		if lockErr != nil && !isContention(ctx, lockErr) {
			return nil, lockErr
		}
		return nil, nil
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, fmt.Errorf("acquiring %s: %w: %w", key, ErrUnavailable, err)
	case err != nil:
		return nil, fmt.Errorf("acquiring %s: %w: %w", key, ErrUnavailable, err)
	case lockErr != nil:
		return nil, fmt.Errorf("acquiring %s: %w: %w", key, ErrTimeout, lockErr)
	}
	return m, nil
}

func (r *Redis) unlockAll(held []*redsync.Mutex) {
	for i := len(held) - 1; i >= 0; i-- {
		// Unlock must run even when the caller's context is already done.
		ok, err := held[i].UnlockContext(context.Background())
		if !ok || err != nil {
			r.logger.Error("failed to release lock",
				zap.String("lock_key", held[i].Name()),
				zap.Bool("unlock_ok", ok),
				zap.Error(err))
		}
	}
}

// isContention reports whether err means the lock is held elsewhere or the
// caller ran out of time, as opposed to the backend failing.
func isContention(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var taken *redsync.ErrTaken
	if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "lock already taken") || strings.Contains(msg, "failed to acquire lock")
}

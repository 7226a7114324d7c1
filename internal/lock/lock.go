// Package lock provides multi-key mutual exclusion with a fixed global
// acquisition order, so two callers locking the same keys in any order
// cannot deadlock.
package lock

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

var (
	// ErrTimeout is returned when a lock could not be acquired before ctx was done
	// or the backend gave up retrying.
	ErrTimeout = errors.New("lock acquisition timed out")
	// ErrUnavailable is returned when the lock backend cannot be reached.
	ErrUnavailable = errors.New("lock backend unavailable")
)

// Release frees every key held by an Acquire call. Safe to call more than once.
type Release func()

// Locker acquires exclusive access to a set of keys.
type Locker interface {
	// Acquire locks all keys in ascending order. On error nothing is held.
	Acquire(ctx context.Context, keys ...string) (Release, error)
}

// Order returns keys sorted ascending with duplicates removed.
func Order(keys []string) []string {
	ordered := slices.Clone(keys)
	slices.Sort(ordered)
	return slices.Compact(ordered)
}

// Local is an in-process Locker backed by one channel per key.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int // holders + waiters
}

// NewLocal creates an empty in-process Locker.
func NewLocal() *Local {
	return &Local{slots: make(map[string]*slot)}
}

// Acquire implements Locker.
func (l *Local) Acquire(ctx context.Context, keys ...string) (Release, error) {
	ordered := Order(keys)
	held := make([]string, 0, len(ordered))
	for _, k := range ordered {
		if err := l.lock(ctx, k); err != nil {
			l.unlockAll(held)
			return nil, err
		}
		held = append(held, k)
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.unlockAll(held) })
	}, nil
}

func (l *Local) lock(ctx context.Context, key string) error {
	s := l.ref(key)

	if err := ctx.Err(); err != nil {
		l.unref(key, s)
		return fmt.Errorf("acquiring %s: %w: %w", key, ErrTimeout, err)
	}

	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.unref(key, s)
		return fmt.Errorf("acquiring %s: %w: %w", key, ErrTimeout, ctx.Err())
	}
}

func (l *Local) ref(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *Local) unref(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

func (l *Local) unlockAll(keys []string) {
	// Release in reverse acquisition order.
	for i := len(keys) - 1; i >= 0; i-- {
		l.mu.Lock()
		s := l.slots[keys[i]]
		l.mu.Unlock()
		<-s.ch
		l.unref(keys[i], s)
	}
}

// held reports the number of keys with a live slot. Used by tests.
func (l *Local) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

package cache

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// ErrUnavailable means no refresh has succeeded yet, so there is nothing to
// serve. Once a store has held a value it never returns this again.
var ErrUnavailable = errors.New("cache: no data available yet")

// RefreshFunc produces a fresh value. now is the instant the run was
// triggered at; implementations use it for every recency decision so the
// value and the store's timestamp agree.
type RefreshFunc[T any] func(ctx context.Context, now time.Time) (T, error)

// Refresher is the trigger surface the cron scheduler drives.
type Refresher interface {
	RequestRefresh(force bool)
}

type entry[T any] struct {
	value       T
	generatedAt time.Time
}

// Store keeps the last successful result of a refresh function and
// coordinates re-runs: at most one refresh in flight, a TTL below which
// non-forced triggers are no-ops, and stale values served while a new run
// is underway. A failed run never evicts the previous value.
type Store[T any] struct {
	name    string
	ttl     time.Duration
	timeout time.Duration
	refresh RefreshFunc[T]

	now func() time.Time

	mu        sync.Mutex
	current   *entry[T]
	inflight  chan struct{}
	firstDone bool
}

func New[T any](name string, ttl, timeout time.Duration, refresh RefreshFunc[T]) *Store[T] {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Store[T]{
		name:    name,
		ttl:     ttl,
		timeout: timeout,
		refresh: refresh,
		now:     time.Now,
	}
}

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Get returns the cached value and its generation time, triggering a
// background refresh when the value has gone stale. It blocks only while
// the very first refresh is still in flight; after that a store without
// data answers ErrUnavailable immediately and retries in the background.
func (s *Store[T]) Get(ctx context.Context) (T, time.Time, error) {
	var zero T

	s.mu.Lock()
	done := s.triggerLocked(false)
	cur := s.current
	wait := cur == nil && !s.firstDone
	s.mu.Unlock()

	if cur != nil {
		return cur.value, cur.generatedAt, nil
	}
	if !wait {
		return zero, time.Time{}, ErrUnavailable
	}

	select {
	case <-done:
	case <-ctx.Done():
		return zero, time.Time{}, ctx.Err()
	}

	s.mu.Lock()
	cur = s.current
	s.mu.Unlock()
	if cur == nil {
		return zero, time.Time{}, ErrUnavailable
	}
	return cur.value, cur.generatedAt, nil
}

// RequestRefresh triggers a refresh. Non-forced requests respect the TTL;
// forced ones only coalesce with a run already in flight. It never blocks
// on the run itself.
func (s *Store[T]) RequestRefresh(force bool) {
	s.mu.Lock()
	s.triggerLocked(force)
	s.mu.Unlock()
}

// triggerLocked decides whether a refresh run starts. Callers hold mu. The
// returned channel closes when the relevant run completes; for a TTL no-op
// it is closed already.
func (s *Store[T]) triggerLocked(force bool) <-chan struct{} {
	if s.inflight != nil {
		return s.inflight
	}
	if !force && s.current != nil && s.now().Sub(s.current.generatedAt) < s.ttl {
		return closedChan
	}

	ch := make(chan struct{})
	s.inflight = ch
	go s.run(ch, s.now())
	return ch
}

func (s *Store[T]) run(done chan struct{}, started time.Time) {
	defer close(done)

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	wall := time.Now()
	value, err := s.refresh(ctx, started)

	s.mu.Lock()
	s.firstDone = true
	s.inflight = nil
	if err != nil {
		s.mu.Unlock()
		log.Printf("%s: refresh failed after %s: %v", s.name, time.Since(wall).Round(time.Millisecond), err)
		return
	}
	s.current = &entry[T]{value: value, generatedAt: started}
	s.mu.Unlock()

	log.Printf("%s: refresh ok in %s", s.name, time.Since(wall).Round(time.Millisecond))
}

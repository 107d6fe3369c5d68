package services

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/custodia-labs/prdmachine/internal/core/domain"
)

// keyedRunner runs at most one function per document key at a time and at
// most `workers` functions overall. Waiters for one key queue in arrival order.
type keyedRunner struct {
	mu    sync.Mutex
	locks map[domain.DocumentKey]*keyLock
	sem   *semaphore.Weighted
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// newKeyedRunner creates a runner. workers <= 0 means unbounded.
func newKeyedRunner(workers int) *keyedRunner {
	r := &keyedRunner{locks: make(map[domain.DocumentKey]*keyLock)}
	if workers > 0 {
		r.sem = semaphore.NewWeighted(int64(workers))
	}
	return r
}

// Do runs fn with exclusive access to key. It returns ctx.Err() if the
// context ends while waiting.
func (r *keyedRunner) Do(ctx context.Context, key domain.DocumentKey, fn func(context.Context) error) error {
	l := r.ref(key)
	defer r.unref(key, l)

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.ch }()

	if r.sem != nil {
		if err := r.sem.Acquire(ctx, 1); err != nil {
			return err
		}
		defer r.sem.Release(1)
	}

	return fn(ctx)
}

func (r *keyedRunner) ref(key domain.DocumentKey) *keyLock {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		r.locks[key] = l
	}
	l.refs++
	return l
}

func (r *keyedRunner) unref(key domain.DocumentKey, l *keyLock) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l.refs--
	if l.refs == 0 {
		delete(r.locks, key)
	}
}

package cache

import (
	"context"
	"sync"
	"time"
)

// Fresh holds a single value together with the time it was fetched. The value
// is reused while it is younger than the freshness window and refetched
// otherwise.
//
// Concurrent callers of GetOrRefresh share one fetch: the mutex is held for
// the duration of the fetch.
type Fresh[T any] struct {
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
	value     T
	fetchedAt time.Time
	valid     bool
}

// NewFresh creates an empty value with the given freshness window
func NewFresh[T any](ttl time.Duration, opts ...Option) *Fresh[T] {
	o := buildOptions(opts)
	return &Fresh[T]{ttl: ttl, now: o.now}
}

// GetOrRefresh returns the cached value if it is still fresh, otherwise it
// calls fetch and stores the result. A failed fetch leaves the previous value
// untouched.
func (f *Fresh[T]) GetOrRefresh(ctx context.Context, fetch func(context.Context) (T, error)) (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.freshLocked() {
		return f.value, nil
	}
	return f.fetchLocked(ctx, fetch)
}

// Refresh always calls fetch, ignoring the freshness window
func (f *Fresh[T]) Refresh(ctx context.Context, fetch func(context.Context) (T, error)) (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchLocked(ctx, fetch)
}

func (f *Fresh[T]) fetchLocked(ctx context.Context, fetch func(context.Context) (T, error)) (T, error) {
	v, err := fetch(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	f.value = v
	f.fetchedAt = f.now()
	f.valid = true
	return v, nil
}

func (f *Fresh[T]) freshLocked() bool {
	return f.valid && f.now().Sub(f.fetchedAt) < f.ttl
}

// Peek returns the held value without fetching, and whether it is fresh
func (f *Fresh[T]) Peek() (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.freshLocked()
}

// Update mutates the held value in place without touching its fetch time.
// It is a no-op when nothing has been fetched yet.
func (f *Fresh[T]) Update(fn func(T) T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.valid {
		return
	}
	f.value = fn(f.value)
}

// Invalidate forces the next GetOrRefresh to fetch
func (f *Fresh[T]) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.valid = false
}

// FetchedAt returns when the value was last fetched, zero if never
func (f *Fresh[T]) FetchedAt() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.valid {
		return time.Time{}
	}
	return f.fetchedAt
}

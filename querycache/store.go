// Package querycache provides the reactive query cache the invalidation
// router drives. It is a thread-safe keyed store of fetched resources with
// always-on statistics, optional Prometheus metrics, and invalidation
// listeners so observers can refetch when a key is dropped.
package querycache

import (
	"sync"

	"github.com/shnupta/porter/errors"
	"github.com/shnupta/porter/invalidate"
)

// Listener is notified after a key has been invalidated. Listeners run
// synchronously on the invalidating goroutine and must be quick.
type Listener func(key invalidate.Key)

// Store is a generic query cache keyed by invalidation key string form.
// It satisfies invalidate.Invalidator.
type Store[V any] struct {
	mu        sync.RWMutex
	items     map[string]V
	listeners []Listener
	stats     *Statistics
	metrics   *storeMetrics
}

// New creates an empty store. Returns an error if metrics registration
// fails when requested.
func New[V any](opts ...Option[V]) (*Store[V], error) {
	options := applyOptions(opts...)

	// Stats are always collected; metrics export is opt-in.
	var metrics *storeMetrics
	if options.metricsReg != nil && options.metricsPrefix != "" {
		var err error
		metrics, err = newStoreMetrics(options.metricsReg, options.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "querycache", "New", "metrics registration")
		}
	}

	return &Store[V]{
		items:   make(map[string]V),
		stats:   NewStatistics(),
		metrics: metrics,
	}, nil
}

// Get retrieves a cached value by key.
func (s *Store[V]) Get(key invalidate.Key) (V, bool) {
	s.mu.RLock()
	value, exists := s.items[key.String()]
	s.mu.RUnlock()

	if exists {
		s.stats.Hit()
		if s.metrics != nil {
			s.metrics.recordHit()
		}
	} else {
		s.stats.Miss()
		if s.metrics != nil {
			s.metrics.recordMiss()
		}
	}

	return value, exists
}

// Set stores a fetched value under key. Returns true if a new entry was
// created, false if an existing one was replaced.
func (s *Store[V]) Set(key invalidate.Key, value V) (bool, error) {
	if key.Name == "" {
		return false, errors.WrapInvalid(errors.ErrInvalidKey, "querycache", "Set", "validate key")
	}

	s.mu.Lock()
	_, exists := s.items[key.String()]
	s.items[key.String()] = value
	size := len(s.items)
	s.mu.Unlock()

	s.stats.Set()
	s.stats.UpdateSize(int64(size))
	if s.metrics != nil {
		s.metrics.recordSet()
		s.metrics.updateSize(size)
	}

	return !exists, nil
}

// Invalidate drops the cached value for key, if any, and notifies listeners.
// It implements invalidate.Invalidator, the only operation the router calls.
func (s *Store[V]) Invalidate(key invalidate.Key) {
	s.mu.Lock()
	delete(s.items, key.String())
	size := len(s.items)
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	s.stats.Invalidation()
	s.stats.UpdateSize(int64(size))
	if s.metrics != nil {
		s.metrics.recordInvalidation()
		s.metrics.updateSize(size)
	}

	for _, fn := range listeners {
		fn(key)
	}
}

// OnInvalidate registers a listener called after each invalidation. This is
// the reactive half of the cache: UI-side observers refetch the key's
// resource when notified.
func (s *Store[V]) OnInvalidate(fn Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Clear removes all entries without notifying listeners.
func (s *Store[V]) Clear() {
	s.mu.Lock()
	s.items = make(map[string]V)
	s.mu.Unlock()

	s.stats.UpdateSize(0)
	if s.metrics != nil {
		s.metrics.updateSize(0)
	}
}

// Size returns the current number of cached entries.
func (s *Store[V]) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Keys returns the string form of all currently cached keys.
func (s *Store[V]) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	return keys
}

// Stats returns the store's statistics tracker.
func (s *Store[V]) Stats() *Statistics {
	return s.stats
}

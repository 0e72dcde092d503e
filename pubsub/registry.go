// Package pubsub provides the subscriber registry that fans decoded events
// out to interested consumers. Dispatch is ordered, snapshot-based, and
// isolates each handler: one consumer failing never starves the others.
package pubsub

import (
	"log"
	"sync"

	"github.com/shnupta/porter/event"
)

// Handler consumes a decoded envelope. Handlers must not retain the envelope
// payload beyond the call unless they copy it.
type Handler func(*event.Envelope)

// UnsubscribeFunc removes the handler it was returned for. It is idempotent:
// calling it more than once is a no-op.
type UnsubscribeFunc func()

// Logger is the minimal logging interface used for reporting handler faults.
type Logger interface {
	Printf(format string, v ...any)
	Errorf(format string, v ...any)
	Debugf(format string, v ...any)
}

// defaultLogger implements Logger using the standard log package
type defaultLogger struct{}

func (l *defaultLogger) Printf(format string, v ...any) {
	log.Printf("[PUBSUB] "+format, v...)
}

func (l *defaultLogger) Errorf(format string, v ...any) {
	log.Printf("[PUBSUB ERROR] "+format, v...)
}

func (l *defaultLogger) Debugf(_ string, _ ...any) {
	// Silent by default
}

type subscriber struct {
	id uint64
	fn Handler
}

// Registry holds an ordered set of subscribers and dispatches envelopes to
// them. Subscribe and Unsubscribe may be called concurrently with Dispatch;
// a dispatch in flight operates on the snapshot taken when it started, so
// removal takes effect from the next dispatch.
type Registry struct {
	mu     sync.Mutex
	subs   []subscriber
	nextID uint64
	logger Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets a custom logger for handler fault reporting.
func WithLogger(logger Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates an empty subscriber registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{logger: &defaultLogger{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subscribe adds a handler to the end of the registration order and returns
// a capability that removes exactly that handler.
func (r *Registry) Subscribe(fn Handler) UnsubscribeFunc {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.subs = append(r.subs, subscriber{id: id, fn: fn})
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, s := range r.subs {
			if s.id == id {
				r.subs = append(r.subs[:i:i], r.subs[i+1:]...)
				return
			}
		}
	}
}

// Len returns the number of currently registered subscribers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Dispatch delivers the envelope to every subscriber registered at dispatch
// start, in registration order. A panicking handler is recovered and logged;
// remaining handlers still run. Handlers unsubscribing themselves or others
// mid-dispatch affect subsequent dispatches only.
func (r *Registry) Dispatch(env *event.Envelope) {
	r.mu.Lock()
	snapshot := make([]subscriber, len(r.subs))
	copy(snapshot, r.subs)
	r.mu.Unlock()

	for _, s := range snapshot {
		r.invoke(s, env)
	}
}

func (r *Registry) invoke(s subscriber, env *event.Envelope) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Errorf("subscriber %d panicked handling %q: %v", s.id, env.Type, rec)
		}
	}()
	s.fn(env)
}

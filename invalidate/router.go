// Package invalidate translates realtime events into cache invalidation
// instructions. A declarative rule table maps an event kind to one or more
// key derivations; the router evaluates matching rules against the payload
// and emits one Invalidate call per distinct key.
//
// Rule evaluation is forgiving on the common path: an unmapped event kind
// produces no keys, a predicate that cannot be evaluated skips its rule, and
// a dynamic key template missing its payload field silently omits that key.
package invalidate

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/shnupta/porter/event"
	"github.com/shnupta/porter/metric"
)

// Well-known key names for porter-cached resources.
const (
	KeyTasks         = "tasks"
	KeyServerStatus  = "server-status"
	KeyAgentSessions = "agent-sessions"
	KeyAgentSession  = "agent-session"
	KeyAgentMessages = "agent-messages"
	KeyNotifications = "notifications"
)

// Key identifies a unit of externally cached data. Name alone addresses a
// collection ("tasks"); Name plus ID addresses a detail resource
// ("agent-session", "abc"). Keys are opaque to this package beyond equality.
type Key struct {
	Name string
	ID   string
}

// Static builds a collection key.
func Static(name string) Key {
	return Key{Name: name}
}

// Detail builds a per-resource key.
func Detail(name, id string) Key {
	return Key{Name: name, ID: id}
}

// String renders the key in "name" or "name:id" form for use as a flat
// cache key or log field.
func (k Key) String() string {
	if k.ID == "" {
		return k.Name
	}
	return k.Name + ":" + k.ID
}

// Invalidator is the single operation this package calls on the external
// reactive cache.
type Invalidator interface {
	Invalidate(key Key)
}

// InvalidatorFunc adapts a function to the Invalidator interface.
type InvalidatorFunc func(key Key)

// Invalidate calls f(key).
func (f InvalidatorFunc) Invalidate(key Key) { f(key) }

// KeyTemplate derives a key from an envelope. Returning false omits the key
// without failing the rule.
type KeyTemplate func(env *event.Envelope) (Key, bool)

// StaticKey returns a template that always produces the given collection key.
func StaticKey(name string) KeyTemplate {
	key := Static(name)
	return func(*event.Envelope) (Key, bool) {
		return key, true
	}
}

// SessionKey returns a template deriving a detail key from the payload's
// session_id field. A missing field omits the key.
func SessionKey(name string) KeyTemplate {
	return func(env *event.Envelope) (Key, bool) {
		sid, ok := env.SessionID()
		if !ok || sid == "" {
			return Key{}, false
		}
		return Detail(name, sid), true
	}
}

// Predicate gates a rule on the payload. A predicate that cannot be
// evaluated should return false, never panic.
type Predicate func(env *event.Envelope) bool

// Rule maps one event kind to a set of key derivations, optionally gated by
// a predicate. A kind may carry several rules.
type Rule struct {
	EventKind string
	Keys      []KeyTemplate
	When      Predicate // nil means unconditional
}

// Router holds the rule table and the cache it drives. Rules for the same
// kind keep their declaration order, which fixes the emission order.
type Router struct {
	rules   map[string][]Rule
	inv     Invalidator
	metrics *routerMetrics
}

type routerMetrics struct {
	keysEmitted *prometheus.CounterVec
}

func newRouterMetrics(registry *metric.Registry) *routerMetrics {
	if registry == nil {
		return nil
	}

	m := &routerMetrics{
		keysEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "porter",
			Subsystem: "invalidate",
			Name:      "keys_emitted_total",
			Help:      "Cache keys emitted for invalidation, by key name",
		}, []string{"key"}),
	}

	if err := registry.RegisterCounterVec("invalidate", "keys_emitted", m.keysEmitted); err != nil {
		return nil
	}
	return m
}

// Option configures a Router.
type Option func(*Router)

// WithMetrics enables Prometheus metrics for emitted keys.
func WithMetrics(registry *metric.Registry) Option {
	return func(r *Router) {
		r.metrics = newRouterMetrics(registry)
	}
}

// NewRouter creates a router over the given rule table, emitting to inv.
func NewRouter(inv Invalidator, rules []Rule, opts ...Option) *Router {
	r := &Router{
		rules: make(map[string][]Rule),
		inv:   inv,
	}
	for _, rule := range rules {
		r.rules[rule.EventKind] = append(r.rules[rule.EventKind], rule)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route computes the ordered, de-duplicated key set for an envelope without
// emitting. Order is rule order then template order, first occurrence wins,
// so a given envelope always yields the same sequence.
func (r *Router) Route(env *event.Envelope) []Key {
	rules, ok := r.rules[env.Type]
	if !ok {
		return nil
	}

	var keys []Key
	seen := make(map[Key]struct{})

	for _, rule := range rules {
		if rule.When != nil && !rule.When(env) {
			continue
		}
		for _, tmpl := range rule.Keys {
			key, ok := tmpl(env)
			if !ok {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}

	return keys
}

// HandleEnvelope routes the envelope and emits one Invalidate call per key.
// It satisfies pubsub.Handler.
func (r *Router) HandleEnvelope(env *event.Envelope) {
	for _, key := range r.Route(env) {
		r.inv.Invalidate(key)
		if r.metrics != nil {
			r.metrics.keysEmitted.WithLabelValues(key.Name).Inc()
		}
	}
}

// DefaultRules is the porter rule table. Task mutations refresh the task
// list and the server status summary. Agent status changes refresh the
// session list, and additionally the session's detail and message keys once
// it has finished (completed or failed), when durable history becomes
// authoritative. AgentOutput deliberately touches only the session list:
// streamed message content for a running session is owned by the stream
// aggregator, not the cache, so a refetch storm during streaming is
// impossible.
func DefaultRules() []Rule {
	finished := func(env *event.Envelope) bool {
		status, ok := env.SessionStatus()
		if !ok {
			return false
		}
		return status == event.AgentCompleted || status == event.AgentFailed
	}

	return []Rule{
		{
			EventKind: event.KindTaskCreated,
			Keys:      []KeyTemplate{StaticKey(KeyTasks), StaticKey(KeyServerStatus)},
		},
		{
			EventKind: event.KindTaskUpdated,
			Keys:      []KeyTemplate{StaticKey(KeyTasks), StaticKey(KeyServerStatus)},
		},
		{
			EventKind: event.KindTaskDeleted,
			Keys:      []KeyTemplate{StaticKey(KeyTasks), StaticKey(KeyServerStatus)},
		},
		{
			EventKind: event.KindAgentStatusChanged,
			Keys:      []KeyTemplate{StaticKey(KeyAgentSessions), StaticKey(KeyServerStatus)},
		},
		{
			EventKind: event.KindAgentStatusChanged,
			When:      finished,
			Keys:      []KeyTemplate{SessionKey(KeyAgentSession), SessionKey(KeyAgentMessages)},
		},
		{
			EventKind: event.KindAgentOutput,
			Keys:      []KeyTemplate{StaticKey(KeyAgentSessions)},
		},
		{
			EventKind: event.KindNotification,
			Keys:      []KeyTemplate{StaticKey(KeyNotifications)},
		},
	}
}

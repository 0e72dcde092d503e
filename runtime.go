package porter

import (
	"context"
	"sync"

	"github.com/shnupta/porter/apiclient"
	"github.com/shnupta/porter/config"
	"github.com/shnupta/porter/errors"
	"github.com/shnupta/porter/invalidate"
	"github.com/shnupta/porter/metric"
	"github.com/shnupta/porter/pubsub"
	"github.com/shnupta/porter/querycache"
	"github.com/shnupta/porter/realtime"
	"github.com/shnupta/porter/stream"
)

// Runtime composes the client components: one connection manager feeding the
// invalidation router and the stream aggregator, a query cache driven by the
// router, and a REST client for refetching invalidated data.
type Runtime struct {
	cfg     config.Config
	metrics *metric.Registry
	manager *realtime.Manager
	cache   *querycache.Store[any]
	router  *invalidate.Router
	streams *stream.Aggregator
	api     *apiclient.Client

	mu     sync.Mutex
	unsubs []pubsub.UnsubscribeFunc
}

// NewRuntime builds a runtime from configuration. No connection is opened
// until Start.
func NewRuntime(cfg config.Config) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	metrics := metric.NewRegistry()

	cache, err := querycache.New[any](querycache.WithMetrics[any](metrics, "queries"))
	if err != nil {
		return nil, errors.Wrap(err, "Runtime", "NewRuntime", "create query cache")
	}

	router := invalidate.NewRouter(cache, invalidate.DefaultRules(), invalidate.WithMetrics(metrics))
	streams := stream.NewAggregator()

	manager, err := realtime.NewManager(cfg.EventsURL,
		realtime.WithReconnectDelay(cfg.ReconnectDelay.Std()),
		realtime.WithMetrics(metrics),
	)
	if err != nil {
		return nil, errors.Wrap(err, "Runtime", "NewRuntime", "create connection manager")
	}

	api, err := apiclient.NewClient(cfg.APIBaseURL,
		apiclient.WithRequestTimeout(cfg.RequestTimeout.Std()),
	)
	if err != nil {
		return nil, errors.Wrap(err, "Runtime", "NewRuntime", "create api client")
	}

	r := &Runtime{
		cfg:     cfg,
		metrics: metrics,
		manager: manager,
		cache:   cache,
		router:  router,
		streams: streams,
		api:     api,
	}

	// Router first so caches are stale-marked before aggregator consumers
	// observe the new stream state.
	r.unsubs = append(r.unsubs,
		manager.Subscribe(router.HandleEnvelope),
		manager.Subscribe(streams.Listener()),
	)

	return r, nil
}

// Start opens the realtime connection. Recovery after that is automatic.
func (r *Runtime) Start(ctx context.Context) error {
	return r.manager.Connect(ctx)
}

// Stop closes the connection. Subscribers stay registered so the runtime
// can be started again; use Close to tear everything down.
func (r *Runtime) Stop() {
	r.manager.Disconnect()
}

// Close stops the runtime and removes the internal subscribers for good.
func (r *Runtime) Close() {
	r.manager.Disconnect()

	r.mu.Lock()
	unsubs := r.unsubs
	r.unsubs = nil
	r.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}

// Subscribe registers an additional handler for every decoded event.
func (r *Runtime) Subscribe(fn pubsub.Handler) pubsub.UnsubscribeFunc {
	return r.manager.Subscribe(fn)
}

// ConnectionState reports the realtime connection state.
func (r *Runtime) ConnectionState() realtime.State {
	return r.manager.State()
}

// Cache returns the query cache driven by the invalidation router.
func (r *Runtime) Cache() *querycache.Store[any] {
	return r.cache
}

// Streams returns the agent output aggregator.
func (r *Runtime) Streams() *stream.Aggregator {
	return r.streams
}

// API returns the REST client.
func (r *Runtime) API() *apiclient.Client {
	return r.api
}

// Metrics returns the metrics registry shared by all components.
func (r *Runtime) Metrics() *metric.Registry {
	return r.metrics
}

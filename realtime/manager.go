// Package realtime owns the single logical websocket connection to the
// porter server. The Manager dials, reads frames, decodes them, and fans the
// resulting envelopes out through a subscriber registry. On failure it
// schedules exactly one fixed-delay reconnect attempt; Disconnect cancels
// everything synchronously so no late callback can resurrect the connection.
package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/shnupta/porter/errors"
	"github.com/shnupta/porter/event"
	"github.com/shnupta/porter/pubsub"
)

// State is the externally observable connection state. Opening a connection
// is not a distinguished state: the Manager reports Disconnected until the
// dial resolves.
type State int

// Connection states
const (
	StateDisconnected State = iota
	StateOpen
	StateReconnectScheduled
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateOpen:
		return "open"
	case StateReconnectScheduled:
		return "reconnect_scheduled"
	default:
		return "unknown"
	}
}

// Manager maintains the connection lifecycle. It exclusively owns the
// socket handle and the pending-reconnect timer: at most one of each is
// live at any instant, and a connection and a pending timer never coexist.
type Manager struct {
	url            string
	reconnectDelay time.Duration
	dialer         Dialer
	logger         Logger
	registry       *pubsub.Registry
	metrics        *managerMetrics

	mu       sync.Mutex
	state    State
	conn     Conn
	timer    *time.Timer
	timerSeq uint64 // identity of the pending timer; stale firings bail out
	gen      uint64 // bumped by Disconnect; stale dials and closures bail out
	dialing  bool
	dialGen  uint64 // generation the in-flight dial was started under
}

// NewManager creates a manager for the given websocket URL. An empty URL
// selects the local development default. The manager does not connect until
// Connect is called.
func NewManager(url string, opts ...Option) (*Manager, error) {
	if url == "" {
		url = DefaultURL
	}

	m := &Manager{
		url:            url,
		reconnectDelay: DefaultReconnectDelay,
		dialer:         newWebsocketDialer(),
		logger:         &defaultLogger{},
		state:          StateDisconnected,
	}

	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, errors.WrapInvalid(err, "Manager", "NewManager", "apply option")
		}
	}

	m.registry = pubsub.NewRegistry(pubsub.WithLogger(m.logger))

	m.logger.Debugf("Created realtime manager for %s", url)

	return m, nil
}

// URL returns the configured endpoint.
func (m *Manager) URL() string {
	return m.url
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers a handler for every decoded envelope. The returned
// capability removes exactly that handler and is safe to call more than
// once.
func (m *Manager) Subscribe(fn pubsub.Handler) pubsub.UnsubscribeFunc {
	return m.registry.Subscribe(fn)
}

// Connect opens the connection if it is not already open. Calling Connect
// while Open is a no-op; calling it while a reconnect is scheduled cancels
// the pending timer and dials immediately. A failed dial schedules a
// reconnect and returns a transient error.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateOpen {
		m.mu.Unlock()
		return nil
	}
	if m.dialing && m.dialGen == m.gen {
		// A current-generation attempt is in flight; it will settle the
		// state. An attempt from before a Disconnect discards its result,
		// so it must not block a fresh dial.
		m.mu.Unlock()
		return nil
	}
	m.cancelTimerLocked()
	m.setStateLocked(StateDisconnected)
	m.dialing = true
	m.dialGen = m.gen
	gen := m.gen
	url := m.url
	m.mu.Unlock()

	m.logger.Printf("Connecting to %s", url)
	conn, err := m.dialer.DialContext(ctx, url)

	m.mu.Lock()
	// A stale attempt must not clear the flag out from under a newer dial.
	if gen == m.dialGen {
		m.dialing = false
	}

	if gen != m.gen {
		// Disconnect raced the dial; discard whatever we got.
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return nil
	}

	if err != nil {
		m.scheduleReconnectLocked()
		m.mu.Unlock()
		m.logger.Errorf("Connection attempt failed: %v", err)
		if m.metrics != nil {
			m.metrics.connectFailures.Inc()
		}
		return errors.WrapTransient(err, "Manager", "Connect", "dial endpoint")
	}

	m.conn = conn
	m.setStateLocked(StateOpen)
	go m.readLoop(conn, gen)
	m.mu.Unlock()

	m.logger.Printf("Connected to %s", url)
	if m.metrics != nil {
		m.metrics.connects.Inc()
	}
	return nil
}

// Disconnect cancels any pending reconnect timer, closes the connection if
// open, and transitions to Disconnected. After Disconnect returns, no timer
// firing or late transport callback reopens the connection until Connect is
// called again. Disconnecting while disconnected is a safe no-op.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.gen++
	m.cancelTimerLocked()
	conn := m.conn
	m.conn = nil
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
		m.logger.Printf("Disconnected from %s", m.url)
	}
}

// readLoop consumes frames until the connection fails or closes. Frames are
// processed strictly in arrival order: all subscriber side effects for one
// frame complete before the next is decoded.
func (m *Manager) readLoop(conn Conn, gen uint64) {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			m.handleClosed(conn, gen, err)
			return
		}

		if m.metrics != nil {
			m.metrics.framesReceived.Inc()
		}

		env, decodeErr := event.Decode(frame)
		if decodeErr != nil {
			// Malformed frames are dropped; they never terminate the stream.
			m.logger.Errorf("Dropping undecodable frame: %v", decodeErr)
			if m.metrics != nil {
				m.metrics.decodeFailures.Inc()
			}
			continue
		}

		m.registry.Dispatch(env)
	}
}

// handleClosed reacts to transport failure or clean closure. Errors and
// closures are treated alike: force-close the handle and enter the
// reconnect path, once.
func (m *Manager) handleClosed(conn Conn, gen uint64, err error) {
	m.mu.Lock()
	if gen != m.gen || m.conn != conn {
		// Disconnect already tore this connection down.
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.scheduleReconnectLocked()
	m.mu.Unlock()

	_ = conn.Close()
	m.logger.Printf("Connection lost (%v), reconnecting in %v", err, m.reconnectDelay)
}

// scheduleReconnectLocked arms the reconnect timer unless one is already
// pending. Idempotence here is the core correctness property: a second
// failure notification while a timer is pending must not create a second
// timer. Caller holds m.mu.
func (m *Manager) scheduleReconnectLocked() {
	if m.timer != nil {
		return
	}

	m.setStateLocked(StateReconnectScheduled)
	m.timerSeq++
	seq := m.timerSeq
	gen := m.gen
	m.timer = time.AfterFunc(m.reconnectDelay, func() {
		m.onReconnectTimer(seq, gen)
	})

	if m.metrics != nil {
		m.metrics.reconnectsScheduled.Inc()
	}
}

// onReconnectTimer fires when the reconnect delay elapses. A firing that
// lost a race with Disconnect or with a newer timer is discarded.
func (m *Manager) onReconnectTimer(seq, gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.timer == nil || seq != m.timerSeq {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	if err := m.Connect(context.Background()); err != nil {
		m.logger.Debugf("Reconnect attempt failed: %v", err)
	}
}

// cancelTimerLocked stops and clears the pending timer, if any. Caller
// holds m.mu. A firing that already won the race is neutralized by the
// seq check in onReconnectTimer.
func (m *Manager) cancelTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
		m.timerSeq++
	}
}

// setStateLocked updates the state and its gauge. Caller holds m.mu.
func (m *Manager) setStateLocked(s State) {
	m.state = s
	if m.metrics != nil {
		m.metrics.state.Set(float64(s))
	}
}

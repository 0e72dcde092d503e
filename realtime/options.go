package realtime

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shnupta/porter/metric"
)

// Defaults for the local development server.
const (
	DefaultURL            = "ws://127.0.0.1:3100/ws"
	DefaultReconnectDelay = 3 * time.Second
)

// Logger interface for connection lifecycle logging
type Logger interface {
	Printf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
	Debugf(format string, v ...interface{})
}

type defaultLogger struct{}

func (l *defaultLogger) Printf(format string, v ...interface{}) {
	log.Printf("[REALTIME] "+format, v...)
}

func (l *defaultLogger) Errorf(format string, v ...interface{}) {
	log.Printf("[REALTIME] ERROR: "+format, v...)
}

func (l *defaultLogger) Debugf(format string, v ...interface{}) {
	log.Printf("[REALTIME] DEBUG: "+format, v...)
}

// Conn is the slice of the websocket connection the Manager needs. It is
// satisfied by *websocket.Conn.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Dialer opens a Conn to a websocket endpoint. Tests substitute in-memory
// implementations; production uses the gorilla dialer.
type Dialer interface {
	DialContext(ctx context.Context, url string) (Conn, error)
}

type websocketDialer struct {
	dialer *websocket.Dialer
}

func newWebsocketDialer() *websocketDialer {
	d := *websocket.DefaultDialer
	d.HandshakeTimeout = 10 * time.Second
	return &websocketDialer{dialer: &d}
}

func (d *websocketDialer) DialContext(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("handshake rejected with status %d: %w", resp.StatusCode, err)
		}
		return nil, err
	}
	return conn, nil
}

// Option configures a Manager
type Option func(*Manager) error

// WithReconnectDelay sets the fixed delay between a connection loss and the
// next attempt.
func WithReconnectDelay(d time.Duration) Option {
	return func(m *Manager) error {
		if d <= 0 {
			return fmt.Errorf("reconnect delay must be positive, got %v", d)
		}
		m.reconnectDelay = d
		return nil
	}
}

// WithLogger sets a custom logger
func WithLogger(logger Logger) Option {
	return func(m *Manager) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		m.logger = logger
		return nil
	}
}

// WithDialer sets a custom dialer. Tests use this to drive the manager
// without a network.
func WithDialer(d Dialer) Option {
	return func(m *Manager) error {
		if d == nil {
			return fmt.Errorf("dialer cannot be nil")
		}
		m.dialer = d
		return nil
	}
}

// WithMetrics enables prometheus metrics registered on the given registry.
func WithMetrics(registry *metric.Registry) Option {
	return func(m *Manager) error {
		if registry == nil {
			return fmt.Errorf("metrics registry cannot be nil")
		}
		metrics, err := newManagerMetrics(registry)
		if err != nil {
			return fmt.Errorf("register manager metrics: %w", err)
		}
		m.metrics = metrics
		return nil
	}
}

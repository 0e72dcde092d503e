package realtime

import (
	"context"
	stderrors "errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shnupta/porter/errors"
	"github.com/shnupta/porter/event"
)

// fakeConn is a scripted connection. Pushed frames are delivered in order;
// closeRemote simulates the server dropping the connection.
type fakeConn struct {
	frames chan []byte
	done   chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan []byte, 16),
		done:   make(chan struct{}),
	}
}

func (c *fakeConn) push(frame string) {
	c.frames <- []byte(frame)
}

func (c *fakeConn) closeRemote() {
	c.once.Do(func() { close(c.done) })
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case f := <-c.frames:
		return websocket.TextMessage, f, nil
	default:
	}
	select {
	case f := <-c.frames:
		return websocket.TextMessage, f, nil
	case <-c.done:
		return 0, nil, net.ErrClosed
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// fakeDialer fails the first `failures` dials, then hands out fakeConns.
type fakeDialer struct {
	mu       sync.Mutex
	failures int
	dials    int
	conns    []*fakeConn
}

func (d *fakeDialer) DialContext(_ context.Context, _ string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials++
	if d.dials <= d.failures {
		return nil, stderrors.New("dial refused")
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

func newTestManager(t *testing.T, d *fakeDialer, delay time.Duration) *Manager {
	t.Helper()
	m, err := NewManager("ws://unit.test/ws", WithDialer(d), WithReconnectDelay(delay))
	require.NoError(t, err)
	t.Cleanup(m.Disconnect)
	return m
}

func TestNewManagerDefaults(t *testing.T) {
	m, err := NewManager("")
	require.NoError(t, err)
	assert.Equal(t, DefaultURL, m.URL())
	assert.Equal(t, StateDisconnected, m.State())
}

func TestNewManagerRejectsBadOptions(t *testing.T) {
	_, err := NewManager("", WithReconnectDelay(0))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	_, err = NewManager("", WithLogger(nil))
	require.Error(t, err)

	_, err = NewManager("", WithDialer(nil))
	require.Error(t, err)
}

func TestConnectDispatchesDecodedFrames(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(t, d, 50*time.Millisecond)

	got := make(chan *event.Envelope, 8)
	m.Subscribe(func(env *event.Envelope) { got <- env })

	require.NoError(t, m.Connect(context.Background()))
	assert.Equal(t, StateOpen, m.State())

	d.conn(0).push(`{"type":"TaskCreated","data":{"id":"t1"}}`)

	select {
	case env := <-got:
		assert.Equal(t, event.KindTaskCreated, env.Type)
	case <-time.After(time.Second):
		t.Fatal("frame was not dispatched")
	}
}

func TestUndecodableFrameIsDroppedConnectionSurvives(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(t, d, 50*time.Millisecond)

	got := make(chan *event.Envelope, 8)
	m.Subscribe(func(env *event.Envelope) { got <- env })

	require.NoError(t, m.Connect(context.Background()))

	d.conn(0).push(`this is not json`)
	d.conn(0).push(`{"data":{"id":"no kind"}}`)
	d.conn(0).push(`{"type":"Notification","data":{"id":"n1"}}`)

	select {
	case env := <-got:
		assert.Equal(t, event.KindNotification, env.Type, "only the valid frame reaches subscribers")
	case <-time.After(time.Second):
		t.Fatal("valid frame was not dispatched")
	}

	assert.Equal(t, StateOpen, m.State())
	assert.Equal(t, 1, d.dialCount())
}

func TestConnectIsIdempotentWhenOpen(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(t, d, 50*time.Millisecond)

	require.NoError(t, m.Connect(context.Background()))
	require.NoError(t, m.Connect(context.Background()))
	require.NoError(t, m.Connect(context.Background()))

	assert.Equal(t, 1, d.dialCount())
	assert.Equal(t, StateOpen, m.State())
}

func TestFailedDialSchedulesReconnect(t *testing.T) {
	d := &fakeDialer{failures: 1}
	m := newTestManager(t, d, 20*time.Millisecond)

	err := m.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, StateReconnectScheduled, m.State())

	require.Eventually(t, func() bool {
		return d.dialCount() == 2 && m.State() == StateOpen
	}, time.Second, 5*time.Millisecond)
}

func TestConnectionLossReconnectsOnce(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(t, d, 20*time.Millisecond)

	require.NoError(t, m.Connect(context.Background()))
	d.conn(0).closeRemote()

	require.Eventually(t, func() bool {
		return d.dialCount() == 2 && m.State() == StateOpen
	}, time.Second, 5*time.Millisecond)

	// A healthy connection must not keep dialing.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 2, d.dialCount())
}

// gatedDialer blocks its first dial until the gate is closed; later dials
// return immediately.
type gatedDialer struct {
	mu    sync.Mutex
	gate  chan struct{}
	dials int
	conns []*fakeConn
}

func (d *gatedDialer) DialContext(_ context.Context, _ string) (Conn, error) {
	d.mu.Lock()
	d.dials++
	first := d.dials == 1
	c := newFakeConn()
	d.conns = append(d.conns, c)
	d.mu.Unlock()

	if first {
		<-d.gate
	}
	return c, nil
}

func (d *gatedDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *gatedDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

func TestConnectProceedsWhenStaleDialInFlight(t *testing.T) {
	gate := make(chan struct{})
	d := &gatedDialer{gate: gate}

	m, err := NewManager("ws://unit.test/ws", WithDialer(d), WithReconnectDelay(time.Hour))
	require.NoError(t, err)
	t.Cleanup(m.Disconnect)

	firstDone := make(chan error, 1)
	go func() { firstDone <- m.Connect(context.Background()) }()

	require.Eventually(t, func() bool {
		return d.dialCount() == 1
	}, time.Second, time.Millisecond)

	// Disconnect orphans the in-flight dial. A fresh Connect must dial
	// again instead of deferring to the doomed attempt.
	m.Disconnect()
	require.NoError(t, m.Connect(context.Background()))
	assert.Equal(t, StateOpen, m.State())
	assert.Equal(t, 2, d.dialCount())

	// Releasing the orphaned dial must not disturb the open connection.
	close(gate)
	require.NoError(t, <-firstDone)

	require.Eventually(t, func() bool {
		return d.conn(0).isClosed()
	}, time.Second, time.Millisecond, "the stale connection must be discarded and closed")
	assert.Equal(t, StateOpen, m.State())
	assert.False(t, d.conn(1).isClosed())
	assert.Equal(t, 2, d.dialCount())
}

func TestScheduleReconnectIsIdempotent(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(t, d, time.Hour)

	m.mu.Lock()
	m.scheduleReconnectLocked()
	first := m.timer
	seq := m.timerSeq
	m.scheduleReconnectLocked()
	m.scheduleReconnectLocked()
	assert.Same(t, first, m.timer, "a pending timer must never be replaced")
	assert.Equal(t, seq, m.timerSeq)
	m.mu.Unlock()
}

func TestDisconnectCancelsPendingReconnect(t *testing.T) {
	d := &fakeDialer{failures: 100}
	m := newTestManager(t, d, 200*time.Millisecond)

	require.Error(t, m.Connect(context.Background()))
	require.Equal(t, StateReconnectScheduled, m.State())

	m.Disconnect()
	assert.Equal(t, StateDisconnected, m.State())

	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, 1, d.dialCount(), "a cancelled timer must never dial")
	assert.Equal(t, StateDisconnected, m.State())
}

func TestDisconnectPreventsLateClosureReconnect(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(t, d, 20*time.Millisecond)

	require.NoError(t, m.Connect(context.Background()))
	m.Disconnect()
	assert.Equal(t, StateDisconnected, m.State())

	// The transport reporting the closure after Disconnect must not
	// resurrect the connection.
	d.conn(0).closeRemote()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, d.dialCount())
	assert.Equal(t, StateDisconnected, m.State())
}

func TestDisconnectTwiceIsNoop(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(t, d, 20*time.Millisecond)

	require.NoError(t, m.Connect(context.Background()))
	m.Disconnect()
	m.Disconnect()
	assert.Equal(t, StateDisconnected, m.State())
}

func TestConnectCancelsScheduledReconnect(t *testing.T) {
	d := &fakeDialer{failures: 1}
	m := newTestManager(t, d, time.Hour)

	require.Error(t, m.Connect(context.Background()))
	require.Equal(t, StateReconnectScheduled, m.State())

	// Explicit connect while a (distant) reconnect is pending dials now.
	require.NoError(t, m.Connect(context.Background()))
	assert.Equal(t, StateOpen, m.State())
	assert.Equal(t, 2, d.dialCount())

	m.mu.Lock()
	assert.Nil(t, m.timer, "successful connect must cancel the pending timer")
	m.mu.Unlock()
}

func TestReconnectAfterDisconnectThenConnect(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(t, d, 20*time.Millisecond)

	require.NoError(t, m.Connect(context.Background()))
	m.Disconnect()
	require.NoError(t, m.Connect(context.Background()))

	assert.Equal(t, StateOpen, m.State())
	assert.Equal(t, 2, d.dialCount())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "reconnect_scheduled", StateReconnectScheduled.String())
	assert.Equal(t, "unknown", State(99).String())
}

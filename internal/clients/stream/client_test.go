package stream

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn is a scriptable connection for driving the client without a
// network.
type fakeConn struct {
	incoming chan []byte
	failRead chan struct{}

	mu     sync.Mutex
	writes [][]byte
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		incoming: make(chan []byte, 16),
		failRead: make(chan struct{}),
	}
}

func (f *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.failRead:
		return nil, errors.New("connection reset")
	case data := <-f.incoming:
		return data, nil
	}
}

func (f *fakeConn) Write(_ context.Context, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, data)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) writtenSubscribes(t *testing.T) []subscribeMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	msgs := make([]subscribeMessage, 0, len(f.writes))
	for _, raw := range f.writes {
		var msg subscribeMessage
		require.NoError(t, json.Unmarshal(raw, &msg))
		msgs = append(msgs, msg)
	}
	return msgs
}

func newTestClient() *Client {
	return NewClient("wss://feed.test/ws/prices", "test-token", zerolog.Nop())
}

func TestBackoffSequence_DoublesAndCaps(t *testing.T) {
	c := newTestClient()

	// Simulate consecutive scheduling without letting timers fire.
	var armed []time.Duration
	for i := 0; i < 7; i++ {
		c.mu.Lock()
		armed = append(armed, c.reconnectDelay)
		c.scheduleReconnectLocked()
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
		c.mu.Unlock()
	}

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	assert.Equal(t, want, armed)
}

func TestBackoff_ResetsOnSuccessfulOpen(t *testing.T) {
	c := newTestClient()
	fake := newFakeConn()
	c.dial = func(ctx context.Context, rawURL string) (conn, error) {
		return fake, nil
	}

	// Inflate the delay as if several attempts had failed.
	c.mu.Lock()
	c.reconnectDelay = 16 * time.Second
	c.mu.Unlock()

	require.NoError(t, c.Connect())
	defer c.Close()

	c.mu.Lock()
	delay := c.reconnectDelay
	c.mu.Unlock()
	assert.Equal(t, 1*time.Second, delay)
}

func TestReconnect_SubscribesPendingSymbolsOnce(t *testing.T) {
	// setSymbols while disconnected with a pending reconnect: after the timer
	// fires and connects, exactly one subscribe for the new set is sent.
	c := newTestClient()
	c.minDelay = 2 * time.Millisecond
	c.maxDelay = 8 * time.Millisecond
	c.reconnectDelay = c.minDelay

	fake := newFakeConn()
	var dials int64
	c.dial = func(ctx context.Context, rawURL string) (conn, error) {
		if atomic.AddInt64(&dials, 1) == 1 {
			return nil, errors.New("dial refused")
		}
		return fake, nil
	}

	// First connect fails and arms the reconnect timer.
	require.Error(t, c.Connect())
	defer c.Close()

	c.SetSymbols([]string{"NSE:TCS"})

	require.Eventually(t, func() bool {
		return c.IsConnected()
	}, time.Second, time.Millisecond)

	msgs := fake.writtenSubscribes(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, "subscribe", msgs[0].Action)
	assert.Equal(t, []string{"NSE:TCS"}, msgs[0].Symbols)
}

func TestConnect_NoOpWhenAlreadyOpen(t *testing.T) {
	c := newTestClient()
	var dials int64
	c.dial = func(ctx context.Context, rawURL string) (conn, error) {
		atomic.AddInt64(&dials, 1)
		return newFakeConn(), nil
	}

	require.NoError(t, c.Connect())
	defer c.Close()
	require.NoError(t, c.Connect())

	assert.Equal(t, int64(1), atomic.LoadInt64(&dials))
}

func TestConnect_TokenInURL(t *testing.T) {
	c := newTestClient()
	var dialedURL atomic.Value
	c.dial = func(ctx context.Context, rawURL string) (conn, error) {
		dialedURL.Store(rawURL)
		return newFakeConn(), nil
	}

	require.NoError(t, c.Connect())
	defer c.Close()

	assert.Equal(t, "wss://feed.test/ws/prices?token=test-token", dialedURL.Load())
}

func TestSetSymbols_SendsIncrementalSubscribeWhenConnected(t *testing.T) {
	c := newTestClient()
	fake := newFakeConn()
	c.dial = func(ctx context.Context, rawURL string) (conn, error) {
		return fake, nil
	}

	require.NoError(t, c.Connect())
	defer c.Close()

	c.SetSymbols([]string{"NSE:TCS", "NSE:RELIANCE"})

	msgs := fake.writtenSubscribes(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"NSE:RELIANCE", "NSE:TCS"}, msgs[0].Symbols)
}

func TestHandleMessage_TickCachedAndDispatched(t *testing.T) {
	c := newTestClient()
	events := c.Subscribe()

	c.handleMessage([]byte(`{"type":"tick","symbol":"NSE:RELIANCE","ltp":2200.5,"change":12.5,"change_pct":0.57,"volume":1500,"ts":1756400000}`))

	tick, ok := c.LastTick("NSE:RELIANCE")
	require.True(t, ok)
	assert.Equal(t, 2200.5, tick.Price)
	assert.Equal(t, int64(1756400000000), tick.ObservedAtMs)

	select {
	case ev := <-events:
		require.NotNil(t, ev.Tick)
		assert.Equal(t, "NSE:RELIANCE", ev.Tick.Symbol)
	default:
		t.Fatal("expected a dispatched tick event")
	}
}

func TestHandleMessage_StatusDispatched(t *testing.T) {
	c := newTestClient()
	events := c.Subscribe()

	c.handleMessage([]byte(`{"type":"status","connected":true,"source":"zerodha"}`))

	status := c.Status()
	assert.True(t, status.Connected)
	assert.Equal(t, "zerodha", status.Source)

	select {
	case ev := <-events:
		require.NotNil(t, ev.Status)
		assert.True(t, ev.Status.Connected)
	default:
		t.Fatal("expected a dispatched status event")
	}
}

func TestHandleMessage_MalformedDroppedSilently(t *testing.T) {
	c := newTestClient()
	events := c.Subscribe()

	c.handleMessage([]byte(`{not json`))
	c.handleMessage([]byte(`{"type":"mystery"}`))
	c.handleMessage([]byte(`{"type":"tick"}`)) // tick without a symbol

	select {
	case <-events:
		t.Fatal("malformed messages must not produce events")
	default:
	}
}

func TestReadError_MarksDisconnectedAndArmsReconnect(t *testing.T) {
	c := newTestClient()
	c.minDelay = time.Hour // keep the armed timer from firing during the test
	c.reconnectDelay = c.minDelay

	fake := newFakeConn()
	c.dial = func(ctx context.Context, rawURL string) (conn, error) {
		return fake, nil
	}
	require.NoError(t, c.Connect())
	defer c.Close()

	events := c.Subscribe()
	close(fake.failRead)

	var got Event
	select {
	case got = <-events:
	case <-time.After(time.Second):
		t.Fatal("expected a disconnect status event")
	}
	require.NotNil(t, got.Status)
	assert.False(t, got.Status.Connected)

	assert.False(t, c.IsConnected())
	c.mu.Lock()
	assert.NotNil(t, c.reconnectTimer)
	c.mu.Unlock()
}

func TestClose_CancelsPendingReconnect(t *testing.T) {
	c := newTestClient()
	c.minDelay = 2 * time.Millisecond
	c.reconnectDelay = c.minDelay

	var dials int64
	c.dial = func(ctx context.Context, rawURL string) (conn, error) {
		atomic.AddInt64(&dials, 1)
		return nil, errors.New("dial refused")
	}

	require.Error(t, c.Connect())
	c.Close()

	before := atomic.LoadInt64(&dials)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, before, atomic.LoadInt64(&dials), "no dials after Close")
}

// Package stream maintains the realtime price feed connection. One Client
// owns one logical connection; callers share a single instance so the feed
// sees one subscription set.
package stream

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/niveshlabs/folio/internal/domain"
)

const (
	writeWait   = 10 * time.Second
	dialTimeout = 30 * time.Second

	// Reconnect backoff: starts at the floor, doubles per consecutive
	// failure, capped, and resets to the floor on a successful open.
	reconnectFloor = 1 * time.Second
	reconnectCap   = 30 * time.Second

	subscriberBuffer = 64
)

// Status is the feed connectivity state as last reported.
type Status struct {
	Connected bool   `json:"connected"`
	Source    string `json:"source"`
}

// Event is one dispatched feed message: either a tick or a status change.
type Event struct {
	Tick   *domain.PriceTick `json:"tick,omitempty"`
	Status *Status           `json:"status,omitempty"`
}

// conn abstracts the websocket connection for tests.
type conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

type dialFunc func(ctx context.Context, rawURL string) (conn, error)

// Client manages the single feed connection, its subscription set, and the
// reconnect lifecycle. The reconnect timer and the connection are mutually
// exclusive: at most one is live at a time, both guarded by mu.
type Client struct {
	url   string
	token string
	log   zerolog.Logger
	dial  dialFunc

	// Backoff bounds; fields so tests can shrink the timescale.
	minDelay time.Duration
	maxDelay time.Duration

	mu             sync.Mutex
	conn           conn
	connCtx        context.Context
	cancelFunc     context.CancelFunc
	symbols        map[string]struct{}
	reconnectTimer *time.Timer
	reconnectDelay time.Duration
	stopped        bool

	subsMu      sync.RWMutex
	subscribers []chan Event

	cacheMu sync.RWMutex
	ticks   map[string]domain.PriceTick
	status  Status
}

// NewClient creates a feed client. token is the caller-supplied credential,
// carried as a query parameter on the connection URL.
func NewClient(rawURL, token string, log zerolog.Logger) *Client {
	return &Client{
		url:            rawURL,
		token:          token,
		log:            log.With().Str("client", "stream").Logger(),
		dial:           dialWebsocket,
		minDelay:       reconnectFloor,
		maxDelay:       reconnectCap,
		symbols:        make(map[string]struct{}),
		reconnectDelay: reconnectFloor,
		ticks:          make(map[string]domain.PriceTick),
		status:         Status{Connected: false, Source: "disconnected"},
	}
}

// createHTTP1Client creates an HTTP client that forces HTTP/1.1.
// Cloudflare-fronted feeds negotiate HTTP/2 via TLS ALPN, but the websocket
// upgrade handshake requires HTTP/1.1.
func createHTTP1Client() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSClientConfig: &tls.Config{
				NextProtos: []string{"http/1.1"},
			},
			ForceAttemptHTTP2: false,
		},
	}
}

// wsConn adapts nhooyr.io/websocket to the conn interface.
type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) Read(ctx context.Context) ([]byte, error) {
	msgType, data, err := w.c.Read(ctx)
	if err != nil {
		return nil, err
	}
	if msgType != websocket.MessageText {
		return nil, nil
	}
	return data, nil
}

func (w *wsConn) Write(ctx context.Context, data []byte) error {
	return w.c.Write(ctx, websocket.MessageText, data)
}

func (w *wsConn) Close() error {
	return w.c.Close(websocket.StatusNormalClosure, "")
}

func dialWebsocket(ctx context.Context, rawURL string) (conn, error) {
	c, _, err := websocket.Dial(ctx, rawURL, &websocket.DialOptions{
		HTTPClient: createHTTP1Client(),
	})
	if err != nil {
		return nil, err
	}
	return &wsConn{c: c}, nil
}

// Connect opens the feed connection. A no-op when already open. On open it
// issues a subscribe for the current symbol set and resets the backoff delay
// to its floor. On failure it arms the reconnect timer and returns a
// ConnectionError.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked()
}

func (c *Client) connectLocked() error {
	if c.stopped || c.conn != nil {
		return nil
	}

	dialCtx, dialCancel := context.WithTimeout(context.Background(), dialTimeout)
	defer dialCancel()

	wsURL := c.url
	if c.token != "" {
		sep := "?"
		if u, err := url.Parse(c.url); err == nil && u.RawQuery != "" {
			sep = "&"
		}
		wsURL += sep + "token=" + url.QueryEscape(c.token)
	}

	newConn, err := c.dial(dialCtx, wsURL)
	if err != nil {
		c.log.Warn().Err(err).Msg("Feed dial failed")
		c.scheduleReconnectLocked()
		return &domain.ConnectionError{Err: err}
	}

	connCtx, cancel := context.WithCancel(context.Background())
	c.conn = newConn
	c.connCtx = connCtx
	c.cancelFunc = cancel
	c.reconnectDelay = c.minDelay

	if len(c.symbols) > 0 {
		if err := c.sendSubscribeLocked(connCtx); err != nil {
			c.log.Warn().Err(err).Msg("Subscribe on open failed")
			c.teardownConnLocked()
			c.scheduleReconnectLocked()
			return &domain.ConnectionError{Err: err}
		}
	}

	c.log.Info().Int("symbols", len(c.symbols)).Msg("Feed connected")
	go c.readLoop(connCtx, newConn)
	return nil
}

// SetSymbols replaces the desired subscription set. When connected the
// subscribe message goes out immediately; otherwise the set takes effect on
// the next successful open, including one armed by a pending reconnect.
func (c *Client) SetSymbols(symbols []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.symbols = make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		if s != "" {
			c.symbols[s] = struct{}{}
		}
	}

	if c.conn == nil {
		return
	}
	if err := c.sendSubscribeLocked(c.connCtx); err != nil {
		c.log.Warn().Err(err).Msg("Incremental subscribe failed")
	}
}

// subscribeMessage is the client->server subscription frame.
type subscribeMessage struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
}

func (c *Client) sendSubscribeLocked(ctx context.Context) error {
	symbols := make([]string, 0, len(c.symbols))
	for s := range c.symbols {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	data, err := json.Marshal(subscribeMessage{Action: "subscribe", Symbols: symbols})
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()

	return c.conn.Write(writeCtx, data)
}

// readLoop reads frames until the connection dies, then hands off to the
// disconnect path.
func (c *Client) readLoop(ctx context.Context, active conn) {
	for {
		data, err := active.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				// Intentional close; the closer owns state transitions.
				return
			}
			c.log.Warn().Err(err).Msg("Feed read error")
			c.handleDisconnect(active)
			return
		}
		if len(data) == 0 {
			continue
		}
		c.handleMessage(data)
	}
}

// feedMessage is the server->client frame envelope.
type feedMessage struct {
	Type      string  `json:"type"`
	Symbol    string  `json:"symbol"`
	LTP       float64 `json:"ltp"`
	Change    float64 `json:"change"`
	ChangePct float64 `json:"change_pct"`
	Volume    int64   `json:"volume"`
	TS        int64   `json:"ts"`
	Connected bool    `json:"connected"`
	Source    string  `json:"source"`
}

// handleMessage decodes one frame. Malformed frames are dropped silently;
// they must never take the client down.
func (c *Client) handleMessage(data []byte) {
	var msg feedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.Debug().Err(err).Msg("Dropping undecodable feed message")
		return
	}

	switch msg.Type {
	case "tick":
		if msg.Symbol == "" {
			return
		}
		tick := domain.PriceTick{
			Symbol:        msg.Symbol,
			Price:         msg.LTP,
			Change:        msg.Change,
			ChangePercent: msg.ChangePct,
			Volume:        msg.Volume,
			ObservedAtMs:  msg.TS * 1000,
		}
		c.cacheMu.Lock()
		c.ticks[msg.Symbol] = tick
		c.cacheMu.Unlock()
		c.dispatch(Event{Tick: &tick})

	case "status":
		status := Status{Connected: msg.Connected, Source: msg.Source}
		c.cacheMu.Lock()
		c.status = status
		c.cacheMu.Unlock()
		c.dispatch(Event{Status: &status})

	default:
		c.log.Debug().Str("type", msg.Type).Msg("Dropping unknown feed message type")
	}
}

// handleDisconnect runs after an error-induced close: mark disconnected,
// notify subscribers, arm the reconnect timer.
func (c *Client) handleDisconnect(active conn) {
	c.mu.Lock()
	if c.conn != active {
		// A newer connection already replaced this one.
		c.mu.Unlock()
		return
	}
	c.teardownConnLocked()
	c.scheduleReconnectLocked()
	c.mu.Unlock()

	status := Status{Connected: false, Source: "disconnected"}
	c.cacheMu.Lock()
	c.status = status
	c.cacheMu.Unlock()
	c.dispatch(Event{Status: &status})
}

// teardownConnLocked closes and clears the current connection. Caller holds mu.
func (c *Client) teardownConnLocked() {
	if c.cancelFunc != nil {
		c.cancelFunc()
		c.cancelFunc = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connCtx = nil
}

// scheduleReconnectLocked arms the reconnect timer with the current delay and
// doubles the delay for the next consecutive failure. Caller holds mu. The
// timer and the connection are mutually exclusive.
func (c *Client) scheduleReconnectLocked() {
	if c.stopped || c.reconnectTimer != nil || c.conn != nil {
		return
	}

	delay := c.reconnectDelay
	c.reconnectDelay *= 2
	if c.reconnectDelay > c.maxDelay {
		c.reconnectDelay = c.maxDelay
	}

	c.log.Info().Dur("delay", delay).Msg("Scheduling feed reconnect")
	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		c.reconnectTimer = nil
		if c.stopped {
			c.mu.Unlock()
			return
		}
		err := c.connectLocked()
		c.mu.Unlock()
		if err != nil {
			c.log.Warn().Err(err).Msg("Feed reconnect failed")
		}
	})
}

// Subscribe registers a consumer channel for tick and status events. Slow
// consumers lose events rather than stalling the read loop.
func (c *Client) Subscribe() <-chan Event {
	ch := make(chan Event, subscriberBuffer)
	c.subsMu.Lock()
	c.subscribers = append(c.subscribers, ch)
	c.subsMu.Unlock()
	return ch
}

func (c *Client) dispatch(ev Event) {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()

	for _, ch := range c.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// LastTick returns the most recent tick observed for a feed symbol
// ("{EXCHANGE}:{TICKER}").
func (c *Client) LastTick(symbol string) (domain.PriceTick, bool) {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()

	tick, ok := c.ticks[symbol]
	return tick, ok
}

// Status returns the last known connectivity status.
func (c *Client) Status() Status {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()

	return c.status
}

// IsConnected reports whether a connection is currently open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.conn != nil
}

// Close permanently stops the client: cancels any pending reconnect timer and
// closes the socket. No reconnect attempts occur afterwards; this is the only
// way to stop the reconnect lifecycle.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}
	c.stopped = true

	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.teardownConnLocked()

	c.log.Info().Msg("Feed client stopped")
}

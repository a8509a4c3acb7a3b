package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"ictbot/internal/domain/models"
	domrepo "ictbot/internal/domain/repository"
	"ictbot/pkg/logger"
)

// ErrNotConnected is returned by operations that need a live connection.
var ErrNotConnected = errors.New("bar stream not connected")

type subscription struct {
	Symbol    string            `json:"symbol"`
	Timeframe domrepo.Timeframe `json:"timeframe"`
}

type subscribeFrame struct {
	Type string `json:"type"`
	subscription
}

// barFrame is a closed-bar notification from the bridge.
type barFrame struct {
	Type      string            `json:"type"`
	Symbol    string            `json:"symbol"`
	Timeframe domrepo.Timeframe `json:"timeframe"`
	Bar       models.Bar        `json:"bar"`
}

// Client is a BarStream over the bridge's websocket. Subscriptions survive
// Reconnect.
type Client struct {
	url            string
	apiKey         string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	bufferSize     int
	l              *logger.Logger

	writeMu   sync.Mutex
	conn      *websocket.Conn
	connected atomic.Bool

	subMu sync.Mutex
	subs  []subscription
}

// Option configures Client.
type Option func(*Client)

func WithReconnectDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.reconnectDelay = d
		}
	}
}

func WithPingInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pingInterval = d
		}
	}
}

func WithBufferSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.bufferSize = n
		}
	}
}

func New(url, apiKey string, lgr *logger.Logger, opts ...Option) *Client {
	if lgr == nil {
		lgr = logger.NewNop()
	}
	c := &Client{
		url:            url,
		apiKey:         apiKey,
		reconnectDelay: 5 * time.Second,
		pingInterval:   30 * time.Second,
		bufferSize:     256,
		l:              lgr,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect dials the websocket and replays existing subscriptions.
func (c *Client) Connect(ctx context.Context) error {
	header := http.Header{}
	if c.apiKey != "" {
		header.Set("X-API-Key", c.apiKey)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
	if err != nil {
		return fmt.Errorf("bar stream connect: %w", err)
	}

	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()
	c.connected.Store(true)
	c.l.Info("bar stream connected", logger.String("url", c.url))

	c.subMu.Lock()
	subs := append([]subscription(nil), c.subs...)
	c.subMu.Unlock()
	for _, s := range subs {
		if err := c.send(subscribeFrame{Type: "subscribe", subscription: s}); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe asks for closed bars of symbol on tf.
func (c *Client) Subscribe(_ context.Context, symbol string, tf domrepo.Timeframe) error {
	s := subscription{Symbol: symbol, Timeframe: tf}

	c.subMu.Lock()
	known := false
	for _, existing := range c.subs {
		if existing == s {
			known = true
			break
		}
	}
	if !known {
		c.subs = append(c.subs, s)
	}
	c.subMu.Unlock()

	if err := c.send(subscribeFrame{Type: "subscribe", subscription: s}); err != nil {
		return fmt.Errorf("subscribe %s %s: %w", symbol, tf, err)
	}
	c.l.Info("bar stream subscribed", logger.String("symbol", symbol), logger.String("tf", string(tf)))
	return nil
}

func (c *Client) send(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil || !c.connected.Load() {
		return ErrNotConnected
	}
	return c.conn.WriteJSON(v)
}

func (c *Client) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
}

// Read streams closed bars until ctx ends or the connection fails; the failure
// is sent on the error channel and both channels close.
func (c *Client) Read(ctx context.Context) (<-chan *domrepo.StreamBar, <-chan error) {
	bars := make(chan *domrepo.StreamBar, c.bufferSize)
	errs := make(chan error, 1)

	c.writeMu.Lock()
	conn := c.conn
	c.writeMu.Unlock()
	if conn == nil {
		errs <- ErrNotConnected
		close(bars)
		close(errs)
		return bars, errs
	}

	readCtx, cancel := context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-readCtx.Done():
				return
			case <-ticker.C:
				if err := c.ping(); err != nil {
					c.l.Warn("bar stream ping failed", logger.Error(err))
				}
			}
		}
	}()

	// unblock ReadMessage when the caller cancels
	go func() {
		<-readCtx.Done()
		if ctx.Err() != nil {
			_ = conn.Close()
		}
	}()

	go func() {
		defer cancel()
		defer close(bars)
		defer close(errs)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				c.connected.Store(false)
				if ctx.Err() == nil {
					errs <- fmt.Errorf("bar stream read: %w", err)
				}
				return
			}
			sb, ok := decodeBar(data)
			if !ok {
				continue
			}
			select {
			case bars <- sb:
			case <-ctx.Done():
				return
			default:
				c.l.Warn("bar stream buffer full, dropping bar",
					logger.String("symbol", sb.Symbol),
					logger.Time("time", sb.Bar.Time),
				)
			}
		}
	}()

	return bars, errs
}

// decodeBar ignores frames that are not bar notifications.
func decodeBar(data []byte) (*domrepo.StreamBar, bool) {
	var f barFrame
	if err := json.Unmarshal(data, &f); err != nil || f.Type != "bar" || f.Symbol == "" {
		return nil, false
	}
	return &domrepo.StreamBar{Symbol: f.Symbol, Timeframe: f.Timeframe, Bar: f.Bar}, true
}

// Reconnect closes the connection, waits the reconnect delay and dials again.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.reconnectDelay):
	}
	return c.Connect(ctx)
}

func (c *Client) Close() error {
	c.connected.Store(false)
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) IsConnected() bool { return c.connected.Load() }

var _ domrepo.BarStream = (*Client)(nil)

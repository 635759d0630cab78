// Package polymarketstream maintains a reconnecting connection to the
// Polymarket Real-Time Data Socket and decodes trade events.
package polymarketstream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Trade is a single decoded trade event from the feed. Trades are
// immutable; they are constructed once per feed message and passed by
// value through the detection pipeline.
type Trade struct {
	Asset           string // ERC1155 token ID
	ConditionID     string // Market condition ID
	Price           float64
	Side            string // BUY or SELL
	Size            float64
	Timestamp       time.Time
	Outcome         string
	Slug            string
	EventSlug       string
	TransactionHash string
	ProxyWallet     string // Trader's proxy wallet address
	Pseudonym       string
}

// USDValue returns the trade's notional value in USD.
func (t Trade) USDValue() float64 {
	return t.Size * t.Price
}

// Stats holds connection statistics.
type Stats struct {
	MessageCount   uint64
	TradesDecoded  uint64
	TradesDropped  uint64
	LastMessageAt  time.Time
	ReconnectCount uint64
}

// Client is a reconnecting websocket client for the RTDS trade feed.
// It delivers decoded trades on a buffered channel to a single
// consumer and owns reconnect, keepalive, and the subscribe handshake.
type Client struct {
	logger *zap.Logger

	wsURL          string
	dialer         *websocket.Dialer
	pingInterval   time.Duration
	reconnectDelay time.Duration

	connMu  sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn

	running  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once

	tradeCh chan Trade

	onConnect    []func()
	onDisconnect []func()

	msgCount        uint64
	tradesDecoded   uint64
	tradesDropped   uint64
	reconnects      uint64
	lastMsgUnixNano int64
}

// NewClient creates a stream client for the given websocket URL.
func NewClient(logger *zap.Logger, wsURL string) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		logger:         logger,
		wsURL:          wsURL,
		dialer:         websocket.DefaultDialer,
		pingInterval:   5 * time.Second,
		reconnectDelay: 5 * time.Second,
		stopCh:         make(chan struct{}),
		tradeCh:        make(chan Trade, 1024),
	}
}

// Trades returns the channel of decoded trades. The stream assumes a
// single consumer; trade order on this channel is the feed's order.
func (c *Client) Trades() <-chan Trade {
	return c.tradeCh
}

// OnConnect registers a handler fired after each successful dial,
// before the subscribe handshake. Register before calling Connect.
func (c *Client) OnConnect(fn func()) {
	c.onConnect = append(c.onConnect, fn)
}

// OnDisconnect registers a handler fired on every exit from the
// listening state, including the final stop.
func (c *Client) OnDisconnect(fn func()) {
	c.onDisconnect = append(c.onDisconnect, fn)
}

// Connect drives the connection loop: dial, subscribe, listen, and on
// any failure tear down and retry after a fixed delay. It blocks until
// Disconnect is called or ctx is canceled; connection errors alone
// never make it return.
func (c *Client) Connect(ctx context.Context) error {
	c.running.Store(true)

	for c.shouldRun(ctx) {
		if err := c.runConnection(ctx); err != nil {
			c.logger.Warn("stream connection ended", zap.Error(err))
		}

		if !c.shouldRun(ctx) {
			break
		}

		c.logger.Info("reconnecting", zap.Duration("delay", c.reconnectDelay))
		atomic.AddUint64(&c.reconnects, 1)

		select {
		case <-time.After(c.reconnectDelay):
		case <-ctx.Done():
		case <-c.stopCh:
		}
	}

	c.logger.Info("stream stopped")
	return nil
}

// Disconnect requests the stream to stop and closes the underlying
// connection if open, unblocking Connect within one iteration.
func (c *Client) Disconnect() {
	c.running.Store(false)
	c.stopOnce.Do(func() { close(c.stopCh) })

	c.connMu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.connMu.Unlock()
}

// Stats returns a snapshot of connection statistics.
func (c *Client) Stats() Stats {
	s := Stats{
		MessageCount:   atomic.LoadUint64(&c.msgCount),
		TradesDecoded:  atomic.LoadUint64(&c.tradesDecoded),
		TradesDropped:  atomic.LoadUint64(&c.tradesDropped),
		ReconnectCount: atomic.LoadUint64(&c.reconnects),
	}
	if ns := atomic.LoadInt64(&c.lastMsgUnixNano); ns > 0 {
		s.LastMessageAt = time.Unix(0, ns)
	}
	return s
}

func (c *Client) shouldRun(ctx context.Context) bool {
	if !c.running.Load() {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case <-c.stopCh:
		return false
	default:
		return true
	}
}

// runConnection performs one dial-subscribe-listen cycle. It always
// fires onDisconnect if onConnect fired.
func (c *Client) runConnection(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.wsURL, err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	c.logger.Info("connected to trade feed", zap.String("url", c.wsURL))
	for _, fn := range c.onConnect {
		fn()
	}

	defer func() {
		c.connMu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.connMu.Unlock()
		_ = conn.Close()

		for _, fn := range c.onDisconnect {
			fn()
		}
	}()

	if err := c.subscribe(conn); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	pingDone := make(chan struct{})
	defer close(pingDone)
	go c.pingLoop(conn, pingDone)

	return c.listen(conn)
}

// subscribe sends the trades subscription for the activity topic. No
// acknowledgment is awaited; the stream is treated as live immediately.
func (c *Client) subscribe(conn *websocket.Conn) error {
	sub := map[string]any{
		"action": "subscribe",
		"subscriptions": []map[string]string{
			{"topic": "activity", "type": "trades"},
		},
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}

	c.logger.Info("subscribed to trades")
	return nil
}

// pingLoop sends a protocol ping every pingInterval. A failed ping
// stops the loop for this connection but does not tear it down; only a
// read failure triggers the reconnect path.
func (c *Client) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	t := time.NewTicker(c.pingInterval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debug("ping failed, stopping keepalive for this connection", zap.Error(err))
				return
			}
		case <-done:
			return
		case <-c.stopCh:
			return
		}
	}
}

// listen reads frames until the connection errors or the stream stops.
func (c *Client) listen(conn *websocket.Conn) error {
	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			if !c.running.Load() {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		atomic.AddUint64(&c.msgCount, 1)
		atomic.StoreInt64(&c.lastMsgUnixNano, time.Now().UnixNano())

		c.handleMessage(b)
	}
}

type feedMessage struct {
	Topic   string       `json:"topic"`
	Type    string       `json:"type"`
	Payload tradePayload `json:"payload"`
}

type tradePayload struct {
	Asset           string  `json:"asset"`
	ConditionID     string  `json:"conditionId"`
	Price           float64 `json:"price"`
	Side            string  `json:"side"`
	Size            float64 `json:"size"`
	Timestamp       float64 `json:"timestamp"`
	Outcome         string  `json:"outcome"`
	Slug            string  `json:"slug"`
	EventSlug       string  `json:"eventSlug"`
	TransactionHash string  `json:"transactionHash"`
	ProxyWallet     string  `json:"proxyWallet"`
	Pseudonym       string  `json:"pseudonym"`
}

// handleMessage decodes one inbound frame. Malformed frames and
// messages for other topics are dropped; a bad frame never brings down
// the listen loop.
func (c *Client) handleMessage(b []byte) {
	var msg feedMessage
	if err := json.Unmarshal(b, &msg); err != nil {
		c.logger.Debug("dropping undecodable frame", zap.Error(err), zap.Int("bytes", len(b)))
		return
	}

	if msg.Topic != "activity" || (msg.Type != "trades" && msg.Type != "orders_matched") {
		c.logger.Debug("ignoring message",
			zap.String("topic", msg.Topic),
			zap.String("type", msg.Type),
		)
		return
	}

	trade := decodeTrade(msg.Payload)
	atomic.AddUint64(&c.tradesDecoded, 1)

	select {
	case c.tradeCh <- trade:
	default:
		atomic.AddUint64(&c.tradesDropped, 1)
		c.logger.Warn("dropping trade: channel full",
			zap.String("tx", trade.TransactionHash),
		)
	}
}

func decodeTrade(p tradePayload) Trade {
	return Trade{
		Asset:           p.Asset,
		ConditionID:     p.ConditionID,
		Price:           p.Price,
		Side:            p.Side,
		Size:            p.Size,
		Timestamp:       normalizeTimestamp(p.Timestamp),
		Outcome:         p.Outcome,
		Slug:            p.Slug,
		EventSlug:       p.EventSlug,
		TransactionHash: p.TransactionHash,
		ProxyWallet:     p.ProxyWallet,
		Pseudonym:       p.Pseudonym,
	}
}

// normalizeTimestamp converts a feed timestamp to a time.Time. The
// feed sends Unix time in either seconds or milliseconds; values above
// 1e12 are treated as milliseconds.
func normalizeTimestamp(ts float64) time.Time {
	if ts > 1e12 {
		ts = ts / 1000
	}
	return time.Unix(int64(ts), 0)
}

package evm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"yield-adapter-lab/internal/domain"
	"yield-adapter-lab/internal/observability"
)

// WebSocket client errors
var (
	ErrClientClosed = errors.New("client closed")
	ErrNotConnected = errors.New("not connected")
)

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for a subscription ID.
	SubscribeTimeout time.Duration

	Logger *zap.Logger
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  30 * time.Second,
	}
}

// WSClient subscribes to newHeads over gorilla/websocket and resubscribes
// after reconnecting.
type WSClient struct {
	endpoint string
	config   WSClientConfig
	logger   *zap.Logger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// subs maps the node's subscription ID to the consumer channel.
	subs   map[string]chan domain.Head
	subsMu sync.RWMutex

	// pendingSubs maps request ID to the subscription awaiting its ID.
	pendingSubs   map[uint64]*pendingSub
	pendingSubsMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
}

// NewWSClient connects to endpoint. config may be nil.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig) (*WSClient, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &WSClient{
		endpoint:    endpoint,
		config:      cfg,
		logger:      logger,
		subs:        make(map[string]chan domain.Head),
		pendingSubs: make(map[uint64]*pendingSub),
		done:        make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

func (c *WSClient) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	c.conn = conn
	return nil
}

// SubscribeHeads subscribes to newHeads. The channel closes when ctx is
// cancelled or the client is closed.
func (c *WSClient) SubscribeHeads(ctx context.Context) (<-chan domain.Head, error) {
	ch := make(chan domain.Head, 64)
	if _, err := c.subscribe(ctx, ch, ""); err != nil {
		return nil, err
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		select {
		case <-ctx.Done():
			c.unsubscribe(ch)
		case <-c.done:
		}
	}()

	return ch, nil
}

// pendingSub is an eth_subscribe request waiting for its subscription ID.
// The consumer channel is registered under the new ID by the read loop before
// confirm fires, so heads sent right after the confirmation are kept.
type pendingSub struct {
	ch      chan domain.Head
	oldID   string // set when moving ch from a subscription lost on reconnect
	confirm chan string
}

func (c *WSClient) addPending(reqID uint64, ch chan domain.Head, oldID string) *pendingSub {
	p := &pendingSub{ch: ch, oldID: oldID, confirm: make(chan string, 1)}
	c.pendingSubsMu.Lock()
	c.pendingSubs[reqID] = p
	c.pendingSubsMu.Unlock()
	return p
}

// subscribe sends eth_subscribe for ch and waits for the subscription ID.
func (c *WSClient) subscribe(ctx context.Context, ch chan domain.Head, oldID string) (string, error) {
	if c.closed.Load() {
		return "", ErrClientClosed
	}

	reqID := c.requestID.Add(1)
	p := c.addPending(reqID, ch, oldID)
	confirmCh := p.confirm

	forget := func() {
		c.pendingSubsMu.Lock()
		delete(c.pendingSubs, reqID)
		c.pendingSubsMu.Unlock()
		if oldID != "" {
			return
		}
		// A confirmation may have raced the give-up; ch is never handed out.
		c.subsMu.Lock()
		for id, sub := range c.subs {
			if sub == ch {
				delete(c.subs, id)
			}
		}
		c.subsMu.Unlock()
	}

	req := wsRequest{JSONRPC: "2.0", ID: reqID, Method: "eth_subscribe", Params: []any{"newHeads"}}
	if err := c.write(req); err != nil {
		forget()
		return "", err
	}

	timer := time.NewTimer(c.config.SubscribeTimeout)
	defer timer.Stop()

	select {
	case subID, ok := <-confirmCh:
		if !ok {
			return "", ErrClientClosed
		}
		return subID, nil
	case <-timer.C:
		forget()
		return "", fmt.Errorf("subscription timeout after %v", c.config.SubscribeTimeout)
	case <-c.done:
		return "", ErrClientClosed
	case <-ctx.Done():
		forget()
		return "", ctx.Err()
	}
}

// unsubscribe drops ch and tells the node, best effort.
func (c *WSClient) unsubscribe(ch chan domain.Head) {
	c.subsMu.Lock()
	var subID string
	for id, sub := range c.subs {
		if sub == ch {
			subID = id
			delete(c.subs, id)
			close(ch)
			break
		}
	}
	c.subsMu.Unlock()

	if subID == "" {
		return
	}
	req := wsRequest{JSONRPC: "2.0", ID: c.requestID.Add(1), Method: "eth_unsubscribe", Params: []any{subID}}
	if err := c.write(req); err != nil {
		c.logger.Debug("unsubscribe failed", zap.String("subscription", subID), zap.Error(err))
	}
}

func (c *WSClient) write(v any) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := c.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	return nil
}

// Close closes the connection and every subscription channel.
func (c *WSClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()

	c.subsMu.Lock()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.subsMu.Unlock()

	c.pendingSubsMu.Lock()
	for id, p := range c.pendingSubs {
		close(p.confirm)
		delete(c.pendingSubs, id)
	}
	c.pendingSubsMu.Unlock()
	return nil
}

// readLoop reads messages and dispatches them; read errors trigger a reconnect
// with exponential backoff.
func (c *WSClient) readLoop() {
	defer c.wg.Done()

	reconnectDelay := c.config.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		var message []byte
		var err error
		if conn == nil {
			err = ErrNotConnected
		} else {
			_ = conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
			_, message, err = conn.ReadMessage()
		}
		if err != nil {
			if c.closed.Load() {
				return
			}
			if !c.reconnecting.Swap(true) {
				c.wg.Add(1)
				go c.reconnect(conn, reconnectDelay)

				reconnectDelay *= 2
				if reconnectDelay > c.config.MaxReconnectDelay {
					reconnectDelay = c.config.MaxReconnectDelay
				}
			}

			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		reconnectDelay = c.config.ReconnectDelay
		c.handleMessage(message)
	}
}

// reconnect replaces a failed connection and resubscribes every consumer.
func (c *WSClient) reconnect(failed *websocket.Conn, delay time.Duration) {
	defer c.wg.Done()
	defer c.reconnecting.Store(false)

	select {
	case <-c.done:
		return
	case <-time.After(delay):
	}

	c.connMu.Lock()
	if c.conn != nil && c.conn == failed {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		c.logger.Warn("websocket reconnect failed", zap.String("endpoint", c.endpoint), zap.Error(err))
		return
	}
	if c.closed.Load() {
		c.connMu.Lock()
		c.conn.Close()
		c.connMu.Unlock()
		return
	}
	observability.RecordWSReconnect()
	c.logger.Info("websocket reconnected", zap.String("endpoint", c.endpoint))

	// Resubscribe asynchronously: the confirmation arrives through readLoop.
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.resubscribeAll()
	}()
}

// resubscribeAll moves every consumer channel to a fresh subscription.
func (c *WSClient) resubscribeAll() {
	c.subsMu.RLock()
	old := make(map[string]chan domain.Head, len(c.subs))
	for id, ch := range c.subs {
		old[id] = ch
	}
	c.subsMu.RUnlock()

	for oldID, ch := range old {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_, err := c.subscribe(ctx, ch, oldID)
		cancel()
		if err != nil {
			c.logger.Warn("resubscribe failed", zap.String("subscription", oldID), zap.Error(err))
		}
	}
}

func (c *WSClient) handleMessage(message []byte) {
	var msg wsMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Debug("undecodable websocket message", zap.Error(err))
		return
	}

	switch {
	case msg.Method == "eth_subscription" && msg.Params != nil:
		c.handleHead(msg.Params)
	case msg.Error != nil:
		c.logger.Warn("websocket error response",
			zap.Uint64("id", msg.ID),
			zap.Int("code", msg.Error.Code),
			zap.String("message", msg.Error.Message),
		)
	case msg.ID != 0 && len(msg.Result) > 0:
		var subID string
		if err := json.Unmarshal(msg.Result, &subID); err != nil {
			return // eth_unsubscribe answers with a bool
		}
		c.pendingSubsMu.Lock()
		p, ok := c.pendingSubs[msg.ID]
		delete(c.pendingSubs, msg.ID)
		c.pendingSubsMu.Unlock()
		if ok {
			c.register(p, subID)
			p.confirm <- subID
		}
	}
}

// register binds the pending consumer to subID. A moved consumer that was
// unsubscribed while the request was in flight is not re-added.
func (c *WSClient) register(p *pendingSub, subID string) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	if p.oldID == "" {
		c.subs[subID] = p.ch
		return
	}
	if cur, ok := c.subs[p.oldID]; ok && cur == p.ch {
		delete(c.subs, p.oldID)
		c.subs[subID] = p.ch
	}
}

func (c *WSClient) handleHead(p *wsNotificationParams) {
	var h Header
	if err := json.Unmarshal(p.Result, &h); err != nil {
		c.logger.Debug("undecodable head", zap.Error(err))
		return
	}

	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	ch, ok := c.subs[p.Subscription]
	if !ok {
		return
	}
	select {
	case ch <- h.Head():
	default:
		// Consumer is behind; a later head supersedes this one.
	}
}

func (c *WSClient) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				_ = c.conn.WriteMessage(websocket.PingMessage, nil)
			}
			c.connMu.Unlock()
		}
	}
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type wsMessage struct {
	JSONRPC string                `json:"jsonrpc"`
	ID      uint64                `json:"id,omitempty"`
	Result  json.RawMessage       `json:"result,omitempty"`
	Error   *RPCError             `json:"error,omitempty"`
	Method  string                `json:"method,omitempty"`
	Params  *wsNotificationParams `json:"params,omitempty"`
}

type wsNotificationParams struct {
	Subscription string          `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ErrClientClosed is returned when subscribing on a closed client.
var ErrClientClosed = errors.New("websocket client closed")

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// HandshakeTimeout bounds the initial dial.
	HandshakeTimeout time.Duration
	// SubscribeTimeout bounds the wait for a subscription confirmation.
	SubscribeTimeout time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// BufferSize is the capacity of each notification channel.
	BufferSize int
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		HandshakeTimeout: 10 * time.Second,
		SubscribeTimeout: 30 * time.Second,
		PingInterval:     30 * time.Second,
		WriteTimeout:     10 * time.Second,
		BufferSize:       1024,
	}
}

// WSClientImpl implements WSClient using gorilla/websocket.
// It does not reconnect: when the connection drops every subscription
// channel is closed and the caller decides what to do.
type WSClientImpl struct {
	config WSClientConfig

	conn      *websocket.Conn
	writeMu   sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	mu      sync.Mutex
	subs    map[int64]chan LogNotification
	pending map[uint64]chan subscribeReply

	done chan struct{}
	wg   sync.WaitGroup
}

type subscribeReply struct {
	id  int64
	err error
}

// NewWSClient creates a new WebSocket client and connects to the endpoint.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig) (*WSClientImpl, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}

	dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	c := &WSClientImpl{
		config:  cfg,
		conn:    conn,
		subs:    make(map[int64]chan LogNotification),
		pending: make(map[uint64]chan subscribeReply),
		done:    make(chan struct{}),
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

// SubscribeLogs subscribes to transaction logs matching the filter.
func (c *WSClientImpl) SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	commitment := filter.Commitment
	if commitment == "" {
		commitment = CommitmentFinalized
	}

	var mentions interface{} = "all"
	if len(filter.Mentions) > 0 {
		mentions = map[string]interface{}{"mentions": filter.Mentions}
	}

	reqID := c.requestID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "logsSubscribe",
		Params: []interface{}{
			mentions,
			map[string]string{"commitment": commitment},
		},
	}

	replyCh := make(chan subscribeReply, 1)
	c.mu.Lock()
	c.pending[reqID] = replyCh
	c.mu.Unlock()

	if err := c.writeJSON(req); err != nil {
		c.dropPending(reqID)
		return nil, fmt.Errorf("write subscribe: %w", err)
	}

	timer := time.NewTimer(c.config.SubscribeTimeout)
	defer timer.Stop()

	select {
	case reply, ok := <-replyCh:
		if !ok {
			return nil, ErrClientClosed
		}
		if reply.err != nil {
			return nil, reply.err
		}
		ch := make(chan LogNotification, c.config.BufferSize)
		c.mu.Lock()
		c.subs[reply.id] = ch
		c.mu.Unlock()
		return ch, nil
	case <-timer.C:
		c.dropPending(reqID)
		return nil, fmt.Errorf("subscription timeout after %s", c.config.SubscribeTimeout)
	case <-ctx.Done():
		c.dropPending(reqID)
		return nil, ctx.Err()
	}
}

func (c *WSClientImpl) dropPending(reqID uint64) {
	c.mu.Lock()
	delete(c.pending, reqID)
	c.mu.Unlock()
}

func (c *WSClientImpl) writeJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.conn.WriteJSON(v)
}

// Close closes the WebSocket connection and all subscription channels.
func (c *WSClientImpl) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	close(c.done)

	c.writeMu.Lock()
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	err := c.conn.Close()

	c.wg.Wait()
	return err
}

// readLoop reads messages until the connection fails, then closes all
// subscription channels.
func (c *WSClientImpl) readLoop() {
	defer c.wg.Done()
	defer c.closeSubscriptions()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.handleMessage(message)
	}
}

func (c *WSClientImpl) closeSubscriptions() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// handleMessage processes incoming WebSocket message.
func (c *WSClientImpl) handleMessage(message []byte) {
	var msg wsMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}

	if msg.Method == "logsNotification" && msg.Params != nil {
		c.handleLogsNotification(msg.Params)
		return
	}

	if msg.ID == 0 {
		return
	}

	c.mu.Lock()
	ch, ok := c.pending[msg.ID]
	delete(c.pending, msg.ID)
	c.mu.Unlock()
	if !ok {
		return
	}

	switch {
	case msg.Error != nil:
		ch <- subscribeReply{err: msg.Error}
	case msg.Result != nil:
		ch <- subscribeReply{id: *msg.Result}
	default:
		ch <- subscribeReply{err: fmt.Errorf("empty subscribe response")}
	}
}

// handleLogsNotification dispatches log notification to subscriber.
func (c *WSClientImpl) handleLogsNotification(params *wsNotificationParams) {
	notif := LogNotification{
		Signature: params.Result.Value.Signature,
		Err:       params.Result.Value.Err,
	}
	if params.Result.Context != nil {
		notif.Slot = params.Result.Context.Slot
	}

	c.mu.Lock()
	ch, ok := c.subs[params.Subscription]
	c.mu.Unlock()
	if !ok {
		return
	}

	// Blocks when the subscriber falls behind; never drops notifications.
	select {
	case ch <- notif:
	case <-c.done:
	}
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *WSClientImpl) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
		}
	}
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// wsMessage covers subscribe responses, errors and notifications.
type wsMessage struct {
	JSONRPC string                `json:"jsonrpc"`
	ID      uint64                `json:"id"`
	Result  *int64                `json:"result"`
	Error   *RPCError             `json:"error"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64                `json:"subscription"`
	Result       wsNotificationResult `json:"result"`
}

type wsNotificationResult struct {
	Context *wsContext  `json:"context"`
	Value   wsLogsValue `json:"value"`
}

type wsContext struct {
	Slot int64 `json:"slot"`
}

type wsLogsValue struct {
	Signature string      `json:"signature"`
	Err       interface{} `json:"err"`
}

var _ WSClient = (*WSClientImpl)(nil)

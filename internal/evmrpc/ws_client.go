package evmrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Head is one new-head notification from an eth_subscribe("newHeads") stream.
// cmd/server uses it to detect closed reporting windows worth re-attributing.
type Head struct {
	Number    uint64
	Timestamp int64
}

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// WSClient streams new block heads over an EVM websocket endpoint.
type WSClient struct {
	endpoint string
	config   WSClientConfig

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	heads chan Head
	done  chan struct{}
	wg    sync.WaitGroup
}

// NewWSClient connects to the endpoint and subscribes to newHeads.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig) (*WSClient, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}

	c := &WSClient{
		endpoint: endpoint,
		config:   cfg,
		heads:    make(chan Head, 64),
		done:     make(chan struct{}),
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	c.conn = conn

	if err := c.subscribe(); err != nil {
		conn.Close()
		return nil, err
	}

	c.wg.Add(1)
	go c.readLoop()

	c.wg.Add(1)
	go c.pingLoop()

	return c, nil
}

// Heads returns the channel of new-head notifications.
// The channel is closed when the client shuts down.
func (c *WSClient) Heads() <-chan Head {
	return c.heads
}

// Close shuts the client down and waits for its goroutines.
func (c *WSClient) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(c.done)

	c.connMu.Lock()
	err := c.conn.Close()
	c.connMu.Unlock()

	c.wg.Wait()
	close(c.heads)
	return err
}

// subscribe sends the eth_subscribe request for newHeads.
func (c *WSClient) subscribe() error {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  "eth_subscribe",
		Params:  []any{"newHeads"},
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := c.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("subscribe newHeads: %w", err)
	}
	return nil
}

// wsNotification is the envelope of an eth_subscription push message.
type wsNotification struct {
	Method string `json:"method"`
	Params struct {
		Result header `json:"result"`
	} `json:"params"`
}

// readLoop reads messages until shutdown, forwarding decoded heads.
func (c *WSClient) readLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			// Connection lost; the consumer owns reconnect policy.
			return
		}

		var note wsNotification
		if err := json.Unmarshal(msg, &note); err != nil || note.Method != "eth_subscription" {
			continue // subscription ack or unrelated frame
		}

		number, err := parseHexUint(note.Params.Result.Number)
		if err != nil {
			continue
		}
		ts, err := parseHexUint(note.Params.Result.Timestamp)
		if err != nil {
			continue
		}

		select {
		case c.heads <- Head{Number: number, Timestamp: int64(ts)}:
		case <-c.done:
			return
		default:
			// Drop when the consumer lags; heads are only a tick signal.
		}
	}
}

// pingLoop keeps the connection alive.
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
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			_ = c.conn.WriteMessage(websocket.PingMessage, nil)
			c.connMu.Unlock()
		}
	}
}

package remote

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Client is a Store backed by a hub over one WebSocket connection.
//
// The connection is dialed lazily on first use and redialed (with bounded
// exponential backoff) after a failure. A dropped connection surfaces as
// ErrWriteFailed on flushes and as a dead change feed; the engine's normal
// recovery (retry on the next online transition) covers both, so the client
// never retries in a loop on its own.
type Client struct {
	url    string
	logger *log.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	seq     int64
	pending map[int64]chan error
	feeds   map[string]func([]Change)
}

// NewClient creates a client for the hub at url (e.g. ws://host:7432/sync).
// If logger is nil, a default logger writing to stderr is used.
func NewClient(url string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}
	return &Client{
		url:     url,
		logger:  logger,
		pending: make(map[int64]chan error),
		feeds:   make(map[string]func([]Change)),
	}
}

// ensureConn returns a live connection, dialing if necessary.
func (c *Client) ensureConn(ctx context.Context) (*websocket.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn, nil
	}

	var conn *websocket.Conn
	dial := func() error {
		dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		var err error
		conn, _, err = websocket.Dial(dctx, c.url, nil)
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(dial, policy); err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrWriteFailed, c.url, err)
	}

	c.conn = conn
	go c.readLoop(conn)
	return conn, nil
}

// readLoop dispatches incoming frames: acks resolve pending batches, change
// frames go to the attached feed handler. It exits when the connection dies,
// failing any in-flight batches.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var msg wireMessage
		if err := wsjson.Read(context.Background(), conn, &msg); err != nil {
			c.dropConn(conn, err)
			return
		}

		switch msg.Type {
		case "ack":
			c.resolve(msg.Seq, nil)
		case "error":
			c.resolve(msg.Seq, fmt.Errorf("%w: %s", ErrWriteFailed, msg.Error))
		case "changes":
			c.mu.Lock()
			fn := c.feeds[msg.User]
			c.mu.Unlock()
			if fn != nil {
				fn(msg.Changes)
			}
		}
	}
}

func (c *Client) resolve(seq int64, err error) {
	c.mu.Lock()
	ch, ok := c.pending[seq]
	if ok {
		delete(c.pending, seq)
	}
	c.mu.Unlock()
	if ok {
		ch <- err
	}
}

// dropConn discards a dead connection and fails every in-flight batch.
// Attached feeds stay registered: the engine re-attaches after reconnect.
func (c *Client) dropConn(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	pending := c.pending
	c.pending = make(map[int64]chan error)
	c.mu.Unlock()

	_ = conn.Close(websocket.StatusGoingAway, "")
	for _, ch := range pending {
		ch <- fmt.Errorf("%w: connection lost: %v", ErrWriteFailed, cause)
	}
}

// BatchWrite implements Store. It blocks until the hub acknowledges the
// batch or ctx is done.
func (c *Client) BatchWrite(ctx context.Context, userID string, ops []Op) error {
	if len(ops) == 0 {
		return nil
	}

	conn, err := c.ensureConn(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.seq++
	seq := c.seq
	ack := make(chan error, 1)
	c.pending[seq] = ack
	c.mu.Unlock()

	msg := wireMessage{Type: "batch", Seq: seq, User: userID, Ops: ops}
	if err := wsjson.Write(ctx, conn, msg); err != nil {
		c.resolve(seq, nil) // drain our own registration
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	select {
	case err := <-ack:
		return err
	case <-ctx.Done():
		c.resolve(seq, nil)
		return fmt.Errorf("%w: %v", ErrWriteFailed, ctx.Err())
	}
}

// Listen implements Store. The hub sends the initial snapshot followed by
// live changes; both arrive through fn.
func (c *Client) Listen(ctx context.Context, userID string, fn func([]Change)) (func(), error) {
	conn, err := c.ensureConn(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrListener, err)
	}

	c.mu.Lock()
	c.feeds[userID] = fn
	c.mu.Unlock()

	if err := wsjson.Write(ctx, conn, wireMessage{Type: "attach", User: userID}); err != nil {
		c.mu.Lock()
		delete(c.feeds, userID)
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrListener, err)
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.feeds, userID)
			conn := c.conn
			c.mu.Unlock()
			if conn != nil {
				dctx, dcancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer dcancel()
				_ = wsjson.Write(dctx, conn, wireMessage{Type: "detach", User: userID})
			}
		})
	}
	return cancel, nil
}

// Close tears down the connection. In-flight batches fail.
func (c *Client) Close() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		c.dropConn(conn, fmt.Errorf("client closed"))
	}
}

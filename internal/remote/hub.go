package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// wireMessage is the single frame type on the hub's WebSocket protocol.
// The Type field selects which other fields are meaningful:
//
//	attach  (client->hub): User
//	detach  (client->hub): User
//	batch   (client->hub): Seq, User, Ops
//	ack     (hub->client): Seq
//	error   (hub->client): Seq, Error
//	changes (hub->client): User, Changes
type wireMessage struct {
	Type    string   `json:"type"`
	Seq     int64    `json:"seq,omitempty"`
	User    string   `json:"user,omitempty"`
	Ops     []Op     `json:"ops,omitempty"`
	Changes []Change `json:"changes,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// HubConfig holds hub server configuration.
type HubConfig struct {
	// Port to listen on (0 = random available port).
	Port int

	// Logger for hub activity (default: stderr logger).
	Logger *log.Logger
}

// DefaultHubConfig returns sensible defaults.
func DefaultHubConfig() *HubConfig {
	return &HubConfig{
		Port:   7432,
		Logger: log.Default(),
	}
}

// Hub is a self-hostable remote document store served over WebSocket.
// It wraps a Memory store and streams each user's change feed to every
// connection attached to that user.
type Hub struct {
	addr     string
	store    *Memory
	listener net.Listener
	server   *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// NewHub creates a hub serving the given Memory store. Pass nil to start
// from an empty store.
func NewHub(store *Memory, config *HubConfig) *Hub {
	if config == nil {
		config = DefaultHubConfig()
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}
	if store == nil {
		store = NewMemory()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		addr:   fmt.Sprintf(":%d", config.Port),
		store:  store,
		ctx:    ctx,
		cancel: cancel,
		logger: config.Logger,
	}
}

// Start begins listening and serving WebSocket connections.
func (h *Hub) Start() error {
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.addr, err)
	}
	h.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/sync", h.handleSync)
	mux.HandleFunc("/health", h.handleHealth)

	h.server = &http.Server{
		Handler:     mux,
		ReadTimeout: 0, // connections are long-lived
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.logger.Printf("Hub listening on %s", ln.Addr())
		if err := h.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			h.logger.Printf("Hub server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the hub.
func (h *Hub) Stop() error {
	h.logger.Println("Stopping hub")
	h.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("hub shutdown error: %w", err)
	}
	h.wg.Wait()
	return nil
}

// Addr returns the hub's listening address.
func (h *Hub) Addr() string {
	if h.listener != nil {
		return h.listener.Addr().String()
	}
	return h.addr
}

// URL returns the WebSocket URL clients should dial.
func (h *Hub) URL() string {
	return "ws://" + h.Addr() + "/sync"
}

func (h *Hub) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
}

// handleSync upgrades the connection and runs the per-connection loop.
func (h *Hub) handleSync(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.serveConn(conn)
	}()
}

// hubConn is the per-connection state: a write lock (wsjson writes must not
// interleave) and the set of change-feed cancels owned by this connection.
type hubConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	feedsMu sync.Mutex
	feeds   map[string]func() // userID -> cancel
}

func (c *hubConn) write(ctx context.Context, msg wireMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return wsjson.Write(wctx, c.conn, msg)
}

func (h *Hub) serveConn(conn *websocket.Conn) {
	c := &hubConn{conn: conn, feeds: make(map[string]func())}
	defer func() {
		c.feedsMu.Lock()
		for _, cancel := range c.feeds {
			cancel()
		}
		c.feeds = nil
		c.feedsMu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		var msg wireMessage
		if err := wsjson.Read(h.ctx, conn, &msg); err != nil {
			return
		}

		switch msg.Type {
		case "attach":
			h.attachFeed(c, msg.User)
		case "detach":
			h.detachFeed(c, msg.User)
		case "batch":
			h.applyBatch(c, msg)
		default:
			h.logger.Printf("Ignoring unknown message type %q", msg.Type)
		}
	}
}

// attachFeed subscribes the connection to a user's change feed, replacing
// any previous feed for that user on the same connection.
func (h *Hub) attachFeed(c *hubConn, userID string) {
	if userID == "" {
		return
	}

	cancel, err := h.store.Listen(h.ctx, userID, func(changes []Change) {
		msg := wireMessage{Type: "changes", User: userID, Changes: changes}
		if err := c.write(h.ctx, msg); err != nil {
			h.logger.Printf("Failed to push changes to client: %v", err)
		}
	})
	if err != nil {
		h.logger.Printf("Failed to attach feed for %s: %v", userID, err)
		return
	}

	c.feedsMu.Lock()
	if prev, ok := c.feeds[userID]; ok {
		prev()
	}
	c.feeds[userID] = cancel
	c.feedsMu.Unlock()
}

func (h *Hub) detachFeed(c *hubConn, userID string) {
	c.feedsMu.Lock()
	if cancel, ok := c.feeds[userID]; ok {
		cancel()
		delete(c.feeds, userID)
	}
	c.feedsMu.Unlock()
}

// applyBatch commits a batched write and acks (or reports) the result.
func (h *Hub) applyBatch(c *hubConn, msg wireMessage) {
	err := h.store.BatchWrite(h.ctx, msg.User, msg.Ops)

	reply := wireMessage{Type: "ack", Seq: msg.Seq}
	if err != nil {
		reply = wireMessage{Type: "error", Seq: msg.Seq, Error: err.Error()}
	}
	if werr := c.write(h.ctx, reply); werr != nil {
		h.logger.Printf("Failed to reply to batch %d: %v", msg.Seq, werr)
	}
}

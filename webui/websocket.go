package webui

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"nerase/lifecycle"
	"nerase/logging"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocketBroadcaster pushes DisplayState snapshots to every connected page.
//
// Snapshots may be published from several goroutines; any snapshot whose
// revision is not newer than the last one sent is dropped, so clients only
// ever see the state move forward. New clients receive the current state
// as their first message.
//
// Thread-safe for concurrent client connections and publishing.
type WebSocketBroadcaster struct {
	mu           sync.Mutex
	clients      map[*wsClient]struct{}
	lastRevision uint64
	published    bool
	closed       bool

	current  func() lifecycle.DisplayState
	upgrader websocket.Upgrader
	config   BroadcasterConfig
	logger   *logging.Logger
}

type wsClient struct {
	conn        *websocket.Conn
	send        chan []byte
	remoteAddr  string
	connectedAt time.Time
}

// BroadcasterConfig holds configuration for the WebSocketBroadcaster.
type BroadcasterConfig struct {
	// PingInterval is how often to ping clients (default: 30s)
	PingInterval time.Duration

	// PongWait is how long to wait for a pong (default: 60s)
	PongWait time.Duration

	// WriteWait is the time allowed to write a message (default: 10s)
	WriteWait time.Duration

	// MaxMessageSize caps client-to-server messages (default: 512 bytes)
	MaxMessageSize int64

	// ClientSendBufferSize is the per-client queue; a client that falls
	// this far behind is disconnected (default: 32)
	ClientSendBufferSize int

	// Logger for connection events (default: no-op)
	Logger *logging.Logger
}

// DefaultBroadcasterConfig returns the default configuration.
func DefaultBroadcasterConfig() BroadcasterConfig {
	return BroadcasterConfig{
		PingInterval:         30 * time.Second,
		PongWait:             60 * time.Second,
		WriteWait:            10 * time.Second,
		MaxMessageSize:       512,
		ClientSendBufferSize: 32,
	}
}

// NewWebSocketBroadcaster creates a broadcaster. current supplies the state
// sent to newly connected clients and may be nil.
func NewWebSocketBroadcaster(current func() lifecycle.DisplayState, config BroadcasterConfig) *WebSocketBroadcaster {
	defaults := DefaultBroadcasterConfig()
	if config.PingInterval <= 0 {
		config.PingInterval = defaults.PingInterval
	}
	if config.PongWait <= 0 {
		config.PongWait = defaults.PongWait
	}
	if config.WriteWait <= 0 {
		config.WriteWait = defaults.WriteWait
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = defaults.MaxMessageSize
	}
	if config.ClientSendBufferSize <= 0 {
		config.ClientSendBufferSize = defaults.ClientSendBufferSize
	}
	if config.Logger == nil {
		config.Logger = logging.NewNop()
	}

	return &WebSocketBroadcaster{
		clients: make(map[*wsClient]struct{}),
		current: current,
		config:  config,
		logger:  config.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Same-origin deployment; the page is served by this process.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Start blocks until ctx is cancelled and then disconnects every client.
func (b *WebSocketBroadcaster) Start(ctx context.Context) {
	<-ctx.Done()
	b.Close()
}

// HandleConnection upgrades the request and registers the client.
func (b *WebSocketBroadcaster) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err))
		return
	}

	c := &wsClient{
		conn:        conn,
		send:        make(chan []byte, b.config.ClientSendBufferSize),
		remoteAddr:  clientIP(r),
		connectedAt: time.Now(),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		conn.Close()
		return
	}
	b.clients[c] = struct{}{}
	if b.current != nil {
		state := b.current()
		if data, err := json.Marshal(NewStateMessage(state)); err == nil {
			c.send <- data
		}
		if !b.published || state.Revision > b.lastRevision {
			b.lastRevision = state.Revision
			b.published = true
		}
	}
	count := len(b.clients)
	b.mu.Unlock()

	b.logger.Debug("websocket client connected",
		zap.String("remote_addr", c.remoteAddr),
		zap.Int("clients", count))

	go b.writePump(c)
	go b.readPump(c)
}

// PublishState sends state to every client unless a newer revision has
// already been sent.
func (b *WebSocketBroadcaster) PublishState(state lifecycle.DisplayState) bool {
	data, err := json.Marshal(NewStateMessage(state))
	if err != nil {
		b.logger.Error("failed to marshal state", zap.Error(err))
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	if b.published && state.Revision <= b.lastRevision {
		return false
	}
	b.lastRevision = state.Revision
	b.published = true
	b.sendLocked(data)
	return true
}

// BroadcastError sends an error message to every client.
func (b *WebSocketBroadcaster) BroadcastError(code, message string) {
	data, err := json.Marshal(NewErrorMessage(code, message))
	if err != nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.sendLocked(data)
	}
}

func (b *WebSocketBroadcaster) sendLocked(data []byte) {
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			b.logger.Warn("websocket client too slow, disconnecting",
				zap.String("remote_addr", c.remoteAddr))
			b.removeLocked(c)
		}
	}
}

// ClientCount returns the number of connected clients.
func (b *WebSocketBroadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Close disconnects every client and rejects new ones.
func (b *WebSocketBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for c := range b.clients {
		b.removeLocked(c)
	}
	b.logger.Debug("websocket broadcaster closed")
}

func (b *WebSocketBroadcaster) remove(c *wsClient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(c)
}

// removeLocked closes the client's queue; its writePump then sends a close
// frame and closes the connection.
func (b *WebSocketBroadcaster) removeLocked(c *wsClient) {
	if _, ok := b.clients[c]; !ok {
		return
	}
	delete(b.clients, c)
	close(c.send)
	b.logger.Debug("websocket client disconnected",
		zap.String("remote_addr", c.remoteAddr),
		zap.Duration("connected_for", time.Since(c.connectedAt)),
		zap.Int("clients", len(b.clients)))
}

// readPump consumes pongs and close frames; the page sends nothing else.
func (b *WebSocketBroadcaster) readPump(c *wsClient) {
	defer b.remove(c)

	c.conn.SetReadLimit(b.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(b.config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(b.config.PongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				b.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
	}
}

func (b *WebSocketBroadcaster) writePump(c *wsClient) {
	ticker := time.NewTicker(b.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(b.config.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				b.remove(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(b.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				b.remove(c)
				return
			}
		}
	}
}

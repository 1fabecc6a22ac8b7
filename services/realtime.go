package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

// WebSocket close codes surfaced to clients on handshake or stream failure.
const (
	CloseAuthFailed     = 4001
	CloseForbidden      = 4003
	CloseMatterNotFound = 4004
	CloseInternalError  = 4500
)

const progressChannelPrefix = "progress:"

// RedisProgressNotifier publishes job progress to a per-matter Redis
// channel so every API instance's hub sees it, not just the one colocated
// with the worker.
type RedisProgressNotifier struct {
	rdb    *redis.Client
	logger *slog.Logger
}

func NewRedisProgressNotifier(rdb *redis.Client, logger *slog.Logger) *RedisProgressNotifier {
	return &RedisProgressNotifier{rdb: rdb, logger: logger}
}

func (n *RedisProgressNotifier) NotifyProgress(ctx context.Context, matterID string, event ProgressEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("marshal progress event", "error", err)
		return
	}
	if err := n.rdb.Publish(ctx, progressChannelPrefix+matterID, data).Err(); err != nil {
		n.logger.Warn("publish progress event", "matter_id", matterID, "error", err)
	}
}

// wsClient is one subscribed connection. Events queue on a buffered channel
// drained by a dedicated writer goroutine; a full buffer drops the client
// rather than blocking the hub.
type wsClient struct {
	matterID string
	conn     *websocket.Conn
	send     chan []byte
	once     sync.Once
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub fans Redis progress events out to WebSocket subscribers grouped by
// matter.
type Hub struct {
	rdb          *redis.Client
	pingInterval time.Duration
	logger       *slog.Logger

	mu      sync.RWMutex
	clients map[string]map[*wsClient]bool
}

func NewHub(rdb *redis.Client, pingInterval time.Duration, logger *slog.Logger) *Hub {
	return &Hub{
		rdb:          rdb,
		pingInterval: pingInterval,
		logger:       logger,
		clients:      make(map[string]map[*wsClient]bool),
	}
}

// Run bridges the Redis pattern subscription into per-client send channels.
// Blocks until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	pubsub := h.rdb.PSubscribe(ctx, progressChannelPrefix+"*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	h.logger.Info("realtime hub subscribed", "pattern", progressChannelPrefix+"*")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("progress subscription closed")
			}
			matterID := strings.TrimPrefix(msg.Channel, progressChannelPrefix)
			h.broadcast(matterID, []byte(msg.Payload))
		}
	}
}

func (h *Hub) broadcast(matterID string, payload []byte) {
	h.mu.RLock()
	conns := make([]*wsClient, 0, len(h.clients[matterID]))
	for c := range h.clients[matterID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		select {
		case c.send <- payload:
		default:
			// Slow consumer. Drop it; the client reconnects and refetches
			// job state over the REST API.
			h.logger.Warn("dropping slow websocket client", "matter_id", matterID)
			h.Detach(c)
			c.conn.Close()
		}
	}
}

// connectedEvent is the first frame every subscriber receives, confirming
// which matter and user the stream was established for.
type connectedEvent struct {
	Type     string `json:"type"`
	MatterID string `json:"matter_id"`
	UserID   string `json:"user_id"`
}

// Attach registers a connection for a matter, queues the connected greeting,
// and starts the writer. The writer owns all writes to the conn, including
// keepalive pings.
func (h *Hub) Attach(matterID, userID string, conn *websocket.Conn) *wsClient {
	client := &wsClient{
		matterID: matterID,
		conn:     conn,
		send:     make(chan []byte, 64),
	}
	if greeting, err := json.Marshal(connectedEvent{
		Type:     EventTypeConnected,
		MatterID: matterID,
		UserID:   userID,
	}); err == nil {
		client.send <- greeting
	}

	h.mu.Lock()
	if h.clients[matterID] == nil {
		h.clients[matterID] = make(map[*wsClient]bool)
	}
	h.clients[matterID][client] = true
	h.mu.Unlock()

	go h.writeLoop(client)
	return client
}

// Detach removes a connection from the hub. Safe to call more than once.
func (h *Hub) Detach(c *wsClient) {
	h.mu.Lock()
	if set, ok := h.clients[c.matterID]; ok {
		if set[c] {
			delete(set, c)
			if len(set) == 0 {
				delete(h.clients, c.matterID)
			}
			c.close()
		}
	}
	h.mu.Unlock()
}

func (h *Hub) writeLoop(c *wsClient) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(5*time.Second))
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.Detach(c)
				return
			}
		case <-ticker.C:
			// Application-level ping; browser clients cannot see protocol
			// ping frames, so the keepalive rides the message stream.
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, pingFrame); err != nil {
				h.Detach(c)
				return
			}
		}
	}
}

var pingFrame = []byte(`{"type":"ping"}`)

// ReadLoop consumes client frames until the connection drops. Any inbound
// frame, a pong reply included, counts as liveness and extends the read
// deadline; frame contents are otherwise ignored.
func (h *Hub) ReadLoop(c *wsClient) {
	defer func() {
		h.Detach(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(1024)
	deadline := 2 * h.pingInterval
	c.conn.SetReadDeadline(time.Now().Add(deadline))
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(deadline))
	}
}

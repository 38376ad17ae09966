package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/techscire/scirecount-core/internal/broadcast"
	"github.com/techscire/scirecount-core/internal/infrastructure/config"
	"github.com/techscire/scirecount-core/internal/infrastructure/logging"
)

// WebSocket constants.
const (
	WSTypePing     = "ping"
	WSTypePong     = "pong"
	WSTypeEvent    = "event"
	WSTypeResponse = "response"
	WSTypeError    = "error"

	// WSEventDevicesUpdate carries the full device snapshot.
	WSEventDevicesUpdate = "devices_update"

	// defaultSendBufferSize is the per-client outbound message buffer size
	// when websocket.send_buffer is unset.
	defaultSendBufferSize = 64
)

// WSMessage represents a message sent to/from a WebSocket client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// Hub tracks WebSocket connections and attaches each one to the broadcaster.
type Hub struct {
	cfg         config.WebSocketConfig
	logger      *logging.Logger
	broadcaster *broadcast.Broadcaster
	clients     map[*WSClient]struct{}
	mu          sync.RWMutex

	// Last encoded snapshot, reused while every client gets the same Seq.
	encMu   sync.Mutex
	encSeq  uint64
	encData []byte
}

// WSClient represents a connected WebSocket client. It is a
// broadcast.Observer: snapshots are encoded and queued on send.
type WSClient struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	mu     sync.RWMutex
	closed bool
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a new WebSocket hub delivering snapshots from broadcaster.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger, broadcaster *broadcast.Broadcaster) *Hub {
	return &Hub{
		cfg:         cfg,
		logger:      logger,
		broadcaster: broadcaster,
		clients:     make(map[*WSClient]struct{}),
	}
}

// Run blocks until the context is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// newClient creates a client with a fresh observer ID.
func (h *Hub) newClient(conn *websocket.Conn) *WSClient {
	size := h.cfg.SendBuffer
	if size <= 0 {
		size = defaultSendBufferSize
	}
	return &WSClient{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, size),
	}
}

// Register adds a client to the hub and subscribes it to the broadcaster,
// which immediately queues the current snapshot for it.
func (h *Hub) Register(ctx context.Context, client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	if h.broadcaster != nil {
		h.broadcaster.Subscribe(ctx, client)
	}
	h.logger.Debug("websocket client connected", "client_id", client.id, "clients", h.ClientCount())
}

// Unregister removes a client from the hub and the broadcaster.
// Only the goroutine that successfully removes the client from the map
// closes the send channel.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if h.broadcaster != nil {
		h.broadcaster.Unsubscribe(client.id)
	}
	if existed {
		client.close()
	}
	h.logger.Debug("websocket client disconnected", "client_id", client.id, "clients", h.ClientCount())
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll disconnects all clients and closes their send channels
// so writePump goroutines can exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
		delete(h.clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		if h.broadcaster != nil {
			h.broadcaster.Unsubscribe(client.id)
		}
		client.close()
		if client.conn != nil {
			client.conn.Close()
		}
	}
}

// encodeSnapshot returns the devices_update message for snapshot. The
// broadcaster hands the same snapshot to every client, so the encoding
// is cached by sequence number.
func (h *Hub) encodeSnapshot(snapshot broadcast.Snapshot) ([]byte, error) {
	h.encMu.Lock()
	defer h.encMu.Unlock()

	if h.encData != nil && h.encSeq == snapshot.Seq {
		return h.encData, nil
	}

	devices := snapshot.Devices
	if devices == nil {
		devices = []broadcast.Entry{}
	}
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: WSEventDevicesUpdate,
		Timestamp: snapshot.GeneratedAt.UTC().Format(time.RFC3339),
		Payload:   devices,
	})
	if err != nil {
		return nil, err
	}
	h.encSeq = snapshot.Seq
	h.encData = data
	return data, nil
}

// handleWebSocket upgrades the HTTP connection to a WebSocket connection.
// The dashboard feed is public; no token is required.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := s.hub.newClient(conn)

	// Pumps start before Register so the initial snapshot is written as
	// soon as it is queued.
	go client.writePump(s.wsCfg)
	s.hub.Register(context.WithoutCancel(r.Context()), client)
	go client.readPump(s.wsCfg)
}

// ID implements broadcast.Observer.
func (c *WSClient) ID() string {
	return c.id
}

// Deliver implements broadcast.Observer. It never blocks: a full buffer
// returns broadcast.ErrObserverBusy and the snapshot is dropped.
func (c *WSClient) Deliver(snapshot broadcast.Snapshot) error {
	data, err := c.hub.encodeSnapshot(snapshot)
	if err != nil {
		return err
	}
	return c.trySend(data)
}

// readPump reads messages from the WebSocket connection.
func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	if cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	}
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "client_id", c.id, "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "client_id", c.id, "error", err)
			}
			return
		}
		// Any client message resets the read deadline (keeps connection alive
		// even if browser doesn't respond to protocol-level pings).
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleMessage(message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	pongWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Hub closed the channel
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes an incoming WebSocket message.
func (c *WSClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypePing:
		c.sendResponse(msg.ID, WSTypePong, nil)
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// trySend queues data without blocking.
func (c *WSClient) trySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return broadcast.ErrObserverClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return broadcast.ErrObserverBusy
	}
}

// close closes the send channel once.
func (c *WSClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// sendResponse sends a response message to the client.
func (c *WSClient) sendResponse(id, msgType string, payload any) {
	msg := WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	//nolint:errcheck // Replies to a slow or closing client are dropped
	c.trySend(data)
}

// sendError sends an error message to the client.
func (c *WSClient) sendError(id, message string) {
	c.sendResponse(id, WSTypeError, map[string]string{"message": message})
}

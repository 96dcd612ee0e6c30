package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-miot/internal/entity"
	"github.com/nerrad567/gray-logic-miot/internal/host"
	"github.com/nerrad567/gray-logic-miot/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-miot/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-miot/internal/infrastructure/metrics"
)

// WebSocket constants.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 256

	// wsAllChannels subscribes a client to every broadcast channel.
	wsAllChannels = "*"
)

// WSMessage represents a message sent to/from a WebSocket client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload for subscribe/unsubscribe messages.
// Entities narrows entity.state_changed events to the listed entity IDs.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
	Entities []string `json:"entities,omitempty"`
}

// Hub manages WebSocket connections and broadcasts events.
type Hub struct {
	cfg       config.WebSocketConfig
	logger    *logging.Logger
	collector *metrics.Collector
	clients   map[*WSClient]struct{}
	mu        sync.RWMutex
}

// WSClient represents a connected WebSocket client.
type WSClient struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	subscriptions map[string]struct{}
	// entities restricts entity.state_changed events to these entity IDs.
	// Empty means all entities.
	entities map[string]struct{}
	mu       sync.RWMutex

	// snapshots lists current entity state for new subscriptions. Optional.
	snapshots func() []entity.Snapshot
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

// NewHub creates a new WebSocket hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// SetCollector attaches the metrics collector used for the client gauge.
func (h *Hub) SetCollector(c *metrics.Collector) {
	h.mu.Lock()
	h.collector = c
	h.mu.Unlock()
}

// Run starts the hub's main loop. It blocks until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.collector.SetWebsocketClients(n)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// Unregister removes a client from the hub.
// Only the goroutine that successfully removes the client from the map
// closes the send channel, preventing double-close panics during shutdown.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	n := len(h.clients)
	h.collector.SetWebsocketClients(n)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.logger.Debug("websocket client disconnected", "clients", n)
}

// Broadcast sends an event to all clients subscribed to the given channel.
// Lock ordering: hub lock is acquired first, then released before per-client
// subscription checks. This avoids holding both hub and client locks simultaneously.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := encodeEvent(channel, time.Now(), payload)
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "error", err)
		return
	}

	// Snapshot client list under hub lock, then release before sending
	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	sentCount := 0
	for _, client := range clients {
		if client.wants(channel, payload) {
			client.trySend(data)
			sentCount++
		}
	}
	if sentCount > 0 {
		h.logger.Debug("broadcast sent", "channel", channel, "recipients", sentCount)
	}
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
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
	h.collector.SetWebsocketClients(0)
}

// wsTimings holds the keepalive durations derived from WebSocketConfig.
type wsTimings struct {
	readLimit int64
	ping      time.Duration
	// readWait is how long a connection may stay silent before it is dropped.
	readWait time.Duration
	// writeWait bounds each outbound frame.
	writeWait time.Duration
}

func newWSTimings(cfg config.WebSocketConfig) wsTimings {
	ping := time.Duration(cfg.PingInterval) * time.Second
	pong := time.Duration(cfg.PongTimeout) * time.Second
	return wsTimings{
		readLimit: int64(cfg.MaxMessageSize),
		ping:      ping,
		readWait:  ping + pong,
		writeWait: pong,
	}
}

// handleWebSocket upgrades the HTTP connection and starts the client pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
		entities:      make(map[string]struct{}),
		snapshots:     s.entitySnapshots,
	}
	s.hub.Register(client)

	t := newWSTimings(s.wsCfg)
	go client.writePump(t)
	go client.readPump(t)
}

// entitySnapshots returns a snapshot of every attached entity.
func (s *Server) entitySnapshots() []entity.Snapshot {
	ents := s.runtime.Entities()
	out := make([]entity.Snapshot, 0, len(ents))
	for _, e := range ents {
		out = append(out, e.Snapshot())
	}
	return out
}

// readPump consumes client frames until the connection fails or the
// client goes quiet for longer than readWait. Any frame, pong or text,
// extends the deadline.
func (c *WSClient) readPump(t wsTimings) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	extend := func() error {
		return c.conn.SetReadDeadline(time.Now().Add(t.readWait))
	}
	c.conn.SetReadLimit(t.readLimit)
	_ = extend() //nolint:errcheck // failure surfaces on the next read
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		switch {
		case err == nil:
		case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure):
			c.hub.logger.Warn("websocket read error", "error", err)
			return
		default:
			c.hub.logger.Debug("websocket closed", "error", err)
			return
		}
		_ = extend() //nolint:errcheck // failure surfaces on the next read
		c.handleMessage(data)
	}
}

// writePump drains the send queue and pings on every tick. A closed send
// channel means the hub dropped the client.
func (c *WSClient) writePump(t wsTimings) {
	ticker := time.NewTicker(t.ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		_ = c.conn.SetWriteDeadline(time.Now().Add(t.writeWait)) //nolint:errcheck // write reports it
		return c.conn.WriteMessage(kind, data)
	}

	for {
		var err error
		select {
		case data, ok := <-c.send:
			if !ok {
				_ = write(websocket.CloseMessage, nil) //nolint:errcheck // connection is going away
				return
			}
			err = write(websocket.TextMessage, data)
		case <-ticker.C:
			err = write(websocket.PingMessage, nil)
		}
		if err != nil {
			return
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
	case WSTypeSubscribe, WSTypeUnsubscribe:
		c.handleSubscription(msg)
	case WSTypePing:
		c.sendResponse(msg.ID, WSTypePong, nil)
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// handleSubscription adds or removes channels and entity filters. A new
// subscription to state changes is followed by the current snapshot of
// every matching entity.
func (c *WSClient) handleSubscription(msg WSMessage) {
	var sub WSSubscribePayload
	raw, err := json.Marshal(msg.Payload)
	if err == nil {
		err = json.Unmarshal(raw, &sub)
	}
	if err != nil {
		c.sendError(msg.ID, "invalid "+msg.Type+" payload")
		return
	}

	add := msg.Type == WSTypeSubscribe
	c.mu.Lock()
	for _, ch := range sub.Channels {
		if add {
			c.subscriptions[ch] = struct{}{}
		} else {
			delete(c.subscriptions, ch)
		}
	}
	for _, id := range sub.Entities {
		if add {
			c.entities[id] = struct{}{}
		} else {
			delete(c.entities, id)
		}
	}
	c.mu.Unlock()

	key := "unsubscribed"
	if add {
		key = "subscribed"
	}
	c.hub.logger.Debug("websocket "+key, "channels", sub.Channels, "entities", sub.Entities)
	c.sendResponse(msg.ID, WSTypeResponse, map[string]any{
		key:        sub.Channels,
		"entities": sub.Entities,
	})

	if add && c.snapshots != nil {
		c.sendSnapshots()
	}
}

// sendSnapshots pushes the current state of every entity the client
// follows, using the same event shape as live state changes.
func (c *WSClient) sendSnapshots() {
	for _, snap := range c.snapshots() {
		if !c.wants(host.ChannelStateChanged, snap) {
			continue
		}
		data, err := encodeEvent(host.ChannelStateChanged, snap.Timestamp, snap)
		if err != nil {
			continue
		}
		c.trySend(data)
	}
}

// trySend attempts to send data to the client's send channel.
// It silently handles closed channels (client disconnected during broadcast)
// and full buffers (slow client).
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
		// Client buffer full, skip
	}
}

// wants reports whether the client should receive an event on channel.
// State change events are filtered by the client's entity list when set.
func (c *WSClient) wants(channel string, payload any) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[channel]
	if !ok {
		_, ok = c.subscriptions[wsAllChannels]
	}
	if !ok || len(c.entities) == 0 {
		return ok
	}
	id := entityIDOf(payload)
	if id == "" {
		return true
	}
	_, ok = c.entities[id]
	return ok
}

// entityIDOf extracts the entity_id field from a broadcast payload.
func entityIDOf(payload any) string {
	switch p := payload.(type) {
	case map[string]any:
		id, _ := p["entity_id"].(string) //nolint:errcheck // empty on mismatch
		return id
	case entity.Snapshot:
		return p.EntityID
	}
	return ""
}

// encodeEvent renders an event frame for channel.
func encodeEvent(channel string, at time.Time, payload any) ([]byte, error) {
	return json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: at.UTC().Format(time.RFC3339),
		Payload:   payload,
	})
}

// sendResponse queues a reply to the request with the given id.
func (c *WSClient) sendResponse(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err == nil {
		c.trySend(data)
	}
}

// sendError sends an error message to the client.
func (c *WSClient) sendError(id, message string) {
	c.sendResponse(id, WSTypeError, map[string]string{"message": message})
}

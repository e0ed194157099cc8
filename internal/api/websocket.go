package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-upnp/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-upnp/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-upnp/internal/upnp/device"
)

// Message types of the event stream.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// ChannelAll subscribes to every channel.
	ChannelAll = "*"

	wsSendBufferSize = 256

	defaultWSMaxMessageSize = 8192
	defaultWSPingInterval   = 30 // seconds
	defaultWSPongTimeout    = 10 // seconds
)

// knownChannels are the channels a client may subscribe to.
var knownChannels = []string{
	string(device.EventAvailable),
	string(device.EventUnavailable),
	string(device.EventPropertyChanged),
	ChannelDirectoryAdded,
	ChannelDirectoryRemoved,
}

// WSMessage is one frame of the event stream, in either direction.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload selects channels and, optionally, devices.
//
// Devices holds device UUIDs (registry channels) or UDNs (directory
// channels). An empty list means every device. Unsubscribing with only
// Devices removes those devices from the filter.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
	Devices  []string `json:"devices,omitempty"`
}

// Hub fans registry and directory events out to WebSocket clients.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

// wsClient is one connection. send is closed exactly once, under mu,
// by Hub.remove.
type wsClient struct {
	hub  *Hub
	conn *websocket.Conn

	mu       sync.Mutex
	send     chan []byte
	closed   bool
	channels map[string]struct{}
	devices  map[string]struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are checked by corsMiddleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewHub creates a hub with no clients.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     withWSDefaults(cfg),
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// withWSDefaults fills zero settings so the pumps never tick at zero.
func withWSDefaults(cfg config.WebSocketConfig) config.WebSocketConfig {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultWSMaxMessageSize
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultWSPingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaultWSPongTimeout
	}
	return cfg
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.remove(c)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// remove forgets c and closes its send channel and connection. It is
// safe to call more than once.
func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	if !ok {
		return
	}

	c.mu.Lock()
	c.closed = true
	close(c.send)
	c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close() //nolint:errcheck // connection is being dropped
	}
	h.logger.Debug("websocket client disconnected", "clients", n)
}

// Broadcast sends payload to every client subscribed to channel whose
// device filter admits key. It never blocks; a client with a full buffer
// misses the event.
func (h *Hub) Broadcast(channel, key string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("encoding websocket event failed", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	sent, dropped := 0, 0
	for _, c := range clients {
		switch c.deliver(channel, key, data) {
		case deliverSent:
			sent++
		case deliverDropped:
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.Warn("websocket clients too slow, event dropped", "channel", channel, "clients", dropped)
	}
	if sent > 0 {
		h.logger.Debug("websocket event sent", "channel", channel, "recipients", sent)
	}
}

type deliverResult int

const (
	deliverSkipped deliverResult = iota
	deliverSent
	deliverDropped
)

// deliver queues data when c wants (channel, key).
func (c *wsClient) deliver(channel, key string, data []byte) deliverResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || !c.wants(channel, key) {
		return deliverSkipped
	}
	select {
	case c.send <- data:
		return deliverSent
	default:
		return deliverDropped
	}
}

// wants reports whether the subscription admits (channel, key). c.mu held.
func (c *wsClient) wants(channel, key string) bool {
	_, all := c.channels[ChannelAll]
	_, one := c.channels[channel]
	if !all && !one {
		return false
	}
	if len(c.devices) == 0 {
		return true
	}
	_, ok := c.devices[key]
	return ok
}

// reply queues a non-event frame for c.
func (c *wsClient) reply(msgType, id string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *wsClient) replyError(id, format string, args ...any) {
	c.reply(WSTypeError, id, map[string]string{"message": fmt.Sprintf(format, args...)})
}

// handleWebSocket upgrades GET /api/v1/ws. Clients start with no channels.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{
		hub:      s.hub,
		conn:     conn,
		send:     make(chan []byte, wsSendBufferSize),
		channels: make(map[string]struct{}),
		devices:  make(map[string]struct{}),
	}
	s.hub.add(c)

	go c.writePump()
	go c.readPump()
}

// readPump handles client frames until the connection fails.
func (c *wsClient) readPump() {
	defer c.hub.remove(c)

	cfg := c.hub.cfg
	timeout := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(timeout)) }

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	extend() //nolint:errcheck // a failed deadline surfaces on the next read
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		// Browsers that ignore protocol pings stay alive by talking.
		extend() //nolint:errcheck // a failed deadline surfaces on the next read
		c.handle(data)
	}
}

// writePump drains send and pings until send is closed or a write fails.
func (c *wsClient) writePump() {
	cfg := c.hub.cfg
	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	defer ticker.Stop()

	write := func(kind int, data []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // write error reported below
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				write(websocket.CloseMessage, nil) //nolint:errcheck // best effort goodbye
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				c.hub.remove(c)
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				c.hub.remove(c)
				return
			}
		}
	}
}

// handle acts on one client frame.
func (c *wsClient) handle(data []byte) {
	var msg struct {
		Type    string             `json:"type"`
		ID      string             `json:"id"`
		Payload WSSubscribePayload `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		c.replyError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe:
		c.subscribe(msg.ID, msg.Payload)
	case WSTypeUnsubscribe:
		c.unsubscribe(msg.ID, msg.Payload)
	case WSTypePing:
		c.reply(WSTypePong, msg.ID, nil)
	default:
		c.replyError(msg.ID, "unknown message type: %s", msg.Type)
	}
}

func (c *wsClient) subscribe(id string, p WSSubscribePayload) {
	for _, ch := range p.Channels {
		if ch != ChannelAll && !slices.Contains(knownChannels, ch) {
			c.replyError(id, "unknown channel: %s", ch)
			return
		}
	}

	c.mu.Lock()
	for _, ch := range p.Channels {
		c.channels[ch] = struct{}{}
	}
	for _, d := range p.Devices {
		c.devices[d] = struct{}{}
	}
	c.mu.Unlock()

	c.hub.logger.Debug("websocket client subscribed", "channels", p.Channels, "devices", len(p.Devices))
	c.reply(WSTypeResponse, id, map[string]any{"subscribed": p.Channels, "devices": p.Devices})
}

func (c *wsClient) unsubscribe(id string, p WSSubscribePayload) {
	c.mu.Lock()
	for _, ch := range p.Channels {
		delete(c.channels, ch)
	}
	for _, d := range p.Devices {
		delete(c.devices, d)
	}
	c.mu.Unlock()

	c.reply(WSTypeResponse, id, map[string]any{"unsubscribed": p.Channels, "devices": p.Devices})
}

package api

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/canvas-link/internal/infrastructure/config"
	"github.com/nerrad567/canvas-link/internal/infrastructure/logging"
)

// Channels a UI client can subscribe to. Every client starts on ChannelUI.
const (
	// ChannelUI carries UI notifications ({command, data}).
	ChannelUI = "ui"

	// ChannelPalette carries link commands for the palette plugin.
	ChannelPalette = "palette"
)

const (
	defaultMaxMessageSize = 8192
	defaultPingInterval   = 30 * time.Second
	defaultPongTimeout    = 10 * time.Second
)

// Notification is the payload of a ChannelUI event.
type Notification struct {
	Command string `json:"command"`
	Data    any    `json:"data,omitempty"`
}

// PaletteMessage is the payload of a ChannelPalette event.
type PaletteMessage struct {
	Message string `json:"message"`
}

// Hub fans hub events out to connected UI clients by channel. It is the
// notifier of the registration workflow, the router and storage, and the
// palette link of the router.
//
// Thread Safety: safe for concurrent use.
type Hub struct {
	logger *logging.Logger

	maxMessageSize int64
	pingInterval   time.Duration
	pongTimeout    time.Duration

	mu      sync.RWMutex
	clients map[*uiClient]struct{}
}

// NewHub creates a hub. Zero config values use the defaults.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Discard()
	}
	h := &Hub{
		logger:         logger,
		maxMessageSize: int64(cfg.MaxMessageSize),
		pingInterval:   time.Duration(cfg.PingInterval) * time.Second,
		pongTimeout:    time.Duration(cfg.PongTimeout) * time.Second,
		clients:        make(map[*uiClient]struct{}),
	}
	if h.maxMessageSize <= 0 {
		h.maxMessageSize = defaultMaxMessageSize
	}
	if h.pingInterval <= 0 {
		h.pingInterval = defaultPingInterval
	}
	if h.pongTimeout <= 0 {
		h.pongTimeout = defaultPongTimeout
	}
	return h
}

// Run blocks until ctx is done, then drops every client.
func (h *Hub) Run(ctx context.Context) error {
	<-ctx.Done()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*uiClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.stop()
	}
	return nil
}

// Notify sends a UI notification.
func (h *Hub) Notify(command string, data any) {
	h.Broadcast(ChannelUI, Notification{Command: command, Data: data})
}

// SendMessage forwards a link command ("connect", "disconnect") to the
// palette plugin.
func (h *Hub) SendMessage(message string) {
	h.Broadcast(ChannelPalette, PaletteMessage{Message: message})
}

// Broadcast sends payload as an event to every client on channel. Slow
// clients miss the event rather than block the sender.
func (h *Hub) Broadcast(channel string, payload any) {
	frame, err := encodeFrame(WSMessage{Type: WSTypeEvent, EventType: channel, Payload: payload})
	if err != nil {
		h.logger.Error("encoding ui event", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.subscribed(channel) {
			c.enqueue(frame)
		}
	}
}

// ClientCount returns the number of connected UI clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) add(c *uiClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("ui client connected", "client_id", c.id)
}

func (h *Hub) remove(c *uiClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	c.stop()
	if ok {
		h.logger.Debug("ui client disconnected", "client_id", c.id)
	}
}

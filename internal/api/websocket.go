package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Frame types of the UI websocket protocol.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// outboxSize is the number of frames buffered per client.
const outboxSize = 256

// WSMessage is one frame in either direction. Events carry their channel
// in EventType; replies echo the request ID.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload of subscribe and unsubscribe frames.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// request is an inbound frame with its payload left undecoded.
type request struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// encodeFrame stamps and encodes m.
func encodeFrame(m WSMessage) ([]byte, error) {
	m.Timestamp = time.Now().UTC().Format(time.RFC3339)
	return json.Marshal(m)
}

// upgrader accepts any origin; allowOrigins has already run.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// uiClient is one websocket connection from the local UI.
type uiClient struct {
	id   string
	hub  *Hub
	conn *websocket.Conn

	chMu     sync.RWMutex
	channels map[string]bool

	outMu  sync.Mutex
	out    chan []byte
	closed bool
}

// handleWebSocket upgrades the request and serves the client on ChannelUI
// until either side closes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ui client upgrade failed", "error", err, "request_id", requestID(r.Context()))
		return
	}

	c := &uiClient{
		id:       uuid.NewString(),
		hub:      s.hub,
		conn:     conn,
		channels: map[string]bool{ChannelUI: true},
		out:      make(chan []byte, outboxSize),
	}
	s.hub.add(c)
	go c.writeLoop()
	go c.readLoop()
}

func (c *uiClient) subscribed(channel string) bool {
	c.chMu.RLock()
	defer c.chMu.RUnlock()
	return c.channels[channel]
}

// enqueue buffers a frame. A full outbox drops it; a stopped client drops
// everything.
func (c *uiClient) enqueue(frame []byte) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.out <- frame:
	default:
		c.hub.logger.Warn("ui client too slow, dropping frame", "client_id", c.id)
	}
}

// stop ends the write loop, which closes the connection. Safe to repeat.
func (c *uiClient) stop() {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.out)
	}
}

func (c *uiClient) reply(id, typ string, payload any) {
	frame, err := encodeFrame(WSMessage{Type: typ, ID: id, Payload: payload})
	if err == nil {
		c.enqueue(frame)
	}
}

func (c *uiClient) fail(id, message string) {
	c.reply(id, WSTypeError, map[string]string{"message": message})
}

// readLoop handles inbound frames until the connection fails. A pong or
// any frame extends the read deadline.
func (c *uiClient) readLoop() {
	defer c.hub.remove(c)

	window := c.hub.pingInterval + c.hub.pongTimeout
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(window)) }

	c.conn.SetReadLimit(c.hub.maxMessageSize)
	_ = extend() //nolint:errcheck // a dead conn fails the first read
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ui client dropped", "client_id", c.id, "error", err)
			}
			return
		}
		_ = extend() //nolint:errcheck // checked by the next read
		c.handle(data)
	}
}

// writeLoop drains the outbox and pings on the hub interval. It owns
// closing the connection.
func (c *uiClient) writeLoop() {
	ping := time.NewTicker(c.hub.pingInterval)
	defer ping.Stop()
	defer c.conn.Close()

	write := func(kind int, data []byte) error {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.pongTimeout)) //nolint:errcheck // surfaced by the write
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case frame, ok := <-c.out:
			if !ok {
				_ = write(websocket.CloseMessage, nil) //nolint:errcheck // closing anyway
				return
			}
			if write(websocket.TextMessage, frame) != nil {
				return
			}
		case <-ping.C:
			if write(websocket.PingMessage, nil) != nil {
				return
			}
		}
	}
}

func (c *uiClient) handle(data []byte) {
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		c.fail("", "invalid JSON message")
		return
	}

	switch req.Type {
	case WSTypePing:
		c.reply(req.ID, WSTypePong, nil)
	case WSTypeSubscribe, WSTypeUnsubscribe:
		var sub WSSubscribePayload
		if len(req.Payload) == 0 || json.Unmarshal(req.Payload, &sub) != nil {
			c.fail(req.ID, "invalid "+req.Type+" payload")
			return
		}
		on := req.Type == WSTypeSubscribe

		c.chMu.Lock()
		for _, ch := range sub.Channels {
			if on {
				c.channels[ch] = true
			} else {
				delete(c.channels, ch)
			}
		}
		c.chMu.Unlock()

		key := "subscribed"
		if !on {
			key = "unsubscribed"
		}
		c.reply(req.ID, WSTypeResponse, map[string]any{key: sub.Channels})
	default:
		c.fail(req.ID, "unknown message type: "+req.Type)
	}
}

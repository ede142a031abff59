package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/manifoldbus/manifold/bus"
	"github.com/manifoldbus/manifold/internal/infrastructure/config"
)

// tapSendBufferSize is the per-client outbound message buffer size.
// A slow client drops messages rather than stalling the bus.
const tapSendBufferSize = 256

// tapEvent is one bus message as streamed to a tap client.
type tapEvent struct {
	Bus       string `json:"bus"`
	Topic     string `json:"topic"`
	Payload   string `json:"payload"`
	Timestamp string `json:"timestamp"`
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// tapClient is one WebSocket connection observing a bus.
type tapClient struct {
	conn   *websocket.Conn
	logger interface {
		Debug(msg string, args ...any)
		Warn(msg string, args ...any)
	}

	// mu guards closed and the close of send: handler goroutines may
	// still be delivering when the client disconnects.
	mu     sync.Mutex
	closed bool
	send   chan []byte
}

// handleTap upgrades the connection to a WebSocket and streams every
// message on the named bus that matches the pattern.
//
// Query parameters:
//   - bus: name of the bus to observe (required)
//   - pattern: canonical subscription pattern (default "#")
func (s *Server) handleTap(w http.ResponseWriter, r *http.Request) {
	busName := r.URL.Query().Get("bus")
	router, ok := s.buses[busName]
	if !ok {
		writeNotFound(w, "no such bus: "+busName)
		return
	}

	pattern := r.URL.Query().Get("pattern")
	if pattern == "" {
		pattern = "#"
	}

	client := &tapClient{
		send:   make(chan []byte, tapSendBufferSize),
		logger: s.logger,
	}

	// Subscribe before upgrading so a malformed pattern still gets a
	// proper HTTP error response.
	sub, err := router.Subscribe(r.Context(), pattern, func(m bus.Message) {
		client.enqueue(tapEvent{
			Bus:       busName,
			Topic:     m.Topic,
			Payload:   string(m.Payload),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	})
	if err != nil {
		writeBadRequest(w, "subscribe failed: "+err.Error())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		_ = sub.Unsubscribe(context.Background())
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client.conn = conn

	s.logger.Info("tap attached", "bus", busName, "pattern", pattern)

	go client.writePump(s.tapCfg)
	go client.readPump(s.tapCfg, func() {
		_ = sub.Unsubscribe(context.Background())
		s.logger.Info("tap detached", "bus", busName, "pattern", pattern)
	})
}

// enqueue JSON-encodes an event and offers it to the send channel.
// Events are dropped when the client cannot keep up, and after the client
// has detached — deliveries racing the disconnect check the closed flag
// under the same lock that closes the channel.
func (c *tapClient) enqueue(ev tapEvent) {
	data, err := json.Marshal(ev)
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
		// Client buffer full, skip
	}
}

// closeSend marks the client detached and closes the send channel,
// stopping writePump. Idempotent.
func (c *tapClient) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// readPump consumes the connection until the client goes away, keeping the
// read deadline fresh. Tap clients send nothing meaningful; reads exist to
// detect disconnects and service pong frames.
func (c *tapClient) readPump(cfg config.WebSocketConfig, cleanup func()) {
	defer func() {
		cleanup()
		c.closeSend()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(maxOr(cfg.MaxMessageSize, 8192)))
	wait := pingInterval(cfg) + pongTimeout(cfg)
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(wait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("tap read error", "error", err)
			} else {
				c.logger.Debug("tap closed", "error", err)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(wait))
	}
}

// writePump writes queued events to the connection and pings on an interval.
func (c *tapClient) writePump(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(pingInterval(cfg))
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongTimeout(cfg)))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongTimeout(cfg)))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// pingInterval returns the configured ping interval with a sane default.
func pingInterval(cfg config.WebSocketConfig) time.Duration {
	return time.Duration(maxOr(cfg.PingInterval, 30)) * time.Second
}

// pongTimeout returns the configured pong timeout with a sane default.
func pongTimeout(cfg config.WebSocketConfig) time.Duration {
	return time.Duration(maxOr(cfg.PongTimeout, 10)) * time.Second
}

// maxOr returns v, or fallback when v is not positive.
func maxOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

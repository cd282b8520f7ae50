package websocket

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client is one connected peer. Inbound commands subscribe it to
// leaderboard channels; outbound traffic arrives through send from the hub.
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *slog.Logger
}

// command is the inbound message shape: subscribe, unsubscribe or ping.
type command struct {
	Type          string `json:"type"`
	LeaderboardID string `json:"leaderboard_id,omitempty"`
}

func newClient(hub *Hub, conn *websocket.Conn, logger *slog.Logger) *Client {
	return &Client{
		id:     uuid.New().String(),
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, hub.cfg.SendBuffer),
		logger: logger,
	}
}

// readPump consumes peer commands until the connection drops. Read limits
// and the pong deadline come from the hub's connection policy.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	pongWait := c.hub.cfg.PongTimeout
	c.conn.SetReadLimit(c.hub.cfg.MaxMessageBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket error", "client_id", c.id, "error", err)
			}
			return
		}

		var cmd command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			c.logger.Warn("invalid command payload", "client_id", c.id, "error", err)
			c.enqueue(Message{
				Type: MessageTypeError,
				Data: map[string]string{"error": "invalid command payload"},
			})
			continue
		}
		c.handleCommand(cmd)
	}
}

func (c *Client) handleCommand(cmd command) {
	switch cmd.Type {
	case MessageTypeSubscribe:
		if cmd.LeaderboardID == "" {
			c.enqueue(Message{
				Type: MessageTypeError,
				Data: map[string]string{"error": "leaderboard_id required for subscribe"},
			})
			return
		}
		c.hub.Subscribe(c, cmd.LeaderboardID)
		c.enqueue(Message{
			Type:          "subscribed",
			LeaderboardID: cmd.LeaderboardID,
			Data:          map[string]string{"status": "ok"},
		})

	case MessageTypeUnsubscribe:
		if cmd.LeaderboardID == "" {
			return
		}
		c.hub.Unsubscribe(c, cmd.LeaderboardID)
		c.enqueue(Message{
			Type:          "unsubscribed",
			LeaderboardID: cmd.LeaderboardID,
			Data:          map[string]string{"status": "ok"},
		})

	case MessageTypePing:
		c.enqueue(Message{Type: MessageTypePong})

	default:
		c.logger.Debug("unknown command type", "client_id", c.id, "type", cmd.Type)
	}
}

// writePump drains the send channel to the peer and keeps the connection
// alive with pings at 90% of the pong deadline.
func (c *Client) writePump() {
	writeWait := c.hub.cfg.WriteTimeout
	ticker := time.NewTicker(c.hub.cfg.PongTimeout * 9 / 10)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(payload)

			// Coalesce whatever else is queued into the same frame
			for i, n := 0, len(c.send); i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue stamps and serializes a message onto the send channel, dropping
// it if the peer's buffer is full.
func (c *Client) enqueue(msg Message) {
	msg.Timestamp = time.Now()
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to marshal message", "client_id", c.id, "error", err)
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

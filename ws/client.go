package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8192
)

var ErrSlowConsumer = errors.New("session send buffer full")

// Inbound is a chat message sent by the client over the socket.
type Inbound struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
}

// Poster handles inbound chat messages.
type Poster interface {
	PostMessage(ctx context.Context, groupID, senderID, content string) error
}

type Client struct {
	log    *slog.Logger
	conn   *websocket.Conn
	handle string
	userID string
	poster Poster
	send   chan []byte
}

// enqueue is called with the hub read lock held, so send is never closed
// underneath it. It never blocks.
func (c *Client) enqueue(payload []byte) error {
	select {
	case c.send <- payload:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// readPump reads chat messages from the client until the connection fails.
func (c *Client) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("Socket closed unexpectedly", "channel", c.handle, "error", err)
			}
			return
		}
		var in Inbound
		if err := json.Unmarshal(msg, &in); err != nil {
			c.log.Debug("Ignoring malformed inbound message", "channel", c.handle, "error", err)
			continue
		}
		if c.poster == nil {
			continue
		}
		if err := c.poster.PostMessage(ctx, in.ConversationID, c.userID, in.Content); err != nil {
			c.log.Info("Inbound message rejected", "user_id", c.userID, "conversation_id", in.ConversationID, "error", err)
		}
	}
}

// writePump forwards queued events to the client and keeps the connection
// alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// One event per frame: clients parse each frame as a JSON document.
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

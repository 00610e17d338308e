package relay

import (
	"time"

	"github.com/google/uuid"
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
	maxMessageSize = 64 * 1024 // full-state replies are paged below this
)

// Client is a wrapper for a single websocket connection.
type Client struct {
	// ID is the connection identifier announced in the welcome frame and
	// stamped on every frame relayed on this connection's behalf.
	ID string

	// Hub is the hub that manages this client.
	Hub *Hub

	// Conn is the websocket connection. Nil for in-process clients.
	Conn *websocket.Conn

	// Send is a buffered channel for all outbound frames.
	// The hub writes to it, and WritePump drains it to the websocket.
	Send chan *Message

	// rooms the connection joined, most recent last. Owned by the hub goroutine.
	rooms []string

	// ReadLimit bounds inbound frames.
	ReadLimit int64
}

// NewClient creates a client with a fresh connection id.
func NewClient(hub *Hub, conn *websocket.Conn, queue int) *Client {
	if queue <= 0 {
		queue = 256
	}
	return &Client{
		ID:        uuid.NewString(),
		Hub:       hub,
		Conn:      conn,
		Send:      make(chan *Message, queue),
		ReadLimit: maxMessageSize,
	}
}

// Submit hands a frame to the hub as if it had been read from the
// connection. It returns false once the hub has stopped.
func (c *Client) Submit(msg *Message) bool {
	msg.client = c
	select {
	case c.Hub.Broadcast <- msg:
		return true
	case <-c.Hub.done:
		return false
	}
}

// ReadPump pumps frames from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.ReadLimit)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := c.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.log.Warn("websocket read failed", "conn", c.ID, "error", err)
			}
			return
		}

		if !c.Submit(&msg) {
			return
		}
	}
}

// WritePump pumps frames from the hub to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteJSON(message); err != nil {
				c.Hub.log.Debug("websocket write failed", "conn", c.ID, "error", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

package devserver

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 8 << 10             // Maximum message size allowed from peer.
)

// Client is a middleman between one websocket connection and the hub.
// room is the grievance id for chat sockets and 0 for notification sockets.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	user User
	room int
	// owner is the grievance submitter for chat sockets.
	owner int
	// onMessage handles inbound chat frames; nil for notification sockets.
	onMessage func(c *Client, data []byte)
}

func newClient(hub *Hub, conn *websocket.Conn, user User, room int) *Client {
	return &Client{hub: hub, conn: conn, send: make(chan []byte, 256), user: user, room: room}
}

// readPump pumps messages from the websocket connection to the handler.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug("socket read ended", "user", c.user.ID, "room", c.room, "err", err)
			}
			return
		}
		if c.onMessage != nil {
			c.onMessage(c, message)
		}
	}
}

// writePump pumps messages from the hub to the websocket connection. Each
// payload goes out as its own frame.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

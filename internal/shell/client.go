package shell

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func newClient(conn *websocket.Conn) *client {
	return &client{conn: conn, send: make(chan []byte, clientBuffer)}
}

// offer queues data without blocking; false means the client is saturated.
func (c *client) offer(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close is called only from the event loop, which is the sole sender.
func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

func (c *client) writeLoop() {
	defer c.conn.Close()
	for data := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			// Drain so the loop never blocks on a dead client.
			for range c.send {
			}
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

package bridge

import (
	"sync"

	"github.com/gorilla/websocket"
)

type conn struct {
	id   string
	ws   *websocket.Conn
	role string // guarded by Server.mu

	send    chan []byte
	inbound chan *Frame

	done      chan struct{}
	closeOnce sync.Once
}

// close reports whether this call closed the connection.
func (c *conn) close() bool {
	closed := false
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
		closed = true
	})
	return closed
}

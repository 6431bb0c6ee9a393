package ws

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Connection wraps a gorilla websocket connection with write locking
// and liveness tracking.
type Connection struct {
	id         string
	socket     *websocket.Conn
	mu         sync.Mutex
	closed     atomic.Bool
	lastActive atomic.Int64
}

// NewConnection creates a tracked websocket connection.
func NewConnection(id string, socket *websocket.Conn) *Connection {
	conn := &Connection{
		id:     id,
		socket: socket,
	}
	conn.touch()
	return conn
}

// WriteMessage sends a message to the client.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return ErrConnectionClosed
	}
	if err := c.socket.WriteMessage(messageType, data); err != nil {
		return err
	}
	c.touch()
	return nil
}

// WriteJSON sends a JSON control frame to the client.
func (c *Connection) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return ErrConnectionClosed
	}
	if err := c.socket.WriteJSON(v); err != nil {
		return err
	}
	c.touch()
	return nil
}

// ReadMessage receives a message from the client.
func (c *Connection) ReadMessage() (int, []byte, error) {
	messageType, payload, err := c.socket.ReadMessage()
	if err == nil {
		c.touch()
	}
	return messageType, payload, err
}

// Close terminates the underlying websocket connection.
func (c *Connection) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.socket.Close()
}

// ID returns the connection identifier.
func (c *Connection) ID() string {
	return c.id
}

// IsClosed reports whether the connection has already been closed.
func (c *Connection) IsClosed() bool {
	return c.closed.Load()
}

// LastActive exposes when the client last interacted with the server.
func (c *Connection) LastActive() time.Time {
	return time.Unix(0, c.lastActive.Load())
}

func (c *Connection) touch() {
	c.lastActive.Store(time.Now().UnixNano())
}

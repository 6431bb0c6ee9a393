package ws

import "errors"

var (
	// ErrConnectionClosed indicates a write against an already closed socket.
	ErrConnectionClosed = errors.New("websocket connection closed")
	// ErrSessionShutdown is emitted when the server requests a session shutdown.
	ErrSessionShutdown = errors.New("websocket session shutdown")
	// ErrHandshakeTimeout indicates the upgrade handshake took too long.
	ErrHandshakeTimeout = errors.New("websocket handshake timeout")
)

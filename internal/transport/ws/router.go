package ws

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"clinivoice-server-go/internal/platform/logging"
	"clinivoice-server-go/internal/platform/observability"
)

// SessionBuilder creates a bound session for an upgraded websocket
// connection. The builder is responsible for starting the domain
// session loop before returning.
type SessionBuilder func(conn *Connection, req *http.Request) (*Session, error)

// Router upgrades HTTP connections to websocket sessions.
type Router struct {
	hub    *Hub
	logger *logging.Logger

	upgrader         *websocket.Upgrader
	handshakeTimeout time.Duration
	builder          atomic.Value // SessionBuilder
}

// RouterOptions configures the websocket router.
type RouterOptions struct {
	HandshakeTimeout time.Duration
	CheckOrigin      func(r *http.Request) bool
}

// NewRouter constructs a websocket router.
func NewRouter(hub *Hub, logger *logging.Logger, opts RouterOptions) *Router {
	upgrader := &websocket.Upgrader{
		CheckOrigin: opts.CheckOrigin,
	}
	if upgrader.CheckOrigin == nil {
		upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	}

	timeout := opts.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Router{
		hub:              hub,
		logger:           logger,
		upgrader:         upgrader,
		handshakeTimeout: timeout,
	}
}

// SetSessionBuilder registers the builder invoked after a successful upgrade.
func (r *Router) SetSessionBuilder(builder SessionBuilder) {
	r.builder.Store(builder)
}

// Handle upgrades the HTTP connection and launches a new websocket session.
func (r *Router) Handle(w http.ResponseWriter, req *http.Request) {
	value := r.builder.Load()
	if value == nil {
		http.Error(w, "websocket handler not ready", http.StatusServiceUnavailable)
		return
	}
	builder := value.(SessionBuilder)

	ctx := req.Context()
	handshakeCtx, cancel := context.WithTimeoutCause(ctx, r.handshakeTimeout, ErrHandshakeTimeout)
	defer cancel()
	req = req.WithContext(handshakeCtx)

	spanCtx, spanEnd := observability.StartSpan(handshakeCtx, "transport.ws", "handle")
	var spanErr error
	defer func() {
		spanEnd(spanErr)
	}()

	socket, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		spanErr = err
		observability.RecordMetric(spanCtx, "ws.upgrade.error", 1, map[string]string{
			"component": "transport.ws",
		})
		if r.logger != nil {
			r.logger.ErrorTag("WS", "handshake failed: %v", err)
		}
		return
	}

	deviceID, clientID := resolveIdentifiers(req, socket)
	if r.logger != nil {
		r.logger.InfoTag("WS", "connection established device=%s client=%s", deviceID, clientID)
	}

	conn := NewConnection(clientID, socket)
	session, err := builder(conn, req)
	if err != nil || session == nil {
		spanErr = err
		observability.RecordMetric(spanCtx, "ws.connection.error", 1, map[string]string{
			"component": "transport.ws",
			"reason":    "session_creation_failed",
		})
		if r.logger != nil {
			r.logger.ErrorTag("WS", "session creation failed: %v", err)
		}
		_ = conn.Close()
		return
	}

	r.hub.Register(session)
	observability.RecordMetric(spanCtx, "ws.connection.opened", 1, map[string]string{
		"component": "transport.ws",
		"client_id": clientID,
		"device_id": deviceID,
	})

	go func() {
		session.ReadPump(context.Background())
		r.hub.Unregister(session.ID())
		observability.RecordMetric(context.Background(), "ws.connection.closed", 1, map[string]string{
			"component": "transport.ws",
			"client_id": clientID,
			"device_id": deviceID,
		})
	}()
}

func resolveIdentifiers(req *http.Request, conn *websocket.Conn) (string, string) {
	deviceID := req.Header.Get("Device-Id")
	clientID := req.Header.Get("Client-Id")

	if deviceID == "" {
		deviceID = req.URL.Query().Get("device-id")
	}
	if clientID == "" {
		clientID = req.URL.Query().Get("client-id")
	}
	if clientID == "" {
		clientID = fmt.Sprintf("%p", conn)
	}
	return deviceID, clientID
}

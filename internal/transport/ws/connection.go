package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rhema-dev/rhema/internal/realtime"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// connection wraps one upgraded websocket and implements
// realtime.EventSubscriber, so the Watcher's event bus can push
// notifications/changed frames to it the same way it already pushes to
// every other subscriber kind. All writes to conn, whether an inbound
// RPC reply, a pushed notification, or a ping, go through send so only
// writePump ever calls conn.Write*, honoring gorilla/websocket's
// one-writer-at-a-time requirement — the teacher's hub instead wrote from
// both a per-event goroutine and the read loop's ping ticker concurrently
// on the same connection, which this serializes.
type connection struct {
	id     string
	conn   *websocket.Conn
	deps   Deps
	ctx    context.Context
	cancel context.CancelFunc
	send   chan []byte

	// credential is captured once from the upgrade request (Authorization
	// header or "token" query parameter, for clients that can't set
	// headers on a WebSocket handshake) and reused for every frame on this
	// connection — the pipeline authenticates per request, not per
	// connection, so a long-lived socket re-proves its identity on each
	// inbound call exactly like a fresh HTTP request would.
	credential string
}

func newConnection(conn *websocket.Conn, deps Deps, r *http.Request) *connection {
	ctx, cancel := context.WithCancel(context.Background())
	credential := r.Header.Get("Authorization")
	if credential == "" {
		credential = r.URL.Query().Get("token")
	}
	return &connection{
		id:         uuid.New().String(),
		conn:       conn,
		deps:       deps,
		ctx:        ctx,
		cancel:     cancel,
		send:       make(chan []byte, 256),
		credential: credential,
	}
}

func (c *connection) ID() string             { return c.id }
func (c *connection) Context() context.Context { return c.ctx }

// Send enqueues event as a notifications/changed JSON-RPC frame for
// writePump to deliver; a full buffer means the connection cannot keep up
// and is closed rather than blocking the event bus's broadcast fan-out.
func (c *connection) Send(event realtime.Event) error {
	frame := rpcNotification{JSONRPC: "2.0", Method: "notifications/changed", Params: event}
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return errSendBufferFull
	}
}

// Close unblocks writePump/readPump and releases the underlying socket.
func (c *connection) Close() error {
	c.cancel()
	return c.conn.Close()
}

func (c *connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			return

		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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

// readPump reads inbound JSON-RPC request frames and dispatches each
// through the Request Pipeline, writing its reply back onto send; it also
// keeps the connection's read deadline alive via the pong handler, the
// same liveness contract as the teacher's silence_ws.go readPump.
func (c *connection) readPump() {
	defer func() {
		if c.deps.Bus != nil {
			c.deps.Bus.Unsubscribe(c)
		}
		c.cancel()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.deps.Logger.Warn("websocket read error", "error", err, "connection_id", c.id)
			}
			return
		}
		c.handleFrame(payload)
	}
}

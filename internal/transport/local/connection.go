package local

import (
	"context"
	"encoding/json"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/rhema-dev/rhema/internal/realtime"
)

// connection wraps one accepted Unix socket connection and implements
// realtime.EventSubscriber identically to internal/transport/ws's
// connection, so the same event bus serves both transports uniformly.
type connection struct {
	id     string
	conn   net.Conn
	deps   Deps
	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex
	enc     *json.Encoder

	// credential carries over from the last frame that supplied a
	// non-empty one, so a client authenticates once and every later frame
	// on the same connection reuses it — there is no handshake-level
	// header to capture it from up front the way a WebSocket upgrade
	// request has one.
	credential string
}

func newConnection(conn net.Conn, deps Deps) *connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &connection{
		id:     uuid.New().String(),
		conn:   conn,
		deps:   deps,
		ctx:    ctx,
		cancel: cancel,
		enc:    json.NewEncoder(conn),
	}
}

func (c *connection) ID() string               { return c.id }
func (c *connection) Context() context.Context { return c.ctx }

// Send delivers event as an unsolicited notifications/changed frame,
// serialized against any in-flight request reply via writeMu.
func (c *connection) Send(event realtime.Event) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.enc.Encode(rpcNotification{JSONRPC: "2.0", Method: "notifications/changed", Params: event})
}

func (c *connection) Close() error {
	c.cancel()
	return c.conn.Close()
}

func (c *connection) writeResponse(resp rpcResponse) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.enc.Encode(resp)
}

// serve decodes consecutive JSON-RPC request frames off the connection
// until it is closed or a frame fails to parse, dispatching each through
// the Request Pipeline.
func (c *connection) serve() {
	defer func() {
		if c.deps.Bus != nil {
			c.deps.Bus.Unsubscribe(c)
		}
		c.cancel()
		c.conn.Close()
	}()

	dec := json.NewDecoder(c.conn)
	for {
		var req rpcRequest
		if err := dec.Decode(&req); err != nil {
			return
		}
		if req.Credential != "" {
			c.credential = req.Credential
		}
		c.handleRequest(req)
	}
}

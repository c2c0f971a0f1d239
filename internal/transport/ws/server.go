// Package ws implements the streaming transport (spec.md §6.2): a
// gorilla/websocket upgrade carrying JSON-RPC 2.0 request/response frames
// plus unsolicited server-push notifications driven by the Watcher's event
// bus, grounded on the teacher's cmd/server/handlers/silence_ws.go hub and
// generalized from silence lifecycle events to internal/realtime's broader
// event set.
package ws

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/rhema-dev/rhema/internal/cache"
	"github.com/rhema-dev/rhema/internal/loader"
	"github.com/rhema-dev/rhema/internal/pattern"
	"github.com/rhema-dev/rhema/internal/pipeline"
	"github.com/rhema-dev/rhema/internal/query"
	"github.com/rhema-dev/rhema/internal/realtime"
	"github.com/rhema-dev/rhema/internal/store"
)

// Deps bundles every component the streaming transport delegates to. It
// deliberately mirrors internal/transport/http's Deps: both transports sit
// in front of the same core components, only the wire format differs.
type Deps struct {
	Store    *store.Store
	Executor *query.Executor
	Cache    *cache.Manager
	Runtime  *pattern.Runtime
	Loader   *loader.Loader
	Pipeline *pipeline.Pipeline
	Bus      *realtime.DefaultEventBus
	Logger   *slog.Logger

	// AllowedOrigins authorizes the upgrade's Origin header; ["*"] allows
	// any origin, matching the teacher's development-mode default.
	AllowedOrigins []string
}

// Server holds the upgrader and the dependencies every connection closes
// over.
type Server struct {
	deps     Deps
	upgrader websocket.Upgrader
}

// NewServer builds a Server ready to upgrade connections.
func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	s := &Server{deps: d}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.deps.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range s.deps.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// HandleUpgrade is mounted at GET /ws by the HTTP transport
// (internal/transport/http.Deps.WSHandler); this package has no listener
// of its own.
func (s *Server) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.deps.Logger.Warn("websocket upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	c := newConnection(conn, s.deps, r)
	if s.deps.Bus != nil {
		if err := s.deps.Bus.Subscribe(c); err != nil {
			s.deps.Logger.Warn("failed to subscribe websocket connection to event bus", "error", err)
		}
	}

	go c.writePump()
	go c.readPump()
}

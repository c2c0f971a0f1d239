// Package local implements the local socket transport (spec.md §6.3): the
// identical JSON-RPC 2.0 frame protocol as internal/transport/ws, carried
// over a Unix domain socket instead of a WebSocket upgrade, for same-host
// clients (CLIs, sidecar processes) that don't need a network listener.
package local

import (
	"log/slog"
	"net"
	"os"

	"github.com/rhema-dev/rhema/internal/cache"
	"github.com/rhema-dev/rhema/internal/loader"
	"github.com/rhema-dev/rhema/internal/pattern"
	"github.com/rhema-dev/rhema/internal/pipeline"
	"github.com/rhema-dev/rhema/internal/query"
	"github.com/rhema-dev/rhema/internal/realtime"
	"github.com/rhema-dev/rhema/internal/store"
)

// Deps bundles every component the local transport delegates to, the same
// shape internal/transport/ws uses since both speak the identical
// JSON-RPC protocol over their respective wire.
type Deps struct {
	Store    *store.Store
	Executor *query.Executor
	Cache    *cache.Manager
	Runtime  *pattern.Runtime
	Loader   *loader.Loader
	Pipeline *pipeline.Pipeline
	Bus      *realtime.DefaultEventBus
	Logger   *slog.Logger
}

// Server accepts connections on a Unix domain socket.
type Server struct {
	deps Deps
}

// NewServer builds a Server ready to Listen.
func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Server{deps: d}
}

// Listen binds a Unix domain socket at path, removing any stale socket
// file left behind by an unclean previous shutdown first — net.Listen
// refuses to bind over an existing path otherwise.
func Listen(path string) (net.Listener, error) {
	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return nil, err
		}
	}
	return net.Listen("unix", path)
}

// Serve accepts connections from ln until it is closed, handling each one
// in its own goroutine. Callers close ln (typically on context
// cancellation during shutdown) to make Serve return.
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		c := newConnection(conn, s.deps)
		if s.deps.Bus != nil {
			if err := s.deps.Bus.Subscribe(c); err != nil {
				s.deps.Logger.Warn("failed to subscribe local connection to event bus", "error", err)
			}
		}
		go c.serve()
	}
}

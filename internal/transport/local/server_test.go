package local

import (
	"encoding/json"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/rhema-dev/rhema/internal/loader"
	"github.com/rhema-dev/rhema/internal/pipeline"
	"github.com/rhema-dev/rhema/internal/query"
	"github.com/rhema-dev/rhema/internal/realtime"
	"github.com/rhema-dev/rhema/internal/rhema"
	"github.com/rhema-dev/rhema/internal/session"
	"github.com/rhema-dev/rhema/internal/store"
)

func newTestDeps(t *testing.T) (Deps, string) {
	t.Helper()

	st := store.New()
	st.Replace(&loader.Result{
		Scopes: map[string]*loader.ScopeData{
			"service/core": {
				Scope: rhema.Scope{Path: "service/core", Name: "core"},
				Knowledge: []rhema.Knowledge{
					{ID: "k1", Title: "Retry backoff", Content: "Use exponential backoff"},
				},
			},
		},
	})

	sessions := session.NewManager(session.Config{}, session.NoopAuditLogger{}, slog.Default())
	_, rawKey, err := sessions.CreateAPIKey(session.CreateAPIKeyRequest{User: "tester", Permissions: []string{"*"}})
	if err != nil {
		t.Fatalf("failed to create api key: %v", err)
	}

	return Deps{
		Store:    st,
		Executor: query.NewExecutor(st, nil),
		Pipeline: pipeline.New(pipeline.Config{}, sessions, nil, slog.Default()),
		Bus:      realtime.NewEventBus(slog.Default(), nil),
		Logger:   slog.Default(),
	}, rawKey
}

func dialTestSocket(t *testing.T, deps Deps) net.Conn {
	t.Helper()
	sockPath := filepath.Join(t.TempDir(), "test.sock")

	ln, err := Listen(sockPath)
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	s := NewServer(deps)
	go s.Serve(ln)

	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestLocalResourcesList(t *testing.T) {
	deps, rawKey := newTestDeps(t)
	conn := dialTestSocket(t, deps)

	enc := json.NewEncoder(conn)
	if err := enc.Encode(rpcRequest{JSONRPC: "2.0", ID: 1, Method: "resources/list", Credential: rawKey}); err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var resp rpcResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	if resp.Result == nil {
		t.Fatal("expected a non-nil result")
	}
}

func TestLocalQueryExecuteRejectsEmptyQuery(t *testing.T) {
	deps, rawKey := newTestDeps(t)
	conn := dialTestSocket(t, deps)

	params, _ := json.Marshal(map[string]string{"query": ""})
	enc := json.NewEncoder(conn)
	if err := enc.Encode(rpcRequest{JSONRPC: "2.0", ID: 2, Method: "query/execute", Params: params, Credential: rawKey}); err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var resp rpcResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if resp.Error == nil {
		t.Fatal("expected a validation error for an empty query")
	}
}

func TestLocalCredentialCarriesAcrossFrames(t *testing.T) {
	deps, rawKey := newTestDeps(t)
	conn := dialTestSocket(t, deps)
	enc := json.NewEncoder(conn)
	dec := json.NewDecoder(conn)

	if err := enc.Encode(rpcRequest{JSONRPC: "2.0", ID: 1, Method: "resources/list", Credential: rawKey}); err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var first rpcResponse
	if err := dec.Decode(&first); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if first.Error != nil {
		t.Fatalf("unexpected error on first frame: %v", first.Error)
	}

	// Second frame omits Credential entirely; the connection should reuse
	// the one captured from the first frame rather than failing auth.
	if err := enc.Encode(rpcRequest{JSONRPC: "2.0", ID: 2, Method: "resources/list"}); err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var second rpcResponse
	if err := dec.Decode(&second); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if second.Error != nil {
		t.Fatalf("unexpected error on second frame: %v", second.Error)
	}
}

func TestLocalUnknownMethod(t *testing.T) {
	deps, rawKey := newTestDeps(t)
	conn := dialTestSocket(t, deps)

	enc := json.NewEncoder(conn)
	if err := enc.Encode(rpcRequest{JSONRPC: "2.0", ID: 3, Method: "not/a/real/method", Credential: rawKey}); err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var resp rpcResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if resp.Error == nil {
		t.Fatal("expected a not-found error for an unknown method")
	}
}

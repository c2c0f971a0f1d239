package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/rhema-dev/rhema/internal/loader"
	"github.com/rhema-dev/rhema/internal/rhema"
	"github.com/rhema-dev/rhema/internal/store"
)

// muxRequest builds a request carrying mux URL variables the way gorilla/mux
// would have populated them after route matching, so handlers that read
// mux.Vars can be exercised without spinning up a full router.
func muxRequest(t *testing.T, target, key, value string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return mux.SetURLVars(req, map[string]string{key: value})
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s := store.New()
	s.Replace(&loader.Result{
		Scopes: map[string]*loader.ScopeData{
			"service/core": {
				Scope: rhema.Scope{Path: "service/core", Name: "core"},
				Knowledge: []rhema.Knowledge{
					{ID: "k1", Title: "Retry backoff", Content: "Use exponential backoff for retries"},
				},
				Todos: []rhema.Todo{
					{ID: "t1", Title: "Wire up cache invalidation"},
				},
				Decisions: []rhema.Decision{
					{ID: "d1", Title: "Adopt gorilla/mux", Rationale: "Matches existing router conventions"},
				},
				Patterns: []rhema.Pattern{
					{ID: "p1", Name: "Circuit breaker", Description: "Trip after repeated upstream failures"},
				},
				Conventions: []rhema.Convention{
					{ID: "c1", Title: "Error wrapping", Rule: "Always wrap with context"},
				},
			},
		},
	})
	return s
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s := NewServer(nil)
	s.deps = Deps{Store: newTestStore(t)}
	return s
}

func TestHandleListResources(t *testing.T) {
	s := newTestServer(t)
	status, body, err := s.handleListResources(httptest.NewRequest(http.MethodGet, "/api/v1/resources", nil), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	out := body.(map[string]interface{})
	resources := out["resources"]
	if resources == nil {
		t.Fatal("expected non-nil resources list")
	}
}

func TestResourceByURIRoundTrip(t *testing.T) {
	s := newTestServer(t)
	uri := resourceURI("service/core", "knowledge", "k1")

	status, body, err := s.resourceByURI(uri)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	rec, ok := body.(rhema.Knowledge)
	if !ok {
		t.Fatalf("expected rhema.Knowledge, got %T", body)
	}
	if rec.ID != "k1" {
		t.Fatalf("expected id k1, got %s", rec.ID)
	}
}

func TestResourceByURINotFound(t *testing.T) {
	s := newTestServer(t)
	_, _, err := s.resourceByURI(resourceURI("service/core", "knowledge", "missing"))
	if err == nil {
		t.Fatal("expected not-found error")
	}
}

func TestResourceByURIMalformed(t *testing.T) {
	s := newTestServer(t)
	_, _, err := s.resourceByURI("rhema://bad")
	if err == nil {
		t.Fatal("expected malformed-uri error")
	}
}

func TestHandleGetScope(t *testing.T) {
	s := newTestServer(t)

	status, _, err := s.handleGetScope(muxRequest(t, "/api/v1/scopes/{id}", "id", "service/core"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}

	_, _, err = s.handleGetScope(muxRequest(t, "/api/v1/scopes/{id}", "id", "nope"), nil)
	if err == nil {
		t.Fatal("expected not-found error for missing scope")
	}
}

func TestHandleQueryRejectsEmptyBody(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewBufferString(`{"query":""}`))

	_, _, err := s.handleQuery(req, nil)
	if err == nil {
		t.Fatal("expected validation error for empty query")
	}
}

func TestHandleHealthDegradesOnDegradedScopes(t *testing.T) {
	s := newTestServer(t)
	s.deps.Store.Replace(&loader.Result{
		Scopes: map[string]*loader.ScopeData{
			"service/broken": {Scope: rhema.Scope{Path: "service/broken", Degraded: true}},
		},
	})

	rr := httptest.NewRecorder()
	s.handleHealth(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}

	var decoded map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&decoded); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if decoded["status"] != "degraded" {
		t.Fatalf("expected degraded status, got %v", decoded["status"])
	}
}

func TestHandleHealthHealthy(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.handleHealth(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
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

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()

	st := store.New()
	st.Replace(&loader.Result{
		Scopes: map[string]*loader.ScopeData{
			"service/core": {
				Scope: rhema.Scope{Path: "service/core", Name: "core"},
				Knowledge: []rhema.Knowledge{
					{ID: "k1", Title: "Retry backoff", Content: "Use exponential backoff for retries"},
				},
				Decisions: []rhema.Decision{
					{ID: "d1", Title: "Adopt gorilla/mux", Rationale: "Matches existing router conventions"},
				},
			},
		},
	})

	sessions := session.NewManager(session.Config{}, session.NoopAuditLogger{}, slog.Default())
	_, rawKey, err := sessions.CreateAPIKey(session.CreateAPIKeyRequest{User: "tester", Permissions: []string{"*"}})
	if err != nil {
		t.Fatalf("failed to create api key: %v", err)
	}

	deps := Deps{
		Store:    st,
		Executor: query.NewExecutor(st, nil),
		Pipeline: pipeline.New(pipeline.Config{}, sessions, nil, slog.Default()),
		Bus:      realtime.NewEventBus(slog.Default(), nil),
		Logger:   slog.Default(),
	}
	return NewServer(deps), rawKey
}

func TestToolsIncludesMinimumSet(t *testing.T) {
	s, _ := newTestServer(t)
	names := map[string]bool{}
	for _, tool := range s.Tools() {
		names[tool.Name] = true
	}
	for _, want := range []string{"query", "search", "scope", "scopes", "knowledge"} {
		if !names[want] {
			t.Fatalf("expected tool %q to be registered", want)
		}
	}
}

func TestListResourcesIncludesContent(t *testing.T) {
	s, _ := newTestServer(t)
	resources := s.ListResources()
	if len(resources) == 0 {
		t.Fatal("expected at least one resource")
	}
	for _, r := range resources {
		if r.Content == nil {
			t.Fatalf("resource %s missing inline content", r.URI)
		}
	}
}

func TestReadResourceRoundTrip(t *testing.T) {
	s, _ := newTestServer(t)
	uri := resourceURI("service/core", "knowledge", "k1")
	res, err := s.ReadResource(uri)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Name != "Retry backoff" {
		t.Fatalf("unexpected resource name: %s", res.Name)
	}
}

func TestReadResourceNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	if _, err := s.ReadResource(resourceURI("service/core", "knowledge", "missing")); err == nil {
		t.Fatal("expected not found error")
	}
}

func TestCallToolQuery(t *testing.T) {
	s, rawKey := newTestServer(t)
	args, _ := json.Marshal(map[string]string{"query": "SELECT knowledge FROM \"service/core\""})
	result, err := s.CallTool(context.Background(), CallToolRequest{Name: "query", Arguments: args, Credential: rawKey, ClientID: "test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil {
		t.Fatal("expected a non-nil result")
	}
}

func TestCallToolQueryRejectsEmptyQuery(t *testing.T) {
	s, rawKey := newTestServer(t)
	args, _ := json.Marshal(map[string]string{"query": ""})
	if _, err := s.CallTool(context.Background(), CallToolRequest{Name: "query", Arguments: args, Credential: rawKey, ClientID: "test"}); err == nil {
		t.Fatal("expected a validation error for an empty query")
	}
}

func TestCallToolSearchSubstring(t *testing.T) {
	s, rawKey := newTestServer(t)
	args, _ := json.Marshal(map[string]interface{}{"query": "backoff"})
	result, err := s.CallTool(context.Background(), CallToolRequest{Name: "search", Arguments: args, Credential: rawKey, ClientID: "test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body, ok := result.(map[string]interface{})
	if !ok || body["count"].(int) == 0 {
		t.Fatalf("expected at least one search hit, got %#v", result)
	}
}

func TestCallToolScope(t *testing.T) {
	s, rawKey := newTestServer(t)
	args, _ := json.Marshal(map[string]string{"scope_path": "service/core"})
	result, err := s.CallTool(context.Background(), CallToolRequest{Name: "scope", Arguments: args, Credential: rawKey, ClientID: "test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	scope, ok := result.(rhema.Scope)
	if !ok || scope.Path != "service/core" {
		t.Fatalf("unexpected scope result: %#v", result)
	}
}

func TestCallToolScopeUnknown(t *testing.T) {
	s, rawKey := newTestServer(t)
	args, _ := json.Marshal(map[string]string{"scope_path": "does/not/exist"})
	if _, err := s.CallTool(context.Background(), CallToolRequest{Name: "scope", Arguments: args, Credential: rawKey, ClientID: "test"}); err == nil {
		t.Fatal("expected a not found error")
	}
}

func TestCallToolScopes(t *testing.T) {
	s, rawKey := newTestServer(t)
	result, err := s.CallTool(context.Background(), CallToolRequest{Name: "scopes", Arguments: json.RawMessage(`{}`), Credential: rawKey, ClientID: "test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body, ok := result.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected scopes result: %#v", result)
	}
	scopes, ok := body["scopes"].([]rhema.Scope)
	if !ok || len(scopes) != 1 {
		t.Fatalf("expected exactly one scope, got %#v", body["scopes"])
	}
}

func TestCallToolKnowledge(t *testing.T) {
	s, rawKey := newTestServer(t)
	args, _ := json.Marshal(map[string]string{"scope_path": "service/core"})
	result, err := s.CallTool(context.Background(), CallToolRequest{Name: "knowledge", Arguments: args, Credential: rawKey, ClientID: "test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body, ok := result.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected knowledge result: %#v", result)
	}
	recs, ok := body["knowledge"].([]rhema.Knowledge)
	if !ok || len(recs) != 1 {
		t.Fatalf("expected exactly one knowledge entry, got %#v", body["knowledge"])
	}
}

func TestCallToolUnknown(t *testing.T) {
	s, rawKey := newTestServer(t)
	if _, err := s.CallTool(context.Background(), CallToolRequest{Name: "not-a-tool", Arguments: json.RawMessage(`{}`), Credential: rawKey, ClientID: "test"}); err == nil {
		t.Fatal("expected a not found error for an unknown tool")
	}
}

func TestCallToolRejectsMissingCredential(t *testing.T) {
	s, _ := newTestServer(t)
	args, _ := json.Marshal(map[string]string{"scope_path": "service/core"})
	if _, err := s.CallTool(context.Background(), CallToolRequest{Name: "scope", Arguments: args, ClientID: "test"}); err == nil {
		t.Fatal("expected an authentication error for a missing credential")
	}
}

func TestPromptsShapedPerSpec(t *testing.T) {
	s, _ := newTestServer(t)
	prompts := s.Prompts()
	if len(prompts) == 0 {
		t.Fatal("expected at least one prompt")
	}
	for _, p := range prompts {
		if len(p.Arguments) == 0 {
			t.Fatalf("prompt %s expected to declare at least one argument", p.Name)
		}
		if len(p.Segments) == 0 {
			t.Fatalf("prompt %s expected at least one segment", p.Name)
		}
	}
}

func TestSubscriberReceivesPublishedEvent(t *testing.T) {
	s, _ := newTestServer(t)
	sub := NewSubscriber()
	if err := s.deps.Bus.Subscribe(sub); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.deps.Bus.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	// Starting the bus's broadcast worker and registering the subscriber
	// both happen asynchronously; give them a moment before publishing,
	// matching the same wait the ws transport's own event bus test uses.
	time.Sleep(50 * time.Millisecond)

	event := realtime.NewEvent(realtime.EventTypeScopeChanged, map[string]interface{}{"scope": "service/core"}, realtime.EventSourceWatcher)
	if err := s.deps.Bus.Publish(*event); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case got := <-sub.Events():
		if got.Type != realtime.EventTypeScopeChanged {
			t.Fatalf("unexpected event type: %s", got.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

package pipeline

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhema-dev/rhema/internal/apierrors"
	"github.com/rhema-dev/rhema/internal/rhema"
	"github.com/rhema-dev/rhema/internal/session"
)

func newTestPipeline(t *testing.T, cfg Config) (*Pipeline, *session.Manager) {
	t.Helper()
	sessions := session.NewManager(session.Config{JWTSecret: "test-secret"}, session.NoopAuditLogger{}, nil)
	p := New(cfg, sessions, prometheus.NewRegistry(), nil)
	return p, sessions
}

func echoHandler(body string) Handler {
	return func(ctx context.Context, req *Request, auth *session.AuthResult) (*Response, error) {
		return &Response{Body: []byte(body)}, nil
	}
}

func TestPipeline_DispatchesOnValidCredential(t *testing.T) {
	p, sessions := newTestPipeline(t, Config{MaxConnections: 10})
	_, raw, err := sessions.CreateAPIKey(session.CreateAPIKeyRequest{User: "alice", Permissions: []string{"read"}})
	require.NoError(t, err)

	req := &Request{
		Transport:  TransportHTTP,
		Endpoint:   "GET /health",
		Credential: raw,
		Client:     rhema.ClientInfo{ClientID: "alice"},
	}
	resp, err := p.Execute(context.Background(), req, echoHandler("ok"))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(resp.Body))
}

func TestPipeline_RejectsMissingCredential(t *testing.T) {
	p, _ := newTestPipeline(t, Config{MaxConnections: 10})
	req := &Request{Transport: TransportHTTP, Endpoint: "GET /health", Client: rhema.ClientInfo{ClientID: "bob"}}

	_, err := p.Execute(context.Background(), req, echoHandler("unreachable"))
	require.Error(t, err)
	apiErr, ok := err.(*apierrors.APIError)
	require.True(t, ok)
	assert.Equal(t, apierrors.CodeUnauthorized, apiErr.Code)
}

func TestPipeline_EnforcesRequiredPermission(t *testing.T) {
	p, sessions := newTestPipeline(t, Config{MaxConnections: 10})
	_, raw, err := sessions.CreateAPIKey(session.CreateAPIKeyRequest{User: "carol", Permissions: []string{"read"}})
	require.NoError(t, err)

	req := &Request{
		Transport:          TransportHTTP,
		Endpoint:           "POST /query",
		Credential:         raw,
		Client:             rhema.ClientInfo{ClientID: "carol"},
		RequiredPermission: "write",
	}
	_, err = p.Execute(context.Background(), req, echoHandler("unreachable"))
	require.Error(t, err)
	apiErr, ok := err.(*apierrors.APIError)
	require.True(t, ok)
	assert.Equal(t, apierrors.CodeForbidden, apiErr.Code)
}

func TestPipeline_RejectsAtCapacity(t *testing.T) {
	p, sessions := newTestPipeline(t, Config{MaxConnections: 1})
	_, raw, err := sessions.CreateAPIKey(session.CreateAPIKeyRequest{User: "dave", Permissions: []string{"read"}})
	require.NoError(t, err)

	p.sem <- struct{}{} // occupy the only slot directly, simulating an in-flight request
	defer func() { <-p.sem }()

	req := &Request{Transport: TransportHTTP, Endpoint: "GET /health", Credential: raw, Client: rhema.ClientInfo{ClientID: "dave"}}
	_, err = p.Execute(context.Background(), req, echoHandler("unreachable"))
	require.Error(t, err)
	apiErr, ok := err.(*apierrors.APIError)
	require.True(t, ok)
	assert.Equal(t, apierrors.CodeServiceOverloaded, apiErr.Code)
}

func TestPipeline_RateLimitsPerClientPerTransport(t *testing.T) {
	p, sessions := newTestPipeline(t, Config{MaxConnections: 10, RateLimit: RateLimitConfig{HTTPRPM: 2, Burst: 2}})
	_, raw, err := sessions.CreateAPIKey(session.CreateAPIKeyRequest{User: "erin", Permissions: []string{"read"}})
	require.NoError(t, err)

	req := &Request{Transport: TransportHTTP, Endpoint: "GET /health", Credential: raw, Client: rhema.ClientInfo{ClientID: "erin"}}

	_, err = p.Execute(context.Background(), req, echoHandler("1"))
	require.NoError(t, err)
	_, err = p.Execute(context.Background(), req, echoHandler("2"))
	require.NoError(t, err)

	_, err = p.Execute(context.Background(), req, echoHandler("3"))
	require.Error(t, err)
	apiErr, ok := err.(*apierrors.APIError)
	require.True(t, ok)
	assert.Equal(t, apierrors.CodeRateLimited, apiErr.Code)
}

func TestPipeline_RecoversPanicAndReleasesCapacity(t *testing.T) {
	p, sessions := newTestPipeline(t, Config{MaxConnections: 1})
	_, raw, err := sessions.CreateAPIKey(session.CreateAPIKeyRequest{User: "frank", Permissions: []string{"read"}})
	require.NoError(t, err)

	req := &Request{Transport: TransportHTTP, Endpoint: "GET /health", Credential: raw, Client: rhema.ClientInfo{ClientID: "frank"}}
	panicking := func(ctx context.Context, req *Request, auth *session.AuthResult) (*Response, error) {
		panic("boom")
	}

	_, err = p.Execute(context.Background(), req, panicking)
	require.Error(t, err)
	apiErr, ok := err.(*apierrors.APIError)
	require.True(t, ok)
	assert.Equal(t, apierrors.CodeInternal, apiErr.Code)

	// Capacity must have been released despite the panic.
	_, err = p.Execute(context.Background(), req, echoHandler("ok"))
	require.NoError(t, err)
}

func TestPipeline_StatsReflectThroughput(t *testing.T) {
	p, sessions := newTestPipeline(t, Config{MaxConnections: 10})
	_, raw, err := sessions.CreateAPIKey(session.CreateAPIKeyRequest{User: "gina", Permissions: []string{"read"}})
	require.NoError(t, err)
	req := &Request{Transport: TransportHTTP, Endpoint: "GET /health", Credential: raw, Client: rhema.ClientInfo{ClientID: "gina"}}

	for i := 0; i < 3; i++ {
		_, err := p.Execute(context.Background(), req, echoHandler("ok"))
		require.NoError(t, err)
	}

	stats := p.Stats()
	assert.Equal(t, int64(3), stats.TotalRequests)
	assert.Greater(t, stats.ThroughputPerSec, 0.0)
}

func TestPipeline_BruteForceLockout(t *testing.T) {
	sessions := session.NewManager(session.Config{JWTSecret: "test-secret", MaxFailedAttempts: 3}, session.NoopAuditLogger{}, nil)
	p := New(Config{MaxConnections: 10}, sessions, prometheus.NewRegistry(), nil)
	client := rhema.ClientInfo{ClientID: "198.51.100.7"}

	for i := 0; i < 3; i++ {
		req := &Request{Transport: TransportHTTP, Endpoint: "GET /health", Credential: "rhema_wrongwrongwrongwrongwrong", Client: client}
		_, err := p.Execute(context.Background(), req, echoHandler("unreachable"))
		require.Error(t, err)
	}

	req := &Request{Transport: TransportHTTP, Endpoint: "GET /health", Credential: "rhema_wrongwrongwrongwrongwrong", Client: client}
	_, err := p.Execute(context.Background(), req, echoHandler("unreachable"))
	require.Error(t, err)
	apiErr, ok := err.(*apierrors.APIError)
	require.True(t, ok)
	assert.Equal(t, apierrors.CodeUnauthorized, apiErr.Code)
	assert.Contains(t, apiErr.Message, "locked out")
}

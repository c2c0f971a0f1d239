// Package pipeline implements the Request Pipeline (component G): the
// transport-neutral sequence applied to every inbound operation regardless
// of whether it arrived over HTTP, the WebSocket streaming channel, the
// local socket, or MCP — capacity admission, identity extraction, rate
// limiting, authorization, dispatch, metrics recording, and guaranteed
// capacity release on every exit path, including a panic.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rhema-dev/rhema/internal/apierrors"
	"github.com/rhema-dev/rhema/internal/rhema"
	"github.com/rhema-dev/rhema/internal/session"
)

// TransportKind identifies which external interface a Request arrived on,
// used to key rate limiting and normalize metrics labels.
type TransportKind string

const (
	TransportHTTP  TransportKind = "http"
	TransportWS    TransportKind = "ws"
	TransportLocal TransportKind = "local"
	TransportMCP   TransportKind = "mcp"
)

// Request is the transport-neutral envelope the pipeline admits. Transports
// build one per inbound operation (an HTTP request, an RPC frame, an MCP
// tool call) and hand it to Execute along with the handler that does the
// actual work.
type Request struct {
	Transport TransportKind
	// Endpoint is the logical operation name ("GET /health", "query/execute",
	// "tools/query"), used for rate-limit class, metrics normalization, and
	// the permission lookup. It must not contain caller-supplied path
	// segments (ids, queries) — those belong in Params.
	Endpoint string
	Method   string
	// Credential is the raw Authorization-equivalent value: a bare API key,
	// "Bearer <jwt>", or a session identifier, exactly as spec.md §6.5
	// describes arriving in the Authorization header across all transports.
	Credential string
	Client     rhema.ClientInfo
	// RequiredPermission gates step 4 (authorize). Empty means the endpoint
	// has no permission requirement beyond a valid credential.
	RequiredPermission string
	RequestSize        int64
}

// Response is what a Handler hands back to the pipeline for sizing and
// metrics; transports translate it into their own wire format.
type Response struct {
	Body []byte
	// StatusCode is a transport-specific status (HTTP status, JSON-RPC
	// error code sentinel); transports that have no notion of one leave
	// it zero and apply their own default.
	StatusCode int
}

// Handler performs the actual dispatched work. It receives the
// authentication result from step 2 so it can consult Subject/Permissions
// without re-authenticating.
type Handler func(ctx context.Context, req *Request, auth *session.AuthResult) (*Response, error)

// Config configures a Pipeline.
type Config struct {
	MaxConnections       int
	RateLimit            RateLimitConfig
	SlowRequestThreshold time.Duration
}

// Pipeline applies the seven-step sequence uniformly across transports.
type Pipeline struct {
	cfg      Config
	sessions *session.Manager
	limiter  *rateLimiter
	metrics  *pipelineMetrics
	sem      chan struct{}
	logger   *slog.Logger
}

// New builds a Pipeline. sessions performs step 2 (identity extraction);
// it is never nil in production wiring, but a pipeline with every endpoint's
// RequiredPermission empty and a no-auth-required credential policy in
// sessions works for local/dev deployments too.
func New(cfg Config, sessions *session.Manager, reg prometheus.Registerer, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 100
	}
	if cfg.SlowRequestThreshold <= 0 {
		cfg.SlowRequestThreshold = 500 * time.Millisecond
	}
	return &Pipeline{
		cfg:      cfg,
		sessions: sessions,
		limiter:  newRateLimiter(cfg.RateLimit),
		metrics:  newPipelineMetrics(reg, cfg.SlowRequestThreshold),
		sem:      make(chan struct{}, cfg.MaxConnections),
		logger:   logger.With("component", "pipeline"),
	}
}

// Execute runs the seven-step sequence around handler. The capacity permit
// acquired in step 1 is released by the deferred receive on p.sem, which
// fires on every return path from this function — including the recovered
// panic path — so a handler that panics never leaks a connection slot.
func (p *Pipeline) Execute(ctx context.Context, req *Request, handler Handler) (resp *Response, err error) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pipeline recovered from panic", "endpoint", req.Endpoint, "panic", r)
			resp = nil
			err = apierrors.InternalError("internal error")
		}
		p.metrics.record(req.Transport, req.Endpoint, start, req.RequestSize, resp, err)
	}()

	// 1. Acquire capacity.
	select {
	case p.sem <- struct{}{}:
	default:
		err = apierrors.ServiceOverloadedError()
		return nil, err
	}
	defer func() { <-p.sem }() // 7. Release capacity, guaranteed on every exit.

	// 2. Extract identity.
	auth, authErr := p.sessions.Authenticate(ctx, req.Credential, req.Client)
	if authErr != nil {
		err = mapAuthError(authErr)
		return nil, err
	}

	// 3. Rate-limit per client_id, keyed by transport kind.
	if !p.limiter.allow(req.Transport, req.Client.ClientID) {
		err = apierrors.RateLimitedError("60s")
		return nil, err
	}

	// 4. Authorize.
	if !hasPermission(auth.Permissions, req.RequiredPermission) {
		err = apierrors.ForbiddenError("missing required permission: " + req.RequiredPermission)
		return nil, err
	}

	// 5. Dispatch. The handler may consult the response cache itself via a
	// key derived from req.Endpoint/Client/Params (cache.GenerateResponseKey);
	// the pipeline does not force caching on every endpoint since not every
	// operation is cacheable.
	resp, err = handler(ctx, req, auth)
	return resp, err
}

// Stats reports the pipeline's own observability surface for /stats and
// /performance, independent of any single endpoint's metrics.
func (p *Pipeline) Stats() Stats {
	return p.metrics.stats()
}

func mapAuthError(err error) *apierrors.APIError {
	authErr, ok := err.(session.AuthError)
	if !ok {
		return apierrors.InternalError(err.Error())
	}
	switch authErr {
	case session.ErrMissingCredential:
		return apierrors.UnauthorizedError("missing credential")
	case session.ErrInvalidFormat:
		return apierrors.UnauthorizedError("invalid credential format")
	case session.ErrLockedOut:
		return apierrors.UnauthorizedError("client locked out after too many failed attempts")
	default:
		return apierrors.UnauthorizedError("invalid credentials")
	}
}

// hasPermission reports whether perms satisfies required. An empty
// required permission is always satisfied; "*" in perms satisfies any
// required permission (an admin-scoped token/session).
func hasPermission(perms []string, required string) bool {
	if required == "" {
		return true
	}
	for _, p := range perms {
		if p == required || p == "*" {
			return true
		}
	}
	return false
}

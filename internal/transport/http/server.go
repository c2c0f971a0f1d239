package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"

	apimw "github.com/rhema-dev/rhema/internal/api/middleware"
	"github.com/rhema-dev/rhema/internal/cache"
	"github.com/rhema-dev/rhema/internal/loader"
	"github.com/rhema-dev/rhema/internal/pattern"
	"github.com/rhema-dev/rhema/internal/pipeline"
	"github.com/rhema-dev/rhema/internal/query"
	"github.com/rhema-dev/rhema/internal/store"
	historymw "github.com/rhema-dev/rhema/pkg/history/middleware"
	historysec "github.com/rhema-dev/rhema/pkg/history/security"
	pkgmw "github.com/rhema-dev/rhema/pkg/middleware"
)

// maxRequestBodyBytes bounds an inbound request body before it reaches any
// handler; a scope tree is YAML text, never anything approaching this.
const maxRequestBodyBytes = 10 * 1024 * 1024

// Deps bundles every component the HTTP transport's handlers delegate to.
// The transport owns none of this state: it is a thin adapter from the
// wire format onto the already-built core components.
type Deps struct {
	Store    *store.Store
	Executor *query.Executor
	Cache    *cache.Manager
	Runtime  *pattern.Runtime
	Loader   *loader.Loader
	Pipeline *pipeline.Pipeline
	Logger   *slog.Logger

	CORS apimw.CORSConfig

	// RequestTimeout bounds how long a handler may run before the
	// response is aborted with 504; zero uses historymw's own 30s
	// default.
	RequestTimeout time.Duration

	// WSHandler upgrades GET /ws to the streaming transport (spec.md §6.2).
	// Left nil, the route answers 501 rather than panicking, so this
	// package never needs to import internal/transport/ws; main.go wires
	// the concrete handler in once both transports are constructed.
	WSHandler http.HandlerFunc
}

// NewRouter builds the complete mux.Router for the HTTP + JSON transport
// (spec.md §6.1), composing the outer ambient middleware stack the way the
// teacher's internal/api/router.go composes its own: panic recovery,
// request body size limiting, security headers, path normalization
// (feeding the metrics middleware's cardinality reduction), request ID,
// structured logging, Prometheus instrumentation, CORS, gzip compression,
// and a request timeout, all ahead of the per-route pipeline wrap.
// Authentication, rate limiting, and authorization are not applied here:
// they are internal/pipeline.Pipeline.Execute's steps, shared uniformly
// across every transport. Recovery/timeout/size-limiting are reused from
// pkg/history/middleware and pkg/history/security rather than the rest of
// those packages' Stack/InputValidator, since Stack's auth/RBAC/rate-limit
// stages duplicate the pipeline's and InputValidator is shaped around
// alert-query parameters this service doesn't have.
func NewRouter(d Deps) *mux.Router {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	s := NewServer(d.Pipeline)
	s.deps = d

	router := mux.NewRouter()

	sizeLimiter := historysec.NewRequestSizeLimiter(maxRequestBodyBytes, d.Logger)

	router.Use(historymw.RecoveryMiddleware(d.Logger))
	router.Use(sizeLimiter.Middleware())
	router.Use(pkgmw.SecureHeaders())
	router.Use(pkgmw.PathNormalizationMiddleware())
	router.Use(apimw.RequestIDMiddleware)
	router.Use(apimw.LoggingMiddleware(d.Logger))
	router.Use(apimw.MetricsMiddleware)
	router.Use(apimw.CORSMiddleware(d.CORS))
	router.Use(apimw.CompressionMiddleware)
	router.Use(historymw.TimeoutMiddleware(d.RequestTimeout, d.Logger))

	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)
	router.HandleFunc("/ws", s.handleWSUpgrade).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/rpc", s.handleRPC).Methods(http.MethodPost)

	api.HandleFunc("/resources", s.wrap("resources/list", "resources:read", s.handleListResources)).Methods(http.MethodGet)
	api.HandleFunc("/resources/{uri:.+}", s.wrap("resources/get", "resources:read", s.handleGetResource)).Methods(http.MethodGet)

	api.HandleFunc("/query", s.wrap("query/execute", "query:execute", s.handleQuery)).Methods(http.MethodPost)

	api.HandleFunc("/search", s.wrap("search/substring", "search:read", s.handleSearch)).Methods(http.MethodPost)
	api.HandleFunc("/search/regex", s.wrap("search/regex", "search:read", s.handleSearchRegex)).Methods(http.MethodPost)
	api.HandleFunc("/search/fulltext", s.wrap("search/fulltext", "search:read", s.handleSearchFullText)).Methods(http.MethodPost)
	api.HandleFunc("/search/suggestions", s.wrap("search/suggestions", "search:read", s.handleSearchSuggestions)).Methods(http.MethodGet)
	api.HandleFunc("/search/stats", s.wrap("search/stats", "search:read", s.handleSearchStats)).Methods(http.MethodGet)

	api.HandleFunc("/scopes", s.wrap("scopes/list", "scopes:read", s.handleListScopes)).Methods(http.MethodGet)
	api.HandleFunc("/scopes/{id:.+}/knowledge", s.wrap("scopes/knowledge", "scopes:read", s.handleScopeKnowledge)).Methods(http.MethodGet)
	api.HandleFunc("/scopes/{id:.+}/todos", s.wrap("scopes/todos", "scopes:read", s.handleScopeTodos)).Methods(http.MethodGet)
	api.HandleFunc("/scopes/{id:.+}/decisions", s.wrap("scopes/decisions", "scopes:read", s.handleScopeDecisions)).Methods(http.MethodGet)
	api.HandleFunc("/scopes/{id:.+}/patterns", s.wrap("scopes/patterns", "scopes:read", s.handleScopePatterns)).Methods(http.MethodGet)
	api.HandleFunc("/scopes/{id:.+}", s.wrap("scopes/get", "scopes:read", s.handleGetScope)).Methods(http.MethodGet)

	api.HandleFunc("/stats", s.wrap("stats", "stats:read", s.handleStats)).Methods(http.MethodGet)
	api.HandleFunc("/performance", s.wrap("performance", "stats:read", s.handlePerformance)).Methods(http.MethodGet)

	api.HandleFunc("/validation/context", s.wrap("validation/context", "validation:read", s.handleValidationContext)).Methods(http.MethodGet)
	api.HandleFunc("/validation/scope/{id:.+}", s.wrap("validation/scope", "validation:read", s.handleValidationScope)).Methods(http.MethodGet)
	api.HandleFunc("/validation/cross-references", s.wrap("validation/cross-references", "validation:read", s.handleValidationCategory("cross_reference"))).Methods(http.MethodGet)
	api.HandleFunc("/validation/consistency", s.wrap("validation/consistency", "validation:read", s.handleValidationCategory("consistency"))).Methods(http.MethodGet)
	api.HandleFunc("/validation/temporal", s.wrap("validation/temporal", "validation:read", s.handleValidationCategory("temporal"))).Methods(http.MethodGet)
	api.HandleFunc("/validation/dependencies", s.wrap("validation/dependencies", "validation:read", s.handleValidationCategory("dependency"))).Methods(http.MethodGet)

	router.PathPrefix("/docs").Handler(httpSwagger.WrapHandler)

	return router
}

// Package http implements the HTTP + JSON transport (spec.md §6.1): a
// gorilla/mux router exposing the REST surface, all of it funneled through
// the Request Pipeline (component G) for capacity admission, identity
// extraction, rate limiting, authorization, and metrics, exactly the way
// the teacher's internal/api/router.go composed its own middleware stack
// around each route.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rhema-dev/rhema/internal/apierrors"
	"github.com/rhema-dev/rhema/internal/pipeline"
	"github.com/rhema-dev/rhema/internal/rhema"
	"github.com/rhema-dev/rhema/internal/session"
)

// Endpoint is the business logic behind one route: given the raw request
// and the pipeline's authentication result, it returns a status code and a
// JSON-able body, or an error from the apierrors taxonomy.
type Endpoint func(r *http.Request, auth *session.AuthResult) (status int, body interface{}, err error)

// Server bundles everything the HTTP transport's handlers close over.
type Server struct {
	pipe *pipeline.Pipeline
	deps Deps
}

// NewServer wraps pipe for use by route construction in this package.
func NewServer(pipe *pipeline.Pipeline) *Server {
	return &Server{pipe: pipe}
}

// wrap adapts an Endpoint into an http.HandlerFunc that runs it through the
// Request Pipeline: fn is only ever invoked from inside the pipeline's
// Handler closure, once admission, identity extraction, rate limiting, and
// authorization have all passed.
func (s *Server) wrap(endpointName, requiredPermission string, fn Endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := &pipeline.Request{
			Transport:          pipeline.TransportHTTP,
			Endpoint:           endpointName,
			Method:             r.Method,
			Credential:         r.Header.Get("Authorization"),
			Client:             deriveClientInfo(r),
			RequiredPermission: requiredPermission,
			RequestSize:        r.ContentLength,
		}

		var body interface{}

		resp, err := s.pipe.Execute(r.Context(), req, func(_ context.Context, _ *pipeline.Request, auth *session.AuthResult) (*pipeline.Response, error) {
			status, b, endpointErr := fn(r, auth)
			if endpointErr != nil {
				return nil, endpointErr
			}
			body = b
			return &pipeline.Response{StatusCode: status}, nil
		})
		if err != nil {
			writeAPIError(w, err)
			return
		}
		writeJSON(w, resp.StatusCode, body)
	}
}

// deriveClientInfo builds the transport-derived identity per spec.md §6.5:
// X-Client-ID takes priority, falling back to X-Forwarded-For (first hop),
// then X-Real-IP, then RemoteAddr, mirroring
// internal/api/middleware/rate_limit.go's getClientID chain.
func deriveClientInfo(r *http.Request) rhema.ClientInfo {
	clientID := r.Header.Get("X-Client-ID")
	if clientID == "" {
		clientID = clientIPFrom(r)
	}
	return rhema.ClientInfo{
		ClientID:  clientID,
		IPAddress: clientIPFrom(r),
		UserAgent: r.Header.Get("User-Agent"),
	}
}

func clientIPFrom(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx >= 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeAPIError(w http.ResponseWriter, err error) {
	apiErr, ok := err.(*apierrors.APIError)
	if !ok {
		apiErr = apierrors.InternalError(err.Error())
	}
	apierrors.WriteError(w, apiErr)
}

package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/rhema-dev/rhema/internal/apierrors"
	"github.com/rhema-dev/rhema/internal/pipeline"
	"github.com/rhema-dev/rhema/internal/session"
)

// rpcRequest is a JSON-RPC 2.0 request frame, the same shape the WS and
// MCP transports parse off their own wire; HTTP's /rpc endpoint exists so
// a client that already speaks JSON-RPC against the streaming transports
// can reuse the identical envelope over plain request/response HTTP.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string              `json:"jsonrpc"`
	ID      interface{}         `json:"id"`
	Result  interface{}         `json:"result,omitempty"`
	Error   *apierrors.APIError `json:"error,omitempty"`
}

// dispatchRPC runs one already-decoded method against its params, returning
// a status/body pair exactly like an Endpoint would. resources/list and
// query/execute reuse the REST handlers directly since their params line
// up with what those handlers read off an *http.Request body; resources/get
// is addressed by URI directly since the RPC params shape differs from the
// REST path's mux variable.
func (s *Server) dispatchRPC(method string, params json.RawMessage, auth *session.AuthResult) (int, interface{}, error) {
	switch method {
	case "resources/list":
		return s.handleListResources(&http.Request{}, auth)
	case "resources/get":
		var p struct {
			URI string `json:"uri"`
		}
		if len(params) > 0 {
			if err := json.Unmarshal(params, &p); err != nil {
				return 0, nil, apierrors.InvalidInputError("invalid params: " + err.Error())
			}
		}
		return s.resourceByURI(p.URI)
	case "query/execute":
		req, err := http.NewRequest(http.MethodPost, "/", io.NopCloser(strings.NewReader(string(params))))
		if err != nil {
			return 0, nil, apierrors.InternalError(err.Error())
		}
		return s.handleQuery(req, auth)
	default:
		return 0, nil, apierrors.NotFoundError("method " + method)
	}
}

// handleRPC dispatches a JSON-RPC 2.0 frame through the Request Pipeline,
// keyed by its method name so authorization and metrics are scoped
// per-method exactly as they are for the equivalent REST route; rate
// limiting, as on every HTTP route, is per client.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, rpcResponse{JSONRPC: "2.0", Error: apierrors.InvalidInputError("invalid JSON-RPC frame: " + err.Error())})
		return
	}

	requiredPermission := map[string]string{
		"resources/list": "resources:read",
		"resources/get":  "resources:read",
		"query/execute":  "query:execute",
	}[req.Method]

	pipeReq := &pipeline.Request{
		Transport:          pipeline.TransportHTTP,
		Endpoint:           req.Method,
		Method:             http.MethodPost,
		Credential:         r.Header.Get("Authorization"),
		Client:             deriveClientInfo(r),
		RequiredPermission: requiredPermission,
	}

	var result interface{}
	resp, execErr := s.pipe.Execute(r.Context(), pipeReq, func(_ context.Context, _ *pipeline.Request, auth *session.AuthResult) (*pipeline.Response, error) {
		status, body, endpointErr := s.dispatchRPC(req.Method, req.Params, auth)
		if endpointErr != nil {
			return nil, endpointErr
		}
		result = body
		return &pipeline.Response{StatusCode: status}, nil
	})
	_ = resp

	if execErr != nil {
		apiErr, ok := execErr.(*apierrors.APIError)
		if !ok {
			apiErr = apierrors.InternalError(execErr.Error())
		}
		writeJSON(w, http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: apiErr})
		return
	}

	writeJSON(w, http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: result})
}

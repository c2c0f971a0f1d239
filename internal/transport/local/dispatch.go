package local

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rhema-dev/rhema/internal/apierrors"
	"github.com/rhema-dev/rhema/internal/pipeline"
	"github.com/rhema-dev/rhema/internal/rhema"
	"github.com/rhema-dev/rhema/internal/session"
)

// rpcRequest/rpcResponse/rpcNotification mirror internal/transport/ws's
// frame shapes, plus an optional Credential field this transport's frames
// carry explicitly since a Unix socket connection has no equivalent of an
// HTTP Authorization header or a WebSocket upgrade request to read one
// from.
type rpcRequest struct {
	JSONRPC    string          `json:"jsonrpc"`
	ID         interface{}     `json:"id"`
	Method     string          `json:"method"`
	Params     json.RawMessage `json:"params"`
	Credential string          `json:"credential,omitempty"`
}

type rpcResponse struct {
	JSONRPC string              `json:"jsonrpc"`
	ID      interface{}         `json:"id"`
	Result  interface{}         `json:"result,omitempty"`
	Error   *apierrors.APIError `json:"error,omitempty"`
}

type rpcNotification struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

// handleRequest runs one decoded frame through the Request Pipeline keyed
// by method name and writes the reply back on the connection.
func (c *connection) handleRequest(req rpcRequest) {
	pipeReq := &pipeline.Request{
		Transport:  pipeline.TransportLocal,
		Endpoint:   req.Method,
		Method:     "LOCAL",
		Credential: c.credential,
		Client:     rhema.ClientInfo{ClientID: c.id},
	}

	var result interface{}
	_, execErr := c.deps.Pipeline.Execute(c.ctx, pipeReq, func(_ context.Context, _ *pipeline.Request, auth *session.AuthResult) (*pipeline.Response, error) {
		body, dispatchErr := c.dispatch(req.Method, req.Params, auth)
		if dispatchErr != nil {
			return nil, dispatchErr
		}
		result = body
		return &pipeline.Response{}, nil
	})

	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
	if execErr != nil {
		apiErr, ok := execErr.(*apierrors.APIError)
		if !ok {
			apiErr = apierrors.InternalError(execErr.Error())
		}
		resp.Error = apiErr
	} else {
		resp.Result = result
	}
	c.writeResponse(resp)
}

// dispatch runs one already-decoded method, the same resources/list,
// resources/get, query/execute set internal/transport/ws and
// internal/transport/http's /rpc endpoint both expose.
func (c *connection) dispatch(method string, params json.RawMessage, auth *session.AuthResult) (interface{}, error) {
	switch method {
	case "resources/list":
		return c.listResources(), nil
	case "resources/get":
		var p struct {
			URI string `json:"uri"`
		}
		if len(params) > 0 {
			if err := json.Unmarshal(params, &p); err != nil {
				return nil, apierrors.InvalidInputError("invalid params: " + err.Error())
			}
		}
		return c.resourceByURI(p.URI)
	case "query/execute":
		var p struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, apierrors.InvalidInputError("invalid params: " + err.Error())
		}
		if strings.TrimSpace(p.Query) == "" {
			return nil, apierrors.ValidationError("query must not be empty")
		}
		result, metrics, err := c.deps.Executor.Execute(p.Query)
		if err != nil {
			return nil, apierrors.InvalidInputError(err.Error())
		}
		return map[string]interface{}{"result": result, "metrics": metrics}, nil
	default:
		return nil, apierrors.NotFoundError("method " + method)
	}
}

type resourceSummary struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mime_type"`
}

func (c *connection) listResources() map[string]interface{} {
	var out []resourceSummary
	for _, scope := range c.deps.Store.ListScopes() {
		if recs, ok := c.deps.Store.GetKnowledge(scope.Path); ok {
			for _, rec := range recs {
				out = append(out, resourceSummary{URI: resourceURI(scope.Path, "knowledge", rec.ID), Name: rec.Title, MimeType: "application/json"})
			}
		}
		if recs, ok := c.deps.Store.GetTodos(scope.Path); ok {
			for _, rec := range recs {
				out = append(out, resourceSummary{URI: resourceURI(scope.Path, "todos", rec.ID), Name: rec.Title, MimeType: "application/json"})
			}
		}
		if recs, ok := c.deps.Store.GetDecisions(scope.Path); ok {
			for _, rec := range recs {
				out = append(out, resourceSummary{URI: resourceURI(scope.Path, "decisions", rec.ID), Name: rec.Title, MimeType: "application/json"})
			}
		}
		if recs, ok := c.deps.Store.GetPatterns(scope.Path); ok {
			for _, rec := range recs {
				out = append(out, resourceSummary{URI: resourceURI(scope.Path, "patterns", rec.ID), Name: rec.Name, Description: rec.Description, MimeType: "application/json"})
			}
		}
		if recs, ok := c.deps.Store.GetConventions(scope.Path); ok {
			for _, rec := range recs {
				out = append(out, resourceSummary{URI: resourceURI(scope.Path, "conventions", rec.ID), Name: rec.Title, MimeType: "application/json"})
			}
		}
	}
	return map[string]interface{}{"resources": out}
}

func resourceURI(scopePath, kind, id string) string {
	return fmt.Sprintf("rhema://%s/%s/%s", scopePath, kind, id)
}

func parseResourceURI(uri string) (scopePath, kind, id string, err error) {
	trimmed := strings.TrimPrefix(uri, "rhema://")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return "", "", "", fmt.Errorf("malformed resource uri %q", uri)
	}
	id = trimmed[idx+1:]
	rest := trimmed[:idx]
	idx2 := strings.LastIndex(rest, "/")
	if idx2 < 0 {
		return "", "", "", fmt.Errorf("malformed resource uri %q", uri)
	}
	return rest[:idx2], rest[idx2+1:], id, nil
}

func (c *connection) resourceByURI(uri string) (interface{}, error) {
	scopePath, kind, id, err := parseResourceURI(uri)
	if err != nil {
		return nil, apierrors.InvalidInputError(err.Error())
	}

	switch kind {
	case "knowledge":
		if recs, ok := c.deps.Store.GetKnowledge(scopePath); ok {
			for _, rec := range recs {
				if rec.ID == id {
					return rec, nil
				}
			}
		}
	case "todos":
		if recs, ok := c.deps.Store.GetTodos(scopePath); ok {
			for _, rec := range recs {
				if rec.ID == id {
					return rec, nil
				}
			}
		}
	case "decisions":
		if recs, ok := c.deps.Store.GetDecisions(scopePath); ok {
			for _, rec := range recs {
				if rec.ID == id {
					return rec, nil
				}
			}
		}
	case "patterns":
		if recs, ok := c.deps.Store.GetPatterns(scopePath); ok {
			for _, rec := range recs {
				if rec.ID == id {
					return rec, nil
				}
			}
		}
	case "conventions":
		if recs, ok := c.deps.Store.GetConventions(scopePath); ok {
			for _, rec := range recs {
				if rec.ID == id {
					return rec, nil
				}
			}
		}
	}
	return nil, apierrors.NotFoundError("resource " + uri)
}

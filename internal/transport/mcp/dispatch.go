package mcp

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rhema-dev/rhema/internal/apierrors"
	"github.com/rhema-dev/rhema/internal/pipeline"
	"github.com/rhema-dev/rhema/internal/rhema"
	"github.com/rhema-dev/rhema/internal/session"
)

// CallToolRequest is what an MCP adapter has already decoded off its wire
// by the time it reaches this package: a tool name, its arguments, the
// caller's credential, and enough client identity for the Request
// Pipeline's rate limiting and audit logging.
type CallToolRequest struct {
	Name       string
	Arguments  json.RawMessage
	Credential string
	ClientID   string
}

// CallTool runs one tool invocation through the Request Pipeline, keyed by
// tool name so authentication, rate limiting, and authorization apply
// uniformly with the other three transports, then dispatches to the
// corresponding core operation.
func (s *Server) CallTool(ctx context.Context, req CallToolRequest) (interface{}, error) {
	pipeReq := &pipeline.Request{
		Transport:  pipeline.TransportMCP,
		Endpoint:   "tools/call:" + req.Name,
		Method:     "MCP",
		Credential: req.Credential,
		Client:     rhema.ClientInfo{ClientID: req.ClientID},
	}

	var result interface{}
	_, execErr := s.deps.Pipeline.Execute(ctx, pipeReq, func(_ context.Context, _ *pipeline.Request, auth *session.AuthResult) (*pipeline.Response, error) {
		body, dispatchErr := s.dispatchTool(req.Name, req.Arguments)
		if dispatchErr != nil {
			return nil, dispatchErr
		}
		result = body
		return &pipeline.Response{}, nil
	})
	if execErr != nil {
		return nil, execErr
	}
	return result, nil
}

// dispatchTool runs an already-authorized tool call against its arguments.
func (s *Server) dispatchTool(name string, args json.RawMessage) (interface{}, error) {
	switch name {
	case "query":
		return s.toolQuery(args)
	case "search":
		return s.toolSearch(args)
	case "scope":
		return s.toolScope(args)
	case "scopes":
		return s.toolScopes()
	case "knowledge":
		return s.toolKnowledge(args)
	default:
		return nil, apierrors.NotFoundError("unknown tool " + name)
	}
}

func (s *Server) toolQuery(args json.RawMessage) (interface{}, error) {
	var p struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, apierrors.InvalidInputError("invalid arguments: " + err.Error())
	}
	if strings.TrimSpace(p.Query) == "" {
		return nil, apierrors.ValidationError("query must not be empty")
	}
	result, metrics, err := s.deps.Executor.Execute(p.Query)
	if err != nil {
		return nil, apierrors.InvalidInputError(err.Error())
	}
	return map[string]interface{}{"result": result, "metrics": metrics}, nil
}

type toolSearchHit struct {
	Scope string `json:"scope"`
	Kind  string `json:"kind"`
	ID    string `json:"id"`
	Title string `json:"title"`
}

// toolSearch is the same substring/regex match the http transport's
// /search and /search/regex endpoints perform, exposed here as a single
// tool with a regex flag rather than two separate routes since an MCP
// tool call has no equivalent of a REST sub-path to distinguish the two.
func (s *Server) toolSearch(args json.RawMessage) (interface{}, error) {
	var p struct {
		Query         string `json:"query"`
		Regex         bool   `json:"regex"`
		CaseSensitive bool   `json:"case_sensitive"`
		Limit         int    `json:"limit"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, apierrors.InvalidInputError("invalid arguments: " + err.Error())
	}
	if strings.TrimSpace(p.Query) == "" {
		return nil, apierrors.ValidationError("query must not be empty")
	}
	if p.Limit <= 0 {
		p.Limit = 50
	}

	var re *regexp.Regexp
	if p.Regex {
		pattern := p.Query
		if !p.CaseSensitive {
			pattern = "(?i)" + pattern
		}
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return nil, apierrors.InvalidInputError("invalid regular expression: " + err.Error())
		}
		re = compiled
	}

	needle := p.Query
	if !p.CaseSensitive {
		needle = strings.ToLower(needle)
	}

	var hits []toolSearchHit
	for _, item := range s.corpus() {
		if re != nil {
			if re.MatchString(item.text) {
				hits = append(hits, toolSearchHit{item.scope, item.kind, item.id, item.title})
			}
		} else {
			haystack := item.text
			if !p.CaseSensitive {
				haystack = strings.ToLower(haystack)
			}
			if strings.Contains(haystack, needle) {
				hits = append(hits, toolSearchHit{item.scope, item.kind, item.id, item.title})
			}
		}
		if len(hits) >= p.Limit {
			break
		}
	}
	return map[string]interface{}{"hits": hits, "count": len(hits)}, nil
}

type searchable struct {
	scope, kind, id, title, text string
}

// corpus mirrors the http transport's Server.corpus, flattening every
// scope's five collections into their free-text fields.
func (s *Server) corpus() []searchable {
	var out []searchable
	for _, scope := range s.deps.Store.ListScopes() {
		if recs, ok := s.deps.Store.GetKnowledge(scope.Path); ok {
			for _, rec := range recs {
				out = append(out, searchable{scope.Path, "knowledge", rec.ID, rec.Title, rec.Title + "\n" + rec.Content})
			}
		}
		if recs, ok := s.deps.Store.GetTodos(scope.Path); ok {
			for _, rec := range recs {
				out = append(out, searchable{scope.Path, "todos", rec.ID, rec.Title, rec.Title})
			}
		}
		if recs, ok := s.deps.Store.GetDecisions(scope.Path); ok {
			for _, rec := range recs {
				out = append(out, searchable{scope.Path, "decisions", rec.ID, rec.Title, rec.Title + "\n" + rec.Rationale})
			}
		}
		if recs, ok := s.deps.Store.GetPatterns(scope.Path); ok {
			for _, rec := range recs {
				out = append(out, searchable{scope.Path, "patterns", rec.ID, rec.Name, rec.Name + "\n" + rec.Description})
			}
		}
		if recs, ok := s.deps.Store.GetConventions(scope.Path); ok {
			for _, rec := range recs {
				out = append(out, searchable{scope.Path, "conventions", rec.ID, rec.Title, rec.Title + "\n" + rec.Rule})
			}
		}
	}
	return out
}

func (s *Server) toolScope(args json.RawMessage) (interface{}, error) {
	var p struct {
		ScopePath string `json:"scope_path"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, apierrors.InvalidInputError("invalid arguments: " + err.Error())
	}
	if strings.TrimSpace(p.ScopePath) == "" {
		return nil, apierrors.ValidationError("scope_path must not be empty")
	}
	scope, ok := s.deps.Store.GetScope(p.ScopePath)
	if !ok {
		return nil, apierrors.NotFoundError("scope " + p.ScopePath)
	}
	return scope, nil
}

func (s *Server) toolScopes() (interface{}, error) {
	return map[string]interface{}{"scopes": s.deps.Store.ListScopes()}, nil
}

func (s *Server) toolKnowledge(args json.RawMessage) (interface{}, error) {
	var p struct {
		ScopePath string `json:"scope_path"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, apierrors.InvalidInputError("invalid arguments: " + err.Error())
	}
	if strings.TrimSpace(p.ScopePath) == "" {
		return nil, apierrors.ValidationError("scope_path must not be empty")
	}
	recs, ok := s.deps.Store.GetKnowledge(p.ScopePath)
	if !ok {
		return nil, apierrors.NotFoundError("scope " + p.ScopePath)
	}
	return map[string]interface{}{"knowledge": recs}, nil
}

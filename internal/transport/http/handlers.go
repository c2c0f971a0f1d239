package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/rhema-dev/rhema/internal/apierrors"
	"github.com/rhema-dev/rhema/internal/rhema"
	"github.com/rhema-dev/rhema/internal/session"
	"github.com/rhema-dev/rhema/internal/validator"
)

// handleHealth reports liveness for all wired subsystems, unauthenticated
// and outside the pipeline so it always answers even under rate-limit or
// capacity pressure, mirroring the teacher's HealthCheckHandler shape.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"store": "healthy"}
	status := http.StatusOK
	if s.deps.Store != nil {
		st := s.deps.Store.Stats()
		if st.DegradedScopes > 0 {
			checks["store"] = fmt.Sprintf("degraded: %d scope(s)", st.DegradedScopes)
			status = http.StatusServiceUnavailable
		}
	}
	if s.deps.Cache != nil {
		checks["cache"] = "healthy"
	}
	overall := "healthy"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]interface{}{
		"status": overall,
		"checks": checks,
	})
}

// handleWSUpgrade hands a GET /ws request off to the streaming transport's
// upgrade handler. The HTTP transport stays ignorant of gorilla/websocket
// entirely; it is only a mount point.
func (s *Server) handleWSUpgrade(w http.ResponseWriter, r *http.Request) {
	if s.deps.WSHandler == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]interface{}{
			"error": "streaming transport not configured",
		})
		return
	}
	s.deps.WSHandler(w, r)
}

// handleInfo reports static service metadata, unauthenticated.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":      "rhema-context-service",
		"version":   "1.0.0",
		"protocols": []string{"http", "ws", "local", "mcp"},
	})
}

// handleListResources enumerates every knowledge/todo/decision/pattern/
// convention record across every scope as an MCP-style resource summary.
func (s *Server) handleListResources(r *http.Request, auth *session.AuthResult) (int, interface{}, error) {
	type resource struct {
		URI         string `json:"uri"`
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
		MimeType    string `json:"mime_type"`
	}
	var out []resource
	for _, scope := range s.deps.Store.ListScopes() {
		if k, ok := s.deps.Store.GetKnowledge(scope.Path); ok {
			for _, rec := range k {
				out = append(out, resource{URI: resourceURI(scope.Path, "knowledge", rec.ID), Name: rec.Title, MimeType: "application/json"})
			}
		}
		if t, ok := s.deps.Store.GetTodos(scope.Path); ok {
			for _, rec := range t {
				out = append(out, resource{URI: resourceURI(scope.Path, "todos", rec.ID), Name: rec.Title, MimeType: "application/json"})
			}
		}
		if d, ok := s.deps.Store.GetDecisions(scope.Path); ok {
			for _, rec := range d {
				out = append(out, resource{URI: resourceURI(scope.Path, "decisions", rec.ID), Name: rec.Title, MimeType: "application/json"})
			}
		}
		if p, ok := s.deps.Store.GetPatterns(scope.Path); ok {
			for _, rec := range p {
				out = append(out, resource{URI: resourceURI(scope.Path, "patterns", rec.ID), Name: rec.Name, Description: rec.Description, MimeType: "application/json"})
			}
		}
		if c, ok := s.deps.Store.GetConventions(scope.Path); ok {
			for _, rec := range c {
				out = append(out, resource{URI: resourceURI(scope.Path, "conventions", rec.ID), Name: rec.Title, MimeType: "application/json"})
			}
		}
	}
	return http.StatusOK, map[string]interface{}{"resources": out}, nil
}

func resourceURI(scopePath, kind, id string) string {
	return fmt.Sprintf("rhema://%s/%s/%s", scopePath, kind, id)
}

// parseResourceURI splits a "rhema://scope/path/kind/id" URI back into its
// scope path, kind, and record id.
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

// handleGetResource resolves a single resource by URI, fetching it from
// whichever per-scope collection its kind segment names.
func (s *Server) handleGetResource(r *http.Request, auth *session.AuthResult) (int, interface{}, error) {
	return s.resourceByURI(mux.Vars(r)["uri"])
}

// resourceByURI is handleGetResource's logic addressed directly by URI
// value, shared with the JSON-RPC resources/get method which has no
// mux.Vars to read from.
func (s *Server) resourceByURI(uri string) (int, interface{}, error) {
	scopePath, kind, id, err := parseResourceURI(uri)
	if err != nil {
		return 0, nil, apierrors.InvalidInputError(err.Error())
	}

	switch kind {
	case "knowledge":
		recs, ok := s.deps.Store.GetKnowledge(scopePath)
		if ok {
			for _, rec := range recs {
				if rec.ID == id {
					return http.StatusOK, rec, nil
				}
			}
		}
	case "todos":
		recs, ok := s.deps.Store.GetTodos(scopePath)
		if ok {
			for _, rec := range recs {
				if rec.ID == id {
					return http.StatusOK, rec, nil
				}
			}
		}
	case "decisions":
		recs, ok := s.deps.Store.GetDecisions(scopePath)
		if ok {
			for _, rec := range recs {
				if rec.ID == id {
					return http.StatusOK, rec, nil
				}
			}
		}
	case "patterns":
		recs, ok := s.deps.Store.GetPatterns(scopePath)
		if ok {
			for _, rec := range recs {
				if rec.ID == id {
					return http.StatusOK, rec, nil
				}
			}
		}
	case "conventions":
		recs, ok := s.deps.Store.GetConventions(scopePath)
		if ok {
			for _, rec := range recs {
				if rec.ID == id {
					return http.StatusOK, rec, nil
				}
			}
		}
	}
	return 0, nil, apierrors.NotFoundError("resource " + uri)
}

// queryRequestBody is the wire shape of a POST /query body: a single CQL
// string, exactly as internal/query.Executor.Execute expects.
type queryRequestBody struct {
	Query string `json:"query"`
}

func (s *Server) handleQuery(r *http.Request, auth *session.AuthResult) (int, interface{}, error) {
	var body queryRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return 0, nil, apierrors.InvalidInputError("invalid JSON body: " + err.Error())
	}
	if strings.TrimSpace(body.Query) == "" {
		return 0, nil, apierrors.ValidationError("query must not be empty")
	}

	result, metrics, err := s.deps.Executor.Execute(body.Query)
	if err != nil {
		return 0, nil, apierrors.InvalidInputError(err.Error())
	}
	return http.StatusOK, map[string]interface{}{"result": result, "metrics": metrics}, nil
}

func (s *Server) handleListScopes(r *http.Request, auth *session.AuthResult) (int, interface{}, error) {
	return http.StatusOK, map[string]interface{}{"scopes": s.deps.Store.ListScopes()}, nil
}

func (s *Server) handleGetScope(r *http.Request, auth *session.AuthResult) (int, interface{}, error) {
	id := mux.Vars(r)["id"]
	scope, ok := s.deps.Store.GetScope(id)
	if !ok {
		return 0, nil, apierrors.NotFoundError("scope " + id)
	}
	return http.StatusOK, scope, nil
}

func (s *Server) handleScopeKnowledge(r *http.Request, auth *session.AuthResult) (int, interface{}, error) {
	id := mux.Vars(r)["id"]
	recs, ok := s.deps.Store.GetKnowledge(id)
	if !ok {
		return 0, nil, apierrors.NotFoundError("scope " + id)
	}
	return http.StatusOK, map[string]interface{}{"knowledge": recs}, nil
}

func (s *Server) handleScopeTodos(r *http.Request, auth *session.AuthResult) (int, interface{}, error) {
	id := mux.Vars(r)["id"]
	recs, ok := s.deps.Store.GetTodos(id)
	if !ok {
		return 0, nil, apierrors.NotFoundError("scope " + id)
	}
	return http.StatusOK, map[string]interface{}{"todos": recs}, nil
}

func (s *Server) handleScopeDecisions(r *http.Request, auth *session.AuthResult) (int, interface{}, error) {
	id := mux.Vars(r)["id"]
	recs, ok := s.deps.Store.GetDecisions(id)
	if !ok {
		return 0, nil, apierrors.NotFoundError("scope " + id)
	}
	return http.StatusOK, map[string]interface{}{"decisions": recs}, nil
}

func (s *Server) handleScopePatterns(r *http.Request, auth *session.AuthResult) (int, interface{}, error) {
	id := mux.Vars(r)["id"]
	recs, ok := s.deps.Store.GetPatterns(id)
	if !ok {
		return 0, nil, apierrors.NotFoundError("scope " + id)
	}
	return http.StatusOK, map[string]interface{}{"patterns": recs}, nil
}

func (s *Server) handleStats(r *http.Request, auth *session.AuthResult) (int, interface{}, error) {
	body := map[string]interface{}{"store": s.deps.Store.Stats()}
	if s.deps.Cache != nil {
		body["cache"] = s.deps.Cache.Stats()
	}
	if s.deps.Runtime != nil {
		body["patterns"] = s.deps.Runtime.Stats()
	}
	return http.StatusOK, body, nil
}

func (s *Server) handlePerformance(r *http.Request, auth *session.AuthResult) (int, interface{}, error) {
	body := map[string]interface{}{}
	if s.deps.Pipeline != nil {
		body["pipeline"] = s.deps.Pipeline.Stats()
	}
	if s.deps.Cache != nil {
		body["cache"] = s.deps.Cache.Stats()
	}
	return http.StatusOK, body, nil
}

// runValidation reparses the watched tree fresh and revalidates it, giving
// the /validation/* family a live view rather than a cached-at-last-reload
// one; the watcher applies this same Load+Validate pair on every fsnotify
// burst, so the cost profile here matches what already runs continuously.
func (s *Server) runValidation() (*rhema.ValidationResult, error) {
	result, err := s.deps.Loader.Load()
	if err != nil {
		return nil, err
	}
	return validator.Validate(result), nil
}

func (s *Server) handleValidationContext(r *http.Request, auth *session.AuthResult) (int, interface{}, error) {
	vr, err := s.runValidation()
	if err != nil {
		return 0, nil, apierrors.InternalError(err.Error())
	}
	return http.StatusOK, vr, nil
}

func (s *Server) handleValidationScope(r *http.Request, auth *session.AuthResult) (int, interface{}, error) {
	id := mux.Vars(r)["id"]
	vr, err := s.runValidation()
	if err != nil {
		return 0, nil, apierrors.InternalError(err.Error())
	}
	per, ok := vr.PerScopeResults[id]
	if !ok {
		return 0, nil, apierrors.NotFoundError("scope " + id)
	}
	return http.StatusOK, per, nil
}

// handleValidationCategory returns an Endpoint that filters the live
// validation result down to issues tagged with category, serving the
// cross-references/consistency/temporal/dependencies sub-resources from
// the one ValidationResult the Validator already produces in a single pass.
func (s *Server) handleValidationCategory(category string) Endpoint {
	return func(r *http.Request, auth *session.AuthResult) (int, interface{}, error) {
		vr, err := s.runValidation()
		if err != nil {
			return 0, nil, apierrors.InternalError(err.Error())
		}
		var errs, warnings []rhema.ValidationIssue
		for _, e := range vr.Errors {
			if e.Category == category {
				errs = append(errs, e)
			}
		}
		for _, w := range vr.Warnings {
			if w.Category == category {
				warnings = append(warnings, w)
			}
		}
		return http.StatusOK, map[string]interface{}{
			"category":     category,
			"errors":       errs,
			"warnings":     warnings,
			"validated_at": vr.ValidatedAt,
		}, nil
	}
}

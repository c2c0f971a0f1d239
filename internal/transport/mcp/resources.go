package mcp

import (
	"fmt"
	"strings"

	"github.com/rhema-dev/rhema/internal/apierrors"
)

// Resource is one addressable record, shaped per spec.md §6.4 directly:
// uri, name, description, mime_type, content. Unlike the ws/local/http
// transports' resourceSummary (which omits content from the listing and
// only returns it from a dedicated fetch), MCP bundles content into the
// listing itself — the shape spec.md names for this transport.
type Resource struct {
	URI         string      `json:"uri"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	MimeType    string      `json:"mime_type"`
	Content     interface{} `json:"content"`
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

// ListResources walks every scope's five collections into the flat
// Resource list MCP clients enumerate, each carrying its own content
// inline rather than requiring a follow-up read.
func (s *Server) ListResources() []Resource {
	var out []Resource
	for _, scope := range s.deps.Store.ListScopes() {
		if recs, ok := s.deps.Store.GetKnowledge(scope.Path); ok {
			for _, rec := range recs {
				out = append(out, Resource{URI: resourceURI(scope.Path, "knowledge", rec.ID), Name: rec.Title, MimeType: "application/json", Content: rec})
			}
		}
		if recs, ok := s.deps.Store.GetTodos(scope.Path); ok {
			for _, rec := range recs {
				out = append(out, Resource{URI: resourceURI(scope.Path, "todos", rec.ID), Name: rec.Title, MimeType: "application/json", Content: rec})
			}
		}
		if recs, ok := s.deps.Store.GetDecisions(scope.Path); ok {
			for _, rec := range recs {
				out = append(out, Resource{URI: resourceURI(scope.Path, "decisions", rec.ID), Name: rec.Title, Description: rec.Rationale, MimeType: "application/json", Content: rec})
			}
		}
		if recs, ok := s.deps.Store.GetPatterns(scope.Path); ok {
			for _, rec := range recs {
				out = append(out, Resource{URI: resourceURI(scope.Path, "patterns", rec.ID), Name: rec.Name, Description: rec.Description, MimeType: "application/json", Content: rec})
			}
		}
		if recs, ok := s.deps.Store.GetConventions(scope.Path); ok {
			for _, rec := range recs {
				out = append(out, Resource{URI: resourceURI(scope.Path, "conventions", rec.ID), Name: rec.Title, MimeType: "application/json", Content: rec})
			}
		}
	}
	return out
}

// ReadResource fetches a single resource by its rhema:// URI.
func (s *Server) ReadResource(uri string) (*Resource, error) {
	scopePath, kind, id, err := parseResourceURI(uri)
	if err != nil {
		return nil, apierrors.InvalidInputError(err.Error())
	}

	switch kind {
	case "knowledge":
		if recs, ok := s.deps.Store.GetKnowledge(scopePath); ok {
			for _, rec := range recs {
				if rec.ID == id {
					return &Resource{URI: uri, Name: rec.Title, MimeType: "application/json", Content: rec}, nil
				}
			}
		}
	case "todos":
		if recs, ok := s.deps.Store.GetTodos(scopePath); ok {
			for _, rec := range recs {
				if rec.ID == id {
					return &Resource{URI: uri, Name: rec.Title, MimeType: "application/json", Content: rec}, nil
				}
			}
		}
	case "decisions":
		if recs, ok := s.deps.Store.GetDecisions(scopePath); ok {
			for _, rec := range recs {
				if rec.ID == id {
					return &Resource{URI: uri, Name: rec.Title, Description: rec.Rationale, MimeType: "application/json", Content: rec}, nil
				}
			}
		}
	case "patterns":
		if recs, ok := s.deps.Store.GetPatterns(scopePath); ok {
			for _, rec := range recs {
				if rec.ID == id {
					return &Resource{URI: uri, Name: rec.Name, Description: rec.Description, MimeType: "application/json", Content: rec}, nil
				}
			}
		}
	case "conventions":
		if recs, ok := s.deps.Store.GetConventions(scopePath); ok {
			for _, rec := range recs {
				if rec.ID == id {
					return &Resource{URI: uri, Name: rec.Title, MimeType: "application/json", Content: rec}, nil
				}
			}
		}
	}
	return nil, apierrors.NotFoundError("resource " + uri)
}

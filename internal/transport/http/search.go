package http

import (
	"encoding/json"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/rhema-dev/rhema/internal/apierrors"
	"github.com/rhema-dev/rhema/internal/session"
)

// searchHit is one matched record across any of the five per-scope
// collections, normalized so the three hit-returning /search endpoints share one
// result shape regardless of which collection or matcher produced it.
type searchHit struct {
	Scope string `json:"scope"`
	Kind  string `json:"kind"`
	ID    string `json:"id"`
	Title string `json:"title"`
	Match string `json:"match"`
}

// searchable is one text field pulled out of a record for matching,
// alongside enough identity to build a searchHit if it matches.
type searchable struct {
	scope, kind, id, title, text string
}

// corpus walks every scope's five collections and flattens each record
// into the handful of free-text fields a match can land in: title/name,
// plus content (knowledge), rationale (decisions), description (patterns)
// or rule (conventions); todos contribute their title only.
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

type searchRequestBody struct {
	Query        string `json:"query"`
	CaseSensitive bool   `json:"case_sensitive"`
	Limit        int    `json:"limit"`
}

func decodeSearchBody(r *http.Request) (searchRequestBody, error) {
	var body searchRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return body, apierrors.InvalidInputError("invalid JSON body: " + err.Error())
	}
	if strings.TrimSpace(body.Query) == "" {
		return body, apierrors.ValidationError("query must not be empty")
	}
	if body.Limit <= 0 {
		body.Limit = 50
	}
	return body, nil
}

// handleSearch performs a plain substring match, case-insensitive unless
// the caller opts in to CaseSensitive.
func (s *Server) handleSearch(r *http.Request, auth *session.AuthResult) (int, interface{}, error) {
	body, err := decodeSearchBody(r)
	if err != nil {
		return 0, nil, err
	}
	needle := body.Query
	if !body.CaseSensitive {
		needle = strings.ToLower(needle)
	}
	var hits []searchHit
	for _, item := range s.corpus() {
		haystack := item.text
		if !body.CaseSensitive {
			haystack = strings.ToLower(haystack)
		}
		if strings.Contains(haystack, needle) {
			hits = append(hits, searchHit{item.scope, item.kind, item.id, item.title, body.Query})
			if len(hits) >= body.Limit {
				break
			}
		}
	}
	return http.StatusOK, map[string]interface{}{"hits": hits, "count": len(hits)}, nil
}

// handleSearchRegex matches body.Query as a regular expression against
// each record's flattened text.
func (s *Server) handleSearchRegex(r *http.Request, auth *session.AuthResult) (int, interface{}, error) {
	body, err := decodeSearchBody(r)
	if err != nil {
		return 0, nil, err
	}
	pattern := body.Query
	if !body.CaseSensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, nil, apierrors.InvalidInputError("invalid regular expression: " + err.Error())
	}
	var hits []searchHit
	for _, item := range s.corpus() {
		if m := re.FindString(item.text); m != "" {
			hits = append(hits, searchHit{item.scope, item.kind, item.id, item.title, m})
			if len(hits) >= body.Limit {
				break
			}
		}
	}
	return http.StatusOK, map[string]interface{}{"hits": hits, "count": len(hits)}, nil
}

// handleSearchFullText scores every record by the number of whitespace-
// separated query terms it contains and returns the top Limit matches
// ranked by descending score, a simple relevance model appropriate for
// the record volumes this service holds in memory.
func (s *Server) handleSearchFullText(r *http.Request, auth *session.AuthResult) (int, interface{}, error) {
	body, err := decodeSearchBody(r)
	if err != nil {
		return 0, nil, err
	}
	terms := strings.Fields(strings.ToLower(body.Query))
	if len(terms) == 0 {
		return 0, nil, apierrors.ValidationError("query must contain at least one term")
	}

	type scored struct {
		hit   searchHit
		score int
	}
	var matches []scored
	for _, item := range s.corpus() {
		haystack := strings.ToLower(item.text)
		score := 0
		for _, term := range terms {
			score += strings.Count(haystack, term)
		}
		if score > 0 {
			matches = append(matches, scored{searchHit{item.scope, item.kind, item.id, item.title, body.Query}, score})
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].score > matches[j].score })
	if len(matches) > body.Limit {
		matches = matches[:body.Limit]
	}
	hits := make([]searchHit, len(matches))
	for i, m := range matches {
		hits[i] = m.hit
	}
	return http.StatusOK, map[string]interface{}{"hits": hits, "count": len(hits)}, nil
}

// handleSearchSuggestions returns up to 10 distinct record titles whose
// lowercase form has the query as a prefix, for typeahead UIs.
func (s *Server) handleSearchSuggestions(r *http.Request, auth *session.AuthResult) (int, interface{}, error) {
	prefix := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))
	if prefix == "" {
		return 0, nil, apierrors.ValidationError("q must not be empty")
	}
	seen := map[string]bool{}
	var suggestions []string
	for _, item := range s.corpus() {
		if strings.HasPrefix(strings.ToLower(item.title), prefix) && !seen[item.title] {
			seen[item.title] = true
			suggestions = append(suggestions, item.title)
			if len(suggestions) >= 10 {
				break
			}
		}
	}
	return http.StatusOK, map[string]interface{}{"suggestions": suggestions}, nil
}

// handleSearchStats reports the size of the searchable corpus per kind,
// so clients can gauge result completeness against a limited page size.
func (s *Server) handleSearchStats(r *http.Request, auth *session.AuthResult) (int, interface{}, error) {
	counts := map[string]int{}
	for _, item := range s.corpus() {
		counts[item.kind]++
	}
	return http.StatusOK, map[string]interface{}{"indexed_by_kind": counts}, nil
}

package loader

import "fmt"

// ErrorKind classifies a Loader failure.
type ErrorKind string

const (
	KindFileNotFound          ErrorKind = "FileNotFound"
	KindParseError            ErrorKind = "ParseError"
	KindInvalidScopeDefinition ErrorKind = "InvalidScopeDefinition"
)

// LoadError is a structured, per-file or per-scope load failure. ParseError
// and FileNotFound (a resource file that exists but cannot be read) are
// reported but do not abort the rest of the scope, which is kept and marked
// degraded; InvalidScopeDefinition aborts only the scope it occurred in.
type LoadError struct {
	Kind   ErrorKind
	Scope  string
	File   string
	Detail string
}

func (e *LoadError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s: scope %q, file %q: %s", e.Kind, e.Scope, e.File, e.Detail)
	}
	return fmt.Sprintf("%s: scope %q: %s", e.Kind, e.Scope, e.Detail)
}

func fileNotFound(scope, file, detail string) *LoadError {
	return &LoadError{Kind: KindFileNotFound, Scope: scope, File: file, Detail: detail}
}

func parseError(scope, file, detail string) *LoadError {
	return &LoadError{Kind: KindParseError, Scope: scope, File: file, Detail: detail}
}

func invalidScopeDefinition(scope, detail string) *LoadError {
	return &LoadError{Kind: KindInvalidScopeDefinition, Scope: scope, Detail: detail}
}

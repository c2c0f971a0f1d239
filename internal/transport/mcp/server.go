// Package mcp exposes the Model Context Protocol surface (spec.md §6.4):
// Resources, Tools, and Prompts, backed by the same Context Store and Query
// Engine the other three transports delegate to. The wire-format adapter
// itself — handshake, capability negotiation, stdio/SSE framing — is out of
// scope; this package only implements how an already-decoded tool call or
// resource read turns into a core operation, grounded on the Rust
// original's sdk.rs (RhemaMcpServer.{initialize_resources,initialize_tools,
// initialize_prompts,execute_tool}), which defines the same Resource/Tool/
// Prompt shapes but leaves every handler as a placeholder.
package mcp

import (
	"log/slog"

	"github.com/rhema-dev/rhema/internal/cache"
	"github.com/rhema-dev/rhema/internal/loader"
	"github.com/rhema-dev/rhema/internal/pattern"
	"github.com/rhema-dev/rhema/internal/pipeline"
	"github.com/rhema-dev/rhema/internal/query"
	"github.com/rhema-dev/rhema/internal/realtime"
	"github.com/rhema-dev/rhema/internal/store"
)

// Deps bundles every component the MCP tool/resource handlers delegate to.
type Deps struct {
	Store    *store.Store
	Executor *query.Executor
	Cache    *cache.Manager
	Runtime  *pattern.Runtime
	Loader   *loader.Loader
	Pipeline *pipeline.Pipeline
	Bus      *realtime.DefaultEventBus
	Logger   *slog.Logger
}

// Server answers MCP resources/list, resources/read, tools/list,
// tools/call and prompts/list requests. It has no listener of
// its own; a caller (an MCP stdio/SSE adapter, or a test) decodes a frame
// off whatever wire it speaks and calls the matching method here.
type Server struct {
	deps Deps
}

// NewServer builds a Server ready to serve requests.
func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Server{deps: d}
}

// Tool describes one callable operation, mirroring the Rust original's Tool
// struct (name, description, input_schema) field for field.
type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema interface{} `json:"input_schema"`
	OutputSchema interface{} `json:"output_schema,omitempty"`
}

// Tools returns the fixed registry of tools this server exposes. At minimum
// spec.md §6.4 requires query, search, scope, scopes, knowledge; the Rust
// original only ever registered query/search/scope as placeholders, so
// scopes and knowledge are this implementation's own additions, each
// grounded on the same core operations the other transports already call.
func (s *Server) Tools() []Tool {
	return []Tool{
		{
			Name:        "query",
			Description: "Execute a CQL query against the context store",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query": map[string]interface{}{"type": "string", "description": "CQL query to execute"},
				},
				"required": []string{"query"},
			},
		},
		{
			Name:        "search",
			Description: "Search across knowledge, todos, decisions, patterns and conventions",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query":          map[string]interface{}{"type": "string", "description": "Substring or regex pattern to search for"},
					"regex":          map[string]interface{}{"type": "boolean", "description": "Treat query as a regular expression"},
					"case_sensitive": map[string]interface{}{"type": "boolean"},
					"limit":          map[string]interface{}{"type": "integer"},
				},
				"required": []string{"query"},
			},
		},
		{
			Name:        "scope",
			Description: "Get information about a single scope by path",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"scope_path": map[string]interface{}{"type": "string", "description": "Path of the scope to retrieve"},
				},
				"required": []string{"scope_path"},
			},
		},
		{
			Name:        "scopes",
			Description: "List every loaded scope",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        "knowledge",
			Description: "List the knowledge entries recorded for a scope",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"scope_path": map[string]interface{}{"type": "string", "description": "Path of the scope to read knowledge from"},
				},
				"required": []string{"scope_path"},
			},
		},
	}
}

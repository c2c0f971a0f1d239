package mcp

// PromptArgument describes one named input a prompt template accepts,
// the piece spec.md's Prompt shape adds beyond the Rust original's (which
// only ever carried name/description/segments, never arguments).
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
}

// PromptSegment is one piece of a prompt template: either literal text or
// a reference to a resource the client should resolve and splice in,
// mirroring the Rust original's PromptSegment enum (Text/Resource).
type PromptSegment struct {
	Type string `json:"type"` // "text" or "resource"
	Text string `json:"text,omitempty"`
	URI  string `json:"uri,omitempty"`
	Name string `json:"name,omitempty"`
}

// Prompt is a named, parameterized template, shaped per spec.md §6.4:
// name, description, arguments, segments.
type Prompt struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Arguments   []PromptArgument `json:"arguments"`
	Segments    []PromptSegment  `json:"segments"`
}

// Prompts returns the fixed registry of prompt templates, grounded on the
// Rust original's initialize_prompts (context_analysis, code_review),
// each given a scope_path argument since both templates need one to
// resolve their resource segment against a concrete scope rather than the
// placeholder "rhema://context/current" / "rhema://conventions/coding"
// URIs the original hardcoded.
func (s *Server) Prompts() []Prompt {
	return []Prompt{
		{
			Name:        "context_analysis",
			Description: "Analyze a scope's recorded context and surface insights",
			Arguments: []PromptArgument{
				{Name: "scope_path", Description: "Scope to analyze", Required: true},
			},
			Segments: []PromptSegment{
				{Type: "text", Text: "Analyze the following project context and provide insights:\n\n"},
				{Type: "resource", URI: "rhema://{scope_path}/knowledge", Name: "Scope knowledge"},
			},
		},
		{
			Name:        "code_review",
			Description: "Review a change using a scope's recorded conventions",
			Arguments: []PromptArgument{
				{Name: "scope_path", Description: "Scope whose conventions govern the review", Required: true},
			},
			Segments: []PromptSegment{
				{Type: "text", Text: "Review the following change using the scope's conventions:\n\n"},
				{Type: "resource", URI: "rhema://{scope_path}/conventions", Name: "Scope conventions"},
				{Type: "text", Text: "\n\nChange to review:\n"},
			},
		},
	}
}

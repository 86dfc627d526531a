package tools

import "anchoredit/engine/internal/llm"

const (
	ToolGetDocumentContext = "get_document_context"
	ToolGrepFiles          = "grep_files"
	ToolFetchRules         = "fetch_rules"
	ToolCreateNewFile      = "create_new_file"
	ToolCodeSymbolsOutline = "get_code_symbols_outline"
	ToolApplyChunkUpdate   = "apply_chunk_update_with_context"
)

// Declarations is the tool list shared with the model. Required flags here are
// the single source of truth for argument presence checks.
var Declarations = []llm.Tool{
	{
		Name:        ToolGetDocumentContext,
		Description: "Read a range of lines from a document. Lines are 1-based and inclusive. Use this before proposing an edit so anchors are copied exactly.",
		Params: []llm.Param{
			{Name: "file_id", Type: "string", Description: "Document id", Required: true},
			{Name: "start_line", Type: "integer", Description: "First line to read, 1-based", Required: true},
			{Name: "end_line", Type: "integer", Description: "Last line to read, inclusive", Required: true},
		},
	},
	{
		Name:        ToolGrepFiles,
		Description: "Search documents for a pattern. file_id_patterns are shell globs matched against document ids and names; \"*\" selects every document. Literal patterns are case-insensitive. Results are capped; check truncated.",
		Params: []llm.Param{
			{Name: "file_id_patterns", Type: "array", Items: "string", Description: "Globs selecting documents to search", Required: true},
			{Name: "pattern", Type: "string", Description: "Text or regular expression to find", Required: true},
			{Name: "is_regex", Type: "boolean", Description: "Treat pattern as a regular expression"},
			{Name: "context_lines", Type: "integer", Description: "Lines of context around each match (0-10, default 2)"},
		},
	},
	{
		Name:        ToolFetchRules,
		Description: "Fetch a named rule with guidance for editing in this workspace.",
		Params: []llm.Param{
			{Name: "rule_name", Type: "string", Description: "Rule name", Required: true},
		},
	},
	{
		Name:        ToolCreateNewFile,
		Description: "Create a new document. Fails when a document with the same name exists.",
		Params: []llm.Param{
			{Name: "file_name", Type: "string", Description: "Name of the new document, including extension", Required: true},
			{Name: "file_content", Type: "string", Description: "Initial content", Required: true},
		},
	},
	{
		Name:        ToolCodeSymbolsOutline,
		Description: "List the symbols declared in a document, or return the definition of one symbol when symbol_name is given.",
		Params: []llm.Param{
			{Name: "file_id", Type: "string", Description: "Document id", Required: true},
			{Name: "symbol_name", Type: "string", Description: "Symbol whose definition to return"},
		},
	},
	{
		Name: ToolApplyChunkUpdate,
		Description: `Propose replacing the text between two anchors. The change is shown to the user and applied only after approval; the result arrives later as this call's response.
- context_before_chunk: exact text immediately before the region (first occurrence is used)
- context_after_chunk: exact text immediately after the region, searched from the end of context_before_chunk
- new_chunk_content: the full replacement for the region between the anchors
Line numbers are hints for the reviewer only. Only one proposal can be pending at a time.`,
		Params: []llm.Param{
			{Name: "file_id", Type: "string", Description: "Document id", Required: true},
			{Name: "explanation", Type: "string", Description: "One sentence describing the change", Required: true},
			{Name: "original_start_line", Type: "integer", Description: "First line of the region being replaced", Required: true},
			{Name: "original_end_line", Type: "integer", Description: "Last line of the region being replaced", Required: true},
			{Name: "context_before_chunk", Type: "string", Description: "Exact text preceding the region", Required: true},
			{Name: "context_after_chunk", Type: "string", Description: "Exact text following the region", Required: true},
			{Name: "new_chunk_content", Type: "string", Description: "Replacement text for the region", Required: true},
		},
	},
}

func declaration(name string) (llm.Tool, bool) {
	for _, tool := range Declarations {
		if tool.Name == name {
			return tool, true
		}
	}
	return llm.Tool{}, false
}

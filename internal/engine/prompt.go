package engine

import (
	"fmt"
	"strings"

	"anchoredit/engine/internal/docstore"
	"anchoredit/engine/internal/tools"
)

const basePrompt = `You are an editing assistant working on text documents held by the user.
Documents are addressed by file id. Read before you write: use %s to see the exact lines you intend to change.
Every edit goes through %s. The user reviews each proposal and decides to approve, reject or ask for a refinement; nothing changes until they approve.
Only one proposal may be awaiting a decision at a time. After proposing, stop and wait for the result.
When you propose, copy context_before_chunk and context_after_chunk verbatim from the document. They must sit immediately before and after the text you replace, and context_before_chunk must be unique enough that its first occurrence is the right one.
Line numbers are hints; the anchors decide where the edit lands.
Use %s to find text across documents and %s for project conventions.`

// systemPrompt describes the tools and the active document to the model.
func systemPrompt(doc docstore.Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, basePrompt, tools.ToolGetDocumentContext, tools.ToolApplyChunkUpdate, tools.ToolGrepFiles, tools.ToolFetchRules)
	b.WriteString("\n\nActive document:\n")
	fmt.Fprintf(&b, "- file_id: %s\n- name: %s\n- language: %s\n", doc.ID, doc.Name, doc.Language)
	return b.String()
}

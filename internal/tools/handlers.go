package tools

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"anchoredit/engine/internal/docstore"
	"anchoredit/engine/internal/llm"
	"anchoredit/engine/internal/outline"
	"anchoredit/engine/internal/patch"
	"anchoredit/engine/internal/rules"
)

const (
	defaultContextLines = 2
	maxContextLines     = 10
)

type contextArgs struct {
	FileID    string `json:"file_id" validate:"min=1"`
	StartLine int    `json:"start_line" validate:"min=1"`
	EndLine   int    `json:"end_line" validate:"min=1"`
}

type grepArgs struct {
	FileIDPatterns []string `json:"file_id_patterns" validate:"min=1,dive,min=1"`
	Pattern        string   `json:"pattern" validate:"min=1"`
	IsRegex        bool     `json:"is_regex"`
	ContextLines   *int     `json:"context_lines"`
}

type fetchRulesArgs struct {
	RuleName string `json:"rule_name" validate:"min=1"`
}

type createFileArgs struct {
	FileName    string `json:"file_name" validate:"min=1,max=255,excludesall=/\\"`
	FileContent string `json:"file_content"`
}

type outlineArgs struct {
	FileID     string `json:"file_id" validate:"min=1"`
	SymbolName string `json:"symbol_name"`
}

type applyArgs struct {
	FileID            string `json:"file_id" validate:"min=1"`
	Explanation       string `json:"explanation" validate:"min=1"`
	OriginalStartLine int    `json:"original_start_line" validate:"min=0"`
	OriginalEndLine   int    `json:"original_end_line" validate:"min=0"`
	ContextBefore     string `json:"context_before_chunk"`
	ContextAfter      string `json:"context_after_chunk"`
	NewChunkContent   string `json:"new_chunk_content"`
}

func (r *Router) getDocumentContext(ctx context.Context, args contextArgs) (map[string]any, string, error) {
	if args.EndLine < args.StartLine {
		return nil, "", fmt.Errorf("%w: end_line %d is before start_line %d", docstore.ErrInvalidRange, args.EndLine, args.StartLine)
	}
	rng, err := r.docs.LineRange(ctx, args.FileID, args.StartLine, args.EndLine)
	if err != nil {
		return nil, "", err
	}
	return map[string]any{
		"content":     rng.Content,
		"start_line":  rng.StartLine,
		"end_line":    rng.EndLine,
		"total_lines": rng.TotalLines,
	}, "", nil
}

type grepMatch struct {
	LineNumber     int    `json:"line_number"`
	LineText       string `json:"line_text"`
	MatchText      string `json:"match_text"`
	ContextSnippet string `json:"context_snippet"`
}

type grepFileResult struct {
	FileID   string      `json:"file_id"`
	FileName string      `json:"file_name"`
	Matches  []grepMatch `json:"matches"`
}

func (r *Router) grepFiles(ctx context.Context, args grepArgs) (map[string]any, string, error) {
	expr := args.Pattern
	if !args.IsRegex {
		expr = "(?i)" + regexp.QuoteMeta(args.Pattern)
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, "", validationError(ToolGrepFiles, "invalid regular expression: %v", err)
	}
	for _, p := range args.FileIDPatterns {
		if _, err := path.Match(p, ""); err != nil {
			return nil, "", validationError(ToolGrepFiles, "invalid file pattern %q", p)
		}
	}
	contextLines := defaultContextLines
	if args.ContextLines != nil {
		contextLines = min(max(*args.ContextLines, 0), maxContextLines)
	}

	docs, err := r.docs.List(ctx)
	if err != nil {
		return nil, "", err
	}
	results := []grepFileResult{}
	total := 0
	truncated := false
	searched := 0
	for _, meta := range docs {
		if truncated {
			break
		}
		if !matchesAny(args.FileIDPatterns, meta) {
			continue
		}
		content, err := r.docs.Content(ctx, meta.ID)
		if err != nil {
			return nil, "", err
		}
		searched++
		lines := docstore.Lines(content)
		var matches []grepMatch
		for i, line := range lines {
			found := re.FindString(line)
			if found == "" && !re.MatchString(line) {
				continue
			}
			if total >= r.maxMatches {
				truncated = true
				break
			}
			lo := max(i-contextLines, 0)
			hi := min(i+contextLines+1, len(lines))
			matches = append(matches, grepMatch{
				LineNumber:     i + 1,
				LineText:       line,
				MatchText:      found,
				ContextSnippet: strings.Join(lines[lo:hi], "\n"),
			})
			total++
		}
		if len(matches) > 0 {
			results = append(results, grepFileResult{FileID: meta.ID, FileName: meta.Name, Matches: matches})
		}
	}

	message := fmt.Sprintf("Found %d match(es) in %d of %d searched document(s).", total, len(results), searched)
	if truncated {
		message = fmt.Sprintf("Found more than %d matches; results truncated at %d. Narrow the pattern or file selection.", r.maxMatches, r.maxMatches)
	}
	return map[string]any{
		"results":       results,
		"total_matches": total,
		"truncated":     truncated,
		"message":       message,
	}, "", nil
}

func matchesAny(patterns []string, doc docstore.Document) bool {
	for _, p := range patterns {
		if p == "*" {
			return true
		}
		if ok, _ := path.Match(p, doc.ID); ok {
			return true
		}
		if ok, _ := path.Match(p, doc.Name); ok {
			return true
		}
	}
	return false
}

func (r *Router) fetchRules(args fetchRulesArgs) (map[string]any, string, error) {
	if r.rules == nil {
		return nil, "", fmt.Errorf("%w: %s", rules.ErrNotFound, args.RuleName)
	}
	rule, err := r.rules.Get(args.RuleName)
	if err != nil {
		return nil, "", err
	}
	return map[string]any{
		"rule_name":   rule.Name,
		"content":     rule.Content,
		"description": rule.Description,
	}, "", nil
}

func (r *Router) createNewFile(ctx context.Context, args createFileArgs) (map[string]any, string, error) {
	doc, err := r.docs.Create(ctx, args.FileName, args.FileContent)
	if err != nil {
		if errors.Is(err, docstore.ErrDuplicateName) || errors.Is(err, docstore.ErrInvalidName) {
			return nil, "", validationError(ToolCreateNewFile, "%v", err)
		}
		return nil, "", err
	}
	r.logger.Info("tools.file_created", "file_id", doc.ID, "name", doc.Name)
	return map[string]any{
		"fileId":  doc.ID,
		"message": fmt.Sprintf("Created %s (%d lines).", doc.Name, len(docstore.Lines(doc.Content))),
	}, "", nil
}

func (r *Router) codeSymbolsOutline(ctx context.Context, args outlineArgs) (map[string]any, string, error) {
	doc, err := r.docs.Get(ctx, args.FileID)
	if err != nil {
		return nil, "", err
	}
	if args.SymbolName != "" {
		snippet, ok := r.outliner.Definition(doc.Language, doc.Content, args.SymbolName)
		if !ok {
			return nil, "", fmt.Errorf("symbol %q not found in %s", args.SymbolName, doc.Name)
		}
		return map[string]any{
			"symbol":             args.SymbolName,
			"definition_snippet": snippet,
		}, "", nil
	}
	symbols := r.outliner.Outline(doc.Language, doc.Content)
	if symbols == nil {
		symbols = []outline.Symbol{}
	}
	return map[string]any{"symbols": symbols}, "", nil
}

func (r *Router) applyChunkUpdate(ctx context.Context, call llm.ToolCall, args applyArgs) (map[string]any, string, error) {
	if r.sink == nil {
		return nil, "", errors.New("edit proposals are not supported in this session")
	}
	if _, err := r.docs.Get(ctx, args.FileID); err != nil {
		return nil, "", err
	}
	proposal := patch.Proposal{
		FileID:            args.FileID,
		Explanation:       args.Explanation,
		OriginalStartLine: args.OriginalStartLine,
		OriginalEndLine:   args.OriginalEndLine,
		ContextBefore:     args.ContextBefore,
		ContextAfter:      args.ContextAfter,
		NewChunkContent:   args.NewChunkContent,
	}
	details, err := r.sink.Propose(ctx, call.ID, proposal, call.Args)
	if err != nil {
		if errors.Is(err, ErrProposalPending) {
			return nil, "", validationError(ToolApplyChunkUpdate, "%v", err)
		}
		return nil, "", err
	}
	return map[string]any{"proposed_change_details": details}, llm.StatusPendingApproval, nil
}

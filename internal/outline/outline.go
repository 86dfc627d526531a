package outline

import (
	"regexp"
	"strings"
)

// Symbol is one entry of a document outline. Line is 1-based.
type Symbol struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Line    int    `json:"line"`
	Details string `json:"details,omitempty"`
}

// Outliner extracts symbols from source text.
type Outliner interface {
	Outline(language, content string) []Symbol
	Definition(language, content, name string) (string, bool)
}

// MaxSnippetLines bounds a returned definition.
const MaxSnippetLines = 60

type pattern struct {
	re   *regexp.Regexp
	kind string
}

var patterns = map[string][]pattern{
	"go": {
		{regexp.MustCompile(`^func\s+\([^)]*\)\s*([A-Za-z_]\w*)`), "method"},
		{regexp.MustCompile(`^func\s+([A-Za-z_]\w*)`), "function"},
		{regexp.MustCompile(`^type\s+([A-Za-z_]\w*)\s+struct\b`), "struct"},
		{regexp.MustCompile(`^type\s+([A-Za-z_]\w*)\s+interface\b`), "interface"},
		{regexp.MustCompile(`^type\s+([A-Za-z_]\w*)`), "type"},
	},
	"python": {
		{regexp.MustCompile(`^\s*class\s+([A-Za-z_]\w*)`), "class"},
		{regexp.MustCompile(`^\s*(?:async\s+)?def\s+([A-Za-z_]\w*)`), "function"},
	},
	"javascript": jsPatterns,
	"typescript": append([]pattern{
		{regexp.MustCompile(`^\s*(?:export\s+)?interface\s+([A-Za-z_$][\w$]*)`), "interface"},
		{regexp.MustCompile(`^\s*(?:export\s+)?type\s+([A-Za-z_$][\w$]*)\s*=`), "type"},
	}, jsPatterns...),
	"java": {
		{regexp.MustCompile(`^\s*(?:public|private|protected)?\s*(?:abstract\s+|final\s+)?class\s+([A-Za-z_]\w*)`), "class"},
		{regexp.MustCompile(`^\s*(?:public|private|protected)?\s*interface\s+([A-Za-z_]\w*)`), "interface"},
	},
	"rust": {
		{regexp.MustCompile(`^\s*(?:pub\s+)?fn\s+([A-Za-z_]\w*)`), "function"},
		{regexp.MustCompile(`^\s*(?:pub\s+)?struct\s+([A-Za-z_]\w*)`), "struct"},
		{regexp.MustCompile(`^\s*(?:pub\s+)?trait\s+([A-Za-z_]\w*)`), "trait"},
	},
	"markdown": {
		{regexp.MustCompile(`^#{1,6}\s+(.+?)\s*$`), "heading"},
	},
}

var jsPatterns = []pattern{
	{regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?class\s+([A-Za-z_$][\w$]*)`), "class"},
	{regexp.MustCompile(`^\s*(?:export\s+)?(?:async\s+)?function\s*\*?\s*([A-Za-z_$][\w$]*)`), "function"},
	{regexp.MustCompile(`^\s*(?:export\s+)?(?:const|let|var)\s+([A-Za-z_$][\w$]*)\s*=\s*(?:async\s*)?(?:\([^)]*\)|[A-Za-z_$][\w$]*)\s*=>`), "function"},
}

// RegexOutliner recognizes top-level declarations line by line.
type RegexOutliner struct{}

func New() RegexOutliner { return RegexOutliner{} }

func (RegexOutliner) Outline(language, content string) []Symbol {
	set, ok := patterns[language]
	if !ok {
		return nil
	}
	var symbols []Symbol
	for i, line := range strings.Split(content, "\n") {
		for _, p := range set {
			m := p.re.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			symbols = append(symbols, Symbol{
				Name:    m[1],
				Type:    p.kind,
				Line:    i + 1,
				Details: strings.TrimSpace(line),
			})
			break
		}
	}
	return symbols
}

// Definition returns the text of the first symbol called name, running to the
// line before the next symbol that is not nested deeper.
func (o RegexOutliner) Definition(language, content, name string) (string, bool) {
	symbols := o.Outline(language, content)
	lines := strings.Split(content, "\n")
	for i, sym := range symbols {
		if sym.Name != name {
			continue
		}
		start := sym.Line - 1
		end := len(lines)
		indent := leadingSpace(lines[start])
		for _, next := range symbols[i+1:] {
			if leadingSpace(lines[next.Line-1]) <= indent {
				end = next.Line - 1
				break
			}
		}
		if end-start > MaxSnippetLines {
			end = start + MaxSnippetLines
		}
		return strings.TrimRight(strings.Join(lines[start:end], "\n"), "\n "), true
	}
	return "", false
}

func leadingSpace(line string) int {
	return len(line) - len(strings.TrimLeft(line, " \t"))
}

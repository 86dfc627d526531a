// Package docstore owns document content. Every mutation goes through
// Store.Update so the approval gate and direct user edits never interleave.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

var (
	ErrNotFound      = errors.New("document not found")
	ErrDuplicateName = errors.New("document name already exists")
	ErrInvalidName   = errors.New("document name is required")
	ErrInvalidRange  = errors.New("invalid line range")
)

// Document is a named text buffer.
type Document struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Content   string    `json:"content,omitempty"`
	Language  string    `json:"language"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Range is a 1-based inclusive slice of a document's lines.
type Range struct {
	Content    string `json:"content"`
	StartLine  int    `json:"start_line"`
	EndLine    int    `json:"end_line"`
	TotalLines int    `json:"total_lines"`
}

// UpdateFunc receives the current content and returns the replacement. An
// error aborts the update without writing.
type UpdateFunc func(current string) (string, error)

type Store interface {
	Get(ctx context.Context, id string) (Document, error)
	Content(ctx context.Context, id string) (string, error)
	SetContent(ctx context.Context, id, content string) error
	LineRange(ctx context.Context, id string, start, end int) (Range, error)
	List(ctx context.Context) ([]Document, error)
	Create(ctx context.Context, name, content string) (Document, error)
	Update(ctx context.Context, id string, fn UpdateFunc) (Document, error)
}

// Lines splits content into lines. A trailing newline does not start a new line.
func Lines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// SliceLines returns lines start..end (1-based, inclusive) of content.
func SliceLines(content string, start, end int) (Range, error) {
	lines := Lines(content)
	total := len(lines)
	switch {
	case start < 1:
		return Range{}, fmt.Errorf("%w: start_line %d must be >= 1", ErrInvalidRange, start)
	case end < start:
		return Range{}, fmt.Errorf("%w: end_line %d is before start_line %d", ErrInvalidRange, end, start)
	case end > total:
		return Range{}, fmt.Errorf("%w: end_line %d exceeds total lines %d", ErrInvalidRange, end, total)
	}
	return Range{
		Content:    strings.Join(lines[start-1:end], "\n"),
		StartLine:  start,
		EndLine:    end,
		TotalLines: total,
	}, nil
}

var languages = map[string]string{
	".go":   "go",
	".py":   "python",
	".js":   "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".java": "java",
	".rb":   "ruby",
	".rs":   "rust",
	".c":    "c",
	".h":    "c",
	".cpp":  "cpp",
	".cs":   "csharp",
	".php":  "php",
	".md":   "markdown",
	".json": "json",
	".yaml": "yaml",
	".yml":  "yaml",
	".html": "html",
	".css":  "css",
	".sh":   "shell",
	".sql":  "sql",
}

// LanguageFor guesses a language from the file extension of name.
func LanguageFor(name string) string {
	if lang, ok := languages[strings.ToLower(path.Ext(name))]; ok {
		return lang
	}
	return "plaintext"
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidName
	}
	return name, nil
}

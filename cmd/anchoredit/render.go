package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"anchoredit/engine/internal/approval"
	"anchoredit/engine/internal/diff"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	addedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	removedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	contextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	lineNoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(5).Align(lipgloss.Right)
	noteStyle    = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("241"))
	warnStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	replyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("250")).PaddingLeft(2)
)

// renderDiff draws a line diff with document line numbers.
func renderDiff(p diff.Preview) string {
	if p.Truncated {
		return noteStyle.Render("(diff too large to preview)") + "\n"
	}
	if len(p.Lines) == 0 {
		return noteStyle.Render("(no changes)") + "\n"
	}
	var b strings.Builder
	for _, line := range p.Lines {
		var num int
		style := contextStyle
		switch line.Type {
		case diff.LineAdded:
			num, style = line.NewLine, addedStyle
		case diff.LineRemoved:
			num, style = line.OldLine, removedStyle
		default:
			num = line.OldLine
		}
		b.WriteString(lineNoStyle.Render(fmt.Sprint(num)))
		b.WriteString(" ")
		b.WriteString(style.Render(diff.Marker(line.Type) + line.Text))
		b.WriteString("\n")
	}
	return b.String()
}

// renderProposal draws the pending proposal the way the reviewer sees it.
func renderProposal(p approval.Preview) string {
	var b strings.Builder
	prop := p.Pending.Proposal
	b.WriteString(titleStyle.Render(fmt.Sprintf("Proposed change to %s", p.DocumentName)))
	b.WriteString("  ")
	b.WriteString(noteStyle.Render(fmt.Sprintf("lines %d-%d  %s", prop.OriginalStartLine, prop.OriginalEndLine, p.Diff.Summary())))
	b.WriteString("\n")
	if prop.Explanation != "" {
		b.WriteString(noteStyle.Render(prop.Explanation))
		b.WriteString("\n")
	}
	if p.WholeDocument {
		b.WriteString(warnStyle.Render("This proposal replaces the whole document."))
		b.WriteString("\n")
	}
	if p.LocateError != "" {
		b.WriteString(warnStyle.Render("Cannot locate chunk: " + p.LocateError))
		b.WriteString("\n")
		return b.String()
	}
	b.WriteString("\n")
	b.WriteString(renderDiff(p.Diff))
	return b.String()
}

func renderReply(reply string) string {
	if strings.TrimSpace(reply) == "" {
		return ""
	}
	return replyStyle.Render(reply) + "\n"
}

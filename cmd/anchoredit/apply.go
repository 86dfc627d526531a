package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"anchoredit/engine/internal/diff"
	"anchoredit/engine/internal/patch"
)

var (
	applyProposalPath string
	applyWrite        bool

	applyCmd = &cobra.Command{
		Use:   "apply FILE",
		Short: "Apply a saved chunk-update proposal to a file",
		Long: "Locates the proposal's chunk in FILE by its context anchors and replaces it.\n" +
			"Without --write the resulting diff is printed and the file is left alone.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd.OutOrStdout(), args[0], applyProposalPath, applyWrite)
		},
	}
)

func init() {
	applyCmd.Flags().StringVarP(&applyProposalPath, "proposal", "p", "", "path to the proposal JSON (apply_chunk_update_with_context arguments)")
	applyCmd.Flags().BoolVarP(&applyWrite, "write", "w", false, "write the result back to FILE")
	_ = applyCmd.MarkFlagRequired("proposal")
}

func loadProposal(path string) (patch.Proposal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return patch.Proposal{}, err
	}
	var p patch.Proposal
	if err := json.Unmarshal(data, &p); err != nil {
		return patch.Proposal{}, fmt.Errorf("parse proposal: %w", err)
	}
	return p, nil
}

func runApply(out io.Writer, filePath, proposalPath string, write bool) error {
	p, err := loadProposal(proposalPath)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	content := string(data)
	res, err := patch.ApplyChunkUpdate(content, p)
	if err != nil {
		return err
	}
	if !res.Changed {
		fmt.Fprintln(out, noteStyle.Render(res.Message))
		return nil
	}
	normalized := patch.NormalizeLineEndings(content)
	if patch.WholeDocument(normalized, patch.NormalizeLineEndings(p.ContextBefore), patch.NormalizeLineEndings(p.ContextAfter)) {
		fmt.Fprintln(out, warnStyle.Render("This proposal replaces the whole document."))
	}
	if !write {
		preview := diff.ChunkPreview(res.Located.Text, patch.NormalizeLineEndings(p.NewChunkContent), diff.LineAt(normalized, res.Located.CharStart))
		fmt.Fprint(out, renderDiff(preview))
		return nil
	}
	info, err := os.Stat(filePath)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filePath, []byte(res.NewContent), info.Mode().Perm()); err != nil {
		return err
	}
	fmt.Fprintln(out, noteStyle.Render(fmt.Sprintf("%s: %s", filePath, res.Message)))
	return nil
}

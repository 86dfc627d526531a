package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"anchoredit/engine/internal/approval"
	"anchoredit/engine/internal/engine"
	"anchoredit/engine/internal/errinfo"
)

var (
	chatWrite bool
	chatModel string

	chatCmd = &cobra.Command{
		Use:   "chat FILE",
		Short: "Edit FILE interactively, approving each proposed change",
		Args:  cobra.ExactArgs(1),
		RunE:  runChat,
	}
)

func init() {
	chatCmd.Flags().BoolVarP(&chatWrite, "write", "w", false, "save the document back to FILE after each approved change")
	chatCmd.Flags().StringVarP(&chatModel, "model", "m", "", "model id to converse with")
}

// prompter asks the human for messages and decisions.
type prompter interface {
	Message() (string, error)
	Decision(preview approval.Preview) (approval.Decision, string, error)
}

type formPrompter struct{}

func (formPrompter) Message() (string, error) {
	var text string
	err := huh.NewInput().
		Title("You").
		Placeholder(`e.g. replace "foo" with "bar"  (/quit to exit)`).
		Value(&text).
		Run()
	return text, err
}

func (formPrompter) Decision(preview approval.Preview) (approval.Decision, string, error) {
	var choice string
	options := []huh.Option[string]{
		huh.NewOption("Approve", string(approval.DecisionApprove)),
		huh.NewOption("Reject", string(approval.DecisionReject)),
		huh.NewOption("Refine", string(approval.DecisionRefine)),
	}
	if preview.LocateError != "" {
		options = options[1:]
	}
	if err := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Apply this change?").
			Options(options...).
			Value(&choice),
	)).Run(); err != nil {
		return "", "", err
	}
	var feedback string
	if choice != string(approval.DecisionApprove) {
		if err := huh.NewText().
			Title("Feedback for the model (optional)").
			Value(&feedback).
			Run(); err != nil {
			return "", "", err
		}
	}
	return approval.Decision(choice), feedback, nil
}

func runChat(cmd *cobra.Command, args []string) error {
	env, err := bootstrap(true)
	if err != nil {
		return err
	}
	defer env.close()
	if chatModel != "" {
		env.cfg.Model = chatModel
	}
	eng, err := engine.New(cmd.Context(), env.cfg, engine.WithLogger(env.logger))
	if err != nil {
		return err
	}
	defer eng.Close()

	c := &chat{eng: eng, path: args[0], write: chatWrite, out: cmd.OutOrStdout(), ask: formPrompter{}}
	return c.run(cmd.Context())
}

type chat struct {
	eng   *engine.Engine
	path  string
	write bool
	out   io.Writer
	ask   prompter
	docID string
}

func (c *chat) run(ctx context.Context) error {
	if err := c.open(ctx); err != nil {
		return err
	}
	for {
		text, err := c.ask.Message()
		if errors.Is(err, huh.ErrUserAborted) {
			return nil
		}
		if err != nil {
			return err
		}
		text = strings.TrimSpace(text)
		switch text {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/write":
			if err := c.save(ctx); err != nil {
				return err
			}
			continue
		}
		result, errInfo := c.eng.ConversationSend(ctx, mustParams(map[string]any{"text": text}))
		if errInfo != nil {
			c.printError(errInfo)
			continue
		}
		if err := c.settle(ctx, result); err != nil {
			return err
		}
	}
}

// open loads the file into the store and makes it the active document.
func (c *chat) open(ctx context.Context) error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return err
	}
	name := filepath.Base(c.path)
	docs := c.eng.Documents()
	existing, err := docs.List(ctx)
	if err != nil {
		return err
	}
	for _, doc := range existing {
		if doc.Name == name {
			c.docID = doc.ID
		}
	}
	if c.docID == "" {
		created, err := docs.Create(ctx, name, string(data))
		if err != nil {
			return err
		}
		c.docID = created.ID
	} else if err := docs.SetContent(ctx, c.docID, string(data)); err != nil {
		return err
	}
	if _, errInfo := c.eng.WorkspaceSetActiveDocument(ctx, mustParams(map[string]any{"document_id": c.docID})); errInfo != nil {
		return fmt.Errorf("%s: %s", errInfo.ErrorCode, errInfo.Detail)
	}
	if chatModel != "" {
		if _, errInfo := c.eng.WorkspaceSetActiveModel(ctx, mustParams(map[string]any{"model_id": chatModel})); errInfo != nil {
			return fmt.Errorf("%s: %s", errInfo.ErrorCode, errInfo.Detail)
		}
	}
	fmt.Fprintln(c.out, titleStyle.Render("Editing "+name))
	return nil
}

// settle prints the turn's reply and walks the human through every proposal
// until the conversation is idle again.
func (c *chat) settle(ctx context.Context, result any) error {
	for {
		payload, _ := result.(map[string]any)
		if reply, _ := payload["reply"].(string); reply != "" {
			fmt.Fprint(c.out, renderReply(reply))
		}
		if pending, _ := payload["pending_approval"].(bool); !pending {
			return nil
		}
		out, errInfo := c.eng.ApprovalGetPending(ctx, nil)
		if errInfo != nil {
			c.printError(errInfo)
			return nil
		}
		preview, ok := out.(map[string]any)["pending"].(approval.Preview)
		if !ok {
			return nil
		}
		fmt.Fprint(c.out, renderProposal(preview))
		decision, feedback, err := c.ask.Decision(preview)
		if errors.Is(err, huh.ErrUserAborted) {
			decision, feedback = approval.DecisionReject, "cancelled by user"
		} else if err != nil {
			return err
		}
		result, errInfo = c.eng.ApprovalDecide(ctx, mustParams(map[string]any{"decision": decision, "feedback": feedback}))
		if errInfo != nil {
			c.printError(errInfo)
			return nil
		}
		decided, _ := result.(map[string]any)
		if decided["error"] != nil {
			if info, ok := decided["error"].(*errinfo.ErrorInfo); ok {
				c.printError(info)
			}
		}
		if decision == approval.DecisionApprove && c.write {
			if err := c.save(ctx); err != nil {
				return err
			}
		}
	}
}

func (c *chat) save(ctx context.Context) error {
	content, err := c.eng.Documents().Content(ctx, c.docID)
	if err != nil {
		return err
	}
	info, err := os.Stat(c.path)
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.path, []byte(content), info.Mode().Perm()); err != nil {
		return err
	}
	fmt.Fprintln(c.out, noteStyle.Render("saved "+c.path))
	return nil
}

func (c *chat) printError(info *errinfo.ErrorInfo) {
	msg := info.ErrorCode
	if info.Detail != "" {
		msg += ": " + info.Detail
	}
	fmt.Fprintln(c.out, warnStyle.Render(msg))
}

func mustParams(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

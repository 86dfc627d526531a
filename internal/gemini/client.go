package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"anchoredit/engine/internal/llm"
	"anchoredit/engine/internal/logging"
)

// Config configures the Gemini model service.
type Config struct {
	APIKey     string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client implements llm.ModelService on top of the genai SDK.
type Client struct {
	genai  *genai.Client
	logger *slog.Logger
}

// NewClient builds a Gemini client. The HTTP client should carry the egress
// allowlist.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, llm.ErrUnauthorized
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Client{genai: gc, logger: logger}, nil
}

// Send issues one generateContent call for the whole history.
func (c *Client) Send(ctx context.Context, req llm.Request) (*llm.Reply, error) {
	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if len(req.Tools) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: toDeclarations(req.Tools)}}
	}
	c.logger.Debug("gemini.request", "model", req.Model, "turns", len(req.History), "tools", len(req.Tools))
	resp, err := c.genai.Models.GenerateContent(ctx, req.Model, toContents(req.History), config)
	if err != nil {
		c.logger.Warn("gemini.request_failed", "model", req.Model, "error", err.Error())
		return nil, mapError(err)
	}
	return fromResponse(resp), nil
}

func mapError(err error) error {
	if errors.Is(err, llm.ErrEgressBlocked) {
		return llm.ErrEgressBlocked
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			return fmt.Errorf("%w: %s", llm.ErrUnauthorized, apiErr.Message)
		case apiErr.Code == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s", llm.ErrRateLimited, apiErr.Message)
		case apiErr.Code >= 500:
			return fmt.Errorf("%w: %s", llm.ErrUnavailable, apiErr.Message)
		}
	}
	return err
}

func toContents(history []llm.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, turn := range history {
		role := string(genai.RoleUser)
		if turn.Role == llm.RoleModel {
			role = string(genai.RoleModel)
		}
		content := &genai.Content{Role: role}
		for _, part := range turn.Parts {
			switch {
			case part.ToolCall != nil:
				content.Parts = append(content.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   part.ToolCall.ID,
					Name: part.ToolCall.Name,
					Args: part.ToolCall.Args,
				}})
			case part.ToolResponse != nil:
				content.Parts = append(content.Parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
					ID:       part.ToolResponse.ID,
					Name:     part.ToolResponse.Name,
					Response: part.ToolResponse.Payload(),
				}})
			case part.Text != "":
				content.Parts = append(content.Parts, genai.NewPartFromText(part.Text))
			}
		}
		if len(content.Parts) == 0 {
			continue
		}
		contents = append(contents, content)
	}
	return contents
}

func toDeclarations(tools []llm.Tool) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		schema := &genai.Schema{
			Type:       genai.TypeObject,
			Properties: make(map[string]*genai.Schema, len(tool.Params)),
			Required:   tool.RequiredParams(),
		}
		for _, p := range tool.Params {
			prop := &genai.Schema{Type: schemaType(p.Type), Description: p.Description}
			if p.Type == "array" {
				prop.Items = &genai.Schema{Type: schemaType(p.Items)}
			}
			schema.Properties[p.Name] = prop
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  schema,
		})
	}
	return decls
}

func schemaType(name string) genai.Type {
	switch name {
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

func fromResponse(resp *genai.GenerateContentResponse) *llm.Reply {
	reply := &llm.Reply{}
	if resp == nil {
		return reply
	}
	if resp.UsageMetadata != nil {
		reply.Usage = llm.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	if fb := resp.PromptFeedback; fb != nil {
		feedback := &llm.PromptFeedback{
			BlockReason:  string(fb.BlockReason),
			BlockMessage: fb.BlockReasonMessage,
		}
		for _, r := range fb.SafetyRatings {
			if r == nil {
				continue
			}
			feedback.SafetyRatings = append(feedback.SafetyRatings, llm.SafetyRating{
				Category:    string(r.Category),
				Probability: string(r.Probability),
				Blocked:     r.Blocked,
			})
		}
		reply.PromptFeedback = feedback
	}
	for _, cand := range resp.Candidates {
		if cand == nil {
			continue
		}
		out := llm.Candidate{FinishReason: string(cand.FinishReason)}
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if part == nil {
					continue
				}
				if part.FunctionCall != nil {
					id := part.FunctionCall.ID
					if id == "" {
						id = uuid.NewString()
					}
					out.Parts = append(out.Parts, llm.Part{ToolCall: &llm.ToolCall{
						ID:   id,
						Name: part.FunctionCall.Name,
						Args: part.FunctionCall.Args,
					}})
					continue
				}
				if part.Text != "" && !part.Thought {
					out.Parts = append(out.Parts, llm.Part{Text: part.Text})
				}
			}
		}
		reply.Candidates = append(reply.Candidates, out)
	}
	return reply
}

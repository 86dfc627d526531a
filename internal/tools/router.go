package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"anchoredit/engine/internal/docstore"
	"anchoredit/engine/internal/errinfo"
	"anchoredit/engine/internal/llm"
	"anchoredit/engine/internal/logging"
	"anchoredit/engine/internal/metrics"
	"anchoredit/engine/internal/outline"
	"anchoredit/engine/internal/patch"
	"anchoredit/engine/internal/rules"
)

// DefaultMaxMatches caps grep_files results across all documents.
const DefaultMaxMatches = 50

var ErrProposalPending = errors.New("a proposed change is already awaiting the user's decision")

// ProposalSink receives edit proposals. It must not touch document content.
type ProposalSink interface {
	Propose(ctx context.Context, callID string, p patch.Proposal, args map[string]any) (map[string]any, error)
}

// RuleSource looks up rules by name.
type RuleSource interface {
	Get(name string) (rules.Rule, error)
}

// ValidationError reports bad tool arguments. No side effect has happened.
type ValidationError struct {
	Tool   string
	Detail string
}

func (e *ValidationError) Error() string {
	return errinfo.CodeValidationFailed + ": " + e.Detail
}

func validationError(tool, format string, args ...any) error {
	return &ValidationError{Tool: tool, Detail: fmt.Sprintf(format, args...)}
}

type Router struct {
	docs       docstore.Store
	rules      RuleSource
	outliner   outline.Outliner
	sink       ProposalSink
	logger     *slog.Logger
	validate   *validator.Validate
	maxMatches int
}

type Option func(*Router)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMaxMatches(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.maxMatches = n
		}
	}
}

func WithOutliner(o outline.Outliner) Option {
	return func(r *Router) {
		if o != nil {
			r.outliner = o
		}
	}
}

func NewRouter(docs docstore.Store, ruleSource RuleSource, sink ProposalSink, opts ...Option) *Router {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	r := &Router{
		docs:       docs,
		rules:      ruleSource,
		outliner:   outline.New(),
		sink:       sink,
		logger:     logging.Nop(),
		validate:   v,
		maxMatches: DefaultMaxMatches,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Declarations returns the tools this router can execute.
func (r *Router) Declarations() []llm.Tool {
	return Declarations
}

// Execute runs one tool call and always returns a response envelope.
func (r *Router) Execute(ctx context.Context, call llm.ToolCall) (resp llm.ToolResponse) {
	resp = llm.ToolResponse{ID: call.ID, Name: call.Name}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tools.execute_panic", "tool", call.Name, "panic", fmt.Sprint(rec))
			resp = llm.ToolResponse{ID: call.ID, Name: call.Name, Error: fmt.Sprintf("tool %s failed unexpectedly", call.Name)}
		}
		outcome := metrics.OutcomeSuccess
		switch {
		case resp.Pending():
			outcome = metrics.OutcomePending
		case !resp.Success:
			outcome = metrics.OutcomeError
		}
		metrics.ToolInvocations.WithLabelValues(metricToolName(call.Name), outcome).Inc()
	}()

	r.logger.Debug("tools.execute", "tool", call.Name, "call_id", call.ID, "args", logging.RedactAny(call.Args))
	data, status, err := r.dispatch(ctx, call)
	if err != nil {
		level := slog.LevelWarn
		var vErr *ValidationError
		if errors.As(err, &vErr) {
			level = slog.LevelInfo
		}
		r.logger.Log(ctx, level, "tools.execute_failed", "tool", call.Name, "call_id", call.ID, "error", err.Error())
		resp.Error = err.Error()
		return resp
	}
	resp.Success = true
	resp.Data = data
	resp.Status = status
	return resp
}

func (r *Router) dispatch(ctx context.Context, call llm.ToolCall) (map[string]any, string, error) {
	decl, ok := declaration(call.Name)
	if !ok {
		return nil, "", fmt.Errorf("unknown tool: %s", call.Name)
	}
	if err := checkRequired(decl, call.Args); err != nil {
		return nil, "", err
	}
	switch call.Name {
	case ToolGetDocumentContext:
		var args contextArgs
		if err := r.decode(call, &args); err != nil {
			return nil, "", err
		}
		return r.getDocumentContext(ctx, args)
	case ToolGrepFiles:
		var args grepArgs
		if err := r.decode(call, &args); err != nil {
			return nil, "", err
		}
		return r.grepFiles(ctx, args)
	case ToolFetchRules:
		var args fetchRulesArgs
		if err := r.decode(call, &args); err != nil {
			return nil, "", err
		}
		return r.fetchRules(args)
	case ToolCreateNewFile:
		var args createFileArgs
		if err := r.decode(call, &args); err != nil {
			return nil, "", err
		}
		return r.createNewFile(ctx, args)
	case ToolCodeSymbolsOutline:
		var args outlineArgs
		if err := r.decode(call, &args); err != nil {
			return nil, "", err
		}
		return r.codeSymbolsOutline(ctx, args)
	case ToolApplyChunkUpdate:
		var args applyArgs
		if err := r.decode(call, &args); err != nil {
			return nil, "", err
		}
		return r.applyChunkUpdate(ctx, call, args)
	}
	return nil, "", fmt.Errorf("unknown tool: %s", call.Name)
}

func checkRequired(decl llm.Tool, args map[string]any) error {
	var missing []string
	for _, name := range decl.RequiredParams() {
		if v, ok := args[name]; !ok || v == nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return validationError(decl.Name, "missing required argument(s): %s", strings.Join(missing, ", "))
	}
	return nil
}

func (r *Router) decode(call llm.ToolCall, dst any) error {
	raw, err := json.Marshal(call.Args)
	if err != nil {
		return validationError(call.Name, "invalid arguments: %v", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return validationError(call.Name, "argument %s must be %s", typeErr.Field, typeErr.Type.String())
		}
		return validationError(call.Name, "invalid arguments: %v", err)
	}
	if err := r.validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			parts := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				parts = append(parts, describeFieldError(fe))
			}
			return validationError(call.Name, "%s", strings.Join(parts, "; "))
		}
		return validationError(call.Name, "%v", err)
	}
	return nil
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "min":
		if fe.Kind() == reflect.String || fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must not be empty", fe.Field())
		}
		return fmt.Sprintf("%s must be >= %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be <= %s", fe.Field(), fe.Param())
	case "gtefield":
		return fmt.Sprintf("%s must be >= %s", fe.Field(), fe.Param())
	case "excludesall":
		return fmt.Sprintf("%s contains invalid characters", fe.Field())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}

func metricToolName(name string) string {
	if _, ok := declaration(name); ok {
		return name
	}
	return "unknown"
}

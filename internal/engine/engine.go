// Package engine wires documents, tools, the approval gate and the active
// conversation session behind the JSON-RPC surface.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"anchoredit/engine/internal/approval"
	"anchoredit/engine/internal/config"
	"anchoredit/engine/internal/docstore"
	"anchoredit/engine/internal/egress"
	"anchoredit/engine/internal/errinfo"
	"anchoredit/engine/internal/gemini"
	"anchoredit/engine/internal/llm"
	"anchoredit/engine/internal/logging"
	"anchoredit/engine/internal/rules"
	"anchoredit/engine/internal/session"
	"anchoredit/engine/internal/settings"
	"anchoredit/engine/internal/tools"
)

const (
	EngineVersion = "0.1.0"
	APIVersion    = "1"
)

// Notification methods emitted by the engine.
const (
	NotifyApprovalRequested = "ApprovalRequested"
	NotifyTurnComplete      = "ConversationTurnComplete"
	NotifyEgressBlocked     = "EgressBlocked"
)

type Notifier func(method string, params any)

type Engine struct {
	cfg      config.Config
	docs     docstore.Store
	closer   func() error
	settings *settings.Store
	rules    *rules.Store
	gate     *approval.Gate
	router   *tools.Router
	history  *session.History
	notify   Notifier
	logger   *slog.Logger

	modelMu sync.Mutex
	model   llm.ModelService

	// turnMu serializes conversation turns and decisions; callers that cannot
	// acquire it are told the session is busy.
	turnMu sync.Mutex

	mu     sync.Mutex
	active *session.Session
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithModelService replaces the Gemini backend.
func WithModelService(model llm.ModelService) Option {
	return func(e *Engine) {
		if model != nil {
			e.model = model
		}
	}
}

// WithDocumentStore replaces the store selected by configuration.
func WithDocumentStore(docs docstore.Store) Option {
	return func(e *Engine) {
		if docs != nil {
			e.docs = docs
		}
	}
}

func New(ctx context.Context, cfg config.Config, opts ...Option) (*Engine, error) {
	engine := &Engine{cfg: cfg, logger: logging.Nop()}
	for _, opt := range opts {
		opt(engine)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}
	if engine.docs == nil {
		switch cfg.Store {
		case config.StoreSQLite:
			store, err := docstore.OpenSQLite(ctx, cfg.DatabasePath())
			if err != nil {
				return nil, fmt.Errorf("open document store: %w", err)
			}
			engine.docs = store
			engine.closer = store.Close
		default:
			engine.docs = docstore.NewMemoryStore()
		}
	}
	ruleStore, err := rules.Load(cfg.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	if engine.model == nil && cfg.FakeModel {
		engine.model = newFakeModel(engine.docs)
	}

	engine.rules = ruleStore
	engine.settings = settings.NewStore(cfg.SettingsPath())
	engine.history = session.NewHistory(cfg.HistoryLimit)
	engine.gate = approval.New(engine.docs,
		approval.WithLogger(engine.logger.With("component", "approval")),
		approval.WithOnRequested(engine.onApprovalRequested),
	)
	engine.router = tools.NewRouter(engine.docs, ruleStore, engine.gate,
		tools.WithLogger(engine.logger.With("component", "tools")),
		tools.WithMaxMatches(cfg.MaxMatches),
	)
	engine.logger.Debug("engine.init", "data_dir", cfg.DataDir, "store", cfg.Store, "fake_model", cfg.FakeModel, "rules", len(ruleStore.Names()))
	return engine, nil
}

func (e *Engine) SetNotifier(notify Notifier) {
	e.notify = notify
}

// Close releases the document store.
func (e *Engine) Close() error {
	if e.closer != nil {
		return e.closer()
	}
	return nil
}

func (e *Engine) Documents() docstore.Store { return e.docs }

func (e *Engine) emit(method string, params any) {
	if e.notify != nil {
		e.notify(method, params)
	}
}

func (e *Engine) EngineGetInfo(ctx context.Context, _ json.RawMessage) (any, *errinfo.ErrorInfo) {
	names := make([]string, 0, len(tools.Declarations))
	for _, decl := range e.router.Declarations() {
		names = append(names, decl.Name)
	}
	return map[string]any{
		"engine_version": EngineVersion,
		"api_version":    APIVersion,
		"store":          e.cfg.Store,
		"tools":          names,
		"rules":          e.rules.Names(),
		"fake_model":     e.cfg.FakeModel,
	}, nil
}

// modelService returns the configured backend, building the Gemini client on
// first use.
func (e *Engine) modelService(ctx context.Context) (llm.ModelService, error) {
	e.modelMu.Lock()
	defer e.modelMu.Unlock()
	if e.model != nil {
		return e.model, nil
	}
	rt := egress.NewAllowlistRoundTripper(http.DefaultTransport, []string{egress.GeminiHost})
	rt.OnBlocked = func(host string) {
		e.logger.Warn("egress.blocked", "host", host)
		e.emit(NotifyEgressBlocked, map[string]any{"host": host})
	}
	client, err := gemini.NewClient(ctx, gemini.Config{
		APIKey:     e.cfg.APIKey,
		HTTPClient: &http.Client{Transport: rt},
		Logger:     e.logger.With("component", "gemini"),
	})
	if err != nil {
		return nil, err
	}
	e.model = client
	return client, nil
}

func (e *Engine) onApprovalRequested(p approval.Pending) {
	payload := map[string]any{"pending": p}
	if preview, err := e.gate.Preview(context.Background()); err == nil {
		payload["preview"] = preview
	}
	e.emit(NotifyApprovalRequested, payload)
}

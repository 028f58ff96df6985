package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"openworker/internal/logging"
	"openworker/internal/models"
)

// ErrNoProviders is returned when no tool provider could be connected.
var ErrNoProviders = errors.New("no tool providers connected")

// Options configures the policy stages of an Executor.
type Options struct {
	Guard      PathChecker
	Summarizer Summarizer
	Confirmer  Confirmer
	// Sensitive defaults to SensitiveTools.
	Sensitive map[string]bool
	Logger    *slog.Logger
}

// Executor is the single entry point the agent uses to run a tool call.
type Executor struct {
	mu        sync.RWMutex
	providers []Provider
	byName    map[string]Provider
	registry  *Registry
	schemas   *schemaCache
	opts      Options
	logger    *slog.Logger
}

func NewExecutor(providers []Provider, opts Options) *Executor {
	if opts.Sensitive == nil {
		opts.Sensitive = SensitiveTools
	}
	logger := logging.OrDiscard(opts.Logger)
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &Executor{
		providers: providers,
		byName:    byName,
		registry:  NewRegistry(),
		schemas:   newSchemaCache(logger),
		opts:      opts,
		logger:    logger,
	}
}

// Initialize queries every provider for its tools and rebuilds the
// registry. A provider that fails to list is logged and skipped.
func (e *Executor) Initialize(ctx context.Context) error {
	if len(e.providers) == 0 {
		return ErrNoProviders
	}

	reg := NewRegistry()
	for _, p := range e.providers {
		defs, err := p.ListTools(ctx)
		if err != nil {
			e.logger.Warn("tools.list_failed", "provider", p.Name(), "error", err)
			continue
		}
		reg.Register(p.Name(), defs)
		e.logger.Info("tools.registered", "provider", p.Name(), "count", len(defs))
	}

	e.mu.Lock()
	e.registry = reg
	e.mu.Unlock()
	e.schemas.reset()
	return nil
}

func (e *Executor) Definitions() []models.ToolDefinition {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.registry.Definitions()
}

// ProviderInfo summarizes one connected provider.
type ProviderInfo struct {
	Name  string
	Tools int
}

func (e *Executor) Providers() []ProviderInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]ProviderInfo, 0, len(e.providers))
	for _, p := range e.providers {
		out = append(out, ProviderInfo{Name: p.Name(), Tools: e.registry.Count(p.Name())})
	}
	return out
}

// Execute runs one tool call. Every failure is reported in the returned
// text; it never returns an error.
func (e *Executor) Execute(ctx context.Context, tc models.ToolCall) string {
	e.mu.RLock()
	reg, opts := e.registry, e.opts
	e.mu.RUnlock()

	call := &Call{ID: tc.ID, Name: tc.Name}
	handler := Chain(e.dispatch,
		Trace(e.logger),
		Route(reg),
		parseArgs(tc.Arguments),
		ValidateArgs(reg, e.schemas),
		pathPolicy(opts.Guard),
		Gateway(opts.Sensitive, opts.Summarizer, opts.Confirmer, e.logger),
	)
	return handler(ctx, call)
}

func (e *Executor) dispatch(ctx context.Context, call *Call) string {
	p, ok := e.byName[call.Provider]
	if !ok {
		call.Outcome = "not_found"
		return fmt.Sprintf("Error: Tool %s not found.", call.Name)
	}
	result, err := p.CallTool(ctx, call.Name, call.Args)
	if err != nil {
		call.Outcome = "error"
		return fmt.Sprintf("Error executing tool %s on %s: %v", call.Name, call.Provider, err)
	}
	if strings.HasPrefix(result, "Error") {
		call.Outcome = "error"
	}
	return result
}

// Close disconnects every provider.
func (e *Executor) Close() error {
	var errs []error
	for _, p := range e.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func parseArgs(raw string) Stage {
	return func(next Handler) Handler {
		return func(ctx context.Context, call *Call) string {
			args := map[string]any{}
			if strings.TrimSpace(raw) != "" {
				if err := json.Unmarshal([]byte(raw), &args); err != nil {
					call.Outcome = "invalid"
					return fmt.Sprintf("Error: Invalid arguments for tool %s: %v", call.Name, err)
				}
				if args == nil {
					args = map[string]any{}
				}
			}
			call.Args = args
			return next(ctx, call)
		}
	}
}

func pathPolicy(guard PathChecker) Stage {
	if guard == nil {
		return func(next Handler) Handler { return next }
	}
	return PathPolicy(guard)
}

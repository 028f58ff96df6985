package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"openworker/internal/metrics"
	"openworker/internal/models"
)

// Call is one tool invocation moving through the pipeline.
type Call struct {
	ID       string
	Name     string
	Args     map[string]any
	Provider string

	// Outcome is set by the stage that finished the call: "ok", "error",
	// "denied", "not_found" or "invalid".
	Outcome string
}

// Handler runs a call and returns the text appended to the conversation.
type Handler func(ctx context.Context, call *Call) string

// Stage wraps a Handler with one policy.
type Stage func(next Handler) Handler

// Chain applies stages so that the first stage is outermost.
func Chain(h Handler, stages ...Stage) Handler {
	for i := len(stages) - 1; i >= 0; i-- {
		h = stages[i](h)
	}
	return h
}

// Trace logs the start and end of each call and counts outcomes.
func Trace(logger *slog.Logger) Stage {
	return func(next Handler) Handler {
		return func(ctx context.Context, call *Call) string {
			start := time.Now()
			logger.Info("tool.start", "tool", call.Name, "call_id", call.ID)

			result := next(ctx, call)
			if call.Outcome == "" {
				call.Outcome = "ok"
			}

			metrics.ToolCalls.WithLabelValues(call.Name, call.Outcome).Inc()
			logger.Info("tool.end", "tool", call.Name, "call_id", call.ID,
				"provider", call.Provider, "outcome", call.Outcome,
				"duration_ms", time.Since(start).Milliseconds(),
				"result", truncate(result, 500))
			return result
		}
	}
}

// Route resolves the owning provider, answering unknown names itself.
func Route(reg *Registry) Stage {
	return func(next Handler) Handler {
		return func(ctx context.Context, call *Call) string {
			provider, ok := reg.Lookup(call.Name)
			if !ok {
				call.Outcome = "not_found"
				return fmt.Sprintf("Error: Tool %s not found.", call.Name)
			}
			call.Provider = provider
			return next(ctx, call)
		}
	}
}

// ValidateArgs rejects arguments that do not match the advertised schema.
func ValidateArgs(reg *Registry, cache *schemaCache) Stage {
	return func(next Handler) Handler {
		return func(ctx context.Context, call *Call) string {
			def, ok := reg.Definition(call.Name)
			if ok {
				if err := cache.validate(def, call.Args); err != nil {
					call.Outcome = "invalid"
					return fmt.Sprintf("Error: Invalid arguments for tool %s: %v", call.Name, err)
				}
			}
			return next(ctx, call)
		}
	}
}

// PathChecker is the part of the path guard the pipeline needs.
type PathChecker interface {
	ValidateTarget(path string) bool
}

// PathPolicy denies calls whose path arguments fall outside the allowed
// folders. Paths may name files that do not exist yet.
func PathPolicy(guard PathChecker) Stage {
	return func(next Handler) Handler {
		return func(ctx context.Context, call *Call) string {
			for _, key := range PathArgs {
				p, ok := call.Args[key].(string)
				if !ok || p == "" {
					continue
				}
				if !guard.ValidateTarget(p) {
					call.Outcome = "denied"
					return fmt.Sprintf("Error: Access denied. Path '%s' is not in an authorized folder.", p)
				}
			}
			return next(ctx, call)
		}
	}
}

// Summarizer describes a pending call for the confirmation prompt.
type Summarizer interface {
	Summarize(ctx context.Context, toolName string, args map[string]any) string
}

// Confirmer asks the user a yes/no question. It may block until the user
// answers; it must return false when ctx is done.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) bool

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) bool { return f(ctx, prompt) }

// ConfirmationPrompt is the text shown to the user for a sensitive call.
func ConfirmationPrompt(summary string) string {
	return fmt.Sprintf("\nACTION REQUIRED\n%s\n\nExecute this action?", summary)
}

// Gateway asks for approval before sensitive calls reach their provider.
// Without a confirmer every sensitive call is denied.
func Gateway(sensitive map[string]bool, summarizer Summarizer, confirmer Confirmer, logger *slog.Logger) Stage {
	return func(next Handler) Handler {
		return func(ctx context.Context, call *Call) string {
			if !sensitive[call.Name] {
				return next(ctx, call)
			}

			summary := models.FallbackSummary(call.Name, call.Args)
			if summarizer != nil {
				summary = summarizer.Summarize(ctx, call.Name, call.Args)
			}

			approved := confirmer != nil && confirmer.Confirm(ctx, ConfirmationPrompt(summary))
			logger.Info("tool.confirmation", "tool", call.Name, "call_id", call.ID, "approved", approved)
			if !approved {
				call.Outcome = "denied"
				return DeniedByUser
			}
			return next(ctx, call)
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Package agent runs the conversation: it alternates model calls and tool
// executions until the model answers without requesting tools.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"openworker/internal/llm"
	"openworker/internal/logging"
	"openworker/internal/models"
)

const DefaultMaxIterations = 15

// ErrMaxIterations is returned when one user turn needs more model calls than
// the session allows.
var ErrMaxIterations = errors.New("exceeded maximum reasoning steps")

// Executor runs tool calls. Execute never fails; errors come back as text.
type Executor interface {
	Definitions() []models.ToolDefinition
	Execute(ctx context.Context, call models.ToolCall) string
}

// Hooks observe a turn as it happens. Any of them may be nil.
type Hooks struct {
	OnMessage    func(sessionID string, msg models.Message)
	OnToolCall   func(call models.ToolCall)
	OnToolResult func(call models.ToolCall, result string)
}

type Options struct {
	Folders       []string
	MaxIterations int
	ContextTokens int
	Hooks         Hooks
	Logger        *slog.Logger
}

// Session holds one conversation history. Respond serializes turns.
type Session struct {
	id       atomic.Value // string
	model    llm.ChatModel
	executor Executor
	maxIter  int
	budget   int
	hooks    Hooks
	logger   *slog.Logger

	mu      sync.Mutex
	folders []string
	history []models.Message
}

func NewSession(model llm.ChatModel, executor Executor, opts Options) *Session {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if opts.ContextTokens <= 0 {
		opts.ContextTokens = DefaultContextTokens
	}
	s := &Session{
		model:    model,
		executor: executor,
		maxIter:  opts.MaxIterations,
		budget:   opts.ContextTokens,
		hooks:    opts.Hooks,
		logger:   logging.OrDiscard(opts.Logger),
		folders:  append([]string(nil), opts.Folders...),
	}
	s.id.Store(uuid.NewString())
	s.resetLocked()
	return s
}

func (s *Session) ID() string { return s.id.Load().(string) }

// SystemPrompt is the persona prompt followed by the allowed folder list.
func SystemPrompt(folders []string) string {
	lines := make([]string, len(folders))
	for i, f := range folders {
		lines[i] = "- " + f
	}
	return llm.AgentSystemPrompt + "\nYou have access to files in these folders:\n" + strings.Join(lines, "\n")
}

// UpdateFolders replaces the folder context. The history restarts from a
// fresh system prompt.
func (s *Session) UpdateFolders(folders []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.folders = append([]string(nil), folders...)
	s.resetLocked()
}

// Reset clears the conversation and starts a new session id.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id.Store(uuid.NewString())
	s.resetLocked()
}

func (s *Session) resetLocked() {
	s.history = []models.Message{{Role: models.RoleSystem, Content: SystemPrompt(s.folders)}}
}

// History returns a copy of the conversation so far.
func (s *Session) History() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.history...)
}

// Respond runs one user turn to completion and returns the final answer.
// Tool failures are fed back to the model; only model-call failures and the
// iteration cap end the turn with an error.
func (s *Session) Respond(ctx context.Context, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.append(models.Message{Role: models.RoleUser, Content: text})

	for step := 0; step < s.maxIter; step++ {
		s.history = CompactHistory(s.history, s.budget)

		start := time.Now()
		msg, err := s.model.Chat(ctx, s.history, s.executor.Definitions())
		if err != nil {
			return "", fmt.Errorf("model call: %w", err)
		}
		msg.Role = models.RoleAssistant
		s.append(msg)
		s.logger.Debug("agent.step", "session", s.ID(), "step", step,
			"tool_calls", len(msg.ToolCalls), "duration_ms", time.Since(start).Milliseconds())

		if len(msg.ToolCalls) == 0 {
			return msg.Content, nil
		}

		// One result per call, in emission order, before the next model call.
		for _, call := range msg.ToolCalls {
			if s.hooks.OnToolCall != nil {
				s.hooks.OnToolCall(call)
			}
			result := s.executor.Execute(ctx, call)
			s.append(models.Message{Role: models.RoleTool, Content: result, ToolCallID: call.ID})
			if s.hooks.OnToolResult != nil {
				s.hooks.OnToolResult(call, result)
			}
		}
	}

	s.logger.Warn("agent.max_iterations", "session", s.ID(), "limit", s.maxIter)
	return "", fmt.Errorf("%w (%d)", ErrMaxIterations, s.maxIter)
}

func (s *Session) append(msg models.Message) {
	s.history = append(s.history, msg)
	if s.hooks.OnMessage != nil {
		s.hooks.OnMessage(s.ID(), msg)
	}
}

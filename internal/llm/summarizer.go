package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"openworker/internal/logging"
	"openworker/internal/models"
)

// Summarizer turns a pending tool call into a sentence for the
// confirmation prompt.
type Summarizer struct {
	model  ChatModel
	logger *slog.Logger
}

func NewSummarizer(model ChatModel, logger *slog.Logger) *Summarizer {
	return &Summarizer{model: model, logger: logging.OrDiscard(logger)}
}

// Summarize makes a single model call and falls back to a literal rendering
// of the call when it fails or returns nothing.
func (s *Summarizer) Summarize(ctx context.Context, toolName string, args map[string]any) string {
	pretty, err := json.MarshalIndent(args, "", "  ")
	if err != nil {
		pretty = []byte(fmt.Sprint(args))
	}

	if s.model != nil {
		msg, err := s.model.Chat(ctx, []models.Message{
			{Role: models.RoleSystem, Content: ActionSummaryPrompt},
			{Role: models.RoleUser, Content: fmt.Sprintf("Tool: %s\nArguments: %s", toolName, pretty)},
		}, nil)
		if err == nil {
			if text := strings.TrimSpace(msg.Content); text != "" {
				return text
			}
		}
		s.logger.Warn("summarizer.fallback", "tool", toolName, "error", err)
	}

	return models.FallbackSummary(toolName, args)
}

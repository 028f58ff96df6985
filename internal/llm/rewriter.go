package llm

import (
	"context"
	"log/slog"
	"strings"

	"openworker/internal/logging"
	"openworker/internal/models"
)

// Rewriter turns a conversational query into a keyword-dense retrieval
// query.
type Rewriter struct {
	model  ChatModel
	logger *slog.Logger
}

func NewRewriter(model ChatModel, logger *slog.Logger) *Rewriter {
	return &Rewriter{model: model, logger: logging.OrDiscard(logger)}
}

// Refine returns the rewritten query, or query itself when the model call
// fails or comes back empty.
func (r *Rewriter) Refine(ctx context.Context, query string) string {
	if r == nil || r.model == nil {
		return query
	}
	msg, err := r.model.Chat(ctx, []models.Message{
		{Role: models.RoleSystem, Content: QueryRewritePrompt},
		{Role: models.RoleUser, Content: query},
	}, nil)
	if err != nil {
		r.logger.Warn("rewriter.fallback", "error", err)
		return query
	}
	refined := strings.TrimSpace(msg.Content)
	if refined == "" {
		return query
	}
	r.logger.Debug("rewriter.refined", "query", query, "refined", refined)
	return refined
}

// Package llm adapts the OpenAI-compatible chat, embedding and rerank
// endpoints to the small capabilities the agent and the retrieval store use.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"openworker/internal/logging"
	"openworker/internal/metrics"
	"openworker/internal/models"
)

// ChatModel is the model-chat capability: one completion for a history and
// an optional tool list.
type ChatModel interface {
	Chat(ctx context.Context, messages []models.Message, tools []models.ToolDefinition) (models.Message, error)
}

var ErrEmptyResponse = errors.New("empty response from model")

// NewAPI builds an OpenAI-compatible client. An empty baseURL keeps the
// library default.
func NewAPI(baseURL, apiKey string, opts ...option.RequestOption) openai.Client {
	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHeader("HTTP-Referer", "https://github.com/openworker/openworker"),
		option.WithHeader("X-Title", "Openworker CLI"),
	}
	if baseURL != "" {
		base = append(base, option.WithBaseURL(baseURL))
	}
	return openai.NewClient(append(base, opts...)...)
}

// Client implements ChatModel on the chat completions endpoint.
type Client struct {
	api     openai.Client
	model   string
	purpose string
	opts    []option.RequestOption
	logger  *slog.Logger
}

// NewClient returns a chat client for model. purpose labels metrics and
// logs ("agent", "summary", "rewrite"); opts apply to every request.
func NewClient(api openai.Client, model, purpose string, logger *slog.Logger, opts ...option.RequestOption) *Client {
	return &Client{
		api:     api,
		model:   model,
		purpose: purpose,
		opts:    opts,
		logger:  logging.OrDiscard(logger),
	}
}

func (c *Client) Model() string { return c.model }

func (c *Client) Chat(ctx context.Context, messages []models.Message, tools []models.ToolDefinition) (models.Message, error) {
	params := openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: toParams(messages),
	}
	if len(tools) > 0 {
		params.Tools = toToolParams(tools)
	}

	start := time.Now()
	resp, err := c.api.Chat.Completions.New(ctx, params, c.opts...)
	if err == nil && len(resp.Choices) == 0 {
		err = ErrEmptyResponse
	}
	metrics.LLMCalls.WithLabelValues(c.purpose, metrics.Status(err)).Inc()
	if err != nil {
		c.logger.Warn("llm.chat", "purpose", c.purpose, "model", c.model,
			"duration_ms", time.Since(start).Milliseconds(), "error", err)
		return models.Message{}, fmt.Errorf("chat completion: %w", err)
	}

	msg := fromResponse(resp.Choices[0].Message)
	c.logger.Info("llm.chat", "purpose", c.purpose, "model", c.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"tool_calls", len(msg.ToolCalls),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)
	return msg, nil
}

func toParams(messages []models.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case models.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case models.RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case models.RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		case models.RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if m.Content != "" {
				assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(m.Content)}
			}
			for _, tc := range m.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: tc.Arguments,
						},
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		}
	}
	return out
}

func toToolParams(defs []models.ToolDefinition) []openai.ChatCompletionToolUnionParam {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(defs))
	for _, d := range defs {
		params := openai.FunctionParameters{"type": "object", "properties": map[string]any{}}
		if d.Parameters != nil {
			params = openai.FunctionParameters(d.Parameters)
		}
		out = append(out, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        d.Name,
			Description: openai.String(d.Description),
			Parameters:  params,
		}))
	}
	return out
}

func fromResponse(m openai.ChatCompletionMessage) models.Message {
	msg := models.Message{Role: models.RoleAssistant, Content: m.Content}
	for _, tc := range m.ToolCalls {
		args := tc.Function.Arguments
		if args == "" {
			args = "{}"
		}
		msg.ToolCalls = append(msg.ToolCalls, models.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return msg
}

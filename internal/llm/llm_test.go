package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openworker/internal/models"
)

func newTestAPI(t *testing.T, handler http.HandlerFunc) openai.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewAPI(srv.URL+"/v1", "test-key", option.WithMaxRetries(0))
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, body)
}

func TestClientChat_ToolCallRoundTrip(t *testing.T) {
	var got map[string]any
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, `{
			"id": "c1", "object": "chat.completion", "created": 1, "model": "m",
			"choices": [{"index": 0, "finish_reason": "tool_calls", "message": {
				"role": "assistant", "content": "",
				"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "read_file", "arguments": "{\"path\":\"/a\"}"}}]
			}}],
			"usage": {"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5}
		}`)
	})

	c := NewClient(api, "m", "agent", nil)
	history := []models.Message{
		{Role: models.RoleSystem, Content: "sys"},
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{{ID: "call_0", Name: "list_files", Arguments: `{"directory":"/"}`}}},
		{Role: models.RoleTool, ToolCallID: "call_0", Content: "a.txt"},
	}
	tools := []models.ToolDefinition{{
		Name:        "read_file",
		Description: "[openworker] Read a file",
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{"path": map[string]any{"type": "string"}}},
	}}

	msg, err := c.Chat(context.Background(), history, tools)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAssistant, msg.Role)
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, models.ToolCall{ID: "call_1", Name: "read_file", Arguments: `{"path":"/a"}`}, msg.ToolCalls[0])

	msgs := got["messages"].([]any)
	require.Len(t, msgs, 4)
	assistant := msgs[2].(map[string]any)
	assert.Equal(t, "assistant", assistant["role"])
	calls := assistant["tool_calls"].([]any)
	assert.Equal(t, "call_0", calls[0].(map[string]any)["id"])
	tool := msgs[3].(map[string]any)
	assert.Equal(t, "tool", tool["role"])
	assert.Equal(t, "call_0", tool["tool_call_id"])
	assert.Equal(t, "a.txt", tool["content"])

	defs := got["tools"].([]any)
	require.Len(t, defs, 1)
	fn := defs[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "read_file", fn["name"])
}

func TestClientChat_EmptyChoices(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"id": "c1", "object": "chat.completion", "created": 1, "model": "m", "choices": []}`)
	})
	_, err := NewClient(api, "m", "agent", nil).Chat(context.Background(), []models.Message{{Role: models.RoleUser, Content: "hi"}}, nil)
	require.ErrorIs(t, err, ErrEmptyResponse)
}

type stubChat struct {
	reply models.Message
	err   error
	calls int
	last  []models.Message
}

func (s *stubChat) Chat(_ context.Context, messages []models.Message, _ []models.ToolDefinition) (models.Message, error) {
	s.calls++
	s.last = messages
	return s.reply, s.err
}

func TestSummarizer(t *testing.T) {
	args := map[string]any{"path": "/tmp/x.txt"}

	ok := &stubChat{reply: models.Message{Content: "  Writes a note to x.txt.\n"}}
	assert.Equal(t, "Writes a note to x.txt.", NewSummarizer(ok, nil).Summarize(context.Background(), "write_file", args))
	require.Len(t, ok.last, 2)
	assert.Equal(t, ActionSummaryPrompt, ok.last[0].Content)
	assert.Contains(t, ok.last[1].Content, "Tool: write_file")

	failing := &stubChat{err: errors.New("boom")}
	got := NewSummarizer(failing, nil).Summarize(context.Background(), "write_file", args)
	assert.Equal(t, `Execute tool 'write_file' with args: {"path":"/tmp/x.txt"}`, got)
	assert.Equal(t, 1, failing.calls)

	empty := &stubChat{reply: models.Message{Content: "   "}}
	assert.Equal(t, models.FallbackSummary("write_file", args), NewSummarizer(empty, nil).Summarize(context.Background(), "write_file", args))
}

func TestRewriter(t *testing.T) {
	r := NewRewriter(&stubChat{reply: models.Message{Content: " invoice totals 2024 "}}, nil)
	assert.Equal(t, "invoice totals 2024", r.Refine(context.Background(), "hey what were my invoices last year?"))

	r = NewRewriter(&stubChat{err: errors.New("down")}, nil)
	assert.Equal(t, "original", r.Refine(context.Background(), "original"))

	var nilRewriter *Rewriter
	assert.Equal(t, "q", nilRewriter.Refine(context.Background(), "q"))
}

func TestEmbedder_PreservesOrder(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/embeddings"))
		// Return the data out of order; Index decides placement.
		writeJSON(w, `{"object": "list", "model": "e", "data": [
			{"object": "embedding", "index": 1, "embedding": [0, 1]},
			{"object": "embedding", "index": 0, "embedding": [1, 0]}
		], "usage": {"prompt_tokens": 2, "total_tokens": 2}}`)
	})

	vecs, err := NewEmbedder(api, "e", 0, nil).Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs)
}

func TestEmbedder_CountMismatch(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"object": "list", "model": "e", "data": [], "usage": {"prompt_tokens": 0, "total_tokens": 0}}`)
	})
	_, err := NewEmbedder(api, "e", 0, nil).Embed(context.Background(), []string{"a"})
	require.Error(t, err)
}

func TestReranker(t *testing.T) {
	var req rerankRequest
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/rerank"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		writeJSON(w, `{"results": [{"index": 2, "relevance_score": 0.9}, {"index": 0, "relevance_score": 0.4}]}`)
	})

	scores, err := NewReranker(api, "rr", nil).Rerank(context.Background(), "q", []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.4, 0, 0.9}, scores)
	assert.Equal(t, "q", req.Query)
	assert.Equal(t, 3, req.TopN)
}

func TestReranker_ServerError(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "down"}`, http.StatusInternalServerError)
	})
	_, err := NewReranker(api, "rr", nil).Rerank(context.Background(), "q", []string{"a"})
	require.Error(t, err)
}

package tools

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openworker/internal/models"
)

func echoServer() *server.MCPServer {
	s := server.NewMCPServer("echo", "test", server.WithToolCapabilities(true), server.WithRecovery())
	s.AddTool(mcp.NewTool("echo",
		mcp.WithDescription("Echo the text back"),
		mcp.WithString("text", mcp.Required(), mcp.Description("Text to echo")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText("echo: " + text), nil
	})
	return s
}

func TestMCPProvider_InProcess(t *testing.T) {
	ctx := context.Background()
	p, err := ConnectInProcess(ctx, "echo", echoServer(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	defs, err := p.ListTools(ctx)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "echo", defs[0].Name)
	assert.Equal(t, "Echo the text back", defs[0].Description)
	assert.Equal(t, "object", defs[0].Parameters["type"])
	assert.Contains(t, defs[0].Parameters["properties"], "text")

	out, err := p.CallTool(ctx, "echo", map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", out)
}

func TestMCPProvider_ThroughExecutor(t *testing.T) {
	ctx := context.Background()
	p, err := ConnectInProcess(ctx, "echo", echoServer(), nil)
	require.NoError(t, err)

	e := NewExecutor([]Provider{p}, Options{})
	t.Cleanup(func() { _ = e.Close() })
	require.NoError(t, e.Initialize(ctx))

	defs := e.Definitions()
	require.Len(t, defs, 1)
	assert.Equal(t, "[echo] Echo the text back", defs[0].Description)

	assert.Equal(t, "echo: yo", e.Execute(ctx, models.ToolCall{ID: "c1", Name: "echo", Arguments: `{"text":"yo"}`}))
}

func TestContentText(t *testing.T) {
	got := contentText([]mcp.Content{mcp.NewTextContent("a"), &mcp.TextContent{Type: "text", Text: "b"}})
	assert.Equal(t, "a\nb", got)
}

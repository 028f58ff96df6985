package toolserver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"openworker/internal/rag"
)

type IndexFolderTool struct {
	guard     PathResolver
	knowledge Knowledge
	logger    *slog.Logger
}

func (t *IndexFolderTool) Definition() mcp.Tool {
	return mcp.NewTool("index_folder",
		mcp.WithDescription("Index a folder for RAG knowledge base."),
		mcp.WithString("directory", mcp.Required(), mcp.Description("Absolute path to folder.")),
	)
}

func (t *IndexFolderTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir, err := req.RequireString("directory")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	resolved, err := t.guard.ResolveTarget(dir)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	summary, err := t.knowledge.IndexDirectory(ctx, resolved)
	if err != nil {
		t.logger.Error("toolserver.index_failed", "directory", resolved, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Error indexing: %v", err)), nil
	}
	return mcp.NewToolResultText(summary), nil
}

type SearchKnowledgeTool struct {
	knowledge Knowledge
	refiner   Refiner
	logger    *slog.Logger
}

func (t *SearchKnowledgeTool) Definition() mcp.Tool {
	return mcp.NewTool("search_knowledge",
		mcp.WithDescription("Search the indexed knowledge base (RAG). Uses query refinement, hybrid search, and reranking."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query.")),
	)
}

func (t *SearchKnowledgeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	refined := query
	if t.refiner != nil {
		refined = t.refiner.Refine(ctx, query)
	}
	results, err := t.knowledge.Query(ctx, refined, 0)
	if err != nil {
		t.logger.Error("toolserver.search_failed", "query", refined, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Error searching: %v", err)), nil
	}
	return mcp.NewToolResultText(FormatResults(query, refined, results)), nil
}

// FormatResults renders search hits for the model, each tagged with its
// source file.
func FormatResults(query, refined string, results []rag.Result) string {
	out := []string{"Original Query: " + query, "Refined Query: " + refined, "---"}
	for _, r := range results {
		out = append(out, fmt.Sprintf("[Source: %s]\n%s\n", r.Chunk.Source, r.Chunk.Text))
	}
	return strings.Join(out, "\n---\n")
}

type ResetKnowledgeTool struct {
	knowledge Knowledge
	logger    *slog.Logger
}

func (t *ResetKnowledgeTool) Definition() mcp.Tool {
	return mcp.NewTool("reset_knowledge_base",
		mcp.WithDescription("Clear the RAG knowledge base (delete index)."),
	)
}

func (t *ResetKnowledgeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	msg, err := t.knowledge.Clear(ctx)
	if err != nil {
		t.logger.Error("toolserver.reset_failed", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Error resetting: %v", err)), nil
	}
	return mcp.NewToolResultText(msg), nil
}

package toolserver

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"openworker/internal/rag"
)

// DefaultListLimit caps list_files output so a large tree does not flood the
// model context.
const DefaultListLimit = 1000

// ReadFileTool returns the extracted text of one file.
type ReadFileTool struct {
	guard     PathResolver
	extractor rag.Extractor
	logger    *slog.Logger
}

func (t *ReadFileTool) Definition() mcp.Tool {
	return mcp.NewTool("read_file",
		mcp.WithDescription("Read the content of a local file. Supports PDF, Docx, Excel, Text, Code."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute path to the file.")),
	)
}

func (t *ReadFileTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	resolved, err := t.guard.ResolveTarget(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	info, err := os.Stat(resolved)
	if err != nil || info.IsDir() {
		return mcp.NewToolResultError(fmt.Sprintf("Error: File not found at %s", path)), nil
	}

	text, err := t.extractor.Extract(resolved)
	if errors.Is(err, rag.ErrBinaryFile) {
		return mcp.NewToolResultError("Error: Could not decode file with supported encodings."), nil
	}
	if err != nil {
		t.logger.Debug("toolserver.read_failed", "path", resolved, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Error reading file %s: %v", path, err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// ListFilesTool lists the non-hidden files under a directory, recursively.
type ListFilesTool struct {
	guard PathResolver
	limit int
}

func (t *ListFilesTool) Definition() mcp.Tool {
	return mcp.NewTool("list_files",
		mcp.WithDescription("List files in a directory recursively."),
		mcp.WithString("directory", mcp.Required(), mcp.Description("Absolute path to the directory.")),
	)
}

func (t *ListFilesTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir, err := req.RequireString("directory")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	resolved, err := t.guard.ResolveTarget(dir)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if info, err := os.Stat(resolved); err != nil || !info.IsDir() {
		return mcp.NewToolResultError(fmt.Sprintf("Error: Directory not found %s", dir)), nil
	}

	var files []string
	err = filepath.WalkDir(resolved, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path != resolved && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		files = append(files, path)
		if len(files) >= t.limit {
			return fs.SkipAll
		}
		return ctx.Err()
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error listing %s: %v", dir, err)), nil
	}

	if len(files) == 0 {
		return mcp.NewToolResultText("(empty directory)"), nil
	}
	return mcp.NewToolResultText(strings.Join(files, "\n")), nil
}

// WriteFileTool writes text to a file, creating parent directories.
type WriteFileTool struct {
	guard  PathResolver
	logger *slog.Logger
}

func (t *WriteFileTool) Definition() mcp.Tool {
	return mcp.NewTool("write_file",
		mcp.WithDescription("Write content to a file. Overwrites if exists."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute path.")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Text content to write.")),
	)
}

func (t *WriteFileTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	resolved, err := t.guard.ResolveTarget(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error writing file: %v", err)), nil
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error writing file: %v", err)), nil
	}
	t.logger.Info("toolserver.wrote", "path", resolved, "bytes", len(content))
	return mcp.NewToolResultText(fmt.Sprintf("Successfully wrote to %s", path)), nil
}

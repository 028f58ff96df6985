// Package tools routes model tool calls to the connected tool providers.
// Every call runs through an ordered pipeline of policy stages (tracing,
// routing, schema validation, path policy, permission gateway) and always
// yields a string for the conversation.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"openworker/internal/models"
)

// Provider is one connected tool server.
type Provider interface {
	Name() string
	ListTools(ctx context.Context) ([]models.ToolDefinition, error)
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
	Close() error
}

// SensitiveTools mutate files or the knowledge base and need the user's
// approval before they run.
var SensitiveTools = map[string]bool{
	"write_file":           true,
	"index_folder":         true,
	"reset_knowledge_base": true,
}

// PathArgs are the argument names that carry filesystem paths.
var PathArgs = []string{"path", "directory"}

const DeniedByUser = "User denied permission."

// GenerateToolSummary renders a one-line description of a finished call for
// the activity feed.
func GenerateToolSummary(name string, argsJSON string, result string) string {
	var args map[string]interface{}
	_ = json.Unmarshal([]byte(argsJSON), &args)

	if result == DeniedByUser {
		return fmt.Sprintf("%s (denied)", strings.ToUpper(name))
	}
	failed := strings.HasPrefix(result, "Error")

	switch name {
	case "read_file":
		path, _ := args["path"].(string)
		if failed {
			return fmt.Sprintf("READ %s (failed)", filepath.Base(path))
		}
		lines := strings.Count(result, "\n")
		if lines == 0 && result != "" {
			lines = 1
		}
		return fmt.Sprintf("READ %s (%d lines)", filepath.Base(path), lines)
	case "write_file":
		path, _ := args["path"].(string)
		if failed {
			return fmt.Sprintf("WRITE %s (failed)", filepath.Base(path))
		}
		content, _ := args["content"].(string)
		lines := strings.Count(content, "\n") + 1
		return fmt.Sprintf("WRITE %s (%d lines)", filepath.Base(path), lines)
	case "list_files":
		dir, _ := args["directory"].(string)
		if failed {
			return fmt.Sprintf("LIST %s (failed)", dir)
		}
		entries := 0
		if result != "" {
			entries = strings.Count(result, "\n") + 1
		}
		return fmt.Sprintf("LIST %s (%d files)", dir, entries)
	case "index_folder":
		dir, _ := args["directory"].(string)
		if failed {
			return fmt.Sprintf("INDEX %s (failed)", filepath.Base(dir))
		}
		return fmt.Sprintf("INDEX %s", filepath.Base(dir))
	case "search_knowledge":
		query, _ := args["query"].(string)
		if len(query) > 30 {
			query = query[:27] + "..."
		}
		hits := strings.Count(result, "[Source: ")
		return fmt.Sprintf("SEARCH \"%s\" (%d hits)", query, hits)
	case "reset_knowledge_base":
		return "RESET knowledge base"
	default:
		if failed {
			return fmt.Sprintf("%s (failed)", strings.ToUpper(name))
		}
		return fmt.Sprintf("%s called", strings.ToUpper(name))
	}
}

package models

import (
	"encoding/json"
	"fmt"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is a single function call requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON object as emitted by the model
}

// Message is one entry of the conversation history.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall // assistant only
	ToolCallID string     // tool only
}

// ToolDefinition describes a callable tool and the provider that owns it.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
	Provider    string
}

// ParametersJSON returns the parameter schema as raw JSON.
func (d ToolDefinition) ParametersJSON() ([]byte, error) {
	if d.Parameters == nil {
		return []byte(`{"type":"object"}`), nil
	}
	return json.Marshal(d.Parameters)
}

// Chunk is a retrievable piece of an indexed document.
type Chunk struct {
	ID          string
	Text        string
	Source      string
	Index       int
	RootPath    string
	ContentHash string
	ModTime     int64
}

type ChatListItem struct {
	ID             int64
	SessionID      string
	UpdatedAtUnix  int64
	LastUserPrompt string
	ModelID        string
}

type DBMessage struct {
	Role    string
	Content string
}

// ToolAction represents a completed tool action for display
type ToolAction struct {
	Name    string
	Summary string
}

// FallbackSummary renders a tool call for a confirmation prompt when no
// model-written summary is available. Arguments are compact JSON.
func FallbackSummary(toolName string, args map[string]any) string {
	compact, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("Execute tool '%s' with args: %v", toolName, args)
	}
	return fmt.Sprintf("Execute tool '%s' with args: %s", toolName, compact)
}

// Package ui is the bubbletea front end. It drives an agent session, shows
// tool activity as it happens and asks the user to approve sensitive tools.
package ui

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/glamour"

	"openworker/internal/models"
	"openworker/internal/tools"
)

const (
	HistoryPageSize = 10
	MaxInputHeight  = 6
)

// ModalWidth follows the window size, clamped to [30, 60].
var ModalWidth = 60

// Agent is the conversation the UI drives.
type Agent interface {
	Respond(ctx context.Context, text string) (string, error)
	UpdateFolders(folders []string)
	Reset()
	History() []models.Message
}

// FolderStore persists the allowed folder set.
type FolderStore interface {
	ListFolders() ([]string, error)
	AddFolder(path string) error
	RemoveFolder(path string) error
}

// ServerLister reports the connected tool providers.
type ServerLister interface {
	Providers() []tools.ProviderInfo
}

type Deps struct {
	Agent   Agent
	Folders FolderStore
	Servers ServerLister
	// DB backs the history modal; nil disables it.
	DB            *sql.DB
	ModelName     string
	ContextTokens int
	Logger        *slog.Logger
}

type ErrMsg error

type ResponseMsg struct {
	Content       string
	ContextTokens int
}

type ToolCallMsg struct {
	Name      string
	Arguments string
}

type ToolResultMsg struct {
	Name    string
	Summary string // one line for the activity feed
}

// ConfirmRequestMsg asks the user to approve a sensitive tool call. Exactly
// one value is sent on Reply.
type ConfirmRequestMsg struct {
	Prompt string
	Reply  chan<- bool
}

type Model struct {
	Viewport  viewport.Model
	Messages  []string
	TextInput textarea.Model
	Spinner   spinner.Model
	Renderer  *glamour.TermRenderer

	agent    Agent
	folders  FolderStore
	servers  ServerLister
	commands *Commands
	db       *sql.DB
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	ModelName     string
	MaxContext    int
	ContextTokens int
	FolderCount   int

	Err          error
	Loading      bool
	WindowWidth  int
	WindowHeight int

	HistoryOpen        bool
	HistorySelectedIdx int
	HistoryChatCount   int
	HistoryChats       []models.ChatListItem
	HistoryErr         error
	HistoryPage        int

	ShortcutsOpen bool

	// Pending approval request, if any. The agent goroutine is blocked on it.
	Confirm *ConfirmRequestMsg

	ExecutingTool string
	ToolActions   []models.ToolAction // completed tool actions for the current turn
}

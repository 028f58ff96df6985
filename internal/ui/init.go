package ui

import (
	"context"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"openworker/internal/agent"
	"openworker/internal/logging"
	"openworker/internal/styles"
)

func New(ctx context.Context, deps Deps) *Model {
	styles.InitTheme()
	accent := styles.CurrentTheme.Primary

	ti := textarea.New()
	ti.Placeholder = `Ask something, or \help for commands...`
	ti.Prompt = "❯ "
	ti.ShowLineNumbers = false
	ti.CharLimit = 0
	ti.MaxHeight = MaxInputHeight
	ti.SetHeight(2)
	ti.SetWidth(80)
	ti.FocusedStyle.Prompt = lipgloss.NewStyle().Foreground(accent).Bold(true)
	ti.BlurredStyle.Prompt = lipgloss.NewStyle().Foreground(accent).Bold(true)
	ti.FocusedStyle.Placeholder = lipgloss.NewStyle().Foreground(styles.HintColor)
	ti.BlurredStyle.Placeholder = lipgloss.NewStyle().Foreground(styles.HintColor)
	ti.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ti.BlurredStyle.CursorLine = lipgloss.NewStyle()
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(accent)

	maxCtx := deps.ContextTokens
	if maxCtx <= 0 {
		maxCtx = agent.DefaultContextTokens
	}

	ctx, cancel := context.WithCancel(ctx)
	m := &Model{
		TextInput:  ti,
		Viewport:   viewport.New(60, 15),
		Spinner:    sp,
		Messages:   []string{},
		agent:      deps.Agent,
		folders:    deps.Folders,
		servers:    deps.Servers,
		db:         deps.DB,
		logger:     logging.OrDiscard(deps.Logger),
		ctx:        ctx,
		cancel:     cancel,
		ModelName:  deps.ModelName,
		MaxContext: maxCtx,
		commands: &Commands{
			Folders: deps.Folders,
			Servers: deps.Servers,
			Session: deps.Agent,
		},
	}
	m.refreshFolderCount()
	return m
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.TextInput.Cursor.BlinkCmd(),
		m.Spinner.Tick,
	)
}

// NewProgram builds the program and attaches it to bridge so tool activity
// and confirmation requests reach the model.
func NewProgram(ctx context.Context, deps Deps, bridge *Bridge) *tea.Program {
	m := New(ctx, deps)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if bridge != nil {
		bridge.Attach(p)
	}
	return p
}

func (m *Model) refreshFolderCount() {
	if m.folders == nil {
		return
	}
	folders, err := m.folders.ListFolders()
	if err != nil {
		m.logger.Warn("ui.folders_failed", "error", err)
		return
	}
	m.FolderCount = len(folders)
}

package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"openworker/internal/agent"
	"openworker/internal/db"
	"openworker/internal/models"
	"openworker/internal/styles"
)

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case spinner.TickMsg:
		m.Spinner, spCmd = m.Spinner.Update(msg)
		if m.Loading {
			m.UpdateViewport()
		}
		return m, spCmd

	case tea.KeyMsg:
		if m.Confirm != nil {
			return m.updateConfirm(msg)
		}

		if m.HistoryOpen {
			return m.updateHistory(msg)
		}

		if m.ShortcutsOpen {
			switch msg.String() {
			case "ctrl+c":
				return m.quit()
			case "esc", "enter", "?", "ctrl+s":
				m.ShortcutsOpen = false
				return m, nil
			}
			return m, nil
		}

		if isNewlineShortcut(msg) {
			m.TextInput.InsertString("\n")
			m.updateInputLayout()
			return m, nil
		}

		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m.quit()

		case tea.KeyCtrlN:
			if m.Loading {
				return m, nil
			}
			m.ResetSession()
			return m, nil

		case tea.KeyCtrlS:
			m.ShortcutsOpen = true
			m.HistoryOpen = false
			return m, nil

		case tea.KeyCtrlH:
			if m.db == nil {
				return m, nil
			}
			m.HistoryOpen = true
			m.ShortcutsOpen = false
			m.HistoryPage = 0
			m.RefreshHistoryFromDB()
			return m, nil

		case tea.KeyEnter:
			if m.Loading {
				return m, nil
			}
			input := strings.TrimSpace(m.TextInput.Value())
			if input == "" {
				return m, nil
			}

			if IsCommand(input) {
				m.runCommand(input)
				return m, nil
			}

			m.Messages = append(m.Messages, FormatUserMessage(input, m.Viewport.Width, len(m.Messages) == 0))
			m.TextInput.Reset()
			m.updateInputLayout()
			m.Loading = true
			m.ToolActions = nil
			m.UpdateViewport()

			return m, tea.Batch(m.SendMessage(input), m.Spinner.Tick)
		}

	case ConfirmRequestMsg:
		if m.Confirm != nil {
			// One approval at a time; the executor runs calls sequentially.
			msg.Reply <- false
			return m, nil
		}
		m.Confirm = &msg
		return m, nil

	case ToolCallMsg:
		m.ExecutingTool = msg.Name
		m.UpdateViewport()
		return m, nil

	case ToolResultMsg:
		m.ExecutingTool = ""
		m.ToolActions = append(m.ToolActions, models.ToolAction{
			Name:    msg.Name,
			Summary: msg.Summary,
		})
		m.UpdateViewport()
		return m, nil

	case ResponseMsg:
		m.Loading = false
		m.ContextTokens = msg.ContextTokens
		displayContent := m.render(msg.Content)
		if len(m.ToolActions) > 0 {
			m.Messages = append(m.Messages, FormatAIMessageWithTools(FormatToolActions(m.ToolActions), displayContent))
		} else {
			m.Messages = append(m.Messages, FormatAIMessage(displayContent))
		}
		m.ToolActions = nil
		m.UpdateViewport()
		return m, nil

	case ErrMsg:
		m.Loading = false
		m.ExecutingTool = ""
		m.Err = msg
		if len(m.ToolActions) > 0 {
			m.Messages = append(m.Messages, FormatToolActions(m.ToolActions))
			m.ToolActions = nil
		}
		m.Messages = append(m.Messages, styles.ErrorStyle.Render(fmt.Sprintf("Error: %v", msg)))
		m.UpdateViewport()
		return m, nil

	case tea.WindowSizeMsg:
		m.WindowWidth = msg.Width
		m.WindowHeight = msg.Height

		ModalWidth = msg.Width - 10
		if ModalWidth > 60 {
			ModalWidth = 60
		}
		if ModalWidth < 30 {
			ModalWidth = 30
		}
		styles.ContentWidth = ModalWidth - 6

		chatWidth := msg.Width - 2
		m.Viewport.Width = chatWidth - 2

		m.updateInputLayout()
		m.Renderer, _ = glamour.NewTermRenderer(
			glamour.WithStylePath(styles.CurrentTheme.Markdown),
			glamour.WithWordWrap(chatWidth-6),
		)
		m.UpdateViewport()
		return m, nil
	}

	m.TextInput, tiCmd = m.TextInput.Update(msg)
	m.updateInputLayout()

	// Terminal background color queries and cursor reports can leak into
	// the input on some terminals.
	val := m.TextInput.Value()
	if strings.Contains(val, "]11;rgb:") || strings.Contains(val, "1;rgb:") || strings.Contains(val, "[1;1R") {
		m.TextInput.Reset()
	}

	m.Viewport, vpCmd = m.Viewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd)
}

func (m *Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		m.answerConfirm(true)
	case "n", "N", "esc":
		m.answerConfirm(false)
	case "ctrl+c":
		m.answerConfirm(false)
		return m.quit()
	}
	return m, nil
}

func (m *Model) answerConfirm(ok bool) {
	if m.Confirm == nil {
		return
	}
	m.Confirm.Reply <- ok
	m.Confirm = nil
	m.UpdateViewport()
}

func (m *Model) updateHistory(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m.quit()
	case "esc", "ctrl+h":
		m.HistoryOpen = false
		m.HistoryErr = nil
	case "up", "k":
		if len(m.HistoryChats) == 0 {
			return m, nil
		}
		m.HistorySelectedIdx--
		if m.HistorySelectedIdx < 0 {
			m.HistorySelectedIdx = len(m.HistoryChats) - 1
		}
	case "down", "j":
		if len(m.HistoryChats) == 0 {
			return m, nil
		}
		m.HistorySelectedIdx++
		if m.HistorySelectedIdx >= len(m.HistoryChats) {
			m.HistorySelectedIdx = 0
		}
	case "enter":
		if len(m.HistoryChats) == 0 {
			return m, nil
		}
		chat := m.HistoryChats[m.HistorySelectedIdx]
		if err := m.LoadChatFromDB(chat.ID); err != nil {
			m.HistoryErr = err
			return m, nil
		}
		m.HistoryOpen = false
		m.HistoryErr = nil
	case "left", "h":
		if m.HistoryPage > 0 {
			m.HistoryPage--
			m.RefreshHistoryFromDB()
		}
	case "right", "l":
		totalPages := (m.HistoryChatCount + HistoryPageSize - 1) / HistoryPageSize
		if m.HistoryPage < totalPages-1 {
			m.HistoryPage++
			m.RefreshHistoryFromDB()
		}
	}
	return m, nil
}

// quit cancels in-flight work, which also releases a blocked confirmation.
func (m *Model) quit() (tea.Model, tea.Cmd) {
	if m.cancel != nil {
		m.cancel()
	}
	return m, tea.Quit
}

func (m *Model) runCommand(input string) {
	res := m.commands.Run(input)
	m.TextInput.Reset()
	m.updateInputLayout()

	if res.Clear {
		m.Messages = []string{}
		m.UpdateViewport()
		return
	}
	m.refreshFolderCount()
	m.Messages = append(m.Messages, FormatCommandOutput(input, res))
	m.UpdateViewport()
}

func isNewlineShortcut(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "shift+enter", "shift+return", "ctrl+j", "ctrl+enter", "alt+enter":
		return true
	default:
		return false
	}
}

func (m *Model) updateInputLayout() {
	if m.WindowWidth == 0 || m.WindowHeight == 0 {
		return
	}

	inputWidth := m.WindowWidth - 6
	if inputWidth < 20 {
		inputWidth = 20
	}
	contentWidth := inputWidth - 2
	if contentWidth < 1 {
		contentWidth = 1
	}

	lineCount := WrappedLineCount(m.TextInput.Value(), contentWidth)
	if lineCount < 1 {
		lineCount = 1
	}
	if lineCount > MaxInputHeight {
		lineCount = MaxInputHeight
	}

	m.TextInput.MaxHeight = MaxInputHeight
	m.TextInput.SetWidth(inputWidth)
	m.TextInput.SetHeight(lineCount)

	inputBoxHeight := m.TextInput.Height() + 2
	reserved := inputBoxHeight + 5
	viewportHeight := m.WindowHeight - reserved
	if viewportHeight < 5 {
		viewportHeight = 5
	}
	m.Viewport.Height = viewportHeight
}

// ResetSession starts a new conversation with a new session id.
func (m *Model) ResetSession() {
	if m.agent != nil {
		m.agent.Reset()
	}
	m.Messages = []string{}
	m.ContextTokens = 0
	m.ToolActions = nil
	m.HistoryOpen = false
	m.HistoryErr = nil
	m.Viewport.SetContent(GetWelcomeScreen(m.Viewport.Width, m.Viewport.Height))
	m.Viewport.GotoTop()
	m.TextInput.Reset()
	m.updateInputLayout()
}

func (m *Model) RefreshHistoryFromDB() {
	m.HistoryErr = nil
	m.HistoryChats = nil
	m.HistorySelectedIdx = 0

	if m.db == nil {
		m.HistoryErr = fmt.Errorf("history database not initialized")
		return
	}

	offset := m.HistoryPage * HistoryPageSize
	count, chats, err := db.GetRecentChats(m.db, HistoryPageSize, offset)
	if err != nil {
		m.HistoryErr = err
		return
	}
	m.HistoryChatCount = count
	m.HistoryChats = chats
}

// LoadChatFromDB shows a past transcript. The live session is reset; past
// chats are read-only.
func (m *Model) LoadChatFromDB(chatID int64) error {
	if m.db == nil {
		return fmt.Errorf("history database not initialized")
	}

	msgs, err := db.GetChatMessages(m.db, chatID)
	if err != nil {
		return err
	}

	if m.agent != nil {
		m.agent.Reset()
	}
	m.Loading = false
	m.ContextTokens = 0
	m.Messages = []string{}

	for _, msg := range msgs {
		switch msg.Role {
		case models.RoleUser:
			m.Messages = append(m.Messages, FormatUserMessage(msg.Content, m.Viewport.Width, len(m.Messages) == 0))
		case models.RoleAssistant:
			m.Messages = append(m.Messages, FormatAIMessage(m.render(msg.Content)))
		}
	}

	m.UpdateViewport()
	return nil
}

func (m *Model) render(content string) string {
	if m.Renderer == nil {
		return content
	}
	rendered, err := m.Renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimSpace(rendered)
}

// SendMessage runs one agent turn off the event loop. Tool activity arrives
// through the bridge while it runs.
func (m *Model) SendMessage(input string) tea.Cmd {
	session, ctx, logger := m.agent, m.ctx, m.logger
	return func() tea.Msg {
		if session == nil {
			return ErrMsg(fmt.Errorf("no agent session"))
		}
		reply, err := session.Respond(ctx, input)
		if err != nil {
			logger.Error("ui.turn_failed", "error", err)
			return ErrMsg(err)
		}
		return ResponseMsg{
			Content:       reply,
			ContextTokens: agent.EstimateHistoryTokens(session.History()),
		}
	}
}

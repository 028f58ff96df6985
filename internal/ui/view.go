package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"openworker/internal/styles"
)

func (m *Model) RenderHistorySelector() string {
	totalPages := (m.HistoryChatCount + HistoryPageSize - 1) / HistoryPageSize
	if totalPages < 1 {
		totalPages = 1
	}
	title := styles.ModalTitleStyle.Render(fmt.Sprintf("Recent Chats (%d) - Page %d/%d", m.HistoryChatCount, m.HistoryPage+1, totalPages))

	var body string
	if m.HistoryErr != nil {
		body = lipgloss.NewStyle().Width(styles.ContentWidth).Render(styles.ErrorStyle.Render(fmt.Sprintf("Error: %v", m.HistoryErr)))
	} else if len(m.HistoryChats) == 0 {
		body = styles.ModalItemStyle.Render(lipgloss.NewStyle().Foreground(styles.HintColor).Render("No chats yet"))
	} else {
		items := make([]string, 0, len(m.HistoryChats))
		for i, chat := range m.HistoryChats {
			isSelected := i == m.HistorySelectedIdx
			cursor := "  "
			if isSelected {
				cursor = "> "
			}
			timeStr := RelativeTime(time.Unix(chat.UpdatedAtUnix, 0))
			prompt := PromptPreview(chat.LastUserPrompt)
			if prompt == "" {
				prompt = "(no prompt)"
			}
			availableWidth := styles.ContentWidth - 2 - len(cursor) - 1 - len(timeStr)
			prompt = TruncateRunes(prompt, availableWidth)

			itemContent := fmt.Sprintf("%s%s %s", cursor, prompt, lipgloss.NewStyle().Foreground(styles.HintColor).Render(timeStr))
			if isSelected {
				items = append(items, styles.ModalSelectedStyle.Render(itemContent))
			} else {
				items = append(items, styles.ModalItemStyle.Render(itemContent))
			}
		}
		body = lipgloss.JoinVertical(lipgloss.Left, items...)
	}

	content := lipgloss.JoinVertical(lipgloss.Left, title, body)
	hint := lipgloss.NewStyle().
		Foreground(styles.HintColor).
		Width(styles.ContentWidth).
		PaddingTop(1).
		Render("↑/↓: navigate • ←/→: page • Enter: open • Esc: close")

	return lipgloss.JoinVertical(lipgloss.Left, content, hint)
}

func (m *Model) RenderShortcutsModal() string {
	title := styles.ModalTitleStyle.Render("Keyboard Shortcuts")

	shortcuts := []struct {
		key  string
		desc string
	}{
		{"Ctrl+C", "Quit Application"},
		{"Ctrl+N", "New Chat Session"},
		{"Ctrl+H", "View Chat History"},
		{"Ctrl+S", "View Shortcuts (this menu)"},
		{"Ctrl+J", "Insert Newline"},
		{`\help`, "List Commands"},
		{"y / n", "Answer an Approval Prompt"},
	}

	keyStyle := lipgloss.NewStyle().
		Foreground(styles.CurrentTheme.Accent).
		Bold(true).
		Width(12)
	descStyle := lipgloss.NewStyle().
		Foreground(styles.CurrentTheme.TextPrimary)

	items := make([]string, 0, len(shortcuts))
	for _, s := range shortcuts {
		line := fmt.Sprintf("%s %s", keyStyle.Render(s.key), descStyle.Render(s.desc))
		items = append(items, styles.ModalItemStyle.Render(line))
	}

	content := lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, items...))
	hint := lipgloss.NewStyle().
		Foreground(styles.HintColor).
		Width(styles.ContentWidth).
		PaddingTop(1).
		Render("Esc/Enter: close")

	return lipgloss.JoinVertical(lipgloss.Left, content, hint)
}

// RenderConfirmModal shows the pending approval prompt.
func (m *Model) RenderConfirmModal() string {
	if m.Confirm == nil {
		return ""
	}
	title, body := ConfirmParts(m.Confirm.Prompt)
	width := ModalWidth - 6

	return lipgloss.JoinVertical(lipgloss.Left,
		styles.ConfirmTitleStyle.Render(title),
		lipgloss.NewStyle().Width(width).Render(body),
		lipgloss.NewStyle().Foreground(styles.HintColor).PaddingTop(1).Render("y: allow • n: deny"),
	)
}

// ConfirmParts splits an executor confirmation prompt into the heading and
// the body shown under it, with the y/n question appended.
func ConfirmParts(prompt string) (title, body string) {
	prompt = strings.TrimSpace(prompt)
	title = "ACTION REQUIRED"
	if rest, ok := strings.CutPrefix(prompt, title); ok {
		prompt = strings.TrimSpace(rest)
	}
	if !strings.HasSuffix(prompt, "(y/n)") {
		prompt += " (y/n)"
	}
	return title, prompt
}

func (m *Model) RenderBottomBar() string {
	theme := styles.CurrentTheme

	badge := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(theme.Primary).
		Padding(0, 1).
		Render("AGENT")
	if m.Confirm != nil {
		badge = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#000000")).
			Background(theme.Accent).
			Padding(0, 1).
			Render("APPROVE?")
	}

	folders := lipgloss.NewStyle().
		Foreground(theme.TextSecondary).
		Render(fmt.Sprintf("%d folders", m.FolderCount))

	model := lipgloss.NewStyle().
		Foreground(theme.Primary).
		Render(TruncateRunes(m.ModelName, 30))

	contextPct := 0
	if m.ContextTokens > 0 && m.MaxContext > 0 {
		contextPct = int(float64(m.ContextTokens) / float64(m.MaxContext) * 100)
	}
	ctx := lipgloss.NewStyle().
		Foreground(styles.GaugeColor(contextPct)).
		Render(fmt.Sprintf("%d%% (%dk/%dk)", contextPct, m.ContextTokens/1000, m.MaxContext/1000))

	help := lipgloss.NewStyle().
		Foreground(styles.HintColor).
		Render("Help: ^S")

	leftSide := lipgloss.JoinHorizontal(lipgloss.Center, badge, "  ", folders, "  ", model)
	rightSide := lipgloss.JoinHorizontal(lipgloss.Center, ctx, "  ", help)

	availableWidth := m.WindowWidth - lipgloss.Width(leftSide) - lipgloss.Width(rightSide) - 2
	if availableWidth < 0 {
		availableWidth = 0
	}
	bar := lipgloss.JoinHorizontal(lipgloss.Center, leftSide, strings.Repeat(" ", availableWidth), rightSide)

	return lipgloss.NewStyle().
		Width(m.WindowWidth).
		BorderTop(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(theme.Border).
		Padding(0, 1).
		Render(bar)
}

func GetWelcomeScreen(width, height int) string {
	art := `
 ╭────────────────────────────────────────────────────────────────────╮
 │                                                                    │
 │    ___  ____  _____ _   ___        _____  ____  _  _______ ____    │
 │   / _ \|  _ \| ____| \ | \ \      / / _ \|  _ \| |/ / ____|  _ \   │
 │  | | | | |_) |  _| |  \| |\ \ /\ / / | | | |_) | ' /|  _| | |_) |  │
 │  | |_| |  __/| |___| |\  | \ V  V /| |_| |  _ <| . \| |___|  _ <   │
 │   \___/|_|   |_____|_| \_|  \_/\_/  \___/|_| \_\_|\_\_____|_| \_\  │
 │                                                                    │
 ╰────────────────────────────────────────────────────────────────────╯
`
	subtitle := `Your files, your folders. Type \add <path> to get started.`

	styledArt := styles.WelcomeArtStyle.Render(art)
	styledSubtitle := styles.WelcomeSubtitleStyle.Render(subtitle)

	content := lipgloss.JoinVertical(lipgloss.Center, styledArt, "", styledSubtitle)

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, content)
}

func (m *Model) UpdateViewport() {
	if len(m.Messages) == 0 && !m.Loading {
		m.Viewport.SetContent(GetWelcomeScreen(m.Viewport.Width, m.Viewport.Height))
		return
	}

	content := strings.Join(m.Messages, "\n\n")
	if m.Loading {
		statusText := " Thinking..."
		if m.Confirm != nil {
			statusText = " Waiting for approval..."
		} else if m.ExecutingTool != "" {
			statusText = fmt.Sprintf(" %s...", m.ExecutingTool)
		}

		loadingParts := []string{styles.AiLabelStyle.Render(AssistantLabel)}
		if len(m.ToolActions) > 0 {
			loadingParts = append(loadingParts, FormatToolActions(m.ToolActions))
		}
		loadingParts = append(loadingParts, fmt.Sprintf("%s%s", m.Spinner.View(), statusText))

		loadingMsg := strings.Join(loadingParts, "\n")
		if len(m.Messages) > 0 {
			content = content + "\n\n" + loadingMsg
		} else {
			content = loadingMsg
		}
	}
	m.Viewport.SetContent(content)
	m.Viewport.GotoBottom()
}

func (m *Model) View() string {
	inputWidth := m.WindowWidth - 4
	inputBox := styles.InputBoxStyle.Width(inputWidth).Render(m.TextInput.View())

	chatContent := lipgloss.JoinVertical(lipgloss.Center,
		styles.TitleStyle.Render("OPENWORKER"),
		"",
		m.Viewport.View(),
		"",
		inputBox,
	)
	chatArea := lipgloss.PlaceHorizontal(m.WindowWidth, lipgloss.Center, chatContent)
	content := lipgloss.JoinVertical(lipgloss.Left, chatArea, m.RenderBottomBar())

	var modal string
	switch {
	case m.Confirm != nil:
		modal = styles.ConfirmModalStyle.Width(ModalWidth).Render(m.RenderConfirmModal())
	case m.HistoryOpen:
		modal = styles.ModalStyle.Width(ModalWidth).Render(m.RenderHistorySelector())
	case m.ShortcutsOpen:
		modal = styles.ModalStyle.Width(ModalWidth).Render(m.RenderShortcutsModal())
	default:
		return content
	}

	return lipgloss.Place(m.WindowWidth, m.WindowHeight, lipgloss.Center, lipgloss.Center, modal)
}

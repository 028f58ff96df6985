package ui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"openworker/internal/models"
	"openworker/internal/tools"
)

// Sender delivers messages to the running program. *tea.Program satisfies it.
type Sender interface {
	Send(msg tea.Msg)
}

// Bridge connects the agent goroutine to the UI. It implements
// tools.Confirmer and provides the agent's tool hooks. Until a program is
// attached, notifications are dropped and confirmations are denied.
type Bridge struct {
	mu     sync.RWMutex
	sender Sender
}

var _ tools.Confirmer = (*Bridge)(nil)

func NewBridge() *Bridge { return &Bridge{} }

func (b *Bridge) Attach(s Sender) {
	b.mu.Lock()
	b.sender = s
	b.mu.Unlock()
}

func (b *Bridge) send(msg tea.Msg) bool {
	b.mu.RLock()
	s := b.sender
	b.mu.RUnlock()
	if s == nil {
		return false
	}
	s.Send(msg)
	return true
}

// Confirm shows the approval modal and blocks until the user answers or ctx
// is done.
func (b *Bridge) Confirm(ctx context.Context, prompt string) bool {
	b.mu.RLock()
	s := b.sender
	b.mu.RUnlock()
	if s == nil {
		return false
	}

	reply := make(chan bool, 1)
	// Send blocks until the event loop takes the message, so it must not
	// hold up cancellation.
	go s.Send(ConfirmRequestMsg{Prompt: prompt, Reply: reply})

	select {
	case ok := <-reply:
		return ok
	case <-ctx.Done():
		return false
	}
}

// ToolCall is the agent's OnToolCall hook.
func (b *Bridge) ToolCall(call models.ToolCall) {
	b.send(ToolCallMsg{Name: call.Name, Arguments: call.Arguments})
}

// ToolResult is the agent's OnToolResult hook.
func (b *Bridge) ToolResult(call models.ToolCall, result string) {
	b.send(ToolResultMsg{
		Name:    call.Name,
		Summary: tools.GenerateToolSummary(call.Name, call.Arguments, result),
	})
}

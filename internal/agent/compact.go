package agent

import (
	"fmt"
	"strings"

	"openworker/internal/models"
)

// Context window management
const (
	DefaultContextTokens = 80000 // budget before old tool results get truncated
	RecentMessagesKeep   = 6     // trailing messages never compacted
	CharsPerToken        = 4     // rough estimate
	TruncatedResultSize  = 500   // max chars kept from an old tool result
)

// EstimateTokens provides a rough token count estimate based on character count
func EstimateTokens(s string) int {
	return len(s) / CharsPerToken
}

func EstimateHistoryTokens(history []models.Message) int {
	total := 0
	for _, msg := range history {
		total += EstimateTokens(msg.Content)
		for _, tc := range msg.ToolCalls {
			total += EstimateTokens(tc.Name) + EstimateTokens(tc.Arguments)
		}
	}
	return total
}

// TruncateToolResult shortens a tool result while preserving useful info
func TruncateToolResult(result string) string {
	if len(result) <= TruncatedResultSize {
		return result
	}
	lines := strings.Count(result, "\n") + 1
	preview := result[:TruncatedResultSize]
	// Do not cut a multi-byte character in half.
	for len(preview) > 0 && preview[len(preview)-1]&0xC0 == 0x80 {
		preview = preview[:len(preview)-1]
	}
	if n := len(preview); n > 0 && preview[n-1] >= 0xC0 {
		preview = preview[:n-1]
	}
	return fmt.Sprintf("[tool result: %d lines] %s...", lines, strings.TrimSpace(preview))
}

// CompactHistory truncates old tool results once the history exceeds
// maxTokens. The system prompt and the most recent messages stay intact, and
// no message is dropped, so every tool call keeps its result.
func CompactHistory(history []models.Message, maxTokens int) []models.Message {
	if EstimateHistoryTokens(history) < maxTokens {
		return history
	}
	if len(history) <= RecentMessagesKeep+1 {
		return history
	}

	compacted := make([]models.Message, 0, len(history))
	compacted = append(compacted, history[0])

	middleEnd := len(history) - RecentMessagesKeep
	for _, msg := range history[1:middleEnd] {
		if msg.Role == models.RoleTool && len(msg.Content) > TruncatedResultSize {
			msg.Content = TruncateToolResult(msg.Content)
		}
		compacted = append(compacted, msg)
	}

	compacted = append(compacted, history[middleEnd:]...)
	return compacted
}

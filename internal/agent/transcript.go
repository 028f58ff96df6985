package agent

import (
	"database/sql"
	"log/slog"
	"strings"
	"sync"
	"time"

	"openworker/internal/db"
	"openworker/internal/logging"
	"openworker/internal/models"
)

// Transcript appends user and assistant messages to the chat tables. A chat
// row is created on the first user message of each session id.
type Transcript struct {
	db     *sql.DB
	model  string
	logger *slog.Logger

	mu      sync.Mutex
	chatIDs map[string]int64
}

func NewTranscript(conn *sql.DB, model string, logger *slog.Logger) *Transcript {
	return &Transcript{db: conn, model: model, logger: logging.OrDiscard(logger), chatIDs: map[string]int64{}}
}

// Record is an OnMessage hook. Persistence failures are logged and never
// interrupt the conversation.
func (t *Transcript) Record(sessionID string, msg models.Message) {
	if t == nil || t.db == nil {
		return
	}
	if msg.Role != models.RoleUser && msg.Role != models.RoleAssistant {
		return
	}
	if strings.TrimSpace(msg.Content) == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now().Unix()
	chatID, ok := t.chatIDs[sessionID]
	if !ok {
		if msg.Role != models.RoleUser {
			return
		}
		id, err := db.CreateChat(t.db, sessionID, now, t.model)
		if err != nil {
			t.logger.Warn("transcript.create_failed", "session", sessionID, "error", err)
			return
		}
		chatID = id
		t.chatIDs[sessionID] = id
	}

	if err := db.InsertDBMessage(t.db, chatID, msg.Role, msg.Content, now); err != nil {
		t.logger.Warn("transcript.insert_failed", "chat", chatID, "error", err)
		return
	}

	var err error
	if msg.Role == models.RoleUser {
		err = db.UpdateChatOnUser(t.db, chatID, now, t.model, msg.Content)
	} else {
		err = db.TouchChat(t.db, chatID, now)
	}
	if err != nil {
		t.logger.Warn("transcript.update_failed", "chat", chatID, "error", err)
	}
}

// ChatID returns the chat row for a session, if one was created.
func (t *Transcript) ChatID(sessionID string) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.chatIDs[sessionID]
	return id, ok
}

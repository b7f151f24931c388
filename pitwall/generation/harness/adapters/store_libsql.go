package adapters

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	ports "github.com/ZanzyTHEbar/pitwall/pitwall/generation/harness/ports"
)

// LibSQLConversationStore implements ConversationStore on the embedded libsql database.
type LibSQLConversationStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewLibSQLConversationStore creates a new LibSQL conversation store.
func NewLibSQLConversationStore(db *sql.DB) *LibSQLConversationStore {
	return &LibSQLConversationStore{db: db, now: time.Now}
}

// SaveTurn appends a conversation turn.
func (s *LibSQLConversationStore) SaveTurn(ctx context.Context, conversationID string, turn ports.Turn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = s.now()
	}

	turnJSON, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("failed to marshal turn: %w", err)
	}

	const query = `
		INSERT INTO conversation_turns (conversation_id, role, turn_data, created_at)
		VALUES (?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, conversationID, turn.Role, string(turnJSON), turn.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("failed to save turn: %w", err)
	}
	return nil
}

// LoadContext loads the last k turns for a conversation, oldest first.
func (s *LibSQLConversationStore) LoadContext(ctx context.Context, conversationID string, k int) ([]ports.Turn, error) {
	const query = `
		SELECT turn_data FROM conversation_turns
		WHERE conversation_id = ?
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, conversationID, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []ports.Turn
	for rows.Next() {
		var turnJSON string
		if err := rows.Scan(&turnJSON); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}

		var turn ports.Turn
		if err := json.Unmarshal([]byte(turnJSON), &turn); err != nil {
			return nil, fmt.Errorf("failed to unmarshal turn: %w", err)
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating turns: %w", err)
	}

	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// AppendToolArtifact records a capability result against the conversation.
func (s *LibSQLConversationStore) AppendToolArtifact(ctx context.Context, conversationID, name string, payload []byte) error {
	return s.SaveTurn(ctx, conversationID, ports.Turn{
		Role:      ports.RoleTool,
		Content:   fmt.Sprintf("%s: %s", name, payload),
		CreatedAt: s.now(),
	})
}

var _ ports.ConversationStore = (*LibSQLConversationStore)(nil)

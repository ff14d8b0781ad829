package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"chattrix/internal/domain"
)

type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

var _ domain.ConversationRepository = (*ConversationRepo)(nil)

// FindOrCreate returns the conversation for the unordered pair, creating it
// lazily on first contact. Operands are canonicalized to (min, max) so both
// call orders resolve to the same row; INSERT OR IGNORE keeps a concurrent
// create race harmless.
func (r *ConversationRepo) FindOrCreate(ctx context.Context, userA, userB int64) (*domain.Conversation, error) {
	if userA > userB {
		userA, userB = userB, userA
	}

	conv, err := r.getByPair(ctx, userA, userB)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		return conv, nil
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO conversations (user1_id, user2_id, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
	`, userA, userB); err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}

	conv, err = r.getByPair(ctx, userA, userB)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, fmt.Errorf("conversation for pair (%d, %d) missing after insert", userA, userB)
	}
	return conv, nil
}

func (r *ConversationRepo) SetLastMessage(ctx context.Context, conversationID, messageID int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE conversations
		SET last_message_id = ?, updated_at = ?
		WHERE id = ?
	`, messageID, at, conversationID)
	if err != nil {
		return fmt.Errorf("set last message: %w", err)
	}
	return nil
}

func (r *ConversationRepo) ListForUser(ctx context.Context, userID int64) ([]*domain.Conversation, error) {
	query := `
		SELECT id, user1_id, user2_id, last_message_id, updated_at
		FROM conversations
		WHERE user1_id = ? OR user2_id = ?
		ORDER BY updated_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var res []*domain.Conversation
	for rows.Next() {
		c := &domain.Conversation{}
		if err := rows.Scan(
			&c.ID,
			&c.User1ID,
			&c.User2ID,
			&c.LastMessageID,
			&c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r *ConversationRepo) getByPair(ctx context.Context, user1, user2 int64) (*domain.Conversation, error) {
	c := &domain.Conversation{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user1_id, user2_id, last_message_id, updated_at
		FROM conversations
		WHERE user1_id = ? AND user2_id = ?
	`, user1, user2).Scan(
		&c.ID,
		&c.User1ID,
		&c.User2ID,
		&c.LastMessageID,
		&c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}

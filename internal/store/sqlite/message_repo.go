package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"chattrix/internal/domain"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

const messageColumns = `id, sender_id, recipient_id, text, created_at, is_private, pinned, file_path, is_read`

func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	query := `
		INSERT INTO messages (sender_id, recipient_id, text, created_at, is_private, pinned, file_path, is_read)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := r.db.ExecContext(ctx, query,
		m.SenderID,
		m.RecipientID,
		m.Text,
		m.CreatedAt,
		m.IsPrivate,
		m.Pinned,
		m.FilePath,
		m.IsRead,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	m.ID = id
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = ?`
	m := &domain.Message{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&m.ID,
		&m.SenderID,
		&m.RecipientID,
		&m.Text,
		&m.CreatedAt,
		&m.IsPrivate,
		&m.Pinned,
		&m.FilePath,
		&m.IsRead,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

func (r *MessageRepo) SetPinned(ctx context.Context, id int64, pinned bool) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE messages SET pinned = ? WHERE id = ?`, pinned, id); err != nil {
		return fmt.Errorf("set pinned: %w", err)
	}
	return nil
}

func (r *MessageRepo) ListPublic(ctx context.Context, limit int) ([]*domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE recipient_id IS NULL AND is_private = 0
		ORDER BY created_at DESC
		LIMIT ?
	`
	return r.list(ctx, query, limit)
}

func (r *MessageRepo) ListPinned(ctx context.Context) ([]*domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE pinned = 1 AND is_private = 0
		ORDER BY created_at DESC
	`
	return r.list(ctx, query)
}

func (r *MessageRepo) ListBetween(ctx context.Context, userA, userB int64, limit int) ([]*domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE is_private = 1
		  AND ((sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?))
		ORDER BY created_at DESC
		LIMIT ?
	`
	return r.list(ctx, query, userA, userB, userB, userA, limit)
}

func (r *MessageRepo) MarkRead(ctx context.Context, senderID, recipientID int64) error {
	query := `
		UPDATE messages
		SET is_read = 1
		WHERE sender_id = ? AND recipient_id = ? AND is_read = 0
	`
	if _, err := r.db.ExecContext(ctx, query, senderID, recipientID); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

func (r *MessageRepo) list(ctx context.Context, query string, args ...any) ([]*domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var res []*domain.Message
	for rows.Next() {
		m := &domain.Message{}
		if err := rows.Scan(
			&m.ID,
			&m.SenderID,
			&m.RecipientID,
			&m.Text,
			&m.CreatedAt,
			&m.IsPrivate,
			&m.Pinned,
			&m.FilePath,
			&m.IsRead,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

package postgres

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open opens a PostgreSQL database using the pgx stdlib driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate runs idempotent DDL migrations on PostgreSQL.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id              BIGSERIAL PRIMARY KEY,
			username        VARCHAR(50) UNIQUE NOT NULL,
			display_name    VARCHAR(100) NOT NULL DEFAULT '',
			hashed_password VARCHAR(255) NOT NULL,
			is_admin        BOOLEAN NOT NULL DEFAULT FALSE,
			avatar          VARCHAR(255) NOT NULL DEFAULT '',
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id           BIGSERIAL PRIMARY KEY,
			sender_id    BIGINT NOT NULL REFERENCES users(id),
			recipient_id BIGINT REFERENCES users(id),
			text         TEXT NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			is_private   BOOLEAN NOT NULL DEFAULT FALSE,
			pinned       BOOLEAN NOT NULL DEFAULT FALSE,
			file_path    TEXT,
			is_read      BOOLEAN NOT NULL DEFAULT FALSE
		);`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id              BIGSERIAL PRIMARY KEY,
			user1_id        BIGINT NOT NULL REFERENCES users(id),
			user2_id        BIGINT NOT NULL REFERENCES users(id),
			last_message_id BIGINT,
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (user1_id, user2_id)
		);`,
		`CREATE TABLE IF NOT EXISTS push_subscriptions (
			id         BIGSERIAL PRIMARY KEY,
			user_id    BIGINT NOT NULL REFERENCES users(id),
			endpoint   TEXT NOT NULL,
			p256dh_key TEXT NOT NULL,
			auth_key   TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender_id);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_recipient ON messages(recipient_id);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages(created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_pinned ON messages(pinned);`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_updated_at ON conversations(updated_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_push_subscriptions_user ON push_subscriptions(user_id);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	return nil
}

package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// InboxRepository 站内通知收件箱表
type InboxRepository struct {
	db *pgxpool.Pool
}

func NewInboxRepository(db *pgxpool.Pool) *InboxRepository {
	return &InboxRepository{db: db}
}

func (r *InboxRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS inbox_notifications (
			id          BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			envelope_id TEXT NOT NULL UNIQUE,
			user_id     TEXT NOT NULL,
			title       TEXT NOT NULL,
			body        TEXT NOT NULL,
			is_read     BOOLEAN NOT NULL DEFAULT FALSE,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func (r *InboxRepository) Insert(ctx context.Context, envelopeID, userID, title, body string) error {
	query := `
        INSERT INTO inbox_notifications (envelope_id, user_id, title, body, is_read, created_at)
        VALUES ($1, $2, $3, $4, false, NOW())
    `
	_, err := r.db.Exec(ctx, query, envelopeID, userID, title, body)
	return err
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codezest-academy/codezest-notifications/internal/provider"
)

// ContactRepository resolves opaque user ids to delivery addresses. The
// user_contacts table is written by an upstream account service; this
// repository only reads it.
type ContactRepository struct {
	db *pgxpool.Pool
}

var _ provider.ContactResolver = (*ContactRepository)(nil)

func NewContactRepository(db *pgxpool.Pool) *ContactRepository {
	return &ContactRepository{db: db}
}

func (r *ContactRepository) ResolveEmail(ctx context.Context, userID string) (string, error) {
	return r.resolve(ctx, userID, "email")
}

func (r *ContactRepository) ResolvePhone(ctx context.Context, userID string) (string, error) {
	return r.resolve(ctx, userID, "phone")
}

func (r *ContactRepository) resolve(ctx context.Context, userID, column string) (string, error) {
	// column 只会是 email / phone，不存在注入风险
	query := fmt.Sprintf(
		`SELECT COALESCE(%s, '') FROM user_contacts WHERE user_id = $1`, column)

	var value string
	err := r.db.QueryRow(ctx, query, userID).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", provider.ErrUnknownRecipient
	}
	if err != nil {
		return "", fmt.Errorf("query user contact: %w", err)
	}
	if value == "" {
		return "", provider.ErrUnknownRecipient
	}
	return value, nil
}

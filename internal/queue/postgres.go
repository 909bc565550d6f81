package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codezest-academy/codezest-notifications/internal/model"
)

// Postgres 持久化队列实现。每个操作都是单条语句（或单事务），
// 出队用 FOR UPDATE SKIP LOCKED 保证同一任务不会被两个 worker 同时租用。
type Postgres struct {
	db  *pgxpool.Pool
	cfg Config
}

var _ Queue = (*Postgres)(nil)

func NewPostgres(db *pgxpool.Pool, cfg Config) *Postgres {
	return &Postgres{db: db, cfg: cfg}
}

const jobColumns = `id, user_id, channel, title, body, priority, status,
       attempt_count, COALESCE(failure_reason, ''), created_at, last_attempt_at`

// EnsureSchema creates the job table when it does not exist yet.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS notification_jobs (
			id              UUID PRIMARY KEY,
			enqueued_seq    BIGINT GENERATED ALWAYS AS IDENTITY,
			user_id         TEXT NOT NULL,
			channel         TEXT NOT NULL,
			title           TEXT NOT NULL,
			body            TEXT NOT NULL,
			priority        INT NOT NULL,
			status          TEXT NOT NULL,
			attempt_count   INT NOT NULL DEFAULT 0,
			failure_reason  TEXT,
			visible_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			leased_until    TIMESTAMPTZ,
			failed_at       TIMESTAMPTZ,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_attempt_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_notification_jobs_claim
			ON notification_jobs (priority, enqueued_seq)
			WHERE status IN ('PENDING', 'IN_FLIGHT');
	`)
	if err != nil {
		return fmt.Errorf("%w: ensure schema: %v", ErrUnavailable, err)
	}
	return nil
}

func (p *Postgres) Enqueue(ctx context.Context, env *model.Envelope) error {
	query := `
		INSERT INTO notification_jobs
			(id, user_id, channel, title, body, priority, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := p.db.Exec(ctx, query,
		env.ID,
		env.UserID,
		string(env.Channel),
		env.Title,
		env.Body,
		int(env.Priority),
		string(env.Status),
		env.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: enqueue: %v", ErrUnavailable, err)
	}
	return nil
}

// Dequeue claims the next visible job. The inner SELECT also picks up
// IN_FLIGHT jobs whose lease expired: an abandoned job is retried exactly
// like a retryable failure.
func (p *Postgres) Dequeue(ctx context.Context) (*model.Envelope, error) {
	query := `
		UPDATE notification_jobs SET
			status          = 'IN_FLIGHT',
			attempt_count   = attempt_count + 1,
			last_attempt_at = NOW(),
			leased_until    = NOW() + make_interval(secs => $1)
		WHERE id = (
			SELECT id FROM notification_jobs
			WHERE (status = 'PENDING' AND visible_at <= NOW())
			   OR (status = 'IN_FLIGHT' AND leased_until <= NOW())
			ORDER BY priority ASC, enqueued_seq ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns

	env, err := scanEnvelope(p.db.QueryRow(ctx, query, p.cfg.Lease.Seconds()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("%w: dequeue: %v", ErrUnavailable, err)
	}
	return env, nil
}

func (p *Postgres) Acknowledge(ctx context.Context, id uuid.UUID) error {
	res, err := p.db.Exec(ctx, `
		UPDATE notification_jobs
		SET status = 'DELIVERED', leased_until = NULL, failure_reason = NULL
		WHERE id = $1 AND status IN ('IN_FLIGHT', 'PENDING')
	`, id)
	if err != nil {
		return fmt.Errorf("%w: acknowledge: %v", ErrUnavailable, err)
	}
	if res.RowsAffected() > 0 {
		return nil
	}

	// 0 行受影响：要么已经 DELIVERED（幂等，直接返回），要么不存在
	var status string
	err = p.db.QueryRow(ctx,
		`SELECT status FROM notification_jobs WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: acknowledge: %v", ErrUnavailable, err)
	}
	if status == string(model.StatusDelivered) {
		return nil
	}
	return ErrNotFound
}

// Fail reschedules or dead-letters in one atomic statement so that a
// concurrent lease expiry cannot produce a lost update.
func (p *Postgres) Fail(ctx context.Context, id uuid.UUID, retryable bool, reason string) error {
	query := `
		UPDATE notification_jobs SET
			failure_reason = $2,
			status = CASE WHEN $3::boolean AND attempt_count < $4
			              THEN 'PENDING' ELSE 'FAILED_TERMINAL' END,
			visible_at = CASE WHEN $3::boolean AND attempt_count < $4
			              THEN NOW() + make_interval(secs => LEAST($5::float8 * power(2, attempt_count), $6::float8))
			              ELSE visible_at END,
			failed_at = CASE WHEN $3::boolean AND attempt_count < $4
			              THEN NULL ELSE NOW() END,
			leased_until = NULL
		WHERE id = $1 AND status = 'IN_FLIGHT'
	`
	res, err := p.db.Exec(ctx, query, id, reason, retryable,
		p.cfg.MaxAttempts, p.cfg.BackoffBase.Seconds(), p.cfg.BackoffCap.Seconds())
	if err != nil {
		return fmt.Errorf("%w: fail: %v", ErrUnavailable, err)
	}
	if res.RowsAffected() == 0 {
		var status string
		err = p.db.QueryRow(ctx,
			`SELECT status FROM notification_jobs WHERE id = $1`, id).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("%w: fail: %v", ErrUnavailable, err)
		}
		if status == string(model.StatusFailedTerminal) {
			return nil // already dead-lettered
		}
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) Cancel(ctx context.Context, id uuid.UUID) error {
	res, err := p.db.Exec(ctx,
		`DELETE FROM notification_jobs WHERE id = $1 AND status = 'PENDING'`, id)
	if err != nil {
		return fmt.Errorf("%w: cancel: %v", ErrUnavailable, err)
	}
	if res.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	err = p.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM notification_jobs WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("%w: cancel: %v", ErrUnavailable, err)
	}
	if exists {
		return ErrNotCancelable
	}
	return ErrNotFound
}

func (p *Postgres) DeadLetters(ctx context.Context, limit int) ([]*model.Envelope, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM notification_jobs
		WHERE status = 'FAILED_TERMINAL'
		ORDER BY failed_at DESC
		LIMIT $1
	`
	rows, err := p.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: dead letters: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var out []*model.Envelope
	for rows.Next() {
		env, err := scanEnvelope(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: dead letters: %v", ErrUnavailable, err)
		}
		out = append(out, env)
	}
	return out, rows.Err()
}

func (p *Postgres) Replay(ctx context.Context, id uuid.UUID) error {
	res, err := p.db.Exec(ctx, `
		UPDATE notification_jobs SET
			status = 'PENDING',
			attempt_count = 0,
			failure_reason = NULL,
			failed_at = NULL,
			visible_at = NOW()
		WHERE id = $1 AND status = 'FAILED_TERMINAL'
	`, id)
	if err != nil {
		return fmt.Errorf("%w: replay: %v", ErrUnavailable, err)
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanEnvelope(row pgx.Row) (*model.Envelope, error) {
	var (
		env      model.Envelope
		channel  string
		status   string
		priority int
	)
	err := row.Scan(
		&env.ID,
		&env.UserID,
		&channel,
		&env.Title,
		&env.Body,
		&priority,
		&status,
		&env.AttemptCount,
		&env.FailureReason,
		&env.CreatedAt,
		&env.LastAttemptAt,
	)
	if err != nil {
		return nil, err
	}
	env.Channel = model.Channel(channel)
	env.Priority = model.Priority(priority)
	env.Status = model.Status(status)
	return &env, nil
}

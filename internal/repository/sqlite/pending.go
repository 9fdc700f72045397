package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/biid/pointterminal/internal/apperrors"
	"github.com/biid/pointterminal/internal/models"
)

type PendingRepo struct {
	DB DBTX
}

func (r *PendingRepo) Append(ctx context.Context, record models.PendingSyncRecord) error {
	const appendRecord = `
	INSERT INTO pending_transactions (
		id, idempotency_key, customer_id, mode,
		gross_amount, points_redeemed, accrual_enabled, net_amount, points_earned,
		grant_reason, retry_count, last_attempt_at, created_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (idempotency_key) DO NOTHING
	`

	s := record.Session

	var lastAttempt any
	if !record.LastAttemptAt.IsZero() {
		lastAttempt = record.LastAttemptAt
	}

	_, err := r.DB.ExecContext(ctx, appendRecord,
		record.ID, s.IdempotencyKey, s.CustomerID, s.Mode,
		s.GrossAmount, s.PointsRedeemed, s.AccrualEnabled, s.NetAmount, s.PointsEarned,
		s.GrantReason, record.RetryCount, lastAttempt, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PendingRepo) List(ctx context.Context, limit int) ([]models.PendingSyncRecord, error) {
	const listRecords = `
	SELECT id, idempotency_key, customer_id, mode,
	       gross_amount, points_redeemed, accrual_enabled, net_amount, points_earned,
	       grant_reason, retry_count, last_attempt_at, created_at
	FROM pending_transactions
	ORDER BY id ASC
	LIMIT $1
	`

	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}

	rows, err := r.DB.QueryContext(ctx, listRecords, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close() // nolint:errcheck

	var records []models.PendingSyncRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return records, nil
}

func (r *PendingRepo) MarkAttempt(ctx context.Context, id string, at time.Time) error {
	const markAttempt = `
	UPDATE pending_transactions
	SET retry_count = retry_count + 1, last_attempt_at = $1
	WHERE id = $2
	`

	result, err := r.DB.ExecContext(ctx, markAttempt, at, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return requireAffected(result)
}

func (r *PendingRepo) Remove(ctx context.Context, id string) error {
	const removeRecord = `DELETE FROM pending_transactions WHERE id = $1`

	result, err := r.DB.ExecContext(ctx, removeRecord, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return requireAffected(result)
}

func (r *PendingRepo) Count(ctx context.Context) (int, error) {
	const countRecords = `SELECT COUNT(*) FROM pending_transactions`

	var count int
	err := r.DB.QueryRowContext(ctx, countRecords).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return count, nil
}

func scanRecord(rows *sql.Rows) (models.PendingSyncRecord, error) {
	var record models.PendingSyncRecord
	var lastAttempt sql.NullTime

	err := rows.Scan(
		&record.ID, &record.Session.IdempotencyKey, &record.Session.CustomerID, &record.Session.Mode,
		&record.Session.GrossAmount, &record.Session.PointsRedeemed, &record.Session.AccrualEnabled,
		&record.Session.NetAmount, &record.Session.PointsEarned,
		&record.Session.GrantReason, &record.RetryCount, &lastAttempt, &record.CreatedAt,
	)
	if err != nil {
		return record, err
	}

	if lastAttempt.Valid {
		record.LastAttemptAt = lastAttempt.Time
	}
	record.Session.Status = models.SessionStatusQueued

	return record, nil
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return apperrors.ErrPendingNotFound
	}
	return nil
}

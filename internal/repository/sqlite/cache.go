package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/biid/pointterminal/internal/apperrors"
	"github.com/biid/pointterminal/internal/models"
)

type CacheRepo struct {
	DB DBTX
}

func (r *CacheRepo) Get(ctx context.Context, endpoint string, key string) (models.CacheEntry, error) {
	const getEntry = `
	SELECT endpoint, cache_key, payload, stored_at FROM cache_entries
	WHERE endpoint = $1 AND cache_key = $2
	`

	var entry models.CacheEntry
	err := r.DB.QueryRowContext(ctx, getEntry, endpoint, key).
		Scan(&entry.Endpoint, &entry.Key, &entry.Payload, &entry.StoredAt)

	switch {
	case err == nil:
		return entry, nil
	case errors.Is(err, sql.ErrNoRows):
		return entry, apperrors.ErrCacheMiss
	default:
		return entry, fmt.Errorf("db error: %w", err)
	}
}

func (r *CacheRepo) Put(ctx context.Context, endpoint string, key string, payload []byte, storedAt time.Time) error {
	const putEntry = `
	INSERT INTO cache_entries (endpoint, cache_key, payload, stored_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (endpoint, cache_key) DO UPDATE SET payload = $3, stored_at = $4
	`

	_, err := r.DB.ExecContext(ctx, putEntry, endpoint, key, payload, storedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/biid/pointterminal/internal/apperrors"
)

type SettingsRepo struct {
	DB DBTX
}

func (r *SettingsRepo) Get(ctx context.Context, key string) (string, error) {
	const getSetting = `SELECT value FROM terminal_settings WHERE key = $1`

	var value string
	err := r.DB.QueryRowContext(ctx, getSetting, key).Scan(&value)

	switch {
	case err == nil:
		return value, nil
	case errors.Is(err, sql.ErrNoRows):
		return "", apperrors.ErrSettingNotFound
	default:
		return "", fmt.Errorf("db error: %w", err)
	}
}

func (r *SettingsRepo) Set(ctx context.Context, key string, value string) error {
	const setSetting = `
	INSERT INTO terminal_settings (key, value, updated_at)
	VALUES ($1, $2, $3)
	ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = $3
	`

	_, err := r.DB.ExecContext(ctx, setSetting, key, value, time.Now())
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

package repository

import (
	"context"
	"time"

	"github.com/biid/pointterminal/internal/models"
)

// Pending transaction queue interface.
// The terminal side only appends; the sync agent is the only remover.
// Record identity is the idempotency key, so a duplicate append is a no-op.
type PendingRepo interface {
	// Append the record to the queue
	// Appending a record whose idempotency key is already queued must do nothing
	Append(ctx context.Context, record models.PendingSyncRecord) error

	// List pending records oldest-first. limit <= 0 means no limit
	List(ctx context.Context, limit int) ([]models.PendingSyncRecord, error)

	// MarkAttempt increments the retry counter and stores the attempt time
	// Must return apperrors.ErrPendingNotFound if the record is gone
	MarkAttempt(ctx context.Context, id string, at time.Time) error

	// Remove the record from the queue
	// Must return apperrors.ErrPendingNotFound if the record is gone
	Remove(ctx context.Context, id string) error

	Count(ctx context.Context) (int, error)
}

// Cached read-endpoint responses.
type CacheRepo interface {
	// Get must return apperrors.ErrCacheMiss when no entry exists
	Get(ctx context.Context, endpoint string, key string) (models.CacheEntry, error)

	// Put stores or replaces the entry for (endpoint, key)
	Put(ctx context.Context, endpoint string, key string, payload []byte, storedAt time.Time) error
}

// Terminal-local settings (operator pin hash, countdown configuration).
type SettingsRepo interface {
	// Get must return apperrors.ErrSettingNotFound when the key is absent
	Get(ctx context.Context, key string) (string, error)

	Set(ctx context.Context, key string, value string) error
}

type Storage interface {
	Pending() PendingRepo
	Cache() CacheRepo
	Settings() SettingsRepo
}

// Package settings manages terminal-local configuration values, most
// importantly the operator PIN that unlocks the terminal after boot.
package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/biid/pointterminal/internal/apperrors"
	"github.com/biid/pointterminal/internal/repository"
)

const (
	keyOperatorPIN     = "operator_pin_hash"
	keyIdleTimeout     = "idle_timeout"
	keyIdentifyTimeout = "identify_timeout"
)

type Service struct {
	store repository.SettingsRepo
}

func New(store repository.SettingsRepo) *Service {
	return &Service{store: store}
}

// SetPIN stores a bcrypt hash of the operator PIN. The plain PIN is never
// persisted.
func (s *Service) SetPIN(ctx context.Context, pin string) error {
	if pin == "" {
		return fmt.Errorf("operator pin must not be empty")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash operator pin: %w", err)
	}

	if err := s.store.Set(ctx, keyOperatorPIN, string(hash)); err != nil {
		return fmt.Errorf("failed to store operator pin: %w", err)
	}
	return nil
}

// VerifyPIN checks the entered PIN against the stored hash. A terminal with
// no stored PIN cannot be unlocked by any entry.
func (s *Service) VerifyPIN(ctx context.Context, pin string) error {
	hash, err := s.store.Get(ctx, keyOperatorPIN)
	switch {
	case errors.Is(err, apperrors.ErrSettingNotFound):
		return apperrors.ErrPINMismatch
	case err != nil:
		return fmt.Errorf("failed to load operator pin: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) != nil {
		return apperrors.ErrPINMismatch
	}
	return nil
}

// SetIdleTimeout persists the idle countdown so it survives restarts.
func (s *Service) SetIdleTimeout(ctx context.Context, d time.Duration) error {
	return s.setDuration(ctx, keyIdleTimeout, d)
}

// IdleTimeout returns the stored idle countdown, or fallback when none is set.
func (s *Service) IdleTimeout(ctx context.Context, fallback time.Duration) (time.Duration, error) {
	return s.duration(ctx, keyIdleTimeout, fallback)
}

// SetIdentifyTimeout persists the identification read window.
func (s *Service) SetIdentifyTimeout(ctx context.Context, d time.Duration) error {
	return s.setDuration(ctx, keyIdentifyTimeout, d)
}

// IdentifyTimeout returns the stored read window, or fallback when none is set.
func (s *Service) IdentifyTimeout(ctx context.Context, fallback time.Duration) (time.Duration, error) {
	return s.duration(ctx, keyIdentifyTimeout, fallback)
}

func (s *Service) setDuration(ctx context.Context, key string, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("countdown duration must be positive")
	}
	if err := s.store.Set(ctx, key, d.String()); err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}

func (s *Service) duration(ctx context.Context, key string, fallback time.Duration) (time.Duration, error) {
	value, err := s.store.Get(ctx, key)
	switch {
	case errors.Is(err, apperrors.ErrSettingNotFound):
		return fallback, nil
	case err != nil:
		return 0, fmt.Errorf("failed to load %s: %w", key, err)
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("malformed %s setting %q: %w", key, value, err)
	}
	return d, nil
}

// HasPIN reports whether an operator PIN has been provisioned.
func (s *Service) HasPIN(ctx context.Context) (bool, error) {
	_, err := s.store.Get(ctx, keyOperatorPIN)
	switch {
	case errors.Is(err, apperrors.ErrSettingNotFound):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

package apperrors

import (
	"errors"
)

var (
	ErrAmountInvalid    = errors.New("amount must be greater than zero")
	ErrRedeemExceedsMax = errors.New("points redeemed exceed redeemable maximum")

	ErrCustomerNotFound = errors.New("customer not found")
	ErrCodeUnreadable   = errors.New("identification code could not be read")
	ErrUnknownMethod    = errors.New("unknown identification method")

	ErrInvalidTransition = errors.New("action not allowed in current terminal state")
	ErrNoActiveSession   = errors.New("no active transaction session")

	ErrPendingNotFound = errors.New("pending transaction not found")
	ErrCacheMiss       = errors.New("cache entry not found")
	ErrSettingNotFound = errors.New("terminal setting not found")

	ErrPINMismatch = errors.New("operator pin does not match")
)

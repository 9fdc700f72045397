package models

import (
	"time"
)

const (
	SessionStatusDraft      = "DRAFT"
	SessionStatusConfirmed  = "CONFIRMED"
	SessionStatusProcessing = "PROCESSING"
	SessionStatusCompleted  = "COMPLETED"
	SessionStatusFailed     = "FAILED"
	SessionStatusQueued     = "QUEUED"
)

const (
	ModePayment     = "payment"
	ModePointsGrant = "points_grant"
)

const (
	GrantReasonPurchase = "purchase"
	GrantReasonGift     = "gift"
	GrantReasonBonus    = "bonus"
	GrantReasonOther    = "other"
)

// TransactionSession is the draft of a single customer interaction. It is
// owned exclusively by the terminal state machine until it terminates or is
// handed to the offline queue.
type TransactionSession struct {
	CustomerID     string
	Mode           string
	GrossAmount    int64
	PointsRedeemed int64
	AccrualEnabled bool
	NetAmount      int64
	PointsEarned   int64
	GrantReason    string

	// IdempotencyKey is generated once, on first entry to processing, and
	// stays stable across retries of the same attempt.
	IdempotencyKey string

	Status    string
	CreatedAt time.Time
}

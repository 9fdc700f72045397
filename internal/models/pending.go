package models

import (
	"time"
)

// PendingSyncRecord is a durable snapshot of a queued session. Records are
// created when the processor cannot get a definite answer from the ledger and
// are removed only after the sync agent receives an acknowledgment for the
// record's idempotency key.
type PendingSyncRecord struct {
	// ID is a ULID, so listing by id yields drain order.
	ID string

	Session TransactionSession

	RetryCount    int
	LastAttemptAt time.Time
	CreatedAt     time.Time
}

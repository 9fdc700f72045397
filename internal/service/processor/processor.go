// Package processor submits finalized transaction sessions to the remote
// ledger. It is the terminal's only suspending operation.
package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/biid/pointterminal/internal/logger"
	"github.com/biid/pointterminal/internal/models"
	"github.com/biid/pointterminal/internal/repository"
	"github.com/biid/pointterminal/internal/service/ledgerapi"
)

// Outcome codes. A timeout is ambiguous: the ledger may have applied the
// submission, so timed-out sessions are queued for the sync agent. A
// rejection is definite and is never queued.
const (
	OutcomeCompleted = "completed"
	OutcomeRejected  = "rejected"
	OutcomeTimeout   = "timeout"
)

const DefaultDeadline = 5 * time.Second

type Outcome struct {
	Code          string
	TransactionID string
	BalanceAfter  int64
	Reason        string

	// Queued is set when the session was handed to the offline queue.
	Queued bool
}

type ledgerClient interface {
	InitiatePayment(ctx context.Context, customerID string, amount int64) (string, error)
	FinalizePayment(ctx context.Context, req ledgerapi.FinalizePaymentRequest) (ledgerapi.PaymentResult, error)
	GrantPoints(ctx context.Context, req ledgerapi.GrantPointsRequest) (ledgerapi.GrantResult, error)
	PaymentStatus(ctx context.Context, transactionID string) (string, error)
}

type Config struct {
	// Deadline is the hard submission timeout. Zero means DefaultDeadline.
	Deadline time.Duration
}

type Processor struct {
	deadline time.Duration
	client   ledgerClient
	pending  repository.PendingRepo
	logger   logger.Logger
}

func New(cfg Config, client ledgerClient, pending repository.PendingRepo, logger logger.Logger) *Processor {
	deadline := cfg.Deadline
	if deadline <= 0 {
		deadline = DefaultDeadline
	}

	return &Processor{
		deadline: deadline,
		client:   client,
		pending:  pending,
		logger:   logger,
	}
}

// Submit settles the session against the ledger. The session must carry its
// idempotency key; the ledger is required to apply a key at most once, so
// invoking Submit twice with the same key never credits or debits twice.
func (p *Processor) Submit(ctx context.Context, session models.TransactionSession) (Outcome, error) {
	if session.IdempotencyKey == "" {
		return Outcome{}, fmt.Errorf("session has no idempotency key")
	}

	ctx, cancel := context.WithTimeout(ctx, p.deadline)
	defer cancel()

	var outcome Outcome
	var err error
	switch session.Mode {
	case models.ModePointsGrant:
		outcome, err = p.submitGrant(ctx, session)
	default:
		outcome, err = p.submitPayment(ctx, session)
	}

	switch {
	case err == nil:
		outcome.Code = OutcomeCompleted
		p.logger.Info("Submission completed",
			"idempotency_key", session.IdempotencyKey, "transaction_id", outcome.TransactionID)
		return outcome, nil

	case !ledgerapi.Ambiguous(err):
		p.logger.Warn("Ledger rejected submission",
			"idempotency_key", session.IdempotencyKey, "error", err)
		return Outcome{Code: OutcomeRejected, Reason: rejectionReason(err)}, nil

	default:
		return p.queue(ctx, session, err)
	}
}

// PollStatus asks the ledger for the outcome of an earlier payment session.
func (p *Processor) PollStatus(ctx context.Context, transactionID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.deadline)
	defer cancel()

	return p.client.PaymentStatus(ctx, transactionID)
}

func (p *Processor) submitPayment(ctx context.Context, session models.TransactionSession) (Outcome, error) {
	transactionID, err := p.client.InitiatePayment(ctx, session.CustomerID, session.NetAmount)
	if err != nil {
		return Outcome{}, err
	}

	result, err := p.client.FinalizePayment(ctx, ledgerapi.FinalizePaymentRequest{
		TransactionID:  transactionID,
		CustomerID:     session.CustomerID,
		GrossAmount:    session.GrossAmount,
		PointsRedeemed: session.PointsRedeemed,
		PointsEarned:   session.PointsEarned,
		IdempotencyKey: session.IdempotencyKey,
	})
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{TransactionID: result.TransactionID, BalanceAfter: result.BalanceAfter}, nil
}

func (p *Processor) submitGrant(ctx context.Context, session models.TransactionSession) (Outcome, error) {
	result, err := p.client.GrantPoints(ctx, ledgerapi.GrantPointsRequest{
		CustomerID:     session.CustomerID,
		Points:         session.PointsEarned,
		Reason:         session.GrantReason,
		IdempotencyKey: session.IdempotencyKey,
	})
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{BalanceAfter: result.BalanceAfter}, nil
}

// queue hands an ambiguously-failed session to the offline queue. Appending
// under an already-queued idempotency key is a no-op, so a retried timeout
// cannot duplicate the record. The append runs on a fresh context: the
// submission deadline has usually already expired.
func (p *Processor) queue(ctx context.Context, session models.TransactionSession, cause error) (Outcome, error) {
	session.Status = models.SessionStatusQueued

	record := models.PendingSyncRecord{
		ID:        ulid.Make().String(),
		Session:   session,
		CreatedAt: time.Now(),
	}

	appendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()

	if err := p.pending.Append(appendCtx, record); err != nil {
		p.logger.Error("Failed to queue timed-out submission",
			"idempotency_key", session.IdempotencyKey, "error", errors.Join(cause, err))
		return Outcome{Code: OutcomeTimeout, Reason: rejectionReason(cause)},
			fmt.Errorf("failed to queue pending transaction: %w", err)
	}

	p.logger.Warn("Submission timed out, queued for sync",
		"idempotency_key", session.IdempotencyKey, "record_id", record.ID, "error", cause)
	return Outcome{Code: OutcomeTimeout, Reason: rejectionReason(cause), Queued: true}, nil
}

func rejectionReason(err error) string {
	var lerr *ledgerapi.Error
	if errors.As(err, &lerr) && lerr.Err != nil {
		return lerr.Err.Error()
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

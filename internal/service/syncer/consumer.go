package syncer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/biid/pointterminal/internal/logger"
	"github.com/biid/pointterminal/internal/models"
	"github.com/biid/pointterminal/internal/repository"
	"github.com/biid/pointterminal/internal/service/processor"
)

type Consumer struct {
	countWorkers int

	// When a replay times out the ledger is still unreachable. Workers skip
	// the rest of the batch until holdUntil so a dead link does not burn one
	// full submission deadline per queued record.
	holdUntil atomic.Int64
	holdFor   time.Duration

	submitter  submitter
	pending    repository.PendingRepo
	onRejected func(record models.PendingSyncRecord, reason string)
	logger     logger.Logger
}

func (c *Consumer) Consume(ctx context.Context, in <-chan models.PendingSyncRecord) <-chan struct{} {
	idleStopped := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < c.countWorkers; i++ {
		wg.Add(1)
		go func() {
			c.worker(ctx, in)
			wg.Done()
		}()
	}

	go func() {
		defer close(idleStopped)
		wg.Wait()
		c.logger.Debug("Drain consumer stopped")
	}()

	return idleStopped
}

func (c *Consumer) worker(ctx context.Context, in <-chan models.PendingSyncRecord) {
	for {
		select {
		case <-ctx.Done():
			return

		case record, ok := <-in:
			if !ok {
				c.logger.Debug("Drain worker stopped, input channel closed")
				return
			}

			if time.Now().UnixNano() < c.holdUntil.Load() {
				c.logger.Debug("Ledger link held down, skipping record", "record_id", record.ID)
				continue
			}

			c.drainOne(ctx, record)
		}
	}
}

func (c *Consumer) drainOne(ctx context.Context, record models.PendingSyncRecord) {
	outcome, err := c.submitter.Submit(ctx, record.Session)
	if err != nil {
		c.logger.Error("Failed to replay queued record", "record_id", record.ID, "error", err)
		c.markAttempt(ctx, record)
		return
	}

	switch outcome.Code {
	case processor.OutcomeCompleted:
		if err := c.pending.Remove(ctx, record.ID); err != nil {
			c.logger.Error("Failed to remove drained record", "record_id", record.ID, "error", err)
			return
		}
		c.logger.Info("Queued record drained",
			"record_id", record.ID,
			"idempotency_key", record.Session.IdempotencyKey,
			"transaction_id", outcome.TransactionID)

	case processor.OutcomeRejected:
		if err := c.pending.Remove(ctx, record.ID); err != nil {
			c.logger.Error("Failed to remove rejected record", "record_id", record.ID, "error", err)
			return
		}
		c.logger.Warn("Queued record rejected by ledger",
			"record_id", record.ID,
			"idempotency_key", record.Session.IdempotencyKey,
			"reason", outcome.Reason)
		if c.onRejected != nil {
			c.onRejected(record, outcome.Reason)
		}

	default:
		c.logger.Info("Ledger still unreachable, record stays queued",
			"record_id", record.ID, "retry_count", record.RetryCount+1)
		c.holdUntil.Store(time.Now().Add(c.holdFor).UnixNano())
		c.markAttempt(ctx, record)
	}
}

func (c *Consumer) markAttempt(ctx context.Context, record models.PendingSyncRecord) {
	if err := c.pending.MarkAttempt(ctx, record.ID, time.Now()); err != nil {
		c.logger.Error("Failed to mark replay attempt", "record_id", record.ID, "error", err)
	}
}

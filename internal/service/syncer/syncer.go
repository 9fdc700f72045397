// Package syncer drains the offline queue. It periodically replays queued
// submissions against the ledger and removes a record only once the ledger
// acknowledges its idempotency key, either by applying it or by rejecting it.
package syncer

import (
	"context"
	"time"

	"github.com/biid/pointterminal/internal/logger"
	"github.com/biid/pointterminal/internal/models"
	"github.com/biid/pointterminal/internal/repository"
	"github.com/biid/pointterminal/internal/service/processor"
)

const (
	defaultCountWorkers  = 2                // Number of workers draining queued records
	defaultDrainInterval = 30 * time.Second // Interval between drain passes
	defaultBatchSize     = 50               // Records fetched per drain pass
)

type submitter interface {
	Submit(ctx context.Context, session models.TransactionSession) (processor.Outcome, error)
}

type Config struct {
	DrainInterval time.Duration
	CountWorkers  int
	BatchSize     int

	// OnRejected is invoked when the ledger definitively rejects a queued
	// record. The record is already removed when the callback runs.
	OnRejected func(record models.PendingSyncRecord, reason string)
}

type Syncer struct {
	consumer *Consumer
	producer *Producer
	wake     chan struct{}
}

func New(cfg Config, submitter submitter, pending repository.PendingRepo, logger logger.Logger) *Syncer {
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = defaultDrainInterval
	}
	if cfg.CountWorkers <= 0 {
		cfg.CountWorkers = defaultCountWorkers
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}

	wake := make(chan struct{}, 1)

	return &Syncer{
		wake: wake,
		producer: &Producer{
			interval:  cfg.DrainInterval,
			batchSize: cfg.BatchSize,
			wake:      wake,
			pending:   pending,
			logger:    logger,
		},
		consumer: &Consumer{
			countWorkers: cfg.CountWorkers,
			holdFor:      cfg.DrainInterval,
			submitter:    submitter,
			pending:      pending,
			onRejected:   cfg.OnRejected,
			logger:       logger,
		},
	}
}

// WakeUp requests an immediate drain pass. It is safe to call from any
// goroutine and never blocks; callers use it when a foreground request
// proves the ledger is reachable again.
func (s *Syncer) WakeUp() {
	s.consumer.holdUntil.Store(0)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run starts the drain loop. The returned channel is closed once the
// producer and all workers have fully stopped after ctx is canceled.
func (s *Syncer) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})

	recordChan := make(chan models.PendingSyncRecord)

	producerStopped := s.producer.Produce(ctx, recordChan)
	consumerStopped := s.consumer.Consume(ctx, recordChan)

	go func() {
		defer close(idleStopped)
		defer close(recordChan)
		<-producerStopped
		<-consumerStopped
		s.consumer.logger.Debug("Syncer stopped")
	}()

	return idleStopped
}

package syncer

import (
	"context"
	"time"

	"github.com/biid/pointterminal/internal/logger"
	"github.com/biid/pointterminal/internal/models"
	"github.com/biid/pointterminal/internal/repository"
)

type Producer struct {
	interval  time.Duration
	batchSize int
	wake      <-chan struct{}
	pending   repository.PendingRepo
	logger    logger.Logger
}

func (p *Producer) Produce(ctx context.Context, out chan<- models.PendingSyncRecord) <-chan struct{} {
	idleStopped := make(chan struct{})
	p.logger.Debug("Starting drain producer", "interval", p.interval, "batch_size", p.batchSize)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Debug("Drain producer stopped by context")
				return

			case <-p.wake:
				p.logger.Debug("Drain producer woken up")

			case <-ticker.C:
			}

			records, err := p.pending.List(ctx, p.batchSize)
			if err != nil {
				p.logger.Error("Failed to list pending records", "error", err)
				continue
			}

			for _, record := range records {
				select {
				case <-ctx.Done():
					p.logger.Debug("Drain producer stopped by context while sending records")
					return
				case out <- record:
					p.logger.Debug("Pending record sent to channel", "record_id", record.ID)
				}
			}
		}
	}()

	return idleStopped
}

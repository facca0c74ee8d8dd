package notify

import (
	"context"
	"log"
	"time"

	"github.com/gradesworld/paycore/internal/metrics"
	"github.com/gradesworld/paycore/internal/repository"
)

const dispatchBatchSize = 50

// Dispatcher drains the outbox on an interval. Publish failures leave the
// message unpublished for the next tick, so delivery is at-least-once and
// consumers must dedupe on message_id.
type Dispatcher struct {
	outbox    *repository.OutboxRepo
	publisher Publisher
	interval  time.Duration
}

func NewDispatcher(outbox *repository.OutboxRepo, publisher Publisher, interval time.Duration) *Dispatcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Dispatcher{outbox: outbox, publisher: publisher, interval: interval}
}

// Run blocks until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.DrainOnce(ctx)
		}
	}
}

// DrainOnce publishes up to one batch of pending messages. Exported so
// tests and the admin path can force a drain.
func (d *Dispatcher) DrainOnce(ctx context.Context) {
	msgs, err := d.outbox.ListUnpublished(dispatchBatchSize)
	if err != nil {
		log.Printf("[notify] list outbox: %v", err)
		return
	}

	for _, msg := range msgs {
		if err := d.publisher.Publish(ctx, msg); err != nil {
			log.Printf("[notify] publish %s (%s): %v", msg.ID, msg.EventType, err)
			continue
		}
		if err := d.outbox.MarkPublished(msg.ID); err != nil {
			log.Printf("[notify] mark published %s: %v", msg.ID, err)
			continue
		}
		metrics.OutboxPublished.WithLabelValues(string(msg.EventType)).Inc()
	}
}

package mq

import (
	"context"
	"log"
	"time"

	"dhbvn-alerts/internal/models"
)

// QueueDeliverer implements dispatch.Deliverer by handing each notification
// to the durable alert queue. Counts reflect messages accepted by the
// broker; the consumer side owns per-recipient retries, so end-to-end
// semantics stay at-least-once/best-effort.
type QueueDeliverer struct {
	pub *Publisher
}

func NewQueueDeliverer(pub *Publisher) *QueueDeliverer {
	return &QueueDeliverer{pub: pub}
}

// SendBatch publishes the batch one message at a time. A failed publish is
// counted and skipped; it never blocks the rest of the batch.
func (d *QueueDeliverer) SendBatch(ctx context.Context, batch []models.Notification) (models.BatchResult, error) {
	var result models.BatchResult
	now := time.Now()
	for _, n := range batch {
		msg := AlertMsg{
			Platform:  n.Platform,
			Recipient: n.Recipient,
			Message:   n.Message,
			QueuedAt:  now,
		}
		if err := d.pub.Publish(ctx, RoutingOutageAlert, msg); err != nil {
			log.Printf("[mq] failed to queue alert for %s/%s: %v", n.Platform, n.Recipient, err)
			result.Failed++
			continue
		}
		result.Sent++
	}
	return result, nil
}

package dispatch

import (
	"context"
	"log"

	"dhbvn-alerts/internal/messaging"
	"dhbvn-alerts/internal/models"
	"dhbvn-alerts/internal/outage"
)

// Deliverer accepts a batch of notifications and reports aggregate counts.
// Retry and provider selection are its concern, not the dispatcher's.
type Deliverer interface {
	SendBatch(ctx context.Context, batch []models.Notification) (models.BatchResult, error)
}

// Dispatcher turns a district's detected changes into subscriber
// notifications and submits them as one batch per district per poll.
type Dispatcher struct {
	deliverer Deliverer
}

func New(deliverer Deliverer) *Dispatcher {
	return &Dispatcher{deliverer: deliverer}
}

// Dispatch builds and delivers alerts for one district's changes. New
// outages go out as a single combined message; each resolved outage gets
// its own message so the restored area is unambiguous. Nothing is sent when
// both partitions are empty, whatever the subscriber count.
func (d *Dispatcher) Dispatch(ctx context.Context, districtName string, changes *outage.Changes, subscribers []models.Subscription) (models.BatchResult, error) {
	if len(subscribers) == 0 {
		return models.BatchResult{}, nil
	}

	var messages []string
	if len(changes.New) > 0 {
		messages = append(messages, messaging.NewOutageAlert(districtName, changes.New))
	}
	for _, resolved := range changes.Resolved {
		messages = append(messages, messaging.RestorationAlert(districtName, resolved.Area, resolved.Feeder))
	}
	if len(messages) == 0 {
		return models.BatchResult{}, nil
	}

	batch := make([]models.Notification, 0, len(messages)*len(subscribers))
	for _, msg := range messages {
		for _, sub := range subscribers {
			batch = append(batch, models.Notification{
				Platform:  sub.Platform,
				Recipient: sub.ChatID,
				Message:   msg,
			})
		}
	}

	result, err := d.deliverer.SendBatch(ctx, batch)
	if err != nil {
		return result, err
	}

	log.Printf("[dispatch] %s: delivered %d/%d notifications (%d new, %d resolved, %d subscribers)",
		districtName, result.Sent, len(batch), len(changes.New), len(changes.Resolved), len(subscribers))
	return result, nil
}

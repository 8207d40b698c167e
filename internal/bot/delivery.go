package bot

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v3"

	"dhbvn-alerts/internal/database"
	"dhbvn-alerts/internal/messaging"
	"dhbvn-alerts/internal/models"
	"dhbvn-alerts/internal/mq"
)

const deliveryMaxAttempts = 3

// Deliverer consumes queued outage alerts and sends them to subscribers,
// routing each message by platform. Per-recipient failures are retried with
// backoff and then dropped; chat notifications stay best-effort.
type Deliverer struct {
	bot      *tele.Bot
	whatsapp *messaging.WhatsAppClient
	db       *database.DB
}

func NewDeliverer(bot *tele.Bot, whatsapp *messaging.WhatsAppClient, db *database.DB) *Deliverer {
	return &Deliverer{bot: bot, whatsapp: whatsapp, db: db}
}

// Start consumes the alert queue until ctx is cancelled.
func (d *Deliverer) Start(ctx context.Context, consumer *mq.Consumer) error {
	deliveries, err := consumer.Consume(mq.QueueOutageAlert)
	if err != nil {
		return err
	}
	log.Println("[delivery] alert consumer started")

	for {
		select {
		case <-ctx.Done():
			log.Println("[delivery] alert consumer stopped")
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return nil
			}
			var msg mq.AlertMsg
			if err := json.Unmarshal(delivery.Body, &msg); err != nil {
				log.Printf("[delivery] malformed alert message: %v", err)
				_ = delivery.Nack(false, false)
				continue
			}
			d.deliver(ctx, msg)
			_ = delivery.Ack(false)
		}
	}
}

func (d *Deliverer) deliver(ctx context.Context, msg mq.AlertMsg) {
	var err error
	for attempt := 1; attempt <= deliveryMaxAttempts; attempt++ {
		err = d.send(ctx, msg)
		if err == nil {
			break
		}
		if attempt < deliveryMaxAttempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(1<<uint(attempt)) * time.Second):
			}
		}
	}
	if err != nil {
		log.Printf("[delivery] giving up on %s/%s after %d attempts: %v",
			msg.Platform, msg.Recipient, deliveryMaxAttempts, err)
		return
	}
	if err := d.db.UpdateLastNotification(ctx, msg.Platform, msg.Recipient); err != nil {
		log.Printf("[delivery] failed to stamp last notification for %s/%s: %v",
			msg.Platform, msg.Recipient, err)
	}
}

func (d *Deliverer) send(ctx context.Context, msg mq.AlertMsg) error {
	switch msg.Platform {
	case models.PlatformWhatsApp:
		if !d.whatsapp.Configured() {
			log.Printf("[delivery] whatsapp not configured, dropping alert for %s", msg.Recipient)
			return nil
		}
		return d.whatsapp.SendMessage(ctx, msg.Recipient, msg.Message)
	default:
		chatID, err := strconv.ParseInt(msg.Recipient, 10, 64)
		if err != nil {
			log.Printf("[delivery] invalid telegram chat id %q, dropping", msg.Recipient)
			return nil
		}
		_, err = d.bot.Send(&tele.Chat{ID: chatID}, msg.Message, htmlOpts)
		return err
	}
}

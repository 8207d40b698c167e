package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"dhbvn-alerts/internal/config"
	"dhbvn-alerts/internal/database"
	"dhbvn-alerts/internal/dhbvn"
	"dhbvn-alerts/internal/dispatch"
	"dhbvn-alerts/internal/mq"
	"dhbvn-alerts/internal/outage"
	"dhbvn-alerts/internal/poller"
)

// CleanupIntervalSec is how often old resolved snapshots are purged.
const CleanupIntervalSec = 6 * 3600

func main() {
	// Load .env if present.
	_ = godotenv.Load()

	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Database ---
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Println("database connected and migrated")

	// --- RabbitMQ ---
	publisher, err := mq.NewPublisher(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("rabbitmq publisher: %v", err)
	}
	defer publisher.Close()
	log.Println("rabbitmq connected")

	// --- Poll pipeline ---
	scraper := dhbvn.NewClient(cfg.PortalURL, dhbvn.Headers{
		FormID:     cfg.PortalFormID,
		Login:      cfg.PortalLogin,
		SourceType: cfg.PortalSourceType,
		Version:    cfg.PortalVersion,
		Token:      cfg.PortalToken,
		RoleID:     cfg.PortalRoleID,
	})
	detector := outage.NewDetector(db)
	dispatcher := dispatch.New(mq.NewQueueDeliverer(publisher))
	outagePoller := poller.New(db, scraper, detector, dispatcher, cfg.DistrictTimeout)

	go outagePoller.Start(ctx, cfg.PollInterval)

	// --- Retention cleanup ---
	go runCleanup(ctx, db, cfg.RetentionDays)

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down worker...")
	cancel()
}

func runCleanup(ctx context.Context, db *database.DB, retentionDays int) {
	ticker := time.NewTicker(CleanupIntervalSec * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := db.CleanupOldOutages(ctx, retentionDays)
			if err != nil {
				log.Printf("[cleanup] failed: %v", err)
				continue
			}
			if removed > 0 {
				log.Printf("[cleanup] removed %d resolved snapshots older than %d days", removed, retentionDays)
			}
		}
	}
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"dhbvn-alerts/internal/bot"
	"dhbvn-alerts/internal/cache"
	"dhbvn-alerts/internal/config"
	"dhbvn-alerts/internal/database"
	"dhbvn-alerts/internal/dhbvn"
	"dhbvn-alerts/internal/messaging"
	"dhbvn-alerts/internal/mq"
)

func main() {
	// Load .env if present.
	_ = godotenv.Load()

	cfg := config.Load()

	if cfg.BotToken == "" {
		log.Fatal("BOT_TOKEN is required. Get one from @BotFather on Telegram.")
	}

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

	// --- Redis ---
	redisCache, err := cache.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer redisCache.Close()
	log.Println("redis connected")

	// --- RabbitMQ ---
	consumer, err := mq.NewConsumer(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("rabbitmq consumer: %v", err)
	}
	defer consumer.Close()
	log.Println("rabbitmq connected")

	// --- Telegram Bot ---
	scraper := dhbvn.NewClient(cfg.PortalURL, dhbvn.Headers{
		FormID:     cfg.PortalFormID,
		Login:      cfg.PortalLogin,
		SourceType: cfg.PortalSourceType,
		Version:    cfg.PortalVersion,
		Token:      cfg.PortalToken,
		RoleID:     cfg.PortalRoleID,
	})
	tgBot, err := bot.New(cfg.BotToken, db, redisCache, scraper)
	if err != nil {
		log.Fatalf("bot: %v", err)
	}

	go tgBot.Start()
	defer tgBot.Stop()
	log.Println("telegram bot started")

	// --- Alert delivery consumer ---
	whatsapp := messaging.NewWhatsAppClient(cfg.WhatsAppPhoneNumberID, cfg.WhatsAppAccessToken)
	deliverer := bot.NewDeliverer(tgBot.TeleBot(), whatsapp, db)
	go func() {
		if err := deliverer.Start(ctx, consumer); err != nil {
			log.Fatalf("alert consumer: %v", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down bot...")
	cancel()
}

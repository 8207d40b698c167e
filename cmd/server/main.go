package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/joho/godotenv"

	"dhbvn-alerts/internal/cache"
	"dhbvn-alerts/internal/config"
	"dhbvn-alerts/internal/database"
	"dhbvn-alerts/internal/dhbvn"
	"dhbvn-alerts/internal/dispatch"
	"dhbvn-alerts/internal/handlers"
	"dhbvn-alerts/internal/mq"
	"dhbvn-alerts/internal/outage"
	"dhbvn-alerts/internal/poller"
)

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

	// --- Redis ---
	redisCache, err := cache.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer redisCache.Close()
	log.Println("redis connected")

	// --- RabbitMQ ---
	publisher, err := mq.NewPublisher(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("rabbitmq publisher: %v", err)
	}
	defer publisher.Close()
	log.Println("rabbitmq connected")

	// --- Poll pipeline (for the cron trigger endpoint) ---
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

	// --- Fiber HTTP Server ---
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(cors.New())

	h := &handlers.Handlers{
		DB:             db,
		Cache:          redisCache,
		Scraper:        scraper,
		Poller:         outagePoller,
		CronSecret:     cfg.CronSecret,
		OutageCacheTTL: time.Duration(cfg.OutageCacheTTL) * time.Second,
	}
	h.RegisterRoutes(app.Group("/api"))

	// --- Graceful shutdown ---
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	log.Printf("server starting on :%s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("server: %v", err)
	}
}

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
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/example/glowbeauty/internal/apperr"
	"github.com/example/glowbeauty/internal/config"
	"github.com/example/glowbeauty/internal/database"
	"github.com/example/glowbeauty/internal/routes"
	"github.com/example/glowbeauty/internal/services"
	"github.com/example/glowbeauty/internal/telemetry"
	"github.com/example/glowbeauty/internal/utils"
)

func main() {
	cfg := config.Load()
	utils.MaxPageSize = cfg.MaxPageSize

	shutdownTracer, err := telemetry.InitTracer("glowbeauty-api", cfg.OTelEndpoint)
	if err != nil {
		log.Fatalf("tracer init failed: %v", err)
	}

	db := database.Connect(cfg.DatabaseURL)
	if err := database.EnsureAdmin(db, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		log.Fatalf("bootstrap admin failed: %v", err)
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Printf("[Cache] redis unavailable, catalog cache disabled: %v", err)
			_ = rdb.Close()
			rdb = nil
		}
	}
	cache := services.NewCatalogCache(rdb, cfg.CatalogCacheTTL)

	var events services.Publisher = services.NopPublisher{}
	if cfg.AMQPURL != "" {
		publisher, err := services.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Printf("[Events] broker unavailable, events disabled: %v", err)
		} else {
			events = publisher
		}
	}

	telegramService := services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat)
	notifier := services.NewNotifier(events, telegramService, cfg.Currency)

	app := fiber.New(fiber.Config{
		AppName:      "Glow Beauty API",
		ErrorHandler: apperr.ErrorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigin,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Session-ID",
		AllowCredentials: cfg.CORSOrigin != "*",
	}))
	app.Use(limiter.New(limiter.Config{
		Max:        300,
		Expiration: time.Minute,
	}))

	routes.Register(app, routes.Dependencies{
		DB:       db,
		Config:   cfg,
		Cache:    cache,
		Notifier: notifier,
	})

	go func() {
		log.Printf("Starting server on :%s", cfg.AppPort)
		if err := app.Listen(":" + cfg.AppPort); err != nil {
			log.Fatalf("fiber.Listen error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	if err := events.Close(); err != nil {
		log.Printf("[Events] close: %v", err)
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracer(ctx); err != nil {
		log.Printf("tracer shutdown: %v", err)
	}
}

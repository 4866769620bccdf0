package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"ms-tickethub/internal/catalog"
	catalogapi "ms-tickethub/internal/catalog/api"
	"ms-tickethub/internal/catalog/notify"
	"ms-tickethub/internal/config"
	"ms-tickethub/internal/database"
	"ms-tickethub/internal/kafka"
	"ms-tickethub/internal/logger"
	"ms-tickethub/internal/models"
	ticketdb "ms-tickethub/internal/ticket/db"
)

func main() {
	log := logger.New("catalog-service")
	defer log.Close()

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bunDB, err := database.Connect(cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	if err := ticketdb.Migrate(ctx, bunDB); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("migrate failed: %v", err))
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	defer redisClient.Close()

	service := catalog.NewService(ticketdb.New(bunDB), log)
	hub := notify.NewHub(redisClient, log)
	handler := catalogapi.NewHandler(service, hub, log)

	// Relay committed status changes from Kafka into the per-ticket
	// Redis channels the notify endpoint waits on.
	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, log)
	defer consumer.Close()
	go consumer.Start(ctx, func(ev models.TicketStatusChangedEvent) {
		if err := hub.Publish(ctx, ev); err != nil {
			log.Error("NOTIFY", fmt.Sprintf("relay for ticket %d failed: %v", ev.TicketID, err))
		}
	})

	r := chi.NewRouter()
	handler.RegisterRoutes(r)

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: notify.DefaultWindow + 5*time.Second,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Catalog Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("APP", "shutdown signal received")
	cancel()
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("server shutdown failed: %v", err))
	}
	log.Info("APP", "Catalog Service shutdown complete")
}

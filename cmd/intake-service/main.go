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
	"github.com/joho/godotenv"

	"ms-tickethub/internal/broker"
	"ms-tickethub/internal/config"
	"ms-tickethub/internal/intake/api"
	"ms-tickethub/internal/logger"
)

func main() {
	log := logger.New("intake-service")
	defer log.Close()

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}
	cfg := config.Load()

	conn, err := broker.Dial(cfg.AMQP.URL, log)
	if err != nil {
		log.Fatal("BROKER", fmt.Sprintf("connect failed: %v", err))
	}
	defer conn.Close()

	publisher, err := broker.NewPublisher(conn, log,
		broker.QueueTicketReserved,
		broker.QueuePaymentsRequested,
	)
	if err != nil {
		log.Fatal("BROKER", fmt.Sprintf("publisher setup failed: %v", err))
	}
	defer publisher.Close()

	handler := api.NewHandler(publisher, log)

	r := chi.NewRouter()
	r.Post("/api/tickets/reserve", handler.ReserveTicket)
	r.Post("/api/payments/process", handler.ProcessPayment)

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Intake Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("APP", "shutdown signal received")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("server shutdown failed: %v", err))
	}
	log.Info("APP", "Intake Service shutdown complete")
}

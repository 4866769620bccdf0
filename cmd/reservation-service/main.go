package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"ms-tickethub/internal/broker"
	"ms-tickethub/internal/config"
	"ms-tickethub/internal/database"
	"ms-tickethub/internal/logger"
	"ms-tickethub/internal/reservation"
	ticketdb "ms-tickethub/internal/ticket/db"
)

func main() {
	log := logger.New("reservation-service")
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

	conn, err := broker.Dial(cfg.AMQP.URL, log)
	if err != nil {
		log.Fatal("BROKER", fmt.Sprintf("connect failed: %v", err))
	}
	defer conn.Close()

	service := reservation.NewService(ticketdb.New(bunDB), log)

	dispatcher := broker.NewDispatcher(conn, log, cfg.AMQP.Prefetch)
	dispatcher.Handle(broker.QueueTicketReserved, service.HandleReserveEvent)
	if err := dispatcher.Start(ctx); err != nil {
		log.Fatal("BROKER", fmt.Sprintf("dispatcher start failed: %v", err))
	}
	log.Info("APP", "Reservation Service consuming")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("APP", "shutdown signal received, draining in-flight handlers")
	dispatcher.Stop()
	log.Info("APP", "Reservation Service shutdown complete")
}

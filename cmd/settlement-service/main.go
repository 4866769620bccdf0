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
	"ms-tickethub/internal/kafka"
	"ms-tickethub/internal/logger"
	"ms-tickethub/internal/settlement"
	ticketdb "ms-tickethub/internal/ticket/db"
)

func main() {
	log := logger.New("settlement-service")
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

	if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, []string{kafka.TopicTicketStatusChanged}); err != nil {
		log.Warn("KAFKA", fmt.Sprintf("topic creation might have failed: %v", err))
	}
	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()

	conn, err := broker.Dial(cfg.AMQP.URL, log)
	if err != nil {
		log.Fatal("BROKER", fmt.Sprintf("connect failed: %v", err))
	}
	defer conn.Close()

	publisher, err := broker.NewPublisher(conn, log,
		broker.QueuePaymentsApproved,
		broker.QueuePaymentsRejected,
	)
	if err != nil {
		log.Fatal("BROKER", fmt.Sprintf("publisher setup failed: %v", err))
	}
	defer publisher.Close()

	repo := ticketdb.New(bunDB)
	service := settlement.NewService(repo, producer, cfg.Reservation.TTL, log)
	gateway := &settlement.SimulatedGateway{
		ApprovalRate: cfg.Gateway.ApprovalRate,
		MinDelay:     cfg.Gateway.MinDelay,
		MaxDelay:     cfg.Gateway.MaxDelay,
	}
	processor := settlement.NewProcessor(service, gateway, publisher)

	dispatcher := broker.NewDispatcher(conn, log, cfg.AMQP.Prefetch)
	dispatcher.Handle(broker.QueuePaymentsRequested, processor.HandlePaymentRequested)
	dispatcher.Handle(broker.QueuePaymentsApproved, service.HandleApprovedEvent)
	dispatcher.Handle(broker.QueuePaymentsRejected, service.HandleRejectedEvent)
	if err := dispatcher.Start(ctx); err != nil {
		log.Fatal("BROKER", fmt.Sprintf("dispatcher start failed: %v", err))
	}

	sweeper := settlement.NewSweeper(service, cfg.Reservation.SweepBatchSize, log)
	go func() {
		if err := sweeper.RunSweepLoop(ctx, cfg.Redis.Addr, cfg.Reservation.SweepInterval); err != nil {
			log.Error("SWEEP", fmt.Sprintf("sweep loop stopped: %v", err))
		}
	}()

	log.Info("APP", "Settlement Service consuming")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("APP", "shutdown signal received, draining in-flight handlers")
	dispatcher.Stop()
	cancel()
	log.Info("APP", "Settlement Service shutdown complete")
}

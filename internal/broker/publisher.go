package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"ms-tickethub/internal/logger"
)

// Publisher sends persistent JSON messages to the default exchange,
// where the routing key addresses the queue directly.
type Publisher struct {
	ch  *amqp.Channel
	log *logger.Logger
}

func NewPublisher(conn *amqp.Connection, log *logger.Logger, queues ...string) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("publisher channel: %w", err)
	}
	if err := DeclareQueues(ch, queues...); err != nil {
		ch.Close()
		return nil, err
	}
	return &Publisher{ch: ch, log: log}, nil
}

func (p *Publisher) Publish(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", routingKey, err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx, "", routingKey, false, false, pub); err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	p.log.LogBroker("PUBLISH", routingKey, fmt.Sprintf("%d bytes", len(body)))
	return nil
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}

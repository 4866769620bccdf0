package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-tickethub/internal/logger"
	"ms-tickethub/internal/models"
)

// messageReader is the part of kafka.Reader the consumer loop uses.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Consumer struct {
	reader     messageReader
	log        *logger.Logger
	errBackoff time.Duration
}

// NewConsumer creates a group reader for the status fan-out topic.
func NewConsumer(brokers []string, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    TopicTicketStatusChanged,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader, log: log, errBackoff: time.Second}
}

// Start consumes status-changed events until the context is cancelled.
// Undecodable messages are logged and skipped: the fan-out stream is
// informational, losing one notification is acceptable.
func (c *Consumer) Start(ctx context.Context, handler func(models.TicketStatusChangedEvent)) {
	c.log.LogKafka("CONSUME", TopicTicketStatusChanged, "consumer started")
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.log.Error("KAFKA", fmt.Sprintf("read message: %v", err))
			// Back off so an unreachable broker does not spin the loop.
			select {
			case <-time.After(c.errBackoff):
			case <-ctx.Done():
				return
			}
			continue
		}

		var ev models.TicketStatusChangedEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			c.log.Warn("KAFKA", fmt.Sprintf("skipping undecodable message: %v", err))
			continue
		}
		handler(ev)
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

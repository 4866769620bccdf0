package kafka

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/segmentio/kafka-go"

	"ms-tickethub/internal/models"
)

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return &Producer{writer: writer}
}

// PublishStatusChanged streams a committed status transition to the
// fan-out topic, keyed by ticket id so per-ticket ordering holds.
func (p *Producer) PublishStatusChanged(ctx context.Context, ev models.TicketStatusChangedEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: TopicTicketStatusChanged,
		Key:   []byte(strconv.FormatInt(ev.TicketID, 10)),
		Value: value,
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

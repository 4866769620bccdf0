// Package broker wraps the RabbitMQ plumbing shared by all consumers:
// queue topology with paired dead-letter queues, a JSON publisher, and
// the dispatcher that maps handler outcomes to ack/nack.
package broker

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"ms-tickethub/internal/logger"
)

// Queue names double as routing keys on the default exchange.
const (
	QueueTicketReserved    = "ticket.reserved"
	QueuePaymentsRequested = "ticket.payments.requested"
	QueuePaymentsApproved  = "ticket.payments.approved"
	QueuePaymentsRejected  = "ticket.payments.rejected"
)

// Dial connects with a bounded retry loop so a service can come up
// before the broker finishes booting.
func Dial(url string, log *logger.Logger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error
	backoff := time.Second
	for attempt := 1; attempt <= 5; attempt++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		log.Warn("BROKER", fmt.Sprintf("dial attempt %d failed: %v, retrying in %s", attempt, err, backoff))
		time.Sleep(backoff)
		if backoff < 10*time.Second {
			backoff *= 2
		}
	}
	return nil, fmt.Errorf("broker dial: %w", err)
}

// DeclareQueues declares each durable work queue together with its
// dead-letter queue. Rejected deliveries (Nack without requeue) are
// routed by the broker to "<queue>.dlq" for manual inspection.
func DeclareQueues(ch *amqp.Channel, names ...string) error {
	for _, name := range names {
		dlq := name + ".dlq"
		if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare %s: %w", dlq, err)
		}
		args := amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": dlq,
		}
		if _, err := ch.QueueDeclare(name, true, false, false, false, args); err != nil {
			return fmt.Errorf("declare %s: %w", name, err)
		}
	}
	return nil
}

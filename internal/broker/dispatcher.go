package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"ms-tickethub/internal/logger"
	"ms-tickethub/internal/outcome"
)

// HandlerFunc processes one delivery body. Business outcomes come back
// as a Result; a non-nil error marks a technical failure headed for the
// dead-letter queue.
type HandlerFunc func(ctx context.Context, body []byte) (outcome.Result, error)

// Dispatcher owns one consuming channel per registered queue. The
// registry is resolved once at startup; registering after Start is not
// supported. Handlers for different deliveries run concurrently,
// bounded by the channel prefetch.
type Dispatcher struct {
	conn     *amqp.Connection
	log      *logger.Logger
	prefetch int

	handlers map[string]HandlerFunc
	channels []*amqp.Channel
	tags     map[*amqp.Channel]string
	wg       sync.WaitGroup
}

func NewDispatcher(conn *amqp.Connection, log *logger.Logger, prefetch int) *Dispatcher {
	return &Dispatcher{
		conn:     conn,
		log:      log,
		prefetch: prefetch,
		handlers: make(map[string]HandlerFunc),
		tags:     make(map[*amqp.Channel]string),
	}
}

// Handle maps one queue to exactly one handler.
func (d *Dispatcher) Handle(queue string, h HandlerFunc) {
	d.handlers[queue] = h
}

// Start declares every registered queue and begins consuming. A
// failure partway through closes the consumers already opened before
// returning. Returns after the consumers are running; deliveries are
// processed until Stop.
func (d *Dispatcher) Start(ctx context.Context) error {
	for queue, handler := range d.handlers {
		ch, err := d.conn.Channel()
		if err != nil {
			d.closeChannels()
			return fmt.Errorf("consumer channel for %s: %w", queue, err)
		}
		if err := ch.Qos(d.prefetch, 0, false); err != nil {
			ch.Close()
			d.closeChannels()
			return fmt.Errorf("set qos for %s: %w", queue, err)
		}
		if err := DeclareQueues(ch, queue); err != nil {
			ch.Close()
			d.closeChannels()
			return err
		}

		tag := queue + "-" + uuid.NewString()
		deliveries, err := ch.Consume(queue, tag, false, false, false, false, nil)
		if err != nil {
			ch.Close()
			d.closeChannels()
			return fmt.Errorf("consume %s: %w", queue, err)
		}
		d.channels = append(d.channels, ch)
		d.tags[ch] = tag
		d.log.LogBroker("CONSUME", queue, "consumer started")

		d.wg.Add(1)
		go d.drain(ctx, queue, handler, deliveries)
	}
	return nil
}

// drain consumes the deliveries channel until the client closes it,
// which happens only after every delivery buffered at Cancel time has
// been handed over. The drain goroutine holds a WaitGroup count for its
// whole lifetime, so the per-delivery Add below can never race Stop's
// Wait past zero while deliveries are still in flight.
func (d *Dispatcher) drain(ctx context.Context, queue string, handler HandlerFunc, deliveries <-chan amqp.Delivery) {
	defer d.wg.Done()
	for del := range deliveries {
		d.wg.Add(1)
		go func(del amqp.Delivery) {
			defer d.wg.Done()
			d.dispatch(ctx, queue, handler, del)
		}(del)
	}
}

// dispatch applies the fixed outcome -> broker-action table:
// success and already-processed ack; business failures ack (they are
// permanent given the message content and must not loop); technical
// errors nack without requeue, which dead-letters the delivery.
func (d *Dispatcher) dispatch(ctx context.Context, queue string, handler HandlerFunc, del amqp.Delivery) {
	if del.RoutingKey != "" && del.RoutingKey != queue {
		// Unknown routing key on this queue: drop, not an error.
		d.log.Warn("BROKER", fmt.Sprintf("dropping delivery with unknown routing key %q on %s", del.RoutingKey, queue))
		_ = del.Ack(false)
		return
	}

	res, err := handler(ctx, del.Body)
	if err != nil {
		d.log.Error("BROKER", fmt.Sprintf("%s: technical failure, dead-lettering: %v", queue, err))
		_ = del.Nack(false, false)
		return
	}

	switch res.Code {
	case outcome.OK:
		d.log.LogBroker("ACK", queue, "processed")
	case outcome.AlreadyProcessed:
		d.log.LogBroker("ACK", queue, res.String())
	default:
		d.log.Warn("BROKER", fmt.Sprintf("%s: discarded: %s", queue, res.String()))
	}
	_ = del.Ack(false)
}

// Stop cancels the consumers so no new deliveries arrive, then waits
// for in-flight handlers to finish committing before closing channels.
// Acking work that was not durably applied is the failure mode this
// ordering prevents.
func (d *Dispatcher) Stop() {
	for _, ch := range d.channels {
		if err := ch.Cancel(d.tags[ch], false); err != nil {
			d.log.Warn("BROKER", fmt.Sprintf("consumer cancel: %v", err))
		}
	}
	d.wg.Wait()
	d.closeChannels()
}

func (d *Dispatcher) closeChannels() {
	for _, ch := range d.channels {
		_ = ch.Close()
	}
	d.channels = nil
}

package broker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"

	"ms-tickethub/internal/logger"
	"ms-tickethub/internal/outcome"
)

// fakeAcker records the broker action taken for a delivery.
type fakeAcker struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (f *fakeAcker) Ack(tag uint64, multiple bool) error {
	f.acked = true
	return nil
}

func (f *fakeAcker) Nack(tag uint64, multiple, requeue bool) error {
	f.nacked = true
	f.requeue = requeue
	return nil
}

func (f *fakeAcker) Reject(tag uint64, requeue bool) error {
	f.nacked = true
	f.requeue = requeue
	return nil
}

func testDispatcher() *Dispatcher {
	return NewDispatcher(nil, logger.Discard(), 1)
}

func delivery(acker *fakeAcker, routingKey string) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: acker,
		DeliveryTag:  1,
		RoutingKey:   routingKey,
		Body:         []byte(`{}`),
	}
}

func TestDispatchAcksSuccess(t *testing.T) {
	acker := &fakeAcker{}
	handler := func(ctx context.Context, body []byte) (outcome.Result, error) {
		return outcome.Ok(), nil
	}

	testDispatcher().dispatch(context.Background(), QueueTicketReserved, handler, delivery(acker, QueueTicketReserved))

	assert.True(t, acker.acked)
	assert.False(t, acker.nacked)
}

func TestDispatchAcksAlreadyProcessed(t *testing.T) {
	acker := &fakeAcker{}
	handler := func(ctx context.Context, body []byte) (outcome.Result, error) {
		return outcome.Already("duplicate"), nil
	}

	testDispatcher().dispatch(context.Background(), QueueTicketReserved, handler, delivery(acker, QueueTicketReserved))

	assert.True(t, acker.acked)
	assert.False(t, acker.nacked)
}

func TestDispatchAcksBusinessFailure(t *testing.T) {
	acker := &fakeAcker{}
	handler := func(ctx context.Context, body []byte) (outcome.Result, error) {
		return outcome.Fail(outcome.KindInvalidState, "ticket not available"), nil
	}

	// A business failure is permanent for this message content:
	// redelivery would only fail again, so it must be acked away.
	testDispatcher().dispatch(context.Background(), QueueTicketReserved, handler, delivery(acker, QueueTicketReserved))

	assert.True(t, acker.acked)
	assert.False(t, acker.nacked)
}

func TestDispatchDeadLettersTechnicalError(t *testing.T) {
	acker := &fakeAcker{}
	handler := func(ctx context.Context, body []byte) (outcome.Result, error) {
		return outcome.Result{}, errors.New("decode reserve event: invalid character")
	}

	testDispatcher().dispatch(context.Background(), QueueTicketReserved, handler, delivery(acker, QueueTicketReserved))

	assert.False(t, acker.acked)
	assert.True(t, acker.nacked)
	assert.False(t, acker.requeue, "dead-lettering must not requeue")
}

func TestStopWaitsForBufferedDeliveries(t *testing.T) {
	d := testDispatcher()

	// Deliveries the client already buffered when the consumer was
	// cancelled: they still flow through the drain loop, and Stop must
	// not return until every handler has acked.
	const n = 5
	ackers := make([]*fakeAcker, n)
	deliveries := make(chan amqp.Delivery, n)
	for i := range ackers {
		ackers[i] = &fakeAcker{}
		deliveries <- delivery(ackers[i], QueueTicketReserved)
	}
	close(deliveries)

	var handled int32
	handler := func(ctx context.Context, body []byte) (outcome.Result, error) {
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&handled, 1)
		return outcome.Ok(), nil
	}

	d.wg.Add(1)
	go d.drain(context.Background(), QueueTicketReserved, handler, deliveries)
	d.Stop()

	assert.Equal(t, int32(n), atomic.LoadInt32(&handled))
	for i, acker := range ackers {
		assert.True(t, acker.acked, "delivery %d not acked before Stop returned", i)
	}
}

func TestDispatchDropsUnknownRoutingKey(t *testing.T) {
	acker := &fakeAcker{}
	called := false
	handler := func(ctx context.Context, body []byte) (outcome.Result, error) {
		called = true
		return outcome.Ok(), nil
	}

	testDispatcher().dispatch(context.Background(), QueueTicketReserved, handler, delivery(acker, "some.other.key"))

	assert.True(t, acker.acked)
	assert.False(t, called, "handler must not see a mismatched delivery")
}

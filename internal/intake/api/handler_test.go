package api_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-tickethub/internal/broker"
	"ms-tickethub/internal/intake/api"
	"ms-tickethub/internal/logger"
	"ms-tickethub/internal/models"
)

// fakePublisher captures what the handler enqueues.
type fakePublisher struct {
	routingKey string
	payload    any
	err        error
}

func (p *fakePublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	p.routingKey = routingKey
	p.payload = payload
	return p.err
}

func newHandler(pub *fakePublisher) *api.Handler {
	return api.NewHandler(pub, logger.Discard())
}

func post(t *testing.T, h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestReserveTicketAccepted(t *testing.T) {
	pub := &fakePublisher{}
	h := newHandler(pub)

	rec := post(t, h.ReserveTicket,
		`{"eventId":10,"ticketId":1,"orderId":"order-1","reservedBy":"alice","expiresInSeconds":300}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, broker.QueueTicketReserved, pub.routingKey)

	ev, ok := pub.payload.(models.ReserveTicketEvent)
	require.True(t, ok)
	assert.Equal(t, int64(1), ev.TicketID)
	assert.Equal(t, "order-1", ev.OrderID)
	assert.Equal(t, 300, ev.ReservationDurationSeconds)
	assert.False(t, ev.PublishedAt.IsZero())
}

func TestReserveTicketBadJSON(t *testing.T) {
	pub := &fakePublisher{}
	rec := post(t, newHandler(pub).ReserveTicket, `{bad`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, pub.routingKey)
}

func TestReserveTicketValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing ticketId", `{"eventId":10,"orderId":"o","reservedBy":"a","expiresInSeconds":60}`},
		{"missing orderId", `{"eventId":10,"ticketId":1,"reservedBy":"a","expiresInSeconds":60}`},
		{"zero duration", `{"eventId":10,"ticketId":1,"orderId":"o","reservedBy":"a","expiresInSeconds":0}`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			pub := &fakePublisher{}
			rec := post(t, newHandler(pub).ReserveTicket, c.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, pub.routingKey, "nothing must be enqueued")
		})
	}
}

func TestReserveTicketBrokerDown(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection refused")}
	rec := post(t, newHandler(pub).ReserveTicket,
		`{"eventId":10,"ticketId":1,"orderId":"order-1","reservedBy":"alice","expiresInSeconds":300}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestProcessPaymentAccepted(t *testing.T) {
	pub := &fakePublisher{}
	rec := post(t, newHandler(pub).ProcessPayment,
		`{"ticketId":1,"eventId":10,"amountCents":2500,"currency":"USD","paymentBy":"alice","paymentMethodId":"pm_1"}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, broker.QueuePaymentsRequested, pub.routingKey)

	ev, ok := pub.payload.(models.PaymentRequestedEvent)
	require.True(t, ok)
	assert.Equal(t, int64(2500), ev.AmountCents)
	assert.Equal(t, "USD", ev.Currency)
	assert.False(t, ev.RequestedAt.IsZero())
}

func TestProcessPaymentValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"zero amount", `{"ticketId":1,"eventId":10,"amountCents":0,"currency":"USD","paymentBy":"a","paymentMethodId":"pm"}`},
		{"bad currency", `{"ticketId":1,"eventId":10,"amountCents":100,"currency":"DOLLARS","paymentBy":"a","paymentMethodId":"pm"}`},
		{"missing method", `{"ticketId":1,"eventId":10,"amountCents":100,"currency":"USD","paymentBy":"a"}`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			pub := &fakePublisher{}
			rec := post(t, newHandler(pub).ProcessPayment, c.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, pub.routingKey)
		})
	}
}

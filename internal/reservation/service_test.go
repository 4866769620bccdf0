package reservation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-tickethub/internal/logger"
	"ms-tickethub/internal/models"
	"ms-tickethub/internal/outcome"
	"ms-tickethub/internal/reservation"
	"ms-tickethub/internal/ticket/db"
)

// Mock implementations
type MockDBLayer struct {
	mock.Mock
}

func (m *MockDBLayer) GetTicketByID(ctx context.Context, id int64) (*models.Ticket, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Ticket), args.Error(1)
}

func (m *MockDBLayer) TryTransition(ctx context.Context, t *models.Ticket, expectedStatus models.TicketStatus, reason string, mutate func(*models.Ticket)) (bool, error) {
	args := m.Called(t, expectedStatus, reason)
	if args.Bool(0) {
		next := *t
		mutate(&next)
		next.Version = t.Version + 1
		*t = next
	}
	return args.Bool(0), args.Error(1)
}

func newService(mockDB *MockDBLayer) *reservation.Service {
	return reservation.NewService(mockDB, logger.Discard())
}

func reserveEvent() models.ReserveTicketEvent {
	return models.ReserveTicketEvent{
		TicketID:                   1,
		EventID:                    10,
		OrderID:                    "order-1",
		ReservedBy:                 "alice",
		ReservationDurationSeconds: 300,
		PublishedAt:                time.Now().UTC(),
	}
}

func TestReserveHappyPath(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := newService(mockDB)

	tk := &models.Ticket{ID: 1, EventID: 10, Status: models.TicketAvailable, Version: 0}
	mockDB.On("GetTicketByID", int64(1)).Return(tk, nil)
	mockDB.On("TryTransition", tk, models.TicketAvailable, mock.Anything).Return(true, nil)

	res, err := svc.Reserve(context.Background(), reserveEvent())
	require.NoError(t, err)
	assert.Equal(t, outcome.OK, res.Code)
	assert.Equal(t, models.TicketReserved, tk.Status)
	assert.Equal(t, "order-1", tk.OrderID)
	assert.NotNil(t, tk.ExpiresAt)
	mockDB.AssertExpectations(t)
}

func TestReserveTicketNotFound(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := newService(mockDB)

	mockDB.On("GetTicketByID", int64(1)).Return(nil, db.ErrTicketNotFound)

	res, err := svc.Reserve(context.Background(), reserveEvent())
	require.NoError(t, err)
	assert.Equal(t, outcome.Failed, res.Code)
	assert.Equal(t, outcome.KindNotFound, res.Kind)
	mockDB.AssertNotCalled(t, "TryTransition", mock.Anything, mock.Anything, mock.Anything)
}

func TestReserveNotAvailable(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := newService(mockDB)

	tk := &models.Ticket{ID: 1, Status: models.TicketPaid, Version: 3}
	mockDB.On("GetTicketByID", int64(1)).Return(tk, nil)

	res, err := svc.Reserve(context.Background(), reserveEvent())
	require.NoError(t, err)
	assert.Equal(t, outcome.Failed, res.Code)
	assert.Equal(t, outcome.KindInvalidState, res.Kind)
	mockDB.AssertNotCalled(t, "TryTransition", mock.Anything, mock.Anything, mock.Anything)
}

func TestReserveDuplicateDeliveryIsAlreadyProcessed(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := newService(mockDB)

	tk := &models.Ticket{ID: 1, Status: models.TicketReserved, OrderID: "order-1", Version: 1}
	mockDB.On("GetTicketByID", int64(1)).Return(tk, nil)

	res, err := svc.Reserve(context.Background(), reserveEvent())
	require.NoError(t, err)
	assert.Equal(t, outcome.AlreadyProcessed, res.Code)
	mockDB.AssertNotCalled(t, "TryTransition", mock.Anything, mock.Anything, mock.Anything)
}

func TestReserveReservedForOtherOrderFails(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := newService(mockDB)

	tk := &models.Ticket{ID: 1, Status: models.TicketReserved, OrderID: "order-other", Version: 1}
	mockDB.On("GetTicketByID", int64(1)).Return(tk, nil)

	res, err := svc.Reserve(context.Background(), reserveEvent())
	require.NoError(t, err)
	assert.Equal(t, outcome.Failed, res.Code)
	assert.Equal(t, outcome.KindInvalidState, res.Kind)
}

func TestReserveLostRace(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := newService(mockDB)

	tk := &models.Ticket{ID: 1, Status: models.TicketAvailable, Version: 0}
	mockDB.On("GetTicketByID", int64(1)).Return(tk, nil).Once()
	mockDB.On("TryTransition", tk, models.TicketAvailable, mock.Anything).Return(false, nil)
	// The re-read shows a competing order won the row.
	winner := &models.Ticket{ID: 1, Status: models.TicketReserved, OrderID: "order-other", Version: 1}
	mockDB.On("GetTicketByID", int64(1)).Return(winner, nil).Once()

	res, err := svc.Reserve(context.Background(), reserveEvent())
	require.NoError(t, err)
	assert.Equal(t, outcome.Failed, res.Code)
	assert.Equal(t, outcome.KindConcurrencyLost, res.Kind)
	mockDB.AssertExpectations(t)
}

func TestReserveRaceWithOwnDuplicate(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := newService(mockDB)

	tk := &models.Ticket{ID: 1, Status: models.TicketAvailable, Version: 0}
	mockDB.On("GetTicketByID", int64(1)).Return(tk, nil).Once()
	mockDB.On("TryTransition", tk, models.TicketAvailable, mock.Anything).Return(false, nil)
	// A duplicate delivery of the same intent landed first.
	dup := &models.Ticket{ID: 1, Status: models.TicketReserved, OrderID: "order-1", Version: 1}
	mockDB.On("GetTicketByID", int64(1)).Return(dup, nil).Once()

	res, err := svc.Reserve(context.Background(), reserveEvent())
	require.NoError(t, err)
	assert.Equal(t, outcome.AlreadyProcessed, res.Code)
}

func TestHandleReserveEventBadJSON(t *testing.T) {
	svc := newService(new(MockDBLayer))

	_, err := svc.HandleReserveEvent(context.Background(), []byte("{not json"))
	assert.Error(t, err)
}

func TestHandleReserveEventBadPayload(t *testing.T) {
	svc := newService(new(MockDBLayer))

	res, err := svc.HandleReserveEvent(context.Background(), []byte(`{"ticketId":0,"orderId":""}`))
	require.NoError(t, err)
	assert.Equal(t, outcome.Failed, res.Code)
	assert.Equal(t, outcome.KindBadPayload, res.Kind)
}

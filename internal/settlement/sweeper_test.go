package settlement_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-tickethub/internal/logger"
	"ms-tickethub/internal/models"
	"ms-tickethub/internal/settlement"
)

func TestSweepReleasesExpiredBatch(t *testing.T) {
	mockDB := new(MockDBLayer)
	notifier := new(MockNotifier)
	sw := settlement.NewSweeper(newService(mockDB, notifier), 50, logger.Discard())

	reservedAt := time.Now().UTC().Add(-time.Hour)
	first := *reservedTicket(reservedAt)
	second := *reservedTicket(reservedAt)
	second.ID = 2

	mockDB.On("ListExpiredReservations", mock.Anything, 50).Return([]models.Ticket{first, second}, nil)
	mockDB.On("TryTransition", mock.Anything, models.TicketReserved, "reservation expired").Return(true, nil)
	mockDB.On("GetPendingPayment", mock.Anything).Return(nil, nil)
	notifier.On("PublishStatusChanged", mock.Anything).Return(nil)

	require.NoError(t, sw.HandleSweep(context.Background(), nil))
	mockDB.AssertNumberOfCalls(t, "TryTransition", 2)
	notifier.AssertNumberOfCalls(t, "PublishStatusChanged", 2)
}

func TestSweepEmptyBatchIsQuiet(t *testing.T) {
	mockDB := new(MockDBLayer)
	sw := settlement.NewSweeper(newService(mockDB, new(MockNotifier)), 50, logger.Discard())

	mockDB.On("ListExpiredReservations", mock.Anything, 50).Return([]models.Ticket{}, nil)

	require.NoError(t, sw.HandleSweep(context.Background(), nil))
	mockDB.AssertNotCalled(t, "TryTransition", mock.Anything, mock.Anything, mock.Anything)
}

func TestSweepSurvivesLostRace(t *testing.T) {
	mockDB := new(MockDBLayer)
	notifier := new(MockNotifier)
	sw := settlement.NewSweeper(newService(mockDB, notifier), 50, logger.Discard())

	reservedAt := time.Now().UTC().Add(-time.Hour)
	tk := *reservedTicket(reservedAt)

	mockDB.On("ListExpiredReservations", mock.Anything, 50).Return([]models.Ticket{tk}, nil)
	mockDB.On("TryTransition", mock.Anything, models.TicketReserved, "reservation expired").Return(false, nil)
	paid := &models.Ticket{ID: 1, Status: models.TicketPaid, Version: 2}
	mockDB.On("GetTicketByID", int64(1)).Return(paid, nil)

	// A settlement consumer beat the sweep to the row; the sweep just
	// moves on.
	assert.NoError(t, sw.HandleSweep(context.Background(), nil))
	notifier.AssertNotCalled(t, "PublishStatusChanged", mock.Anything)
}

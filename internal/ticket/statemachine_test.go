package ticket_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ms-tickethub/internal/models"
	"ms-tickethub/internal/ticket"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to models.TicketStatus
		want     bool
	}{
		{models.TicketAvailable, models.TicketReserved, true},
		{models.TicketAvailable, models.TicketReleased, true},
		{models.TicketAvailable, models.TicketCancelled, true},
		{models.TicketAvailable, models.TicketPaid, false},
		{models.TicketReserved, models.TicketPaid, true},
		{models.TicketReserved, models.TicketReleased, true},
		{models.TicketReserved, models.TicketAvailable, true},
		{models.TicketReserved, models.TicketCancelled, true},
		{models.TicketPaid, models.TicketCancelled, true},
		{models.TicketPaid, models.TicketReleased, false},
		{models.TicketPaid, models.TicketAvailable, false},
		{models.TicketReleased, models.TicketAvailable, true},
		{models.TicketReleased, models.TicketReserved, false},
		{models.TicketCancelled, models.TicketAvailable, false},
		{models.TicketCancelled, models.TicketReleased, false},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, ticket.CanTransition(c.from, c.to),
			"transition %s -> %s", c.from, c.to)
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, ticket.IsTerminal(models.TicketCancelled))
	assert.False(t, ticket.IsTerminal(models.TicketAvailable))
	assert.False(t, ticket.IsTerminal(models.TicketPaid))
	assert.False(t, ticket.IsTerminal(models.TicketReleased))
}

func TestClassify(t *testing.T) {
	// Row in the required source status: attempt the CAS.
	assert.Equal(t, ticket.Proceed,
		ticket.Classify(models.TicketAvailable, models.TicketAvailable, models.TicketReserved))

	// Row already in the target status: idempotent replay, not an error.
	assert.Equal(t, ticket.AlreadyApplied,
		ticket.Classify(models.TicketReserved, models.TicketAvailable, models.TicketReserved))
	assert.Equal(t, ticket.AlreadyApplied,
		ticket.Classify(models.TicketPaid, models.TicketReserved, models.TicketPaid))

	// Anything else is a hard validation failure.
	assert.Equal(t, ticket.Invalid,
		ticket.Classify(models.TicketPaid, models.TicketAvailable, models.TicketReserved))
	assert.Equal(t, ticket.Invalid,
		ticket.Classify(models.TicketCancelled, models.TicketReserved, models.TicketPaid))

	// An illegal edge is Invalid even when the row sits on the source.
	assert.Equal(t, ticket.Invalid,
		ticket.Classify(models.TicketPaid, models.TicketPaid, models.TicketAvailable))
}

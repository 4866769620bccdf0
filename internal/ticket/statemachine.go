// Package ticket holds the lifecycle state machine for tickets. The
// transition table here is the single source of truth for which status
// changes are legal; the CAS repository enforces it at write time.
package ticket

import "ms-tickethub/internal/models"

// Verdict classifies an attempted transition against the current row.
type Verdict int

const (
	// Proceed means the row is in the required source status and the
	// transition is legal; attempt the CAS.
	Proceed Verdict = iota
	// AlreadyApplied means the row is already in the target status:
	// an idempotent replay, report "already processed" and ack.
	AlreadyApplied
	// Invalid means the row is in neither the source nor the target
	// status. Hard validation failure, never retried.
	Invalid
)

// legal maps each status to the statuses it may move to.
// released is not a sellable state: re-entering the pool is the
// explicit released -> available transition.
var legal = map[models.TicketStatus][]models.TicketStatus{
	models.TicketAvailable: {models.TicketReserved, models.TicketReleased, models.TicketCancelled},
	models.TicketReserved:  {models.TicketPaid, models.TicketReleased, models.TicketAvailable, models.TicketCancelled},
	models.TicketPaid:      {models.TicketCancelled},
	models.TicketReleased:  {models.TicketAvailable},
	models.TicketCancelled: nil,
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to models.TicketStatus) bool {
	for _, next := range legal[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves the given status.
func IsTerminal(s models.TicketStatus) bool {
	return len(legal[s]) == 0
}

// Classify decides how a handler should treat a transition attempt
// given the status it just read. Duplicate deliveries are expected, so
// "already in the target status" is not an error.
func Classify(current, required, target models.TicketStatus) Verdict {
	if current == target {
		return AlreadyApplied
	}
	if current == required && CanTransition(required, target) {
		return Proceed
	}
	return Invalid
}

// Package reservation owns the available -> reserved transition. Each
// intent event gets exactly one CAS attempt: the losing buyer retries
// at the intake layer, never through broker redelivery.
package reservation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ms-tickethub/internal/logger"
	"ms-tickethub/internal/models"
	"ms-tickethub/internal/outcome"
	"ms-tickethub/internal/ticket"
	"ms-tickethub/internal/ticket/db"
)

type DBLayer interface {
	GetTicketByID(ctx context.Context, id int64) (*models.Ticket, error)
	TryTransition(ctx context.Context, t *models.Ticket, expectedStatus models.TicketStatus, reason string, mutate func(*models.Ticket)) (bool, error)
}

type Service struct {
	DB     DBLayer
	Logger *logger.Logger
}

func NewService(dbLayer DBLayer, log *logger.Logger) *Service {
	return &Service{DB: dbLayer, Logger: log}
}

// HandleReserveEvent is the queue entry point: decode failures are
// technical (dead-letter); a decodable but senseless payload is a
// business discard.
func (s *Service) HandleReserveEvent(ctx context.Context, body []byte) (outcome.Result, error) {
	var ev models.ReserveTicketEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return outcome.Result{}, fmt.Errorf("decode reserve event: %w", err)
	}
	if ev.TicketID <= 0 || ev.OrderID == "" || ev.ReservationDurationSeconds <= 0 {
		return outcome.Fail(outcome.KindBadPayload, "reserve event missing ticketId, orderId or duration"), nil
	}
	return s.Reserve(ctx, ev)
}

// Reserve runs the single-shot reservation workflow.
func (s *Service) Reserve(ctx context.Context, ev models.ReserveTicketEvent) (outcome.Result, error) {
	t, err := s.DB.GetTicketByID(ctx, ev.TicketID)
	if errors.Is(err, db.ErrTicketNotFound) {
		return outcome.Fail(outcome.KindNotFound, fmt.Sprintf("ticket %d not found", ev.TicketID)), nil
	}
	if err != nil {
		return outcome.Result{}, fmt.Errorf("load ticket %d: %w", ev.TicketID, err)
	}

	switch ticket.Classify(t.Status, models.TicketAvailable, models.TicketReserved) {
	case ticket.AlreadyApplied:
		if t.OrderID == ev.OrderID {
			return outcome.Already("ticket already reserved for this order"), nil
		}
		return outcome.Fail(outcome.KindInvalidState, "ticket not available"), nil
	case ticket.Invalid:
		return outcome.Fail(outcome.KindInvalidState, fmt.Sprintf("ticket not available (status %s)", t.Status)), nil
	}

	now := time.Now().UTC()
	expires := now.Add(time.Duration(ev.ReservationDurationSeconds) * time.Second)
	reason := fmt.Sprintf("reserved by %s for order %s", ev.ReservedBy, ev.OrderID)

	applied, err := s.DB.TryTransition(ctx, t, models.TicketAvailable, reason, func(n *models.Ticket) {
		n.Status = models.TicketReserved
		n.ReservedAt = &now
		n.ExpiresAt = &expires
		n.OrderID = ev.OrderID
		n.ReservedBy = ev.ReservedBy
	})
	if err != nil {
		return outcome.Result{}, fmt.Errorf("reserve ticket %d: %w", ev.TicketID, err)
	}
	if !applied {
		// Re-read to tell a lost race from a duplicate delivery that
		// landed between our read and our write.
		cur, err := s.DB.GetTicketByID(ctx, ev.TicketID)
		if err != nil {
			return outcome.Result{}, fmt.Errorf("re-read ticket %d: %w", ev.TicketID, err)
		}
		if cur.Status == models.TicketReserved && cur.OrderID == ev.OrderID {
			return outcome.Already("ticket already reserved for this order"), nil
		}
		return outcome.Fail(outcome.KindConcurrencyLost, "modified by another process"), nil
	}

	s.Logger.LogTicket("RESERVE", t.ID, fmt.Sprintf("reserved for order %s until %s", ev.OrderID, expires.Format(time.RFC3339)))
	return outcome.Ok(), nil
}

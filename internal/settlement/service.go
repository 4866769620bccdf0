// Package settlement owns the reserved -> paid and reserved -> released
// transitions. All idempotency comes from the ticket status plus the
// CAS version; duplicate decision events are expected and harmless.
package settlement

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
	GetPendingPayment(ctx context.Context, ticketID int64) (*models.Payment, error)
	EnsurePendingPayment(ctx context.Context, ticketID, amountCents int64, currency, providerRef string) (*models.Payment, error)
	MarkPayment(ctx context.Context, paymentID int64, status models.PaymentStatus) error
	ListExpiredReservations(ctx context.Context, before time.Time, limit int) ([]models.Ticket, error)
}

// Notifier fans out committed status changes. Emission happens only
// after the local write commits; a failed emission is logged, never
// rolled back.
type Notifier interface {
	PublishStatusChanged(ctx context.Context, ev models.TicketStatusChangedEvent) error
}

type Service struct {
	DB       DBLayer
	Notifier Notifier
	TTL      time.Duration
	Logger   *logger.Logger
}

func NewService(dbLayer DBLayer, notifier Notifier, ttl time.Duration, log *logger.Logger) *Service {
	return &Service{DB: dbLayer, Notifier: notifier, TTL: ttl, Logger: log}
}

// HandleApprovedEvent is the queue entry point for approve decisions.
func (s *Service) HandleApprovedEvent(ctx context.Context, body []byte) (outcome.Result, error) {
	var ev models.PaymentApprovedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return outcome.Result{}, fmt.Errorf("decode approved event: %w", err)
	}
	if ev.TicketID <= 0 {
		return outcome.Fail(outcome.KindBadPayload, "approved event missing ticketId"), nil
	}
	return s.ApprovePayment(ctx, ev)
}

// HandleRejectedEvent is the queue entry point for reject decisions.
func (s *Service) HandleRejectedEvent(ctx context.Context, body []byte) (outcome.Result, error) {
	var ev models.PaymentRejectedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return outcome.Result{}, fmt.Errorf("decode rejected event: %w", err)
	}
	if ev.TicketID <= 0 {
		return outcome.Fail(outcome.KindBadPayload, "rejected event missing ticketId"), nil
	}
	return s.RejectPayment(ctx, ev)
}

// ApprovePayment settles an approved decision. The TTL window is
// recomputed from reserved_at against the carried decision timestamp:
// the stored expires_at reflects the client-supplied duration and is
// not trusted here.
func (s *Service) ApprovePayment(ctx context.Context, ev models.PaymentApprovedEvent) (outcome.Result, error) {
	t, err := s.DB.GetTicketByID(ctx, ev.TicketID)
	if errors.Is(err, db.ErrTicketNotFound) {
		return outcome.Fail(outcome.KindNotFound, fmt.Sprintf("ticket %d not found", ev.TicketID)), nil
	}
	if err != nil {
		return outcome.Result{}, fmt.Errorf("load ticket %d: %w", ev.TicketID, err)
	}

	if t.Status == models.TicketPaid {
		s.Logger.LogTicket("APPROVE", t.ID, "duplicate approval, already paid")
		return outcome.Already("ticket already paid"), nil
	}
	if t.Status != models.TicketReserved {
		return outcome.Fail(outcome.KindInvalidState, fmt.Sprintf("cannot settle ticket in status %s", t.Status)), nil
	}

	if t.ReservedAt == nil || ev.ApprovedAt.After(t.ReservedAt.Add(s.TTL)) {
		// Too late to honor the reservation: compensate by releasing,
		// then report the approval as expired.
		if _, err := s.release(ctx, t, models.PaymentExpired, "payment received after TTL"); err != nil {
			return outcome.Result{}, err
		}
		return outcome.Fail(outcome.KindTTLExceeded, "TTL exceeded"), nil
	}

	pay, err := s.DB.EnsurePendingPayment(ctx, t.ID, ev.AmountCents, ev.Currency, ev.TransactionRef)
	if err != nil {
		return outcome.Result{}, fmt.Errorf("ensure payment for ticket %d: %w", t.ID, err)
	}

	now := time.Now().UTC()
	applied, err := s.DB.TryTransition(ctx, t, models.TicketReserved, "payment approved", func(n *models.Ticket) {
		n.Status = models.TicketPaid
		n.PaidAt = &now
	})
	if err != nil {
		return outcome.Result{}, fmt.Errorf("settle ticket %d: %w", t.ID, err)
	}
	if !applied {
		cur, err := s.DB.GetTicketByID(ctx, t.ID)
		if err != nil {
			return outcome.Result{}, fmt.Errorf("re-read ticket %d: %w", t.ID, err)
		}
		if cur.Status == models.TicketPaid || cur.Status == models.TicketReleased {
			// Another settlement path got there first.
			return outcome.Already(fmt.Sprintf("ticket already %s", cur.Status)), nil
		}
		return outcome.Fail(outcome.KindConcurrencyLost, "modified by another process"), nil
	}

	if err := s.DB.MarkPayment(ctx, pay.ID, models.PaymentApproved); err != nil {
		s.Logger.Error("DATABASE", fmt.Sprintf("mark payment %d approved: %v", pay.ID, err))
	}
	s.Logger.LogTicket("APPROVE", t.ID, fmt.Sprintf("paid, payment %d approved", pay.ID))
	s.notify(ctx, t.ID, models.TicketPaid, now)
	return outcome.Ok(), nil
}

// RejectPayment handles an explicit reject decision.
func (s *Service) RejectPayment(ctx context.Context, ev models.PaymentRejectedEvent) (outcome.Result, error) {
	t, err := s.DB.GetTicketByID(ctx, ev.TicketID)
	if errors.Is(err, db.ErrTicketNotFound) {
		return outcome.Fail(outcome.KindNotFound, fmt.Sprintf("ticket %d not found", ev.TicketID)), nil
	}
	if err != nil {
		return outcome.Result{}, fmt.Errorf("load ticket %d: %w", ev.TicketID, err)
	}

	if t.Status == models.TicketReleased {
		s.Logger.LogTicket("REJECT", t.ID, "duplicate rejection, already released")
		return outcome.Already("ticket already released"), nil
	}
	if t.Status != models.TicketReserved {
		return outcome.Fail(outcome.KindInvalidState, fmt.Sprintf("cannot reject ticket in status %s", t.Status)), nil
	}

	return s.release(ctx, t, models.PaymentFailed, "payment rejected: "+ev.RejectionReason)
}

// ReleaseExpired is the sweep entry: drive one expired reservation to
// released. Losing the CAS race to a settling consumer is fine.
func (s *Service) ReleaseExpired(ctx context.Context, t *models.Ticket) (outcome.Result, error) {
	if t.Status == models.TicketReleased {
		return outcome.Already("ticket already released"), nil
	}
	return s.release(ctx, t, models.PaymentExpired, "reservation expired")
}

// release is the shared sub-path: CAS to released from the current
// non-terminal status, clear the window, settle any pending payment as
// expired (TTL) or failed (explicit rejection), then notify.
func (s *Service) release(ctx context.Context, t *models.Ticket, payStatus models.PaymentStatus, reason string) (outcome.Result, error) {
	from := t.Status
	if !ticket.CanTransition(from, models.TicketReleased) {
		return outcome.Fail(outcome.KindInvalidState, fmt.Sprintf("cannot release ticket in status %s", from)), nil
	}

	applied, err := s.DB.TryTransition(ctx, t, from, reason, func(n *models.Ticket) {
		n.Status = models.TicketReleased
		n.ExpiresAt = nil
	})
	if err != nil {
		return outcome.Result{}, fmt.Errorf("release ticket %d: %w", t.ID, err)
	}
	if !applied {
		cur, err := s.DB.GetTicketByID(ctx, t.ID)
		if err != nil {
			return outcome.Result{}, fmt.Errorf("re-read ticket %d: %w", t.ID, err)
		}
		if cur.Status == models.TicketReleased {
			return outcome.Already("ticket already released"), nil
		}
		return outcome.Fail(outcome.KindConcurrencyLost, "modified by another process"), nil
	}

	if pay, err := s.DB.GetPendingPayment(ctx, t.ID); err != nil {
		s.Logger.Error("DATABASE", fmt.Sprintf("load pending payment for ticket %d: %v", t.ID, err))
	} else if pay != nil {
		if err := s.DB.MarkPayment(ctx, pay.ID, payStatus); err != nil {
			s.Logger.Error("DATABASE", fmt.Sprintf("mark payment %d %s: %v", pay.ID, payStatus, err))
		}
	}

	s.Logger.LogTicket("RELEASE", t.ID, reason)
	s.notify(ctx, t.ID, models.TicketReleased, time.Now().UTC())
	return outcome.Ok(), nil
}

func (s *Service) notify(ctx context.Context, ticketID int64, status models.TicketStatus, at time.Time) {
	ev := models.TicketStatusChangedEvent{
		TicketID:  ticketID,
		NewStatus: string(status),
		ChangedAt: at,
	}
	if err := s.Notifier.PublishStatusChanged(ctx, ev); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("publish status change for ticket %d: %v", ticketID, err))
	}
}

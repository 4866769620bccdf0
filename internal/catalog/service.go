// Package catalog owns the uncontended read and administrative paths:
// event creation, bulk ticket creation, manual release, cancel, delete,
// status display and the QR pass. Administrative transitions still go
// through the CAS repository like everything else.
package catalog

import (
	"context"
	"errors"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"

	"ms-tickethub/internal/logger"
	"ms-tickethub/internal/models"
	"ms-tickethub/internal/outcome"
	"ms-tickethub/internal/ticket"
	"ms-tickethub/internal/ticket/db"
)

var ErrPassUnavailable = errors.New("pass is only available for paid tickets")

type DBLayer interface {
	GetTicketByID(ctx context.Context, id int64) (*models.Ticket, error)
	TryTransition(ctx context.Context, t *models.Ticket, expectedStatus models.TicketStatus, reason string, mutate func(*models.Ticket)) (bool, error)
	BulkCreateTickets(ctx context.Context, eventID int64, count int) ([]models.Ticket, error)
	ListTicketsByEvent(ctx context.Context, eventID int64) ([]models.Ticket, error)
	HistoryForTicket(ctx context.Context, ticketID int64) ([]models.TicketHistory, error)
	DeleteTicketCascade(ctx context.Context, ticketID int64) error
	CreateEvent(ctx context.Context, ev *models.Event) error
	GetEventByID(ctx context.Context, id int64) (*models.Event, error)
	ListEvents(ctx context.Context) ([]models.Event, error)
}

type Service struct {
	DB     DBLayer
	Logger *logger.Logger
}

func NewService(dbLayer DBLayer, log *logger.Logger) *Service {
	return &Service{DB: dbLayer, Logger: log}
}

func (s *Service) CreateEvent(ctx context.Context, ev *models.Event) error {
	if ev.Name == "" {
		return errors.New("event name is required")
	}
	if ev.StartsAt.IsZero() {
		return errors.New("event start time is required")
	}
	return s.DB.CreateEvent(ctx, ev)
}

func (s *Service) ListEvents(ctx context.Context) ([]models.Event, error) {
	return s.DB.ListEvents(ctx)
}

// BulkCreateTickets mints count available tickets for an event.
func (s *Service) BulkCreateTickets(ctx context.Context, eventID int64, count int) ([]models.Ticket, error) {
	if count <= 0 || count > 10000 {
		return nil, errors.New("count must be between 1 and 10000")
	}
	if _, err := s.DB.GetEventByID(ctx, eventID); err != nil {
		return nil, err
	}
	tickets, err := s.DB.BulkCreateTickets(ctx, eventID, count)
	if err != nil {
		return nil, err
	}
	s.Logger.LogDatabase("INSERT", "tickets", fmt.Sprintf("created %d tickets for event %d", count, eventID))
	return tickets, nil
}

func (s *Service) GetTicket(ctx context.Context, id int64) (*models.Ticket, error) {
	return s.DB.GetTicketByID(ctx, id)
}

func (s *Service) ListTicketsByEvent(ctx context.Context, eventID int64) ([]models.Ticket, error) {
	return s.DB.ListTicketsByEvent(ctx, eventID)
}

func (s *Service) TicketHistory(ctx context.Context, ticketID int64) ([]models.TicketHistory, error) {
	return s.DB.HistoryForTicket(ctx, ticketID)
}

// ReleaseTicket is the manual reserved -> available path.
func (s *Service) ReleaseTicket(ctx context.Context, id int64) (outcome.Result, error) {
	return s.adminTransition(ctx, id, models.TicketReserved, models.TicketAvailable, "manual release", func(n *models.Ticket) {
		n.Status = models.TicketAvailable
		n.ReservedAt = nil
		n.ExpiresAt = nil
		n.OrderID = ""
		n.ReservedBy = ""
	})
}

// ReopenTicket returns a released ticket to the sellable pool.
func (s *Service) ReopenTicket(ctx context.Context, id int64) (outcome.Result, error) {
	return s.adminTransition(ctx, id, models.TicketReleased, models.TicketAvailable, "returned to pool", func(n *models.Ticket) {
		n.Status = models.TicketAvailable
		n.ReservedAt = nil
		n.ExpiresAt = nil
		n.OrderID = ""
		n.ReservedBy = ""
	})
}

// CancelTicket is the administrative terminal transition, allowed from
// any status the table permits.
func (s *Service) CancelTicket(ctx context.Context, id int64) (outcome.Result, error) {
	t, err := s.DB.GetTicketByID(ctx, id)
	if errors.Is(err, db.ErrTicketNotFound) {
		return outcome.Fail(outcome.KindNotFound, fmt.Sprintf("ticket %d not found", id)), nil
	}
	if err != nil {
		return outcome.Result{}, err
	}
	if t.Status == models.TicketCancelled {
		return outcome.Already("ticket already cancelled"), nil
	}
	if !ticket.CanTransition(t.Status, models.TicketCancelled) {
		return outcome.Fail(outcome.KindInvalidState, fmt.Sprintf("cannot cancel ticket in status %s", t.Status)), nil
	}

	applied, err := s.DB.TryTransition(ctx, t, t.Status, "administrative cancel", func(n *models.Ticket) {
		n.Status = models.TicketCancelled
		n.ExpiresAt = nil
	})
	if err != nil {
		return outcome.Result{}, err
	}
	if !applied {
		return outcome.Fail(outcome.KindConcurrencyLost, "modified by another process"), nil
	}
	s.Logger.LogTicket("CANCEL", id, "administratively cancelled")
	return outcome.Ok(), nil
}

func (s *Service) DeleteTicket(ctx context.Context, id int64) error {
	if _, err := s.DB.GetTicketByID(ctx, id); err != nil {
		return err
	}
	if err := s.DB.DeleteTicketCascade(ctx, id); err != nil {
		return err
	}
	s.Logger.LogDatabase("DELETE", "tickets", fmt.Sprintf("ticket %d deleted with payments and history", id))
	return nil
}

// TicketPass renders a QR pass for a paid ticket.
func (s *Service) TicketPass(ctx context.Context, id int64) ([]byte, error) {
	t, err := s.DB.GetTicketByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != models.TicketPaid {
		return nil, ErrPassUnavailable
	}
	content := fmt.Sprintf("tickethub:ticket:%d:event:%d:order:%s", t.ID, t.EventID, t.OrderID)
	return qrcode.Encode(content, qrcode.Medium, 256)
}

func (s *Service) adminTransition(ctx context.Context, id int64, from, to models.TicketStatus, reason string, mutate func(*models.Ticket)) (outcome.Result, error) {
	t, err := s.DB.GetTicketByID(ctx, id)
	if errors.Is(err, db.ErrTicketNotFound) {
		return outcome.Fail(outcome.KindNotFound, fmt.Sprintf("ticket %d not found", id)), nil
	}
	if err != nil {
		return outcome.Result{}, err
	}

	switch ticket.Classify(t.Status, from, to) {
	case ticket.AlreadyApplied:
		return outcome.Already(fmt.Sprintf("ticket already %s", to)), nil
	case ticket.Invalid:
		return outcome.Fail(outcome.KindInvalidState, fmt.Sprintf("cannot move ticket from %s to %s", t.Status, to)), nil
	}

	applied, err := s.DB.TryTransition(ctx, t, from, reason, mutate)
	if err != nil {
		return outcome.Result{}, err
	}
	if !applied {
		return outcome.Fail(outcome.KindConcurrencyLost, "modified by another process"), nil
	}
	s.Logger.LogTicket("ADMIN", id, reason)
	return outcome.Ok(), nil
}

// Package db is the only sanctioned write path for ticket status. Every
// transition is a single conditional UPDATE guarded by (id, version,
// status) with the history append in the same transaction; there is no
// blind overwrite anywhere.
package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"ms-tickethub/internal/models"
)

var (
	ErrTicketNotFound = errors.New("ticket not found")
	ErrEventNotFound  = errors.New("event not found")
)

type DB struct {
	Bun *bun.DB
}

func New(bunDB *bun.DB) *DB {
	return &DB{Bun: bunDB}
}

func (d *DB) GetTicketByID(ctx context.Context, id int64) (*models.Ticket, error) {
	var t models.Ticket
	err := d.Bun.NewSelect().
		Model(&t).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// TryTransition attempts the compare-and-swap from the snapshot the
// caller read. The UPDATE only matches while the row still carries the
// snapshot's version and expectedStatus; on a match it applies mutate,
// bumps version by one and appends the history row in the same
// transaction. Zero rows affected returns (false, nil): the caller must
// re-read to tell "lost the race" from "already in the target state".
// On success the snapshot is updated in place to the written row.
func (d *DB) TryTransition(ctx context.Context, t *models.Ticket, expectedStatus models.TicketStatus, reason string, mutate func(*models.Ticket)) (bool, error) {
	expectedVersion := t.Version
	next := *t
	mutate(&next)
	next.Version = expectedVersion + 1

	applied := false
	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model(&next).
			Column("status", "reserved_at", "expires_at", "paid_at", "order_id", "reserved_by", "version").
			Where("id = ? AND version = ? AND status = ?", next.ID, expectedVersion, expectedStatus).
			Exec(ctx)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		applied = true

		hist := &models.TicketHistory{
			TicketID:  next.ID,
			OldStatus: expectedStatus,
			NewStatus: next.Status,
			ChangedAt: time.Now().UTC(),
			Reason:    reason,
		}
		_, err = tx.NewInsert().Model(hist).Exec(ctx)
		return err
	})
	if err != nil {
		return false, err
	}
	if applied {
		*t = next
	}
	return applied, nil
}

// BulkCreateTickets inserts count fresh rows for an event, all
// available at version 0.
func (d *DB) BulkCreateTickets(ctx context.Context, eventID int64, count int) ([]models.Ticket, error) {
	tickets := make([]models.Ticket, count)
	for i := range tickets {
		tickets[i] = models.Ticket{
			EventID: eventID,
			Status:  models.TicketAvailable,
			Version: 0,
		}
	}
	if _, err := d.Bun.NewInsert().Model(&tickets).Exec(ctx); err != nil {
		return nil, err
	}
	return tickets, nil
}

func (d *DB) ListTicketsByEvent(ctx context.Context, eventID int64) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("event_id = ?", eventID).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

// ListExpiredReservations returns reserved tickets whose stored window
// elapsed before the given instant. Used by the sweep; each hit is then
// released through the CAS path, never updated in bulk.
func (d *DB) ListExpiredReservations(ctx context.Context, before time.Time, limit int) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("status = ?", models.TicketReserved).
		Where("expires_at IS NOT NULL AND expires_at < ?", before).
		Order("expires_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

// GetPendingPayment returns the pending payment for a ticket, or nil
// when none exists.
func (d *DB) GetPendingPayment(ctx context.Context, ticketID int64) (*models.Payment, error) {
	var p models.Payment
	err := d.Bun.NewSelect().
		Model(&p).
		Where("ticket_id = ? AND status = ?", ticketID, models.PaymentPending).
		Order("id DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// EnsurePendingPayment returns the existing pending payment for the
// ticket or creates one. Duplicate decision events are expected, so
// this must not create a second pending row.
func (d *DB) EnsurePendingPayment(ctx context.Context, ticketID, amountCents int64, currency, providerRef string) (*models.Payment, error) {
	if existing, err := d.GetPendingPayment(ctx, ticketID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	now := time.Now().UTC()
	p := &models.Payment{
		TicketID:    ticketID,
		Status:      models.PaymentPending,
		ProviderRef: providerRef,
		AmountCents: amountCents,
		Currency:    currency,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := d.Bun.NewInsert().Model(p).Exec(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (d *DB) MarkPayment(ctx context.Context, paymentID int64, status models.PaymentStatus) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Payment)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", paymentID).
		Exec(ctx)
	return err
}

func (d *DB) HistoryForTicket(ctx context.Context, ticketID int64) ([]models.TicketHistory, error) {
	var rows []models.TicketHistory
	err := d.Bun.NewSelect().
		Model(&rows).
		Where("ticket_id = ?", ticketID).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// DeleteTicketCascade removes a ticket with its payments and history.
// Administrative only; the lifecycle never deletes rows.
func (d *DB) DeleteTicketCascade(ctx context.Context, ticketID int64) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*models.Payment)(nil)).
			Where("ticket_id = ?", ticketID).
			Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().
			Model((*models.TicketHistory)(nil)).
			Where("ticket_id = ?", ticketID).
			Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewDelete().
			Model((*models.Ticket)(nil)).
			Where("id = ?", ticketID).
			Exec(ctx)
		return err
	})
}

func (d *DB) CreateEvent(ctx context.Context, ev *models.Event) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	_, err := d.Bun.NewInsert().Model(ev).Exec(ctx)
	return err
}

func (d *DB) GetEventByID(ctx context.Context, id int64) (*models.Event, error) {
	var ev models.Event
	err := d.Bun.NewSelect().
		Model(&ev).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (d *DB) ListEvents(ctx context.Context) ([]models.Event, error) {
	var events []models.Event
	err := d.Bun.NewSelect().
		Model(&events).
		Order("starts_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return events, nil
}

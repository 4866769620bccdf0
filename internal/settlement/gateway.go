package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"ms-tickethub/internal/broker"
	"ms-tickethub/internal/models"
	"ms-tickethub/internal/outcome"
	"ms-tickethub/internal/ticket/db"
)

// Gateway models the external payment decision as a black box.
type Gateway interface {
	Decide(ctx context.Context, req models.PaymentRequestedEvent) (approved bool, ref string, reason string, err error)
}

// SimulatedGateway approves with a configured probability after a
// bounded random delay standing in for the external call.
type SimulatedGateway struct {
	ApprovalRate float64
	MinDelay     time.Duration
	MaxDelay     time.Duration
}

func (g *SimulatedGateway) Decide(ctx context.Context, req models.PaymentRequestedEvent) (bool, string, string, error) {
	delay := g.MinDelay
	if g.MaxDelay > g.MinDelay {
		delay += time.Duration(rand.Int63n(int64(g.MaxDelay - g.MinDelay)))
	}
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return false, "", "", ctx.Err()
	}

	ref := req.TransactionRef
	if ref == "" {
		ref = "txn_" + uuid.NewString()
	}
	if rand.Float64() < g.ApprovalRate {
		return true, ref, "", nil
	}
	return false, ref, "card declined", nil
}

// Publisher re-emits the decision onto the settlement queues.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// Processor consumes ticket.payments.requested, runs the gateway
// decision asynchronously and republishes it as an approved or
// rejected event for the settlement consumers.
type Processor struct {
	Service   *Service
	Gateway   Gateway
	Publisher Publisher
}

func NewProcessor(svc *Service, gw Gateway, pub Publisher) *Processor {
	return &Processor{Service: svc, Gateway: gw, Publisher: pub}
}

func (p *Processor) HandlePaymentRequested(ctx context.Context, body []byte) (outcome.Result, error) {
	var req models.PaymentRequestedEvent
	if err := json.Unmarshal(body, &req); err != nil {
		return outcome.Result{}, fmt.Errorf("decode payment request: %w", err)
	}
	if req.TicketID <= 0 || req.AmountCents <= 0 || len(req.Currency) != 3 {
		return outcome.Fail(outcome.KindBadPayload, "payment request missing ticketId, amount or currency"), nil
	}

	t, err := p.Service.DB.GetTicketByID(ctx, req.TicketID)
	if errors.Is(err, db.ErrTicketNotFound) {
		return outcome.Fail(outcome.KindNotFound, fmt.Sprintf("ticket %d not found", req.TicketID)), nil
	}
	if err != nil {
		return outcome.Result{}, fmt.Errorf("load ticket %d: %w", req.TicketID, err)
	}

	// The pending payment row exists before the decision so a
	// rejection can reference it. Ensure is idempotent on replay.
	pay, err := p.Service.DB.EnsurePendingPayment(ctx, t.ID, req.AmountCents, req.Currency, req.TransactionRef)
	if err != nil {
		return outcome.Result{}, fmt.Errorf("ensure payment for ticket %d: %w", t.ID, err)
	}

	approved, ref, reason, err := p.Gateway.Decide(ctx, req)
	if err != nil {
		return outcome.Result{}, fmt.Errorf("gateway decision for ticket %d: %w", t.ID, err)
	}

	now := time.Now().UTC()
	if approved {
		ev := models.PaymentApprovedEvent{
			TicketID:       req.TicketID,
			EventID:        req.EventID,
			AmountCents:    req.AmountCents,
			Currency:       req.Currency,
			PaymentBy:      req.PaymentBy,
			TransactionRef: ref,
			ApprovedAt:     now,
		}
		if err := p.Publisher.Publish(ctx, broker.QueuePaymentsApproved, ev); err != nil {
			return outcome.Result{}, err
		}
	} else {
		ev := models.PaymentRejectedEvent{
			TicketID:        req.TicketID,
			PaymentID:       pay.ID,
			RejectionReason: reason,
			RejectedAt:      now,
			EventID:         req.EventID,
			EventTimestamp:  req.RequestedAt,
		}
		if err := p.Publisher.Publish(ctx, broker.QueuePaymentsRejected, ev); err != nil {
			return outcome.Result{}, err
		}
	}
	return outcome.Ok(), nil
}

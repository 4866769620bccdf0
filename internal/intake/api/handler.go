// Package api carries the intake HTTP handlers. Both endpoints are
// fire-and-forget: 202 means the event was enqueued, not applied. Only
// request-shape validation happens here; every business rule lives
// behind the broker.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ms-tickethub/internal/broker"
	"ms-tickethub/internal/logger"
	"ms-tickethub/internal/models"
	"ms-tickethub/internal/utils"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

type Handler struct {
	Publisher Publisher
	Logger    *logger.Logger
}

func NewHandler(pub Publisher, log *logger.Logger) *Handler {
	return &Handler{Publisher: pub, Logger: log}
}

type ReserveRequest struct {
	EventID          int64  `json:"eventId"`
	TicketID         int64  `json:"ticketId"`
	OrderID          string `json:"orderId"`
	ReservedBy       string `json:"reservedBy"`
	ExpiresInSeconds int    `json:"expiresInSeconds"`
}

func (r ReserveRequest) validate() string {
	switch {
	case r.TicketID <= 0:
		return "ticketId is required"
	case r.EventID <= 0:
		return "eventId is required"
	case r.OrderID == "":
		return "orderId is required"
	case r.ReservedBy == "":
		return "reservedBy is required"
	case r.ExpiresInSeconds <= 0:
		return "expiresInSeconds must be positive"
	}
	return ""
}

func (h *Handler) ReserveTicket(w http.ResponseWriter, r *http.Request) {
	var req ReserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("ReserveTicket: bad body: %v", err))
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid request body", err.Error()))
		return
	}
	if msg := req.validate(); msg != "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("validation failed", msg))
		return
	}

	ev := models.ReserveTicketEvent{
		TicketID:                   req.TicketID,
		EventID:                    req.EventID,
		OrderID:                    req.OrderID,
		ReservedBy:                 req.ReservedBy,
		ReservationDurationSeconds: req.ExpiresInSeconds,
		PublishedAt:                time.Now().UTC(),
	}
	if err := h.Publisher.Publish(r.Context(), broker.QueueTicketReserved, ev); err != nil {
		h.Logger.Error("API", fmt.Sprintf("ReserveTicket: enqueue failed: %v", err))
		utils.WriteJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse("could not enqueue reservation", err.Error()))
		return
	}

	h.Logger.LogAPI("POST", "/api/tickets/reserve", "202")
	utils.WriteJSON(w, http.StatusAccepted, utils.SuccessResponse("reservation request accepted", map[string]any{
		"ticketId": req.TicketID,
		"orderId":  req.OrderID,
	}))
}

type ProcessPaymentRequest struct {
	TicketID        int64  `json:"ticketId"`
	EventID         int64  `json:"eventId"`
	AmountCents     int64  `json:"amountCents"`
	Currency        string `json:"currency"`
	PaymentBy       string `json:"paymentBy"`
	PaymentMethodID string `json:"paymentMethodId"`
	TransactionRef  string `json:"transactionRef,omitempty"`
}

func (r ProcessPaymentRequest) validate() string {
	switch {
	case r.TicketID <= 0:
		return "ticketId is required"
	case r.EventID <= 0:
		return "eventId is required"
	case r.AmountCents <= 0:
		return "amountCents must be positive"
	case len(r.Currency) != 3:
		return "currency must be a 3-letter code"
	case r.PaymentBy == "":
		return "paymentBy is required"
	case r.PaymentMethodID == "":
		return "paymentMethodId is required"
	}
	return ""
}

func (h *Handler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	var req ProcessPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("ProcessPayment: bad body: %v", err))
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid request body", err.Error()))
		return
	}
	if msg := req.validate(); msg != "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("validation failed", msg))
		return
	}

	ev := models.PaymentRequestedEvent{
		TicketID:        req.TicketID,
		EventID:         req.EventID,
		AmountCents:     req.AmountCents,
		Currency:        req.Currency,
		PaymentBy:       req.PaymentBy,
		PaymentMethodID: req.PaymentMethodID,
		TransactionRef:  req.TransactionRef,
		RequestedAt:     time.Now().UTC(),
	}
	if err := h.Publisher.Publish(r.Context(), broker.QueuePaymentsRequested, ev); err != nil {
		h.Logger.Error("API", fmt.Sprintf("ProcessPayment: enqueue failed: %v", err))
		utils.WriteJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse("could not enqueue payment", err.Error()))
		return
	}

	h.Logger.LogAPI("POST", "/api/payments/process", "202")
	utils.WriteJSON(w, http.StatusAccepted, utils.SuccessResponse("payment request accepted", map[string]any{
		"ticketId": req.TicketID,
	}))
}

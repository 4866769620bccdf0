package models

import "time"

// Broker payloads. Field names are part of the wire contract between the
// services, so keep them stable.

// ReserveTicketEvent is the reservation intent published by the intake
// service onto the ticket.reserved queue.
type ReserveTicketEvent struct {
	TicketID                   int64     `json:"ticketId"`
	EventID                    int64     `json:"eventId"`
	OrderID                    string    `json:"orderId"`
	ReservedBy                 string    `json:"reservedBy"`
	ReservationDurationSeconds int       `json:"reservationDurationSeconds"`
	PublishedAt                time.Time `json:"publishedAt"`
}

// PaymentRequestedEvent asks the settlement service to run the gateway
// decision for a ticket. The decision itself happens asynchronously in
// the consumer, never in the HTTP path.
type PaymentRequestedEvent struct {
	TicketID        int64     `json:"ticketId"`
	EventID         int64     `json:"eventId"`
	AmountCents     int64     `json:"amountCents"`
	Currency        string    `json:"currency"`
	PaymentBy       string    `json:"paymentBy"`
	PaymentMethodID string    `json:"paymentMethodId"`
	TransactionRef  string    `json:"transactionRef,omitempty"`
	RequestedAt     time.Time `json:"requestedAt"`
}

// PaymentApprovedEvent carries an approve decision. ApprovedAt is the
// decision timestamp and is what the TTL guard evaluates, so a broker
// backlog cannot manufacture expiry on its own.
type PaymentApprovedEvent struct {
	TicketID       int64     `json:"ticketId"`
	EventID        int64     `json:"eventId"`
	AmountCents    int64     `json:"amountCents"`
	Currency       string    `json:"currency"`
	PaymentBy      string    `json:"paymentBy"`
	TransactionRef string    `json:"transactionRef"`
	ApprovedAt     time.Time `json:"approvedAt"`
}

type PaymentRejectedEvent struct {
	TicketID        int64     `json:"ticketId"`
	PaymentID       int64     `json:"paymentId"`
	RejectionReason string    `json:"rejectionReason"`
	RejectedAt      time.Time `json:"rejectedAt"`
	EventID         int64     `json:"eventId"`
	EventTimestamp  time.Time `json:"eventTimestamp"`
}

// TicketStatusChangedEvent is the fan-out notification emitted to Kafka
// after a transition commits, never speculatively.
type TicketStatusChangedEvent struct {
	TicketID  int64     `json:"ticketId"`
	NewStatus string    `json:"newStatus"`
	ChangedAt time.Time `json:"changedAt"`
}

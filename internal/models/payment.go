package models

import (
	"time"

	"github.com/uptrace/bun"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentApproved PaymentStatus = "approved"
	PaymentFailed   PaymentStatus = "failed"
	PaymentExpired  PaymentStatus = "expired"
)

// Payment records one settlement attempt for a ticket. At most one
// pending payment per ticket matters for settlement; duplicate decision
// events are fenced by the ticket status, not by payment uniqueness.
type Payment struct {
	bun.BaseModel `bun:"table:payments"`

	ID          int64         `bun:"id,pk,autoincrement" json:"id"`
	TicketID    int64         `bun:"ticket_id,notnull" json:"ticket_id"`
	Status      PaymentStatus `bun:"status,notnull" json:"status"`
	ProviderRef string        `bun:"provider_ref,nullzero" json:"provider_ref,omitempty"`
	AmountCents int64         `bun:"amount_cents,notnull" json:"amount_cents"`
	Currency    string        `bun:"currency,notnull" json:"currency"`
	CreatedAt   time.Time     `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt   time.Time     `bun:"updated_at,notnull" json:"updated_at"`
}

package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TicketStatus string

const (
	TicketAvailable TicketStatus = "available"
	TicketReserved  TicketStatus = "reserved"
	TicketPaid      TicketStatus = "paid"
	TicketReleased  TicketStatus = "released"
	TicketCancelled TicketStatus = "cancelled"
)

// Ticket is the contended row. Version is the sole concurrency token:
// every accepted transition goes through the CAS repository and bumps it
// by exactly one. The reservation fields stay populated after settlement
// for the audit trail; only expires_at is cleared on release.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	ID         int64        `bun:"id,pk,autoincrement" json:"id"`
	EventID    int64        `bun:"event_id,notnull" json:"event_id"`
	Status     TicketStatus `bun:"status,notnull" json:"status"`
	ReservedAt *time.Time   `bun:"reserved_at,nullzero" json:"reserved_at,omitempty"`
	ExpiresAt  *time.Time   `bun:"expires_at,nullzero" json:"expires_at,omitempty"`
	PaidAt     *time.Time   `bun:"paid_at,nullzero" json:"paid_at,omitempty"`
	OrderID    string       `bun:"order_id,nullzero" json:"order_id,omitempty"`
	ReservedBy string       `bun:"reserved_by,nullzero" json:"reserved_by,omitempty"`
	Version    int64        `bun:"version,notnull,default:0" json:"version"`
}

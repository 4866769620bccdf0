package models

import (
	"time"

	"github.com/uptrace/bun"
)

// TicketHistory is the append-only audit log: exactly one row per
// accepted transition, written in the same transaction as the CAS
// update. Idempotent replays are logged, never appended.
type TicketHistory struct {
	bun.BaseModel `bun:"table:ticket_history"`

	ID        int64        `bun:"id,pk,autoincrement" json:"id"`
	TicketID  int64        `bun:"ticket_id,notnull" json:"ticket_id"`
	OldStatus TicketStatus `bun:"old_status,notnull" json:"old_status"`
	NewStatus TicketStatus `bun:"new_status,notnull" json:"new_status"`
	ChangedAt time.Time    `bun:"changed_at,notnull" json:"changed_at"`
	Reason    string       `bun:"reason,nullzero" json:"reason,omitempty"`
}

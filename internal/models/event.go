package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Event groups tickets. Read-mostly; not part of the contended core.
type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	Name      string    `bun:"name,notnull" json:"name"`
	Venue     string    `bun:"venue,nullzero" json:"venue,omitempty"`
	StartsAt  time.Time `bun:"starts_at,notnull" json:"starts_at"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}

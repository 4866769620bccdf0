package db

import (
	"context"

	"github.com/uptrace/bun"

	"ms-tickethub/internal/models"
)

// Migrate creates the four tables if they do not exist yet. Services
// call this at startup; the statements are idempotent.
func Migrate(ctx context.Context, bunDB *bun.DB) error {
	for _, model := range []any{
		(*models.Event)(nil),
		(*models.Ticket)(nil),
		(*models.Payment)(nil),
		(*models.TicketHistory)(nil),
	} {
		if _, err := bunDB.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

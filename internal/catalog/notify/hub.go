// Package notify relays committed status changes to short-lived push
// subscribers. The catalog's Kafka consumer publishes each change into
// a per-ticket Redis channel; a waiter subscribes to that channel and
// receives at most one notification before its window expires.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-tickethub/internal/logger"
	"ms-tickethub/internal/models"
)

// ErrTimeout means the subscription window elapsed with no change.
var ErrTimeout = errors.New("no status change before subscription expired")

const DefaultWindow = 30 * time.Second

type Hub struct {
	rdb    *redis.Client
	log    *logger.Logger
	window time.Duration
}

func NewHub(rdb *redis.Client, log *logger.Logger) *Hub {
	return &Hub{rdb: rdb, log: log, window: DefaultWindow}
}

func channelFor(ticketID int64) string {
	return fmt.Sprintf("ticket_status:%d", ticketID)
}

// Publish fans a committed status change out to whoever is waiting on
// this ticket right now. No subscriber, no delivery; the notification
// stream is best effort.
func (h *Hub) Publish(ctx context.Context, ev models.TicketStatusChangedEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := h.rdb.Publish(ctx, channelFor(ev.TicketID), payload).Err(); err != nil {
		return err
	}
	h.log.Debug("NOTIFY", fmt.Sprintf("relayed %s for ticket %d", ev.NewStatus, ev.TicketID))
	return nil
}

// WaitForChange blocks until one status change arrives for the ticket,
// the window expires, or the caller goes away. Single shot: the
// subscription ends after the first delivery.
func (h *Hub) WaitForChange(ctx context.Context, ticketID int64) (*models.TicketStatusChangedEvent, error) {
	sub := h.rdb.Subscribe(ctx, channelFor(ticketID))
	defer sub.Close()

	timer := time.NewTimer(h.window)
	defer timer.Stop()

	for {
		select {
		case msg, ok := <-sub.Channel():
			if !ok {
				return nil, errors.New("subscription closed")
			}
			var ev models.TicketStatusChangedEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				h.log.Warn("NOTIFY", fmt.Sprintf("skipping undecodable notification: %v", err))
				continue
			}
			return &ev, nil
		case <-timer.C:
			return nil, ErrTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

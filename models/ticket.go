package models

import (
	"time"

	"github.com/shopspring/decimal"

	"tikiti/internal/status"
)

// TicketInventory is the per-event, per-type ticket pool. Available is the
// one shared mutable counter in the system; it is only ever changed through
// single-statement conditional updates, never read-modify-write.
type TicketInventory struct {
	ID            string          `json:"id"`
	EventID       string          `json:"event_id"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	TotalQuantity int             `json:"total_quantity"`
	Available     int             `json:"available"`
	MinOrder      int             `json:"min_order"`
	MaxOrder      int             `json:"max_order"`
	SaleStarts    time.Time       `json:"sale_starts"`
	SaleEnds      time.Time       `json:"sale_ends"`
	Active        bool            `json:"active"`
}

// CanPurchase runs the availability ladder. Checks run in priority order and
// the first failure wins; each one carries its own user-facing message.
func (t *TicketInventory) CanPurchase(quantity int, now time.Time) error {
	if !t.Active {
		return status.NewInventoryError("This ticket is not available for sale")
	}
	if !t.SaleStarts.IsZero() && now.Before(t.SaleStarts) {
		return status.NewInventoryError("Ticket sales have not started yet")
	}
	if !t.SaleEnds.IsZero() && now.After(t.SaleEnds) {
		return status.NewInventoryError("Ticket sales have ended")
	}
	if t.Available <= 0 {
		return status.NewInventoryError("This ticket is sold out")
	}
	if t.MinOrder > 0 && quantity < t.MinOrder {
		return status.NewInventoryError("Minimum order is %d tickets", t.MinOrder)
	}
	if t.MaxOrder > 0 && quantity > t.MaxOrder {
		return status.NewInventoryError("Maximum order is %d tickets", t.MaxOrder)
	}
	if quantity > t.Available {
		return status.NewInventoryError("Only %d tickets are available", t.Available)
	}
	return nil
}

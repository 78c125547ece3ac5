package services

import (
	"context"
	"fmt"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"tikiti/internal/status"
	"tikiti/models"
	"tikiti/monitoring"
)

// InventoryService owns the ticket availability counter. Every mutation is a
// single conditional UPDATE so concurrent checkouts race at the storage layer
// and never oversell.
type InventoryService struct {
	app core.App
}

func NewInventoryService(app core.App) *InventoryService {
	return &InventoryService{app: app}
}

func (s *InventoryService) Get(ctx context.Context, ticketID string) (*models.TicketInventory, error) {
	record, err := s.app.FindRecordById("tickets", ticketID)
	if err != nil {
		return nil, status.ErrTicketNotFound
	}
	return ticketFromRecord(record), nil
}

func ticketFromRecord(r *core.Record) *models.TicketInventory {
	return &models.TicketInventory{
		ID:            r.Id,
		EventID:       r.GetString("event"),
		Name:          r.GetString("name"),
		Price:         decimal.NewFromFloat(r.GetFloat("price")),
		TotalQuantity: r.GetInt("total_quantity"),
		Available:     r.GetInt("available"),
		MinOrder:      r.GetInt("min_order"),
		MaxOrder:      r.GetInt("max_order"),
		SaleStarts:    r.GetDateTime("sale_starts").Time(),
		SaleEnds:      r.GetDateTime("sale_ends").Time(),
		Active:        r.GetBool("active"),
	}
}

// CanPurchase validates eligibility without mutating anything. Returns the
// loaded ticket so callers can price the order from the same read.
func (s *InventoryService) CanPurchase(ctx context.Context, ticketID string, quantity int) (*models.TicketInventory, error) {
	ticket, err := s.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := ticket.CanPurchase(quantity, time.Now()); err != nil {
		return nil, err
	}
	return ticket, nil
}

// Reserve takes the soft hold at order-creation time. The decrement is a
// compare-and-swap on available; zero rows affected means a concurrent
// checkout won the race.
func (s *InventoryService) Reserve(ctx context.Context, ticketID string, quantity int) error {
	ticket, err := s.CanPurchase(ctx, ticketID, quantity)
	if err != nil {
		monitoring.TrackInventoryOp("reserve", "rejected")
		return err
	}

	res, err := s.app.DB().NewQuery(
		"UPDATE tickets SET available = available - {:qty} WHERE id = {:id} AND available >= {:qty}",
	).Bind(dbx.Params{"qty": quantity, "id": ticketID}).Execute()
	if err != nil {
		monitoring.TrackInventoryOp("reserve", "error")
		return fmt.Errorf("inventory reserve: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("inventory reserve: %w", err)
	}
	if rows == 0 {
		// Lost the race since the eligibility read; re-read for an accurate
		// user-facing count.
		monitoring.TrackInventoryOp("reserve", "rejected")
		if current, gerr := s.Get(ctx, ticketID); gerr == nil {
			if current.Available <= 0 {
				return status.NewInventoryError("This ticket is sold out")
			}
			return status.NewInventoryError("Only %d tickets are available", current.Available)
		}
		return status.NewInventoryError("Only %d tickets are available", ticket.Available)
	}

	monitoring.TrackInventoryOp("reserve", "ok")
	return nil
}

// Release returns held units to the pool, clamped to totalQuantity so a
// double release can never inflate it.
func (s *InventoryService) Release(ctx context.Context, ticketID string, quantity int) error {
	_, err := s.app.DB().NewQuery(
		"UPDATE tickets SET available = MIN(total_quantity, available + {:qty}) WHERE id = {:id}",
	).Bind(dbx.Params{"qty": quantity, "id": ticketID}).Execute()
	if err != nil {
		monitoring.TrackInventoryOp("release", "error")
		return fmt.Errorf("inventory release: %w", err)
	}

	monitoring.TrackInventoryOp("release", "ok")
	return nil
}

// ConfirmPurchase makes the reservation permanent on payment success. The
// units were already deducted at reserve time; confirming again would double
// count them, so this only re-checks the ticket still exists.
func (s *InventoryService) ConfirmPurchase(ctx context.Context, ticketID string, quantity int) error {
	if _, err := s.Get(ctx, ticketID); err != nil {
		monitoring.TrackInventoryOp("confirm", "error")
		return err
	}

	monitoring.TrackInventoryOp("confirm", "ok")
	return nil
}

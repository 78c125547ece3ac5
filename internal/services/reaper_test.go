package services

import (
	"context"
	"testing"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tikiti/models"
)

func backdateOrder(t *testing.T, app core.App, orderID string, age time.Duration) {
	t.Helper()

	created := time.Now().Add(-age).UTC().Format("2006-01-02 15:04:05.000Z")
	_, err := app.DB().NewQuery(
		"UPDATE orders SET created = {:created} WHERE id = {:id}",
	).Bind(dbx.Params{"created": created, "id": orderID}).Execute()
	require.NoError(t, err)
}

func TestReleaseExpiredSweep(t *testing.T) {
	app := newTestApp(t)
	createOrdersCollection(t, app)

	items := []models.OrderItem{
		{TicketID: "t1", EventID: "evt1", TicketType: "Regular", Quantity: 2, UnitPrice: decimal.NewFromInt(500)},
	}

	stale := createOrderRecord(t, app, "pending", "cancelled", items)
	backdateOrder(t, app, stale.Id, 2*time.Hour)

	fresh := createOrderRecord(t, app, "pending", "cancelled", items)

	waiting := createOrderRecord(t, app, "pending", "pending", items)
	backdateOrder(t, app, waiting.Id, 2*time.Hour)

	inv := newFakeInventory("")
	payments := NewPaymentService(app, nil, inv, nil, nil, nil, nil)
	reaper := NewReaper(app, payments, nil, 30*time.Minute, "Tikiti")

	reaper.ReleaseExpired(context.Background())

	reloaded, err := app.FindRecordById("orders", stale.Id)
	require.NoError(t, err)
	assert.Equal(t, "expired", reloaded.GetString("status"))
	assert.Equal(t, "expired", reloaded.GetString("payment_status"))
	assert.True(t, reloaded.GetBool("inventory_released"))
	assert.Equal(t, 2, inv.released["t1"], "the held units go back on sale")

	// Too young to expire.
	reloaded, err = app.FindRecordById("orders", fresh.Id)
	require.NoError(t, err)
	assert.Equal(t, "pending", reloaded.GetString("status"))
	assert.False(t, reloaded.GetBool("inventory_released"))

	// Payment still undecided, not the reaper's call.
	reloaded, err = app.FindRecordById("orders", waiting.Id)
	require.NoError(t, err)
	assert.Equal(t, "pending", reloaded.GetString("status"))
	assert.False(t, reloaded.GetBool("inventory_released"))
}

func TestReleaseExpiredIsIdempotent(t *testing.T) {
	app := newTestApp(t)
	createOrdersCollection(t, app)

	items := []models.OrderItem{
		{TicketID: "t1", EventID: "evt1", TicketType: "Regular", Quantity: 1, UnitPrice: decimal.NewFromInt(500)},
	}
	stale := createOrderRecord(t, app, "pending", "failed", items)
	backdateOrder(t, app, stale.Id, time.Hour)

	inv := newFakeInventory("")
	payments := NewPaymentService(app, nil, inv, nil, nil, nil, nil)
	reaper := NewReaper(app, payments, nil, 30*time.Minute, "Tikiti")

	ctx := context.Background()
	reaper.ReleaseExpired(ctx)
	reaper.ReleaseExpired(ctx)

	reloaded, err := app.FindRecordById("orders", stale.Id)
	require.NoError(t, err)
	assert.Equal(t, "expired", reloaded.GetString("status"))
	assert.Equal(t, 1, inv.released["t1"], "a second sweep must not release twice")
}

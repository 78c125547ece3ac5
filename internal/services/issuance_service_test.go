package services

import (
	"context"
	"strings"
	"testing"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tikiti/models"
	"tikiti/utils"
)

func TestIssuanceShortfall(t *testing.T) {
	items := []models.OrderItem{
		{TicketID: "t1", Quantity: 2},
		{TicketID: "t2", Quantity: 3},
	}

	t.Run("nothing minted yet", func(t *testing.T) {
		remaining := issuanceShortfall(items, map[string]int{})
		require.Len(t, remaining, 2)
		assert.Equal(t, 2, remaining[0].Quantity)
		assert.Equal(t, 3, remaining[1].Quantity)
	})

	t.Run("partial mint", func(t *testing.T) {
		remaining := issuanceShortfall(items, map[string]int{"t1": 2, "t2": 1})
		require.Len(t, remaining, 1)
		assert.Equal(t, "t2", remaining[0].TicketID)
		assert.Equal(t, 2, remaining[0].Quantity)
	})

	t.Run("fully minted", func(t *testing.T) {
		assert.Empty(t, issuanceShortfall(items, map[string]int{"t1": 2, "t2": 3}))
	})

	t.Run("overshoot never goes negative", func(t *testing.T) {
		assert.Empty(t, issuanceShortfall(items, map[string]int{"t1": 5, "t2": 5}))
	})
}

func TestQRDataURLFallsBackToBareCode(t *testing.T) {
	assert.True(t, strings.HasPrefix(qrDataURL("TKT-123"), "data:image/png;base64,"))

	// Payloads beyond QR capacity cannot be encoded; the ticket keeps its
	// admission code for manual entry.
	oversized := strings.Repeat("x", 5000)
	assert.Equal(t, oversized, qrDataURL(oversized))
}

func countIssued(t *testing.T, app core.App, orderID string) int {
	t.Helper()
	records, err := app.FindRecordsByFilter(
		"issued_tickets",
		"order = {:order}",
		"", 0, 0,
		dbx.Params{"order": orderID},
	)
	require.NoError(t, err)
	return len(records)
}

func TestIssueMintsOneTicketPerUnit(t *testing.T) {
	app := newTestApp(t)
	createOrdersCollection(t, app)
	createIssuedTicketsCollection(t, app)

	order := createOrderRecord(t, app, "completed", "completed", []models.OrderItem{
		{TicketID: "t1", EventID: "evt1", TicketType: "Regular", Quantity: 2, UnitPrice: decimal.NewFromInt(500)},
		{TicketID: "t2", EventID: "evt1", TicketType: "VIP", Quantity: 3, UnitPrice: decimal.NewFromInt(1500)},
	})

	svc := NewIssuanceService(app, "Tikiti")
	ctx := context.Background()

	n, err := svc.Issue(ctx, order)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, countIssued(t, app, order.Id))

	// Re-delivery of the completion must not double mint.
	n, err = svc.Issue(ctx, order)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 5, countIssued(t, app, order.Id))
}

// An earlier attempt that died partway through leaves some tickets behind; the
// retry must mint only the missing units.
func TestIssueTopsUpPartialMint(t *testing.T) {
	app := newTestApp(t)
	createOrdersCollection(t, app)
	createIssuedTicketsCollection(t, app)

	order := createOrderRecord(t, app, "completed", "completed", []models.OrderItem{
		{TicketID: "t1", EventID: "evt1", TicketType: "Regular", Quantity: 5, UnitPrice: decimal.NewFromInt(500)},
	})

	collection, err := app.FindCollectionByNameOrId("issued_tickets")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		record := core.NewRecord(collection)
		record.Set("order", order.Id)
		record.Set("event", "evt1")
		record.Set("ticket", "t1")
		record.Set("ticket_type", "Regular")
		record.Set("price", 500.0)
		record.Set("code", utils.TicketCode())
		record.Set("attendee_name", "Jane")
		record.Set("attendee_email", "jane@example.com")
		record.Set("is_used", false)
		require.NoError(t, app.Save(record))
	}

	svc := NewIssuanceService(app, "Tikiti")

	n, err := svc.Issue(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "only the shortfall gets minted")
	assert.Equal(t, 5, countIssued(t, app, order.Id))
}

func TestIssuedTicketCodesAreUnique(t *testing.T) {
	app := newTestApp(t)
	createOrdersCollection(t, app)
	createIssuedTicketsCollection(t, app)

	order := createOrderRecord(t, app, "completed", "completed", []models.OrderItem{
		{TicketID: "t1", EventID: "evt1", TicketType: "Regular", Quantity: 4, UnitPrice: decimal.NewFromInt(500)},
	})

	svc := NewIssuanceService(app, "Tikiti")
	_, err := svc.Issue(context.Background(), order)
	require.NoError(t, err)

	records, err := app.FindRecordsByFilter(
		"issued_tickets",
		"order = {:order}",
		"", 0, 0,
		dbx.Params{"order": order.Id},
	)
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, r := range records {
		code := r.GetString("code")
		assert.NotEmpty(t, code)
		assert.False(t, seen[code], "duplicate admission code %s", code)
		seen[code] = true
	}
}

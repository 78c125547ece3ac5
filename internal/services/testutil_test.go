package services

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tests"

	"tikiti/models"
	"tikiti/utils"
)

// newTestApp boots a throwaway PocketBase instance backed by a real sqlite
// database, so the conditional UPDATE paths run against the same storage
// engine as production.
func newTestApp(t *testing.T) *tests.TestApp {
	t.Helper()

	app, err := tests.NewTestApp()
	if err != nil {
		t.Fatalf("failed to bootstrap test app: %v", err)
	}
	t.Cleanup(app.Cleanup)

	return app
}

func createTicketsCollection(t *testing.T, app core.App) {
	t.Helper()

	collection := core.NewBaseCollection("tickets")
	collection.Fields.Add(
		&core.TextField{Name: "event"},
		&core.TextField{Name: "name"},
		&core.NumberField{Name: "price"},
		&core.NumberField{Name: "total_quantity", OnlyInt: true},
		&core.NumberField{Name: "available", OnlyInt: true},
		&core.NumberField{Name: "min_order", OnlyInt: true},
		&core.NumberField{Name: "max_order", OnlyInt: true},
		&core.DateField{Name: "sale_starts"},
		&core.DateField{Name: "sale_ends"},
		&core.BoolField{Name: "active"},
	)
	if err := app.Save(collection); err != nil {
		t.Fatalf("failed to create tickets collection: %v", err)
	}
}

func createTicket(t *testing.T, app core.App, total, available int) *core.Record {
	t.Helper()

	collection, err := app.FindCollectionByNameOrId("tickets")
	if err != nil {
		t.Fatalf("tickets collection missing: %v", err)
	}

	record := core.NewRecord(collection)
	record.Set("event", "evt1")
	record.Set("name", "Regular")
	record.Set("price", 500.0)
	record.Set("total_quantity", total)
	record.Set("available", available)
	record.Set("min_order", 1)
	record.Set("max_order", 100)
	record.Set("active", true)
	if err := app.Save(record); err != nil {
		t.Fatalf("failed to create ticket: %v", err)
	}

	return record
}

func createOrdersCollection(t *testing.T, app core.App) {
	t.Helper()

	collection := core.NewBaseCollection("orders")
	collection.Fields.Add(
		&core.TextField{Name: "order_number"},
		&core.TextField{Name: "user"},
		&core.TextField{Name: "customer_name"},
		&core.TextField{Name: "customer_email"},
		&core.TextField{Name: "billing_address"},
		&core.TextField{Name: "payment_method"},
		&core.TextField{Name: "status"},
		&core.TextField{Name: "payment_status"},
		&core.TextField{Name: "claim_token_hash"},
		&core.JSONField{Name: "items", MaxSize: 100_000},
		&core.NumberField{Name: "subtotal"},
		&core.NumberField{Name: "discount_amount"},
		&core.NumberField{Name: "tax"},
		&core.NumberField{Name: "total"},
		&core.BoolField{Name: "is_guest"},
		&core.BoolField{Name: "converted_to_user"},
		&core.BoolField{Name: "inventory_released"},
		&core.AutodateField{Name: "created", OnCreate: true},
	)
	if err := app.Save(collection); err != nil {
		t.Fatalf("failed to create orders collection: %v", err)
	}
}

func createOrderRecord(t *testing.T, app core.App, orderStatus, payStatus string, items []models.OrderItem) *core.Record {
	t.Helper()

	collection, err := app.FindCollectionByNameOrId("orders")
	if err != nil {
		t.Fatalf("orders collection missing: %v", err)
	}

	number, err := utils.OrderNumber(time.Now())
	if err != nil {
		t.Fatalf("failed to generate order number: %v", err)
	}
	raw, err := json.Marshal(items)
	if err != nil {
		t.Fatalf("failed to marshal items: %v", err)
	}

	record := core.NewRecord(collection)
	record.Set("order_number", number)
	record.Set("customer_name", "Jane")
	record.Set("customer_email", "jane@example.com")
	record.Set("payment_method", "mpesa")
	record.Set("status", orderStatus)
	record.Set("payment_status", payStatus)
	record.Set("items", string(raw))
	record.Set("subtotal", 1000.0)
	record.Set("total", 1000.0)
	record.Set("is_guest", true)
	record.Set("inventory_released", false)
	if err := app.Save(record); err != nil {
		t.Fatalf("failed to create order: %v", err)
	}

	return record
}

func createIssuedTicketsCollection(t *testing.T, app core.App) {
	t.Helper()

	collection := core.NewBaseCollection("issued_tickets")
	collection.Fields.Add(
		&core.TextField{Name: "order"},
		&core.TextField{Name: "event"},
		&core.TextField{Name: "ticket"},
		&core.TextField{Name: "ticket_type"},
		&core.NumberField{Name: "price"},
		&core.TextField{Name: "code"},
		&core.TextField{Name: "qr_code", Max: 100_000},
		&core.TextField{Name: "attendee_name"},
		&core.TextField{Name: "attendee_email"},
		&core.BoolField{Name: "is_used"},
		&core.AutodateField{Name: "created", OnCreate: true},
	)
	if err := app.Save(collection); err != nil {
		t.Fatalf("failed to create issued_tickets collection: %v", err)
	}
}

func createTransactionsCollection(t *testing.T, app core.App) {
	t.Helper()

	collection := core.NewBaseCollection("transactions")
	collection.Fields.Add(
		&core.TextField{Name: "order"},
		&core.TextField{Name: "checkout_request_id"},
		&core.TextField{Name: "merchant_request_id"},
		&core.TextField{Name: "phone"},
		&core.NumberField{Name: "amount"},
		&core.TextField{Name: "status"},
		&core.TextField{Name: "result_code"},
		&core.TextField{Name: "result_desc"},
		&core.TextField{Name: "receipt_number"},
	)
	if err := app.Save(collection); err != nil {
		t.Fatalf("failed to create transactions collection: %v", err)
	}
}

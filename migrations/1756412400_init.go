package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
	"github.com/pocketbase/pocketbase/tools/types"
)

func init() {
	m.Register(func(app core.App) error {
		users, err := app.FindCollectionByNameOrId("users")
		if err != nil {
			return err
		}

		events := core.NewBaseCollection("events")
		events.Fields.Add(
			&core.TextField{Name: "name", Required: true, Max: 255},
			&core.TextField{Name: "description", Max: 5000},
			&core.TextField{Name: "venue", Max: 255},
			&core.DateField{Name: "starts_at", Required: true},
			&core.DateField{Name: "ends_at"},
			&core.BoolField{Name: "published"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		if err := app.Save(events); err != nil {
			return err
		}

		tickets := core.NewBaseCollection("tickets")
		tickets.Fields.Add(
			&core.RelationField{Name: "event", Required: true, CollectionId: events.Id, MaxSelect: 1},
			&core.TextField{Name: "name", Required: true, Max: 255},
			&core.NumberField{Name: "price", Required: true, Min: types.Pointer(0.0)},
			&core.NumberField{Name: "total_quantity", Required: true, OnlyInt: true, Min: types.Pointer(0.0)},
			&core.NumberField{Name: "available", OnlyInt: true, Min: types.Pointer(0.0)},
			&core.NumberField{Name: "min_order", OnlyInt: true, Min: types.Pointer(0.0)},
			&core.NumberField{Name: "max_order", OnlyInt: true, Min: types.Pointer(0.0)},
			&core.DateField{Name: "sale_starts"},
			&core.DateField{Name: "sale_ends"},
			&core.BoolField{Name: "active"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		if err := app.Save(tickets); err != nil {
			return err
		}

		orders := core.NewBaseCollection("orders")
		orders.Fields.Add(
			&core.TextField{Name: "order_number", Required: true, Max: 64},
			&core.RelationField{Name: "user", CollectionId: users.Id, MaxSelect: 1},
			&core.TextField{Name: "customer_name", Max: 255},
			&core.EmailField{Name: "customer_email"},
			&core.TextField{Name: "billing_address", Max: 1000},
			&core.SelectField{
				Name:      "payment_method",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{"mpesa", "card", "paypal", "free"},
			},
			&core.SelectField{
				Name:      "status",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{"pending", "confirmed", "processing", "completed", "cancelled", "refunded", "failed", "expired"},
			},
			&core.SelectField{
				Name:      "payment_status",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{"pending", "processing", "completed", "failed", "refunded", "free", "cancelled", "expired"},
			},
			&core.JSONField{Name: "items", MaxSize: 100_000},
			&core.NumberField{Name: "subtotal", Min: types.Pointer(0.0)},
			&core.NumberField{Name: "discount_amount", Min: types.Pointer(0.0)},
			&core.NumberField{Name: "tax", Min: types.Pointer(0.0)},
			&core.NumberField{Name: "total", Min: types.Pointer(0.0)},
			&core.BoolField{Name: "is_guest"},
			&core.BoolField{Name: "converted_to_user"},
			&core.BoolField{Name: "inventory_released"},
			&core.TextField{Name: "claim_token_hash", Max: 255},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		orders.AddIndex("idx_orders_order_number", true, "order_number", "")
		orders.AddIndex("idx_orders_status_created", false, "status, created", "")
		if err := app.Save(orders); err != nil {
			return err
		}

		transactions := core.NewBaseCollection("transactions")
		transactions.Fields.Add(
			&core.RelationField{Name: "order", Required: true, CollectionId: orders.Id, MaxSelect: 1},
			&core.TextField{Name: "checkout_request_id", Required: true, Max: 128},
			&core.TextField{Name: "merchant_request_id", Max: 128},
			&core.TextField{Name: "phone", Max: 32},
			&core.NumberField{Name: "amount", Min: types.Pointer(0.0)},
			&core.SelectField{
				Name:      "status",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{"pending", "processing", "completed", "cancelled", "failed"},
			},
			&core.TextField{Name: "result_code", Max: 16},
			&core.TextField{Name: "result_desc", Max: 500},
			&core.TextField{Name: "receipt_number", Max: 64},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		transactions.AddIndex("idx_transactions_checkout_request_id", true, "checkout_request_id", "")
		if err := app.Save(transactions); err != nil {
			return err
		}

		issued := core.NewBaseCollection("issued_tickets")
		issued.Fields.Add(
			&core.RelationField{Name: "order", Required: true, CollectionId: orders.Id, MaxSelect: 1},
			&core.RelationField{Name: "event", CollectionId: events.Id, MaxSelect: 1},
			&core.RelationField{Name: "ticket", CollectionId: tickets.Id, MaxSelect: 1},
			&core.TextField{Name: "ticket_type", Max: 255},
			&core.NumberField{Name: "price", Min: types.Pointer(0.0)},
			&core.TextField{Name: "code", Required: true, Max: 64},
			&core.TextField{Name: "qr_code", Max: 100_000},
			&core.TextField{Name: "attendee_name", Max: 255},
			&core.EmailField{Name: "attendee_email"},
			&core.BoolField{Name: "is_used"},
			&core.DateField{Name: "used_at"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		issued.AddIndex("idx_issued_tickets_code", true, "code", "")
		issued.AddIndex("idx_issued_tickets_order", false, "`order`", "")
		return app.Save(issued)
	}, func(app core.App) error {
		for _, name := range []string{"issued_tickets", "transactions", "orders", "tickets", "events"} {
			collection, err := app.FindCollectionByNameOrId(name)
			if err != nil {
				continue
			}
			if err := app.Delete(collection); err != nil {
				return err
			}
		}
		return nil
	})
}

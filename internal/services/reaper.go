package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/mailer"

	"tikiti/internal/events"
	"tikiti/models"
	"tikiti/monitoring"
)

// reaperBatchSize bounds one sweep so a backlog cannot hold the cron slot.
const reaperBatchSize = 200

// Reaper expires stale pending orders whose payment already resolved against
// the customer (cancelled or failed) and returns their held inventory. It is
// the safety net for clients that never polled and callbacks that never
// completed the release.
type Reaper struct {
	app        core.App
	payments   *PaymentService
	events     *events.Publisher
	maxAge     time.Duration
	senderName string
}

func NewReaper(app core.App, payments *PaymentService, publisher *events.Publisher, maxAge time.Duration, senderName string) *Reaper {
	return &Reaper{
		app:        app,
		payments:   payments,
		events:     publisher,
		maxAge:     maxAge,
		senderName: senderName,
	}
}

// ReleaseExpired runs one sweep. Failures are per order: one bad record never
// stops the rest of the batch.
func (r *Reaper) ReleaseExpired(ctx context.Context) {
	cutoff := time.Now().Add(-r.maxAge).UTC().Format("2006-01-02 15:04:05.000Z")

	records, err := r.app.FindRecordsByFilter(
		"orders",
		"status = 'pending' && (payment_status = 'cancelled' || payment_status = 'failed') && created < {:cutoff}",
		"created",
		reaperBatchSize, 0,
		dbx.Params{"cutoff": cutoff},
	)
	if err != nil {
		slog.Error("reaper query failed", "error", err)
		return
	}
	if len(records) == 0 {
		return
	}

	slog.Info("expiring stale orders", "count", len(records))

	for _, record := range records {
		if err := r.expireOrder(ctx, record); err != nil {
			slog.Error("failed to expire order", "order", record.Id, "error", err)
		}
	}
}

func (r *Reaper) expireOrder(ctx context.Context, record *core.Record) error {
	order := orderFromRecord(record)
	if !order.EligibleForExpiry(time.Now(), r.maxAge) {
		return nil
	}

	r.payments.ReleaseOrderInventory(ctx, record)

	if !order.Status.CanTransitionTo(models.OrderExpired) {
		return fmt.Errorf("expireOrder: illegal transition from %s", order.Status)
	}
	record.Set("status", string(models.OrderExpired))
	record.Set("payment_status", string(models.PaymentExpired))
	if err := r.app.SaveWithContext(ctx, record); err != nil {
		return fmt.Errorf("expireOrder: %w", err)
	}

	monitoring.TrackExpired()

	r.events.Publish(events.OrderEvent{
		Type:        "order.expired",
		OrderID:     record.Id,
		OrderNumber: order.OrderNumber,
		Status:      string(models.OrderExpired),
	})

	if err := r.sendExpiryEmail(order); err != nil {
		slog.Error("failed to send expiry email", "order", record.Id, "error", err)
	}

	return nil
}

func (r *Reaper) sendExpiryEmail(order *models.Order) error {
	if order.CustomerEmail == "" {
		return nil
	}

	message := &mailer.Message{
		From: mail.Address{
			Name:    r.senderName,
			Address: r.app.Settings().Meta.SenderAddress,
		},
		To:      []mail.Address{{Address: order.CustomerEmail, Name: order.CustomerName}},
		Subject: fmt.Sprintf("Order %s has expired", order.OrderNumber),
		HTML: fmt.Sprintf(
			"<p>Hi %s,</p><p>Your order <strong>%s</strong> was not paid and has expired. The tickets were returned to sale. You can place a new order at any time.</p>",
			order.CustomerName, order.OrderNumber,
		),
	}

	return r.app.NewMailClient().Send(message)
}

package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/mailer"
	qrcode "github.com/skip2/go-qrcode"

	"tikiti/models"
	"tikiti/utils"
)

// IssuanceService mints admission tickets for a completed order: one record
// per purchased unit, each with a unique scannable code, plus a confirmation
// email carrying the QR images.
type IssuanceService struct {
	app        core.App
	senderName string
}

func NewIssuanceService(app core.App, senderName string) *IssuanceService {
	return &IssuanceService{app: app, senderName: senderName}
}

// Issue mints exactly one ticket per purchased unit, idempotently. The guard
// reconciles rather than short-circuits: existing tickets are counted per
// line item and only the shortfall is minted, so a retry after a partial
// failure tops the order up instead of double minting or stranding it.
func (s *IssuanceService) Issue(ctx context.Context, orderRecord *core.Record) (int, error) {
	existing, err := s.app.FindRecordsByFilter(
		"issued_tickets",
		"order = {:order}",
		"", 0, 0,
		dbx.Params{"order": orderRecord.Id},
	)
	if err != nil {
		return 0, fmt.Errorf("Issue: %w", err)
	}

	order := orderFromRecord(orderRecord)

	have := make(map[string]int, len(existing))
	all := make([]mintedTicket, 0, order.TotalUnits())
	for _, r := range existing {
		have[r.GetString("ticket")]++
		all = append(all, mintedTicket{
			ticketType: r.GetString("ticket_type"),
			code:       r.GetString("code"),
			qr:         r.GetString("qr_code"),
		})
	}

	shortfall := issuanceShortfall(order.Items, have)
	if len(shortfall) == 0 {
		return 0, nil
	}

	collection, err := s.app.FindCollectionByNameOrId("issued_tickets")
	if err != nil {
		return 0, fmt.Errorf("Issue: %w", err)
	}

	issued := 0
	for _, item := range shortfall {
		for i := 0; i < item.Quantity; i++ {
			code := utils.TicketCode()

			record := core.NewRecord(collection)
			record.Set("order", orderRecord.Id)
			record.Set("event", item.EventID)
			record.Set("ticket", item.TicketID)
			record.Set("ticket_type", item.TicketType)
			record.Set("price", item.UnitPrice.InexactFloat64())
			record.Set("code", code)
			record.Set("qr_code", qrDataURL(code))
			record.Set("attendee_name", order.CustomerName)
			record.Set("attendee_email", order.CustomerEmail)
			record.Set("is_used", false)

			if err := s.app.SaveWithContext(ctx, record); err != nil {
				return issued, fmt.Errorf("Issue: save ticket: %w", err)
			}

			issued++
			all = append(all, mintedTicket{ticketType: item.TicketType, code: code, qr: record.GetString("qr_code")})
		}
	}

	// Email delivery is best effort: the tickets are already persisted and
	// reachable through the order. The email lists the full set, including
	// anything minted on an earlier attempt.
	if err := s.sendTicketEmail(order, all); err != nil {
		slog.Error("failed to send ticket email", "order", order.ID, "error", err)
	}

	return issued, nil
}

// issuanceShortfall returns the units still missing per line item, given how
// many tickets each line already has.
func issuanceShortfall(items []models.OrderItem, have map[string]int) []models.OrderItem {
	var remaining []models.OrderItem
	for _, item := range items {
		missing := item.Quantity - have[item.TicketID]
		if missing > 0 {
			item.Quantity = missing
			remaining = append(remaining, item)
		}
	}
	return remaining
}

type mintedTicket struct {
	ticketType string
	code       string
	qr         string
}

// qrDataURL encodes the admission code as an inline PNG. A failed encode
// degrades to the bare code; the ticket is still valid and scannable by
// manual entry.
func qrDataURL(code string) string {
	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		slog.Error("failed to encode QR", "code", code, "error", err)
		return code
	}
	return fmt.Sprintf("data:image/png;base64,%s", base64.StdEncoding.EncodeToString(png))
}

func (s *IssuanceService) sendTicketEmail(order *models.Order, tickets []mintedTicket) error {
	if order.CustomerEmail == "" {
		return nil
	}

	var body strings.Builder
	fmt.Fprintf(&body, "<h2>Your tickets for order %s</h2>", order.OrderNumber)
	fmt.Fprintf(&body, "<p>Hi %s, thank you for your purchase. Present the QR code at the gate.</p>", order.CustomerName)
	for _, t := range tickets {
		fmt.Fprintf(&body, "<div><h3>%s</h3><p>Code: <strong>%s</strong></p>", t.ticketType, t.code)
		if strings.HasPrefix(t.qr, "data:image/") {
			fmt.Fprintf(&body, `<img src=%q alt="QR code" width="256" height="256"/>`, t.qr)
		}
		body.WriteString("</div>")
	}

	message := &mailer.Message{
		From: mail.Address{
			Name:    s.senderName,
			Address: s.app.Settings().Meta.SenderAddress,
		},
		To:      []mail.Address{{Address: order.CustomerEmail, Name: order.CustomerName}},
		Subject: fmt.Sprintf("Your tickets - order %s", order.OrderNumber),
		HTML:    body.String(),
	}

	return s.app.NewMailClient().Send(message)
}

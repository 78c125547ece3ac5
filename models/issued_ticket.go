package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// IssuedTicket is one admission unit, minted exactly once per purchased
// quantity when an order completes. Code doubles as the QR payload.
type IssuedTicket struct {
	ID            string          `json:"id"`
	OrderID       string          `json:"order_id"`
	EventID       string          `json:"event_id"`
	TicketID      string          `json:"ticket_id"`
	Code          string          `json:"code"`
	QRImage       string          `json:"qr_image,omitempty"`
	AttendeeName  string          `json:"attendee_name"`
	AttendeeEmail string          `json:"attendee_email"`
	Price         decimal.Decimal `json:"price"`
	TicketType    string          `json:"ticket_type"`
	IsUsed        bool            `json:"is_used"`
	UsedAt        *time.Time      `json:"used_at,omitempty"`
}

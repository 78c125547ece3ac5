package handlers

import (
	"net/http"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/shopspring/decimal"

	"tikiti/models"
)

type TicketHandler struct {
	app core.App
}

func NewTicketHandler(app core.App) *TicketHandler {
	return &TicketHandler{app: app}
}

// Scan handles POST /api/v1/tickets/scan, the gate check-in. A ticket admits
// exactly once: the first scan marks it used, later scans get a 409 with the
// original check-in time.
func (h *TicketHandler) Scan(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Authentication required", nil)
	}

	var req struct {
		Code string `json:"code"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}
	if req.Code == "" {
		return apis.NewBadRequestError("code is required", nil)
	}

	record, err := h.app.FindFirstRecordByFilter(
		"issued_tickets",
		"code = {:code}",
		dbx.Params{"code": req.Code},
	)
	if err != nil {
		return apis.NewNotFoundError("Ticket not found", nil)
	}

	if record.GetBool("is_used") {
		return apis.NewApiError(http.StatusConflict, "Ticket already used", map[string]any{
			"used_at": record.GetDateTime("used_at"),
		})
	}

	record.Set("is_used", true)
	record.Set("used_at", types.NowDateTime())
	if err := h.app.Save(record); err != nil {
		return apis.NewInternalServerError("Failed to check in ticket", err)
	}

	resp := map[string]any{"ticket": issuedTicketFromRecord(record)}
	if event, err := h.eventDetails(record.GetString("event")); err == nil {
		resp["event"] = event
	}

	return e.JSON(http.StatusOK, resp)
}

func (h *TicketHandler) eventDetails(eventID string) (*models.Event, error) {
	record, err := h.app.FindRecordById("events", eventID)
	if err != nil {
		return nil, err
	}
	return &models.Event{
		ID:       record.Id,
		Name:     record.GetString("name"),
		Venue:    record.GetString("venue"),
		StartsAt: record.GetDateTime("starts_at").Time(),
	}, nil
}

func issuedTicketFromRecord(r *core.Record) *models.IssuedTicket {
	ticket := &models.IssuedTicket{
		ID:            r.Id,
		OrderID:       r.GetString("order"),
		EventID:       r.GetString("event"),
		TicketID:      r.GetString("ticket"),
		Code:          r.GetString("code"),
		QRImage:       r.GetString("qr_code"),
		AttendeeName:  r.GetString("attendee_name"),
		AttendeeEmail: r.GetString("attendee_email"),
		Price:         decimal.NewFromFloat(r.GetFloat("price")),
		TicketType:    r.GetString("ticket_type"),
		IsUsed:        r.GetBool("is_used"),
	}
	if usedAt := r.GetDateTime("used_at"); !usedAt.IsZero() {
		t := usedAt.Time().UTC().Truncate(time.Millisecond)
		ticket.UsedAt = &t
	}
	return ticket
}

package handlers

import (
	"net/http"
	"strings"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"tikiti/utils"
)

type OrderHandler struct {
	app core.App
}

func NewOrderHandler(app core.App) *OrderHandler {
	return &OrderHandler{app: app}
}

// GetByNumber handles GET /api/v1/orders/{orderNumber}. Owned orders require
// the owning auth record; guest orders require the claim token handed out at
// checkout, passed as a query parameter.
func (h *OrderHandler) GetByNumber(e *core.RequestEvent) error {
	number := e.Request.PathValue("orderNumber")
	record, err := h.app.FindFirstRecordByFilter(
		"orders",
		"order_number = {:number}",
		dbx.Params{"number": number},
	)
	if err != nil {
		return apis.NewNotFoundError("Order not found", nil)
	}

	if owner := record.GetString("user"); owner != "" {
		if e.Auth == nil || (e.Auth.Id != owner && !e.Auth.IsSuperuser()) {
			return apis.NewForbiddenError("You do not have access to this order", nil)
		}
	} else {
		token := e.Request.URL.Query().Get("claim_token")
		if token == "" || !utils.CheckClaimToken(record.GetString("claim_token_hash"), token) {
			return apis.NewForbiddenError("You do not have access to this order", nil)
		}
	}

	return e.JSON(http.StatusOK, h.orderResponse(record))
}

// Claim handles POST /api/v1/orders/claim: an authenticated user attaches a
// guest order to their account by presenting the one-time claim token.
func (h *OrderHandler) Claim(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Authentication required", nil)
	}

	var req struct {
		OrderNumber string `json:"order_number"`
		ClaimToken  string `json:"claim_token"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}
	if req.OrderNumber == "" || req.ClaimToken == "" {
		return apis.NewBadRequestError("order_number and claim_token are required", nil)
	}

	record, err := h.app.FindFirstRecordByFilter(
		"orders",
		"order_number = {:number}",
		dbx.Params{"number": req.OrderNumber},
	)
	if err != nil {
		return apis.NewNotFoundError("Order not found", nil)
	}

	if record.GetString("user") != "" || record.GetBool("converted_to_user") {
		return apis.NewBadRequestError("Order has already been claimed", nil)
	}
	if !utils.CheckClaimToken(record.GetString("claim_token_hash"), req.ClaimToken) {
		return apis.NewForbiddenError("Invalid claim token", nil)
	}
	if !strings.EqualFold(e.Auth.GetString("email"), record.GetString("customer_email")) {
		return apis.NewForbiddenError("Order was placed with a different email", nil)
	}

	claimOrder(record, e.Auth.Id)
	if err := h.app.Save(record); err != nil {
		return apis.NewInternalServerError("Failed to claim order", err)
	}

	return e.JSON(http.StatusOK, h.orderResponse(record))
}

// claimOrder applies the one-way guest-to-account conversion: the order gains
// an owner, stops being a guest order and the one-time token is spent.
func claimOrder(record *core.Record, userID string) {
	record.Set("user", userID)
	record.Set("is_guest", false)
	record.Set("converted_to_user", true)
	record.Set("claim_token_hash", "")
}

func (h *OrderHandler) orderResponse(record *core.Record) map[string]any {
	var items any
	if err := record.UnmarshalJSONField("items", &items); err != nil {
		items = nil
	}

	resp := map[string]any{
		"id":              record.Id,
		"order_number":    record.GetString("order_number"),
		"customer_name":   record.GetString("customer_name"),
		"customer_email":  record.GetString("customer_email"),
		"payment_method":  record.GetString("payment_method"),
		"status":          record.GetString("status"),
		"payment_status":  record.GetString("payment_status"),
		"items":           items,
		"subtotal":        record.GetFloat("subtotal"),
		"discount_amount": record.GetFloat("discount_amount"),
		"tax":             record.GetFloat("tax"),
		"total":           record.GetFloat("total"),
		"created":         record.GetDateTime("created"),
	}

	tickets, err := h.app.FindRecordsByFilter(
		"issued_tickets",
		"order = {:order}",
		"created", 0, 0,
		dbx.Params{"order": record.Id},
	)
	if err == nil && len(tickets) > 0 {
		list := make([]map[string]any, 0, len(tickets))
		for _, t := range tickets {
			list = append(list, map[string]any{
				"code":        t.GetString("code"),
				"ticket_type": t.GetString("ticket_type"),
				"qr_code":     t.GetString("qr_code"),
				"is_used":     t.GetBool("is_used"),
			})
		}
		resp["tickets"] = list
	}

	return resp
}

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"tikiti/internal/services/card"
	"tikiti/internal/services/mpesa"
	"tikiti/internal/status"
	"tikiti/models"
	"tikiti/monitoring"
	"tikiti/utils"
)

// Inventory is what the orchestrator needs from the ticket pool. It is an
// interface so the reserve/compensate sequence can be tested in isolation.
type Inventory interface {
	CanPurchase(ctx context.Context, ticketID string, quantity int) (*models.TicketInventory, error)
	Reserve(ctx context.Context, ticketID string, quantity int) error
	Release(ctx context.Context, ticketID string, quantity int) error
	ConfirmPurchase(ctx context.Context, ticketID string, quantity int) error
}

type StkPusher interface {
	Initiate(ctx context.Context, req *mpesa.StkRequest) (*mpesa.StkResponse, error)
}

type CardCharger interface {
	Charge(ctx context.Context, req *card.ChargeRequest) (*card.ChargeResult, error)
}

type CheckoutItem struct {
	TicketID string `json:"ticket_id"`
	Quantity int    `json:"quantity"`
}

type CustomerInfo struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type CheckoutRequest struct {
	Items         []CheckoutItem `json:"items"`
	Customer      CustomerInfo   `json:"customer"`
	PaymentMethod string         `json:"payment_method"`
	DiscountCode  string         `json:"discount_code"`
	CardToken     string         `json:"card_token"`
}

type CheckoutResult struct {
	OrderID           string `json:"order_id"`
	OrderNumber       string `json:"order_number"`
	Status            string `json:"status"`
	PaymentStatus     string `json:"payment_status"`
	CheckoutRequestID string `json:"checkout_request_id,omitempty"`
	CustomerMessage   string `json:"customer_message,omitempty"`
	ClaimToken        string `json:"claim_token,omitempty"`
}

// CheckoutService coordinates the purchase workflow: availability check,
// reservation, order creation and dispatch to the payment-method-specific
// path. There is no cross-document transaction; the compensation list of
// already-reserved items is the only rollback mechanism.
type CheckoutService struct {
	app       core.App
	inventory Inventory
	stk       StkPusher
	card      CardCharger
	payments  *PaymentService
	taxRate   decimal.Decimal
}

func NewCheckoutService(app core.App, inventory Inventory, stk StkPusher, charger CardCharger, payments *PaymentService, taxRate float64) *CheckoutService {
	return &CheckoutService{
		app:       app,
		inventory: inventory,
		stk:       stk,
		card:      charger,
		payments:  payments,
		taxRate:   decimal.NewFromFloat(taxRate),
	}
}

// ProcessCheckout runs the full checkout contract. auth is nil for guests.
func (s *CheckoutService) ProcessCheckout(ctx context.Context, req *CheckoutRequest, auth *core.Record) (*CheckoutResult, error) {
	method := models.PaymentMethod(req.PaymentMethod)
	if err := validateRequest(req, method, auth); err != nil {
		monitoring.TrackCheckout(req.PaymentMethod, "invalid")
		return nil, err
	}

	// Fail fast on availability before any mutation.
	tickets := make(map[string]*models.TicketInventory, len(req.Items))
	for _, item := range req.Items {
		ticket, err := s.inventory.CanPurchase(ctx, item.TicketID, item.Quantity)
		if err != nil {
			monitoring.TrackCheckout(req.PaymentMethod, "rejected")
			return nil, err
		}
		tickets[item.TicketID] = ticket
	}

	reserved, err := reserveItems(ctx, s.inventory, req.Items)
	if err != nil {
		monitoring.TrackCheckout(req.PaymentMethod, "rejected")
		return nil, err
	}

	result, err := s.createAndDispatch(ctx, req, method, auth, tickets, reserved)
	if err != nil {
		monitoring.TrackCheckout(req.PaymentMethod, "failed")
		return nil, err
	}

	monitoring.TrackCheckout(req.PaymentMethod, "accepted")
	return result, nil
}

func validateRequest(req *CheckoutRequest, method models.PaymentMethod, auth *core.Record) error {
	if len(req.Items) == 0 {
		return status.NewValidationError("Order must contain at least one item")
	}
	for _, item := range req.Items {
		if item.TicketID == "" || item.Quantity <= 0 {
			return status.NewValidationError("Invalid order item")
		}
	}
	if !method.Valid() {
		return status.NewValidationError("Unsupported payment method: %s", req.PaymentMethod)
	}
	if method == models.MethodPaypal {
		return status.NewValidationError("PayPal payments are not supported yet")
	}
	if auth == nil && req.Customer.Email == "" {
		return status.NewValidationError("Email is required")
	}
	if method == models.MethodMpesa && req.Customer.Phone == "" {
		return status.NewValidationError("Phone number is required for M-Pesa payments")
	}
	return nil
}

type reservation struct {
	ticketID string
	quantity int
}

// reserveItems holds every line item, releasing anything already held if a
// later reservation fails.
func reserveItems(ctx context.Context, inv Inventory, items []CheckoutItem) ([]reservation, error) {
	reserved := make([]reservation, 0, len(items))
	for _, item := range items {
		if err := inv.Reserve(ctx, item.TicketID, item.Quantity); err != nil {
			releaseReservations(ctx, inv, reserved)
			return nil, err
		}
		reserved = append(reserved, reservation{ticketID: item.TicketID, quantity: item.Quantity})
	}
	return reserved, nil
}

func releaseReservations(ctx context.Context, inv Inventory, reserved []reservation) {
	for _, r := range reserved {
		if err := inv.Release(ctx, r.ticketID, r.quantity); err != nil {
			slog.Error("failed to release reservation", "ticketID", r.ticketID, "quantity", r.quantity, "error", err)
		}
	}
}

// createAndDispatch owns the compensation handoff: until the order record
// exists, failures release the raw reservation list; once it does, failures
// go through FailOrder so the release is tracked by the order's own
// inventory_released flag and can never run twice.
func (s *CheckoutService) createAndDispatch(ctx context.Context, req *CheckoutRequest, method models.PaymentMethod, auth *core.Record, tickets map[string]*models.TicketInventory, reserved []reservation) (*CheckoutResult, error) {
	items := make([]models.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		ticket := tickets[item.TicketID]
		items = append(items, models.OrderItem{
			TicketID:   ticket.ID,
			EventID:    ticket.EventID,
			TicketType: ticket.Name,
			Quantity:   item.Quantity,
			UnitPrice:  ticket.Price,
		})
	}

	discount, err := s.resolveDiscount(req.DiscountCode)
	if err != nil {
		releaseReservations(ctx, s.inventory, reserved)
		return nil, err
	}
	totals := models.ComputeTotals(items, discount, s.taxRate)

	record, claimToken, err := s.createOrder(ctx, req, method, auth, items, totals)
	if err != nil {
		releaseReservations(ctx, s.inventory, reserved)
		return nil, err
	}

	result := &CheckoutResult{
		OrderID:       record.Id,
		OrderNumber:   record.GetString("order_number"),
		Status:        record.GetString("status"),
		PaymentStatus: record.GetString("payment_status"),
		ClaimToken:    claimToken,
	}

	// Zero-amount orders are normalized to completed/free at save time and
	// never touch a gateway.
	if record.GetString("payment_status") == string(models.PaymentFree) {
		if err := s.payments.CompleteOrder(ctx, record); err != nil {
			slog.Error("failed to finalize free order", "order", record.Id, "error", err)
		}
		result.Status = record.GetString("status")
		result.PaymentStatus = record.GetString("payment_status")
		return result, nil
	}

	switch method {
	case models.MethodCard:
		return s.dispatchCard(ctx, req, record, totals, result)
	case models.MethodMpesa:
		return s.dispatchMpesa(ctx, req, record, totals, result)
	default:
		// Non-zero total with method "free" is a pricing mismatch.
		s.payments.FailOrder(ctx, record, models.PaymentFailed)
		return nil, status.NewValidationError("Order total does not match payment method")
	}
}

func (s *CheckoutService) resolveDiscount(code string) (decimal.Decimal, error) {
	if code == "" {
		return decimal.Zero, nil
	}
	record, err := s.app.FindFirstRecordByFilter(
		"discounts",
		"code = {:code} && active = true",
		dbx.Params{"code": code},
	)
	if err != nil {
		return decimal.Zero, status.NewValidationError("Invalid discount code")
	}
	return decimal.NewFromFloat(record.GetFloat("amount")), nil
}

func (s *CheckoutService) createOrder(ctx context.Context, req *CheckoutRequest, method models.PaymentMethod, auth *core.Record, items []models.OrderItem, totals models.Totals) (*core.Record, string, error) {
	collection, err := s.app.FindCollectionByNameOrId("orders")
	if err != nil {
		return nil, "", fmt.Errorf("createOrder: %w", err)
	}

	number, err := utils.OrderNumber(time.Now())
	if err != nil {
		return nil, "", fmt.Errorf("createOrder: %w", err)
	}

	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return nil, "", fmt.Errorf("createOrder: %w", err)
	}

	name := req.Customer.Name
	email := req.Customer.Email
	userID := ""
	if auth != nil {
		userID = auth.Id
		if email == "" {
			email = auth.GetString("email")
		}
		if name == "" {
			name = auth.GetString("name")
		}
	}

	order := &models.Order{
		OrderNumber:    number,
		UserID:         userID,
		CustomerName:   name,
		CustomerEmail:  email,
		BillingAddress: req.Customer.Address,
		PaymentMethod:  method,
		Items:          items,
		Totals:         totals,
		IsGuestOrder:   auth == nil,
	}
	order.Normalize()

	record := core.NewRecord(collection)
	record.Set("order_number", order.OrderNumber)
	record.Set("user", order.UserID)
	record.Set("customer_name", order.CustomerName)
	record.Set("customer_email", order.CustomerEmail)
	record.Set("billing_address", order.BillingAddress)
	record.Set("payment_method", string(order.PaymentMethod))
	record.Set("status", string(order.Status))
	record.Set("payment_status", string(order.PaymentStatus))
	record.Set("items", string(itemsJSON))
	record.Set("subtotal", totals.Subtotal.InexactFloat64())
	record.Set("discount_amount", totals.DiscountAmount.InexactFloat64())
	record.Set("tax", totals.Tax.InexactFloat64())
	record.Set("total", totals.Total.InexactFloat64())
	record.Set("is_guest", order.IsGuestOrder)
	record.Set("converted_to_user", false)
	record.Set("inventory_released", false)

	claimToken := ""
	if auth == nil {
		token, err := utils.NewClaimToken()
		if err != nil {
			return nil, "", fmt.Errorf("createOrder: %w", err)
		}
		hash, err := utils.HashClaimToken(token)
		if err != nil {
			return nil, "", fmt.Errorf("createOrder: %w", err)
		}
		record.Set("claim_token_hash", hash)
		claimToken = token
	}

	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return nil, "", fmt.Errorf("createOrder: %w", err)
	}

	return record, claimToken, nil
}

func (s *CheckoutService) dispatchCard(ctx context.Context, req *CheckoutRequest, record *core.Record, totals models.Totals, result *CheckoutResult) (*CheckoutResult, error) {
	if s.card == nil {
		s.payments.FailOrder(ctx, record, models.PaymentFailed)
		return nil, status.NewValidationError("Card payments are not available")
	}
	if req.CardToken == "" {
		s.payments.FailOrder(ctx, record, models.PaymentFailed)
		return nil, status.NewValidationError("Card token is required")
	}

	_, err := s.card.Charge(ctx, &card.ChargeRequest{
		Amount:    totals.Total,
		Currency:  "KES",
		Token:     req.CardToken,
		Reference: record.GetString("order_number"),
		Email:     record.GetString("customer_email"),
	})
	if err != nil {
		s.payments.FailOrder(ctx, record, models.PaymentFailed)
		return nil, err
	}

	record.Set("status", string(models.OrderCompleted))
	record.Set("payment_status", string(models.PaymentCompleted))
	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return nil, fmt.Errorf("dispatchCard: %w", err)
	}
	if err := s.payments.CompleteOrder(ctx, record); err != nil {
		slog.Error("failed to finalize card order", "order", record.Id, "error", err)
	}

	result.Status = string(models.OrderCompleted)
	result.PaymentStatus = string(models.PaymentCompleted)
	return result, nil
}

func (s *CheckoutService) dispatchMpesa(ctx context.Context, req *CheckoutRequest, record *core.Record, totals models.Totals, result *CheckoutResult) (*CheckoutResult, error) {
	if s.stk == nil {
		s.payments.FailOrder(ctx, record, models.PaymentFailed)
		return nil, status.NewValidationError("M-Pesa payments are not available")
	}

	started := time.Now()
	reply, err := s.stk.Initiate(ctx, &mpesa.StkRequest{
		Phone:       req.Customer.Phone,
		Amount:      totals.Total,
		Reference:   record.GetString("order_number"),
		Description: "Ticket purchase",
	})
	monitoring.ObserveStkPush(time.Since(started))
	if err != nil {
		s.payments.FailOrder(ctx, record, models.PaymentFailed)
		if status.IsValidation(err) || status.IsGateway(err) {
			return nil, err
		}
		return nil, status.NewGatewayError("mpesa initiate", err)
	}

	if err := s.payments.CreateTransaction(ctx, record, reply, req.Customer.Phone, totals.Total); err != nil {
		s.payments.FailOrder(ctx, record, models.PaymentFailed)
		return nil, err
	}

	result.CheckoutRequestID = reply.CheckoutRequestID
	result.CustomerMessage = reply.CustomerMessage
	return result, nil
}

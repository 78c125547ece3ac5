package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"tikiti/internal/events"
	"tikiti/internal/services/mpesa"
	"tikiti/internal/status"
	"tikiti/models"
	"tikiti/monitoring"
)

type StatusQuerier interface {
	QueryStatus(ctx context.Context, checkoutRequestID string) (*models.NormalizedResult, error)
}

type Issuer interface {
	Issue(ctx context.Context, order *core.Record) (int, error)
}

// PaymentService reconciles gateway results against orders. The STK callback
// and the client-driven status poll both funnel into Resolve, so a result
// arriving on either path (or both) settles the order exactly once.
type PaymentService struct {
	app       core.App
	rdb       *redis.Client
	inventory Inventory
	issuer    Issuer
	notifier  *Notifier
	events    *events.Publisher
	gateway   StatusQuerier
}

func NewPaymentService(app core.App, rdb *redis.Client, inventory Inventory, issuer Issuer, notifier *Notifier, publisher *events.Publisher, gateway StatusQuerier) *PaymentService {
	return &PaymentService{
		app:       app,
		rdb:       rdb,
		inventory: inventory,
		issuer:    issuer,
		notifier:  notifier,
		events:    publisher,
		gateway:   gateway,
	}
}

// CreateTransaction records a pending payment attempt after a successful STK
// push and caches the session so the poll endpoint can resolve it quickly.
func (s *PaymentService) CreateTransaction(ctx context.Context, order *core.Record, reply *mpesa.StkResponse, phone string, amount decimal.Decimal) error {
	collection, err := s.app.FindCollectionByNameOrId("transactions")
	if err != nil {
		return fmt.Errorf("CreateTransaction: %w", err)
	}

	record := core.NewRecord(collection)
	record.Set("order", order.Id)
	record.Set("checkout_request_id", reply.CheckoutRequestID)
	record.Set("merchant_request_id", reply.MerchantRequestID)
	record.Set("phone", phone)
	record.Set("amount", amount.InexactFloat64())
	record.Set("status", string(models.TxPending))

	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return fmt.Errorf("CreateTransaction: %w", err)
	}

	if s.rdb != nil {
		key := fmt.Sprintf("stk:session:%s", reply.CheckoutRequestID)
		if err := s.rdb.Set(ctx, key, order.Id, 24*time.Hour).Err(); err != nil {
			slog.Warn("failed to cache payment session", "checkoutRequestID", reply.CheckoutRequestID, "error", err)
		}
	}

	return nil
}

// Resolve applies a normalized gateway result to the transaction and its
// order. Terminal transactions ignore further results; concurrent deliveries
// of the same terminal result are deduplicated with a Redis SetNX guard.
func (s *PaymentService) Resolve(ctx context.Context, res *models.NormalizedResult) error {
	txRecord, err := s.app.FindFirstRecordByFilter(
		"transactions",
		"checkout_request_id = {:cid}",
		dbx.Params{"cid": res.CheckoutRequestID},
	)
	if err != nil {
		return status.ErrTransactionNotFound
	}

	current := models.TransactionStatus(txRecord.GetString("status"))
	outcome := models.ClassifyResultCode(res.ResultCode)

	plan, ok := models.PlanResolution(current, outcome)
	if !ok {
		// A terminal transaction normally means everything settled, but an
		// earlier attempt may have crashed between the transaction save and
		// the order save. Re-drive the order before calling it a no-op.
		if current.Terminal() {
			if err := s.redriveOrder(ctx, txRecord); err != nil {
				return err
			}
		}
		monitoring.TrackCallback("noop")
		return nil
	}

	if plan.Transaction.Terminal() && !acquireResolutionGuard(ctx, s.rdb, res.CheckoutRequestID) {
		monitoring.TrackCallback("duplicate")
		return nil
	}

	txRecord.Set("status", string(plan.Transaction))
	txRecord.Set("result_code", res.ResultCode)
	txRecord.Set("result_desc", res.ResultDesc)
	if res.ReceiptNumber != "" {
		txRecord.Set("receipt_number", res.ReceiptNumber)
	}
	if err := s.app.SaveWithContext(ctx, txRecord); err != nil {
		return fmt.Errorf("Resolve: save transaction: %w", err)
	}

	orderRecord, err := s.app.FindRecordById("orders", txRecord.GetString("order"))
	if err != nil {
		return status.ErrOrderNotFound
	}

	if err := s.applyResolution(ctx, orderRecord, plan, res); err != nil {
		return err
	}

	monitoring.TrackCallback(string(outcome))
	return nil
}

func (s *PaymentService) applyResolution(ctx context.Context, orderRecord *core.Record, plan models.Resolution, res *models.NormalizedResult) error {
	currentStatus := models.OrderStatus(orderRecord.GetString("status"))
	if plan.Order != currentStatus {
		if currentStatus.CanTransitionTo(plan.Order) {
			orderRecord.Set("status", string(plan.Order))
		} else {
			slog.Warn("skipping illegal order transition",
				"order", orderRecord.Id, "from", currentStatus, "to", plan.Order)
		}
	}
	orderRecord.Set("payment_status", string(plan.Payment))
	if err := s.app.SaveWithContext(ctx, orderRecord); err != nil {
		return fmt.Errorf("applyResolution: save order: %w", err)
	}

	if final := models.OrderStatus(orderRecord.GetString("status")); !models.PairSynced(final, plan.Payment) {
		slog.Warn("order and payment status out of sync",
			"order", orderRecord.Id, "status", final, "paymentStatus", plan.Payment)
	}

	if plan.ReleaseInventory {
		s.ReleaseOrderInventory(ctx, orderRecord)
	}

	if plan.IssueTickets {
		return s.CompleteOrder(ctx, orderRecord)
	}

	order := orderFromRecord(orderRecord)
	s.notifier.PublishOrderStatus(order.OrderNumber, string(order.Status), string(order.PaymentStatus), res.ResultDesc)
	s.events.Publish(events.OrderEvent{
		Type:        fmt.Sprintf("payment.%s", plan.Payment),
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      string(order.Status),
	})
	return nil
}

// CompleteOrder finalizes a paid (or free) order: confirm the reservation,
// mint tickets and fan out notifications. The order record must already carry
// its terminal statuses.
func (s *PaymentService) CompleteOrder(ctx context.Context, orderRecord *core.Record) error {
	order := orderFromRecord(orderRecord)

	for _, item := range order.Items {
		if err := s.inventory.ConfirmPurchase(ctx, item.TicketID, item.Quantity); err != nil {
			slog.Error("failed to confirm purchase", "order", order.ID, "ticketID", item.TicketID, "error", err)
		}
	}

	if s.issuer != nil {
		n, err := s.issuer.Issue(ctx, orderRecord)
		if err != nil {
			slog.Error("failed to issue tickets", "order", order.ID, "error", err)
		} else {
			monitoring.TrackIssued(n)
		}
	}

	s.notifier.PublishOrderStatus(order.OrderNumber, string(order.Status), string(order.PaymentStatus), "Your tickets have been issued")
	s.events.Publish(events.OrderEvent{
		Type:        "order.completed",
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      string(order.Status),
	})
	return nil
}

// FailOrder settles an order whose dispatch failed synchronously (gateway
// rejection, invalid card token). Unlike the callback path the order itself
// moves to failed: there is no pending payment left to wait for.
func (s *PaymentService) FailOrder(ctx context.Context, orderRecord *core.Record, payStatus models.PaymentStatus) {
	currentStatus := models.OrderStatus(orderRecord.GetString("status"))
	if currentStatus.CanTransitionTo(models.OrderFailed) {
		orderRecord.Set("status", string(models.OrderFailed))
	}
	orderRecord.Set("payment_status", string(payStatus))
	if err := s.app.SaveWithContext(ctx, orderRecord); err != nil {
		slog.Error("failed to save failed order", "order", orderRecord.Id, "error", err)
	}

	s.ReleaseOrderInventory(ctx, orderRecord)

	order := orderFromRecord(orderRecord)
	s.notifier.PublishOrderStatus(order.OrderNumber, string(order.Status), string(order.PaymentStatus), "Payment failed")
	s.events.Publish(events.OrderEvent{
		Type:        "order.failed",
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      string(order.Status),
	})
}

// ReleaseOrderInventory returns an order's reserved units to the pool exactly
// once, guarded by the inventory_released flag on the order itself.
func (s *PaymentService) ReleaseOrderInventory(ctx context.Context, orderRecord *core.Record) {
	if orderRecord.GetBool("inventory_released") {
		return
	}

	order := orderFromRecord(orderRecord)
	for _, item := range order.Items {
		if err := s.inventory.Release(ctx, item.TicketID, item.Quantity); err != nil {
			slog.Error("failed to release inventory", "order", order.ID, "ticketID", item.TicketID, "error", err)
		}
	}

	orderRecord.Set("inventory_released", true)
	if err := s.app.SaveWithContext(ctx, orderRecord); err != nil {
		slog.Error("failed to flag inventory release", "order", order.ID, "error", err)
	}
}

// redriveOrder re-applies a terminal transaction's outcome to an order the
// original resolution never finished (transaction saved, order save failed).
// Safe to repeat: release is flag-guarded and issuance mints only the
// shortfall, so a synced order comes back untouched.
func (s *PaymentService) redriveOrder(ctx context.Context, txRecord *core.Record) error {
	orderRecord, err := s.app.FindRecordById("orders", txRecord.GetString("order"))
	if err != nil {
		return status.ErrOrderNotFound
	}

	outcome := models.ClassifyResultCode(txRecord.GetString("result_code"))
	plan, ok := models.PlanResolution(models.TxPending, outcome)
	if !ok {
		return nil
	}

	if orderRecord.GetString("payment_status") == string(plan.Payment) {
		return nil
	}

	slog.Warn("re-driving order from terminal transaction",
		"order", orderRecord.Id, "checkoutRequestID", txRecord.GetString("checkout_request_id"))

	res := &models.NormalizedResult{
		Success:           outcome == models.OutcomeSuccess,
		ResultCode:        txRecord.GetString("result_code"),
		ResultDesc:        txRecord.GetString("result_desc"),
		CheckoutRequestID: txRecord.GetString("checkout_request_id"),
		ReceiptNumber:     txRecord.GetString("receipt_number"),
	}
	return s.applyResolution(ctx, orderRecord, plan, res)
}

// acquireResolutionGuard deduplicates concurrent deliveries of the same
// terminal result (callback racing a poll). First writer wins; a Redis outage
// degrades to the record-level terminal check, which still blocks replays of
// already-settled transactions.
func acquireResolutionGuard(ctx context.Context, rdb *redis.Client, checkoutRequestID string) bool {
	if rdb == nil {
		return true
	}

	key := fmt.Sprintf("stk:resolved:%s", checkoutRequestID)
	acquired, err := rdb.SetNX(ctx, key, "1", 24*time.Hour).Result()
	if err != nil {
		slog.Warn("resolution guard unavailable", "checkoutRequestID", checkoutRequestID, "error", err)
		return true
	}
	return acquired
}

type PaymentStatusReply struct {
	OrderNumber       string `json:"order_number"`
	OrderStatus       string `json:"order_status"`
	PaymentStatus     string `json:"payment_status"`
	TransactionStatus string `json:"transaction_status"`
	ResultDesc        string `json:"result_desc,omitempty"`
}

// PollStatus serves the client's "did my payment go through" poll. If the
// transaction is still open it queries the gateway and reconciles whatever
// came back, so a lost callback cannot strand an order.
func (s *PaymentService) PollStatus(ctx context.Context, checkoutRequestID string) (*PaymentStatusReply, error) {
	txRecord, err := s.app.FindFirstRecordByFilter(
		"transactions",
		"checkout_request_id = {:cid}",
		dbx.Params{"cid": checkoutRequestID},
	)
	if err != nil {
		return nil, status.ErrTransactionNotFound
	}

	current := models.TransactionStatus(txRecord.GetString("status"))
	if current.Terminal() {
		// The transaction settled but the order may not have: an earlier
		// resolution could have crashed between the two saves. The re-drive
		// is a no-op when order and transaction already agree.
		if err := s.redriveOrder(ctx, txRecord); err != nil {
			slog.Error("failed to re-drive order", "checkoutRequestID", checkoutRequestID, "error", err)
		}
	} else if s.gateway != nil {
		res, err := s.gateway.QueryStatus(ctx, checkoutRequestID)
		if err != nil {
			// Gateway unreachable: report the state we have.
			slog.Warn("status query failed", "checkoutRequestID", checkoutRequestID, "error", err)
		} else if err := s.Resolve(ctx, res); err != nil {
			slog.Error("failed to reconcile poll result", "checkoutRequestID", checkoutRequestID, "error", err)
		}

		if refreshed, err := s.app.FindFirstRecordByFilter(
			"transactions",
			"checkout_request_id = {:cid}",
			dbx.Params{"cid": checkoutRequestID},
		); err == nil {
			txRecord = refreshed
		}
	}

	reply := &PaymentStatusReply{
		TransactionStatus: txRecord.GetString("status"),
		ResultDesc:        txRecord.GetString("result_desc"),
	}

	orderRecord, err := s.app.FindRecordById("orders", txRecord.GetString("order"))
	if err != nil {
		return nil, status.ErrOrderNotFound
	}
	reply.OrderNumber = orderRecord.GetString("order_number")
	reply.OrderStatus = orderRecord.GetString("status")
	reply.PaymentStatus = orderRecord.GetString("payment_status")

	return reply, nil
}

// orderFromRecord maps the stored order onto the domain struct. Items are
// persisted as a JSON field.
func orderFromRecord(r *core.Record) *models.Order {
	var items []models.OrderItem
	if err := r.UnmarshalJSONField("items", &items); err != nil {
		slog.Error("failed to decode order items", "order", r.Id, "error", err)
	}

	return &models.Order{
		ID:              r.Id,
		OrderNumber:     r.GetString("order_number"),
		UserID:          r.GetString("user"),
		CustomerName:    r.GetString("customer_name"),
		CustomerEmail:   r.GetString("customer_email"),
		BillingAddress:  r.GetString("billing_address"),
		PaymentMethod:   models.PaymentMethod(r.GetString("payment_method")),
		Status:          models.OrderStatus(r.GetString("status")),
		PaymentStatus:   models.PaymentStatus(r.GetString("payment_status")),
		Items:           items,
		IsGuestOrder:    r.GetBool("is_guest"),
		ConvertedToUser: r.GetBool("converted_to_user"),
		CreatedAt:       r.GetDateTime("created").Time(),
		Totals: models.Totals{
			Subtotal:       decimal.NewFromFloat(r.GetFloat("subtotal")),
			DiscountAmount: decimal.NewFromFloat(r.GetFloat("discount_amount")),
			Tax:            decimal.NewFromFloat(r.GetFloat("tax")),
			Total:          decimal.NewFromFloat(r.GetFloat("total")),
		},
	}
}

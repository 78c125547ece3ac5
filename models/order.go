package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderConfirmed  OrderStatus = "confirmed"
	OrderProcessing OrderStatus = "processing"
	OrderCompleted  OrderStatus = "completed"
	OrderCancelled  OrderStatus = "cancelled"
	OrderRefunded   OrderStatus = "refunded"
	OrderFailed     OrderStatus = "failed"
	OrderExpired    OrderStatus = "expired"
)

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
	PaymentRefunded   PaymentStatus = "refunded"
	PaymentFree       PaymentStatus = "free"
	PaymentCancelled  PaymentStatus = "cancelled"
	PaymentExpired    PaymentStatus = "expired"
)

type PaymentMethod string

const (
	MethodMpesa  PaymentMethod = "mpesa"
	MethodCard   PaymentMethod = "card"
	MethodPaypal PaymentMethod = "paypal"
	MethodFree   PaymentMethod = "free"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodMpesa, MethodCard, MethodPaypal, MethodFree:
		return true
	}
	return false
}

// orderTransitions is the closed set of legal order status moves. Terminal
// statuses have no outgoing edges, so re-delivered callbacks cannot move a
// settled order.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:    {OrderConfirmed, OrderProcessing, OrderCompleted, OrderCancelled, OrderFailed, OrderExpired},
	OrderConfirmed:  {OrderProcessing, OrderCompleted, OrderCancelled, OrderRefunded},
	OrderProcessing: {OrderCompleted, OrderCancelled, OrderFailed},
	OrderCompleted:  {OrderRefunded},
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s == next {
		return false
	}
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderCancelled, OrderRefunded, OrderFailed, OrderExpired:
		return true
	}
	return false
}

func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentCompleted, PaymentFailed, PaymentRefunded, PaymentFree, PaymentCancelled, PaymentExpired:
		return true
	}
	return false
}

// PairSynced reports whether a (status, paymentStatus) pair honors the
// orchestrator invariant: a completed order is paid or free, and a
// cancelled/failed/expired order carries a matching payment outcome.
func PairSynced(s OrderStatus, p PaymentStatus) bool {
	switch s {
	case OrderCompleted:
		return p == PaymentCompleted || p == PaymentFree
	case OrderCancelled:
		return p == PaymentCancelled || p == PaymentFailed || p == PaymentRefunded
	case OrderFailed:
		return p == PaymentFailed || p == PaymentCancelled
	case OrderExpired:
		return p == PaymentExpired
	case OrderRefunded:
		return p == PaymentRefunded
	}
	return true
}

type OrderItem struct {
	TicketID   string          `json:"ticket_id"`
	EventID    string          `json:"event_id"`
	TicketType string          `json:"ticket_type"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
}

type Totals struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Tax            decimal.Decimal `json:"tax"`
	Total          decimal.Decimal `json:"total"`
}

// ComputeTotals prices the order server side. The tax rate applies to the
// discounted subtotal and the grand total never goes below zero.
func ComputeTotals(items []OrderItem, discount decimal.Decimal, taxRate decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}

	taxable := subtotal.Sub(discount)
	tax := taxable.Mul(taxRate).Round(2)
	total := taxable.Add(tax)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return Totals{
		Subtotal:       subtotal,
		DiscountAmount: discount,
		Tax:            tax,
		Total:          total,
	}
}

type Order struct {
	ID              string        `json:"id"`
	OrderNumber     string        `json:"order_number"`
	UserID          string        `json:"user_id,omitempty"`
	CustomerName    string        `json:"customer_name"`
	CustomerEmail   string        `json:"customer_email"`
	BillingAddress  string        `json:"billing_address,omitempty"`
	PaymentMethod   PaymentMethod `json:"payment_method"`
	Status          OrderStatus   `json:"status"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	Items           []OrderItem   `json:"items"`
	Totals          Totals        `json:"totals"`
	IsGuestOrder    bool          `json:"is_guest_order"`
	ConvertedToUser bool          `json:"converted_to_user"`
	CreatedAt       time.Time     `json:"created_at"`
}

// Normalize applies the save-time rule for zero-amount orders: they complete
// immediately as free orders with no gateway interaction.
func (o *Order) Normalize() {
	if o.Status == "" {
		o.Status = OrderPending
	}
	if o.PaymentStatus == "" {
		o.PaymentStatus = PaymentPending
	}
	if o.Totals.Total.IsZero() {
		o.PaymentMethod = MethodFree
		o.Status = OrderCompleted
		o.PaymentStatus = PaymentFree
	}
}

// TotalUnits is the number of issued tickets a completed order produces.
func (o *Order) TotalUnits() int {
	n := 0
	for _, item := range o.Items {
		n += item.Quantity
	}
	return n
}

// EligibleForExpiry is the reaper selection predicate: still pending, payment
// already resolved against the customer, and older than maxAge.
func (o *Order) EligibleForExpiry(now time.Time, maxAge time.Duration) bool {
	if o.Status != OrderPending {
		return false
	}
	if o.PaymentStatus != PaymentCancelled && o.PaymentStatus != PaymentFailed {
		return false
	}
	return now.Sub(o.CreatedAt) > maxAge
}

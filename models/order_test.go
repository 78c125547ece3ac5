package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestOrderStatusTransitions(t *testing.T) {
	cases := []struct {
		from    OrderStatus
		to      OrderStatus
		allowed bool
	}{
		{OrderPending, OrderCompleted, true},
		{OrderPending, OrderExpired, true},
		{OrderPending, OrderFailed, true},
		{OrderProcessing, OrderCompleted, true},
		{OrderCompleted, OrderRefunded, true},

		{OrderCompleted, OrderPending, false},
		{OrderCompleted, OrderCompleted, false},
		{OrderExpired, OrderCompleted, false},
		{OrderCancelled, OrderPending, false},
		{OrderFailed, OrderCompleted, false},
		{OrderRefunded, OrderCompleted, false},
	}

	for _, c := range cases {
		assert.Equal(t, c.allowed, c.from.CanTransitionTo(c.to), "%s -> %s", c.from, c.to)
	}
}

func TestTerminalStatusesHaveNoOutgoingEdges(t *testing.T) {
	all := []OrderStatus{
		OrderPending, OrderConfirmed, OrderProcessing, OrderCompleted,
		OrderCancelled, OrderRefunded, OrderFailed, OrderExpired,
	}
	for _, from := range all {
		if !from.Terminal() {
			continue
		}
		for _, to := range all {
			assert.False(t, from.CanTransitionTo(to), "%s is terminal but can move to %s", from, to)
		}
	}
}

func TestPairSynced(t *testing.T) {
	assert.True(t, PairSynced(OrderCompleted, PaymentCompleted))
	assert.True(t, PairSynced(OrderCompleted, PaymentFree))
	assert.True(t, PairSynced(OrderExpired, PaymentExpired))
	assert.True(t, PairSynced(OrderPending, PaymentCancelled))

	assert.False(t, PairSynced(OrderCompleted, PaymentPending))
	assert.False(t, PairSynced(OrderExpired, PaymentCompleted))
	assert.False(t, PairSynced(OrderFailed, PaymentCompleted))
}

func TestComputeTotals(t *testing.T) {
	items := []OrderItem{
		{TicketID: "t1", Quantity: 2, UnitPrice: decimal.NewFromInt(500)},
		{TicketID: "t2", Quantity: 1, UnitPrice: decimal.NewFromInt(250)},
	}

	totals := ComputeTotals(items, decimal.NewFromInt(250), decimal.NewFromFloat(0.16))

	assert.True(t, totals.Subtotal.Equal(decimal.NewFromInt(1250)), "subtotal: %s", totals.Subtotal)
	assert.True(t, totals.DiscountAmount.Equal(decimal.NewFromInt(250)))
	assert.True(t, totals.Tax.Equal(decimal.NewFromInt(160)), "tax: %s", totals.Tax)
	assert.True(t, totals.Total.Equal(decimal.NewFromInt(1160)), "total: %s", totals.Total)
}

func TestComputeTotalsClampsDiscount(t *testing.T) {
	items := []OrderItem{{TicketID: "t1", Quantity: 1, UnitPrice: decimal.NewFromInt(100)}}

	totals := ComputeTotals(items, decimal.NewFromInt(5000), decimal.NewFromFloat(0.16))

	assert.True(t, totals.DiscountAmount.Equal(decimal.NewFromInt(100)))
	assert.True(t, totals.Total.IsZero(), "total: %s", totals.Total)
}

func TestNormalizeZeroTotalBecomesFreeCompleted(t *testing.T) {
	order := &Order{
		PaymentMethod: MethodMpesa,
		Totals:        Totals{Total: decimal.Zero},
	}
	order.Normalize()

	assert.Equal(t, MethodFree, order.PaymentMethod)
	assert.Equal(t, OrderCompleted, order.Status)
	assert.Equal(t, PaymentFree, order.PaymentStatus)
	assert.True(t, PairSynced(order.Status, order.PaymentStatus))
}

func TestNormalizePaidOrderStaysPending(t *testing.T) {
	order := &Order{
		PaymentMethod: MethodMpesa,
		Totals:        Totals{Total: decimal.NewFromInt(100)},
	}
	order.Normalize()

	assert.Equal(t, MethodMpesa, order.PaymentMethod)
	assert.Equal(t, OrderPending, order.Status)
	assert.Equal(t, PaymentPending, order.PaymentStatus)
}

func TestTotalUnits(t *testing.T) {
	order := &Order{Items: []OrderItem{{Quantity: 2}, {Quantity: 3}}}
	assert.Equal(t, 5, order.TotalUnits())
}

func TestEligibleForExpiry(t *testing.T) {
	now := time.Now()
	maxAge := 30 * time.Minute

	fresh := &Order{Status: OrderPending, PaymentStatus: PaymentCancelled, CreatedAt: now.Add(-10 * time.Minute)}
	stale := &Order{Status: OrderPending, PaymentStatus: PaymentCancelled, CreatedAt: now.Add(-45 * time.Minute)}
	staleFailed := &Order{Status: OrderPending, PaymentStatus: PaymentFailed, CreatedAt: now.Add(-45 * time.Minute)}
	stalePendingPayment := &Order{Status: OrderPending, PaymentStatus: PaymentPending, CreatedAt: now.Add(-45 * time.Minute)}
	completed := &Order{Status: OrderCompleted, PaymentStatus: PaymentCompleted, CreatedAt: now.Add(-45 * time.Minute)}

	assert.False(t, fresh.EligibleForExpiry(now, maxAge))
	assert.True(t, stale.EligibleForExpiry(now, maxAge))
	assert.True(t, staleFailed.EligibleForExpiry(now, maxAge))
	assert.False(t, stalePendingPayment.EligibleForExpiry(now, maxAge), "payment still pending, poll may resolve it")
	assert.False(t, completed.EligibleForExpiry(now, maxAge))
}

package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checkoutOrders = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_orders_total",
			Help: "Checkout attempts by payment method and outcome",
		},
		[]string{"payment_method", "status"},
	)

	inventoryOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_operations_total",
			Help: "Inventory reserve/release/confirm operations",
		},
		[]string{"operation", "status"},
	)

	stkCallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stk_callbacks_total",
			Help: "STK callback and poll reconciliations by outcome",
		},
		[]string{"outcome"},
	)

	issuedTickets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "issued_tickets_total",
			Help: "Tickets minted after payment confirmation",
		},
	)

	expiredOrders = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "expired_orders_total",
			Help: "Stale orders expired by the reaper",
		},
	)

	stkPushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stk_push_duration_seconds",
			Help:    "Duration of STK push initiation calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)
)

func TrackCheckout(paymentMethod, status string) {
	checkoutOrders.WithLabelValues(paymentMethod, status).Inc()
}

func TrackInventoryOp(operation, status string) {
	inventoryOps.WithLabelValues(operation, status).Inc()
}

func TrackCallback(outcome string) {
	stkCallbacks.WithLabelValues(outcome).Inc()
}

func TrackIssued(n int) {
	issuedTickets.Add(float64(n))
}

func TrackExpired() {
	expiredOrders.Inc()
}

func ObserveStkPush(d time.Duration) {
	stkPushDuration.Observe(d.Seconds())
}

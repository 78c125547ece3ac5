package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tikiti/models"
)

func TestAcquireResolutionGuard(t *testing.T) {
	ctx := context.Background()

	t.Run("first delivery wins", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		mock.ExpectSetNX("stk:resolved:ws_CO_1", "1", 24*time.Hour).SetVal(true)

		assert.True(t, acquireResolutionGuard(ctx, rdb, "ws_CO_1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate delivery is blocked", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		mock.ExpectSetNX("stk:resolved:ws_CO_1", "1", 24*time.Hour).SetVal(false)

		assert.False(t, acquireResolutionGuard(ctx, rdb, "ws_CO_1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redis outage fails open", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		mock.ExpectSetNX("stk:resolved:ws_CO_1", "1", 24*time.Hour).SetErr(errors.New("connection refused"))

		assert.True(t, acquireResolutionGuard(ctx, rdb, "ws_CO_1"),
			"guard must not block resolution when redis is down")
	})

	t.Run("nil client is a passthrough", func(t *testing.T) {
		assert.True(t, acquireResolutionGuard(ctx, nil, "ws_CO_1"))
	})
}

func TestNotifierNilSafe(t *testing.T) {
	var n *Notifier
	assert.NotPanics(t, func() {
		n.PublishOrderStatus("ORD-1", "pending", "processing", "waiting")
	})
	assert.Nil(t, NewNotifier(nil))
}

type fakeIssuer struct {
	calls int
}

func (f *fakeIssuer) Issue(ctx context.Context, order *core.Record) (int, error) {
	f.calls++
	return 0, nil
}

func createTransactionRecord(t *testing.T, app core.App, orderID, cid, txStatus, resultCode string) *core.Record {
	t.Helper()

	collection, err := app.FindCollectionByNameOrId("transactions")
	require.NoError(t, err)

	record := core.NewRecord(collection)
	record.Set("order", orderID)
	record.Set("checkout_request_id", cid)
	record.Set("merchant_request_id", "mid-1")
	record.Set("phone", "254712345678")
	record.Set("amount", 1000.0)
	record.Set("status", txStatus)
	record.Set("result_code", resultCode)
	require.NoError(t, app.Save(record))
	return record
}

// A crash between the transaction save and the order save leaves a settled
// transaction pointing at a still-pending order. The next delivery of the same
// result must finish the job instead of treating it as a no-op.
func TestResolveRedrivesStrandedOrder(t *testing.T) {
	app := newTestApp(t)
	createOrdersCollection(t, app)
	createTransactionsCollection(t, app)
	createIssuedTicketsCollection(t, app)

	order := createOrderRecord(t, app, "pending", "pending", []models.OrderItem{
		{TicketID: "t1", EventID: "evt1", TicketType: "Regular", Quantity: 2, UnitPrice: decimal.NewFromInt(500)},
	})
	createTransactionRecord(t, app, order.Id, "ws_CO_stranded", string(models.TxCompleted), "0")

	inv := newFakeInventory("")
	issuer := &fakeIssuer{}
	svc := NewPaymentService(app, nil, inv, issuer, nil, nil, nil)
	ctx := context.Background()

	res := &models.NormalizedResult{
		Success:           true,
		ResultCode:        "0",
		ResultDesc:        "The service request is processed successfully.",
		CheckoutRequestID: "ws_CO_stranded",
	}
	require.NoError(t, svc.Resolve(ctx, res))

	reloaded, err := app.FindRecordById("orders", order.Id)
	require.NoError(t, err)
	assert.Equal(t, "completed", reloaded.GetString("status"))
	assert.Equal(t, "completed", reloaded.GetString("payment_status"))
	assert.Equal(t, 1, issuer.calls)

	// Once order and transaction agree, further deliveries change nothing.
	require.NoError(t, svc.Resolve(ctx, res))
	assert.Equal(t, 1, issuer.calls)
}

func TestResolveRedriveReleasesCancelledOrder(t *testing.T) {
	app := newTestApp(t)
	createOrdersCollection(t, app)
	createTransactionsCollection(t, app)

	order := createOrderRecord(t, app, "pending", "pending", []models.OrderItem{
		{TicketID: "t1", EventID: "evt1", TicketType: "Regular", Quantity: 3, UnitPrice: decimal.NewFromInt(500)},
	})
	createTransactionRecord(t, app, order.Id, "ws_CO_cancelled", string(models.TxCancelled), "1032")

	inv := newFakeInventory("")
	svc := NewPaymentService(app, nil, inv, nil, nil, nil, nil)

	res := &models.NormalizedResult{
		ResultCode:        "1032",
		ResultDesc:        "Request cancelled by user",
		CheckoutRequestID: "ws_CO_cancelled",
	}
	require.NoError(t, svc.Resolve(context.Background(), res))

	reloaded, err := app.FindRecordById("orders", order.Id)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", reloaded.GetString("status"))
	assert.Equal(t, "cancelled", reloaded.GetString("payment_status"))
	assert.True(t, reloaded.GetBool("inventory_released"))
	assert.Equal(t, 3, inv.released["t1"], "the held units go back to the pool")
}

func TestPollStatusRedrivesSettledTransaction(t *testing.T) {
	app := newTestApp(t)
	createOrdersCollection(t, app)
	createTransactionsCollection(t, app)
	createIssuedTicketsCollection(t, app)

	order := createOrderRecord(t, app, "pending", "pending", []models.OrderItem{
		{TicketID: "t1", EventID: "evt1", TicketType: "Regular", Quantity: 1, UnitPrice: decimal.NewFromInt(500)},
	})
	createTransactionRecord(t, app, order.Id, "ws_CO_poll", string(models.TxCompleted), "0")

	issuer := &fakeIssuer{}
	svc := NewPaymentService(app, nil, newFakeInventory(""), issuer, nil, nil, nil)

	reply, err := svc.PollStatus(context.Background(), "ws_CO_poll")
	require.NoError(t, err)

	assert.Equal(t, "completed", reply.OrderStatus)
	assert.Equal(t, "completed", reply.PaymentStatus)
	assert.Equal(t, string(models.TxCompleted), reply.TransactionStatus)
	assert.Equal(t, 1, issuer.calls)
}

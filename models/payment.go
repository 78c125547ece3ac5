package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	TxPending    TransactionStatus = "pending"
	TxProcessing TransactionStatus = "processing"
	TxCompleted  TransactionStatus = "completed"
	TxCancelled  TransactionStatus = "cancelled"
	TxFailed     TransactionStatus = "failed"
)

func (s TransactionStatus) Terminal() bool {
	switch s {
	case TxCompleted, TxCancelled, TxFailed:
		return true
	}
	return false
}

// PaymentTransaction is one payment attempt against an order. The gateway's
// CheckoutRequestID is the join key the asynchronous callback uses to find
// its way back to the order.
type PaymentTransaction struct {
	ID                string            `json:"id"`
	OrderID           string            `json:"order_id"`
	CheckoutRequestID string            `json:"checkout_request_id"`
	MerchantRequestID string            `json:"merchant_request_id"`
	Phone             string            `json:"phone"`
	Amount            decimal.Decimal   `json:"amount"`
	Status            TransactionStatus `json:"status"`
	ResultCode        string            `json:"result_code"`
	ResultDesc        string            `json:"result_desc"`
	ReceiptNumber     string            `json:"receipt_number,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
}

// Outcome classifies a gateway result code into the handful of moves the
// state machine understands.
type Outcome string

const (
	OutcomeSuccess      Outcome = "success"
	OutcomeProcessing   Outcome = "processing"
	OutcomeCancelled    Outcome = "cancelled"
	OutcomeInsufficient Outcome = "insufficient_funds"
	OutcomeFailed       Outcome = "failed"
)

// ClassifyResultCode maps Daraja result codes to outcomes. The codes are
// gateway defined and must not be renumbered.
func ClassifyResultCode(code string) Outcome {
	switch code {
	case "0":
		return OutcomeSuccess
	case "4999", "500001", "500000", "2001":
		return OutcomeProcessing
	case "1032", "1":
		return OutcomeCancelled
	case "2006":
		return OutcomeInsufficient
	default:
		return OutcomeFailed
	}
}

// NormalizedResult is the single result shape shared by the STK callback and
// the status poll, so both triggers reconcile identically.
type NormalizedResult struct {
	Success           bool            `json:"success"`
	ResultCode        string          `json:"result_code"`
	ResultDesc        string          `json:"result_desc"`
	CheckoutRequestID string          `json:"checkout_request_id"`
	ReceiptNumber     string          `json:"receipt_number,omitempty"`
	Amount            decimal.Decimal `json:"amount,omitempty"`
	Phone             string          `json:"phone,omitempty"`
	TransactionDate   string          `json:"transaction_date,omitempty"`
}

// Resolution is the full set of state moves a reconciled gateway result
// implies. ReleaseInventory and IssueTickets are mutually exclusive.
type Resolution struct {
	Transaction      TransactionStatus
	Order            OrderStatus
	Payment          PaymentStatus
	ReleaseInventory bool
	IssueTickets     bool
}

// PlanResolution centralizes the result-code to state-transition mapping used
// by both the callback handler and the poll path. It returns ok=false when
// nothing should change: the transaction is already terminal (idempotent
// re-delivery) or the gateway is still processing and the attempt was already
// marked as such.
func PlanResolution(current TransactionStatus, outcome Outcome) (Resolution, bool) {
	if current.Terminal() {
		return Resolution{}, false
	}

	switch outcome {
	case OutcomeSuccess:
		return Resolution{
			Transaction:  TxCompleted,
			Order:        OrderCompleted,
			Payment:      PaymentCompleted,
			IssueTickets: true,
		}, true

	case OutcomeProcessing:
		if current == TxProcessing {
			return Resolution{}, false
		}
		return Resolution{
			Transaction: TxProcessing,
			Order:       OrderPending,
			Payment:     PaymentProcessing,
		}, true

	case OutcomeCancelled:
		return Resolution{
			Transaction:      TxCancelled,
			Order:            OrderPending,
			Payment:          PaymentCancelled,
			ReleaseInventory: true,
		}, true

	default: // insufficient funds and generic failures
		return Resolution{
			Transaction:      TxFailed,
			Order:            OrderPending,
			Payment:          PaymentFailed,
			ReleaseInventory: true,
		}, true
	}
}

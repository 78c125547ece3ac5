package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyResultCode(t *testing.T) {
	cases := []struct {
		code string
		want Outcome
	}{
		{"0", OutcomeSuccess},
		{"4999", OutcomeProcessing},
		{"500001", OutcomeProcessing},
		{"500000", OutcomeProcessing},
		{"2001", OutcomeProcessing},
		{"1032", OutcomeCancelled},
		{"1", OutcomeCancelled},
		{"2006", OutcomeInsufficient},
		{"1037", OutcomeFailed},
		{"", OutcomeFailed},
		{"garbage", OutcomeFailed},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, ClassifyResultCode(c.code), "code %q", c.code)
	}
}

func TestPlanResolutionSuccess(t *testing.T) {
	plan, ok := PlanResolution(TxPending, OutcomeSuccess)

	assert.True(t, ok)
	assert.Equal(t, TxCompleted, plan.Transaction)
	assert.Equal(t, OrderCompleted, plan.Order)
	assert.Equal(t, PaymentCompleted, plan.Payment)
	assert.True(t, plan.IssueTickets)
	assert.False(t, plan.ReleaseInventory)
}

func TestPlanResolutionCancelledReleasesInventory(t *testing.T) {
	plan, ok := PlanResolution(TxPending, OutcomeCancelled)

	assert.True(t, ok)
	assert.Equal(t, TxCancelled, plan.Transaction)
	assert.Equal(t, OrderPending, plan.Order)
	assert.Equal(t, PaymentCancelled, plan.Payment)
	assert.True(t, plan.ReleaseInventory)
	assert.False(t, plan.IssueTickets)
}

func TestPlanResolutionInsufficientFundsFails(t *testing.T) {
	plan, ok := PlanResolution(TxProcessing, OutcomeInsufficient)

	assert.True(t, ok)
	assert.Equal(t, TxFailed, plan.Transaction)
	assert.Equal(t, PaymentFailed, plan.Payment)
	assert.True(t, plan.ReleaseInventory)
}

func TestPlanResolutionTerminalIsNoop(t *testing.T) {
	for _, current := range []TransactionStatus{TxCompleted, TxCancelled, TxFailed} {
		for _, outcome := range []Outcome{OutcomeSuccess, OutcomeCancelled, OutcomeFailed, OutcomeProcessing} {
			_, ok := PlanResolution(current, outcome)
			assert.False(t, ok, "terminal %s must ignore %s", current, outcome)
		}
	}
}

func TestPlanResolutionProcessingIsIdempotent(t *testing.T) {
	plan, ok := PlanResolution(TxPending, OutcomeProcessing)
	assert.True(t, ok)
	assert.Equal(t, TxProcessing, plan.Transaction)
	assert.Equal(t, PaymentProcessing, plan.Payment)

	_, ok = PlanResolution(TxProcessing, OutcomeProcessing)
	assert.False(t, ok, "repeated processing result must not re-apply")
}

package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/pocketbase/pocketbase/core"

	"tikiti/internal/services"
	"tikiti/internal/services/mpesa"
	"tikiti/internal/status"
	"tikiti/monitoring"
)

type CallbackHandler struct {
	payments *services.PaymentService
}

func NewCallbackHandler(payments *services.PaymentService) *CallbackHandler {
	return &CallbackHandler{payments: payments}
}

// StkCallback handles POST /api/v1/callback/stk, the asynchronous result push
// from Daraja. The gateway only cares that we answer 200; the body ResultCode
// is 1 solely for payloads we could not parse at all. Anything else is our
// problem to reconcile, not the gateway's to retry.
func (h *CallbackHandler) StkCallback(e *core.RequestEvent) error {
	raw, err := io.ReadAll(e.Request.Body)
	if err != nil {
		slog.Error("failed to read stk callback body", "error", err)
		monitoring.TrackCallback("malformed")
		return ack(e, 1, "Rejected")
	}

	result, err := mpesa.ParseCallback(raw)
	if err != nil {
		slog.Error("failed to parse stk callback", "error", err)
		monitoring.TrackCallback("malformed")
		return ack(e, 1, "Rejected")
	}

	if err := h.payments.Resolve(e.Request.Context(), result); err != nil {
		// Resolution failures are logged, never bounced: Daraja retries do
		// not help with an unknown CheckoutRequestID or a storage error.
		if errors.Is(err, status.ErrTransactionNotFound) {
			slog.Warn("stk callback for unknown transaction", "checkoutRequestID", result.CheckoutRequestID)
		} else {
			slog.Error("failed to resolve stk callback", "checkoutRequestID", result.CheckoutRequestID, "error", err)
		}
	}

	return ack(e, 0, "Accepted")
}

func ack(e *core.RequestEvent, code int, desc string) error {
	return e.JSON(http.StatusOK, map[string]any{
		"ResultCode": code,
		"ResultDesc": desc,
	})
}

package handlers

import (
	"errors"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"tikiti/internal/services"
	"tikiti/internal/status"
)

type CheckoutHandler struct {
	checkout *services.CheckoutService
	payments *services.PaymentService
}

func NewCheckoutHandler(checkout *services.CheckoutService, payments *services.PaymentService) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout, payments: payments}
}

// ProcessCheckout handles POST /api/v1/checkout/process. Works for both
// authenticated users and guests; e.Auth is nil for the latter.
func (h *CheckoutHandler) ProcessCheckout(e *core.RequestEvent) error {
	var req services.CheckoutRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}

	result, err := h.checkout.ProcessCheckout(e.Request.Context(), &req, e.Auth)
	if err != nil {
		return mapServiceError(err)
	}

	return e.JSON(http.StatusOK, result)
}

// PaymentStatus handles GET /api/v1/checkout/payment-status/{checkoutRequestId}.
// Polling this endpoint also reconciles the order if the callback was lost.
func (h *CheckoutHandler) PaymentStatus(e *core.RequestEvent) error {
	checkoutRequestID := e.Request.PathValue("checkoutRequestId")
	if checkoutRequestID == "" {
		return apis.NewBadRequestError("Missing checkout request id", nil)
	}

	reply, err := h.payments.PollStatus(e.Request.Context(), checkoutRequestID)
	if err != nil {
		return mapServiceError(err)
	}

	return e.JSON(http.StatusOK, reply)
}

// mapServiceError translates domain errors onto HTTP. Validation and
// inventory messages are user facing and pass through verbatim; everything
// else gets a generic body so internals never leak.
func mapServiceError(err error) error {
	switch {
	case status.IsValidation(err):
		return apis.NewBadRequestError(err.Error(), nil)

	case status.IsInventory(err):
		return apis.NewApiError(http.StatusConflict, err.Error(), nil)

	case errors.Is(err, status.ErrOrderNotFound),
		errors.Is(err, status.ErrTransactionNotFound),
		errors.Is(err, status.ErrTicketNotFound):
		return apis.NewNotFoundError("Not found", nil)

	case status.IsGateway(err):
		return apis.NewApiError(http.StatusBadGateway, "Payment provider is unavailable, please try again", nil)

	default:
		return apis.NewInternalServerError("Something went wrong", err)
	}
}

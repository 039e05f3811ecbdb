package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"github.com/YossiGold99/PartyFlow-V2/config"
	"github.com/YossiGold99/PartyFlow-V2/internal/payment"
	"github.com/YossiGold99/PartyFlow-V2/internal/payment/stripe"
	"github.com/YossiGold99/PartyFlow-V2/internal/status"
	"github.com/YossiGold99/PartyFlow-V2/services"
)

type PaymentHandler struct {
	config         *config.Config
	paymentService *services.PaymentService
}

func NewPaymentHandler(cfg *config.Config, paymentService *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		config:         cfg,
		paymentService: paymentService,
	}
}

// StripeWebhook - receives provider callbacks. Everything the provider
// might retry gets a 200 once handled; only signature problems and our
// own failures are surfaced, so retries keep coming until we recover.
func (h *PaymentHandler) StripeWebhook(e *core.RequestEvent) error {
	payload, err := io.ReadAll(e.Request.Body)
	if err != nil {
		return apis.NewBadRequestError("Failed to read body", err)
	}

	event, err := stripe.ParseWebhook(
		payload,
		e.Request.Header.Get("Stripe-Signature"),
		h.config.StripeWebhookSecret,
		time.Now(),
	)
	if err != nil {
		slog.Warn("webhook rejected", "error", err)
		return apis.NewBadRequestError("Invalid webhook", err)
	}

	if !event.Known {
		// Event types we don't subscribe to; ack so Stripe stops resending.
		return e.JSON(http.StatusOK, map[string]any{"received": true})
	}

	err = h.paymentService.OnPaymentOutcome(e.Request.Context(), event.SessionRef, event.Outcome)
	if err != nil {
		if errors.Is(err, status.ErrUnknownSession) {
			// Not ours (or not yet persisted); ack rather than retry forever.
			return e.JSON(http.StatusOK, map[string]any{"received": true})
		}
		return apis.NewApiError(http.StatusInternalServerError, "Failed to process webhook", err)
	}

	return e.JSON(http.StatusOK, map[string]any{"received": true})
}

// SimulateOutcome - development-only shortcut to drive an order through
// the payment flow without a provider round trip.
func (h *PaymentHandler) SimulateOutcome(e *core.RequestEvent) error {
	if h.config.Environment != "development" {
		return apis.NewNotFoundError("Not found", nil)
	}

	var req struct {
		SessionRef string `json:"session_ref"`
		Outcome    string `json:"outcome"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	err := h.paymentService.OnPaymentOutcome(e.Request.Context(), req.SessionRef, payment.Outcome(req.Outcome))
	if err != nil {
		switch {
		case errors.Is(err, status.ErrUnknownSession):
			return apis.NewNotFoundError("Unknown session", err)
		case errors.Is(err, status.ErrUnknownOutcome):
			return apis.NewBadRequestError("Unknown outcome", err)
		default:
			return apis.NewApiError(http.StatusInternalServerError, "Failed to apply outcome", err)
		}
	}

	return e.JSON(http.StatusOK, map[string]any{"applied": true})
}

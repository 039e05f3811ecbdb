package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/YossiGold99/PartyFlow-V2/internal/payment"
	"github.com/YossiGold99/PartyFlow-V2/internal/status"
	"github.com/YossiGold99/PartyFlow-V2/internal/store"
	"github.com/YossiGold99/PartyFlow-V2/models"
	"github.com/YossiGold99/PartyFlow-V2/monitoring"
)

// PaymentService reconciles provider callbacks onto orders. Callbacks
// arrive at-least-once and in any order; every path through here is
// idempotent, so the webhook handler can ack without bookkeeping.
type PaymentService struct {
	orders    store.OrderStore
	lifecycle *OrderService
}

func NewPaymentService(orders store.OrderStore, lifecycle *OrderService) *PaymentService {
	return &PaymentService{orders: orders, lifecycle: lifecycle}
}

// OnPaymentOutcome applies one provider callback. An unknown session ref
// is reported as status.ErrUnknownSession; the caller decides whether to
// ack (webhooks do, so the provider stops retrying junk).
func (s *PaymentService) OnPaymentOutcome(ctx context.Context, sessionRef string, outcome payment.Outcome) error {
	order, err := s.orders.GetBySessionRef(ctx, sessionRef)
	if err != nil {
		if errors.Is(err, status.ErrOrderNotFound) {
			monitoring.TrackPaymentOutcome(string(outcome), "unknown_session")
			slog.Warn("payment callback for unknown session", "sessionRef", sessionRef, "outcome", outcome)
			return status.ErrUnknownSession
		}
		return err
	}

	switch outcome {
	case payment.OutcomeSucceeded:
		err = s.lifecycle.MarkPaid(ctx, order.ID)
	case payment.OutcomeFailed:
		err = s.applyClose(ctx, order, models.OrderStatusFailed)
	case payment.OutcomeExpired:
		err = s.applyClose(ctx, order, models.OrderStatusExpired)
	default:
		monitoring.TrackPaymentOutcome(string(outcome), "unknown_outcome")
		return status.ErrUnknownOutcome
	}
	if err != nil {
		monitoring.TrackPaymentOutcome(string(outcome), "error")
		return err
	}

	monitoring.TrackPaymentOutcome(string(outcome), "applied")
	return nil
}

// applyClose treats a late failure/expiry callback on an already-closed
// order as a duplicate rather than a conflict: the order stays where its
// first terminal transition put it.
func (s *PaymentService) applyClose(ctx context.Context, order *models.Order, to models.OrderStatus) error {
	var err error
	switch to {
	case models.OrderStatusFailed:
		err = s.lifecycle.MarkFailed(ctx, order.ID)
	case models.OrderStatusExpired:
		err = s.lifecycle.MarkExpired(ctx, order.ID)
	}
	if errors.Is(err, status.ErrInvalidTransition) {
		slog.Info("late payment callback on closed order, ignoring",
			"orderID", order.ID, "status", order.Status, "wanted", to)
		return nil
	}
	return err
}

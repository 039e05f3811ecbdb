package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YossiGold99/PartyFlow-V2/internal/payment"
	"github.com/YossiGold99/PartyFlow-V2/internal/status"
	"github.com/YossiGold99/PartyFlow-V2/models"
)

func setupPaymentService(t *testing.T) (*PaymentService, *orderFixture) {
	t.Helper()
	f := setupOrderService(t, 10, 15*time.Minute)
	return NewPaymentService(f.orders, f.service), f
}

func TestPaymentService_SucceededOutcome(t *testing.T) {
	service, f := setupPaymentService(t)
	ctx := context.Background()

	order := f.createOrder(t, "user1", 2)

	require.NoError(t, service.OnPaymentOutcome(ctx, order.SessionRef, payment.OutcomeSucceeded))

	got, err := f.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, got.Status)
	assert.Equal(t, 2, f.tickets.count())
}

// Providers deliver at-least-once; the second, third and fifteenth copy
// of the same callback must change nothing.
func TestPaymentService_DuplicateCallbacks(t *testing.T) {
	service, f := setupPaymentService(t)
	ctx := context.Background()

	order := f.createOrder(t, "user1", 2)

	for i := 0; i < 3; i++ {
		require.NoError(t, service.OnPaymentOutcome(ctx, order.SessionRef, payment.OutcomeSucceeded))
	}

	assert.Equal(t, 2, f.tickets.count())
	assert.Equal(t, 2, f.notifier.sentTickets("user1"))
}

func TestPaymentService_FailedOutcome(t *testing.T) {
	service, f := setupPaymentService(t)
	ctx := context.Background()

	order := f.createOrder(t, "user1", 2)

	require.NoError(t, service.OnPaymentOutcome(ctx, order.SessionRef, payment.OutcomeFailed))

	got, err := f.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusFailed, got.Status)

	available, err := f.ledger.AvailableCount(ctx, "evt1")
	require.NoError(t, err)
	assert.Equal(t, 10, available)
}

// Out-of-order delivery: the expiry callback lands after the success
// callback. The order stays paid.
func TestPaymentService_LateExpiryAfterSuccess(t *testing.T) {
	service, f := setupPaymentService(t)
	ctx := context.Background()

	order := f.createOrder(t, "user1", 1)

	require.NoError(t, service.OnPaymentOutcome(ctx, order.SessionRef, payment.OutcomeSucceeded))
	require.NoError(t, service.OnPaymentOutcome(ctx, order.SessionRef, payment.OutcomeExpired))

	got, err := f.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, got.Status)
	assert.Equal(t, 1, f.tickets.count())
}

func TestPaymentService_UnknownSession(t *testing.T) {
	service, _ := setupPaymentService(t)

	err := service.OnPaymentOutcome(context.Background(), "cs_never_seen", payment.OutcomeSucceeded)

	assert.ErrorIs(t, err, status.ErrUnknownSession)
}

func TestPaymentService_UnknownOutcome(t *testing.T) {
	service, f := setupPaymentService(t)
	ctx := context.Background()

	order := f.createOrder(t, "user1", 1)

	err := service.OnPaymentOutcome(ctx, order.SessionRef, payment.Outcome("chargeback"))
	assert.ErrorIs(t, err, status.ErrUnknownOutcome)

	// The order is untouched.
	got, err := f.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPendingPayment, got.Status)
}

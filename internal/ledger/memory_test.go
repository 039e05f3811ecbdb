package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YossiGold99/PartyFlow-V2/internal/status"
)

func setupMemoryLedger(t *testing.T, capacity int) *MemoryLedger {
	t.Helper()
	ledger := NewMemoryLedger(15 * time.Minute)
	require.NoError(t, ledger.SetCapacity(context.Background(), "evt1", capacity))
	return ledger
}

func TestMemoryLedger_TryHold_DeductsCapacity(t *testing.T) {
	ledger := setupMemoryLedger(t, 10)
	ctx := context.Background()

	hold, err := ledger.TryHold(ctx, "evt1", 3)
	require.NoError(t, err)
	assert.Equal(t, HoldActive, hold.Status)
	assert.Equal(t, 3, hold.Quantity)
	assert.NotEmpty(t, hold.Token)

	available, err := ledger.AvailableCount(ctx, "evt1")
	require.NoError(t, err)
	assert.Equal(t, 7, available)
}

func TestMemoryLedger_TryHold_SoldOut(t *testing.T) {
	ledger := setupMemoryLedger(t, 2)
	ctx := context.Background()

	_, err := ledger.TryHold(ctx, "evt1", 2)
	require.NoError(t, err)

	_, err = ledger.TryHold(ctx, "evt1", 1)
	assert.ErrorIs(t, err, status.ErrSoldOut)
}

func TestMemoryLedger_TryHold_InvalidQuantity(t *testing.T) {
	ledger := setupMemoryLedger(t, 10)

	_, err := ledger.TryHold(context.Background(), "evt1", 0)
	assert.ErrorIs(t, err, status.ErrInvalidQuantity)
}

// Capacity 2, twenty buyers racing for one ticket each: exactly two
// succeed, no oversell, regardless of interleaving.
func TestMemoryLedger_TryHold_NoOversellUnderConcurrency(t *testing.T) {
	ledger := setupMemoryLedger(t, 2)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
		soldOut int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.TryHold(ctx, "evt1", 1)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				granted++
			} else if err == status.ErrSoldOut {
				soldOut++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, granted)
	assert.Equal(t, 18, soldOut)

	available, err := ledger.AvailableCount(ctx, "evt1")
	require.NoError(t, err)
	assert.Equal(t, 0, available)
}

func TestMemoryLedger_Confirm_MovesHeldToConfirmed(t *testing.T) {
	ledger := setupMemoryLedger(t, 5)
	ctx := context.Background()

	hold, err := ledger.TryHold(ctx, "evt1", 2)
	require.NoError(t, err)

	require.NoError(t, ledger.Confirm(ctx, hold.Token))

	// Confirmed quantity stays out of the pool.
	available, err := ledger.AvailableCount(ctx, "evt1")
	require.NoError(t, err)
	assert.Equal(t, 3, available)
}

func TestMemoryLedger_Confirm_Idempotent(t *testing.T) {
	ledger := setupMemoryLedger(t, 5)
	ctx := context.Background()

	hold, err := ledger.TryHold(ctx, "evt1", 2)
	require.NoError(t, err)

	require.NoError(t, ledger.Confirm(ctx, hold.Token))
	require.NoError(t, ledger.Confirm(ctx, hold.Token))

	available, err := ledger.AvailableCount(ctx, "evt1")
	require.NoError(t, err)
	assert.Equal(t, 3, available)
}

func TestMemoryLedger_Confirm_UnknownToken(t *testing.T) {
	ledger := setupMemoryLedger(t, 5)

	err := ledger.Confirm(context.Background(), "nope")
	assert.ErrorIs(t, err, status.ErrHoldNotFound)
}

func TestMemoryLedger_Confirm_ReleasedHold(t *testing.T) {
	ledger := setupMemoryLedger(t, 5)
	ctx := context.Background()

	hold, err := ledger.TryHold(ctx, "evt1", 1)
	require.NoError(t, err)
	require.NoError(t, ledger.Release(ctx, hold.Token))

	err = ledger.Confirm(ctx, hold.Token)
	assert.ErrorIs(t, err, status.ErrHoldNotActive)
}

func TestMemoryLedger_Confirm_ExpiredHold(t *testing.T) {
	ledger := setupMemoryLedger(t, 5)
	ctx := context.Background()

	hold, err := ledger.TryHold(ctx, "evt1", 2)
	require.NoError(t, err)

	// Jump past the TTL.
	ledger.now = func() time.Time { return time.Now().Add(16 * time.Minute) }

	err = ledger.Confirm(ctx, hold.Token)
	assert.ErrorIs(t, err, status.ErrHoldNotActive)

	// The lapsed quantity is back in the pool.
	available, err := ledger.AvailableCount(ctx, "evt1")
	require.NoError(t, err)
	assert.Equal(t, 5, available)
}

func TestMemoryLedger_Release_ReturnsCapacity(t *testing.T) {
	ledger := setupMemoryLedger(t, 5)
	ctx := context.Background()

	hold, err := ledger.TryHold(ctx, "evt1", 2)
	require.NoError(t, err)
	require.NoError(t, ledger.Release(ctx, hold.Token))

	available, err := ledger.AvailableCount(ctx, "evt1")
	require.NoError(t, err)
	assert.Equal(t, 5, available)
}

func TestMemoryLedger_Release_Idempotent(t *testing.T) {
	ledger := setupMemoryLedger(t, 5)
	ctx := context.Background()

	hold, err := ledger.TryHold(ctx, "evt1", 2)
	require.NoError(t, err)

	require.NoError(t, ledger.Release(ctx, hold.Token))
	require.NoError(t, ledger.Release(ctx, hold.Token))

	// Double release must not return the quantity twice.
	available, err := ledger.AvailableCount(ctx, "evt1")
	require.NoError(t, err)
	assert.Equal(t, 5, available)
}

func TestMemoryLedger_Release_ConfirmedHoldIsNoop(t *testing.T) {
	ledger := setupMemoryLedger(t, 5)
	ctx := context.Background()

	hold, err := ledger.TryHold(ctx, "evt1", 2)
	require.NoError(t, err)
	require.NoError(t, ledger.Confirm(ctx, hold.Token))

	// The losing side of a confirm-vs-expiry race lands here; the sold
	// seats must stay sold.
	require.NoError(t, ledger.Release(ctx, hold.Token))

	available, err := ledger.AvailableCount(ctx, "evt1")
	require.NoError(t, err)
	assert.Equal(t, 3, available)
}

// Last ticket: buyer A holds it, buyer B is told sold out; A's hold
// expires, then B gets it.
func TestMemoryLedger_LastTicketFreedByExpiry(t *testing.T) {
	ledger := setupMemoryLedger(t, 1)
	ctx := context.Background()

	holdA, err := ledger.TryHold(ctx, "evt1", 1)
	require.NoError(t, err)

	_, err = ledger.TryHold(ctx, "evt1", 1)
	require.ErrorIs(t, err, status.ErrSoldOut)

	ledger.now = func() time.Time { return time.Now().Add(16 * time.Minute) }

	holdB, err := ledger.TryHold(ctx, "evt1", 1)
	require.NoError(t, err)
	assert.NotEqual(t, holdA.Token, holdB.Token)

	// A's payment arriving now must not be honored.
	assert.ErrorIs(t, ledger.Confirm(ctx, holdA.Token), status.ErrHoldNotActive)
}

func TestMemoryLedger_Sweep_ReportsExpiredHolds(t *testing.T) {
	ledger := setupMemoryLedger(t, 5)
	ctx := context.Background()

	hold, err := ledger.TryHold(ctx, "evt1", 2)
	require.NoError(t, err)
	kept, err := ledger.TryHold(ctx, "evt1", 1)
	require.NoError(t, err)
	require.NoError(t, ledger.Confirm(ctx, kept.Token))

	ledger.now = func() time.Time { return time.Now().Add(16 * time.Minute) }

	expired, err := ledger.Sweep(ctx)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, hold.Token, expired[0].Token)
	assert.Equal(t, HoldExpired, expired[0].Status)

	// Second sweep finds nothing new.
	expired, err = ledger.Sweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, expired)
}

func TestMemoryLedger_SetCapacity_Update(t *testing.T) {
	ledger := setupMemoryLedger(t, 5)
	ctx := context.Background()

	_, err := ledger.TryHold(ctx, "evt1", 2)
	require.NoError(t, err)

	// Shrinking capacity below held+confirmed just stops further sales.
	require.NoError(t, ledger.SetCapacity(ctx, "evt1", 1))

	available, err := ledger.AvailableCount(ctx, "evt1")
	require.NoError(t, err)
	assert.Equal(t, -1, available)

	_, err = ledger.TryHold(ctx, "evt1", 1)
	assert.ErrorIs(t, err, status.ErrSoldOut)
}

package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YossiGold99/PartyFlow-V2/internal/status"
)

func setupRedisLedger() (*RedisLedger, redismock.ClientMock, time.Time) {
	db, mock := redismock.NewClientMock()
	now := time.Unix(1700000000, 0)

	ledger := NewRedisLedger(db, 15*time.Minute)
	ledger.now = func() time.Time { return now }

	return ledger, mock, now
}

func TestRedisLedger_SetCapacity(t *testing.T) {
	ledger, mock, _ := setupRedisLedger()
	defer mock.ClearExpect()

	mock.ExpectSet("ledger:capacity:evt1", 50, 0).SetVal("OK")
	mock.ExpectSAdd("ledger:events", "evt1").SetVal(1)

	err := ledger.SetCapacity(context.Background(), "evt1", 50)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLedger_Confirm_Success(t *testing.T) {
	ledger, mock, now := setupRedisLedger()
	defer mock.ClearExpect()

	mock.ExpectEval(confirmScript, []string{"ledger:hold:TOK1"}, now.Unix()).
		SetVal(int64(1))

	err := ledger.Confirm(context.Background(), "TOK1")

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLedger_Confirm_NotFound(t *testing.T) {
	ledger, mock, now := setupRedisLedger()
	defer mock.ClearExpect()

	mock.ExpectEval(confirmScript, []string{"ledger:hold:TOK1"}, now.Unix()).
		SetVal(int64(-1))

	err := ledger.Confirm(context.Background(), "TOK1")

	assert.ErrorIs(t, err, status.ErrHoldNotFound)
}

func TestRedisLedger_Confirm_NotActive(t *testing.T) {
	ledger, mock, now := setupRedisLedger()
	defer mock.ClearExpect()

	mock.ExpectEval(confirmScript, []string{"ledger:hold:TOK1"}, now.Unix()).
		SetVal(int64(-2))

	err := ledger.Confirm(context.Background(), "TOK1")

	assert.ErrorIs(t, err, status.ErrHoldNotActive)
}

func TestRedisLedger_Release_Success(t *testing.T) {
	ledger, mock, now := setupRedisLedger()
	defer mock.ClearExpect()

	mock.ExpectEval(releaseScript, []string{"ledger:hold:TOK1"}, now.Unix()).
		SetVal(int64(1))

	err := ledger.Release(context.Background(), "TOK1")

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLedger_Release_NotFound(t *testing.T) {
	ledger, mock, now := setupRedisLedger()
	defer mock.ClearExpect()

	mock.ExpectEval(releaseScript, []string{"ledger:hold:TOK1"}, now.Unix()).
		SetVal(int64(-1))

	err := ledger.Release(context.Background(), "TOK1")

	assert.ErrorIs(t, err, status.ErrHoldNotFound)
}

func TestRedisLedger_AvailableCount(t *testing.T) {
	ledger, mock, now := setupRedisLedger()
	defer mock.ClearExpect()

	mock.ExpectEval(availableScript, []string{
		"ledger:capacity:evt1",
		"ledger:confirmed:evt1",
		"ledger:held:evt1",
		"ledger:active:evt1",
	}, now.Unix()).SetVal(int64(7))

	available, err := ledger.AvailableCount(context.Background(), "evt1")

	require.NoError(t, err)
	assert.Equal(t, 7, available)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLedger_Sweep(t *testing.T) {
	ledger, mock, now := setupRedisLedger()
	defer mock.ClearExpect()

	mock.ExpectSMembers("ledger:events").SetVal([]string{"evt1"})
	mock.ExpectEval(sweepScript, []string{"ledger:held:evt1", "ledger:active:evt1"}, now.Unix()).
		SetVal([]interface{}{"TOK1"})
	mock.ExpectHGetAll("ledger:hold:TOK1").SetVal(map[string]string{
		"event":      "evt1",
		"quantity":   "2",
		"status":     "expired",
		"created_at": "1699999000",
		"expires_at": "1699999900",
	})

	expired, err := ledger.Sweep(context.Background())

	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "TOK1", expired[0].Token)
	assert.Equal(t, "evt1", expired[0].EventID)
	assert.Equal(t, 2, expired[0].Quantity)
	assert.Equal(t, HoldExpired, expired[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

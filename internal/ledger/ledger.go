// Package ledger is the single point of truth for per-event ticket
// capacity. Every seat that leaves the available pool does so through a
// Hold created here; nothing else in the system mutates capacity.
package ledger

import (
	"context"
	"time"
)

type HoldStatus string

const (
	HoldActive    HoldStatus = "active"
	HoldConfirmed HoldStatus = "confirmed"
	HoldReleased  HoldStatus = "released"
	HoldExpired   HoldStatus = "expired"
)

// Hold is a time-boxed, capacity-deducting reservation for a quantity of
// tickets. Its quantity leaves the available pool the instant the hold is
// created and returns the instant it becomes released or expired.
type Hold struct {
	Token     string     `json:"token"`
	EventID   string     `json:"event_id"`
	Quantity  int        `json:"quantity"`
	Status    HoldStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// Ledger serializes TryHold/Confirm/Release per event so availability
// checks never act on stale reads. Operations on different events are
// independent.
//
// Confirm is idempotent-safe: confirming an already-confirmed hold is a
// no-op success; confirming a released or expired hold fails with
// status.ErrHoldNotActive. Release is idempotent: releasing a hold that is
// already released, expired or confirmed is a no-op success.
type Ledger interface {
	// SetCapacity registers (or updates) the total capacity for an event.
	SetCapacity(ctx context.Context, eventID string, capacity int) error

	// TryHold atomically checks available = capacity - confirmed - active
	// and creates an active hold, or fails with status.ErrSoldOut.
	TryHold(ctx context.Context, eventID string, quantity int) (*Hold, error)

	Confirm(ctx context.Context, token string) error
	Release(ctx context.Context, token string) error

	AvailableCount(ctx context.Context, eventID string) (int, error)

	// Sweep transitions lapsed active holds to expired, returning their
	// quantities to the pool, and reports the newly-expired holds so the
	// order sweep can expire the orders that owned them.
	Sweep(ctx context.Context) ([]Hold, error)
}

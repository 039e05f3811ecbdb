package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/YossiGold99/PartyFlow-V2/internal/status"
	"github.com/YossiGold99/PartyFlow-V2/utils"
)

type eventState struct {
	mu        sync.Mutex
	capacity  int
	confirmed int
	held      int
}

// MemoryLedger keeps everything in process memory with one mutex per
// event, so holds against different events proceed fully in parallel.
// It is the development-mode implementation and the concurrency test bed;
// semantics match RedisLedger exactly.
type MemoryLedger struct {
	mu      sync.RWMutex
	events  map[string]*eventState
	holds   map[string]*Hold
	holdTTL time.Duration
	now     func() time.Time
}

func NewMemoryLedger(holdTTL time.Duration) *MemoryLedger {
	return &MemoryLedger{
		events:  make(map[string]*eventState),
		holds:   make(map[string]*Hold),
		holdTTL: holdTTL,
		now:     time.Now,
	}
}

func (l *MemoryLedger) eventState(eventID string) *eventState {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.events[eventID]
	if !ok {
		st = &eventState{}
		l.events[eventID] = st
	}
	return st
}

// purgeLocked expires lapsed active holds for one event. Caller holds the
// event mutex.
func (l *MemoryLedger) purgeLocked(eventID string, st *eventState, now time.Time) []Hold {
	var lapsed []Hold
	l.mu.Lock()
	for _, hold := range l.holds {
		if hold.EventID != eventID || hold.Status != HoldActive {
			continue
		}
		if !hold.ExpiresAt.After(now) {
			hold.Status = HoldExpired
			st.held -= hold.Quantity
			lapsed = append(lapsed, *hold)
		}
	}
	l.mu.Unlock()
	return lapsed
}

func (l *MemoryLedger) SetCapacity(_ context.Context, eventID string, capacity int) error {
	st := l.eventState(eventID)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.capacity = capacity
	return nil
}

func (l *MemoryLedger) TryHold(_ context.Context, eventID string, quantity int) (*Hold, error) {
	if quantity <= 0 {
		return nil, status.ErrInvalidQuantity
	}

	token, err := utils.GenerateCode(16)
	if err != nil {
		return nil, err
	}

	st := l.eventState(eventID)
	st.mu.Lock()
	defer st.mu.Unlock()

	now := l.now()
	l.purgeLocked(eventID, st, now)

	available := st.capacity - st.confirmed - st.held
	if quantity > available {
		return nil, status.ErrSoldOut
	}

	hold := &Hold{
		Token:     token,
		EventID:   eventID,
		Quantity:  quantity,
		Status:    HoldActive,
		CreatedAt: now,
		ExpiresAt: now.Add(l.holdTTL),
	}
	st.held += quantity

	l.mu.Lock()
	l.holds[token] = hold
	l.mu.Unlock()

	clone := *hold
	return &clone, nil
}

func (l *MemoryLedger) Confirm(_ context.Context, token string) error {
	l.mu.RLock()
	hold, ok := l.holds[token]
	l.mu.RUnlock()
	if !ok {
		return status.ErrHoldNotFound
	}

	st := l.eventState(hold.EventID)
	st.mu.Lock()
	defer st.mu.Unlock()

	now := l.now()
	switch hold.Status {
	case HoldConfirmed:
		return nil
	case HoldActive:
		if !hold.ExpiresAt.After(now) {
			hold.Status = HoldExpired
			st.held -= hold.Quantity
			return status.ErrHoldNotActive
		}
		hold.Status = HoldConfirmed
		st.held -= hold.Quantity
		st.confirmed += hold.Quantity
		return nil
	default:
		return status.ErrHoldNotActive
	}
}

func (l *MemoryLedger) Release(_ context.Context, token string) error {
	l.mu.RLock()
	hold, ok := l.holds[token]
	l.mu.RUnlock()
	if !ok {
		return status.ErrHoldNotFound
	}

	st := l.eventState(hold.EventID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if hold.Status == HoldActive {
		hold.Status = HoldReleased
		st.held -= hold.Quantity
	}
	return nil
}

func (l *MemoryLedger) AvailableCount(_ context.Context, eventID string) (int, error) {
	st := l.eventState(eventID)
	st.mu.Lock()
	defer st.mu.Unlock()
	l.purgeLocked(eventID, st, l.now())
	return st.capacity - st.confirmed - st.held, nil
}

func (l *MemoryLedger) Sweep(_ context.Context) ([]Hold, error) {
	l.mu.RLock()
	eventIDs := make([]string, 0, len(l.events))
	for id := range l.events {
		eventIDs = append(eventIDs, id)
	}
	l.mu.RUnlock()

	var expired []Hold
	now := l.now()
	for _, eventID := range eventIDs {
		st := l.eventState(eventID)
		st.mu.Lock()
		expired = append(expired, l.purgeLocked(eventID, st, now)...)
		st.mu.Unlock()
	}
	return expired, nil
}

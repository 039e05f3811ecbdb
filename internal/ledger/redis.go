package ledger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/YossiGold99/PartyFlow-V2/internal/status"
	"github.com/YossiGold99/PartyFlow-V2/utils"
)

// Key layout:
//
//	ledger:capacity:{event}   string  total capacity
//	ledger:confirmed:{event}  string  sum of confirmed hold quantities
//	ledger:held:{event}       string  sum of active hold quantities
//	ledger:active:{event}     zset    hold token -> expiry unix
//	ledger:hold:{token}       hash    event, quantity, status, created_at, expires_at
//	ledger:events             set     event ids with ledger state
const (
	capacityKeyPrefix  = "ledger:capacity:"
	confirmedKeyPrefix = "ledger:confirmed:"
	heldKeyPrefix      = "ledger:held:"
	activeKeyPrefix    = "ledger:active:"
	holdKeyPrefix      = "ledger:hold:"
	eventsKey          = "ledger:events"
)

// purgeExpired runs first inside every script, so expiry is applied lazily
// before any availability math. Scripts execute atomically server-side,
// which is what makes the check-and-decrement race-free.
const purgeExpiredSnippet = `
local function purge_expired(activeKey, heldKey, now)
	local lapsed = redis.call('ZRANGEBYSCORE', activeKey, '-inf', now)
	for _, token in ipairs(lapsed) do
		local holdKey = 'ledger:hold:' .. token
		local qty = tonumber(redis.call('HGET', holdKey, 'quantity') or '0')
		redis.call('HSET', holdKey, 'status', 'expired')
		redis.call('DECRBY', heldKey, qty)
		redis.call('ZREM', activeKey, token)
	end
	return lapsed
end
`

// KEYS: capacity, confirmed, held, active, events
// ARGV: quantity, token, now, expires_at, event_id, created_at
// Reply: {1, remaining} on success, {0, available} when sold out.
var tryHoldScript = purgeExpiredSnippet + `
purge_expired(KEYS[4], KEYS[3], ARGV[3])

local capacity = tonumber(redis.call('GET', KEYS[1]) or '0')
local confirmed = tonumber(redis.call('GET', KEYS[2]) or '0')
local held = tonumber(redis.call('GET', KEYS[3]) or '0')
local qty = tonumber(ARGV[1])

local available = capacity - confirmed - held
if qty > available then
	return {0, available}
end

redis.call('INCRBY', KEYS[3], qty)
redis.call('ZADD', KEYS[4], ARGV[4], ARGV[2])
redis.call('SADD', KEYS[5], ARGV[5])
redis.call('HSET', 'ledger:hold:' .. ARGV[2],
	'event', ARGV[5],
	'quantity', ARGV[1],
	'status', 'active',
	'created_at', ARGV[6],
	'expires_at', ARGV[4])
return {1, available - qty}
`

// KEYS: hold
// ARGV: now
// Reply: 1 ok (confirmed now or already confirmed), -1 not found,
// -2 not active (released or expired, including lapsed-just-now).
var confirmScript = `
local holdKey = KEYS[1]
local hold = redis.call('HGETALL', holdKey)
if #hold == 0 then
	return -1
end
local f = {}
for i = 1, #hold, 2 do f[hold[i]] = hold[i + 1] end

if f.status == 'confirmed' then
	return 1
end
if f.status ~= 'active' then
	return -2
end

local event = f.event
local qty = tonumber(f.quantity)
local activeKey = 'ledger:active:' .. event
local heldKey = 'ledger:held:' .. event

if tonumber(f.expires_at) <= tonumber(ARGV[1]) then
	redis.call('HSET', holdKey, 'status', 'expired')
	redis.call('DECRBY', heldKey, qty)
	redis.call('ZREM', activeKey, holdKey:sub(#'ledger:hold:' + 1))
	return -2
end

redis.call('HSET', holdKey, 'status', 'confirmed')
redis.call('DECRBY', heldKey, qty)
redis.call('INCRBY', 'ledger:confirmed:' .. event, qty)
redis.call('ZREM', activeKey, holdKey:sub(#'ledger:hold:' + 1))
return 1
`

// KEYS: hold
// ARGV: now
// Reply: 1 ok (released now, or no-op for released/expired/confirmed),
// -1 not found. Releasing a confirmed hold never returns its capacity;
// the losing side of a confirm-vs-expiry race simply no-ops here.
var releaseScript = `
local holdKey = KEYS[1]
local hold = redis.call('HGETALL', holdKey)
if #hold == 0 then
	return -1
end
local f = {}
for i = 1, #hold, 2 do f[hold[i]] = hold[i + 1] end

if f.status ~= 'active' then
	return 1
end

local event = f.event
local qty = tonumber(f.quantity)
redis.call('HSET', holdKey, 'status', 'released')
redis.call('DECRBY', 'ledger:held:' .. event, qty)
redis.call('ZREM', 'ledger:active:' .. event, holdKey:sub(#'ledger:hold:' + 1))
return 1
`

// KEYS: capacity, confirmed, held, active
// ARGV: now
// Reply: available count after lazy expiry.
var availableScript = purgeExpiredSnippet + `
purge_expired(KEYS[4], KEYS[3], ARGV[1])
local capacity = tonumber(redis.call('GET', KEYS[1]) or '0')
local confirmed = tonumber(redis.call('GET', KEYS[2]) or '0')
local held = tonumber(redis.call('GET', KEYS[3]) or '0')
return capacity - confirmed - held
`

// KEYS: held, active
// ARGV: now
// Reply: list of hold tokens expired by this call.
var sweepScript = purgeExpiredSnippet + `
return purge_expired(KEYS[2], KEYS[1], ARGV[1])
`

// RedisLedger keeps all hold state in Redis and performs every mutation as
// a single EVAL, so concurrent purchases across processes can never both
// pass the same availability check.
type RedisLedger struct {
	Redis   *redis.Client
	holdTTL time.Duration
	now     func() time.Time
}

func NewRedisLedger(redisClient *redis.Client, holdTTL time.Duration) *RedisLedger {
	return &RedisLedger{
		Redis:   redisClient,
		holdTTL: holdTTL,
		now:     time.Now,
	}
}

func (l *RedisLedger) SetCapacity(ctx context.Context, eventID string, capacity int) error {
	if err := l.Redis.Set(ctx, capacityKeyPrefix+eventID, capacity, 0).Err(); err != nil {
		return fmt.Errorf("ledger: set capacity: %w", err)
	}
	return l.Redis.SAdd(ctx, eventsKey, eventID).Err()
}

func (l *RedisLedger) TryHold(ctx context.Context, eventID string, quantity int) (*Hold, error) {
	if quantity <= 0 {
		return nil, status.ErrInvalidQuantity
	}

	token, err := utils.GenerateCode(16)
	if err != nil {
		return nil, fmt.Errorf("ledger: generate hold token: %w", err)
	}

	now := l.now()
	expiresAt := now.Add(l.holdTTL)

	keys := []string{
		capacityKeyPrefix + eventID,
		confirmedKeyPrefix + eventID,
		heldKeyPrefix + eventID,
		activeKeyPrefix + eventID,
		eventsKey,
	}
	reply, err := l.Redis.Eval(ctx, tryHoldScript, keys,
		quantity, token, now.Unix(), expiresAt.Unix(), eventID, now.Unix(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("ledger: try hold: %w", err)
	}

	result, ok := reply.([]interface{})
	if !ok || len(result) != 2 {
		return nil, fmt.Errorf("ledger: unexpected try hold reply: %v", reply)
	}
	if granted, _ := result[0].(int64); granted != 1 {
		return nil, status.ErrSoldOut
	}

	return &Hold{
		Token:     token,
		EventID:   eventID,
		Quantity:  quantity,
		Status:    HoldActive,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}, nil
}

func (l *RedisLedger) Confirm(ctx context.Context, token string) error {
	reply, err := l.Redis.Eval(ctx, confirmScript,
		[]string{holdKeyPrefix + token}, l.now().Unix(),
	).Int64()
	if err != nil {
		return fmt.Errorf("ledger: confirm hold: %w", err)
	}
	switch reply {
	case 1:
		return nil
	case -1:
		return status.ErrHoldNotFound
	default:
		return status.ErrHoldNotActive
	}
}

func (l *RedisLedger) Release(ctx context.Context, token string) error {
	reply, err := l.Redis.Eval(ctx, releaseScript,
		[]string{holdKeyPrefix + token}, l.now().Unix(),
	).Int64()
	if err != nil {
		return fmt.Errorf("ledger: release hold: %w", err)
	}
	if reply == -1 {
		return status.ErrHoldNotFound
	}
	return nil
}

func (l *RedisLedger) AvailableCount(ctx context.Context, eventID string) (int, error) {
	keys := []string{
		capacityKeyPrefix + eventID,
		confirmedKeyPrefix + eventID,
		heldKeyPrefix + eventID,
		activeKeyPrefix + eventID,
	}
	available, err := l.Redis.Eval(ctx, availableScript, keys, l.now().Unix()).Int64()
	if err != nil {
		return 0, fmt.Errorf("ledger: available count: %w", err)
	}
	return int(available), nil
}

func (l *RedisLedger) Sweep(ctx context.Context) ([]Hold, error) {
	eventIDs, err := l.Redis.SMembers(ctx, eventsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("ledger: sweep events: %w", err)
	}

	var expired []Hold
	for _, eventID := range eventIDs {
		keys := []string{heldKeyPrefix + eventID, activeKeyPrefix + eventID}
		tokens, err := l.Redis.Eval(ctx, sweepScript, keys, l.now().Unix()).StringSlice()
		if err != nil {
			return expired, fmt.Errorf("ledger: sweep event %s: %w", eventID, err)
		}
		for _, token := range tokens {
			hold, err := l.getHold(ctx, token)
			if err != nil {
				continue
			}
			expired = append(expired, *hold)
		}
	}
	return expired, nil
}

func (l *RedisLedger) getHold(ctx context.Context, token string) (*Hold, error) {
	fields, err := l.Redis.HGetAll(ctx, holdKeyPrefix+token).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, status.ErrHoldNotFound
	}

	quantity, _ := strconv.Atoi(fields["quantity"])
	createdAt, _ := strconv.ParseInt(fields["created_at"], 10, 64)
	expiresAt, _ := strconv.ParseInt(fields["expires_at"], 10, 64)

	return &Hold{
		Token:     token,
		EventID:   fields["event"],
		Quantity:  quantity,
		Status:    HoldStatus(fields["status"]),
		CreatedAt: time.Unix(createdAt, 0),
		ExpiresAt: time.Unix(expiresAt, 0),
	}, nil
}

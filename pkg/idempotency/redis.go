package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ghuser/fulfillment/pkg/cache"
)

// RedisLedger implements Ledger with per-entry TTL. Used by notification
// consumers: resending a stale notification is low-risk, unbounded storage
// is not, so entries expire (90 days by default at the call site).
type RedisLedger struct {
	client *cache.RedisClient
	ttl    time.Duration
}

// NewRedisLedger returns a RedisLedger whose entries expire after ttl.
func NewRedisLedger(client *cache.RedisClient, ttl time.Duration) *RedisLedger {
	return &RedisLedger{client: client, ttl: ttl}
}

type redisClaim struct {
	Status  string          `json:"status"`
	Outcome json.RawMessage `json:"outcome,omitempty"`
}

// releaseScript deletes the claim only if it is still in_progress, so a
// concurrent MarkProcessed is never clobbered.
var releaseScript = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if not v then return 0 end
if string.find(v, '"in_progress"') then
	return redis.call("DEL", KEYS[1])
end
return 0`)

func claimKey(consumer string, eventID uuid.UUID) string {
	return fmt.Sprintf("idem:%s:%s", consumer, eventID)
}

// TryClaim claims via SET NX; exactly one concurrent caller wins.
func (l *RedisLedger) TryClaim(ctx context.Context, consumer string, eventID uuid.UUID) (Claim, error) {
	key := claimKey(consumer, eventID)

	val, _ := json.Marshal(redisClaim{Status: "in_progress"})
	ok, err := l.client.Client().SetNX(ctx, key, val, l.ttl).Result()
	if err != nil {
		return Claim{}, fmt.Errorf("idempotency: redis setnx: %w", err)
	}
	if ok {
		return Claim{State: Granted}, nil
	}

	raw, err := l.client.Client().Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		// Expired or released between SETNX and GET.
		return Claim{State: InProgress}, nil
	}
	if err != nil {
		return Claim{}, fmt.Errorf("idempotency: redis get: %w", err)
	}

	var c redisClaim
	if err := json.Unmarshal(raw, &c); err != nil {
		return Claim{}, fmt.Errorf("idempotency: decode claim: %w", err)
	}
	if c.Status == "processed" {
		return Claim{State: Processed, Outcome: c.Outcome}, nil
	}
	return Claim{State: InProgress}, nil
}

// MarkProcessed overwrites the claim with the outcome, restarting the TTL.
func (l *RedisLedger) MarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID, outcome json.RawMessage) error {
	val, err := json.Marshal(redisClaim{Status: "processed", Outcome: outcome})
	if err != nil {
		return fmt.Errorf("idempotency: encode claim: %w", err)
	}
	if err := l.client.Client().Set(ctx, claimKey(consumer, eventID), val, l.ttl).Err(); err != nil {
		return fmt.Errorf("idempotency: redis set: %w", err)
	}
	return nil
}

// Release deletes the claim if it is still in_progress.
func (l *RedisLedger) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	if err := releaseScript.Run(ctx, l.client.Client(), []string{claimKey(consumer, eventID)}).Err(); err != nil {
		return fmt.Errorf("idempotency: redis release: %w", err)
	}
	return nil
}

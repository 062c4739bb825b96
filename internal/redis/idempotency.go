package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrInFlight means another request holding the same key has not finished.
	ErrInFlight = errors.New("request with this idempotency key is still in progress")
	// ErrKeyReused means the key was first used for a different request body.
	ErrKeyReused = errors.New("idempotency key reused with a different request")
)

const (
	pendingPrefix = "pending:"
	donePrefix    = "done:"

	defaultInFlightTTL = 30 * time.Second
)

// StoredResponse is what gets replayed to a retried request.
type StoredResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
	Fingerprint string `json:"fingerprint"`
}

// Claim is held by the request that won a key.
type Claim struct {
	Key   string
	token string
}

// IdempotencyStore remembers responses for retried POSTs. It only replays
// answers; it plays no part in deciding who gets a slot.
type IdempotencyStore struct {
	client      *redis.Client
	prefix      string
	ttl         time.Duration
	inFlightTTL time.Duration
}

func NewIdempotencyStore(client *redis.Client, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{
		client:      client,
		prefix:      "idem:",
		ttl:         ttl,
		inFlightTTL: defaultInFlightTTL,
	}
}

// Begin either claims key for the caller or returns the response stored by
// an earlier request with the same key and fingerprint.
func (s *IdempotencyStore) Begin(ctx context.Context, key, fingerprint string) (*Claim, *StoredResponse, error) {
	full := s.prefix + key
	token := uuid.NewString()

	ok, err := s.client.SetNX(ctx, full, pendingPrefix+token+":"+fingerprint, s.inFlightTTL).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("claim idempotency key: %w", err)
	}
	if ok {
		return &Claim{Key: full, token: token}, nil, nil
	}

	val, err := s.client.Get(ctx, full).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Expired between SETNX and GET; let the caller retry.
			return nil, nil, ErrInFlight
		}
		return nil, nil, fmt.Errorf("read idempotency key: %w", err)
	}

	if strings.HasPrefix(val, pendingPrefix) {
		return nil, nil, ErrInFlight
	}

	var resp StoredResponse
	if err := json.Unmarshal([]byte(strings.TrimPrefix(val, donePrefix)), &resp); err != nil {
		return nil, nil, fmt.Errorf("decode stored response: %w", err)
	}
	if resp.Fingerprint != fingerprint {
		return nil, nil, ErrKeyReused
	}
	return nil, &resp, nil
}

var completeScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val and string.sub(val, 1, string.len(ARGV[1])) == ARGV[1] then
  redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
  return 1
end
return 0
`)

// Complete stores resp for replay. A claim that already expired is dropped silently.
func (s *IdempotencyStore) Complete(ctx context.Context, c *Claim, resp StoredResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}

	_, err = completeScript.Run(ctx, s.client, []string{c.Key},
		pendingPrefix+c.token+":",
		donePrefix+string(data),
		s.ttl.Milliseconds(),
	).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("store idempotent response: %w", err)
	}
	return nil
}

var releaseScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val and string.sub(val, 1, string.len(ARGV[1])) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Release frees the key without storing anything so the client can retry.
func (s *IdempotencyStore) Release(ctx context.Context, c *Claim) error {
	_, err := releaseScript.Run(ctx, s.client, []string{c.Key}, pendingPrefix+c.token+":").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

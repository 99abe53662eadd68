package quota

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "quickhelp:"
	usageTTL         = 48 * time.Hour

	// Reservations left by a process that died between Reserve and
	// Commit/Rollback are dropped once the user has had no new reservation
	// for this long.
	defaultStaleReservation = 15 * time.Minute
)

// RedisStore keeps usage hashes and the premium set in Redis. Usage hashes
// are mutated only through Lua scripts, so reserve/commit/rollback stay
// atomic across bot instances.
type RedisStore struct {
	client     goredis.UniversalClient
	keyPrefix  string
	staleAfter time.Duration
	now        func() time.Time
}

var _ Store = (*RedisStore)(nil)

// RedisOption configures RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix sets the key prefix (default "quickhelp:").
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.keyPrefix = prefix }
}

// WithStaleReservationAfter sets how long outstanding reservations survive
// without a new one before Reserve discards them (default 15m).
func WithStaleReservationAfter(d time.Duration) RedisOption {
	return func(s *RedisStore) { s.staleAfter = d }
}

func NewRedisStore(client goredis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client:     client,
		keyPrefix:  defaultKeyPrefix,
		staleAfter: defaultStaleReservation,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ConnectRedis opens a client and verifies it with PING.
func ConnectRedis(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", addr, err)
	}
	return client, nil
}

func (s *RedisStore) usageKey(userID int64) string {
	return s.keyPrefix + "usage:" + strconv.FormatInt(userID, 10)
}

func (s *RedisStore) premiumKey() string {
	return s.keyPrefix + "premium"
}

// KEYS[1] = usage hash
// ARGV[1] = day, ARGV[2] = limit, ARGV[3] = ttl seconds,
// ARGV[4] = now (unix seconds), ARGV[5] = stale after seconds
// Returns 1 when a slot was reserved, 0 when the limit is reached.
var reserveScript = goredis.NewScript(`
local key = KEYS[1]
local day = ARGV[1]
local limit = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])
local now = tonumber(ARGV[4])
local stale = tonumber(ARGV[5])

if redis.call("HGET", key, "date") ~= day then
    redis.call("HSET", key, "date", day, "count", "0", "reserved", "0")
end

local count = tonumber(redis.call("HGET", key, "count") or "0")
local reserved = tonumber(redis.call("HGET", key, "reserved") or "0")
redis.call("EXPIRE", key, ttl)

if reserved > 0 then
    local reservedAt = tonumber(redis.call("HGET", key, "reserved_at") or "0")
    if now - reservedAt > stale then
        redis.call("HSET", key, "reserved", "0")
        reserved = 0
    end
end

if count + reserved >= limit then
    return 0
end

redis.call("HINCRBY", key, "reserved", 1)
redis.call("HSET", key, "reserved_at", ARGV[4])
return 1
`)

// KEYS[1] = usage hash, ARGV[1] = day
var commitScript = goredis.NewScript(`
local key = KEYS[1]
if redis.call("HGET", key, "date") ~= ARGV[1] then
    return 0
end
if tonumber(redis.call("HGET", key, "reserved") or "0") <= 0 then
    return 0
end
redis.call("HINCRBY", key, "reserved", -1)
redis.call("HINCRBY", key, "count", 1)
return 1
`)

// KEYS[1] = usage hash, ARGV[1] = day
var rollbackScript = goredis.NewScript(`
local key = KEYS[1]
if redis.call("HGET", key, "date") ~= ARGV[1] then
    return 0
end
if tonumber(redis.call("HGET", key, "reserved") or "0") <= 0 then
    return 0
end
redis.call("HINCRBY", key, "reserved", -1)
return 1
`)

func (s *RedisStore) Reserve(ctx context.Context, userID int64, day Day, limit int) (bool, error) {
	res, err := reserveScript.Run(ctx, s.client,
		[]string{s.usageKey(userID)},
		string(day), limit, int64(usageTTL/time.Second),
		s.now().Unix(), int64(s.staleAfter/time.Second),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("quota/redis: reserve: %w", err)
	}
	return res == 1, nil
}

func (s *RedisStore) Commit(ctx context.Context, userID int64, day Day) error {
	if err := commitScript.Run(ctx, s.client, []string{s.usageKey(userID)}, string(day)).Err(); err != nil {
		return fmt.Errorf("quota/redis: commit: %w", err)
	}
	return nil
}

func (s *RedisStore) Rollback(ctx context.Context, userID int64, day Day) error {
	if err := rollbackScript.Run(ctx, s.client, []string{s.usageKey(userID)}, string(day)).Err(); err != nil {
		return fmt.Errorf("quota/redis: rollback: %w", err)
	}
	return nil
}

func (s *RedisStore) Usage(ctx context.Context, userID int64, day Day) (UsageRecord, error) {
	vals, err := s.client.HMGet(ctx, s.usageKey(userID), "date", "count", "reserved").Result()
	if err != nil {
		return UsageRecord{}, fmt.Errorf("quota/redis: usage: %w", err)
	}

	rec := UsageRecord{Date: day}
	stored, _ := vals[0].(string)
	if Day(stored) != day {
		return rec, nil
	}

	rec.Count = atoi(vals[1])
	rec.Reserved = atoi(vals[2])
	return rec, nil
}

func (s *RedisStore) AddPremium(ctx context.Context, userID int64) error {
	if err := s.client.SAdd(ctx, s.premiumKey(), userID).Err(); err != nil {
		return fmt.Errorf("quota/redis: add premium: %w", err)
	}
	return nil
}

func (s *RedisStore) IsPremium(ctx context.Context, userID int64) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.premiumKey(), userID).Result()
	if err != nil {
		return false, fmt.Errorf("quota/redis: is premium: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func atoi(v interface{}) int {
	str, ok := v.(string)
	if !ok {
		return 0
	}
	n, _ := strconv.Atoi(str)
	return n
}

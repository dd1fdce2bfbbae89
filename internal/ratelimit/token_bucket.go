package ratelimit

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// bucketScript refills at ARGV[1] tokens per second up to ARGV[2] and takes
// one token when available. Time comes from the redis server so every
// instance shares one clock. Tokens are returned as a string to keep the
// fraction redis would otherwise truncate.
const bucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local t = redis.call("TIME")
local now = (t[1] * 1000) + math.floor(t[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil then
  tokens = burst
else
  local elapsed = math.max(0, now - ts)
  tokens = math.min(burst, tokens + (elapsed / 1000) * rate)
end

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", now)
redis.call("PEXPIRE", KEYS[1], ttl)
return {allowed, tostring(tokens), now}
`

// Rule is a per-client allowance: Rate tokens per second, at most Burst banked.
type Rule struct {
	Rate  float64
	Burst int
}

func (r Rule) valid() bool {
	return r.Rate > 0 && r.Burst > 0
}

// bucketTTL keeps an idle bucket around for twice its full refill time.
func (r Rule) bucketTTL() time.Duration {
	if !r.valid() {
		return time.Second
	}
	seconds := math.Ceil(float64(r.Burst) / r.Rate * 2)
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}

// Decision is the outcome of one bucket check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

type TokenBucket struct {
	client *redis.Client
	script *redis.Script
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{client: client, script: redis.NewScript(bucketScript)}
}

func (b *TokenBucket) Take(ctx context.Context, key string, rule Rule) (*Decision, error) {
	if b == nil || b.client == nil {
		return nil, errors.New("token bucket not configured")
	}
	if key == "" {
		return nil, errors.New("token bucket key is empty")
	}
	if !rule.valid() {
		return nil, errors.New("token bucket rule must have positive rate and burst")
	}

	reply, err := b.script.Run(ctx, b.client, []string{key},
		rule.Rate,
		rule.Burst,
		rule.bucketTTL().Milliseconds(),
	).Slice()
	if err != nil {
		return nil, err
	}
	if len(reply) != 3 {
		return nil, errors.New("unexpected token bucket reply")
	}

	d := &Decision{
		Allowed: luaInt(reply[0]) == 1,
		Limit:   rule.Burst,
	}
	tokens := luaFloat(reply[1])
	d.Remaining = int(tokens)
	if !d.Allowed {
		d.RetryAfter = time.Duration((1 - tokens) / rule.Rate * float64(time.Second))
	}
	d.ResetAt = time.UnixMilli(luaInt(reply[2])).Add(d.RetryAfter)
	return d, nil
}

func luaInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case string:
		parsed, _ := strconv.ParseInt(n, 10, 64)
		return parsed
	}
	return 0
}

func luaFloat(v any) float64 {
	switch n := v.(type) {
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0
		}
		return parsed
	case int64:
		return float64(n)
	}
	return 0
}

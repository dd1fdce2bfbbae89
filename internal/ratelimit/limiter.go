package ratelimit

import (
	"context"
	"errors"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/banca/internal/config"
	"go.uber.org/zap"
)

// Endpoints with their own bucket per client IP.
const (
	EndpointOrderCreate = "order_create"
	EndpointLogin       = "admin_login"
)

var ErrRateLimited = errors.New("rate_limited")

// RequestLimiter throttles the public write endpoints per client IP.
// A nil or disabled limiter allows everything.
type RequestLimiter struct {
	bucket *TokenBucket
	log    *zap.Logger
	prefix string
	rules  map[string]Rule
}

func NewRequestLimiter(client *redis.Client, cfg config.Config, log *zap.Logger) *RequestLimiter {
	if client == nil {
		return nil
	}
	prefix := strings.Trim(strings.TrimSpace(cfg.Redis.KeyPrefix), ":")
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RequestLimiter{
		bucket: NewTokenBucket(client),
		log:    log.Named("ratelimit.request"),
		prefix: prefix,
		rules: map[string]Rule{
			EndpointOrderCreate: {Rate: cfg.RateLimit.OrderCreateRate, Burst: cfg.RateLimit.OrderCreateBurst},
			EndpointLogin:       {Rate: cfg.RateLimit.LoginRate, Burst: cfg.RateLimit.LoginBurst},
		},
	}
}

func (l *RequestLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// BucketKey is "<prefix>:rl:<endpoint>:<ip>".
func (l *RequestLimiter) BucketKey(endpoint, clientIP string) string {
	prefix := defaultKeyPrefix
	if l != nil {
		prefix = l.prefix
	}
	return prefix + ":rl:" + endpoint + ":" + strings.TrimSpace(clientIP)
}

// Allow fails open: a redis outage must not stop the stand from taking orders.
// Endpoints without a usable rule are not limited.
func (l *RequestLimiter) Allow(ctx context.Context, endpoint, clientIP string) (*Decision, error) {
	if !l.Enabled() {
		return &Decision{Allowed: true}, nil
	}
	rule, ok := l.rules[endpoint]
	if !ok || !rule.valid() {
		return &Decision{Allowed: true}, nil
	}

	key := l.BucketKey(endpoint, clientIP)
	d, err := l.bucket.Take(ctx, key, rule)
	if err != nil {
		l.log.Warn("rate limiter unavailable, allowing request", zap.String("key", key), zap.Error(err))
		return &Decision{Allowed: true}, nil
	}
	if !d.Allowed {
		return d, ErrRateLimited
	}
	return d, nil
}

package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/banca/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDisabledLimiterAllows(t *testing.T) {
	var l *RequestLimiter
	res, err := l.Allow(context.Background(), EndpointOrderCreate, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	assert.Nil(t, NewRequestLimiter(nil, config.Config{}, zap.NewNop()))
}

func TestKeyedLockWithoutRedisIsNoop(t *testing.T) {
	lock := NewKeyedLock(nil, config.Config{}, zap.NewNop())
	release, err := lock.Acquire(context.Background(), PaymentCreateKey(1))
	require.NoError(t, err)
	release()
	release2, err := lock.Acquire(context.Background(), PaymentCreateKey(1))
	require.NoError(t, err)
	release2()
}

func TestLockNamingAndTTL(t *testing.T) {
	lock := NewKeyedLock(nil, config.Config{}, zap.NewNop())
	assert.Equal(t, "banca:lock:payment:create:42", lock.RedisKey(PaymentCreateKey(42)))
	assert.Equal(t, "banca:lock:sales:reset", lock.RedisKey(SalesResetKey))
	assert.Equal(t, DefaultLockTTL, lock.TTL())

	custom := NewKeyedLock(nil, config.Config{Redis: config.RedisConfig{KeyPrefix: "feira:", LockTTL: 5 * time.Second}}, zap.NewNop())
	assert.Equal(t, "feira:lock:sales:reset", custom.RedisKey(SalesResetKey))
	assert.Equal(t, 5*time.Second, custom.TTL())
}

func TestBucketKey(t *testing.T) {
	var l *RequestLimiter
	assert.Equal(t, "banca:rl:order_create:10.0.0.1", l.BucketKey(EndpointOrderCreate, " 10.0.0.1 "))
}

func TestRuleBucketTTL(t *testing.T) {
	assert.Equal(t, 10*time.Second, Rule{Rate: 1, Burst: 5}.bucketTTL())
	assert.Equal(t, time.Second, Rule{Rate: 100, Burst: 1}.bucketTTL())
	assert.Equal(t, time.Second, Rule{Rate: 0, Burst: 1}.bucketTTL())
}

func TestLuaReplyHelpers(t *testing.T) {
	assert.Equal(t, int64(3), luaInt(int64(3)))
	assert.Equal(t, int64(7), luaInt("7"))
	assert.Equal(t, 2.5, luaFloat("2.5"))
	assert.Equal(t, float64(0), luaFloat("x"))
}

func redisForTest(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestKeyedLockExcludesSecondHolder(t *testing.T) {
	client := redisForTest(t)
	lock := NewKeyedLock(client, config.Config{Redis: config.RedisConfig{LockTTL: 10 * time.Second}}, zap.NewNop())
	ctx := context.Background()
	name := "test:" + time.Now().Format(time.RFC3339Nano)

	release, err := lock.Acquire(ctx, name)
	require.NoError(t, err)
	ttl, err := client.PTTL(ctx, lock.RedisKey(name)).Result()
	require.NoError(t, err)
	assert.True(t, ttl > 0 && ttl <= 10*time.Second)

	_, err = lock.Acquire(ctx, name)
	assert.ErrorIs(t, err, ErrLockHeld)
	release()

	release, err = lock.Acquire(ctx, name)
	require.NoError(t, err)
	release()
}

func TestRequestLimiterDeniesAfterBurst(t *testing.T) {
	client := redisForTest(t)
	l := NewRequestLimiter(client, config.Config{RateLimit: config.RateLimitConfig{OrderCreateRate: 0.01, OrderCreateBurst: 1}}, zap.NewNop())
	ip := "ip-" + time.Now().Format(time.RFC3339Nano)

	_, err := l.Allow(context.Background(), EndpointOrderCreate, ip)
	require.NoError(t, err)
	res, err := l.Allow(context.Background(), EndpointOrderCreate, ip)
	assert.ErrorIs(t, err, ErrRateLimited)
	require.NotNil(t, res)
	assert.Greater(t, res.RetryAfter, time.Duration(0))

	// Login has no rule configured here, so it is not limited.
	_, err = l.Allow(context.Background(), EndpointLogin, ip)
	assert.NoError(t, err)
}

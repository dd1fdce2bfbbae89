package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/banca/internal/config"
	"go.uber.org/zap"
)

// order_status:{order_id} -> {"id": "...", "status": "...", "paid_at": "..."}
const keyOrderStatus = "order_status:%d"

const defaultStatusTTL = 5 * time.Minute

type OrderStatus struct {
	ID        string     `json:"id"`
	Status    string     `json:"status"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// OrderStatusCache fronts the customer polling endpoint.
type OrderStatusCache interface {
	Get(ctx context.Context, orderID int64) (*OrderStatus, error)
	Set(ctx context.Context, orderID int64, status OrderStatus) error
	Invalidate(ctx context.Context, orderID int64) error
}

func NewOrderStatusCache(client *redis.Client, cfg config.Config, log *zap.Logger) OrderStatusCache {
	if client == nil {
		return noopOrderStatusCache{}
	}
	ttl := cfg.Redis.StatusTTL
	if ttl <= 0 {
		ttl = defaultStatusTTL
	}
	return &redisOrderStatusCache{client: client, ttl: ttl, log: log.Named("cache.order_status")}
}

func OrderStatusKey(orderID int64) string {
	return fmt.Sprintf(keyOrderStatus, orderID)
}

type redisOrderStatusCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

func (c *redisOrderStatusCache) Get(ctx context.Context, orderID int64) (*OrderStatus, error) {
	raw, err := c.client.Get(ctx, OrderStatusKey(orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var status OrderStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		c.log.Warn("dropping undecodable status entry", zap.Int64("order_id", orderID), zap.Error(err))
		_ = c.client.Del(ctx, OrderStatusKey(orderID)).Err()
		return nil, nil
	}
	return &status, nil
}

func (c *redisOrderStatusCache) Set(ctx context.Context, orderID int64, status OrderStatus) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, OrderStatusKey(orderID), payload, c.ttl).Err()
}

func (c *redisOrderStatusCache) Invalidate(ctx context.Context, orderID int64) error {
	return c.client.Del(ctx, OrderStatusKey(orderID)).Err()
}

type noopOrderStatusCache struct{}

func (noopOrderStatusCache) Get(context.Context, int64) (*OrderStatus, error) { return nil, nil }
func (noopOrderStatusCache) Set(context.Context, int64, OrderStatus) error { return nil }
func (noopOrderStatusCache) Invalidate(context.Context, int64) error { return nil }

// NewNoopOrderStatusCache is used by tests and redis-less deployments.
func NewNoopOrderStatusCache() OrderStatusCache {
	return noopOrderStatusCache{}
}

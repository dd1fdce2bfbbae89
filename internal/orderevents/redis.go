package orderevents

import (
	"context"
	"encoding/json"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisChannel carries events between instances.
const RedisChannel = "orders"

// RedisPublisher publishes events on the shared channel. The Relay on each
// instance (including this one) feeds them into its local Hub.
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Broadcast(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, RedisChannel, payload).Err()
}

type Relay struct {
	client *redis.Client
	hub    *Hub
	log    *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRelay(client *redis.Client, hub *Hub, log *zap.Logger) *Relay {
	return &Relay{client: client, hub: hub, log: log.Named("orderevents.relay")}
}

func (r *Relay) Start(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, RedisChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-runCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					r.log.Warn("discarding malformed order event", zap.Error(err))
					continue
				}
				_ = r.hub.Broadcast(runCtx, event)
			}
		}
	}()
	return nil
}

func (r *Relay) Stop(ctx context.Context) error {
	if r.cancel == nil {
		return nil
	}
	r.cancel()
	select {
	case <-r.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

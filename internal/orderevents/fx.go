package orderevents

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/banca/internal/config"
	"github.com/smallbiznis/banca/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("orderevents",
	fx.Provide(NewHub),
	fx.Provide(NewBroadcaster),
)

type BroadcasterParams struct {
	fx.In

	Lc         fx.Lifecycle
	Cfg        config.Config
	Log        *zap.Logger
	Hub        *Hub
	Redis      *redis.Client    `optional:"true"`
	ObsMetrics *metrics.Metrics `optional:"true"`
}

// NewBroadcaster wires the sinks available in this deployment. With redis the
// local hub is fed by the relay so every instance sees every event once.
func NewBroadcaster(p BroadcasterParams) Broadcaster {
	fanout := NewFanout(p.Log, p.ObsMetrics)

	if p.Redis != nil {
		relay := NewRelay(p.Redis, p.Hub, p.Log)
		p.Lc.Append(fx.Hook{OnStart: relay.Start, OnStop: relay.Stop})
		fanout.Add("redis", NewRedisPublisher(p.Redis))
	} else {
		fanout.Add("hub", p.Hub)
	}

	if p.Cfg.Kafka.Enabled() {
		publisher := NewKafkaPublisher(p.Cfg.Kafka.Brokers, p.Cfg.Kafka.Topic, p.Log)
		p.Lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				publisher.Start()
				return nil
			},
			OnStop: publisher.Close,
		})
		fanout.Add("kafka", publisher)
	}

	return fanout
}

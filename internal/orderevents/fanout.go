package orderevents

import (
	"context"
	"errors"
	"fmt"

	"github.com/smallbiznis/banca/internal/observability/metrics"
	"go.uber.org/zap"
)

type sink struct {
	name string
	b    Broadcaster
}

// Fanout delivers to every sink and joins their errors. One failing sink
// never prevents delivery to the others.
type Fanout struct {
	sinks      []sink
	log        *zap.Logger
	obsMetrics *metrics.Metrics
}

func NewFanout(log *zap.Logger, m *metrics.Metrics) *Fanout {
	return &Fanout{log: log.Named("orderevents.fanout"), obsMetrics: m}
}

func (f *Fanout) Add(name string, b Broadcaster) *Fanout {
	f.sinks = append(f.sinks, sink{name: name, b: b})
	return f
}

func (f *Fanout) Broadcast(ctx context.Context, event Event) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.b.Broadcast(ctx, event); err != nil {
			f.obsMetrics.RecordBroadcastFailure(ctx, s.name)
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}

// Package statuslog keeps the append-only trail of order status changes.
package statuslog

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/banca/internal/clock"
	obscontext "github.com/smallbiznis/banca/internal/observability/context"
	"github.com/smallbiznis/banca/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	SourceStaff          = "staff"
	SourceReconciliation = "reconciliation"
)

var ErrInvalidEntry = errors.New("invalid_status_log_entry")

type Entry struct {
	ID         int64     `json:"-" gorm:"primaryKey"`
	OrderID    int64     `json:"-" gorm:"not null;index"`
	FromStatus string    `json:"from" gorm:"type:text;not null"`
	ToStatus   string    `json:"to" gorm:"type:text;not null"`
	Source     string    `json:"source" gorm:"type:text;not null"`
	Actor      string    `json:"actor,omitempty" gorm:"type:text;not null;default:''"`
	CreatedAt  time.Time `json:"at" gorm:"not null"`
}

func (Entry) TableName() string { return "order_status_logs" }

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	ObsMetrics *metrics.Metrics `optional:"true"`
}

type Recorder struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	obsMetrics *metrics.Metrics
}

func New(p Params) *Recorder {
	return &Recorder{
		db:         p.DB,
		log:        p.Log.Named("statuslog.recorder"),
		genID:      p.GenID,
		clock:      p.Clock,
		obsMetrics: p.ObsMetrics,
	}
}

// Record appends one transition. Callers treat failures as non-fatal; the
// error is logged here and returned only for tests and diagnostics.
func (r *Recorder) Record(ctx context.Context, orderID int64, from, to, source string) error {
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	if orderID == 0 || to == "" {
		return ErrInvalidEntry
	}

	actorType, actorID := obscontext.ActorFromContext(ctx)
	actor := actorID
	if actorType != "" && actorID != "" {
		actor = actorType + ":" + actorID
	}

	entry := Entry{
		ID:         r.genID.Generate().Int64(),
		OrderID:    orderID,
		FromStatus: from,
		ToStatus:   to,
		Source:     source,
		Actor:      actor,
		CreatedAt:  r.clock.Now(),
	}
	err := r.db.WithContext(ctx).Exec(
		`INSERT INTO order_status_logs (id, order_id, from_status, to_status, source, actor, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.OrderID,
		entry.FromStatus,
		entry.ToStatus,
		entry.Source,
		entry.Actor,
		entry.CreatedAt,
	).Error
	if err != nil {
		r.log.Warn("failed to write status log",
			zap.Int64("order_id", orderID),
			zap.String("from", from),
			zap.String("to", to),
			zap.Error(err),
		)
		return err
	}

	r.obsMetrics.RecordStatusChange(ctx, to, source)
	return nil
}

// List returns the trail for an order, oldest first.
func (r *Recorder) List(ctx context.Context, orderID int64) ([]Entry, error) {
	var entries []Entry
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, order_id, from_status, to_status, source, actor, created_at
		 FROM order_status_logs WHERE order_id = ? ORDER BY created_at ASC, id ASC`,
		orderID,
	).Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// DeleteAll wipes the trail inside tx; used by the sales reset.
func DeleteAll(ctx context.Context, tx *gorm.DB) error {
	return tx.WithContext(ctx).Exec(`DELETE FROM order_status_logs`).Error
}

var Module = fx.Module("statuslog",
	fx.Provide(New),
)

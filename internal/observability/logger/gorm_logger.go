package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// GormConfig tunes SQL logging. Statements slower than SlowQuery are logged
// at warn; every statement is logged at debug when Level is gormlogger.Info.
type GormConfig struct {
	Level     gormlogger.LogLevel
	SlowQuery time.Duration
}

// GormLogger sends gorm output through zap with the request's correlation
// fields. Bound parameters are never logged; they carry customer names and
// payer emails.
type GormLogger struct {
	base  *zap.Logger
	level gormlogger.LogLevel
	slow  time.Duration
}

func NewGormLogger(base *zap.Logger, cfg GormConfig) *GormLogger {
	if base == nil {
		base = zap.NewNop()
	}
	level := cfg.Level
	if level == 0 {
		level = gormlogger.Warn
	}
	return &GormLogger{
		base:  base.Named("gorm"),
		level: level,
		slow:  cfg.SlowQuery,
	}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Info {
		l.log(ctx).Sugar().Infof(msg, data...)
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.log(ctx).Sugar().Warnf(msg, data...)
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Error {
		l.log(ctx).Sugar().Errorf(msg, data...)
	}
}

// Trace logs failed statements at error and slow ones at warn. Row lock
// reads are flagged so checkout and settlement contention shows up on its own.
// Not-found is not an error here; repositories map it to a nil result.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound)
	slow := l.slow > 0 && elapsed > l.slow

	switch {
	case failed && l.level >= gormlogger.Error:
	case slow && l.level >= gormlogger.Warn:
	case l.level >= gormlogger.Info:
	default:
		return
	}

	sql, rows := fc()
	sql = strings.TrimSpace(sql)
	fields := []zap.Field{
		zap.String("sql", sql),
		zap.String("operation", operationOf(sql)),
		zap.Duration("elapsed", elapsed),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows", rows))
	}
	if strings.Contains(strings.ToUpper(sql), "FOR UPDATE") {
		fields = append(fields, zap.Bool("row_lock", true))
	}

	log := l.log(ctx)
	switch {
	case failed:
		log.Error("query failed", append(fields, zap.Error(err))...)
	case slow:
		log.Warn("slow query", append(fields, zap.Duration("threshold", l.slow))...)
	default:
		log.Debug("query", fields...)
	}
}

// ParamsFilter drops bound values from the SQL gorm hands to Trace.
func (l *GormLogger) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

func (l *GormLogger) log(ctx context.Context) *zap.Logger {
	return WithContext(ctx, l.base)
}

func operationOf(sql string) string {
	for _, token := range strings.Fields(strings.ToUpper(sql)) {
		switch token = strings.Trim(token, "();"); token {
		case "SELECT", "INSERT", "UPDATE", "DELETE":
			return token
		}
	}
	return "OTHER"
}

var _ gormlogger.Interface = (*GormLogger)(nil)

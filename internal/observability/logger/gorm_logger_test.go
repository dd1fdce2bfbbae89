package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func sqlOf(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func TestGormLoggerUsesConfiguredSlowThreshold(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	gl := NewGormLogger(zap.New(core), GormConfig{SlowQuery: 50 * time.Millisecond})
	ctx := context.Background()

	gl.Trace(ctx, time.Now().Add(-10*time.Millisecond), sqlOf("SELECT 1", 1), nil)
	assert.Zero(t, logs.Len())

	gl.Trace(ctx, time.Now().Add(-80*time.Millisecond), sqlOf(`SELECT * FROM "orders" WHERE id = 1 FOR UPDATE`, 1), nil)
	entries := logs.FilterMessage("slow query").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, "SELECT", fields["operation"])
	assert.Equal(t, true, fields["row_lock"])
	assert.Equal(t, 50*time.Millisecond, fields["threshold"])
}

func TestGormLoggerErrorsAndNotFound(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	gl := NewGormLogger(zap.New(core), GormConfig{})
	ctx := context.Background()

	gl.Trace(ctx, time.Now(), sqlOf("SELECT * FROM items", 0), gormlogger.ErrRecordNotFound)
	assert.Zero(t, logs.Len())

	gl.Trace(ctx, time.Now(), sqlOf("UPDATE items SET sold_count = 1", 0), errors.New("boom"))
	entries := logs.FilterMessage("query failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "UPDATE", entries[0].ContextMap()["operation"])

	// Silent drops everything.
	gl.LogMode(gormlogger.Silent).Trace(ctx, time.Now(), sqlOf("DELETE FROM orders", 0), errors.New("boom"))
	assert.Equal(t, 1, logs.Len())
}

func TestGormLoggerInfoLogsEveryStatement(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	gl := NewGormLogger(zap.New(core), GormConfig{Level: gormlogger.Info})

	gl.Trace(context.Background(), time.Now(), sqlOf("WITH x AS (SELECT 1) INSERT INTO items VALUES (1)", 1), nil)
	entries := logs.FilterMessage("query").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "INSERT", entries[0].ContextMap()["operation"])
	assert.Equal(t, int64(1), entries[0].ContextMap()["rows"])
}

func TestParamsFilterDropsValues(t *testing.T) {
	gl := NewGormLogger(nil, GormConfig{})
	sql, params := gl.ParamsFilter(context.Background(), "SELECT ?", "ana@example.com")
	assert.Equal(t, "SELECT ?", sql)
	assert.Nil(t, params)
}

package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

func sqlFn(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func TestGormLogger_LogMode(t *testing.T) {
	log, _ := observed()
	gl := NewGormLogger(log, gormlogger.Info, 0)

	clone, ok := gl.LogMode(gormlogger.Warn).(*GormLogger)
	require.True(t, ok)
	assert.Equal(t, gormlogger.Warn, clone.level)
	assert.Equal(t, gormlogger.Info, gl.level)
}

func TestGormLogger_Messages(t *testing.T) {
	log, logs := observed()
	gl := NewGormLogger(log, gormlogger.Warn, 0)
	ctx := context.Background()

	gl.Info(ctx, "hidden %d", 1)
	gl.Warn(ctx, "warn %s", "x")
	gl.Error(ctx, "error %s", "y")

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "warn x", logs.All()[0].Message)
	assert.Equal(t, "error y", logs.All()[1].Message)
}

func TestGormLogger_Trace(t *testing.T) {
	runID := uuid.New()
	ctx := WithRunID(context.Background(), runID)

	t.Run("error carries run id", func(t *testing.T) {
		log, logs := observed()
		gl := NewGormLogger(log, gormlogger.Error, 0)

		gl.Trace(ctx, time.Now(), sqlFn("INSERT INTO products", 0), errors.New("duplicate"))

		require.Equal(t, 1, logs.Len())
		entry := logs.All()[0]
		assert.Equal(t, zapcore.ErrorLevel, entry.Level)
		assert.Equal(t, runID.String(), entry.ContextMap()["run_id"])
	})

	t.Run("record not found is not an error", func(t *testing.T) {
		log, logs := observed()
		gl := NewGormLogger(log, gormlogger.Error, 0)

		gl.Trace(ctx, time.Now(), sqlFn("SELECT", 0), gormlogger.ErrRecordNotFound)
		assert.Equal(t, 0, logs.Len())
	})

	t.Run("slow statement warns", func(t *testing.T) {
		log, logs := observed()
		gl := NewGormLogger(log, gormlogger.Warn, time.Millisecond)

		gl.Trace(ctx, time.Now().Add(-time.Second), sqlFn("SELECT", 3), nil)

		require.Equal(t, 1, logs.Len())
		assert.Equal(t, zapcore.WarnLevel, logs.All()[0].Level)
	})

	t.Run("silent logs nothing", func(t *testing.T) {
		log, logs := observed()
		gl := NewGormLogger(log, gormlogger.Silent, 0)

		gl.Trace(ctx, time.Now(), sqlFn("SELECT", 1), errors.New("x"))
		assert.Equal(t, 0, logs.Len())
	})

	t.Run("info logs statements at debug", func(t *testing.T) {
		log, logs := observed()
		gl := NewGormLogger(log, gormlogger.Info, 0)

		gl.Trace(ctx, time.Now(), sqlFn("SELECT 1", 1), nil)

		require.Equal(t, 1, logs.Len())
		assert.Equal(t, zapcore.DebugLevel, logs.All()[0].Level)
	})
}

func TestMapGormLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, MapGormLogLevel("silent"))
	assert.Equal(t, gormlogger.Error, MapGormLogLevel("error"))
	assert.Equal(t, gormlogger.Info, MapGormLogLevel("debug"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("warn"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("unknown"))
}

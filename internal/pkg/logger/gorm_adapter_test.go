package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormlogger "gorm.io/gorm/logger"
)

func statement() (string, int64) {
	return "SELECT * FROM knowledge_chunks WHERE id = $1", 1
}

func TestGormAdapter_Trace(t *testing.T) {
	rec := &recordingLogger{}
	a := NewGormAdapter(rec, "GORM", gormlogger.Warn, 100*time.Millisecond)
	ctx := context.Background()

	a.Trace(ctx, time.Now(), statement, nil)
	a.Trace(ctx, time.Now(), statement, gormlogger.ErrRecordNotFound)
	assert.Empty(t, rec.entries)

	a.Trace(ctx, time.Now(), statement, errors.New("relation does not exist"))
	a.Trace(ctx, time.Now().Add(-time.Second), statement, nil)

	require.Len(t, rec.entries, 2)
	assert.Equal(t, "error", rec.entries[0].level)
	assert.Equal(t, "GORM", rec.entries[0].module)
	assert.Equal(t, "relation does not exist", rec.entries[0].details["error"])
	assert.Equal(t, int64(1), rec.entries[0].details["rows"])
	assert.Equal(t, "warn", rec.entries[1].level)
	assert.Equal(t, "Slow query", rec.entries[1].message)
}

func TestGormAdapter_LogModeCopies(t *testing.T) {
	rec := &recordingLogger{}
	base := NewGormAdapter(rec, "GORM", gormlogger.Silent, 0)
	verbose := base.LogMode(gormlogger.Info)

	base.Trace(context.Background(), time.Now(), statement, errors.New("boom"))
	verbose.Trace(context.Background(), time.Now(), statement, nil)
	verbose.Info(context.Background(), "migrated %d tables", 2)

	require.Len(t, rec.entries, 2)
	assert.Equal(t, "debug", rec.entries[0].level)
	assert.Equal(t, "migrated 2 tables", rec.entries[1].message)
}

func TestParseGormLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, ParseGormLevel("silent"))
	assert.Equal(t, gormlogger.Error, ParseGormLevel("ERROR"))
	assert.Equal(t, gormlogger.Info, ParseGormLevel(" info "))
	assert.Equal(t, gormlogger.Warn, ParseGormLevel(""))
	assert.Equal(t, gormlogger.Warn, ParseGormLevel("loud"))
}

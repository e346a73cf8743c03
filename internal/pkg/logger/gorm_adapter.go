package logger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gormlogger "gorm.io/gorm/logger"
)

// GormAdapter routes gorm's statement log into an ILogger. Failed statements
// are errors, statements slower than the threshold are warnings and, at the
// info level, every other statement is a debug line.
type GormAdapter struct {
	logger        ILogger
	module        string
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

var _ gormlogger.Interface = (*GormAdapter)(nil)

func NewGormAdapter(log ILogger, module string, level gormlogger.LogLevel, slowThreshold time.Duration) *GormAdapter {
	return &GormAdapter{logger: log, module: module, level: level, slowThreshold: slowThreshold}
}

// ParseGormLevel maps "silent", "error", "warn" and "info" to gorm levels.
// Anything else is warn.
func ParseGormLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

func (a *GormAdapter) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	c := *a
	c.level = level
	return &c
}

func (a *GormAdapter) Info(ctx context.Context, msg string, args ...interface{}) {
	if a.level >= gormlogger.Info {
		a.logger.Info(a.module, fmt.Sprintf(msg, args...), nil)
	}
}

func (a *GormAdapter) Warn(ctx context.Context, msg string, args ...interface{}) {
	if a.level >= gormlogger.Warn {
		a.logger.Warn(a.module, fmt.Sprintf(msg, args...), nil)
	}
}

func (a *GormAdapter) Error(ctx context.Context, msg string, args ...interface{}) {
	if a.level >= gormlogger.Error {
		a.logger.Error(a.module, fmt.Sprintf(msg, args...), nil)
	}
}

// Trace never logs bound parameters; the statement text keeps placeholders.
func (a *GormAdapter) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if a.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)

	details := func() map[string]interface{} {
		sql, rows := fc()
		return map[string]interface{}{
			"sql":         sql,
			"rows":        rows,
			"duration_ms": elapsed.Milliseconds(),
		}
	}

	switch {
	case err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound) && a.level >= gormlogger.Error:
		d := details()
		d["error"] = err.Error()
		a.logger.Error(a.module, "Query failed", d)
	case a.slowThreshold > 0 && elapsed > a.slowThreshold && a.level >= gormlogger.Warn:
		d := details()
		d["threshold_ms"] = a.slowThreshold.Milliseconds()
		a.logger.Warn(a.module, "Slow query", d)
	case a.level >= gormlogger.Info:
		a.logger.Debug(a.module, "Query", details())
	}
}

// ParamsFilter keeps bound values out of gorm's own formatting of statements.
func (a *GormAdapter) ParamsFilter(ctx context.Context, sql string, params ...interface{}) (string, []interface{}) {
	return sql, nil
}

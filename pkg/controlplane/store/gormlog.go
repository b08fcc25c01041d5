package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/marmos91/dittosmb/internal/logger"
)

// slowQueryThreshold is the duration above which a statement is logged at
// WARN regardless of the log level.
const slowQueryThreshold = 200 * time.Millisecond

// gormLogger routes GORM's messages into the process logger. Statements
// are only rendered when DEBUG is on; slow ones and failures always are.
type gormLogger struct {
	level gormlogger.LogLevel
	store DatabaseType
}

func newGormLogger(store DatabaseType) gormlogger.Interface {
	return &gormLogger{level: gormlogger.Warn, store: store}
}

func (l *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	return &gormLogger{level: level, store: l.store}
}

func (l *gormLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Info {
		logger.InfoCtx(ctx, fmt.Sprintf(msg, args...), logger.KeyStore, string(l.store))
	}
}

func (l *gormLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Warn {
		logger.WarnCtx(ctx, fmt.Sprintf(msg, args...), logger.KeyStore, string(l.store))
	}
}

func (l *gormLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Error {
		logger.ErrorCtx(ctx, fmt.Sprintf(msg, args...), logger.KeyStore, string(l.store))
	}
}

func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	slow := elapsed > slowQueryThreshold
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)
	if !slow && !failed && logger.GetLevel() > logger.LevelDebug {
		return
	}

	sql, rows := fc()
	args := []any{
		logger.KeyStore, string(l.store),
		"sql", sql,
		"rows", rows,
		logger.DurationMs(float64(elapsed.Microseconds()) / 1000.0),
	}

	// Callers turn query failures into domain errors, so they stay at DEBUG.
	switch {
	case failed:
		logger.DebugCtx(ctx, "SQL statement failed", append(args, logger.Err(err))...)
	case slow:
		logger.WarnCtx(ctx, "Slow SQL statement", args...)
	default:
		logger.DebugCtx(ctx, "SQL statement", args...)
	}
}

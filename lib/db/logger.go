package db

import (
	"context"
	"errors"
	"time"

	"log/slog"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormLogger implements gorm.logger.Interface on top of slog.
type GormLogger struct {
	logger        *slog.Logger
	slowThreshold time.Duration
}

func NewGormLogger(logger *slog.Logger) *GormLogger {
	return &GormLogger{logger: logger, slowThreshold: 200 * time.Millisecond}
}

func (l *GormLogger) LogMode(level logger.LogLevel) logger.Interface {
	return l
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.logger.InfoContext(ctx, msg, slog.Any("data", data))
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.logger.WarnContext(ctx, msg, slog.Any("data", data))
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.logger.ErrorContext(ctx, msg, slog.Any("data", data))
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()

	// Not-found is an expected answer for fuzzy and existence lookups.
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		l.logger.ErrorContext(ctx, "GORM error",
			slog.Any("error", err),
			slog.String("sql", sql),
			slog.Int64("rows", rows),
			slog.Duration("elapsed", elapsed))
		return
	}

	if elapsed > l.slowThreshold {
		l.logger.WarnContext(ctx, "GORM slow query",
			slog.String("sql", sql),
			slog.Int64("rows", rows),
			slog.Duration("elapsed", elapsed))
		return
	}

	l.logger.DebugContext(ctx, "GORM query",
		slog.String("sql", sql),
		slog.Int64("rows", rows),
		slog.Duration("elapsed", elapsed))
}

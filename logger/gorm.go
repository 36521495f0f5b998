package logger

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// GormLogger forwards gorm's messages into the global zap logger so that
// queries end up in the same console and file outputs as the crawler.
type GormLogger struct {
	level gormlogger.LogLevel
}

func NewGormLogger(level gormlogger.LogLevel) *GormLogger {
	return &GormLogger{level: level}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	return &GormLogger{level: level}
}

func (l *GormLogger) Info(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Info {
		sugar.Infof(msg, args...)
	}
}

func (l *GormLogger) Warn(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Warn {
		sugar.Warnf(msg, args...)
	}
}

func (l *GormLogger) Error(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Error {
		sugar.Errorf(msg, args...)
	}
}

func (l *GormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	// missing rows are the normal outcome of the existence checks
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		sql, rows := fc()
		sugar.Errorf("%s [%v] rows:%d %s", err, elapsed, rows, sql)
	case elapsed > slowQueryThreshold && l.level >= gormlogger.Warn:
		sql, rows := fc()
		sugar.Warnf("slow query [%v] rows:%d %s", elapsed, rows, sql)
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		sugar.Debugf("[%v] rows:%d %s", elapsed, rows, sql)
	}
}

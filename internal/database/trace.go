package database

import (
	"context"

	"github.com/jackc/pgx/v5/tracelog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type zapTracer struct {
	logger *zap.Logger
}

func newZapTracer(l *zap.Logger) *zapTracer {
	return &zapTracer{logger: l.Named("pgx")}
}

func (t *zapTracer) Log(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
	fields := []zap.Field{
		zap.Any("sql", data["sql"]),
		zap.Any("time", data["time"]),
	}
	if err, ok := data["err"].(error); ok {
		fields = append(fields, zap.Error(err))
	}

	if ce := t.logger.Check(zapLevel(level), msg); ce != nil {
		ce.Write(fields...)
	}
}

func zapLevel(level tracelog.LogLevel) zapcore.Level {
	switch level {
	case tracelog.LogLevelTrace, tracelog.LogLevelDebug:
		return zapcore.DebugLevel
	case tracelog.LogLevelInfo:
		return zapcore.InfoLevel
	case tracelog.LogLevelWarn:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

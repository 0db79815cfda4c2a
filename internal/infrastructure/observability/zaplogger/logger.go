package zaplogger

import (
	"github.com/Zhima-Mochi/minishop-billing/internal/observability"
	"github.com/Zhima-Mochi/minishop-billing/internal/pkg/logging"
	"go.uber.org/zap"
)

type logger struct{ l *zap.Logger }

// New builds the production zap logger and wraps it in the logging port.
func New(cfg logging.Config, fixed ...observability.Field) (observability.Logger, error) {
	l, err := logging.NewLogger(cfg)
	if err != nil {
		return nil, err
	}
	return Wrap(l).With(fixed...), nil
}

// Wrap adapts an existing zap logger.
func Wrap(l *zap.Logger) observability.Logger {
	if l == nil {
		l = zap.L()
	}
	return &logger{l: l}
}

func (z *logger) With(fields ...observability.Field) observability.Logger {
	if len(fields) == 0 {
		return &logger{l: z.l}
	}
	return &logger{l: z.l.With(toZapFields(fields)...)}
}

func (z *logger) Debug(msg string, fields ...observability.Field) {
	z.l.Debug(msg, toZapFields(fields)...)
}
func (z *logger) Info(msg string, fields ...observability.Field) {
	z.l.Info(msg, toZapFields(fields)...)
}
func (z *logger) Warn(msg string, fields ...observability.Field) {
	z.l.Warn(msg, toZapFields(fields)...)
}
func (z *logger) Error(msg string, fields ...observability.Field) {
	z.l.Error(msg, toZapFields(fields)...)
}

// Sync flushes any buffered log entries. Safe to call on shutdown.
func (z *logger) Sync() error {
	return z.l.Sync()
}

// Sync flushes l when it is backed by zap.
func Sync(l observability.Logger) error {
	if z, ok := l.(*logger); ok {
		return z.Sync()
	}
	return nil
}

func toZapFields(fs []observability.Field) []zap.Field {
	out := make([]zap.Field, 0, len(fs))
	for _, f := range fs {
		if err, ok := f.Value.(error); ok {
			out = append(out, zap.NamedError(f.Key, err))
			continue
		}
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}

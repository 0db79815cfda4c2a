package zaplogger

import (
	"errors"
	"testing"

	"github.com/Zhima-Mochi/minishop-billing/internal/observability"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerWritesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := Wrap(zap.New(core)).With(observability.F("component", "binder"))

	l.Warn("bind_service_failed",
		observability.F("code", 3),
		observability.F("error", errors.New("refused")),
	)

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "bind_service_failed", entries[0].Message)
	fields := entries[0].ContextMap()
	require.Equal(t, "binder", fields["component"])
	require.EqualValues(t, 3, fields["code"])
	require.Equal(t, "refused", fields["error"])
}

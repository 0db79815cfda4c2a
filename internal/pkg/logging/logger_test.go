package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "billing.log")

	l, err := NewLogger(Config{Service: "billing", Env: "test", Level: "debug", File: path})
	require.NoError(t, err)
	l.Debug("hello")
	_ = l.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"msg":"hello"`)
	require.Contains(t, string(data), `"service":"billing"`)
	require.Contains(t, string(data), `"level":"debug"`)
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := NewLogger(Config{Service: "billing", Level: "loud"})
	require.Error(t, err)
}

package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects where and how verbosely the process logs.
type Config struct {
	Service string
	Env     string
	// Level is a zap level name; empty means info.
	Level string
	// File, when set, receives a copy of every entry.
	File string
}

// NewLogger creates a production-ready zap logger that emits JSON logs to stdout.
// Each entry carries the configured service and environment identifiers.
func NewLogger(cfg Config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.OutputPaths = []string{"stdout"}
	zcfg.ErrorOutputPaths = []string{"stdout"}

	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}

	if cfg.File != "" {
		if err := ensureLogFile(cfg.File); err != nil {
			return nil, fmt.Errorf("prepare log file: %w", err)
		}
		zcfg.OutputPaths = append(zcfg.OutputPaths, cfg.File)
		zcfg.ErrorOutputPaths = append(zcfg.ErrorOutputPaths, cfg.File)
	}

	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.MessageKey = "msg"
	zcfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	zcfg.EncoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder

	zcfg.InitialFields = map[string]any{
		"service": cfg.Service,
		"env":     cfg.Env,
	}

	return zcfg.Build()
}

func ensureLogFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		f, createErr := os.OpenFile(path, os.O_CREATE, 0o644)
		if createErr != nil {
			return createErr
		}
		_ = f.Close()
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-billing/internal/pkg/logging"
	"github.com/caarlos0/env/v10"
)

// Config is the process configuration, read from the environment.
type Config struct {
	// PackageName identifies the application to the billing service.
	PackageName string `env:"BILLING_PACKAGE_NAME,required"`
	// PublicKey is the base64 DER key receipts are verified against.
	// It may be empty only when running against the sandbox.
	PublicKey  string `env:"BILLING_PUBLIC_KEY"`
	APIVersion int    `env:"BILLING_API_VERSION" envDefault:"3"`
	// ServiceAddr is the gRPC target of the billing service.
	ServiceAddr string        `env:"BILLING_SERVICE_ADDR" envDefault:"localhost:9090"`
	BindTimeout time.Duration `env:"BILLING_BIND_TIMEOUT" envDefault:"5s"`

	ServiceName string `env:"SERVICE_NAME" envDefault:"minishop-billing"`
	Env         string `env:"ENV" envDefault:"dev"`
	LogLevel    string `env:"LOG_LEVEL"`
	LogFile     string `env:"LOG_FILE"`
	MetricsAddr string `env:"METRICS_ADDR"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values env tags cannot express.
func (c Config) Validate() error {
	if c.PackageName == "" {
		return errors.New("config: BILLING_PACKAGE_NAME is empty")
	}
	if c.APIVersion < 3 {
		return fmt.Errorf("config: BILLING_API_VERSION %d is below 3", c.APIVersion)
	}
	if c.BindTimeout <= 0 {
		return fmt.Errorf("config: BILLING_BIND_TIMEOUT must be positive, got %s", c.BindTimeout)
	}
	return nil
}

// Logging returns the logger configuration.
func (c Config) Logging() logging.Config {
	return logging.Config{
		Service: c.ServiceName,
		Env:     c.Env,
		Level:   c.LogLevel,
		File:    c.LogFile,
	}
}

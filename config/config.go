// Package config loads the storefront settings from the environment.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"
)

// Config is the process configuration.
type Config struct {
	APIBaseURL string        `env:"STOREFRONT_API_BASE_URL" envDefault:"http://localhost:8000/api/"`
	GatewayURL string        `env:"STOREFRONT_GATEWAY_URL" envDefault:"https://rc-epay.esewa.com.np/api/epay/main/v2/form"`
	HTTPAddr   string        `env:"STOREFRONT_HTTP_ADDR" envDefault:":8082"`
	Timeout    time.Duration `env:"STOREFRONT_HTTP_TIMEOUT" envDefault:"30s"`

	// CredentialDriver selects the token store: bolt, sqlite, postgres
	// or memory.
	CredentialDriver string `env:"STOREFRONT_CREDENTIAL_DRIVER" envDefault:"bolt"`
	CredentialDSN    string `env:"STOREFRONT_CREDENTIAL_DSN" envDefault:"storefront.db"`

	LogLevel        string        `env:"STOREFRONT_LOG_LEVEL" envDefault:"info"`
	AutoSubmitDelay time.Duration `env:"STOREFRONT_PAYMENT_AUTOSUBMIT_DELAY" envDefault:"1s"`
	RefreshWindow   time.Duration `env:"STOREFRONT_REFRESH_WINDOW" envDefault:"2m"`
}

// Load parses the environment and validates the result.
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

// Validate checks values env tags cannot express.
func (c Config) Validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("STOREFRONT_API_BASE_URL must be an absolute http(s) URL, got %q", c.APIBaseURL)
	}
	switch c.CredentialDriver {
	case "bolt", "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("STOREFRONT_CREDENTIAL_DRIVER %q is not one of bolt, sqlite, postgres, memory", c.CredentialDriver)
	}
	if c.CredentialDriver != "memory" && c.CredentialDSN == "" {
		return fmt.Errorf("STOREFRONT_CREDENTIAL_DSN is required for driver %q", c.CredentialDriver)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("STOREFRONT_LOG_LEVEL: %w", err)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("STOREFRONT_HTTP_TIMEOUT must be positive")
	}
	return nil
}

// Level returns the parsed log level.
func (c Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/gadroo/poll-prediction/internal/live"
	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	WSURL      string `env:"WS_URL" default:"ws://localhost:8000"`
	APIURL     string `env:"API_URL" default:"http://localhost:8000"`
	PollID     string `env:"POLL_ID" default:"all"`
	StatusAddr string `env:"STATUS_ADDR" default:":8090"`
	LogLevel   string `env:"LOG_LEVEL" default:"info"`
	LogFormat  string `env:"LOG_FORMAT" default:"text"`

	ReconnectBaseDelay   time.Duration `env:"RECONNECT_BASE_DELAY" default:"2s"`
	ReconnectMaxDelay    time.Duration `env:"RECONNECT_MAX_DELAY" default:"15s"`
	ReconnectMaxAttempts int           `env:"RECONNECT_MAX_ATTEMPTS" default:"3"`
	ReconnectCooldown    time.Duration `env:"RECONNECT_COOLDOWN" default:"30s"`
	KeepaliveInterval    time.Duration `env:"KEEPALIVE_INTERVAL" default:"30s"`

	APITimeout       time.Duration `env:"API_TIMEOUT" default:"10s"`
	HandshakeTimeout time.Duration `env:"HANDSHAKE_TIMEOUT" default:"10s"` // 0 disables the bound
	ReconnectLimit   float64       `env:"RECONNECT_RATE_LIMIT" default:"1"` // manual reconnects per second per client
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Policy returns the subscription policy described by cfg.
func (c *Config) Policy() live.Policy {
	p := live.DefaultPolicy
	p.BaseDelay = c.ReconnectBaseDelay
	p.MaxDelay = c.ReconnectMaxDelay
	p.MaxAttempts = c.ReconnectMaxAttempts
	p.Cooldown = c.ReconnectCooldown
	p.KeepaliveInterval = c.KeepaliveInterval
	return p
}

func validate(cfg *Config) error {
	if err := validateURL("WS_URL", cfg.WSURL, "ws", "wss"); err != nil {
		return err
	}
	if err := validateURL("API_URL", cfg.APIURL, "http", "https"); err != nil {
		return err
	}
	if cfg.StatusAddr == "" {
		return errors.New("STATUS_ADDR is required")
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"RECONNECT_BASE_DELAY", cfg.ReconnectBaseDelay},
		{"RECONNECT_MAX_DELAY", cfg.ReconnectMaxDelay},
		{"RECONNECT_COOLDOWN", cfg.ReconnectCooldown},
		{"KEEPALIVE_INTERVAL", cfg.KeepaliveInterval},
		{"API_TIMEOUT", cfg.APITimeout},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.value)
		}
	}

	if cfg.HandshakeTimeout < 0 {
		return fmt.Errorf("HANDSHAKE_TIMEOUT must not be negative, got %s", cfg.HandshakeTimeout)
	}
	if cfg.ReconnectBaseDelay > cfg.ReconnectMaxDelay {
		return fmt.Errorf("RECONNECT_BASE_DELAY (%s) must not exceed RECONNECT_MAX_DELAY (%s)", cfg.ReconnectBaseDelay, cfg.ReconnectMaxDelay)
	}
	if cfg.ReconnectMaxAttempts < 1 {
		return fmt.Errorf("RECONNECT_MAX_ATTEMPTS must be at least 1, got %d", cfg.ReconnectMaxAttempts)
	}
	if cfg.ReconnectLimit <= 0 {
		return fmt.Errorf("RECONNECT_RATE_LIMIT must be positive, got %g", cfg.ReconnectLimit)
	}

	return nil
}

func validateURL(name, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", name)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", name, err)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host", name)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("%s must use scheme %v, got %q", name, schemes, u.Scheme)
}

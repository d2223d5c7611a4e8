// Package config loads console configuration from a yaml file and
// environment variables with a predictable priority:
//
//  1. explicit path passed by the caller (--config flag);
//  2. path in the TRACKERCTL_CONFIG environment variable;
//  3. trackerctl.yaml in the working directory;
//  4. environment variables only.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	// AuthModeBearer keeps a token pair in memory and attaches the access
	// token as an Authorization header.
	AuthModeBearer = "bearer"
	// AuthModeCookie relies on an httpOnly session cookie; the client holds
	// only a refresh identifier.
	AuthModeCookie = "cookie"
)

const envConfigPath = "TRACKERCTL_CONFIG"

// Config is the root console configuration.
type Config struct {
	Env      string        `yaml:"env" env:"TRACKERCTL_ENV" env-default:"local"`
	BaseURL  string        `yaml:"base_url" env:"TRACKERCTL_BASE_URL" env-required:"true"`
	AuthMode string        `yaml:"auth_mode" env:"TRACKERCTL_AUTH_MODE" env-default:"bearer"`
	Timeout  time.Duration `yaml:"timeout" env:"TRACKERCTL_TIMEOUT" env-default:"15s"`

	RefreshLeeway time.Duration `yaml:"refresh_leeway" env:"TRACKERCTL_REFRESH_LEEWAY" env-default:"30s"`

	Rate    RateConfig    `yaml:"rate"`
	Storage StorageConfig `yaml:"storage"`
}

// RateConfig bounds the rate of outgoing API calls.
type RateConfig struct {
	PerSecond float64 `yaml:"per_second" env:"TRACKERCTL_RATE_PER_SECOND" env-default:"0"`
	Burst     int     `yaml:"burst" env:"TRACKERCTL_RATE_BURST" env-default:"1"`
}

// StorageConfig locates the durable state file. An empty path selects the
// default location under the user config directory.
type StorageConfig struct {
	Path string `yaml:"path" env:"TRACKERCTL_STATE_PATH" env-default:""`
}

// MustLoad is Load with panic on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration following the documented priority.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(envConfigPath)
	}
	if path == "" {
		if _, err := os.Stat("trackerctl.yaml"); err == nil {
			path = "trackerctl.yaml"
		}
	}

	var cfg Config
	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("config: load: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.AuthMode = strings.ToLower(strings.TrimSpace(c.AuthMode))
	switch c.AuthMode {
	case AuthModeBearer, AuthModeCookie:
	default:
		return fmt.Errorf("config: unknown auth_mode %q", c.AuthMode)
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("config: base_url must be an absolute http(s) URL, got %q", c.BaseURL)
	}
	if c.Rate.PerSecond < 0 {
		return fmt.Errorf("config: rate.per_second must not be negative")
	}
	return nil
}

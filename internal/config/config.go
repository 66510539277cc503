// Package config loads and validates the bridge configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPath      = "/etc/haierbridge/config.yaml"
	DefaultConfigDir = "/var/lib/haierbridge"
	DefaultHTTPAddr  = ":8080"
	DefaultAPIURL    = "https://evo.haieronline.ru"
	DefaultSocketURL = "wss://evo.haieronline.ru/gate"
)

// Config is the full daemon configuration.
type Config struct {
	Account struct {
		Email    string `yaml:"email"`
		Password string `yaml:"password"`
	} `yaml:"account"`

	API struct {
		BaseURL   string `yaml:"base_url"`
		SocketURL string `yaml:"socket_url"`
	} `yaml:"api"`

	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`

	MQTT struct {
		Broker      string `yaml:"broker"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		TopicPrefix string `yaml:"topic_prefix"`
	} `yaml:"mqtt"`

	Directory struct {
		CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
	} `yaml:"directory"`

	ConfigDir string `yaml:"config_dir"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// Load reads the YAML config file, applies defaults and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultAPIURL
	}
	if c.API.SocketURL == "" {
		c.API.SocketURL = DefaultSocketURL
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = DefaultHTTPAddr
	}
	if c.ConfigDir == "" {
		c.ConfigDir = DefaultConfigDir
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "haierbridge"
	}
	if c.Directory.CacheTTLSeconds <= 0 {
		c.Directory.CacheTTLSeconds = 60
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate enforces invariants beyond YAML typing.
func (c *Config) Validate() error {
	if c.Account.Email == "" {
		return fmt.Errorf("account.email is required")
	}
	if c.Account.Password == "" {
		return fmt.Errorf("account.password is required")
	}
	return nil
}

// CacheTTL returns the directory cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Directory.CacheTTLSeconds) * time.Second
}

// Package config loads client configuration from YAML with environment
// overrides for deployment-sensitive values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// Config holds every tunable of the calling client. Zero values are
// replaced by the defaults from DefaultConfig during Load.
type Config struct {
	// Broker describes the external signaling broker the transport
	// implementation connects to. The values are passed through opaquely.
	Broker struct {
		Host   string `yaml:"host"`
		Port   int    `yaml:"port"`
		Path   string `yaml:"path"`
		Secure bool   `yaml:"secure"`
	} `yaml:"broker"`

	// STUNServers are handed to the transport implementation unchanged.
	STUNServers []string `yaml:"stun_servers"`

	Reconnect struct {
		BaseDelay   time.Duration `yaml:"base_delay"`
		MaxDelay    time.Duration `yaml:"max_delay"`
		MaxAttempts int           `yaml:"max_attempts"`
	} `yaml:"reconnect"`

	Call struct {
		// EndCallLinger is how long the ended-call state is shown before
		// returning to connected.
		EndCallLinger time.Duration `yaml:"end_call_linger"`
		// RingtoneTimeout stops an unanswered ringtone.
		RingtoneTimeout time.Duration `yaml:"ringtone_timeout"`
		// ChatMessageLimit caps outbound chat message length in runes.
		ChatMessageLimit int `yaml:"chat_message_limit"`
	} `yaml:"call"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// DefaultConfig returns the configuration used when no file is provided.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Broker.Host = "localhost"
	cfg.Broker.Port = 9000
	cfg.Broker.Path = "/meetcore"
	cfg.Broker.Secure = false
	cfg.STUNServers = []string{
		"stun:stun.l.google.com:19302",
		"stun:stun1.l.google.com:19302",
	}
	cfg.Reconnect.BaseDelay = time.Second
	cfg.Reconnect.MaxDelay = 30 * time.Second
	cfg.Reconnect.MaxAttempts = 5
	cfg.Call.EndCallLinger = 2 * time.Second
	cfg.Call.RingtoneTimeout = 30 * time.Second
	cfg.Call.ChatMessageLimit = 500
	cfg.Redis.PoolSize = 10
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"
	return cfg
}

// Load reads a YAML configuration file, fills gaps with defaults and
// applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides allows deployments to override the broker and Redis
// endpoints without editing the file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MEETCORE_BROKER_HOST"); v != "" {
		cfg.Broker.Host = v
	}
	if v := os.Getenv("MEETCORE_BROKER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Broker.Port = port
		}
	}
	if v := os.Getenv("MEETCORE_REDIS_ADDR"); v != "" {
		cfg.Redis.Enabled = true
		cfg.Redis.Address = v
	}
	if v := os.Getenv("MEETCORE_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("MEETCORE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate rejects configurations the client cannot run with.
func (c *Config) Validate() error {
	if c.Broker.Host == "" {
		return fmt.Errorf("broker host must not be empty")
	}
	if c.Broker.Port <= 0 || c.Broker.Port > 65535 {
		return fmt.Errorf("broker port %d out of range", c.Broker.Port)
	}
	if c.Reconnect.BaseDelay <= 0 {
		return fmt.Errorf("reconnect base_delay must be positive")
	}
	if c.Reconnect.MaxDelay < c.Reconnect.BaseDelay {
		return fmt.Errorf("reconnect max_delay must be >= base_delay")
	}
	if c.Reconnect.MaxAttempts <= 0 {
		return fmt.Errorf("reconnect max_attempts must be positive")
	}
	if c.Call.ChatMessageLimit <= 0 {
		return fmt.Errorf("chat_message_limit must be positive")
	}
	if c.Redis.Enabled && c.Redis.Address == "" {
		return fmt.Errorf("redis enabled but no address configured")
	}
	return nil
}

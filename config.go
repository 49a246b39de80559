package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/netleapio/stokercloud-controller/stokercloud"
)

const (
	// EnvPrefix prefixes environment overrides, e.g. STOKERCLOUD_STOKER_USER.
	EnvPrefix = "STOKERCLOUD_"

	DefaultConfigFile = "stokercloud.yaml"
)

type StokerSettings struct {
	User         string        `koanf:"user"`
	Password     string        `koanf:"password"`
	BaseURL      string        `koanf:"base_url"`
	CacheTTL     time.Duration `koanf:"cache_ttl"`
	PollInterval time.Duration `koanf:"poll_interval"`
	Timeout      time.Duration `koanf:"timeout"`
}

type MQTTSettings struct {
	Enabled         bool   `koanf:"enabled"`
	Broker          string `koanf:"broker"`
	Port            int    `koanf:"port"`
	User            string `koanf:"user"`
	Password        string `koanf:"password"`
	ClientID        string `koanf:"client_id"`
	DiscoveryPrefix string `koanf:"discovery_prefix"`
}

type MetricsSettings struct {
	Addr string `koanf:"addr"`
}

type WebSocketSettings struct {
	Addr string `koanf:"addr"`
}

type LogSettings struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type Config struct {
	Stoker    StokerSettings    `koanf:"stoker"`
	Mqtt      MQTTSettings      `koanf:"mqtt"`
	Metrics   MetricsSettings   `koanf:"metrics"`
	WebSocket WebSocketSettings `koanf:"websocket"`
	Log       LogSettings       `koanf:"log"`
}

// DefaultConfig returns the configuration used for keys that are not set.
// Polls run more often than the cache expires, so StokerCloud is queried at
// most once per TTL while forced refreshes still go straight through.
func DefaultConfig() *Config {
	return &Config{
		Stoker: StokerSettings{
			BaseURL:      stokercloud.DefaultBaseURL,
			CacheTTL:     60 * time.Second,
			PollInterval: 15 * time.Second,
			Timeout:      stokercloud.DefaultTimeout,
		},
		Mqtt: MQTTSettings{
			Enabled:         true,
			Port:            1883,
			DiscoveryPrefix: "homeassistant",
		},
		Metrics:   MetricsSettings{Addr: ":8080"},
		WebSocket: WebSocketSettings{Addr: ":3456"},
		Log:       LogSettings{Level: "info", Format: "text"},
	}
}

// LoadConfig reads path (if non-empty) and then the environment over the
// defaults.
func LoadConfig(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// STOKERCLOUD_STOKER_CACHE_TTL -> stoker.cache_ttl
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.Replace(s, "_", ".", 1)
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Mqtt.ClientID == "" {
		cfg.Mqtt.ClientID = "stokercloud-" + uuid.NewString()
	}

	return cfg, nil
}

// Verify checks the settings needed to talk to StokerCloud.
func (s StokerSettings) Verify() error {
	var errs []error

	if s.User == "" {
		errs = append(errs, errors.New("stoker.user must be set"))
	}
	if s.PollInterval <= 0 {
		errs = append(errs, errors.New("stoker.poll_interval must be positive"))
	}
	if s.CacheTTL < 0 {
		errs = append(errs, errors.New("stoker.cache_ttl must not be negative"))
	}
	if s.Timeout <= 0 {
		errs = append(errs, errors.New("stoker.timeout must be positive"))
	}

	return errors.Join(errs...)
}

// Verify checks everything the daemon needs.
func (c *Config) Verify() error {
	errs := []error{c.Stoker.Verify()}

	if c.Mqtt.Enabled {
		if c.Mqtt.Broker == "" {
			errs = append(errs, errors.New("mqtt.broker must be set when mqtt is enabled"))
		}
		if c.Mqtt.Port <= 0 || c.Mqtt.Port > 65535 {
			errs = append(errs, fmt.Errorf("mqtt.port %d out of range", c.Mqtt.Port))
		}
	}

	return errors.Join(errs...)
}

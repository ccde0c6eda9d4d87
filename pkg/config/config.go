package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/strata/pkg/compress"
	"github.com/papercomputeco/strata/pkg/dotdir"
)

const (
	configFile = "config.toml"

	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

type Configer struct {
	ddm        *dotdir.Manager
	targetPath string
}

func NewConfiger(override string) (*Configer, error) {
	cfger := &Configer{}

	cfger.ddm = dotdir.NewManager()
	target, err := cfger.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	// If no .strata/ directory was resolved, targetPath stays empty;
	// LoadConfig will return defaults and SaveConfig will error clearly.
	if target == "" {
		return cfger, nil
	}

	path := filepath.Join(target, configFile)
	_, err = os.Stat(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfger.targetPath = path

	return cfger, nil
}

// ValidConfigKeys returns all supported configuration key names in TOML
// section order.
func ValidConfigKeys() []string {
	result := make([]string, 0, len(orderedKeys))
	for _, k := range orderedKeys {
		if _, ok := configKeys[k]; ok {
			result = append(result, k)
		}
	}

	return result
}

// IsValidConfigKey returns true if the given key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

func (c *Configer) GetTarget() string {
	return c.targetPath
}

// LoadConfig loads the configuration from config.toml in the target .strata/
// directory. Fields absent from the file keep their defaults, so callers
// always receive a fully-populated Config.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return decodeConfig(data, NewDefaultConfig())
}

// SaveConfig persists the configuration to config.toml in the target .strata/ directory.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}

	if c.targetPath == "" {
		return errors.New("cannot save empty target path")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(c.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// SetConfigValue loads the config, sets the given key to the given value, and saves it.
// Returns an error if the key is not a valid config key.
func (c *Configer) SetConfigValue(key string, value string) error {
	info, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}

	if err := info.set(cfg, value); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	return c.SaveConfig(cfg)
}

// GetConfigValue loads the config and returns the string representation of the given key.
// Returns an error if the key is not a valid config key.
func (c *Configer) GetConfigValue(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}

	return info.get(cfg), nil
}

// Value returns the string form of a dotted key on cfg.
func (cfg *Config) Value(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}

	return info.get(cfg), nil
}

// ParseConfigTOML parses raw TOML bytes into a Config.
// Returns an error if the version field is present and not equal to CurrentV.
func ParseConfigTOML(data []byte) (*Config, error) {
	return decodeConfig(data, &Config{})
}

func decodeConfig(data []byte, cfg *Config) (*Config, error) {
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Version != 0 && cfg.Version != CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}

	return cfg, nil
}

// Durations holds the parsed duration settings.
type Durations struct {
	Debounce      time.Duration
	RetryBase     time.Duration
	RetryCap      time.Duration
	WriteTimeout  time.Duration
	ShutdownGrace time.Duration
	Read          time.Duration
	Flush         time.Duration

	// L2TTL is zero when unset.
	L2TTL time.Duration

	// MetricsInterval is zero when unset.
	MetricsInterval time.Duration
}

// Durations parses every duration string in cfg.
func (cfg *Config) Durations() (*Durations, error) {
	d := &Durations{}

	for _, f := range []struct {
		key      string
		value    string
		target   *time.Duration
		optional bool
	}{
		{"sync.debounce", cfg.Sync.Debounce, &d.Debounce, false},
		{"sync.retry_base", cfg.Sync.RetryBase, &d.RetryBase, false},
		{"sync.retry_cap", cfg.Sync.RetryCap, &d.RetryCap, false},
		{"sync.write_timeout", cfg.Sync.WriteTimeout, &d.WriteTimeout, false},
		{"sync.shutdown_grace", cfg.Sync.ShutdownGrace, &d.ShutdownGrace, false},
		{"timeouts.read", cfg.Timeouts.Read, &d.Read, false},
		{"timeouts.flush", cfg.Timeouts.Flush, &d.Flush, false},
		{"l2.ttl", cfg.L2.TTL, &d.L2TTL, true},
		{"metrics.interval", cfg.Metrics.Interval, &d.MetricsInterval, true},
	} {
		if f.value == "" && f.optional {
			continue
		}

		parsed, err := time.ParseDuration(f.value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: %w", f.key, err)
		}
		if parsed < 0 || (parsed == 0 && !f.optional) {
			return nil, fmt.Errorf("%s must be positive, got %s", f.key, f.value)
		}
		*f.target = parsed
	}

	return d, nil
}

// Validate checks that cfg can start a manager.
func (cfg *Config) Validate() error {
	d, err := cfg.Durations()
	if err != nil {
		return err
	}
	if d.RetryCap < d.RetryBase {
		return fmt.Errorf("sync.retry_cap %s is below sync.retry_base %s", cfg.Sync.RetryCap, cfg.Sync.RetryBase)
	}

	var errs []error
	if cfg.Sync.Jitter < 0 || cfg.Sync.Jitter >= 1 {
		errs = append(errs, fmt.Errorf("sync.jitter must be in [0, 1), got %v", cfg.Sync.Jitter))
	}
	if cfg.Sync.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("sync.max_attempts must be at least 1, got %d", cfg.Sync.MaxAttempts))
	}
	if cfg.Sync.Workers < 1 {
		errs = append(errs, fmt.Errorf("sync.workers must be at least 1, got %d", cfg.Sync.Workers))
	}
	if cfg.L1.MaxBytes <= 0 || cfg.L1.MaxItemBytes <= 0 {
		errs = append(errs, errors.New("l1.max_bytes and l1.max_item_bytes must be positive"))
	}
	if cfg.L1.MaxItemBytes > cfg.L1.MaxBytes {
		errs = append(errs, fmt.Errorf("l1.max_item_bytes %d exceeds l1.max_bytes %d", cfg.L1.MaxItemBytes, cfg.L1.MaxBytes))
	}
	if cfg.Compression.Threshold < 0 {
		errs = append(errs, fmt.Errorf("compression.threshold must not be negative, got %d", cfg.Compression.Threshold))
	}
	if _, err := compress.ParseAlgorithm(cfg.Compression.Algorithm); err != nil {
		errs = append(errs, fmt.Errorf("compression.algorithm: %w", err))
	}

	switch strings.ToLower(cfg.L2.Provider) {
	case "inmemory":
	case "redis":
		if cfg.L2.Target == "" {
			errs = append(errs, errors.New("l2.target is required for the redis provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown l2.provider %q (available: inmemory, redis)", cfg.L2.Provider))
	}

	switch strings.ToLower(cfg.Durable.Provider) {
	case "sqlite", "libsql", "inmemory":
	case "postgres":
		if cfg.Durable.Target == "" {
			errs = append(errs, errors.New("durable.target is required for the postgres provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown durable.provider %q (available: sqlite, postgres, libsql, inmemory)", cfg.Durable.Provider))
	}

	switch strings.ToLower(cfg.Events.Provider) {
	case "", "none":
	case "kafka":
		if cfg.Events.Brokers == "" {
			errs = append(errs, errors.New("events.brokers is required for the kafka provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown events.provider %q (available: none, kafka)", cfg.Events.Provider))
	}

	switch strings.ToLower(cfg.Metrics.Exporter) {
	case "", "none", "otlp", "stdout":
	default:
		errs = append(errs, fmt.Errorf("unknown metrics.exporter %q (available: none, otlp, stdout)", cfg.Metrics.Exporter))
	}

	return errors.Join(errs...)
}

// BrokerList splits the comma-separated events.brokers list.
func (c EventsConfig) BrokerList() []string {
	var brokers []string
	for _, b := range strings.Split(c.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}

	return brokers
}

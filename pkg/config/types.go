package config

import (
	"fmt"
	"strconv"
	"time"
)

// Config represents the persistent strata configuration stored as config.toml
// in the .strata/ directory. The TOML layout uses sections for logical grouping.
// Durations are Go duration strings ("500ms", "30s").
type Config struct {
	Version     int               `toml:"version"`
	Server      ServerConfig      `toml:"server"`
	L1          L1Config          `toml:"l1"`
	L2          L2Config          `toml:"l2"`
	Durable     DurableConfig     `toml:"durable"`
	Sync        SyncConfig        `toml:"sync"`
	Timeouts    TimeoutConfig     `toml:"timeouts"`
	Compression CompressionConfig `toml:"compression"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	Events      EventsConfig      `toml:"events"`
	Metrics     MetricsConfig     `toml:"metrics"`
}

// ServerConfig holds API server settings.
type ServerConfig struct {
	Listen   string `toml:"listen,omitempty"`
	Instance string `toml:"instance,omitempty"`
}

// L1Config holds the process-local tier limits.
type L1Config struct {
	MaxBytes     int64 `toml:"max_bytes,omitempty"`
	MaxItemBytes int64 `toml:"max_item_bytes,omitempty"`
}

// L2Config holds the shared cache settings. Provider is "inmemory" or "redis".
type L2Config struct {
	Provider     string `toml:"provider,omitempty"`
	Target       string `toml:"target,omitempty"`
	Password     string `toml:"password,omitempty"`
	DB           int    `toml:"db,omitempty"`
	Prefix       string `toml:"prefix,omitempty"`
	TTL          string `toml:"ttl,omitempty"`
	MaxItemBytes int    `toml:"max_item_bytes,omitempty"`
}

// DurableConfig selects the durable tier. Provider is "sqlite", "postgres",
// "libsql" or "inmemory".
type DurableConfig struct {
	Provider string `toml:"provider,omitempty"`
	Target   string `toml:"target,omitempty"`
}

// SyncConfig holds the debounce and retry settings of the sync engine.
type SyncConfig struct {
	Debounce      string  `toml:"debounce,omitempty"`
	RetryBase     string  `toml:"retry_base,omitempty"`
	RetryCap      string  `toml:"retry_cap,omitempty"`
	Jitter        float64 `toml:"jitter"`
	MaxAttempts   int     `toml:"max_attempts,omitempty"`
	Workers       int     `toml:"workers,omitempty"`
	SideWorkers   uint    `toml:"side_workers,omitempty"`
	WriteTimeout  string  `toml:"write_timeout,omitempty"`
	ShutdownGrace string  `toml:"shutdown_grace,omitempty"`
}

// TimeoutConfig holds caller-facing timeouts.
type TimeoutConfig struct {
	Read  string `toml:"read,omitempty"`
	Flush string `toml:"flush,omitempty"`
}

// CompressionConfig holds the durable payload codec settings.
type CompressionConfig struct {
	Algorithm string `toml:"algorithm,omitempty"`
	Threshold int    `toml:"threshold"`
}

// VectorStoreConfig holds vector store settings. An empty or "none"
// provider disables re-indexing.
type VectorStoreConfig struct {
	Provider string `toml:"provider,omitempty"`
	Target   string `toml:"target,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
}

// EventsConfig selects the event publisher. Provider is "none" or "kafka";
// Brokers is a comma-separated list.
type EventsConfig struct {
	Provider string `toml:"provider,omitempty"`
	Brokers  string `toml:"brokers,omitempty"`
	Topic    string `toml:"topic,omitempty"`
}

// MetricsConfig selects the otel metric exporter. Exporter is "none",
// "otlp" or "stdout"; Endpoint is the OTLP/HTTP collector address.
type MetricsConfig struct {
	Exporter string `toml:"exporter,omitempty"`
	Endpoint string `toml:"endpoint,omitempty"`
	Interval string `toml:"interval,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func durationKey(name string, field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error {
			if _, err := time.ParseDuration(v); err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = v
			return nil
		},
	}
}

func intKey(name string, field func(c *Config) *int) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.Itoa(*field(c)) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = n
			return nil
		},
	}
}

func int64Key(name string, field func(c *Config) *int64) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatInt(*field(c), 10) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = n
			return nil
		},
	}
}

func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*field(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

func floatKey(name string, field func(c *Config) *float64) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatFloat(*field(c), 'f', -1, 64) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = f
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"server.listen":   stringKey(func(c *Config) *string { return &c.Server.Listen }),
	"server.instance": stringKey(func(c *Config) *string { return &c.Server.Instance }),

	"l1.max_bytes":      int64Key("l1.max_bytes", func(c *Config) *int64 { return &c.L1.MaxBytes }),
	"l1.max_item_bytes": int64Key("l1.max_item_bytes", func(c *Config) *int64 { return &c.L1.MaxItemBytes }),

	"l2.provider":       stringKey(func(c *Config) *string { return &c.L2.Provider }),
	"l2.target":         stringKey(func(c *Config) *string { return &c.L2.Target }),
	"l2.password":       stringKey(func(c *Config) *string { return &c.L2.Password }),
	"l2.db":             intKey("l2.db", func(c *Config) *int { return &c.L2.DB }),
	"l2.prefix":         stringKey(func(c *Config) *string { return &c.L2.Prefix }),
	"l2.ttl":            durationKey("l2.ttl", func(c *Config) *string { return &c.L2.TTL }),
	"l2.max_item_bytes": intKey("l2.max_item_bytes", func(c *Config) *int { return &c.L2.MaxItemBytes }),

	"durable.provider": stringKey(func(c *Config) *string { return &c.Durable.Provider }),
	"durable.target":   stringKey(func(c *Config) *string { return &c.Durable.Target }),

	"sync.debounce":       durationKey("sync.debounce", func(c *Config) *string { return &c.Sync.Debounce }),
	"sync.retry_base":     durationKey("sync.retry_base", func(c *Config) *string { return &c.Sync.RetryBase }),
	"sync.retry_cap":      durationKey("sync.retry_cap", func(c *Config) *string { return &c.Sync.RetryCap }),
	"sync.jitter":         floatKey("sync.jitter", func(c *Config) *float64 { return &c.Sync.Jitter }),
	"sync.max_attempts":   intKey("sync.max_attempts", func(c *Config) *int { return &c.Sync.MaxAttempts }),
	"sync.workers":        intKey("sync.workers", func(c *Config) *int { return &c.Sync.Workers }),
	"sync.side_workers":   uintKey("sync.side_workers", func(c *Config) *uint { return &c.Sync.SideWorkers }),
	"sync.write_timeout":  durationKey("sync.write_timeout", func(c *Config) *string { return &c.Sync.WriteTimeout }),
	"sync.shutdown_grace": durationKey("sync.shutdown_grace", func(c *Config) *string { return &c.Sync.ShutdownGrace }),

	"timeouts.read":  durationKey("timeouts.read", func(c *Config) *string { return &c.Timeouts.Read }),
	"timeouts.flush": durationKey("timeouts.flush", func(c *Config) *string { return &c.Timeouts.Flush }),

	"compression.algorithm": stringKey(func(c *Config) *string { return &c.Compression.Algorithm }),
	"compression.threshold": intKey("compression.threshold", func(c *Config) *int { return &c.Compression.Threshold }),

	"vector_store.provider": stringKey(func(c *Config) *string { return &c.VectorStore.Provider }),
	"vector_store.target":   stringKey(func(c *Config) *string { return &c.VectorStore.Target }),

	"embedding.provider":   stringKey(func(c *Config) *string { return &c.Embedding.Provider }),
	"embedding.target":     stringKey(func(c *Config) *string { return &c.Embedding.Target }),
	"embedding.model":      stringKey(func(c *Config) *string { return &c.Embedding.Model }),
	"embedding.dimensions": uintKey("embedding.dimensions", func(c *Config) *uint { return &c.Embedding.Dimensions }),

	"events.provider": stringKey(func(c *Config) *string { return &c.Events.Provider }),
	"events.brokers":  stringKey(func(c *Config) *string { return &c.Events.Brokers }),
	"events.topic":    stringKey(func(c *Config) *string { return &c.Events.Topic }),

	"metrics.exporter": stringKey(func(c *Config) *string { return &c.Metrics.Exporter }),
	"metrics.endpoint": stringKey(func(c *Config) *string { return &c.Metrics.Endpoint }),
	"metrics.interval": durationKey("metrics.interval", func(c *Config) *string { return &c.Metrics.Interval }),
}

// orderedKeys lists configKeys in TOML section order.
var orderedKeys = []string{
	"server.listen",
	"server.instance",
	"l1.max_bytes",
	"l1.max_item_bytes",
	"l2.provider",
	"l2.target",
	"l2.password",
	"l2.db",
	"l2.prefix",
	"l2.ttl",
	"l2.max_item_bytes",
	"durable.provider",
	"durable.target",
	"sync.debounce",
	"sync.retry_base",
	"sync.retry_cap",
	"sync.jitter",
	"sync.max_attempts",
	"sync.workers",
	"sync.side_workers",
	"sync.write_timeout",
	"sync.shutdown_grace",
	"timeouts.read",
	"timeouts.flush",
	"compression.algorithm",
	"compression.threshold",
	"vector_store.provider",
	"vector_store.target",
	"embedding.provider",
	"embedding.target",
	"embedding.model",
	"embedding.dimensions",
	"events.provider",
	"events.brokers",
	"events.topic",
	"metrics.exporter",
	"metrics.endpoint",
	"metrics.interval",
}

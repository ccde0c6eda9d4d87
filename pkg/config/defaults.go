package config

const (
	defaultListen = ":7700"

	defaultL1MaxBytes     int64 = 64 << 20
	defaultL1MaxItemBytes int64 = 1 << 20

	defaultL2Provider     = "inmemory"
	defaultL2Prefix       = "strata:"
	defaultL2MaxItemBytes = 1 << 20

	defaultDurableProvider = "sqlite"

	defaultDebounce      = "500ms"
	defaultRetryBase     = "200ms"
	defaultRetryCap      = "30s"
	defaultJitter        = 0.2
	defaultMaxAttempts   = 8
	defaultWorkers       = 32
	defaultSideWorkers   = 3
	defaultWriteTimeout  = "5s"
	defaultShutdownGrace = "5s"

	defaultReadTimeout  = "2s"
	defaultFlushTimeout = "10s"

	defaultCompressionAlgorithm = "zstd"
	defaultCompressionThreshold = 2048

	defaultVectorProvider = "none"

	defaultEmbeddingProvider   = "hashing"
	defaultEmbeddingTarget     = "http://localhost:11434"
	defaultEmbeddingModel      = "embeddinggemma"
	defaultEmbeddingDimensions = 256

	defaultEventsProvider = "none"
	defaultEventsTopic    = "strata.memory.events"

	defaultMetricsExporter = "none"
	defaultMetricsInterval = "30s"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Server: ServerConfig{
			Listen: defaultListen,
		},
		L1: L1Config{
			MaxBytes:     defaultL1MaxBytes,
			MaxItemBytes: defaultL1MaxItemBytes,
		},
		L2: L2Config{
			Provider:     defaultL2Provider,
			Prefix:       defaultL2Prefix,
			MaxItemBytes: defaultL2MaxItemBytes,
		},
		Durable: DurableConfig{
			Provider: defaultDurableProvider,
		},
		Sync: SyncConfig{
			Debounce:      defaultDebounce,
			RetryBase:     defaultRetryBase,
			RetryCap:      defaultRetryCap,
			Jitter:        defaultJitter,
			MaxAttempts:   defaultMaxAttempts,
			Workers:       defaultWorkers,
			SideWorkers:   defaultSideWorkers,
			WriteTimeout:  defaultWriteTimeout,
			ShutdownGrace: defaultShutdownGrace,
		},
		Timeouts: TimeoutConfig{
			Read:  defaultReadTimeout,
			Flush: defaultFlushTimeout,
		},
		Compression: CompressionConfig{
			Algorithm: defaultCompressionAlgorithm,
			Threshold: defaultCompressionThreshold,
		},
		VectorStore: VectorStoreConfig{
			Provider: defaultVectorProvider,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Target:     defaultEmbeddingTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		Events: EventsConfig{
			Provider: defaultEventsProvider,
			Topic:    defaultEventsTopic,
		},
		Metrics: MetricsConfig{
			Exporter: defaultMetricsExporter,
			Interval: defaultMetricsInterval,
		},
	}
}

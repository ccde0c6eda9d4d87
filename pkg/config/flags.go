package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline.
type Flag struct {
	// Name is the long flag name (e.g. "listen").
	Name string

	// Shorthand is the one-letter short flag (e.g. "l"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "server.listen").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddUintFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagListen          = "listen"
	FlagInstance        = "instance"
	FlagL2Provider      = "l2-provider"
	FlagL2Target        = "l2-target"
	FlagDurableProvider = "durable-provider"
	FlagDurableTarget   = "durable-target"
	FlagDebounce        = "debounce"
	FlagCompression     = "compression"
	FlagVectorStoreProv = "vector-store-provider"
	FlagVectorStoreTgt  = "vector-store-target"
	FlagEmbeddingProv   = "embedding-provider"
	FlagEmbeddingTgt    = "embedding-target"
	FlagEmbeddingModel  = "embedding-model"
	FlagEmbeddingDims   = "embedding-dimensions"
	FlagEventsProvider  = "events-provider"
	FlagEventsBrokers   = "events-brokers"
)

// ServeFlags are the flags of "strata serve".
var ServeFlags = FlagSet{
	FlagListen: {
		Name:        "listen",
		Shorthand:   "l",
		ViperKey:    "server.listen",
		Description: "Address for the memory API to listen on",
	},
	FlagInstance: {
		Name:        "instance",
		ViperKey:    "server.instance",
		Description: "Instance name recorded as the origin of writes (defaults to the hostname)",
	},
	FlagL2Provider: {
		Name:        "l2-provider",
		ViperKey:    "l2.provider",
		Description: "Shared cache provider (inmemory, redis)",
	},
	FlagL2Target: {
		Name:        "l2-target",
		ViperKey:    "l2.target",
		Description: "Shared cache address (e.g., localhost:6379)",
	},
	FlagDurableProvider: {
		Name:        "durable-provider",
		ViperKey:    "durable.provider",
		Description: "Durable store provider (sqlite, postgres, libsql, inmemory)",
	},
	FlagDurableTarget: {
		Name:        "durable-target",
		ViperKey:    "durable.target",
		Description: "Durable store target (file path or connection string)",
	},
	FlagDebounce: {
		Name:        "debounce",
		ViperKey:    "sync.debounce",
		Description: "Quiet period before a dirty key is written to the durable store",
	},
	FlagCompression: {
		Name:        "compression",
		ViperKey:    "compression.algorithm",
		Description: "Durable payload compression (none, zstd, lz4)",
	},
	FlagVectorStoreProv: {
		Name:        "vector-store-provider",
		ViperKey:    "vector_store.provider",
		Description: "Vector store provider (none, sqlite-vec, qdrant, chromem)",
	},
	FlagVectorStoreTgt: {
		Name:        "vector-store-target",
		ViperKey:    "vector_store.target",
		Description: "Vector store target (file path or URL)",
	},
	FlagEmbeddingProv: {
		Name:        "embedding-provider",
		ViperKey:    "embedding.provider",
		Description: "Embedding provider (hashing, ollama)",
	},
	FlagEmbeddingTgt: {
		Name:        "embedding-target",
		ViperKey:    "embedding.target",
		Description: "Embedding provider URL",
	},
	FlagEmbeddingModel: {
		Name:        "embedding-model",
		ViperKey:    "embedding.model",
		Description: "Embedding model name",
	},
	FlagEmbeddingDims: {
		Name:        "embedding-dimensions",
		ViperKey:    "embedding.dimensions",
		Description: "Embedding dimensionality",
	},
	FlagEventsProvider: {
		Name:        "events-provider",
		ViperKey:    "events.provider",
		Description: "Sync event publisher (none, kafka)",
	},
	FlagEventsBrokers: {
		Name:        "events-brokers",
		ViperKey:    "events.brokers",
		Description: "Comma-separated Kafka broker addresses",
	},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

func defaultUint(viperKey string) uint {
	v := viper.New()
	setViperDefaults(v)
	return v.GetUint(viperKey)
}

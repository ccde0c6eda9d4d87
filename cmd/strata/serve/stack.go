package servecmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/papercomputeco/strata/api/search"
	"github.com/papercomputeco/strata/pkg/cliui"
	"github.com/papercomputeco/strata/pkg/compress"
	"github.com/papercomputeco/strata/pkg/config"
	"github.com/papercomputeco/strata/pkg/deadletter"
	"github.com/papercomputeco/strata/pkg/dotdir"
	"github.com/papercomputeco/strata/pkg/durable"
	durableutils "github.com/papercomputeco/strata/pkg/durable/utils"
	"github.com/papercomputeco/strata/pkg/embeddings"
	embeddingutils "github.com/papercomputeco/strata/pkg/embeddings/utils"
	"github.com/papercomputeco/strata/pkg/eventstream"
	"github.com/papercomputeco/strata/pkg/eventstream/kafka"
	"github.com/papercomputeco/strata/pkg/eventstream/nop"
	"github.com/papercomputeco/strata/pkg/manager"
	"github.com/papercomputeco/strata/pkg/spill"
	"github.com/papercomputeco/strata/pkg/syncer"
	"github.com/papercomputeco/strata/pkg/telemetry"
	"github.com/papercomputeco/strata/pkg/tier"
	tiermem "github.com/papercomputeco/strata/pkg/tier/inmemory"
	"github.com/papercomputeco/strata/pkg/tier/local"
	"github.com/papercomputeco/strata/pkg/tier/redis"
	"github.com/papercomputeco/strata/pkg/vector"
	vectorutils "github.com/papercomputeco/strata/pkg/vector/utils"
)

const (
	durableFileName = "strata.db"
	vectorFileName  = "vectors.db"
	vectorDirName   = "vectors"
)

// stack is every component serve starts, in the order they are closed.
type stack struct {
	manager   *manager.Manager
	searcher  *search.Searcher
	embedder  embeddings.Embedder
	vectors   vector.Driver
	publisher eventstream.Publisher
	deadLog   *deadletter.Log
	closers   []io.Closer
}

// close shuts the manager down first so pending writes can still reach the
// indexer, publisher and dead-letter log.
func (s *stack) close(ctx context.Context) error {
	var errs []error
	if s.manager != nil {
		errs = append(errs, s.manager.Close(ctx))
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i].Close())
	}
	return errors.Join(errs...)
}

// buildStack opens every tier and collaborator described by cfg. Progress
// is reported on w.
func buildStack(ctx context.Context, cfg *config.Config, configDir string, w io.Writer, logger *slog.Logger) (_ *stack, err error) {
	durations, err := cfg.Durations()
	if err != nil {
		return nil, err
	}

	dir, err := dotdir.NewManager().Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving strata directory: %w", err)
	}

	st := &stack{}
	var (
		l1, l2  tier.Store
		store   durable.Driver
		codec   *compress.Codec
		indexer vector.Indexer

		// owned are handed to the manager once it starts.
		owned []io.Closer
	)
	defer func() {
		if err == nil {
			return
		}
		if st.manager == nil {
			for i := len(owned) - 1; i >= 0; i-- {
				_ = owned[i].Close()
			}
		}
		_ = st.close(context.Background())
	}()

	err = cliui.Step(w, fmt.Sprintf("Opening durable store (%s)", cfg.Durable.Provider), func() error {
		target := cfg.Durable.Target
		if target == "" && cfg.Durable.Provider == "sqlite" {
			target = filepath.Join(dir, durableFileName)
		}

		var derr error
		store, derr = durableutils.NewDurableDriver(ctx, &durableutils.NewDurableDriverOpts{
			ProviderType: cfg.Durable.Provider,
			Target:       target,
		})
		if derr != nil {
			return derr
		}
		owned = append(owned, store)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("opening durable store: %w", err)
	}

	err = cliui.Step(w, fmt.Sprintf("Connecting shared cache (%s)", cfg.L2.Provider), func() error {
		shared, cerr := newL2(ctx, cfg, durations)
		if cerr != nil {
			return cerr
		}
		l2 = shared
		owned = append(owned, l2)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("opening shared cache: %w", err)
	}

	localStore, err := local.NewStore(local.Config{
		MaxBytes:     cfg.L1.MaxBytes,
		MaxItemBytes: cfg.L1.MaxItemBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("creating local cache: %w", err)
	}
	l1 = localStore
	owned = append(owned, l1)

	algorithm, err := compress.ParseAlgorithm(cfg.Compression.Algorithm)
	if err != nil {
		return nil, err
	}
	codec, err = compress.NewCodec(compress.Config{
		Algorithm: algorithm,
		Threshold: cfg.Compression.Threshold,
	})
	if err != nil {
		return nil, err
	}
	owned = append(owned, codec)

	if err = st.openVectors(ctx, cfg, dir, w, logger); err != nil {
		return nil, err
	}
	if st.vectors != nil {
		ei, ierr := vector.NewEmbeddingIndexer(st.embedder, st.vectors, logger)
		if ierr != nil {
			err = ierr
			return nil, err
		}
		indexer = ei
	}

	if err = st.openPublisher(cfg, logger); err != nil {
		return nil, err
	}

	st.deadLog, err = deadletter.Open(filepath.Join(dir, deadletter.FileName))
	if err != nil {
		return nil, err
	}
	st.closers = append(st.closers, st.deadLog)

	syncCfg := syncer.Config{
		Debounce:      durations.Debounce,
		RetryBase:     durations.RetryBase,
		RetryCap:      durations.RetryCap,
		Jitter:        cfg.Sync.Jitter,
		MaxAttempts:   cfg.Sync.MaxAttempts,
		Workers:       cfg.Sync.Workers,
		WriteTimeout:  durations.WriteTimeout,
		ShutdownGrace: durations.ShutdownGrace,
		DeadLetter:    st.deadLog,
		Publisher:     st.publisher,
		Instance:      instanceName(cfg),
	}
	if indexer != nil {
		syncCfg.Indexer = indexer
	}

	if exporter := cfg.Metrics.Exporter; exporter != "" && exporter != "none" {
		metrics, terr := telemetry.New(ctx, telemetry.Config{
			Exporter: exporter,
			Endpoint: cfg.Metrics.Endpoint,
			Interval: durations.MetricsInterval,
			Instance: syncCfg.Instance,
			Writer:   w,
		})
		if terr != nil {
			err = terr
			return nil, err
		}
		st.closers = append(st.closers, metrics)
		syncCfg.Meter = metrics.Meter(syncer.MeterName)
	}

	err = cliui.Step(w, "Starting memory manager", func() error {
		var merr error
		st.manager, merr = manager.New(ctx, manager.Config{
			L1:           l1,
			L2:           l2,
			Durable:      store,
			Codec:        codec,
			Sync:         syncCfg,
			Spill:        spill.New(filepath.Join(dir, spill.FileName)),
			ReadTimeout:  durations.Read,
			FlushTimeout: durations.Flush,
			SideWorkers:  cfg.Sync.SideWorkers,
			Logger:       logger,
		})
		return merr
	})
	if err != nil {
		return nil, fmt.Errorf("starting memory manager: %w", err)
	}

	if st.vectors != nil {
		st.searcher = search.NewSearcher(st.embedder, st.vectors, st.manager, logger)
	}

	logger.Info("memory manager ready",
		"dir", dir,
		"durable", cfg.Durable.Provider,
		"l2", cfg.L2.Provider,
		"vector_store", cfg.VectorStore.Provider,
		"events", cfg.Events.Provider,
		"metrics", cfg.Metrics.Exporter,
	)

	return st, nil
}

func newL2(ctx context.Context, cfg *config.Config, d *config.Durations) (tier.Store, error) {
	switch cfg.L2.Provider {
	case "redis":
		return redis.NewStore(ctx, redis.Config{
			Addr:         cfg.L2.Target,
			Password:     cfg.L2.Password,
			DB:           cfg.L2.DB,
			Prefix:       cfg.L2.Prefix,
			TTL:          d.L2TTL,
			MaxItemBytes: cfg.L2.MaxItemBytes,
		})
	case "inmemory", "":
		return tiermem.NewStore(tiermem.Config{MaxItemBytes: cfg.L2.MaxItemBytes}), nil
	default:
		return nil, fmt.Errorf("unsupported l2 provider: %s", cfg.L2.Provider)
	}
}

func (s *stack) openVectors(ctx context.Context, cfg *config.Config, dir string, w io.Writer, logger *slog.Logger) error {
	provider := cfg.VectorStore.Provider
	if provider == "" || provider == "none" {
		return nil
	}

	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: cfg.Embedding.Provider,
		TargetURL:    cfg.Embedding.Target,
		Model:        cfg.Embedding.Model,
		Dimensions:   int(cfg.Embedding.Dimensions),
	})
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}
	s.embedder = embedder
	s.closers = append(s.closers, embedder)

	target := cfg.VectorStore.Target
	if target == "" {
		switch provider {
		case "sqlite-vec", "sqlitevec":
			target = filepath.Join(dir, vectorFileName)
		case "chromem":
			target = filepath.Join(dir, vectorDirName)
		}
	}

	return cliui.Step(w, fmt.Sprintf("Opening vector store (%s)", provider), func() error {
		driver, err := vectorutils.NewVectorDriver(ctx, &vectorutils.NewVectorDriverOpts{
			ProviderType: provider,
			Target:       target,
			Dimensions:   cfg.Embedding.Dimensions,
			Logger:       logger,
		})
		if err != nil {
			return err
		}
		s.vectors = driver
		s.closers = append(s.closers, driver)
		return nil
	})
}

func (s *stack) openPublisher(cfg *config.Config, logger *slog.Logger) error {
	switch cfg.Events.Provider {
	case "kafka":
		p, err := kafka.NewPublisher(kafka.Config{
			Brokers: cfg.Events.BrokerList(),
			Topic:   cfg.Events.Topic,
		}, logger)
		if err != nil {
			return fmt.Errorf("creating kafka publisher: %w", err)
		}
		s.publisher = p
	default:
		s.publisher = nop.NewPublisher()
	}

	s.closers = append(s.closers, s.publisher)
	return nil
}

func instanceName(cfg *config.Config) string {
	if cfg.Server.Instance != "" {
		return cfg.Server.Instance
	}
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return "strata"
}

// Package servecmder provides the serve command, which runs the tiered memory
// manager behind the HTTP and MCP API.
package servecmder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/strata/api"
	"github.com/papercomputeco/strata/pkg/config"
	"github.com/papercomputeco/strata/pkg/logger"
)

type ServeCommander struct {
	configDir string
	debug     bool
	jsonLogs  bool
	logFile   string
	cfg       *config.Config
	logger    *slog.Logger

	// flag targets; values reach cfg through viper
	listen          string
	instance        string
	l2Provider      string
	l2Target        string
	durableProvider string
	durableTarget   string
	debounce        string
	compression     string
	vectorProvider  string
	vectorTarget    string
	embeddingProv   string
	embeddingTarget string
	embeddingModel  string
	embeddingDims   uint
	eventsProvider  string
	eventsBrokers   string
}

const serveLongDesc string = `Run the strata memory API.

Writes are acknowledged once they are held in the process-local (L1) and
shared (L2) caches and are committed to the durable store (L3) after a
debounce window. Committed items are re-indexed in the vector store (L4)
when one is configured.

Endpoints:
  PUT    /v1/memory/:namespace/:key         Write an item (body = payload)
  GET    /v1/memory/:namespace/:key         Read an item
  POST   /v1/memory/:namespace/:key/flush   Wait for durability
  DELETE /v1/memory/:namespace/:key/cache   Drop cached copies
  GET    /v1/sync/stats                     Sync engine counters
  GET    /v1/search?query=...               Semantic search
  ALL    /mcp                               MCP tools`

const serveShortDesc string = "Run the strata memory API"

var serveFlagKeys = []string{
	config.FlagListen,
	config.FlagInstance,
	config.FlagL2Provider,
	config.FlagL2Target,
	config.FlagDurableProvider,
	config.FlagDurableTarget,
	config.FlagDebounce,
	config.FlagCompression,
	config.FlagVectorStoreProv,
	config.FlagVectorStoreTgt,
	config.FlagEmbeddingProv,
	config.FlagEmbeddingTgt,
	config.FlagEmbeddingModel,
	config.FlagEmbeddingDims,
	config.FlagEventsProvider,
	config.FlagEventsBrokers,
}

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.ServeFlags, serveFlagKeys)

			cmder.cfg, err = config.FromViper(v)
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return cmder.run(cmd.Context(), cmd)
		},
	}

	config.AddStringFlag(cmd, config.ServeFlags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagInstance, &cmder.instance)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagL2Provider, &cmder.l2Provider)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagL2Target, &cmder.l2Target)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagDurableProvider, &cmder.durableProvider)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagDurableTarget, &cmder.durableTarget)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagDebounce, &cmder.debounce)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagCompression, &cmder.compression)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagVectorStoreProv, &cmder.vectorProvider)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagVectorStoreTgt, &cmder.vectorTarget)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEmbeddingProv, &cmder.embeddingProv)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEmbeddingTgt, &cmder.embeddingTarget)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEmbeddingModel, &cmder.embeddingModel)
	config.AddUintFlag(cmd, config.ServeFlags, config.FlagEmbeddingDims, &cmder.embeddingDims)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEventsProvider, &cmder.eventsProvider)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEventsBrokers, &cmder.eventsBrokers)
	cmd.Flags().BoolVar(&cmder.jsonLogs, "json-logs", false, "Emit structured JSON logs instead of pretty output")
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also append JSON logs to this file")

	return cmd
}

func (c *ServeCommander) run(ctx context.Context, cmd *cobra.Command) error {
	instance := instanceName(c.cfg)
	c.logger = logger.New(
		logger.WithDebug(c.debug),
		logger.WithPretty(!c.jsonLogs),
		logger.WithJSON(c.jsonLogs),
		logger.WithWriter(cmd.ErrOrStderr()),
	)

	if c.logFile != "" {
		f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer f.Close()

		c.logger = logger.Multi(c.logger, logger.New(
			logger.WithDebug(c.debug),
			logger.WithJSON(true),
			logger.WithSource(c.debug),
			logger.WithInstance(instance),
			logger.WithWriter(f),
		))
	}

	st, err := buildStack(ctx, c.cfg, c.configDir, cmd.ErrOrStderr(), c.logger)
	if err != nil {
		return err
	}

	apiServer, err := api.NewServer(api.Config{
		ListenAddr: c.cfg.Server.Listen,
		BodyLimit:  int(c.cfg.L1.MaxItemBytes),
		Searcher:   st.searcher,
	}, st.manager, c.logger)
	if err != nil {
		_ = st.close(context.Background())
		return fmt.Errorf("creating API server: %w", err)
	}

	// Channel to capture errors from goroutines
	errChan := make(chan error, 1)

	go func() {
		if err := apiServer.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case runErr = <-errChan:
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
	}

	if err := apiServer.Shutdown(); err != nil {
		c.logger.Warn("API server shutdown failed", "error", err)
	}

	// Pending writes get the shutdown grace to drain, then spill.
	if err := st.close(context.Background()); err != nil {
		c.logger.Error("shutdown finished with errors", "error", err)
		if runErr == nil {
			runErr = err
		}
	}

	return runErr
}

// main.go is the entry point for the bloomd server. It resolves settings,
// builds the logger and metrics registry, and hands control to the TCP server.
//
// Startup Sequence
// ================
//
// Settings are resolved first (see config.go) and validated before anything
// else is created, so a bad flag fails fast with a non-zero exit code. The
// logger comes next, then GOMAXPROCS is aligned with the container CPU quota.
// The store starts empty: filters live in memory only and are lost on exit.
//
// Shutdown
// ========
//
// SIGINT and SIGTERM cancel the root context. The server stops accepting
// connections and waits up to --shutdown-timeout for in-flight clients.

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"bloomd.lopezb.com/internal/bloom"
)

type application struct {
	config      config
	logger      zerolog.Logger
	listener    net.Listener
	store       *Store
	router      *Router
	metrics     *Metrics
	filterOpts  []bloom.Option
	readyCh     chan struct{}
	wg          sync.WaitGroup
	connLimiter chan struct{}
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flagged := defaultConfig()
	var configPath string

	cmd := &cobra.Command{
		Use:          "bloomd",
		Short:        "In-memory Bloom filter server speaking RESP",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := flagged
			if configPath != "" {
				fromFile, err := loadConfigFile(configPath)
				if err != nil {
					return err
				}
				cfg = mergeFlags(fromFile, flagged, cmd.Flags().Changed)
			}
			if err := cfg.validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "YAML configuration file")
	flags.IntVar(&flagged.Port, "port", flagged.Port, "TCP server port")
	flags.IntVar(&flagged.MaxConnections, "max-conn", flagged.MaxConnections, "Maximum concurrent connections")
	flags.DurationVar(&flagged.ShutdownTimeout, "shutdown-timeout", flagged.ShutdownTimeout, "Graceful shutdown timeout")
	flags.DurationVar(&flagged.IdleTimeout, "idle-timeout", flagged.IdleTimeout, "Idle client connection timeout (0 for no timeout)")
	flags.Uint64Var(&flagged.BFCapacity, "bf-capacity", flagged.BFCapacity, "Bit count for filters created by BF.ADD")
	flags.Uint32Var(&flagged.BFProbes, "bf-probes", flagged.BFProbes, "Probe count for filters created by BF.ADD")
	flags.BoolVar(&flagged.BFConcurrentInserts, "bf-concurrent-inserts", flagged.BFConcurrentInserts, "Use atomic bitsets so inserts into an existing filter share the read lock")
	flags.StringVar(&flagged.BFProbeStrategy, "bf-probe-strategy", flagged.BFProbeStrategy, "Second-stage probe hash: murmur3 or xxh3")
	flags.Uint64Var(&flagged.BFMaxCapacity, "bf-max-capacity", flagged.BFMaxCapacity, "Largest bit count BF.RESERVE accepts")
	flags.Uint32Var(&flagged.BFMaxProbes, "bf-max-probes", flagged.BFMaxProbes, "Largest probe count BF.RESERVE accepts")
	flags.StringVar(&flagged.MetricsAddr, "metrics-addr", flagged.MetricsAddr, "Address for the Prometheus /metrics endpoint (empty to disable)")
	flags.StringVar(&flagged.LogLevel, "log-level", flagged.LogLevel, "Log level: debug, info, warn, error")
	flags.StringVar(&flagged.LogFile, "log-file", flagged.LogFile, "Write logs to this file with rotation instead of stdout")

	return cmd
}

func run(ctx context.Context, cfg config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	undo, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		logger.Info().Msgf(format, args...)
	}))
	if err != nil {
		logger.Warn().Err(err).Msg("failed to set GOMAXPROCS")
	}
	defer undo()

	app := newApplication(cfg, logger)

	if cfg.MetricsAddr != "" {
		srv := app.metricsServer(cfg.MetricsAddr)
		go func() {
			logger.Info().Str("address", cfg.MetricsAddr).Msg("metrics endpoint starting")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics endpoint stopped")
			}
		}()
		defer func() { _ = srv.Close() }()
	}

	if err := app.serve(ctx); err != nil {
		logger.Error().Err(err).Msg("server exited")
		return err
	}
	return nil
}

func newApplication(cfg config, logger zerolog.Logger) *application {
	app := &application{
		config:      cfg,
		logger:      logger,
		store:       NewStore(),
		filterOpts:  cfg.filterOptions(),
		connLimiter: make(chan struct{}, cfg.MaxConnections),
	}
	app.metrics = NewMetrics(app.store.Len)
	app.router = app.commands()
	return app
}

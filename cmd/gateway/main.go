// Command gateway runs the configured CTP gateways behind the control API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sourcegraph/conc"

	"github.com/coachpo/ctpgate/internal/app/journal"
	"github.com/coachpo/ctpgate/internal/app/provider"
	"github.com/coachpo/ctpgate/internal/infra/bus/eventbus"
	"github.com/coachpo/ctpgate/internal/infra/config"
	"github.com/coachpo/ctpgate/internal/infra/persistence"
	"github.com/coachpo/ctpgate/internal/infra/persistence/migrations"
	"github.com/coachpo/ctpgate/internal/infra/persistence/postgres"
	httpserver "github.com/coachpo/ctpgate/internal/infra/server/http"
	"github.com/coachpo/ctpgate/internal/infra/sink/kafka"
	"github.com/coachpo/ctpgate/internal/infra/telemetry"
	"github.com/coachpo/ctpgate/internal/observability"
)

const (
	defaultConfigPath            = "config/app.yaml"
	exampleConfigPath            = "config/app.example.yaml"
	shutdownTimeout              = 30 * time.Second
	controlServerShutdownTimeout = 5 * time.Second
	lifecycleShutdownTimeout     = 10 * time.Second
	gatewayShutdownTimeout       = 5 * time.Second
	journalShutdownTimeout       = 10 * time.Second
	sinkShutdownTimeout          = 10 * time.Second
	busShutdownTimeout           = 2 * time.Second
	telemetryShutdownTimeout     = 5 * time.Second
	controlReadHeaderTimeout     = 5 * time.Second
)

func main() {
	cfgPathFlag := parseFlags()
	ctx, cancel := newSignalContext()
	defer cancel()

	appCfg, err := config.Load(ctx, resolveConfigPath(cfgPathFlag))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	zl, err := observability.NewZapLogger(appCfg.Logging.Level, appCfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = zl.Sync() }()
	logger := zl.With(observability.Field{Key: "environment", Value: string(appCfg.Environment)})
	observability.SetLogger(logger)

	if err := run(ctx, cancel, appCfg, logger); err != nil {
		logger.Error("gateway exited", observability.Field{Key: "error", Value: err})
		_ = zl.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cancel context.CancelFunc, appCfg config.AppConfig, logger observability.Logger) error {
	logger.Info("configuration initialised", observability.Field{Key: "gateways", Value: len(appCfg.Gateways)})

	telemetryProvider, err := initTelemetry(ctx, logger, appCfg)
	if err != nil {
		return err
	}
	bus := eventbus.NewMemoryBus(eventbus.MemoryConfig{
		BufferSize:    appCfg.Eventbus.BufferSize,
		FanoutWorkers: appCfg.Eventbus.FanoutWorkerCount(),
		Environment:   string(appCfg.Environment),
	})

	shutdown := gracefulShutdownConfig{
		mainCancel: cancel,
		dataBus:    bus,
		telemetry:  telemetryProvider,
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		shutdownStart := time.Now()
		performGracefulShutdown(shutdownCtx, logger, shutdown)
		logger.Info("shutdown completed", observability.Field{Key: "elapsed", Value: time.Since(shutdownStart).String()})
	}()

	var journalReader httpserver.JournalReader
	if appCfg.Journal.Enabled {
		pool, writer, err := startJournal(ctx, logger, appCfg, bus)
		if err != nil {
			return err
		}
		shutdown.pool = pool
		shutdown.journal = writer
		journalReader = postgres.New(pool).Journal()
	}

	if appCfg.Kafka.Enabled() {
		sink, err := startKafkaSink(ctx, logger, appCfg.Kafka, bus)
		if err != nil {
			return err
		}
		shutdown.sink = sink
	}

	manager, err := provider.NewManager(provider.Options{
		Sink:       bus,
		Metrics:    telemetry.NewGatewayMetrics(telemetryProvider),
		Logger:     logger,
		Supervisor: appCfg.Supervisor,
	})
	if err != nil {
		return fmt.Errorf("initialise gateway manager: %w", err)
	}
	shutdown.gateways = manager
	if err := manager.Start(appCfg.Gateways); err != nil {
		return fmt.Errorf("start gateways: %w", err)
	}
	logger.Info("gateways started", observability.Field{Key: "count", Value: len(manager.Gateways())})

	apiServer := buildAPIServer(appCfg.APIServer, manager, journalReader)
	shutdown.server = apiServer
	shutdown.lifecycle = &conc.WaitGroup{}
	startAPIServer(shutdown.lifecycle, logger, apiServer)
	logger.Info("control API listening", observability.Field{Key: "addr", Value: apiServer.Addr})

	<-ctx.Done()
	logger.Info("shutdown signal received, initiating graceful shutdown")
	return nil
}

func parseFlags() string {
	cfgPath := flag.String("config", "", fmt.Sprintf("Path to application configuration file (default: %s)", defaultConfigPath))
	flag.Parse()
	return *cfgPath
}

func newSignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func initTelemetry(ctx context.Context, logger observability.Logger, appCfg config.AppConfig) (*telemetry.Provider, error) {
	telemetryCfg := appCfg.Telemetry
	telemetryCfg.Environment = string(appCfg.Environment)

	provider, err := telemetry.NewProvider(ctx, telemetryCfg)
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry provider: %w", err)
	}
	if telemetryCfg.Enabled {
		logger.Info("telemetry initialized",
			observability.Field{Key: "endpoint", Value: telemetryCfg.OTLPEndpoint},
			observability.Field{Key: "service", Value: telemetryCfg.ServiceName})
	} else {
		logger.Info("telemetry disabled")
	}
	return provider, nil
}

func startJournal(ctx context.Context, logger observability.Logger, appCfg config.AppConfig, bus eventbus.Bus) (*pgxpool.Pool, *journal.Journal, error) {
	cfg := appCfg.Journal
	if cfg.RunMigrations {
		if err := migrations.Apply(ctx, cfg.DSN, "", logger); err != nil {
			return nil, nil, fmt.Errorf("apply journal migrations: %w", err)
		}
	}
	pool, err := persistence.OpenPool(ctx, cfg.DSN, persistence.PoolOptions{
		MaxConns:          cfg.MaxConns,
		MinConns:          cfg.MinConns,
		MaxConnLifetime:   cfg.MaxConnLifetime,
		MaxConnIdleTime:   cfg.MaxConnIdleTime,
		HealthCheckPeriod: cfg.HealthCheckPeriod,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open journal pool: %w", err)
	}
	if err := postgres.ObservePoolMetrics(pool, string(appCfg.Environment), "journal"); err != nil {
		logger.Error("journal pool metrics unavailable", observability.Field{Key: "error", Value: err})
	}
	writer, err := journal.New(journal.Options{
		Bus:    bus,
		Store:  postgres.New(pool).Journal(),
		Lanes:  cfg.Workers,
		Logger: logger,
	})
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := writer.Start(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("start journal: %w", err)
	}
	logger.Info("execution journal started", observability.Field{Key: "lanes", Value: cfg.Workers})
	return pool, writer, nil
}

func startKafkaSink(ctx context.Context, logger observability.Logger, cfg config.KafkaConfig, bus eventbus.Bus) (*kafka.Sink, error) {
	opts, err := kafka.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	opts.Bus = bus
	opts.Logger = logger
	sink, err := kafka.New(opts)
	if err != nil {
		return nil, err
	}
	if err := sink.Start(ctx); err != nil {
		_ = sink.Close()
		return nil, fmt.Errorf("start kafka sink: %w", err)
	}
	logger.Info("kafka sink started",
		observability.Field{Key: "topic", Value: cfg.Topic},
		observability.Field{Key: "brokers", Value: cfg.Brokers})
	return sink, nil
}

func buildAPIServer(cfg config.APIServerConfig, manager *provider.Manager, journalReader httpserver.JournalReader) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpserver.NewHandler(manager, journalReader),
		ReadHeaderTimeout: controlReadHeaderTimeout,
	}
}

func startAPIServer(lifecycle *conc.WaitGroup, logger observability.Logger, server *http.Server) {
	lifecycle.Go(func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("control server stopped", observability.Field{Key: "error", Value: err})
		}
	})
}

type gracefulShutdownConfig struct {
	server     *http.Server
	mainCancel context.CancelFunc
	lifecycle  *conc.WaitGroup
	gateways   *provider.Manager
	journal    *journal.Journal
	sink       *kafka.Sink
	pool       *pgxpool.Pool
	dataBus    eventbus.Bus
	telemetry  *telemetry.Provider
}

// performGracefulShutdown stops intake first, then the gateways, then the
// bus consumers, so the journal and sink see every event published before exit.
func performGracefulShutdown(ctx context.Context, logger observability.Logger, cfg gracefulShutdownConfig) {
	shutdownStep := func(name string, timeout time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		logger.Info("shutdown step started", observability.Field{Key: "step", Value: name})
		if err := fn(stepCtx); err != nil {
			logger.Error("shutdown step failed",
				observability.Field{Key: "step", Value: name},
				observability.Field{Key: "error", Value: err})
			return
		}
		logger.Info("shutdown step completed", observability.Field{Key: "step", Value: name})
	}

	if cfg.server != nil {
		shutdownStep("stopping control server", controlServerShutdownTimeout, func(stepCtx context.Context) error {
			return cfg.server.Shutdown(stepCtx)
		})
	}

	if cfg.mainCancel != nil {
		cfg.mainCancel()
	}

	if cfg.lifecycle != nil {
		shutdownStep("waiting for lifecycle goroutines", lifecycleShutdownTimeout, func(stepCtx context.Context) error {
			return waitWithin(stepCtx, cfg.lifecycle.Wait)
		})
	}

	if cfg.gateways != nil {
		shutdownStep("closing gateways", gatewayShutdownTimeout, func(context.Context) error {
			return cfg.gateways.Close()
		})
	}

	if cfg.journal != nil {
		shutdownStep("draining journal", journalShutdownTimeout, func(stepCtx context.Context) error {
			err := cfg.journal.Close(stepCtx)
			stats := cfg.journal.Stats()
			logger.Info("journal totals",
				observability.Field{Key: "written", Value: stats.Written},
				observability.Field{Key: "failed", Value: stats.Failed})
			return err
		})
	}
	if cfg.pool != nil {
		cfg.pool.Close()
	}

	if cfg.sink != nil {
		shutdownStep("flushing kafka sink", sinkShutdownTimeout, func(stepCtx context.Context) error {
			return waitWithin(stepCtx, func() { _ = cfg.sink.Close() })
		})
	}

	if cfg.dataBus != nil {
		shutdownStep("closing data bus", busShutdownTimeout, func(stepCtx context.Context) error {
			return waitWithin(stepCtx, cfg.dataBus.Close)
		})
	}

	if cfg.telemetry != nil {
		shutdownStep("shutting down telemetry", telemetryShutdownTimeout, func(stepCtx context.Context) error {
			return cfg.telemetry.Shutdown(stepCtx)
		})
	}
}

func waitWithin(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for shutdown: %w", ctx.Err())
	}
}

// resolveConfigPath prefers the flag, then config/app.yaml, then the checked-in example.
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return filepath.Clean(defaultConfigPath)
	}
	return filepath.Clean(exampleConfigPath)
}

// Shipyard Server — выполняет pipeline по запросам API, webhook,
// cron-расписаниям и очереди runs.requested.
//
// Server:
//   - Загружает pipeline из каталога (server.pipeline_dir)
//   - Выполняет runs в orchestrator и ведёт журнал в Postgres (если задан)
//   - Публикует события жизненного цикла в RabbitMQ (если задан)
//   - Отдаёт HTTP API, /healthz и /metrics
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/shaiso/Shipyard/internal/api"
	"github.com/shaiso/Shipyard/internal/artifact"
	"github.com/shaiso/Shipyard/internal/config"
	"github.com/shaiso/Shipyard/internal/engine"
	"github.com/shaiso/Shipyard/internal/mq"
	"github.com/shaiso/Shipyard/internal/orchestrator"
	"github.com/shaiso/Shipyard/internal/release"
	"github.com/shaiso/Shipyard/internal/repo"
	"github.com/shaiso/Shipyard/internal/runner"
	"github.com/shaiso/Shipyard/internal/scheduler"
	"github.com/shaiso/Shipyard/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

var startTime = time.Now()

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "shipyard-server",
		Short:         "Shipyard server: API, webhooks, schedules and run execution",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFrom(configPath)
			if err != nil {
				return err
			}

			logger := telemetry.SetupLoggerWith(cfg.Log.Level, cfg.Log.Format, os.Stderr)
			slog.SetDefault(logger)

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return serve(ctx, cfg, logger)
		},
	}

	rootCmd.Flags().StringVar(&configPath, "config", "shipyard.toml", "Path to TOML config")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// serve собирает компоненты и работает до отмены ctx.
func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	logger.Info("starting shipyard-server", "version", version)

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	// Artifact Store
	store, closeStore, err := openArtifactStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	logger.Info("artifact store ready", "backend", cfg.ArtifactBackendOrDefault())

	// Postgres: журнал runs и (опционально) релизы
	var pool *pgxpool.Pool
	if cfg.Database.URL != "" {
		pool, err = repo.NewPool(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer pool.Close()

		if err := repo.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info("database connected")
	}

	publisher, err := releasePublisher(cfg, pool)
	if err != nil {
		return err
	}

	// Действия и Release Gate
	gate := release.NewGate(release.Config{
		Publisher: publisher,
		Store:     store,
		TagPrefix: cfg.TagPrefixOrDefault(),
		Metrics:   metrics,
		Logger:    logger,
	})
	registry := runner.DefaultRegistry(store, &runner.ExecRunner{}, metrics)
	registry.Register(release.NewAction(gate))

	catalog := engine.NewCatalog(cfg.PipelineDirOrDefault(), registry.Has)

	orchCfg := orchestrator.Config{
		Runner: runner.New(runner.Config{
			Registry: registry,
			Metrics:  metrics,
			WorkDir:  cfg.Orchestrator.WorkDir,
			Logger:   logger,
		}),
		Store:       store,
		Metrics:     metrics,
		MaxParallel: cfg.MaxParallelOrDefault(),
		MaxHistory:  cfg.MaxHistoryOrDefault(),
		Logger:      logger,
	}

	var journal *repo.Journal
	if pool != nil {
		journal = repo.NewJournal(pool)
		orchCfg.Journal = journal
	}

	// RabbitMQ
	var mqConn *mq.Connection
	if cfg.RabbitMQ.URL != "" {
		mqConn, err = mq.NewConnection(cfg.RabbitMQ.URL, logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, events are disabled", "error", err)
		} else {
			defer mqConn.Close()
			logger.Debug("RabbitMQ topology declared", "topology", mq.TopologyInfo())
			orchCfg.Notifier = mq.NewNotifier(mq.NewPublisher(mqConn, logger))
			logger.Info("RabbitMQ connected")
		}
	}

	orch := orchestrator.New(orchCfg)
	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("start orchestrator: %w", err)
	}

	if mqConn != nil {
		consumer := mq.NewConsumer(mqConn, logger, mq.ConsumerConfig{
			Queue:    string(mq.QueueRunsRequested),
			Handler:  mq.NewRunRequestHandler(catalog, orch, logger),
			Prefetch: 4,
		})
		go func() {
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("run request consumer stopped", "error", err)
			}
		}()
	}

	// Scheduler
	sched, err := scheduler.New(scheduler.Config{
		Schedules: cfg.Schedules,
		Pipelines: catalog,
		Submitter: orch,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	go sched.Run(ctx)

	// API
	apiCfg := api.Config{
		Runs:            orch,
		Pipelines:       catalog,
		Schedules:       sched,
		WebhookSecret:   cfg.GitHub.WebhookSecret,
		DefaultPipeline: cfg.GitHub.WebhookPipeline,
		Logger:          logger,
	}
	if journal != nil {
		apiCfg.History = journal
	}
	handler := api.NewHandler(apiCfg)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime).Round(time.Second))
	})
	mux.Handle("/metrics", promhttp.Handler())
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.AddrOrDefault(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", server.Addr, "pipelines", catalog.Dir())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Ожидаем сигнал завершения
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		orch.Stop()
		return fmt.Errorf("http server: %w", err)
	}
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeoutOrDefault())
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	// Отменяет активные runs и ждёт их финализации
	orch.Stop()

	logger.Info("shipyard-server stopped")
	return nil
}

// openArtifactStore открывает Artifact Store по конфигурации.
func openArtifactStore(cfg config.Config) (artifact.Store, func(), error) {
	if cfg.ArtifactBackendOrDefault() == config.BackendSQLite {
		store, err := artifact.OpenSQLite(cfg.ArtifactPathOrDefault())
		if err != nil {
			return nil, nil, fmt.Errorf("open artifact store: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	}
	return artifact.NewMemoryStore(), func() {}, nil
}

// releasePublisher выбирает, куда публикуются релизы.
func releasePublisher(cfg config.Config, pool *pgxpool.Pool) (release.Publisher, error) {
	switch cfg.PublisherOrDefault() {
	case config.PublisherPostgres:
		if pool == nil {
			return nil, fmt.Errorf("publisher %q requires database.url", config.PublisherPostgres)
		}
		return repo.NewReleaseRepo(pool), nil
	case config.PublisherGitHub:
		return release.NewGitHubPublisher(release.GitHubConfig{
			Owner: cfg.GitHub.Owner,
			Repo:  cfg.GitHub.Repo,
			Token: cfg.GitHub.Token,
		}), nil
	default:
		return release.NewMemoryPublisher(), nil
	}
}


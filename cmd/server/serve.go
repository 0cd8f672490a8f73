package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/notifyhub/step-engine/internal/analytics"
	"github.com/notifyhub/step-engine/internal/api"
	"github.com/notifyhub/step-engine/internal/cache"
	"github.com/notifyhub/step-engine/internal/config"
	"github.com/notifyhub/step-engine/internal/db"
	"github.com/notifyhub/step-engine/internal/dispatcher"
	"github.com/notifyhub/step-engine/internal/domain"
	"github.com/notifyhub/step-engine/internal/filter"
	"github.com/notifyhub/step-engine/internal/metrics"
	"github.com/notifyhub/step-engine/internal/preference"
	"github.com/notifyhub/step-engine/internal/provider"
	"github.com/notifyhub/step-engine/internal/queue"
	"github.com/notifyhub/step-engine/internal/ratelimiter"
	"github.com/notifyhub/step-engine/internal/repository"
	"github.com/notifyhub/step-engine/internal/service"
	"github.com/notifyhub/step-engine/internal/trace"
	"github.com/notifyhub/step-engine/internal/worker"
)

// handledSteps are the step types the provider handler is registered for.
var handledSteps = []domain.StepType{
	domain.StepSMS,
	domain.StepEmail,
	domain.StepInApp,
	domain.StepChat,
	domain.StepPush,
	domain.StepDigest,
	domain.StepDelay,
}

func newServeCommand(load loader) *cobra.Command {
	var skipMigrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the sweeper and the dispatch workers",
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(c.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger, !skipMigrate)
		},
	}
	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not apply migrations on startup")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger, migrate bool) error {
	// ---- database ----
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if migrate {
		if err := db.Migrate(cfg); err != nil {
			return err
		}
		logger.Info("database migrations applied")
	}

	// ---- metrics ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// ---- repositories ----
	jobRepo := repository.NewPgJobRepository(pool, cfg.ClaimTTL)
	subscriberRepo := repository.NewPgSubscriberRepository(pool)
	templateRepo := repository.NewPgTemplateRepository(pool)
	prefRepo := repository.NewPgPreferenceRepository(pool)
	detailRepo := repository.NewPgExecutionDetailRepository(pool)

	// ---- entity cache ----
	var store cache.Store
	if cfg.RedisURL != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close() //nolint:errcheck
		store = cache.NewRedisStore(rdb, cfg.CacheTTL)
		logger.Info("entity cache backed by redis")
	} else {
		store = cache.NewMemoryStore(cfg.CacheTTL)
		logger.Info("entity cache backed by process memory")
	}
	entities := cache.NewEntityCache(store, subscriberRepo, templateRepo, logger.Named("cache"), m.CacheHooks())

	// ---- analytics ----
	var sink analytics.Sink = analytics.NopSink{}
	if cfg.KafkaBrokers != "" {
		ks := analytics.NewKafkaSink(analytics.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaAnalyticsTopic))
		defer func() {
			if err := ks.Close(); err != nil {
				logger.Error("failed to close analytics writer", zap.Error(err))
			}
		}()
		sink = ks
	}

	// ---- evaluation ----
	recorder := trace.NewRecorder(detailRepo, logger.Named("trace"))
	matcher := filter.NewMatcher(entities)
	resolver := preference.NewResolver(
		entities,
		subscriberRepo,
		preference.NewStoreAggregator(prefRepo),
		recorder,
		logger.Named("preference"),
		m.PreferenceHooks(),
	)

	prov := provider.NewWebhookProvider(cfg.ProviderBaseURL, cfg.ProviderTimeout)
	stepHandler := provider.NewHandler(prov, ratelimiter.New(cfg.RateLimit), jobRepo, logger.Named("provider"), m.OnSent)
	registry := dispatcher.NewRegistry()
	for _, t := range handledSteps {
		registry.Register(t, stepHandler)
	}

	d := dispatcher.New(matcher, resolver, recorder, jobRepo, registry, sink, logger.Named("dispatcher"), m.DispatcherHooks())

	// ---- workers ----
	q := queue.New()
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	workers := worker.NewPool(cfg.Workers, q, jobRepo, d, cfg.DispatchTimeout, logger.Named("worker"), m.WorkerHooks())
	workers.Start(workerCtx)

	sweeper := worker.NewSweeper(jobRepo, q, cfg.SweepInterval, cfg.SweepBatchSize, logger.Named("sweeper"), m.SetQueueDepths)
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sweeper.Run(workerCtx)
	}()

	// ---- HTTP server ----
	stepTypes := make([]string, 0, len(handledSteps))
	for _, t := range registry.Types() {
		stepTypes = append(stepTypes, string(t))
	}
	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: api.NewRouter(api.Deps{
			Jobs:      service.NewJobService(jobRepo, detailRepo, entities, q, logger.Named("service")),
			Queue:     q,
			DB:        pool,
			Gatherer:  reg,
			StepTypes: stepTypes,
			Workers:   workers.Size(),
			Logger:    logger,
		}),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.Int("workers", workers.Size()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// ---- graceful shutdown ----
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error("server error", zap.Error(err))
		}
	}

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Stop the sweeper and the workers, then wait for in-flight jobs.
	cancelWorkers()
	workers.Wait()
	<-sweepDone

	// 3. Hand jobs still waiting in memory back to the sweeper.
	releaseCtx, releaseCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer releaseCancel()
	sweeper.ReleaseQueued(releaseCtx)

	logger.Info("server stopped cleanly")
	return nil
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	apihttp "cineamore/catalogservice/internal/api/http"
	"cineamore/catalogservice/internal/app"
	"cineamore/catalogservice/internal/catalogue"
	"cineamore/catalogservice/internal/metrics"
	"cineamore/catalogservice/internal/providers/tmdb"
	"cineamore/catalogservice/internal/recs"
	mongorepo "cineamore/catalogservice/internal/repository/mongo"
	"cineamore/catalogservice/internal/scheduler"
	"cineamore/catalogservice/internal/search"
	"cineamore/catalogservice/internal/telegram"
	"cineamore/catalogservice/internal/telemetry"
)

const serviceName = "catalogue"

func main() {
	cfg := app.LoadConfig()
	logger := cfg.NewLogger()
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.Init(rootCtx, telemetry.Config{
		ServiceName: serviceName,
		Endpoint:    cfg.OTelEndpoint,
		SampleRatio: cfg.OTelSampleRatio,
	}, logger)
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", serviceName),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.String("mongoDatabase", cfg.MongoDatabase),
		slog.Bool("hasRedis", strings.TrimSpace(cfg.RedisURL) != ""),
		slog.Bool("hasTMDBKey", strings.TrimSpace(cfg.TMDBAPIKey) != ""),
		slog.Bool("hasAdminKey", cfg.AdminAPIKey != ""),
		slog.Bool("telegramEnabled", cfg.TelegramEnabled()),
		slog.Duration("sourceTimeout", cfg.SourceTimeout),
		slog.Duration("cacheTTL", cfg.CacheTTL),
	)

	mongoClient, err := connectMongo(rootCtx, cfg)
	if err != nil {
		logger.Error("mongo connect failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mongoClient.Disconnect(ctx)
	}()

	db := mongoClient.Database(cfg.MongoDatabase)
	movieRepo := mongorepo.NewMovieRepository(db)
	reportRepo := mongorepo.NewReportRepository(db)
	requestRepo := mongorepo.NewRequestRepository(db)
	if err := ensureIndexes(rootCtx, movieRepo, reportRepo, requestRepo); err != nil {
		logger.Warn("mongo index creation failed", slog.String("error", err.Error()))
	}

	redisClient := connectRedis(rootCtx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	tmdbClient := tmdb.NewClient(tmdb.Config{
		APIKey:        cfg.TMDBAPIKey,
		BaseURL:       cfg.TMDBBaseURL,
		Language:      cfg.TMDBLanguage,
		Client:        &http.Client{Timeout: 10 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		Redis:         redisClient,
		CacheTTL:      cfg.TMDBCacheTTL,
		RatePerSecond: cfg.TMDBRatePerSecond,
		Burst:         cfg.TMDBBurst,
	})
	logger.Info("tmdb client initialized", slog.Bool("enabled", tmdbClient.Enabled()))

	searchService := search.NewService(movieRepo, tmdbClient, buildSearchOptions(cfg, logger, redisClient)...)
	catalogueService := catalogue.NewService(movieRepo, reportRepo, requestRepo,
		catalogue.WithLogger(logger),
		catalogue.WithChangeHook(searchService.InvalidateCache),
	)

	serverOpts := []apihttp.ServerOption{
		apihttp.WithLogger(logger),
		apihttp.WithAdminKey(cfg.AdminAPIKey),
		apihttp.WithHealthCheck("mongo", func(ctx context.Context) error {
			return mongoClient.Ping(ctx, nil)
		}),
	}
	if redisClient != nil {
		serverOpts = append(serverOpts, apihttp.WithHealthCheck("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}))
	}

	var recsScheduler *scheduler.Scheduler
	if cfg.TelegramEnabled() {
		job, sched, err := buildRecs(cfg, logger, movieRepo, tmdbClient)
		if err != nil {
			logger.Warn("daily recommendations disabled", slog.String("error", err.Error()))
		} else {
			serverOpts = append(serverOpts, apihttp.WithRecs(job))
			recsScheduler = sched
			recsScheduler.Start()
			logger.Info("daily recommendations scheduled",
				slog.String("time", cfg.RecsDailyTime),
				slog.String("timezone", cfg.RecsTimezone),
				slog.Time("next", recsScheduler.Next()),
			)
		}
	} else {
		logger.Info("telegram not configured, daily recommendations disabled")
	}

	handler := apihttp.NewServer(searchService, catalogueService, serverOpts...).Handler()
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("catalogue service started", slog.String("addr", cfg.HTTPAddr))

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if recsScheduler != nil {
		recsScheduler.Stop(shutdownCtx)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("catalogue service stopped")
}

func connectMongo(ctx context.Context, cfg app.Config) (*mongo.Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongorepo.Connect(connectCtx, cfg.MongoURI, options.Client().SetMonitor(otelmongo.NewMonitor()))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return client, nil
}

type indexer interface {
	EnsureIndexes(ctx context.Context) error
}

func ensureIndexes(ctx context.Context, repos ...indexer) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	group, groupCtx := errgroup.WithContext(ctx)
	for _, repo := range repos {
		group.Go(func() error {
			return repo.EnsureIndexes(groupCtx)
		})
	}
	return group.Wait()
}

// connectRedis returns nil when Redis is not configured or unreachable; the
// service then runs on in-memory caches only.
func connectRedis(ctx context.Context, cfg app.Config, logger *slog.Logger) *redis.Client {
	redisURL := strings.TrimSpace(cfg.RedisURL)
	if redisURL == "" {
		return nil
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid redis url, using in-memory cache only", slog.String("error", err.Error()))
		return nil
	}
	client := redis.NewClient(redisOpts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis not reachable, using in-memory cache only", slog.String("error", err.Error()))
		_ = client.Close()
		return nil
	}
	logger.Info("redis connected", slog.String("addr", redisOpts.Addr))
	return client
}

func buildSearchOptions(cfg app.Config, logger *slog.Logger, redisClient *redis.Client) []search.ServiceOption {
	opts := []search.ServiceOption{
		search.WithLogger(logger),
		search.WithSourceTimeout(cfg.SourceTimeout),
	}
	if cfg.CacheDisabled {
		return append(opts, search.WithCacheDisabled(true))
	}
	if cfg.CacheTTL > 0 {
		opts = append(opts, search.WithCacheTTL(cfg.CacheTTL))
	}
	if redisClient != nil {
		opts = append(opts, search.WithRedisCache(search.NewRedisCacheBackend(redisClient)))
	}
	return opts
}

func buildRecs(cfg app.Config, logger *slog.Logger, movies recs.MovieSampler, trending recs.TrendingSource) (*recs.Job, *scheduler.Scheduler, error) {
	bot, err := telegram.New(cfg.TelegramBotToken, cfg.TelegramChatID, telegram.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	job := recs.NewJob(movies, trending, bot,
		recs.WithLogger(logger),
		recs.WithSiteURL(cfg.PublicSiteURL),
		recs.WithTimeout(cfg.RecsTimeout),
	)
	sched, err := scheduler.New(cfg.RecsDailyTime, cfg.RecsTimezone, job.RunScheduled, logger)
	if err != nil {
		return nil, nil, err
	}
	return job, sched, nil
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"viddownloader/internal/adapter/repo"
	"viddownloader/internal/domain"
	"viddownloader/internal/http/handlers"
	"viddownloader/internal/http/httpapi"
	"viddownloader/internal/infra"
	"viddownloader/internal/providers/ytdlp"
	"viddownloader/internal/service"
	"viddownloader/internal/storage"
	"viddownloader/internal/worker"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewFileStore(cfg.DownloadDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("prepare download directory")
	}

	analyticsRepo, closeDB := analyticsRepository(ctx, cfg, logger)
	defer closeDB()
	analytics := service.NewAnalytics(analyticsRepo, logger)
	jobs := repo.NewJobRepository(cfg.JobTTL)

	downloader := ytdlp.NewClient(ytdlp.Config{
		BinaryPath:      cfg.YtDlpPath,
		MetadataTimeout: cfg.MetadataTimeout,
		DownloadTimeout: cfg.DownloadTimeout,
		Logger:          logger,
	})
	queue := worker.NewQueue(worker.QueueConfig{
		Jobs:         jobs,
		Downloader:   downloader,
		Artifacts:    store,
		Recorder:     analytics,
		Logger:       logger,
		MaxPending:   cfg.QueueMaxPending,
		ProgressStep: cfg.ProgressStep,
		RoutePrefix:  cfg.DownloadRoutePrefix,
	})
	reaper := worker.NewReaper(worker.ReaperConfig{
		Jobs:      jobs,
		Artifacts: store,
		Recorder:  analytics,
		Interval:  cfg.ReaperInterval,
		Logger:    logger,
	})

	downloads := service.NewDownloads(jobs, queue, store, analytics, logger)
	app := handlers.NewApp(downloads, queue, analytics, logger)
	router := httpapi.NewRouter(app, httpapi.RouterConfig{
		AllowedOrigins:      cfg.CORSAllowedOrigins,
		RateLimitPerMinute:  cfg.RateLimitPerMin,
		DownloadRoutePrefix: cfg.DownloadRoutePrefix,
		Logger:              logger,
	})
	server := infra.NewHTTPServer(cfg, router, logger)

	logger.Info().
		Str("addr", server.Addr()).
		Str("download_dir", store.BasePath()).
		Dur("job_ttl", cfg.JobTTL).
		Dur("reaper_interval", cfg.ReaperInterval).
		Msg("starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })
	g.Go(func() error { return queue.Run(gctx) })
	g.Go(func() error { return reaper.Run(gctx) })

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("service stopped with error")
	}
	logger.Info().Msg("service stopped")
}

// analyticsRepository persists counters in Postgres when DATABASE_URL is set
// and keeps them in memory otherwise.
func analyticsRepository(ctx context.Context, cfg *infra.Config, logger infra.Logger) (domain.AnalyticsRepository, func()) {
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	if pool == nil {
		logger.Info().Msg("DATABASE_URL not set, keeping counters in memory")
		return repo.NewMemoryAnalyticsRepository(), func() {}
	}

	pg := repo.NewAnalyticsRepository(infra.NewSQLRunner(pool, logger))
	if err := pg.EnsureSchema(ctx); err != nil {
		pool.Close()
		logger.Fatal().Err(err).Msg("prepare analytics schema")
	}
	return pg, pool.Close
}

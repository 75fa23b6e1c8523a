// Package main wires together the price crawler service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/shelfwatch/price-crawler/internal/api"
	"github.com/shelfwatch/price-crawler/internal/catalog"
	"github.com/shelfwatch/price-crawler/internal/clock/system"
	"github.com/shelfwatch/price-crawler/internal/config"
	"github.com/shelfwatch/price-crawler/internal/extract"
	"github.com/shelfwatch/price-crawler/internal/fetch"
	"github.com/shelfwatch/price-crawler/internal/id/uuid"
	"github.com/shelfwatch/price-crawler/internal/logging"
	"github.com/shelfwatch/price-crawler/internal/money"
	"github.com/shelfwatch/price-crawler/internal/orchestrator"
	"github.com/shelfwatch/price-crawler/internal/reconcile"
	"github.com/shelfwatch/price-crawler/internal/renderer"
	"github.com/shelfwatch/price-crawler/internal/robots"
	"github.com/shelfwatch/price-crawler/internal/sitemap"
	"github.com/shelfwatch/price-crawler/internal/store/memory"
	"github.com/shelfwatch/price-crawler/internal/store/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store init failed", zap.Error(err))
	}
	defer closeStore()

	clock := system.New()
	ids := uuid.NewUUIDGenerator()

	parser, err := money.NewParser(cfg.Crawler.Locale)
	if err != nil {
		logger.Fatal("price parser init failed", zap.String("locale", cfg.Crawler.Locale), zap.Error(err))
	}
	heuristic := extract.NewHeuristicalStrategy(parser, logger.Named("extract"))
	generator := extract.NewGenerator(extract.ClassAligner{}, clock)
	reconciler := reconcile.NewReconciler(store, store, ids, logger.Named("reconcile"))
	miner := reconcile.NewMiner(heuristic, generator, reconciler, store, cfg.Crawler.DetailWorkers, logger.Named("miner"))

	details := fetch.NewDetailFetcher(fetch.Config{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.Sitemap.Timeout(),
		Delay:     cfg.Crawler.DefaultDelay(),
	}, logger.Named("fetch"))

	robotsClient := robots.NewClient(robots.Defaults{
		UserAgent:  cfg.Crawler.UserAgent,
		CrawlDelay: cfg.Crawler.DefaultDelay(),
	}, logger.Named("robots"))

	resolver := sitemap.NewResolver(sitemap.Config{
		UserAgent:    cfg.Crawler.UserAgent,
		Timeout:      cfg.Sitemap.Timeout(),
		MaxRedirects: cfg.Sitemap.MaxRedirects,
		MaxNodes:     cfg.Sitemap.MaxNodes,
	}, store, clock, logger.Named("sitemap"))

	newRenderer := func(ctx context.Context) (catalog.Renderer, error) {
		return renderer.NewSession(renderer.Config{
			UserAgent:         cfg.Crawler.UserAgent,
			NavigationTimeout: cfg.Browser.NavTimeout(),
			Headless:          cfg.Browser.Headless,
		}, logger.Named("renderer"))
	}

	engine := orchestrator.New(
		store,
		robotsClient,
		orchestrator.NewSitemapStrategy(resolver, logger.Named("sitemap")),
		orchestrator.NewPaginationStrategy(
			newRenderer,
			store,
			miner,
			details,
			clock,
			cfg.Crawler.Cookies,
			cfg.Crawler.ClickRetries,
			logger.Named("traverse"),
		),
		ids,
		clock,
		orchestrator.Config{
			Workers:   cfg.Crawler.Workers,
			QueueSize: cfg.Crawler.QueueDepth,
		},
		logger.Named("orchestrator"),
	)

	apiServer := api.NewServer(engine, store, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("crawl engine started")
		engine.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// openStore selects the Postgres store when a DSN is configured, the
// in-memory store otherwise.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (catalog.Store, func(), error) {
	if cfg.DB.DSN == "" {
		logger.Warn("no database configured, using in-memory store")
		return memory.New(), func() {}, nil
	}
	pg, err := postgres.New(ctx, postgres.Config{
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: cfg.DB.ConnLifetime(),
	})
	if err != nil {
		return nil, nil, err
	}
	return pg, pg.Close, nil
}

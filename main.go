package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"uniswap-v2-crawler/boff"
	"uniswap-v2-crawler/config"
	"uniswap-v2-crawler/crawler"
	"uniswap-v2-crawler/database"
	"uniswap-v2-crawler/logger"
	"uniswap-v2-crawler/metrics"
	"uniswap-v2-crawler/subgraph"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

func main() {
	flag.Parse()

	if err := run(context.Background()); err != nil {
		logger.Error("Fatal error: %s", err)
		logger.SyncFileLogger()
		os.Exit(1)
	}
	logger.SyncFileLogger()
}

func run(ctx context.Context) error {
	cfg, err := config.BuildConfig()
	if err != nil {
		fmt.Println("Config error: ", err)
		return err
	}
	config.GlobalConfigCallback.Call(cfg)
	logger.Info(
		"Running with configuration: subgraph: %s, database: %s, blocks: %d-%d",
		cfg.Subgraph.URL, databaseName(&cfg.DB), cfg.Crawler.FromBlock, cfg.Crawler.ToBlock,
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := boff.RetryWithMaxElapsed(ctx, func() (*gorm.DB, error) {
		return database.ConnectAndInitialize(ctx, &cfg.DB)
	}, "ConnectAndInitialize")
	if err != nil {
		return errors.Wrap(err, "Database connect and initialize error")
	}

	collector := metrics.New()
	c := crawler.CreateCrawler(cfg, db, subgraph.NewClient(cfg.Subgraph), crawler.WithMetrics(collector))

	return runCrawler(ctx, cfg, c, collector)
}

func runCrawler(ctx context.Context, cfg *config.Config, c *crawler.Crawler, collector *metrics.Collector) error {
	if cfg.Metrics.ListenAddress == "" {
		_, err := c.Run(ctx)
		return err
	}

	// the metrics server lives until the crawl is over
	serverCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return collector.Serve(serverCtx, cfg.Metrics.ListenAddress)
	})
	eg.Go(func() error {
		defer stopServer()
		_, err := c.Run(ctx)
		return err
	})

	return eg.Wait()
}

func databaseName(cfg *config.DBConfig) string {
	if cfg.Driver == database.DriverSQLite || cfg.Driver == "" {
		return cfg.Path
	}
	return fmt.Sprintf("%s://%s:%d/%s", cfg.Driver, cfg.Host, cfg.Port, cfg.Database)
}

package crawler

import (
	"context"
	"time"
	"uniswap-v2-crawler/boff"
	"uniswap-v2-crawler/config"
	"uniswap-v2-crawler/database"
	"uniswap-v2-crawler/logger"
	"uniswap-v2-crawler/metrics"
	"uniswap-v2-crawler/subgraph"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Report holds the rows created by a run, per collection.
type Report map[string]WriteStats

type Crawler struct {
	db       *gorm.DB
	client   QueryClient
	builder  QueryBuilder
	params   config.CrawlerConfig
	policy   boff.Policy
	metrics  *metrics.Collector
	progress ProgressReporter
}

type Option func(*Crawler)

func WithBuilder(builder QueryBuilder) Option {
	return func(c *Crawler) { c.builder = builder }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(c *Crawler) { c.metrics = m }
}

func WithProgressReporter(p ProgressReporter) Option {
	return func(c *Crawler) { c.progress = p }
}

func WithRetryPolicy(policy boff.Policy) Option {
	return func(c *Crawler) { c.policy = policy }
}

func CreateCrawler(cfg *config.Config, db *gorm.DB, client QueryClient, opts ...Option) *Crawler {
	c := &Crawler{
		db:     db,
		client: client,
		params: cfg.Crawler,
		policy: boff.PolicyFromConfig(cfg.Retry),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.builder == nil {
		c.builder = subgraph.NewBuilder()
	}
	if c.metrics == nil {
		c.metrics = metrics.New()
	}
	if c.progress == nil {
		c.progress = &logProgress{metrics: c.metrics}
	}
	if len(c.params.Collections) == 0 {
		c.params.Collections = []string{subgraph.Pairs, subgraph.Transactions}
	}
	if c.policy.Unbounded() {
		logger.Warn("Remote queries are retried without limit")
	}

	return c
}

func (c *Crawler) blockRange() subgraph.BlockRange {
	return subgraph.BlockRange{From: c.params.FromBlock, To: c.params.ToBlock}
}

// Run crawls pair snapshots and then transactions over the configured block
// range. It stops at the first error; records written before it stay stored
// and a new run skips them.
func (c *Crawler) Run(ctx context.Context) (Report, error) {
	logger.Info("Crawling blocks %d to %d", c.params.FromBlock, c.params.ToBlock)
	startTime := time.Now()

	writer := NewIngestionWriter(c.db, NewEntityResolver())
	report := make(Report)

	for _, collection := range c.params.Collections {
		var stats WriteStats
		var err error

		switch collection {
		case subgraph.Pairs:
			fetcher := NewPaginatingFetcher[*subgraph.PairSnapshot](collection, c.client, c.builder, c.policy, c.metrics)
			stats, err = crawl(ctx, c, fetcher, writer.WritePairSnapshot)
		case subgraph.Transactions:
			fetcher := NewPaginatingFetcher[*subgraph.Transaction](collection, c.client, c.builder, c.policy, c.metrics)
			stats, err = crawl(ctx, c, fetcher, writer.WriteTransaction)
		default:
			return report, errors.Errorf("Run: unknown collection %q", collection)
		}

		report[collection] = stats
		if err != nil {
			return report, errors.Wrap(err, "Run")
		}
	}

	logger.Info("Crawling finished in %s", time.Since(startTime).Round(time.Millisecond))
	return report, nil
}

func crawl[T Record](
	ctx context.Context, c *Crawler, fetcher *PaginatingFetcher[T], write func(context.Context, T) (WriteStats, error),
) (WriteStats, error) {
	collection := fetcher.Collection()
	blocks := c.blockRange()
	logger.Info("Starting to crawl %s", collection)

	var stats WriteStats
	var opts []FetchOption
	state := &database.CrawlState{Collection: collection, FromBlock: blocks.From, ToBlock: blocks.To}

	if c.params.Resume {
		stored, err := database.FetchCrawlState(c.db, collection, blocks.From, blocks.To)
		if err != nil {
			return stats, err
		}
		if stored != nil {
			logger.Info("Resuming %s after %s, %d already processed", collection, stored.Cursor, stored.Processed)
			state = stored
			opts = append(opts, WithStartCursor(stored.Cursor))
		}
	}

	for page, err := range fetcher.FetchAll(ctx, blocks, opts...) {
		if err != nil {
			return stats, err
		}

		var pageStats WriteStats
		for _, record := range page.Records {
			recordStats, err := write(ctx, record)
			if err != nil {
				return stats, err
			}
			pageStats.Add(recordStats)
		}
		stats.Add(pageStats)

		for entity, n := range pageStats.byEntity() {
			c.metrics.ObserveRowsCreated(entity, n)
		}

		if c.params.Resume {
			state.UpdateCursor(page.Cursor, page.Processed)
			if err := database.SaveCrawlState(c.db, state); err != nil {
				return stats, err
			}
		}

		c.progress.Report(collection, page.Processed, page.Total, page.Progress(), len(page.Records))
	}

	if c.params.Resume {
		if err := database.ClearCrawlState(c.db, collection, blocks.From, blocks.To); err != nil {
			return stats, err
		}
	}

	c.progress.Done(collection)
	logger.Info("Finished crawling %s: created %s", collection, stats)
	return stats, nil
}

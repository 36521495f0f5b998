package crawler

import (
	"context"
	"net/http"
	"testing"
	"time"
	"uniswap-v2-crawler/config"
	"uniswap-v2-crawler/database"
	"uniswap-v2-crawler/subgraph"
	crawler_testing "uniswap-v2-crawler/testing"

	"github.com/bradleyjkemp/cupaloy/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordedProgress struct {
	fractions map[string][]float64
	processed map[string][]int
	done      []string
	onReport  func(collection string)
}

func newRecordedProgress() *recordedProgress {
	return &recordedProgress{
		fractions: make(map[string][]float64),
		processed: make(map[string][]int),
	}
}

func (p *recordedProgress) Report(collection string, processed, _ int, fraction float64, _ int) {
	p.fractions[collection] = append(p.fractions[collection], fraction)
	p.processed[collection] = append(p.processed[collection], processed)
	if p.onReport != nil {
		p.onReport(collection)
	}
}

func (p *recordedProgress) Done(collection string) {
	p.done = append(p.done, collection)
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.ConnectAndInitializeTestDB(context.Background(), database.MemoryTestConfig(t.Name()), true)
	require.NoError(t, err, "Could not connect to the test database")

	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func testConfig(from, to uint64) *config.Config {
	return &config.Config{
		Crawler: config.CrawlerConfig{FromBlock: from, ToBlock: to},
		Retry: config.RetryConfig{
			InitialIntervalMillis: 1,
			MaxIntervalMillis:     5,
			Multiplier:            2,
			MaxAttempts:           4,
		},
	}
}

func testClient(mock *crawler_testing.MockSubgraph) *subgraph.Client {
	return subgraph.NewClient(config.SubgraphConfig{URL: mock.URL(), TimeoutMillis: 5000})
}

func countRows(t *testing.T, db *gorm.DB) map[string]int64 {
	t.Helper()
	counts, err := database.TableCounts(db)
	require.NoError(t, err)
	return counts
}

// transactions returns n transactions at block, each with one mint, burn
// and swap on one of three pairs.
func transactions(n int, block uint64) []subgraph.Transaction {
	out := make([]subgraph.Transaction, n)
	for i := range out {
		tx := crawler_testing.Transaction(i, block)
		pair := crawler_testing.Pair(i%3, 1, 2+i%3)
		tx.Mints = append(tx.Mints, crawler_testing.Mint(tx.ID, 0, pair))
		tx.Burns = append(tx.Burns, crawler_testing.Burn(tx.ID, 1, pair))
		tx.Swaps = append(tx.Swaps, crawler_testing.Swap(tx.ID, 2, pair))
		out[i] = tx
	}
	return out
}

func TestCrawlerRun(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	mock := crawler_testing.NewMockSubgraph()
	defer mock.Close()
	mock.AddPairs(crawler_testing.PairSnapshots(25, 150)...)
	mock.AddPairs(crawler_testing.PairSnapshot(crawler_testing.Pair(500, 1, 2), 99))
	mock.AddTransactions(transactions(12, 120)...)
	mock.AddTransactions(crawler_testing.Transaction(999, 201))

	db := testDB(t)
	progress := newRecordedProgress()
	c := CreateCrawler(testConfig(100, 200), db, testClient(mock), WithProgressReporter(progress))

	report, err := c.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 25, report[subgraph.Pairs].PairSnapshots)
	assert.Equal(t, 25, report[subgraph.Pairs].Pairs)
	assert.Equal(t, 17, report[subgraph.Pairs].Tokens)
	assert.Equal(t, 12, report[subgraph.Transactions].Transactions)
	assert.Equal(t, 12, report[subgraph.Transactions].Mints)
	assert.Equal(t, 12, report[subgraph.Transactions].Burns)
	assert.Equal(t, 12, report[subgraph.Transactions].Swaps)
	assert.Equal(t, []string{subgraph.Pairs, subgraph.Transactions}, progress.done)

	// pairs and transactions requests are never interleaved
	requests := mock.Requests()
	require.NotEmpty(t, requests)
	seenTransactions := false
	for _, req := range requests {
		if req.Collection == subgraph.Transactions {
			seenTransactions = true
		}
		if seenTransactions {
			assert.Equal(t, subgraph.Transactions, req.Collection)
		}
		assert.Equal(t, uint64(100), req.From)
		assert.Equal(t, uint64(200), req.To)
		assert.Equal(t, subgraph.PageSize, req.First)
	}

	var snapshots []database.PairSnapshot
	require.NoError(t, db.Order("id ASC").Find(&snapshots).Error)
	var swaps []database.Swap
	require.NoError(t, db.Order("id ASC").Find(&swaps).Error)

	cupaloy.SnapshotT(t,
		crawler_testing.FormatCounts(countRows(t, db)),
		crawler_testing.FormatPairSnapshots(snapshots[:2]),
		crawler_testing.FormatSwaps(swaps[:2]),
	)
}

func TestCrawlerIdempotent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	mock := crawler_testing.NewMockSubgraph()
	defer mock.Close()
	mock.AddPairs(crawler_testing.PairSnapshots(30, 150)...)
	mock.AddTransactions(transactions(20, 150)...)

	db := testDB(t)
	c := CreateCrawler(testConfig(100, 200), db, testClient(mock), WithProgressReporter(newRecordedProgress()))

	first, err := c.Run(ctx)
	require.NoError(t, err)
	countsAfterFirst := countRows(t, db)

	second, err := c.Run(ctx)
	require.NoError(t, err)

	assert.Greater(t, first[subgraph.Pairs].Total()+first[subgraph.Transactions].Total(), 0)
	assert.Zero(t, second[subgraph.Pairs].Total())
	assert.Zero(t, second[subgraph.Transactions].Total())
	assert.Equal(t, countsAfterFirst, countRows(t, db))
}

func TestCrawlerOpaqueIDs(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pair := &subgraph.Pair{
		ID:     "pair-a",
		Token0: &subgraph.Token{ID: "tok-a", Symbol: "A"},
		Token1: &subgraph.Token{ID: "tok-b", Symbol: "B"},
	}
	tx := crawler_testing.Transaction(0, 150)
	tx.ID = "tx-1"
	tx.Swaps = append(tx.Swaps, crawler_testing.Swap(tx.ID, 0, pair))

	mock := crawler_testing.NewMockSubgraph()
	defer mock.Close()
	mock.AddPairs(crawler_testing.PairSnapshot(pair, 150))
	mock.AddTransactions(tx)

	db := testDB(t)
	report, err := CreateCrawler(testConfig(100, 200), db, testClient(mock), WithProgressReporter(newRecordedProgress())).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report[subgraph.Pairs].PairSnapshots)
	assert.Equal(t, 1, report[subgraph.Transactions].Swaps)

	stored, err := database.FetchByID[database.Pair](db, "pair-a")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "tok-a", stored.Token0ID)
	assert.Equal(t, "tok-b", stored.Token1ID)

	swap, err := database.FetchByID[database.Swap](db, "tx-1-0")
	require.NoError(t, err)
	require.NotNil(t, swap)
	assert.Equal(t, "tx-1", swap.TransactionID)
	assert.Equal(t, "pair-a", swap.PairID)

	snapshot, err := database.FetchByID[database.PairSnapshot](db, "pair-a150")
	require.NoError(t, err)
	assert.NotNil(t, snapshot)
}

func TestCrawlerProgress(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	mock := crawler_testing.NewMockSubgraph()
	defer mock.Close()
	mock.AddPairs(crawler_testing.PairSnapshots(2500, 150)...)

	db := testDB(t)
	cfg := testConfig(100, 200)
	cfg.Crawler.Collections = []string{subgraph.Pairs}
	progress := newRecordedProgress()
	c := CreateCrawler(cfg, db, testClient(mock), WithProgressReporter(progress))

	report, err := c.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2500, report[subgraph.Pairs].PairSnapshots)

	fractions := progress.fractions[subgraph.Pairs]
	require.Len(t, fractions, 3)
	assert.InDelta(t, 0.4, fractions[0], 1e-9)
	assert.InDelta(t, 0.8, fractions[1], 1e-9)
	assert.InDelta(t, 1.0, fractions[2], 1e-9)

	// counting pass: 3 pages and the empty one, then the same for the data pass
	requests := mock.Requests()
	require.Len(t, requests, 8)
	cursors := []string{"", crawler_testing.Address(1_000_999), crawler_testing.Address(1_001_999), crawler_testing.Address(1_002_499)}
	for i, req := range requests {
		if i < 4 {
			assert.Equal(t, subgraph.ShapeIDs, req.Shape)
		} else {
			assert.Equal(t, subgraph.ShapeFull, req.Shape)
		}
		assert.Equal(t, cursors[i%4], req.Cursor)
	}

	assert.Equal(t, int64(2500), countRows(t, db)["pair_snapshots"])
}

func TestCrawlerEmptyRange(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	mock := crawler_testing.NewMockSubgraph()
	defer mock.Close()
	mock.AddPairs(crawler_testing.PairSnapshots(5, 150)...)

	db := testDB(t)
	progress := newRecordedProgress()
	c := CreateCrawler(testConfig(300, 400), db, testClient(mock), WithProgressReporter(progress))

	report, err := c.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, report[subgraph.Pairs].Total())
	assert.Empty(t, progress.fractions)
	assert.Len(t, mock.Requests(), 4)
}

func TestCrawlerSnapshotVersions(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	mock := crawler_testing.NewMockSubgraph()
	defer mock.Close()
	pair := crawler_testing.Pair(1, 1, 2)
	mock.AddPairs(crawler_testing.PairSnapshot(pair, 150))

	db := testDB(t)
	cfg := testConfig(100, 300)
	cfg.Crawler.Collections = []string{subgraph.Pairs}

	_, err := CreateCrawler(cfg, db, testClient(mock), WithProgressReporter(newRecordedProgress())).Run(ctx)
	require.NoError(t, err)

	mock.AddPairs(crawler_testing.PairSnapshot(pair, 250))
	report, err := CreateCrawler(cfg, db, testClient(mock), WithProgressReporter(newRecordedProgress())).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, WriteStats{PairSnapshots: 1}, report[subgraph.Pairs])

	var snapshots []database.PairSnapshot
	require.NoError(t, db.Order("id ASC").Find(&snapshots).Error)
	require.Len(t, snapshots, 2)
	assert.Equal(t, pair.ID+"150", snapshots[0].ID)
	assert.Equal(t, pair.ID+"250", snapshots[1].ID)
	assert.Equal(t, int64(1), countRows(t, db)["pairs"])
}

func TestCrawlerDivergence(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	mock := crawler_testing.NewMockSubgraph()
	defer mock.Close()
	mock.AddPairs(crawler_testing.PairSnapshots(10, 150)...)

	added := false
	mock.BeforeResponse = func(m *crawler_testing.MockSubgraph, req crawler_testing.Request) {
		if !added && req.Shape == subgraph.ShapeFull {
			added = true
			m.AddPairs(crawler_testing.PairSnapshots(15, 150)...)
		}
	}

	db := testDB(t)
	cfg := testConfig(100, 200)
	cfg.Crawler.Collections = []string{subgraph.Pairs}
	progress := newRecordedProgress()

	report, err := CreateCrawler(cfg, db, testClient(mock), WithProgressReporter(progress)).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 15, report[subgraph.Pairs].PairSnapshots)

	fractions := progress.fractions[subgraph.Pairs]
	require.Len(t, fractions, 1)
	assert.InDelta(t, 1.5, fractions[0], 1e-9)
}

func TestCrawlerRetry(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	mock := crawler_testing.NewMockSubgraph()
	defer mock.Close()
	mock.AddTransactions(transactions(3, 150)...)
	mock.FailNext(2, http.StatusServiceUnavailable)
	mock.FailNextWithErrors("store error")

	db := testDB(t)
	cfg := testConfig(100, 200)
	cfg.Crawler.Collections = []string{subgraph.Transactions}

	report, err := CreateCrawler(cfg, db, testClient(mock), WithProgressReporter(newRecordedProgress())).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report[subgraph.Transactions].Transactions)
}

func TestCrawlerRetriesExhausted(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	mock := crawler_testing.NewMockSubgraph()
	defer mock.Close()
	mock.AddPairs(crawler_testing.PairSnapshots(3, 150)...)
	mock.FailNext(10, http.StatusInternalServerError)

	db := testDB(t)
	_, err := CreateCrawler(testConfig(100, 200), db, testClient(mock), WithProgressReporter(newRecordedProgress())).Run(ctx)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, subgraph.ErrRemoteQuery)
	assert.Empty(t, mock.Requests())
	assert.Zero(t, countRows(t, db)["pair_snapshots"])
}

func TestCrawlerMalformedRecord(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	mock := crawler_testing.NewMockSubgraph()
	defer mock.Close()
	mock.AddPairs(crawler_testing.PairSnapshots(2, 150)...)
	mock.AddRaw(subgraph.Pairs, crawler_testing.Address(1_000_005), 150,
		[]byte(`{"id":"`+crawler_testing.Address(1_000_005)+`","token0":null}`))

	db := testDB(t)
	_, err := CreateCrawler(testConfig(100, 200), db, testClient(mock), WithProgressReporter(newRecordedProgress())).Run(ctx)

	require.Error(t, err)
	assert.ErrorIs(t, err, subgraph.ErrMalformedRecord)
	assert.NotErrorIs(t, err, ErrRetriesExhausted)

	full := 0
	for _, req := range mock.Requests() {
		if req.Shape == subgraph.ShapeFull {
			full++
		}
	}
	assert.Equal(t, 1, full, "malformed records are not retried")
	assert.Zero(t, countRows(t, db)["pair_snapshots"])
}

func TestCrawlerResume(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	mock := crawler_testing.NewMockSubgraph()
	defer mock.Close()
	mock.AddPairs(crawler_testing.PairSnapshots(2500, 150)...)

	db := testDB(t)
	cfg := testConfig(100, 200)
	cfg.Crawler.Collections = []string{subgraph.Pairs}
	cfg.Crawler.Resume = true

	runCtx, stop := context.WithCancel(ctx)
	interrupted := newRecordedProgress()
	interrupted.onReport = func(string) { stop() }

	_, err := CreateCrawler(cfg, db, testClient(mock), WithProgressReporter(interrupted)).Run(runCtx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(1000), countRows(t, db)["pair_snapshots"])

	state, err := database.FetchCrawlState(db, subgraph.Pairs, 100, 200)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, crawler_testing.Address(1_000_999), state.Cursor)
	assert.Equal(t, uint64(1000), state.Processed)

	resumed := newRecordedProgress()
	before := len(mock.Requests())
	report, err := CreateCrawler(cfg, db, testClient(mock), WithProgressReporter(resumed)).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1500, report[subgraph.Pairs].PairSnapshots)
	require.Len(t, resumed.fractions[subgraph.Pairs], 2)
	assert.InDelta(t, 0.8, resumed.fractions[subgraph.Pairs][0], 1e-9)
	assert.InDelta(t, 1.0, resumed.fractions[subgraph.Pairs][1], 1e-9)

	var firstFull *crawler_testing.Request
	for _, req := range mock.Requests()[before:] {
		if req.Shape == subgraph.ShapeFull {
			firstFull = &req
			break
		}
	}
	require.NotNil(t, firstFull)
	assert.Equal(t, crawler_testing.Address(1_000_999), firstFull.Cursor)

	state, err = database.FetchCrawlState(db, subgraph.Pairs, 100, 200)
	require.NoError(t, err)
	assert.Nil(t, state, "checkpoint is cleared when the pass completes")
	assert.Equal(t, int64(2500), countRows(t, db)["pair_snapshots"])
}

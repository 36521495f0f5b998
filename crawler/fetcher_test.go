package crawler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
	"uniswap-v2-crawler/boff"
	"uniswap-v2-crawler/config"
	"uniswap-v2-crawler/subgraph"
	crawler_testing "uniswap-v2-crawler/testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPolicy = boff.Policy{
	InitialInterval: time.Millisecond,
	MaxInterval:     5 * time.Millisecond,
	MaxAttempts:     3,
}

func TestFetchAllPages(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mock := crawler_testing.NewMockSubgraph()
	defer mock.Close()
	mock.AddPairs(crawler_testing.PairSnapshots(7, 150)...)

	builder := &subgraph.Builder{PageSize: 3}
	fetcher := NewPaginatingFetcher[*subgraph.PairSnapshot](subgraph.Pairs, testClient(mock), builder, testPolicy, nil)

	var ids []string
	var processed []int
	for page, err := range fetcher.FetchAll(ctx, subgraph.BlockRange{From: 100, To: 200}) {
		require.NoError(t, err)
		assert.Equal(t, 7, page.Total)
		assert.Equal(t, page.Records[len(page.Records)-1].ID, page.Cursor)
		for _, record := range page.Records {
			ids = append(ids, record.ID)
		}
		processed = append(processed, page.Processed)
	}

	require.Len(t, ids, 7)
	for i := range ids {
		assert.Equal(t, crawler_testing.Address(1_000_000+i), ids[i])
	}
	assert.Equal(t, []int{3, 6, 7}, processed)
}

func TestFetchAllStopEarly(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mock := crawler_testing.NewMockSubgraph()
	defer mock.Close()
	mock.AddTransactions(transactions(5, 150)...)

	builder := &subgraph.Builder{PageSize: 2}
	fetcher := NewPaginatingFetcher[*subgraph.Transaction](subgraph.Transactions, testClient(mock), builder, testPolicy, nil)

	pages := 0
	for page, err := range fetcher.FetchAll(ctx, subgraph.BlockRange{From: 100, To: 200}) {
		require.NoError(t, err)
		require.Len(t, page.Records[0].Mints, 1)
		pages++
		break
	}
	assert.Equal(t, 1, pages)

	full := 0
	for _, req := range mock.Requests() {
		if req.Shape == subgraph.ShapeFull {
			full++
		}
	}
	assert.Equal(t, 1, full)
}

func TestCountWithStartCursor(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mock := crawler_testing.NewMockSubgraph()
	defer mock.Close()
	mock.AddPairs(crawler_testing.PairSnapshots(10, 150)...)

	builder := &subgraph.Builder{PageSize: 4}
	fetcher := NewPaginatingFetcher[*subgraph.PairSnapshot](subgraph.Pairs, testClient(mock), builder, testPolicy, nil)

	total, skipped, err := fetcher.Count(ctx, subgraph.BlockRange{From: 100, To: 200}, crawler_testing.Address(1_000_005))
	require.NoError(t, err)
	assert.Equal(t, 10, total)
	assert.Equal(t, 6, skipped)

	var first *Page[*subgraph.PairSnapshot]
	for page, err := range fetcher.FetchAll(ctx, subgraph.BlockRange{From: 100, To: 200}, WithStartCursor(crawler_testing.Address(1_000_005))) {
		require.NoError(t, err)
		if first == nil {
			first = page
		}
	}
	require.NotNil(t, first)
	assert.Equal(t, crawler_testing.Address(1_000_006), first.Records[0].ID)
	assert.Equal(t, 10, first.Processed)
	assert.InDelta(t, 1.0, first.Progress(), 1e-9)
}

func TestFetchRetryThenSuccess(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mock := crawler_testing.NewMockSubgraph()
	defer mock.Close()
	mock.AddPairs(crawler_testing.PairSnapshots(2, 150)...)
	mock.FailNext(2, http.StatusTooManyRequests)

	notified := 0
	policy := testPolicy
	policy.Notify = func(error, time.Duration) { notified++ }

	fetcher := NewPaginatingFetcher[*subgraph.PairSnapshot](subgraph.Pairs, testClient(mock), subgraph.NewBuilder(), policy, nil)
	total, _, err := fetcher.Count(ctx, subgraph.BlockRange{From: 100, To: 200}, "")
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, 2, notified)
}

func TestFetchMalformedPage(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		_, _ = w.Write([]byte(`{"data":{"pairs":{"id":"x"}}}`))
	}))
	defer server.Close()

	policy := testPolicy
	policy.MaxAttempts = 5
	client := subgraph.NewClient(config.SubgraphConfig{URL: server.URL})
	fetcher := NewPaginatingFetcher[*subgraph.PairSnapshot](subgraph.Pairs, client, subgraph.NewBuilder(), policy, nil)

	_, _, err := fetcher.Count(ctx, subgraph.BlockRange{From: 100, To: 200}, "")
	require.ErrorIs(t, err, subgraph.ErrMalformedRecord)
	assert.NotErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, int32(1), requests.Load())
}

func TestFetchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	mock := crawler_testing.NewMockSubgraph()
	defer mock.Close()
	mock.FailNext(100, http.StatusBadGateway)

	policy := boff.Policy{InitialInterval: time.Hour}
	fetcher := NewPaginatingFetcher[*subgraph.PairSnapshot](subgraph.Pairs, testClient(mock), subgraph.NewBuilder(), policy, nil)

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, _, err := fetcher.Count(ctx, subgraph.BlockRange{From: 100, To: 200}, "")
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrRetriesExhausted)
}

func TestPageProgress(t *testing.T) {
	assert.Equal(t, 1.0, (&Page[*subgraph.Transaction]{}).Progress())
	assert.Equal(t, 0.5, (&Page[*subgraph.Transaction]{Processed: 1, Total: 2}).Progress())
	assert.Equal(t, 2.0, (&Page[*subgraph.Transaction]{Processed: 4, Total: 2}).Progress())
}

func TestDecodeRecords(t *testing.T) {
	_, err := decodeRecords[*subgraph.Identifier]([]json.RawMessage{json.RawMessage(`null`)})
	assert.ErrorIs(t, err, subgraph.ErrMalformedRecord)

	_, err = decodeRecords[*subgraph.Identifier]([]json.RawMessage{json.RawMessage(`{"id": 5}`)})
	assert.ErrorIs(t, err, subgraph.ErrMalformedRecord)

	_, err = decodeRecords[*subgraph.Transaction]([]json.RawMessage{json.RawMessage(`{"id":"","blockNumber":"1","timestamp":"2"}`)})
	assert.ErrorIs(t, err, subgraph.ErrMalformedRecord)

	txs, err := decodeRecords[*subgraph.Transaction]([]json.RawMessage{json.RawMessage(`{"id":"tx-1","blockNumber":"1","timestamp":"2"}`)})
	require.NoError(t, err)
	assert.Equal(t, "tx-1", txs[0].ID)

	records, err := decodeRecords[*subgraph.Identifier]([]json.RawMessage{json.RawMessage(`{"id":"a"}`), json.RawMessage(`{"id":"b"}`)})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "b", records[1].GetID())
}

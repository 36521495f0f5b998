package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"
	"uniswap-v2-crawler/boff"
	"uniswap-v2-crawler/config"
	"uniswap-v2-crawler/crawler"
	"uniswap-v2-crawler/subgraph"
	crawler_testing "uniswap-v2-crawler/testing"

	"github.com/pkg/errors"
)

var (
	urlFlag  = flag.String("url", config.DefaultSubgraphURL, "subgraph endpoint")
	fromFlag = flag.Uint64("from_block", config.DefaultFromBlock, "first block to copy")
	toFlag   = flag.Uint64("to_block", config.DefaultFromBlock+100, "last block to copy")
	outFlag  = flag.String("out", "subgraph.json", "output file")
)

// CopySubgraph reads both collections over the block range so they can be
// replayed by the mock subgraph.
func CopySubgraph(ctx context.Context, client crawler.QueryClient, blocks subgraph.BlockRange) (*crawler_testing.Fixture, error) {
	policy := boff.Policy{MaxElapsedTime: 2 * time.Minute}
	builder := subgraph.NewBuilder()
	fixture := &crawler_testing.Fixture{}

	pairs := crawler.NewPaginatingFetcher[*subgraph.PairSnapshot](subgraph.Pairs, client, builder, policy, nil)
	for page, err := range pairs.FetchAll(ctx, blocks) {
		if err != nil {
			return nil, err
		}
		for _, record := range page.Records {
			fixture.Pairs = append(fixture.Pairs, *record)
		}
	}

	transactions := crawler.NewPaginatingFetcher[*subgraph.Transaction](subgraph.Transactions, client, builder, policy, nil)
	for page, err := range transactions.FetchAll(ctx, blocks) {
		if err != nil {
			return nil, err
		}
		for _, record := range page.Records {
			fixture.Transactions = append(fixture.Transactions, *record)
		}
	}

	return fixture, nil
}

func main() {
	flag.Parse()
	ctx := context.Background()

	client := subgraph.NewClient(config.SubgraphConfig{URL: *urlFlag, APIKey: os.Getenv("SUBGRAPH_API_KEY")})
	fixture, err := CopySubgraph(ctx, client, subgraph.BlockRange{From: *fromFlag, To: *toFlag})
	if err != nil {
		fmt.Println(err)
		panic(err)
	}

	content, err := json.MarshalIndent(fixture, "", "  ")
	if err != nil {
		panic(errors.Wrap(err, "marshal fixture"))
	}
	err = os.WriteFile(*outFlag, content, 0644)
	if err != nil {
		fmt.Println(err)
		panic(err)
	}
	fmt.Printf("Copied %d pairs and %d transactions to %s\n", len(fixture.Pairs), len(fixture.Transactions), *outFlag)
}

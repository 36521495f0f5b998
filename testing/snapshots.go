package testing

import (
	"fmt"
	"sort"
	"strings"
	"uniswap-v2-crawler/database"
)

// The Format functions render stored rows as plain text for snapshot
// assertions, one row per line.

func FormatCounts(counts map[string]int64) string {
	tables := make([]string, 0, len(counts))
	for table := range counts {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	var sb strings.Builder
	for _, table := range tables {
		fmt.Fprintf(&sb, "%s=%d\n", table, counts[table])
	}
	return sb.String()
}

func FormatPairSnapshots(snapshots []database.PairSnapshot) string {
	var sb strings.Builder
	for _, s := range snapshots {
		fmt.Fprintf(&sb, "%s pair=%s block=%d reserve0=%s reserve1=%s reserveUSD=%s txCount=%d\n",
			s.ID, s.PairID, s.CreatedAtBlockNumber, s.Reserve0, s.Reserve1, s.ReserveUSD, s.TxCount)
	}
	return sb.String()
}

func FormatTransactions(transactions []database.Transaction) string {
	var sb strings.Builder
	for _, tx := range transactions {
		fmt.Fprintf(&sb, "%s block=%d timestamp=%d\n", tx.ID, tx.BlockNumber, tx.Timestamp)
	}
	return sb.String()
}

func FormatSwaps(swaps []database.Swap) string {
	var sb strings.Builder
	for _, s := range swaps {
		fmt.Fprintf(&sb, "%s tx=%s pair=%s in=%s/%s out=%s/%s usd=%s log=%d\n",
			s.ID, s.TransactionID, s.PairID, s.Amount0In, s.Amount1In, s.Amount0Out, s.Amount1Out, s.AmountUSD, s.LogIndex)
	}
	return sb.String()
}

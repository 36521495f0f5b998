package testing

import (
	"fmt"
	"math/big"
	"uniswap-v2-crawler/subgraph"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Address returns a deterministic lower case address for n, the form the
// subgraph uses for token and pair ids.
func Address(n int) string {
	return hexutil.Encode(common.BigToAddress(big.NewInt(int64(n))).Bytes())
}

// Hash returns a deterministic transaction hash for n.
func Hash(n int) string {
	return common.BigToHash(big.NewInt(int64(n))).Hex()
}

func Token(n int) *subgraph.Token {
	name := fmt.Sprintf("Token %d", n)
	return &subgraph.Token{
		ID:     Address(n),
		Symbol: fmt.Sprintf("TK%d", n),
		Name:   &name,
	}
}

// Pair returns a pair descriptor with address 1_000_000+n trading tokens
// token0 and token1.
func Pair(n, token0, token1 int) *subgraph.Pair {
	return &subgraph.Pair{
		ID:     Address(1_000_000 + n),
		Token0: Token(token0),
		Token1: Token(token1),
	}
}

func PairSnapshot(pair *subgraph.Pair, block uint64) subgraph.PairSnapshot {
	return subgraph.PairSnapshot{
		Pair:                   *pair,
		Reserve0:               "1234.567890123456789012",
		Reserve1:               "0.000000000000000001",
		TotalSupply:            "98765.4321",
		ReserveETH:             "12.5",
		ReserveUSD:             "31337.000000000000000001",
		TrackedReserveETH:      "12.5",
		Token0Price:            "0.5",
		Token1Price:            "2",
		VolumeToken0:           "100",
		VolumeToken1:           "200",
		VolumeUSD:              "300.75",
		UntrackedVolumeUSD:     "0",
		TxCount:                7,
		CreatedAtTimestamp:     1_650_000_000 + block,
		CreatedAtBlockNumber:   block,
		LiquidityProviderCount: 3,
	}
}

// PairSnapshots returns count snapshots of distinct pairs created at block,
// sharing a small set of tokens.
func PairSnapshots(count int, block uint64) []subgraph.PairSnapshot {
	snapshots := make([]subgraph.PairSnapshot, count)
	for i := range snapshots {
		snapshots[i] = PairSnapshot(Pair(i, i%10, 10+i%7), block)
	}
	return snapshots
}

func Transaction(n int, block uint64) subgraph.Transaction {
	return subgraph.Transaction{
		ID:          Hash(n),
		BlockNumber: block,
		Timestamp:   1_650_000_000 + block,
		Mints:       []subgraph.Mint{},
		Burns:       []subgraph.Burn{},
		Swaps:       []subgraph.Swap{},
	}
}

func eventID(transactionID string, index int) string {
	return fmt.Sprintf("%s-%d", transactionID, index)
}

func Mint(transactionID string, index int, pair *subgraph.Pair) subgraph.Mint {
	return subgraph.Mint{
		ID:        eventID(transactionID, index),
		Timestamp: 1_650_000_000,
		Pair:      pair,
		To:        Address(900),
		Liquidity: "10.000000000000000001",
		Sender:    Address(901),
		Amount0:   "1",
		Amount1:   "2",
		LogIndex:  uint64(index),
		AmountUSD: "3",
	}
}

func Burn(transactionID string, index int, pair *subgraph.Pair) subgraph.Burn {
	feeTo := Address(902)
	feeLiquidity := "0.01"
	return subgraph.Burn{
		ID:           eventID(transactionID, index),
		Timestamp:    1_650_000_000,
		Pair:         pair,
		Liquidity:    "5",
		To:           Address(900),
		Sender:       Address(901),
		Amount0:      "0.5",
		Amount1:      "1",
		LogIndex:     uint64(index),
		AmountUSD:    "1.5",
		FeeTo:        &feeTo,
		FeeLiquidity: &feeLiquidity,
	}
}

// PendingBurn returns a burn still waiting for its fee mint, without fee
// fields.
func PendingBurn(transactionID string, index int, pair *subgraph.Pair) subgraph.Burn {
	burn := Burn(transactionID, index, pair)
	burn.NeedsComplete = true
	burn.FeeTo = nil
	burn.FeeLiquidity = nil
	return burn
}

func Swap(transactionID string, index int, pair *subgraph.Pair) subgraph.Swap {
	return subgraph.Swap{
		ID:         eventID(transactionID, index),
		Timestamp:  1_650_000_000,
		Pair:       pair,
		To:         Address(900),
		Sender:     Address(901),
		Amount0In:  "1.5",
		Amount1In:  "0",
		Amount0Out: "0",
		Amount1Out: "2.999999999999999999",
		LogIndex:   uint64(index),
		AmountUSD:  "4.2",
	}
}

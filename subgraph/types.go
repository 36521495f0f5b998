package subgraph

import (
	"encoding/json"
	"strconv"
)

const (
	Pairs        = "pairs"
	Transactions = "transactions"
)

// Response maps a collection name to its records in the order returned by
// the subgraph. An empty slice means there is nothing after the cursor.
type Response map[string][]json.RawMessage

type BlockRange struct {
	From uint64
	To   uint64
}

// Identifier is the ids-only record of the counting pass.
type Identifier struct {
	ID string `json:"id"`
}

func (r *Identifier) GetID() string { return r.ID }

type Token struct {
	ID     string  `json:"id"`
	Symbol string  `json:"symbol"`
	Name   *string `json:"name"`
}

type Pair struct {
	ID     string `json:"id"`
	Token0 *Token `json:"token0"`
	Token1 *Token `json:"token1"`
}

// PairSnapshot is the state of a pair as returned by the pairs collection.
// Decimal values are kept as received.
type PairSnapshot struct {
	Pair

	Reserve0           string `json:"reserve0"`
	Reserve1           string `json:"reserve1"`
	TotalSupply        string `json:"totalSupply"`
	ReserveETH         string `json:"reserveETH"`
	ReserveUSD         string `json:"reserveUSD"`
	TrackedReserveETH  string `json:"trackedReserveETH"`
	Token0Price        string `json:"token0Price"`
	Token1Price        string `json:"token1Price"`
	VolumeToken0       string `json:"volumeToken0"`
	VolumeToken1       string `json:"volumeToken1"`
	VolumeUSD          string `json:"volumeUSD"`
	UntrackedVolumeUSD string `json:"untrackedVolumeUSD"`

	TxCount                uint64 `json:"txCount,string"`
	CreatedAtTimestamp     uint64 `json:"createdAtTimestamp,string"`
	CreatedAtBlockNumber   uint64 `json:"createdAtBlockNumber,string"`
	LiquidityProviderCount uint64 `json:"liquidityProviderCount,string"`
}

func (p *PairSnapshot) GetID() string { return p.ID }

// SnapshotID is the pair id followed by the creation block number, so each
// observed block of a pair gets its own row.
func (p *PairSnapshot) SnapshotID() string {
	return p.ID + strconv.FormatUint(p.CreatedAtBlockNumber, 10)
}

type Transaction struct {
	ID          string `json:"id"`
	BlockNumber uint64 `json:"blockNumber,string"`
	Timestamp   uint64 `json:"timestamp,string"`
	Mints       []Mint `json:"mints"`
	Burns       []Burn `json:"burns"`
	Swaps       []Swap `json:"swaps"`
}

func (t *Transaction) GetID() string { return t.ID }

type Mint struct {
	ID           string  `json:"id"`
	Timestamp    uint64  `json:"timestamp,string"`
	Pair         *Pair   `json:"pair"`
	To           string  `json:"to"`
	Liquidity    string  `json:"liquidity"`
	Sender       string  `json:"sender"`
	Amount0      string  `json:"amount0"`
	Amount1      string  `json:"amount1"`
	LogIndex     uint64  `json:"logIndex,string"`
	AmountUSD    string  `json:"amountUSD"`
	FeeTo        *string `json:"feeTo"`
	FeeLiquidity *string `json:"feeLiquidity"`
}

type Burn struct {
	ID            string  `json:"id"`
	Timestamp     uint64  `json:"timestamp,string"`
	Pair          *Pair   `json:"pair"`
	Liquidity     string  `json:"liquidity"`
	To            string  `json:"to"`
	Sender        string  `json:"sender"`
	Amount0       string  `json:"amount0"`
	Amount1       string  `json:"amount1"`
	LogIndex      uint64  `json:"logIndex,string"`
	AmountUSD     string  `json:"amountUSD"`
	FeeTo         *string `json:"feeTo"`
	FeeLiquidity  *string `json:"feeLiquidity"`
	NeedsComplete bool    `json:"needsComplete"`
}

type Swap struct {
	ID         string `json:"id"`
	Timestamp  uint64 `json:"timestamp,string"`
	Pair       *Pair  `json:"pair"`
	To         string `json:"to"`
	Sender     string `json:"sender"`
	Amount0In  string `json:"amount0In"`
	Amount1In  string `json:"amount1In"`
	Amount0Out string `json:"amount0Out"`
	Amount1Out string `json:"amount1Out"`
	LogIndex   uint64 `json:"logIndex,string"`
	AmountUSD  string `json:"amountUSD"`
}

package database

import (
	"time"
)

// Primary keys are the ids assigned by the subgraph. Rows are written once
// and never updated. Decimal amounts are kept as the exact strings received.

type Token struct {
	ID     string  `gorm:"primaryKey;type:varchar(100)"`
	Symbol string  `gorm:"type:varchar(255);not null"`
	Name   *string `gorm:"type:varchar(255)"`
}

type Pair struct {
	ID       string `gorm:"primaryKey;type:varchar(100)"`
	Token0ID string `gorm:"type:varchar(100);not null;index"`
	Token0   *Token `gorm:"foreignKey:Token0ID"`
	Token1ID string `gorm:"type:varchar(100);not null;index"`
	Token1   *Token `gorm:"foreignKey:Token1ID"`
}

type PairSnapshot struct {
	ID     string `gorm:"primaryKey;type:varchar(150)"`
	PairID string `gorm:"type:varchar(100);not null;index"`
	Pair   *Pair  `gorm:"foreignKey:PairID"`

	Token0Price string `gorm:"type:text;not null"`
	Token1Price string `gorm:"type:text;not null"`

	Reserve0          string `gorm:"type:text;not null"`
	Reserve1          string `gorm:"type:text;not null"`
	TotalSupply       string `gorm:"type:text;not null"`
	ReserveETH        string `gorm:"column:reserve_eth;type:text;not null"`
	ReserveUSD        string `gorm:"column:reserve_usd;type:text;not null"`
	TrackedReserveETH string `gorm:"column:tracked_reserve_eth;type:text;not null"`

	VolumeToken0       string `gorm:"type:text;not null"`
	VolumeToken1       string `gorm:"type:text;not null"`
	VolumeUSD          string `gorm:"column:volume_usd;type:text;not null"`
	UntrackedVolumeUSD string `gorm:"column:untracked_volume_usd;type:text;not null"`

	TxCount                uint64
	CreatedAtTimestamp     uint64
	CreatedAtBlockNumber   uint64 `gorm:"index"`
	LiquidityProviderCount uint64
}

type Transaction struct {
	ID          string `gorm:"primaryKey;type:varchar(100)"`
	BlockNumber uint64 `gorm:"index"`
	Timestamp   uint64
}

type Mint struct {
	ID            string       `gorm:"primaryKey;type:varchar(150)"`
	TransactionID string       `gorm:"type:varchar(100);not null;index"`
	Transaction   *Transaction `gorm:"foreignKey:TransactionID"`
	Timestamp     uint64
	PairID        string `gorm:"type:varchar(100);not null;index"`
	Pair          *Pair  `gorm:"foreignKey:PairID"`

	Sender       string  `gorm:"type:varchar(100);not null"`
	To           string  `gorm:"type:varchar(100);not null"`
	FeeTo        *string `gorm:"type:varchar(100)"`
	Liquidity    string  `gorm:"type:text;not null"`
	FeeLiquidity *string `gorm:"type:text"`

	Amount0   string `gorm:"type:text;not null"`
	Amount1   string `gorm:"type:text;not null"`
	AmountUSD string `gorm:"column:amount_usd;type:text;not null"`

	LogIndex uint64
}

type Burn struct {
	ID            string       `gorm:"primaryKey;type:varchar(150)"`
	TransactionID string       `gorm:"type:varchar(100);not null;index"`
	Transaction   *Transaction `gorm:"foreignKey:TransactionID"`
	Timestamp     uint64
	PairID        string `gorm:"type:varchar(100);not null;index"`
	Pair          *Pair  `gorm:"foreignKey:PairID"`

	Sender       string  `gorm:"type:varchar(100);not null"`
	To           string  `gorm:"type:varchar(100);not null"`
	FeeTo        *string `gorm:"type:varchar(100)"`
	Liquidity    string  `gorm:"type:text;not null"`
	FeeLiquidity *string `gorm:"type:text"`

	Amount0   string `gorm:"type:text;not null"`
	Amount1   string `gorm:"type:text;not null"`
	AmountUSD string `gorm:"column:amount_usd;type:text;not null"`

	// NeedsComplete is set while the burn still waits for its fee liquidity mint.
	NeedsComplete bool
	LogIndex      uint64
}

type Swap struct {
	ID            string       `gorm:"primaryKey;type:varchar(150)"`
	TransactionID string       `gorm:"type:varchar(100);not null;index"`
	Transaction   *Transaction `gorm:"foreignKey:TransactionID"`
	Timestamp     uint64
	PairID        string `gorm:"type:varchar(100);not null;index"`
	Pair          *Pair  `gorm:"foreignKey:PairID"`

	Sender string `gorm:"type:varchar(100);not null"`
	To     string `gorm:"type:varchar(100);not null"`

	Amount0In  string `gorm:"type:text;not null"`
	Amount1In  string `gorm:"type:text;not null"`
	Amount0Out string `gorm:"type:text;not null"`
	Amount1Out string `gorm:"type:text;not null"`
	AmountUSD  string `gorm:"column:amount_usd;type:text;not null"`

	LogIndex uint64
}

// CrawlState is the data pass checkpoint of one collection over one block range.
type CrawlState struct {
	Collection string `gorm:"primaryKey;type:varchar(50)"`
	FromBlock  uint64 `gorm:"primaryKey;autoIncrement:false"`
	ToBlock    uint64 `gorm:"primaryKey;autoIncrement:false"`
	Cursor     string `gorm:"type:varchar(150)"`
	Processed  uint64
	Updated    time.Time
}

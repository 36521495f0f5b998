package crawler

import (
	"context"
	"fmt"
	"uniswap-v2-crawler/database"
	"uniswap-v2-crawler/subgraph"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// WriteStats counts the rows inserted while writing records.
type WriteStats struct {
	Tokens        int
	Pairs         int
	PairSnapshots int
	Transactions  int
	Mints         int
	Burns         int
	Swaps         int
}

func (s *WriteStats) Add(other WriteStats) {
	s.Tokens += other.Tokens
	s.Pairs += other.Pairs
	s.PairSnapshots += other.PairSnapshots
	s.Transactions += other.Transactions
	s.Mints += other.Mints
	s.Burns += other.Burns
	s.Swaps += other.Swaps
}

func (s WriteStats) Total() int {
	return s.Tokens + s.Pairs + s.PairSnapshots + s.Transactions + s.Mints + s.Burns + s.Swaps
}

func (s WriteStats) byEntity() map[string]int {
	return map[string]int{
		"tokens":         s.Tokens,
		"pairs":          s.Pairs,
		"pair_snapshots": s.PairSnapshots,
		"transactions":   s.Transactions,
		"mints":          s.Mints,
		"burns":          s.Burns,
		"swaps":          s.Swaps,
	}
}

func (s WriteStats) String() string {
	return fmt.Sprintf(
		"%d tokens, %d pairs, %d pair snapshots, %d transactions, %d mints, %d burns, %d swaps",
		s.Tokens, s.Pairs, s.PairSnapshots, s.Transactions, s.Mints, s.Burns, s.Swaps,
	)
}

// IngestionWriter persists one top level record at a time. Each record and
// the entities it references are written in a single database transaction.
// Writing a record that is already stored inserts nothing.
type IngestionWriter struct {
	db       *gorm.DB
	resolver *EntityResolver
}

func NewIngestionWriter(db *gorm.DB, resolver *EntityResolver) *IngestionWriter {
	if resolver == nil {
		resolver = NewEntityResolver()
	}
	return &IngestionWriter{db: db, resolver: resolver}
}

func (w *IngestionWriter) inTransaction(ctx context.Context, write func(*resolveScope, *WriteStats) error) (WriteStats, error) {
	var stats WriteStats
	var scope *resolveScope

	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stats = WriteStats{}
		scope = w.resolver.begin(tx, &stats)
		return write(scope, &stats)
	})
	if err != nil {
		return WriteStats{}, err
	}

	scope.commit()
	return stats, nil
}

func (w *IngestionWriter) WritePairSnapshot(ctx context.Context, record *subgraph.PairSnapshot) (WriteStats, error) {
	stats, err := w.inTransaction(ctx, func(s *resolveScope, stats *WriteStats) error {
		pair, err := s.Pair(&record.Pair)
		if err != nil {
			return err
		}

		id := record.SnapshotID()
		exists, err := database.Exists[database.PairSnapshot](s.db, id)
		if err != nil || exists {
			return err
		}

		snapshot := &database.PairSnapshot{
			ID:                     id,
			PairID:                 pair.ID,
			Token0Price:            record.Token0Price,
			Token1Price:            record.Token1Price,
			Reserve0:               record.Reserve0,
			Reserve1:               record.Reserve1,
			TotalSupply:            record.TotalSupply,
			ReserveETH:             record.ReserveETH,
			ReserveUSD:             record.ReserveUSD,
			TrackedReserveETH:      record.TrackedReserveETH,
			VolumeToken0:           record.VolumeToken0,
			VolumeToken1:           record.VolumeToken1,
			VolumeUSD:              record.VolumeUSD,
			UntrackedVolumeUSD:     record.UntrackedVolumeUSD,
			TxCount:                record.TxCount,
			CreatedAtTimestamp:     record.CreatedAtTimestamp,
			CreatedAtBlockNumber:   record.CreatedAtBlockNumber,
			LiquidityProviderCount: record.LiquidityProviderCount,
		}
		if err := database.Create(s.db, snapshot); err != nil {
			return errors.Wrapf(err, "creating pair snapshot %s", id)
		}
		stats.PairSnapshots++
		return nil
	})
	if err != nil {
		return WriteStats{}, errors.Wrapf(err, "WritePairSnapshot %s", record.ID)
	}
	return stats, nil
}

// WriteTransaction stores the transaction if it is new, then every mint,
// burn and swap not stored yet. Events of a transaction that already
// exists are still checked, so a partially stored transaction is completed.
func (w *IngestionWriter) WriteTransaction(ctx context.Context, record *subgraph.Transaction) (WriteStats, error) {
	stats, err := w.inTransaction(ctx, func(s *resolveScope, stats *WriteStats) error {
		exists, err := database.Exists[database.Transaction](s.db, record.ID)
		if err != nil {
			return err
		}
		if !exists {
			transaction := &database.Transaction{
				ID:          record.ID,
				BlockNumber: record.BlockNumber,
				Timestamp:   record.Timestamp,
			}
			if err := database.Create(s.db, transaction); err != nil {
				return errors.Wrap(err, "creating transaction")
			}
			stats.Transactions++
		}

		for i := range record.Mints {
			if err := writeMint(s, record.ID, &record.Mints[i]); err != nil {
				return err
			}
		}
		for i := range record.Burns {
			if err := writeBurn(s, record.ID, &record.Burns[i]); err != nil {
				return err
			}
		}
		for i := range record.Swaps {
			if err := writeSwap(s, record.ID, &record.Swaps[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return WriteStats{}, errors.Wrapf(err, "WriteTransaction %s", record.ID)
	}
	return stats, nil
}

func writeMint(s *resolveScope, transactionID string, data *subgraph.Mint) error {
	exists, err := database.Exists[database.Mint](s.db, data.ID)
	if err != nil || exists {
		return err
	}

	pair, err := s.Pair(data.Pair)
	if err != nil {
		return err
	}

	mint := &database.Mint{
		ID:            data.ID,
		TransactionID: transactionID,
		Timestamp:     data.Timestamp,
		PairID:        pair.ID,
		Sender:        data.Sender,
		To:            data.To,
		FeeTo:         data.FeeTo,
		Liquidity:     data.Liquidity,
		FeeLiquidity:  data.FeeLiquidity,
		Amount0:       data.Amount0,
		Amount1:       data.Amount1,
		AmountUSD:     data.AmountUSD,
		LogIndex:      data.LogIndex,
	}
	if err := database.Create(s.db, mint); err != nil {
		return errors.Wrapf(err, "creating mint %s", data.ID)
	}
	s.stats.Mints++
	return nil
}

func writeBurn(s *resolveScope, transactionID string, data *subgraph.Burn) error {
	exists, err := database.Exists[database.Burn](s.db, data.ID)
	if err != nil || exists {
		return err
	}

	pair, err := s.Pair(data.Pair)
	if err != nil {
		return err
	}

	burn := &database.Burn{
		ID:            data.ID,
		TransactionID: transactionID,
		Timestamp:     data.Timestamp,
		PairID:        pair.ID,
		Sender:        data.Sender,
		To:            data.To,
		FeeTo:         data.FeeTo,
		Liquidity:     data.Liquidity,
		FeeLiquidity:  data.FeeLiquidity,
		Amount0:       data.Amount0,
		Amount1:       data.Amount1,
		AmountUSD:     data.AmountUSD,
		NeedsComplete: data.NeedsComplete,
		LogIndex:      data.LogIndex,
	}
	if err := database.Create(s.db, burn); err != nil {
		return errors.Wrapf(err, "creating burn %s", data.ID)
	}
	s.stats.Burns++
	return nil
}

func writeSwap(s *resolveScope, transactionID string, data *subgraph.Swap) error {
	exists, err := database.Exists[database.Swap](s.db, data.ID)
	if err != nil || exists {
		return err
	}

	pair, err := s.Pair(data.Pair)
	if err != nil {
		return err
	}

	swap := &database.Swap{
		ID:            data.ID,
		TransactionID: transactionID,
		Timestamp:     data.Timestamp,
		PairID:        pair.ID,
		Sender:        data.Sender,
		To:            data.To,
		Amount0In:     data.Amount0In,
		Amount1In:     data.Amount1In,
		Amount0Out:    data.Amount0Out,
		Amount1Out:    data.Amount1Out,
		AmountUSD:     data.AmountUSD,
		LogIndex:      data.LogIndex,
	}
	if err := database.Create(s.db, swap); err != nil {
		return errors.Wrapf(err, "creating swap %s", data.ID)
	}
	s.stats.Swaps++
	return nil
}

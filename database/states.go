package database

import (
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FetchCrawlState returns the stored checkpoint of the collection for the
// given block range, or nil when the last pass over it completed.
func FetchCrawlState(db *gorm.DB, collection string, fromBlock, toBlock uint64) (*CrawlState, error) {
	var state CrawlState
	err := db.Where(&CrawlState{Collection: collection}).
		Where("from_block = ? AND to_block = ?", fromBlock, toBlock).
		Take(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "FetchCrawlState")
	}
	return &state, nil
}

func (s *CrawlState) UpdateCursor(cursor string, processed int) {
	s.Cursor = cursor
	s.Processed = uint64(processed)
	s.Updated = time.Now()
}

func SaveCrawlState(db *gorm.DB, s *CrawlState) error {
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "from_block"}, {Name: "to_block"}},
		DoUpdates: clause.AssignmentColumns([]string{"cursor", "processed", "updated"}),
	}).Create(s).Error
	if err != nil {
		return errors.Wrap(err, "SaveCrawlState")
	}
	return nil
}

func ClearCrawlState(db *gorm.DB, collection string, fromBlock, toBlock uint64) error {
	err := db.Where("collection = ? AND from_block = ? AND to_block = ?", collection, fromBlock, toBlock).
		Delete(&CrawlState{}).Error
	if err != nil {
		return errors.Wrap(err, "ClearCrawlState")
	}
	return nil
}

package database

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FetchByID returns the row of type T with the given primary key, or nil
// when there is none.
func FetchByID[T any](db *gorm.DB, id string) (*T, error) {
	row := new(T)
	err := db.Where("id = ?", id).Take(row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}

func Exists[T any](db *gorm.DB, id string) (bool, error) {
	var count int64
	err := db.Model(new(T)).Where("id = ?", id).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Create inserts value without touching its associations; referenced rows
// must already exist.
func Create(db *gorm.DB, value interface{}) error {
	return db.Omit(clause.Associations).Create(value).Error
}

// TableCounts returns the number of rows per entity table.
func TableCounts(db *gorm.DB) (map[string]int64, error) {
	counts := make(map[string]int64)
	for _, entity := range entities {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(entity); err != nil {
			return nil, errors.Wrap(err, "TableCounts: Parse")
		}

		var count int64
		if err := db.Model(entity).Count(&count).Error; err != nil {
			return nil, errors.Wrapf(err, "TableCounts: %s", stmt.Table)
		}
		counts[stmt.Table] = count
	}
	return counts, nil
}

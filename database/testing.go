package database

import (
	"context"
	"fmt"
	"strings"
	"uniswap-v2-crawler/config"

	"gorm.io/gorm"
)

const (
	MysqlTestUser     string = "crawleruser"
	MysqlTestPassword string = "crawleruser"
	MysqlTestHost     string = "localhost"
	MysqlTestPort     int    = 3307
)

// MemoryTestConfig returns a configuration for a private in-memory sqlite
// database. Connections made with the same name share the data.
func MemoryTestConfig(name string) *config.DBConfig {
	name = strings.NewReplacer("/", "_", " ", "_").Replace(name)
	return &config.DBConfig{
		Driver: DriverSQLite,
		Path:   fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
	}
}

func ConnectAndInitializeTestDB(ctx context.Context, cfg *config.DBConfig, dropTables bool) (*gorm.DB, error) {
	db, err := Connect(cfg)
	if err != nil {
		return nil, err
	}

	if err := initialize(ctx, db, dropTables); err != nil {
		return nil, err
	}
	return db, nil
}

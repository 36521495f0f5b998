package database

import (
	"context"
	"fmt"
	"strings"
	"uniswap-v2-crawler/config"
	"uniswap-v2-crawler/logger"

	"github.com/glebarez/sqlite"
	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	gormMysql "gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	tcp = "tcp"

	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"

	sqlitePragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
)

var (
	// List entities to auto-migrate
	entities = []interface{}{
		Token{},
		Pair{},
		PairSnapshot{},
		Transaction{},
		Mint{},
		Burn{},
		Swap{},
		CrawlState{},
	}
)

func ConnectAndInitialize(ctx context.Context, cfg *config.DBConfig) (*gorm.DB, error) {
	db, err := Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("ConnectAndInitialize: Connect: %w", err)
	}

	if err := initialize(ctx, db, cfg.DropTableAtStart); err != nil {
		return nil, errors.Wrap(err, "ConnectAndInitialize")
	}

	return db, nil
}

// initialize creates the tables that do not exist yet. Existing tables are
// left as they are, there is no schema versioning.
func initialize(ctx context.Context, db *gorm.DB, dropTables bool) error {
	db = db.WithContext(ctx)

	if dropTables {
		err := db.Migrator().DropTable(entities...)
		if err != nil {
			return errors.Wrap(err, "DropTable")
		}
	}

	err := db.AutoMigrate(entities...)
	if err != nil {
		return errors.Wrap(err, "AutoMigrate")
	}

	return nil
}

func Connect(cfg *config.DBConfig) (*gorm.DB, error) {
	dialector, err := dialector(cfg)
	if err != nil {
		return nil, err
	}

	gormConfig := gorm.Config{
		Logger: logger.NewGormLogger(getGormLogLevel(cfg)),
	}
	db, err := gorm.Open(dialector, &gormConfig)
	if err != nil {
		return nil, errors.Wrapf(err, "gorm.Open %s", cfg.Driver)
	}

	if cfg.Driver == DriverSQLite || cfg.Driver == "" {
		// a single writer avoids "database is locked" errors on the file
		sqlDB, err := db.DB()
		if err != nil {
			return nil, errors.Wrap(err, "db.DB")
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return db, nil
}

func dialector(cfg *config.DBConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case DriverSQLite, "":
		return sqlite.Open(sqliteDSN(cfg.Path)), nil

	case DriverMySQL:
		// Connect to the database
		dbConfig := mysql.Config{
			User:                 cfg.Username,
			Passwd:               cfg.Password,
			Net:                  tcp,
			Addr:                 fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			DBName:               cfg.Database,
			AllowNativePasswords: true,
			ParseTime:            true,
		}
		return gormMysql.Open(dbConfig.FormatDSN()), nil

	case DriverPostgres:
		sslMode := cfg.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database, sslMode,
		)
		return postgres.Open(dsn), nil

	default:
		return nil, errors.Errorf("unsupported db driver %q", cfg.Driver)
	}
}

func sqliteDSN(path string) string {
	if path == "" {
		path = config.DefaultDatabasePath
	}
	if strings.Contains(path, "?") {
		return path + "&" + sqlitePragmas
	}
	return path + "?" + sqlitePragmas
}

func getGormLogLevel(cfg *config.DBConfig) gormlogger.LogLevel {
	if cfg.LogQueries {
		return gormlogger.Info
	}

	return gormlogger.Silent
}

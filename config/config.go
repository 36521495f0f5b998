package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

const (
	DefaultDatabasePath = "./database.sqlite"
	DefaultFromBlock    = 14960000
	DefaultToBlock      = 14968000
	DefaultSubgraphURL  = "https://api.thegraph.com/subgraphs/name/uniswap/uniswap-v2"
)

var (
	BackoffMaxElapsedTime time.Duration                = 5 * time.Minute
	Timeout               time.Duration                = 60 * time.Second
	GlobalConfigCallback  ConfigCallback[GlobalConfig] = ConfigCallback[GlobalConfig]{}

	CfgFlag       = flag.String("config", "config.toml", "Configuration file (toml format)")
	DatabaseFlag  = flag.String("database", "", "path for the SQLite database file")
	FromBlockFlag = flag.Uint64("from_block", 0, "blocknumber of the first block to crawl")
	ToBlockFlag   = flag.Uint64("to_block", 0, "blocknumber of the last block to crawl")
)

type GlobalConfig interface {
	LoggerConfig() LoggerConfig
}

type Config struct {
	DB       DBConfig       `toml:"db"`
	Logger   LoggerConfig   `toml:"logger"`
	Subgraph SubgraphConfig `toml:"subgraph"`
	Crawler  CrawlerConfig  `toml:"crawler"`
	Retry    RetryConfig    `toml:"retry"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

type LoggerConfig struct {
	Level       string `toml:"level"` // valid values are: DEBUG, INFO, WARN, ERROR, DPANIC, PANIC, FATAL (zap)
	File        string `toml:"file"`
	MaxFileSize int    `toml:"max_file_size"` // In megabytes
	Console     bool   `toml:"console"`
}

type DBConfig struct {
	Driver     string `toml:"driver" envconfig:"DB_DRIVER"` // sqlite, mysql or postgres
	Path       string `toml:"path" envconfig:"DB_PATH"`     // sqlite only
	Host       string `toml:"host" envconfig:"DB_HOST"`
	Port       int    `toml:"port" envconfig:"DB_PORT"`
	Database   string `toml:"database" envconfig:"DB_DATABASE"`
	Username   string `toml:"username" envconfig:"DB_USERNAME"`
	Password   string `toml:"password" envconfig:"DB_PASSWORD"`
	SSLMode    string `toml:"sslmode" envconfig:"DB_SSLMODE"`
	LogQueries bool   `toml:"log_queries"`

	DropTableAtStart bool `toml:"drop_table_at_start"`
}

type SubgraphConfig struct {
	URL           string `toml:"url" envconfig:"SUBGRAPH_URL"`
	APIKey        string `toml:"api_key" envconfig:"SUBGRAPH_API_KEY"`
	TimeoutMillis int    `toml:"timeout_millis"`
}

type CrawlerConfig struct {
	FromBlock uint64 `toml:"from_block"`
	ToBlock   uint64 `toml:"to_block"`
	// Resume continues an interrupted data pass from its last stored cursor.
	Resume bool `toml:"resume"`
	// Collections restricts the run, empty means pairs and transactions.
	Collections []string `toml:"collections"`
}

// RetryConfig bounds the retries of failed remote queries. Zero values
// for both MaxElapsedSec and MaxAttempts retry forever.
type RetryConfig struct {
	InitialIntervalMillis int     `toml:"initial_interval_millis"`
	MaxIntervalMillis     int     `toml:"max_interval_millis"`
	Multiplier            float64 `toml:"multiplier"`
	MaxElapsedSec         int     `toml:"max_elapsed_sec"`
	MaxAttempts           uint    `toml:"max_attempts"`
}

type MetricsConfig struct {
	ListenAddress string `toml:"listen_address" envconfig:"METRICS_LISTEN_ADDRESS"`
}

func newConfig() *Config {
	return &Config{
		DB: DBConfig{
			Driver: "sqlite",
			Path:   DefaultDatabasePath,
		},
		Logger: LoggerConfig{
			Level:   "INFO",
			Console: true,
		},
		Subgraph: SubgraphConfig{
			URL: DefaultSubgraphURL,
		},
		Crawler: CrawlerConfig{
			FromBlock: DefaultFromBlock,
			ToBlock:   DefaultToBlock,
		},
		Retry: RetryConfig{
			InitialIntervalMillis: 500,
			MaxIntervalMillis:     30000,
			Multiplier:            2,
			MaxElapsedSec:         int(BackoffMaxElapsedTime / time.Second),
		},
	}
}

func BuildConfig() (*Config, error) {
	cfgFileName := *CfgFlag

	cfg := newConfig()
	err := ParseConfigFile(cfg, cfgFileName)
	if err != nil {
		return nil, err
	}
	err = ReadEnv(cfg)
	if err != nil {
		return nil, err
	}
	applyFlags(cfg, setFlags(flag.CommandLine))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseConfigFile decodes the toml file on top of cfg. A missing file
// leaves the defaults in place.
func ParseConfigFile(cfg *Config, fileName string) error {
	content, err := os.ReadFile(fileName)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("error opening config file: %w", err)
	}

	_, err = toml.Decode(string(content), cfg)
	if err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}
	return nil
}

func ReadEnv(cfg interface{}) error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("error loading .env file: %w", err)
	}

	err := envconfig.Process("", cfg)
	if err != nil {
		return fmt.Errorf("error reading env config: %w", err)
	}
	return nil
}

// setFlags returns the names of the flags given on the command line. Only
// those override the file and env values, so an explicit 0 is honoured.
func setFlags(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

func applyFlags(cfg *Config, set map[string]bool) {
	if set["database"] {
		cfg.DB.Path = *DatabaseFlag
	}
	if set["from_block"] {
		cfg.Crawler.FromBlock = *FromBlockFlag
	}
	if set["to_block"] {
		cfg.Crawler.ToBlock = *ToBlockFlag
	}
}

func (c *Config) Validate() error {
	if c.Crawler.FromBlock > c.Crawler.ToBlock {
		return errors.Errorf("invalid block range: from %d is after to %d", c.Crawler.FromBlock, c.Crawler.ToBlock)
	}
	if c.Subgraph.URL == "" {
		return errors.New("subgraph url is not set")
	}
	switch c.DB.Driver {
	case "sqlite", "mysql", "postgres":
	default:
		return errors.Errorf("unsupported db driver %q", c.DB.Driver)
	}
	return nil
}

func (c Config) LoggerConfig() LoggerConfig {
	return c.Logger
}

func (c SubgraphConfig) Timeout() time.Duration {
	if c.TimeoutMillis <= 0 {
		return Timeout
	}
	return time.Duration(c.TimeoutMillis) * time.Millisecond
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Supported store drivers
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
	DriverRedis    = "redis"
)

// Config represents the entitycore configuration
type Config struct {
	Store     StoreConfig   `mapstructure:"store"`
	Redis     RedisConfig   `mapstructure:"redis"`
	Log       LogConfig     `mapstructure:"log"`
	Partition string        `mapstructure:"partition"`
	Calculate CalculateConf `mapstructure:"calculate"`
}

// StoreConfig selects the document store
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	Table  string `mapstructure:"table"`
}

// RedisConfig configures the redis store driver
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// LogConfig configures logging
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// CalculateConf holds the filter values passed to parameterized
// calculations
type CalculateConf struct {
	Values map[string]interface{} `mapstructure:"values"`
}

// Load loads the configuration from entitycore.yml or entitycore.yaml in the
// current directory. Environment variables prefixed with ENTITYCORE_
// override file values.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom loads the configuration from an explicit file, or searches the
// current directory when path is empty
func LoadFrom(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.table", "entity_documents")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "entitycore:")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("partition", "")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("entitycore")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Enable environment variable support
	v.SetEnvPrefix("entitycore")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// FindConfigFile walks up from the working directory looking for
// entitycore.yml or entitycore.yaml
func FindConfigFile() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		for _, name := range []string{"entitycore.yml", "entitycore.yaml"} {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}

		// Move up one directory
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no entitycore.yml found")
		}
		dir = parent
	}
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	switch cfg.Store.Driver {
	case DriverMemory, DriverRedis:
	case DriverSQLite, DriverPostgres:
		if cfg.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for driver %s", cfg.Store.Driver)
		}
	default:
		return fmt.Errorf("store.driver must be one of memory, sqlite3, pgx, redis, got: %s", cfg.Store.Driver)
	}

	if cfg.Redis.DB < 0 {
		return fmt.Errorf("redis.db must not be negative, got: %d", cfg.Redis.DB)
	}
	return nil
}

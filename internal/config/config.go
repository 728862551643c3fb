package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete pipeline configuration
type Config struct {
	Database DatabaseConfig `yaml:"database" envconfig:"DATABASE"`
	ETL      ETLConfig      `yaml:"etl" envconfig:"ETL"`
	Quality  QualityConfig  `yaml:"quality" envconfig:"QUALITY"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
}

// DatabaseConfig contains PostgreSQL warehouse connection settings
type DatabaseConfig struct {
	Host         string        `yaml:"host" envconfig:"HOST"`
	Port         int           `yaml:"port" envconfig:"PORT"`
	User         string        `yaml:"user" envconfig:"USER"`
	Password     string        `yaml:"password" envconfig:"PASSWORD"`
	Name         string        `yaml:"name" envconfig:"NAME"`
	MaxConns     int32         `yaml:"max_conns" envconfig:"MAX_CONNS"`
	QueryTimeout time.Duration `yaml:"query_timeout" envconfig:"QUERY_TIMEOUT"`
}

// ETLConfig contains pipeline processing settings
type ETLConfig struct {
	InputPath string `yaml:"input_path" envconfig:"INPUT_PATH"`
	BatchSize int    `yaml:"batch_size" envconfig:"BATCH_SIZE"`
	// FetchLimit bounds how many staging rows a single transform/load run picks up.
	FetchLimit int `yaml:"fetch_limit" envconfig:"FETCH_LIMIT"`
	// StrictResolution turns dimension resolution failures into load failures
	// instead of falling back to the sentinel key.
	StrictResolution bool `yaml:"strict_resolution" envconfig:"STRICT_RESOLUTION"`
}

// QualityConfig contains data-quality thresholds
type QualityConfig struct {
	MinCompletenessPct float64 `yaml:"min_completeness_pct" envconfig:"MIN_COMPLETENESS_PCT"`
	MaxNullPct         float64 `yaml:"max_null_pct" envconfig:"MAX_NULL_PCT"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL"`
	Format   string `yaml:"format" envconfig:"FORMAT"`
	Output   string `yaml:"output" envconfig:"OUTPUT"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// ServerConfig contains control-plane HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	// StageTimeout bounds a single stage invocation triggered over HTTP.
	StageTimeout time.Duration   `yaml:"stage_timeout" envconfig:"STAGE_TIMEOUT"`
	RateLimit    RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// Default returns the built-in configuration. File and environment values
// are layered on top of it.
func Default() Config {
	return Config{
		Database: DatabaseConfig{
			Host:         "localhost",
			Port:         5432,
			User:         "etl",
			Name:         "banking_warehouse",
			MaxConns:     10,
			QueryTimeout: 30 * time.Second,
		},
		ETL: ETLConfig{
			InputPath:  "data/banking_transactions.xlsx",
			BatchSize:  5000,
			FetchLimit: 200000,
		},
		Quality: QualityConfig{
			MinCompletenessPct: 95,
			MaxNullPct:         5,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "stdout",
			FilePath: "logs/etl.log",
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			StageTimeout:    2 * time.Hour,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     100,
				Burst:   50,
			},
		},
	}
}

// Load loads configuration with precedence defaults < config file < environment.
func Load() (*Config, error) {
	return LoadFrom(configFilePath())
}

// LoadFrom loads configuration using the given YAML file path.
func LoadFrom(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			data, err := os.ReadFile(configFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Environment overrides anything set so far.
	if err := envconfig.Process("ETL", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// configFilePath returns the config file location, overridable via ETL_CONFIG_FILE.
func configFilePath() string {
	if path := os.Getenv("ETL_CONFIG_FILE"); path != "" {
		return path
	}
	return "config.yaml"
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if c.ETL.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.ETL.BatchSize)
	}
	if c.ETL.FetchLimit <= 0 {
		return fmt.Errorf("fetch limit must be positive, got %d", c.ETL.FetchLimit)
	}
	if c.Quality.MinCompletenessPct < 0 || c.Quality.MinCompletenessPct > 100 {
		return fmt.Errorf("min completeness pct must be within [0,100], got %v", c.Quality.MinCompletenessPct)
	}
	if c.Quality.MaxNullPct < 0 || c.Quality.MaxNullPct > 100 {
		return fmt.Errorf("max null pct must be within [0,100], got %v", c.Quality.MaxNullPct)
	}
	return nil
}

// DSN returns the PostgreSQL connection string for the warehouse.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		c.User, c.Password, c.Host, c.Port, c.Name)
}

package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for a cryptosync run.
type Config struct {
	Storage  Storage  `yaml:"storage"`
	Logging  Logging  `yaml:"logging"`
	Alpaca   Alpaca   `yaml:"alpaca"`
	Universe Universe `yaml:"universe"`
	Fetch    Fetch    `yaml:"fetch"`
	Export   Export   `yaml:"export"`
}

// Storage holds paths for data persistence.
type Storage struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// Logging configures the application logger.
type Logging struct {
	Level string `yaml:"level"`
}

// Alpaca holds credentials and endpoint for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
}

// Universe controls top-N universe discovery from the screener.
type Universe struct {
	TargetSize      int `yaml:"target_size"`
	PageSize        int `yaml:"page_size"`
	MaxPages        int `yaml:"max_pages"`
	RateLimitPerMin int `yaml:"rate_limit_per_min"`
}

// Fetch controls the historical bar fetch layer.
type Fetch struct {
	RequestTimeoutSecs int `yaml:"request_timeout_secs"`
	MaxWorkers         int `yaml:"max_workers"`      // per-symbol mode concurrency
	BulkBatchSize      int `yaml:"bulk_batch_size"`  // symbols per bulk request
	BulkWorkers        int `yaml:"bulk_workers"`     // concurrent bulk batches
	BulkMaxRetries     int `yaml:"bulk_max_retries"` // attempts per bulk batch
	HistoryDays        int `yaml:"history_days"`     // depth for never-seen symbols
}

// Export controls optional post-sync exports.
type Export struct {
	ParquetDir string `yaml:"parquet_dir"` // empty disables the export
}

// Default returns the configuration used when no config file is provided.
func Default() *Config {
	return &Config{
		Storage: Storage{SQLitePath: "crypto_history.db"},
		Logging: Logging{Level: "info"},
		Universe: Universe{
			TargetSize:      1000,
			PageSize:        100,
			MaxPages:        20,
			RateLimitPerMin: 300,
		},
		Fetch: Fetch{
			RequestTimeoutSecs: 20,
			MaxWorkers:         32,
			BulkBatchSize:      25,
			BulkWorkers:        4,
			BulkMaxRetries:     3,
			HistoryDays:        3650,
		},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load builds the run configuration. If path is non-empty the YAML file there
// is parsed over the defaults; environment variable overrides are applied
// last either way.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	setEnvInt("TARGET_COUNT", &cfg.Universe.TargetSize)
	setEnvInt("PAGE_SIZE", &cfg.Universe.PageSize)
	setEnvInt("MAX_PAGES", &cfg.Universe.MaxPages)

	setEnvInt("REQUEST_TIMEOUT", &cfg.Fetch.RequestTimeoutSecs)
	setEnvInt("MAX_WORKERS", &cfg.Fetch.MaxWorkers)
	setEnvInt("BULK_BATCH_SIZE", &cfg.Fetch.BulkBatchSize)
	setEnvInt("BULK_WORKERS", &cfg.Fetch.BulkWorkers)
	setEnvInt("BULK_MAX_RETRIES", &cfg.Fetch.BulkMaxRetries)
	setEnvInt("HISTORY_DAYS", &cfg.Fetch.HistoryDays)

	if v := os.Getenv("PARQUET_DIR"); v != "" {
		cfg.Export.ParquetDir = v
	}

	// Standard Alpaca env vars (canonical names used by the SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("APCA_API_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}
}

// setEnvInt overrides dst with the integer value of the named environment
// variable when it is set and parseable.
func setEnvInt(name string, dst *int) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return
	}
	*dst = n
}

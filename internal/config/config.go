// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName     string   `mapstructure:"appname"`
	AppPort     string   `mapstructure:"appport"`
	Environment string   `mapstructure:"environment"`
	LogLevel    LogLevel `mapstructure:"loglevel"`

	// Secret used to sign API bearer tokens. Daily salts are generated from
	// crypto/rand and do not involve this key.
	PrivateKey string `mapstructure:"privatekey"`

	// Session window used to group events into sessions and to close rollup
	// session traces.
	SessionTimeoutSeconds int `mapstructure:"sessiontimeoutseconds"`

	// Realtime active-visitor window TTL.
	RealtimeTTLSeconds int `mapstructure:"realtimettlseconds"`

	// File paths
	StoragePath  string `mapstructure:"storagepath"`
	RegistryName string `mapstructure:"-"` // Derived from other settings
	GeoDBPath    string `mapstructure:"geodbpath"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Signature set overrides. Empty means the embedded sets are used.
	BotSignaturesPath    string `mapstructure:"botsignaturespath"`
	PIIPatternsPath      string `mapstructure:"piipatternspath"`
	ClientSignaturesPath string `mapstructure:"clientsignaturespath"`

	// Aggregation settings
	VisitorMemoryRetentionDays int `mapstructure:"visitormemoryretentiondays"`
	HeatmapPointCap            int `mapstructure:"heatmappointcap"`
	RollupRetentionDays        int `mapstructure:"rollupretentiondays"`

	// Job scheduling settings
	JobIntervalSeconds int `mapstructure:"jobintervalseconds"`

	// Ingest rate limiting (requests per minute per IP, production only)
	IngestRateLimitPerMinute int `mapstructure:"ingestratelimitperminute"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()

		v.SetDefault("appname", "veilytics")
		v.SetDefault("appport", "3000")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("privatekey", "88888888888888888888888888888888")
		v.SetDefault("sessiontimeoutseconds", 1800)
		v.SetDefault("realtimettlseconds", 300)
		v.SetDefault("storagepath", "storage")
		v.SetDefault("geodbpath", "storage/GeoLite2-City.mmdb")
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("botsignaturespath", "")
		v.SetDefault("piipatternspath", "")
		v.SetDefault("clientsignaturespath", "")
		v.SetDefault("visitormemoryretentiondays", 90)
		v.SetDefault("heatmappointcap", 1000)
		v.SetDefault("rollupretentiondays", 365)
		v.SetDefault("jobintervalseconds", 3600)
		v.SetDefault("ingestratelimitperminute", 70)

		v.BindEnv("appname", "VEILYTICS_APP_NAME")
		v.BindEnv("appport", "VEILYTICS_APP_PORT")
		v.BindEnv("environment", "VEILYTICS_ENV")
		v.BindEnv("loglevel", "VEILYTICS_LOG_LEVEL")
		v.BindEnv("privatekey", "VEILYTICS_PRIVATE_KEY")
		v.BindEnv("sessiontimeoutseconds", "VEILYTICS_SESSION_TIMEOUT_SECONDS")
		v.BindEnv("realtimettlseconds", "VEILYTICS_REALTIME_TTL_SECONDS")
		v.BindEnv("storagepath", "VEILYTICS_STORAGE_PATH")
		v.BindEnv("geodbpath", "VEILYTICS_GEODB_PATH")
		v.BindEnv("logsdir", "VEILYTICS_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "VEILYTICS_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "VEILYTICS_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "VEILYTICS_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("botsignaturespath", "VEILYTICS_BOT_SIGNATURES_PATH")
		v.BindEnv("piipatternspath", "VEILYTICS_PII_PATTERNS_PATH")
		v.BindEnv("clientsignaturespath", "VEILYTICS_CLIENT_SIGNATURES_PATH")
		v.BindEnv("visitormemoryretentiondays", "VEILYTICS_VISITOR_MEMORY_RETENTION_DAYS")
		v.BindEnv("heatmappointcap", "VEILYTICS_HEATMAP_POINT_CAP")
		v.BindEnv("rollupretentiondays", "VEILYTICS_ROLLUP_RETENTION_DAYS")
		v.BindEnv("jobintervalseconds", "VEILYTICS_JOB_INTERVAL_SECONDS")
		v.BindEnv("ingestratelimitperminute", "VEILYTICS_INGEST_RATE_LIMIT_PER_MINUTE")

		v.AutomaticEnv()

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("Failed to unmarshal config: %v", err)
		}

		cfg.RegistryName = fmt.Sprintf("%s-%s.db", cfg.AppName, cfg.Environment)
	})
	return cfg
}

// IsProduction returns true when running in the production environment
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true when running in the test environment
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// RegistryPath returns the full path to the sqlite registry database
func (c *Config) RegistryPath() string {
	return filepath.Join(c.StoragePath, c.RegistryName)
}

// KVPath returns the directory used by the key-value store
func (c *Config) KVPath() string {
	return filepath.Join(c.StoragePath, "kv")
}

// SessionWindow returns the session grouping window as a number of seconds,
// guarding against zero or negative configuration.
func (c *Config) SessionWindow() int {
	if c.SessionTimeoutSeconds <= 0 {
		return 1800
	}
	return c.SessionTimeoutSeconds
}

// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/rentalsync/backend/internal/logger"
)

const envPrefix = "RENTALSYNC"

// Supported database drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Config is the runtime configuration for the server.
type Config struct {
	Addr    string
	DataDir string

	DBDriver string
	DBDSN    string

	// FeedBaseURL resolves root-relative feed paths such as "/fixtures/airbnb.ics".
	FeedBaseURL string
	FeedTimeout time.Duration

	// SyncSchedule is a cron spec for background sync. Empty disables it.
	SyncSchedule          string
	CancelMissingBookings bool

	JWTSecret string

	KafkaBrokers []string
	KafkaTopic   string

	LogLevel  string
	LogFormat string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// SyncWriteTimeout applies to the sync routes, which wait on every feed.
	SyncWriteTimeout time.Duration
}

// Load reads configuration from RENTALSYNC_* environment variables.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range []string{
		"addr", "data_dir", "db_driver", "db_dsn", "feed_base_url", "feed_timeout",
		"sync_schedule", "cancel_missing_bookings", "jwt_secret", "kafka_brokers", "kafka_topic",
		"log_level", "log_format", "read_timeout", "write_timeout", "idle_timeout", "shutdown_timeout",
		"sync_write_timeout",
	} {
		_ = v.BindEnv(key)
	}

	v.SetDefault("addr", ":8099")
	v.SetDefault("data_dir", "/data")
	v.SetDefault("db_driver", DriverSQLite)
	v.SetDefault("db_dsn", "")
	v.SetDefault("feed_base_url", "http://localhost:3000")
	v.SetDefault("feed_timeout", 30*time.Second)
	v.SetDefault("sync_schedule", "")
	v.SetDefault("cancel_missing_bookings", false)
	v.SetDefault("kafka_topic", "rentalsync.sync-events")
	v.SetDefault("log_level", logger.INFO)
	v.SetDefault("log_format", logger.JSON)
	v.SetDefault("read_timeout", 15*time.Second)
	v.SetDefault("write_timeout", 2*time.Minute)
	v.SetDefault("idle_timeout", 60*time.Second)
	v.SetDefault("shutdown_timeout", 30*time.Second)
	v.SetDefault("sync_write_timeout", 10*time.Minute)

	cfg := &Config{
		Addr:                  strings.TrimSpace(v.GetString("addr")),
		DataDir:               strings.TrimSpace(v.GetString("data_dir")),
		DBDriver:              strings.TrimSpace(v.GetString("db_driver")),
		DBDSN:                 strings.TrimSpace(v.GetString("db_dsn")),
		FeedBaseURL:           strings.TrimRight(strings.TrimSpace(v.GetString("feed_base_url")), "/"),
		FeedTimeout:           v.GetDuration("feed_timeout"),
		SyncSchedule:          strings.TrimSpace(v.GetString("sync_schedule")),
		CancelMissingBookings: v.GetBool("cancel_missing_bookings"),
		JWTSecret:             v.GetString("jwt_secret"),
		KafkaBrokers:          splitList(v.GetString("kafka_brokers")),
		KafkaTopic:            strings.TrimSpace(v.GetString("kafka_topic")),
		LogLevel:              strings.ToLower(strings.TrimSpace(v.GetString("log_level"))),
		LogFormat:             strings.ToLower(strings.TrimSpace(v.GetString("log_format"))),
		ReadTimeout:           v.GetDuration("read_timeout"),
		WriteTimeout:          v.GetDuration("write_timeout"),
		IdleTimeout:           v.GetDuration("idle_timeout"),
		ShutdownTimeout:       v.GetDuration("shutdown_timeout"),
		SyncWriteTimeout:      v.GetDuration("sync_write_timeout"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DSN returns the configured DSN, defaulting to a SQLite file in DataDir.
func (cfg *Config) DSN() string {
	if cfg.DBDSN != "" {
		return cfg.DBDSN
	}
	return filepath.Join(cfg.DataDir, "rentalsync.db")
}

// Validate reports every configuration problem at once.
func (cfg *Config) Validate() error {
	var problems []string

	if cfg.Addr == "" {
		problems = append(problems, "addr cannot be empty")
	}

	switch cfg.DBDriver {
	case DriverSQLite:
		if cfg.DBDSN == "" && cfg.DataDir == "" {
			problems = append(problems, "data_dir or db_dsn is required for sqlite3")
		}
	case DriverPostgres:
		if cfg.DBDSN == "" {
			problems = append(problems, "db_dsn is required for postgres")
		}
	default:
		problems = append(problems, fmt.Sprintf("db_driver must be %q or %q, got: %q", DriverSQLite, DriverPostgres, cfg.DBDriver))
	}

	if cfg.FeedBaseURL != "" {
		if u, err := url.Parse(cfg.FeedBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			problems = append(problems, fmt.Sprintf("feed_base_url must be an absolute URL, got: %q", cfg.FeedBaseURL))
		}
	}

	if cfg.FeedTimeout <= 0 {
		problems = append(problems, fmt.Sprintf("feed_timeout must be positive, got: %s", cfg.FeedTimeout))
	}

	if cfg.SyncSchedule != "" {
		if _, err := cron.ParseStandard(cfg.SyncSchedule); err != nil {
			problems = append(problems, fmt.Sprintf("sync_schedule is not a valid cron spec: %v", err))
		}
	}

	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		problems = append(problems, "kafka_topic is required when kafka_brokers is set")
	}

	switch cfg.LogFormat {
	case logger.JSON, logger.TEXT:
	default:
		problems = append(problems, fmt.Sprintf("log_format must be json or text, got: %q", cfg.LogFormat))
	}

	for name, d := range map[string]time.Duration{
		"read_timeout":       cfg.ReadTimeout,
		"write_timeout":      cfg.WriteTimeout,
		"idle_timeout":       cfg.IdleTimeout,
		"shutdown_timeout":   cfg.ShutdownTimeout,
		"sync_write_timeout": cfg.SyncWriteTimeout,
	} {
		if d <= 0 {
			problems = append(problems, fmt.Sprintf("%s must be positive, got: %s", name, d))
		}
	}

	if len(problems) > 0 {
		msg := "configuration validation failed:\n"
		for i, p := range problems {
			msg += fmt.Sprintf("  %d. %s\n", i+1, p)
		}
		return fmt.Errorf("%s", msg)
	}
	return nil
}

// LogConfiguration writes a redacted summary of the configuration.
func (cfg *Config) LogConfiguration(log *logger.Logger) {
	log.Info("Configuration loaded",
		"addr", cfg.Addr,
		"db_driver", cfg.DBDriver,
		"data_dir", cfg.DataDir,
		"feed_base_url", cfg.FeedBaseURL,
		"feed_timeout", cfg.FeedTimeout,
		"sync_schedule", cfg.SyncSchedule,
		"cancel_missing_bookings", cfg.CancelMissingBookings,
		"jwt_secret_set", cfg.JWTSecret != "",
		"kafka_brokers", cfg.KafkaBrokers,
		"kafka_topic", cfg.KafkaTopic,
		"log_level", cfg.LogLevel,
		"sync_write_timeout", cfg.SyncWriteTimeout,
	)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

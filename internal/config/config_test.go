package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("RENTALSYNC_DATA_DIR", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Addr != ":8099" {
		t.Fatalf("addr mismatch: %q", cfg.Addr)
	}
	if cfg.DBDriver != DriverSQLite {
		t.Fatalf("driver mismatch: %q", cfg.DBDriver)
	}
	if cfg.FeedTimeout != 30*time.Second {
		t.Fatalf("feed timeout mismatch: %v", cfg.FeedTimeout)
	}
	if cfg.CancelMissingBookings {
		t.Fatalf("expected cancel missing bookings off by default")
	}
	if cfg.SyncWriteTimeout <= cfg.WriteTimeout {
		t.Fatalf("sync write timeout %v should outlast write timeout %v", cfg.SyncWriteTimeout, cfg.WriteTimeout)
	}
	if !strings.HasSuffix(cfg.DSN(), "rentalsync.db") {
		t.Fatalf("unexpected default dsn: %q", cfg.DSN())
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("RENTALSYNC_ADDR", ":9000")
	t.Setenv("RENTALSYNC_FEED_BASE_URL", "http://fixtures.local:3000/")
	t.Setenv("RENTALSYNC_FEED_TIMEOUT", "5s")
	t.Setenv("RENTALSYNC_SYNC_SCHEDULE", "*/15 * * * *")
	t.Setenv("RENTALSYNC_CANCEL_MISSING_BOOKINGS", "true")
	t.Setenv("RENTALSYNC_KAFKA_BROKERS", "k1:9092, k2:9092,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Addr != ":9000" {
		t.Fatalf("addr mismatch: %q", cfg.Addr)
	}
	if cfg.FeedBaseURL != "http://fixtures.local:3000" {
		t.Fatalf("base url should lose trailing slash: %q", cfg.FeedBaseURL)
	}
	if cfg.FeedTimeout != 5*time.Second {
		t.Fatalf("feed timeout mismatch: %v", cfg.FeedTimeout)
	}
	if !cfg.CancelMissingBookings {
		t.Fatalf("expected cancel missing bookings on")
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("brokers mismatch: %v", cfg.KafkaBrokers)
	}
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := &Config{
		Addr:            "",
		DBDriver:        "mysql",
		FeedBaseURL:     "not a url",
		FeedTimeout:     0,
		SyncSchedule:    "every so often",
		LogFormat:       "xml",
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		IdleTimeout:     time.Second,
		ShutdownTimeout: time.Second,
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}

	for _, want := range []string{"addr", "db_driver", "feed_base_url", "feed_timeout", "sync_schedule", "log_format"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in error, got: %v", want, err)
		}
	}
}

func TestValidate_PostgresNeedsDSN(t *testing.T) {
	cfg := &Config{
		Addr:            ":8099",
		DBDriver:        DriverPostgres,
		FeedTimeout:     time.Second,
		LogFormat:       "json",
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		IdleTimeout:     time.Second,
		ShutdownTimeout: time.Second,
	}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "db_dsn") {
		t.Fatalf("expected db_dsn error, got %v", err)
	}
}

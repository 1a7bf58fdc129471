// Package main is the entry point for the rental calendar sync server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rentalsync/backend/internal/api"
	"github.com/rentalsync/backend/internal/booking"
	"github.com/rentalsync/backend/internal/calendar"
	"github.com/rentalsync/backend/internal/config"
	"github.com/rentalsync/backend/internal/logger"
	"github.com/rentalsync/backend/internal/notify"
	"github.com/rentalsync/backend/internal/storage"
	"github.com/rentalsync/backend/internal/websocket"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

// scheduledSyncTimeout bounds one background pass over every property.
const scheduledSyncTimeout = 10 * time.Minute

func main() {
	addr := flag.String("addr", "", "HTTP server address (overrides RENTALSYNC_ADDR)")
	dataDir := flag.String("data", "", "Data directory for the SQLite database (overrides RENTALSYNC_DATA_DIR)")
	healthCheck := flag.Bool("health-check", false, "Run health check and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	// Health check mode for Docker HEALTHCHECK
	if *healthCheck {
		if err := runHealthCheck(cfg.Addr); err != nil {
			fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	if envVer := os.Getenv("VERSION"); envVer != "" {
		version = envVer
	}

	log := logger.New(logger.Config{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: "rentalsync",
	})
	log.Info("starting server", "version", version)
	cfg.LogConfiguration(log)

	db, err := storage.Open(cfg.DBDriver, cfg.DSN())
	if err != nil {
		log.Fatal("failed to open database", "driver", cfg.DBDriver, "error", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := storage.RunMigrations(ctx, db, log); err != nil {
		log.Fatal("failed to run migrations", "error", err)
	}

	hub := websocket.NewHub(log)
	go hub.Run(ctx)

	notifiers := notify.Multi{websocket.NewEventBroadcaster(hub)}
	var publisher *notify.KafkaPublisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher, err = notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		if err != nil {
			log.Fatal("failed to create kafka publisher", "error", err)
		}
		notifiers = append(notifiers, publisher)
	}

	properties := storage.NewPropertyRepository(db)
	sources := storage.NewSourceRepository(db)
	bookings := storage.NewBookingRepository(db)

	syncService := calendar.NewSyncService(
		properties,
		sources,
		bookings,
		calendar.NewFetcher(cfg.FeedBaseURL, cfg.FeedTimeout),
		log,
	).WithNotifier(notifiers).WithCancelMissing(cfg.CancelMissingBookings)

	var scheduler *calendar.Scheduler
	if cfg.SyncSchedule != "" {
		scheduler = calendar.NewScheduler(syncService, cfg.SyncSchedule, scheduledSyncTimeout, log)
		if err := scheduler.Start(); err != nil {
			log.Fatal("failed to start sync scheduler", "error", err)
		}
	}

	router := api.NewRouter(api.Services{
		DB:         db,
		Properties: properties,
		Sources:    sources,
		Sync:       syncService,
		Calendar:   booking.NewCalendarService(bookings),
		Hub:        hub,
		Scheduler:  scheduler,
		Log:        log,
		JWTSecret:  cfg.JWTSecret,

		SyncWriteTimeout: cfg.SyncWriteTimeout,
	})
	if cfg.JWTSecret == "" {
		log.Warn("no JWT secret configured, trusting the X-Owner-ID header")
	}

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		log.Info("server listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server")

	if scheduler != nil {
		scheduler.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", "error", err)
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			log.Error("failed to close kafka publisher", "error", err)
		}
	}

	log.Info("server stopped")
}

// runHealthCheck performs a health check against the running server.
func runHealthCheck(addr string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://localhost" + addr + "/api/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

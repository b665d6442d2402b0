package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/MrKroemer/BarApp-WPA-Web/internal/config"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/events"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/feed"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/history"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/httpapi"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/idempotency"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/logging"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/notify"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/projection"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/service"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/store"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/store/memory"
	pgstore "github.com/MrKroemer/BarApp-WPA-Web/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := validateSecurityConfig(cfg); err != nil {
		logger.Error("invalid security configuration", "error", err)
		os.Exit(1)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(runCtx, 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 4)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(startCtx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", "error", err)
			os.Exit(1)
		}
		if err := pg.Migrate(startCtx); err != nil {
			logger.Error("postgres migration failed", "error", err)
			os.Exit(1)
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info("repository ready", "backend", "postgres")
	} else {
		repo = memory.NewSeeded()
		logger.Info("repository ready", "backend", "memory")
	}

	var reports history.Store = history.NewMemoryStore(cfg.ReportHistoryLimit)
	var idem idempotency.Store = idempotency.NewMemoryStore(cfg.IdempotencyTTL)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err := rdb.Ping(startCtx).Err(); err != nil {
			logger.Warn("redis unavailable, keeping report history and idempotency keys in memory", "error", err)
			_ = rdb.Close()
		} else {
			reports = history.NewRedisStore(rdb, history.DefaultKey, cfg.ReportHistoryLimit)
			idem = idempotency.NewRedisStore(rdb, cfg.IdempotencyTTL)
			closers = append(closers, rdb.Close)
			logger.Info("redis ready", "addr", cfg.RedisAddr)
		}
	}

	var publisher events.Publisher = events.NoopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		closers = append(closers, publisher.Close)
		logger.Info("event publisher ready", "brokers", strings.Join(cfg.KafkaBrokers, ","), "topic", cfg.KafkaTopic)
	}

	hub := feed.NewHub(repo, logger)
	closers = append(closers, hub.Close)
	if cfg.DatabaseURL != "" {
		stopListener, err := pgstore.StartListener(runCtx, cfg.DatabaseURL, hub, logger)
		if err != nil {
			logger.Warn("postgres change listener not started", "error", err)
		} else {
			closers = append(closers, func() error { stopListener(); return nil })
		}
	}

	loc := cfg.Location()
	projector := projection.NewProjector(loc, time.Now)
	go func() {
		if err := projector.Run(runCtx, hub); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("metrics projection stopped", "error", err)
		}
	}()

	svc := service.New(repo, service.Dependencies{
		Reports:     reports,
		Idempotency: idem,
		Events:      publisher,
		Changes:     hub,
		Notices:     notify.NewCenter(notify.DefaultLimit),
		Logger:      logger,
	}, service.Options{
		Location:            loc,
		CloseDayTimeout:     cfg.CloseDayTimeout,
		CloseDayMaxRetries:  cfg.CloseDayMaxRetries,
		CloseDayConcurrency: cfg.CloseDayConcurrency,
		CloseDayDeadline:    cfg.CloseDayDeadline,
	})

	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, cfg.OwnerEnrollmentCode, repo)
	google := httpapi.NewGoogleSignIn(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL, auth)
	if google == nil {
		logger.Info("google sign-in disabled")
	}
	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigin: cfg.AllowedOrigin,
		Google:        google,
		Metrics:       projector,
		Logger:        logger,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("bar backend listening", "addr", cfg.Address(), "timezone", loc.String())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-runCtx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			logger.Error("close error", "error", err)
		}
	}

	logger.Info("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.OwnerEnrollmentCode) < 8 {
		return fmt.Errorf("OWNER_ENROLLMENT_CODE must be set and at least 8 characters")
	}
	if err := validateCodeStrength(cfg.OwnerEnrollmentCode); err != nil {
		return fmt.Errorf("OWNER_ENROLLMENT_CODE is too weak: %w", err)
	}
	return nil
}

// validateCodeStrength rejects codes that are a single repeated character,
// an ascending or descending run, or on a known-weak list.
func validateCodeStrength(code string) error {
	known := map[string]bool{
		"12345678": true, "87654321": true, "password": true, "barapp123": true,
		"00000000": true, "11111111": true, "abcdefgh": true, "qwertyui": true,
		"senha123": true, "admin123": true, "owner123": true,
	}
	if known[strings.ToLower(code)] {
		return fmt.Errorf("common code not allowed")
	}

	allSame := true
	for i := 1; i < len(code); i++ {
		if code[i] != code[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("repeated-character code not allowed")
	}

	ascending, descending := true, true
	for i := 1; i < len(code); i++ {
		diff := int(code[i]) - int(code[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return fmt.Errorf("sequential code not allowed")
	}

	return nil
}

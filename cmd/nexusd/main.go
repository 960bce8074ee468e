package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-gruen/nexus/internal/config"
	"github.com/m-gruen/nexus/internal/constants"
	"github.com/m-gruen/nexus/internal/database"
	"github.com/m-gruen/nexus/internal/gate"
	"github.com/m-gruen/nexus/internal/models"
	"github.com/m-gruen/nexus/internal/relay"
	"github.com/m-gruen/nexus/internal/retry"
	"github.com/m-gruen/nexus/internal/service"
	"github.com/m-gruen/nexus/internal/token"
	"github.com/m-gruen/nexus/internal/tracing"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("Nexus %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	// Optional .env for local development; ignored when absent.
	_ = godotenv.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting Nexus")

	watcher := config.NewWatcher(*configPath, logger)
	watcher.OnReload(func(cfg *models.Config) {
		applyLogLevel(logger, cfg.LogLevel)
	})
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg := watcher.Config()

	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled")
	} else {
		applyLogLevel(logger, cfg.LogLevel)
	}

	tracingManager := tracing.NewManager(cfg.Tracing, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	// Initialize storage with exponential backoff retry
	var store *database.Store
	backoff := retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
		Jitter:       true,
	})

	err := backoff.Retry(ctx, func() error {
		var initErr error
		store, initErr = database.New(cfg.Database)
		if initErr != nil {
			logger.Warnf("Failed to initialize database: %v", initErr)
		}
		return initErr
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	defer func() { _ = store.Close() }()

	authSecret := os.Getenv("NEXUS_AUTH_SECRET")
	if authSecret == "" {
		return fmt.Errorf("NEXUS_AUTH_SECRET environment variable is required")
	}
	verifier, err := token.NewHMACVerifier(authSecret)
	if err != nil {
		return fmt.Errorf("failed to initialize token verifier: %w", err)
	}

	hub := relay.NewHub(cfg.Relay.SendBuffer, logger)
	wsHandler := relay.NewHandler(hub, verifier,
		time.Duration(cfg.Relay.WriteTimeoutMs)*time.Millisecond, logger)

	msgService := service.NewMessageService(store, gate.New(store), hub, logger)

	limiter := newLimiterPool(cfg.RateLimit.SendPerSecond, cfg.RateLimit.Burst)

	server, err := NewServer(cfg.Server, msgService, wsHandler, verifier, limiter, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	logger.WithField("port", cfg.Server.Port).Info("Nexus listening")

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(constants.DefaultShutdownTimeoutSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}

func applyLogLevel(logger *logrus.Logger, level string) {
	if level == "" {
		logger.SetLevel(logrus.InfoLevel)
		return
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", level)
		logger.SetLevel(logrus.InfoLevel)
		return
	}
	logger.SetLevel(parsed)
}

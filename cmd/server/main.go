package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	transport "github.com/carladovalle/bate-papo-uol-api/infrastructure/http"
	"github.com/carladovalle/bate-papo-uol-api/internal"
	"github.com/carladovalle/bate-papo-uol-api/moderation"
	"github.com/carladovalle/bate-papo-uol-api/repositories"
	"github.com/carladovalle/bate-papo-uol-api/runtime/workers"
	"github.com/carladovalle/bate-papo-uol-api/services"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes to provide meaningful status to the operating system or
// service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const shutdownTimeout = 5 * time.Second

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Room service terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting, so every defer (store closes included)
// executes before the process exits.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx := context.Background()

	// 2. Stores (BadgerDB + Bluge)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	if logger.Enabled(ctx, slog.LevelDebug) {
		endpoint := "/inspect"
		logger.Info("Debug Badger inspector available",
			"url", fmt.Sprintf("http://localhost:%d%s", config.DebugPort, endpoint))
		database.StartDebugServer(db, config.DebugPort, endpoint, MessageMapper)
	}

	// 3. Core wiring
	clock := internal.SystemClock{}
	registry := repositories.NewParticipantRegistry(clock)
	messageRepository, err := repositories.NewMessageRepository(db, blugeWriter, logger, clock)
	if err != nil {
		return exitRuntime, fmt.Errorf("message repository: %w", err)
	}
	defer func() { _ = messageRepository.Close() }()

	moderator, err := buildModerator(config, logger)
	if err != nil {
		return exitConfig, err
	}

	roomService := services.NewRoomService(logger, registry, messageRepository, moderator)

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Supervised background workers: sweeper + health monitor
	sup := workers.NewSupervisor(logger, config.RestartInterval)
	sup.Add(
		workers.NewPresenceSweeper(logger, registry, messageRepository, clock, config.SweepInterval, config.StaleAfter),
		workers.NewHealthMonitoringWorker(logger, config.MetricInterval),
	)
	supDone := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supDone)
	}()

	// 6. HTTP server
	server := transport.NewServer(logger, roomService, transport.SenderOnlyPolicy, config.SearchLimit)

	errChan := make(chan error, 1)
	address := fmt.Sprintf("0.0.0.0:%d", config.Port)
	go func() {
		logger.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := server.Listen(address); err != nil {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		return exitRuntime, err
	}

	// 8. Final Cleanup (Graceful Shutdown)
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", "err", err)
	}
	sup.Stop()
	<-supDone
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}

// buildModerator returns nil when no censored words are configured; the
// room service then skips moderation entirely.
func buildModerator(config internal.Config, logger *slog.Logger) (*moderation.Moderator, error) {
	if len(config.CensoredWords) == 0 {
		logger.Info("Moderation disabled, no censored words configured")
		return nil, nil
	}
	replacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return nil, err
	}
	moderator, err := moderation.NewModerator(config.CensoredWords, replacement)
	if err != nil {
		return nil, fmt.Errorf("moderator: %w", err)
	}
	logger.Info("Moderation enabled", "words", len(config.CensoredWords))
	return moderator, nil
}

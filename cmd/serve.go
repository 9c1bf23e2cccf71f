package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/questdex/questdex/internal/infrastructure/sqlite"
	"github.com/questdex/questdex/internal/log"
	"github.com/questdex/questdex/internal/quests/application"
	"github.com/questdex/questdex/internal/server"
	"github.com/questdex/questdex/internal/tracing"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the quest index HTTP server",
	Long: `Run the quest index as an HTTP server. Clients register quest versions
and resolve constraint queries through REST endpoints; an SSE stream
broadcasts registrations and removals as they happen.

Example:
  questdex serve                   # Start on the configured address
  questdex serve --addr :8080      # Start on port 8080
  questdex serve --addr :0         # Let the OS pick a port`,
	RunE: runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Address to listen on (overrides config)")
	serveCmd.Flags().String("db", "", "Path to the quest database file (overrides config)")
	_ = viper.BindPFlag("db_path", serveCmd.Flags().Lookup("db"))
}

func runServe(_ *cobra.Command, _ []string) error {
	// Initialize logging if debug mode enabled (via flag or env var)
	debug := os.Getenv("QUESTDEX_DEBUG") != "" || debugFlag
	if debug {
		logPath := os.Getenv("QUESTDEX_LOG")
		if logPath == "" {
			logPath = cfg.LogPath
		}

		cleanup, err := log.Init(logPath)
		if err != nil {
			return fmt.Errorf("initializing logging: %w", err)
		}
		defer cleanup()

		log.Info(log.CatConfig, "questdex starting", "debug", true, "logPath", logPath)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Tracing provider (no-op unless enabled in config)
	tp, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return fmt.Errorf("creating trace provider: %w", err)
	}

	db, err := sqlite.NewDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening quest database: %w", err)
	}
	defer func() { _ = db.Close() }()

	resolver := application.NewResolver(db.Quests(), application.WithTracer(tp.Tracer()))
	defer resolver.Close()

	handler := server.NewHandlerWithConfig(server.HandlerConfig{
		Resolver: resolver,
		Tracer:   tp.Tracer(),
	})

	addr := serveAddr
	if addr == "" {
		addr = cfg.Addr
	}

	srv, err := server.NewServer(server.ServerConfig{
		Addr:    addr,
		Handler: handler,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	// Handle shutdown signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	fmt.Printf("questdex listening on port %d\n", srv.Port())
	fmt.Println("Press Ctrl+C to stop")

	// Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		fmt.Printf("\nReceived %s, shutting down...\n", sig)
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error(log.CatHTTP, "Error stopping server", "error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Error(log.CatTrace, "Error shutting down trace provider", "error", err)
	}

	fmt.Println("Server stopped")
	return nil
}

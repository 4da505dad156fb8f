package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/SkyChan0819/ntu-admin-helper/internal/ingest"
)

var (
	version = "dev"

	// Global flags
	verbose    bool
	cursorFile string

	// Run command flags
	chunksFile    string
	helperURL     string
	ratePerSecond float64
	dryRun        bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "ingestctl",
	Short:   "Submit processed passages to the admin helper index",
	Version: version,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Submit the processed chunks file",
	Long: `Submit a processed_chunks.json file to the helper's backfill endpoint.

Chunks are grouped per source page and each source is submitted as one
batch, so the server replaces that page's passages atomically. The run
can be resumed from where it left off using cursor tracking.

Examples:
  # Submit everything (resumes from cursor)
  ingestctl run --chunks processed_chunks.json

  # Dry run to see what would be submitted
  ingestctl run --chunks processed_chunks.json --dry-run

  # Slow down submissions
  ingestctl run --rate 0.5`,
	RunE: runSubmit,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current cursor status",
	RunE:  showStatus,
}

var resetCmd = &cobra.Command{
	Use:   "reset-cursor",
	Short: "Reset the cursor to start from beginning",
	RunE:  resetCursor,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&cursorFile, "cursor-file", "ingest_cursor.json", "cursor file path")

	runCmd.Flags().StringVar(&chunksFile, "chunks", "processed_chunks.json", "processed chunks file path")
	runCmd.Flags().StringVar(&helperURL, "helper-url", "", "helper base URL (defaults to HELPER_URL env or http://localhost:9020)")
	runCmd.Flags().Float64Var(&ratePerSecond, "rate", 2, "batches submitted per second")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be submitted without submitting")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resetCmd)
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	cfg := ingest.DefaultConfig()
	cfg.ChunksFile = chunksFile
	cfg.CursorFile = cursorFile
	cfg.RatePerSecond = ratePerSecond
	cfg.DryRun = dryRun

	if helperURL != "" {
		cfg.HelperURL = helperURL
	} else if env := os.Getenv("HELPER_URL"); env != "" {
		cfg.HelperURL = env
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("starting submission",
		slog.String("chunks_file", cfg.ChunksFile),
		slog.String("helper_url", cfg.HelperURL),
		slog.String("cursor_file", cfg.CursorFile),
		slog.Float64("rate", cfg.RatePerSecond),
		slog.Bool("dry_run", cfg.DryRun),
	)

	runner, err := ingest.NewRunner(cfg, logger)
	if err != nil {
		return fmt.Errorf("create runner: %w", err)
	}
	defer runner.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down...", slog.String("signal", sig.String()))
		cancel()
	}()

	if err := runner.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("submission interrupted, cursor saved for resume")
			return nil
		}
		return fmt.Errorf("run submission: %w", err)
	}

	return nil
}

func showStatus(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	cfg := ingest.DefaultConfig()
	cfg.CursorFile = cursorFile

	runner, err := ingest.NewRunner(cfg, logger)
	if err != nil {
		return fmt.Errorf("create runner: %w", err)
	}
	defer runner.Close()

	cursor, err := runner.GetCursor()
	if err != nil {
		return fmt.Errorf("get cursor: %w", err)
	}

	if cursor.IsEmpty() {
		fmt.Println("No cursor found. Submission will start from the beginning.")
		return nil
	}

	fmt.Printf("Cursor Status:\n")
	fmt.Printf("  Version:         %d\n", cursor.Version)
	fmt.Printf("  Last Source URL: %s\n", cursor.LastSourceURL)
	fmt.Printf("  Submitted Count: %d\n", cursor.SubmittedCount)
	fmt.Printf("  Updated At:      %s\n", cursor.UpdatedAt.Format(time.RFC3339))

	return nil
}

func resetCursor(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	cfg := ingest.DefaultConfig()
	cfg.CursorFile = cursorFile

	runner, err := ingest.NewRunner(cfg, logger)
	if err != nil {
		return fmt.Errorf("create runner: %w", err)
	}
	defer runner.Close()

	if err := runner.ResetCursor(); err != nil {
		return fmt.Errorf("reset cursor: %w", err)
	}

	logger.Info("cursor reset successfully")
	return nil
}

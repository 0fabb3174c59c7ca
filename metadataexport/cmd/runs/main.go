package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/natserract/idmcexport/metadataexport/schema/postgres"
	"github.com/natserract/idmcexport/pkg/config"
	"github.com/natserract/idmcexport/pkg/logging"
	"go.uber.org/zap"
)

func main() {
	limit := flag.Int("n", 10, "number of runs to show")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger; warn keeps connection chatter out of the table
	logger, err := logging.New("warn", cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if !cfg.LedgerEnabled {
		fmt.Fprintf(os.Stderr, "Run ledger is not configured (set DB_HOST)\n")
		os.Exit(1)
	}

	// Initialize database connection
	ctx := context.Background()
	db, err := postgres.New(ctx, postgres.NewConfig(), logger)
	if err != nil {
		logger.Error("Failed to connect to database", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	runs, err := db.ListRecentRuns(ctx, *limit)
	if errors.Is(err, postgres.ErrNoLedger) {
		fmt.Println("No runs recorded yet")
		return
	}
	if err != nil {
		logger.Error("Failed to list runs", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := writeRuns(os.Stdout, runs, time.Local); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

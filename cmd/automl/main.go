// Package main provides the entry point for the AutoML job engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"automl-engine/config"
	"automl-engine/core/engine"
	"automl-engine/core/executor"
	"automl-engine/core/repository"

	log "github.com/golang/glog"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "automl",
	Short: "AutoML job engine",
	Long:  "Runs AutoML jobs: feature engineering, hyperparameter search, model selection and evaluation, served over a REST API.",
}

func init() {
	// glog registers its flags on the standard flag set
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()
	// Silences glog's "logging before flag.Parse"; cobra sets the values
	_ = flag.CommandLine.Parse(nil)
	defer log.Flush()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		log.Flush()
		os.Exit(1)
	}
}

// stack is an engine with the stores it was built on
type stack struct {
	engine *engine.Engine
	jobs   repository.JobStore
	close  func()
}

// newStack builds the engine on PostgreSQL when DatabaseURL is set and on
// in-memory stores otherwise
func newStack(ctx context.Context, cfg *config.Config) (*stack, error) {
	opts := engine.Options{
		Runner:   executor.NewSimulatedRunner(cfg.TrialLatency),
		Pipeline: cfg.Pipeline(),
	}
	closeFn := func() {}

	if cfg.DatabaseURL != "" {
		db, err := repository.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
		log.Infof("Database connected successfully")
		opts.Jobs = repository.NewPostgresJobStore(db)
		opts.Artifacts = repository.NewPostgresArtifactStore(db)
		closeFn = func() { db.Close() }
	} else {
		log.Infof("DATABASE_URL not set, keeping jobs in memory")
		opts.Jobs = repository.NewMemoryJobStore()
	}

	return &stack{engine: engine.New(opts), jobs: opts.Jobs, close: closeFn}, nil
}

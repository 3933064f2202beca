package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"automl-engine/config"
	"automl-engine/core/spec"

	log "github.com/golang/glog"
	"github.com/spf13/cobra"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Run one job from a YAML spec and print its final snapshot",
	Long: `Creates the job described by the YAML file, runs the full pipeline in-process and prints
the job with its feature engineering steps, optimization run and model selection as JSON.

SIGINT stops the job; the snapshot is still printed.`,
	RunE: runJob,
}

var runSpecPath string

func init() {
	runCommand.Flags().StringVarP(&runSpecPath, "file", "f", "", "Path to job spec YAML")
	_ = runCommand.MarkFlagRequired("file")
	rootCmd.AddCommand(runCommand)
}

func runJob(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	data, err := os.ReadFile(runSpecPath)
	if err != nil {
		return fmt.Errorf("failed to read job spec: %w", err)
	}
	jobSpec, err := spec.ParseJobSpec(string(data))
	if err != nil {
		return fmt.Errorf("invalid job spec: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	st, err := newStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()
	eng := st.engine

	job, err := eng.CreateJob(ctx, jobSpec)
	if err != nil {
		return err
	}
	if _, err := eng.StartJob(ctx, job.ID); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		eng.Wait()
		close(done)
	}()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	select {
	case <-done:
	case <-sigCtx.Done():
		log.Infof("Job %s: interrupted, stopping", job.ID)
		if _, err := eng.StopJob(context.Background(), job.ID); err != nil {
			log.Warningf("Job %s: stop failed: %v", job.ID, err)
		}
		<-done
	}

	snapshot, err := eng.Snapshot(ctx, job.ID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(snapshot)
}

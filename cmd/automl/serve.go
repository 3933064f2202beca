package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"automl-engine/api/rest/routes"
	"automl-engine/config"
	"automl-engine/core/monitoring"

	log "github.com/golang/glog"
	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCommand = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST API and the job engine",
	Long: `Serves the /v1 API, /metrics and /health, and monitors running jobs.

Configuration comes from AUTOML_CONFIG (YAML) and environment variables. SIGINT or SIGTERM
stops the server; running jobs end failed with reason engine_shutdown.`,
	RunE: runServe,
}

var servePort string

func init() {
	serveCommand.Flags().StringVarP(&servePort, "port", "p", "", "Port to listen on (defaults to SERVER_PORT)")
	rootCmd.AddCommand(serveCommand)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if servePort != "" {
		cfg.ServerPort = servePort
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := newStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	r := mux.NewRouter()
	routes.SetupRoutes(r, st.engine, monitoring.NewMetricsExporter(st.jobs))
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Infof("Starting server on port %s", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return monitoring.NewJobMonitor(st.jobs, cfg.MonitorPeriod, nil).Start(gCtx)
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		log.Infof("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return errors.Join(server.Shutdown(shutdownCtx), st.engine.Shutdown(shutdownCtx))
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Infof("Server exited")
	return nil
}

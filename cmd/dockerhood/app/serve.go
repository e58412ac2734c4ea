package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"log/slog"

	"github.com/exact-lab/dockerhood/internal/api"
	"github.com/exact-lab/dockerhood/internal/config"
	"github.com/exact-lab/dockerhood/internal/coordinator"
	"github.com/exact-lab/dockerhood/internal/docker"
	"github.com/exact-lab/dockerhood/internal/request"
	"github.com/exact-lab/dockerhood/internal/service"
	"github.com/exact-lab/dockerhood/internal/status"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dockerhood service",
	Long: `Start the dockerhood service.

The service requires a configuration file (--config) that specifies:
- The project name, the remote Docker hosts and the worker queues
- Request retention and status refresh intervals

Mutating operations are accepted over the HTTP interface and executed
strictly one at a time by the coordinator.`,
	RunE: runServe,
}

const (
	defaultGracefulTimeout = 30 * time.Second // Time for in-flight requests to finish on shutdown
	serverRequestTimeout   = 10 * time.Second // Submissions and polls should respond quickly
	serverReadTimeout      = 10 * time.Second // Enough for headers and small requests
	serverWriteTimeout     = 15 * time.Second // Must be > serverRequestTimeout to let middleware handle timeout
	serverIdleTimeout      = 60 * time.Second // Keep connections alive for reuse
)

func init() {
	serveCmd.Flags().String("address", ":8080", "Address to listen on")
	serveCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")

	err := viper.BindPFlag("address", serveCmd.Flags().Lookup("address"))
	if err != nil {
		slog.Error("Failed to bind address flag", "error", err)
		os.Exit(1)
	}
	err = viper.BindPFlag("config", serveCmd.Flags().Lookup("config"))
	if err != nil {
		slog.Error("Failed to bind config flag", "error", err)
		os.Exit(1)
	}

	if err := serveCmd.MarkFlagRequired("config"); err != nil {
		slog.Error("Failed to mark config flag as required", "error", err)
		os.Exit(1)
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	address := viper.GetString("address")
	configPath := viper.GetString("config")

	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	slog.Info("Loaded configuration",
		"path", configPath,
		"project", cfg.Project,
		"hosts", len(cfg.Hosts),
		"queues", len(cfg.Queues))

	// procCtx is the process-wide stop flag: cancelled exactly once, by a
	// shutdown request or by a signal, and observed by every background
	// loop. It is never reset.
	procCtx, stop := context.WithCancel(context.Background())
	defer stop()

	fleet, err := docker.NewFleet(cfg)
	if err != nil {
		return fmt.Errorf("failed to create Docker fleet: %w", err)
	}

	cache := status.NewCache(docker.NewProvider(fleet))
	updater := status.NewUpdater(cache, status.WithUpdateInterval(cfg.UpdateInterval()))
	manager := request.NewManager(
		request.WithSweepInterval(cfg.SweepInterval()),
		request.WithDiscardAfter(cfg.DiscardAfter()),
	)

	svc := service.New(procCtx, manager, cache, fleet)

	go updater.Run(procCtx)
	go manager.Run(procCtx)

	coord := coordinator.New(manager, updater, stop,
		coordinator.WithResponsiveness(cfg.ResponsivenessInterval()))
	go func() {
		if err := coord.Start(procCtx); err != nil {
			slog.Error("Coordinator failed", "error", err)
		}
	}()

	router := api.NewServer(svc,
		api.WithMiddlewares(
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(serverRequestTimeout),
			api.LoggingMiddleware,
		),
	)

	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	go func() {
		slog.Info("Server listening", "address", address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Failed to start server", "error", err)
			stop()
		}
	}()

	// Wait for a signal or for a shutdown request executed by the
	// coordinator
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		slog.Info("Shutting down on signal", "signal", sig.String())
		stop()
	case <-procCtx.Done():
		slog.Info("Shutting down on request")
	}

	if err := coord.Stop(); err != nil {
		slog.Error("Failed to stop coordinator", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		return err
	}

	slog.Info("Shutdown complete")
	return nil
}

package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/anveshkr/stockscout/internal/api"
	"github.com/anveshkr/stockscout/internal/api/handlers"
	"github.com/anveshkr/stockscout/internal/research"
	"github.com/anveshkr/stockscout/internal/scheduler"
	"github.com/anveshkr/stockscout/internal/scheduler/jobs"
	"github.com/anveshkr/stockscout/pkg/config"
	"github.com/anveshkr/stockscout/pkg/logger"
	"github.com/anveshkr/stockscout/pkg/redis"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long: `Starts the REST API server.

Endpoints:
  GET  /health        - Health check
  POST /api/reports   - Generate a research report
  GET  /api/stages    - List pipeline stages
  GET  /ws/events     - Pipeline progress events (WebSocket)

When SCHEDULER_ENABLED is set the cache prewarm scheduler runs in the
same process.

Example:
  go run ./cmd/scout api
  go run ./cmd/scout api --port 8087`,
	RunE: runAPIServer,
}

var apiPort string

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API server port (default from config)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if apiPort != "" {
		cfg.Port = apiPort
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	log := logger.New(cfg)

	log.WithFields(map[string]interface{}{
		"port": cfg.Port,
		"env":  cfg.Env,
	}).Info("Initializing API server")

	redisClient, err := redis.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer redisClient.Close()

	svc, err := research.New(cfg, redisClient, log)
	if err != nil {
		return fmt.Errorf("init pipeline: %w", err)
	}
	defer svc.Close()

	hub := api.NewEventHub(log)
	svc.OnEvent(hub.Publish)

	reportHandler := handlers.NewReportHandler(svc, log)
	router := api.NewRouter(reportHandler, hub, log)
	server := api.New(cfg, log, router)

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(log)
		if err := sched.AddJob(jobs.NewPrewarmJob(svc, cfg.Scheduler.Watchlist, cfg.Scheduler.Spec, log)); err != nil {
			return fmt.Errorf("register prewarm job: %w", err)
		}
		sched.Start()
		defer sched.Stop()
	}

	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	fmt.Printf("Server running on http://localhost:%s\n", cfg.Port)
	fmt.Println("Press Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}

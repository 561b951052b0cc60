package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/anveshkr/stockscout/internal/research"
	"github.com/anveshkr/stockscout/internal/scheduler"
	"github.com/anveshkr/stockscout/internal/scheduler/jobs"
	"github.com/anveshkr/stockscout/pkg/config"
	"github.com/anveshkr/stockscout/pkg/logger"
	"github.com/anveshkr/stockscout/pkg/redis"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Manage the background scheduler",
	Long: `Starts the scheduler daemon or manages its jobs.

Registered jobs:
- cache_prewarm: runs the pipeline for each watchlist symbol so cached
  results stay fresh during market hours

Example:
  go run ./cmd/scout scheduler start
  go run ./cmd/scout scheduler list
  go run ./cmd/scout scheduler run cache_prewarm
  go run ./cmd/scout scheduler history cache_prewarm`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the scheduler daemon",
		RunE:  runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "List registered jobs",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "Run a job immediately",
		Args:  cobra.ExactArgs(1),
		RunE:  runJobNow,
	}

	schedulerHistoryCmd = &cobra.Command{
		Use:   "history [job_name]",
		Short: "Show recent executions of a job",
		Args:  cobra.ExactArgs(1),
		RunE:  showJobHistory,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
	schedulerCmd.AddCommand(schedulerHistoryCmd)
}

func runScheduler(cmd *cobra.Command, args []string) error {
	sched, cleanup, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer cleanup()

	sched.Start()

	fmt.Println("Scheduler started")
	fmt.Println("Registered jobs:")
	for _, jobName := range sched.GetAllJobs() {
		fmt.Printf("  - %s\n", jobName)
	}
	fmt.Println("Press Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("Shutting down scheduler...")
	sched.Stop()

	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	sched, cleanup, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer cleanup()

	fmt.Println("Registered jobs:")
	for _, jobName := range sched.GetAllJobs() {
		fmt.Printf("  - %s\n", jobName)
	}

	return nil
}

func runJobNow(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	sched, cleanup, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer cleanup()

	fmt.Printf("Running job: %s\n", jobName)

	if err := sched.RunJob(jobName); err != nil {
		return fmt.Errorf("run job: %w", err)
	}

	// RunJob is asynchronous; watch the history until the result lands.
	for {
		time.Sleep(time.Second)

		history, err := sched.GetJobHistory(jobName)
		if err != nil {
			return err
		}
		results := history.GetLatestResults(1)
		if len(results) == 0 {
			continue
		}

		printJobResult(results[0])
		if !results[0].Success {
			return fmt.Errorf("job %s failed", jobName)
		}
		return nil
	}
}

func showJobHistory(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	sched, cleanup, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer cleanup()

	history, err := sched.GetJobHistory(jobName)
	if err != nil {
		return err
	}

	results := history.GetLatestResults(10)
	if len(results) == 0 {
		fmt.Printf("No executions recorded for %s\n", jobName)
		return nil
	}

	fmt.Printf("Last %d executions of %s (success rate %.0f%%, %d failed overall):\n",
		len(results), jobName, history.GetSuccessRate()*100, len(history.GetFailedResults()))
	for _, result := range results {
		printJobResult(result)
	}

	return nil
}

func printJobResult(result scheduler.JobResult) {
	status := "ok"
	if !result.Success {
		status = "failed: " + result.Error
	}
	fmt.Printf("  %s  %-10s  %s\n",
		result.StartTime.Format("2006-01-02 15:04:05"),
		result.Duration.Round(time.Millisecond),
		status)
}

func initScheduler() (*scheduler.Scheduler, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	log := logger.New(cfg)

	redisClient, err := redis.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}

	svc, err := research.New(cfg, redisClient, log)
	if err != nil {
		redisClient.Close()
		return nil, nil, fmt.Errorf("init pipeline: %w", err)
	}

	sched := scheduler.New(log)
	if err := sched.AddJob(jobs.NewPrewarmJob(svc, cfg.Scheduler.Watchlist, cfg.Scheduler.Spec, log)); err != nil {
		svc.Close()
		redisClient.Close()
		return nil, nil, fmt.Errorf("register prewarm job: %w", err)
	}

	cleanup := func() {
		svc.Close()
		redisClient.Close()
	}
	return sched, cleanup, nil
}

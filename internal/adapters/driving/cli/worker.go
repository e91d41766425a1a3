package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docgraph/internal/logger"
	"github.com/custodia-labs/docgraph/internal/metrics"
)

// shutdownTimeout bounds how long in-flight jobs may run after a signal.
const shutdownTimeout = 30 * time.Second

var (
	workerConcurrency int
	workerMetricsAddr string
	workerNoScheduler bool
	workerJSONLogs    bool
)

// serveMetrics is replaced in tests.
var serveMetrics = metrics.Serve

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Process queued jobs until interrupted",
	Long: `Runs the worker pool over the document-indexing, entity-extraction and
batch-operations queues, together with the scheduler and the Prometheus
/metrics endpoint.

On SIGINT or SIGTERM the pool stops taking jobs, waits for in-flight jobs
to finish and closes the queue.`,
	Args: cobra.NoArgs,
	RunE: runWorker,
}

func init() {
	workerCmd.Flags().IntVarP(&workerConcurrency, "concurrency", "c", 0, "workers per queue (default from config)")
	workerCmd.Flags().StringVar(&workerMetricsAddr, "metrics-addr", "", "listen address for /metrics (default from config)")
	workerCmd.Flags().BoolVar(&workerNoScheduler, "no-scheduler", false, "do not run scheduled tasks")
	workerCmd.Flags().BoolVar(&workerJSONLogs, "json-logs", false, "log as JSON")
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, _ []string) error {
	if workerPool == nil || queueService == nil {
		return errors.New("worker pool not configured")
	}
	if workerJSONLogs {
		logger.SetJSON(true)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stopBackground := startBackground(ctx, !workerNoScheduler)

	if err := workerPool.Start(ctx); err != nil {
		stopBackground()
		return fmt.Errorf("starting workers: %w", err)
	}
	cmd.Println("Worker running. Press Ctrl+C to stop.")

	<-ctx.Done()
	cmd.Println("Shutting down...")
	stopBackground()
	return shutdownQueue()
}

// startBackground runs the scheduler and the metrics endpoint until the
// returned function is called.
func startBackground(ctx context.Context, withScheduler bool) func() {
	bgCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{}, 2)
	running := 0

	if withScheduler && schedulerService != nil {
		running++
		go func() {
			defer func() { done <- struct{}{} }()
			if err := schedulerService.Start(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("scheduler stopped: %v", err)
			}
		}()
	}

	addr := appConfig.Metrics.Addr
	if workerMetricsAddr != "" {
		addr = workerMetricsAddr
	}
	if addr != "" {
		running++
		go func() {
			defer func() { done <- struct{}{} }()
			logger.WithField("addr", addr).Info("serving metrics")
			if err := serveMetrics(bgCtx, addr); err != nil {
				logger.Warn("metrics endpoint stopped: %v", err)
			}
		}()
	}

	return func() {
		cancel()
		for i := 0; i < running; i++ {
			<-done
		}
		running = 0
	}
}

func shutdownQueue() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := queueService.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docgraph/internal/core/domain"
)

var (
	enqueuePriority string
	enqueueReindex  bool
	batchLimit      int
	queueJSON       bool
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Schedule background work",
	Long: `Adds jobs to the durable queue processed by "docgraph worker".

Per-document jobs have deterministic ids, so enqueueing the same document
twice while the first job is outstanding is a no-op.`,
}

var enqueueIndexCmd = &cobra.Command{
	Use:   "index [doc-id]",
	Short: "Enqueue indexing of a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runEnqueueIndex,
}

var enqueueExtractCmd = &cobra.Command{
	Use:   "extract [doc-id]",
	Short: "Enqueue entity extraction for a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runEnqueueExtract,
}

var enqueueBatchCmd = &cobra.Command{
	Use:   "batch [index-pending|reindex] [doc-id...]",
	Short: "Enqueue a batch operation",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runEnqueueBatch,
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect the job queues",
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show job counts per queue and state",
	Args:  cobra.NoArgs,
	RunE:  runQueueStats,
}

func init() {
	enqueueCmd.PersistentFlags().StringVarP(&enqueuePriority, "priority", "p", string(domain.PriorityNormal),
		"job priority: high, normal or low")
	enqueueIndexCmd.Flags().BoolVar(&enqueueReindex, "reindex", false, "reset the document to pending first")
	enqueueBatchCmd.Flags().IntVarP(&batchLimit, "limit", "n", 100, "documents per index-pending batch")

	enqueueCmd.AddCommand(enqueueIndexCmd)
	enqueueCmd.AddCommand(enqueueExtractCmd)
	enqueueCmd.AddCommand(enqueueBatchCmd)

	queueStatsCmd.Flags().BoolVar(&queueJSON, "json", false, "output stats as JSON")
	queueCmd.AddCommand(queueStatsCmd)

	rootCmd.AddCommand(enqueueCmd)
	rootCmd.AddCommand(queueCmd)
}

func runEnqueueIndex(cmd *cobra.Command, args []string) error {
	if queueService == nil {
		return errors.New("queue service not configured")
	}

	job, created, err := queueService.EnqueueIndexJob(cmd.Context(), args[0], enqueueReindex, domain.ParsePriority(enqueuePriority))
	if err != nil {
		return fmt.Errorf("failed to enqueue: %w", err)
	}
	printEnqueued(cmd, job, created)
	return nil
}

func runEnqueueExtract(cmd *cobra.Command, args []string) error {
	if queueService == nil {
		return errors.New("queue service not configured")
	}

	// The job carries the owning org, so resolve it from the document
	// rather than trusting --org.
	org := currentOrg()
	if documentService != nil {
		doc, err := documentService.Get(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to get document: %w", err)
		}
		org = doc.OrgID
	}

	job, created, err := queueService.EnqueueExtractionJob(cmd.Context(), args[0], org, domain.ParsePriority(enqueuePriority))
	if err != nil {
		return fmt.Errorf("failed to enqueue: %w", err)
	}
	printEnqueued(cmd, job, created)
	return nil
}

func runEnqueueBatch(cmd *cobra.Command, args []string) error {
	if queueService == nil {
		return errors.New("queue service not configured")
	}

	var payload domain.BatchJobPayload
	switch args[0] {
	case "index-pending", string(domain.BatchIndexPending):
		payload = domain.BatchJobPayload{Operation: domain.BatchIndexPending, Limit: batchLimit}
	case string(domain.BatchReindex):
		if len(args) < 2 {
			return errors.New("reindex requires at least one document id")
		}
		payload = domain.BatchJobPayload{Operation: domain.BatchReindex, DocumentIDs: args[1:]}
	default:
		return fmt.Errorf("unknown batch operation %q", args[0])
	}

	job, err := queueService.EnqueueBatchJob(cmd.Context(), payload, domain.ParsePriority(enqueuePriority))
	if err != nil {
		return fmt.Errorf("failed to enqueue: %w", err)
	}
	printEnqueued(cmd, job, true)
	return nil
}

func printEnqueued(cmd *cobra.Command, job domain.Job, created bool) {
	if !created {
		cmd.Printf("Job %s already %s on %s\n", job.ID, job.State, job.Queue)
		return
	}
	cmd.Printf("Enqueued job %s on %s (priority %s)\n", job.ID, job.Queue, job.Priority)
}

func runQueueStats(cmd *cobra.Command, _ []string) error {
	if queueService == nil {
		return errors.New("queue service not configured")
	}

	stats, err := queueService.AllStats(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read queue stats: %w", err)
	}
	if queueJSON {
		return printJSON(cmd, stats)
	}

	cmd.Printf("  %-20s %8s %8s %8s %8s %10s\n", "QUEUE", "WAITING", "ACTIVE", "DELAYED", "FAILED", "COMPLETED")
	for _, s := range stats {
		cmd.Printf("  %-20s %8d %8d %8d %8d %10d\n", s.Queue, s.Waiting, s.Active, s.Delayed, s.Failed, s.Completed)
	}
	return nil
}

package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docgraph/internal/core/domain"
)

var (
	indexJSON         bool
	indexChunkSize    int
	indexChunkOverlap int
	indexPendingLimit int
)

var indexCmd = &cobra.Command{
	Use:   "index [doc-id]",
	Short: "Index a document now",
	Long: `Runs the indexing pipeline in this process: download, text extraction,
chunking, embedding and chunk replacement. The document must be pending.`,
	Args:        cobra.ExactArgs(1),
	Annotations: noQueue(),
	RunE:        runIndex,
}

var reindexCmd = &cobra.Command{
	Use:         "reindex [doc-id]",
	Short:       "Reset a document to pending and index it again",
	Args:        cobra.ExactArgs(1),
	Annotations: noQueue(),
	RunE:        runReindex,
}

var indexPendingCmd = &cobra.Command{
	Use:         "index-pending",
	Short:       "Index pending documents, oldest first",
	Args:        cobra.NoArgs,
	Annotations: noQueue(),
	RunE:        runIndexPending,
}

func init() {
	for _, c := range []*cobra.Command{indexCmd, reindexCmd, indexPendingCmd} {
		c.Flags().BoolVar(&indexJSON, "json", false, "output results as JSON")
		c.Flags().IntVar(&indexChunkSize, "chunk-size", 0, "chunk size in characters (default from config)")
		c.Flags().IntVar(&indexChunkOverlap, "chunk-overlap", 0, "chunk overlap in characters (default from config)")
	}
	indexPendingCmd.Flags().IntVarP(&indexPendingLimit, "limit", "n", 10, "maximum number of documents")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(reindexCmd)
	rootCmd.AddCommand(indexPendingCmd)
}

func indexOptions() domain.IndexOptions {
	return domain.IndexOptions{ChunkSize: indexChunkSize, ChunkOverlap: indexChunkOverlap}
}

func runIndex(cmd *cobra.Command, args []string) error {
	if indexingService == nil {
		return errors.New("indexing service not configured")
	}
	return reportIndexing(cmd, indexingService.IndexDocument(cmd.Context(), args[0], indexOptions()))
}

func runReindex(cmd *cobra.Command, args []string) error {
	if indexingService == nil {
		return errors.New("indexing service not configured")
	}
	return reportIndexing(cmd, indexingService.ReindexDocument(cmd.Context(), args[0], indexOptions()))
}

func runIndexPending(cmd *cobra.Command, _ []string) error {
	if indexingService == nil {
		return errors.New("indexing service not configured")
	}

	results := indexingService.IndexPending(cmd.Context(), indexPendingLimit, indexOptions())
	if indexJSON {
		return printJSON(cmd, results)
	}

	if len(results) == 0 {
		cmd.Println("No pending documents.")
		return nil
	}

	failed := 0
	for _, r := range results {
		printIndexingResult(cmd, r)
		if !r.Success {
			failed++
		}
	}
	cmd.Printf("\nIndexed %d of %d documents.\n", len(results)-failed, len(results))
	return nil
}

func reportIndexing(cmd *cobra.Command, result domain.IndexingResult) error {
	if indexJSON {
		if err := printJSON(cmd, result); err != nil {
			return err
		}
	} else {
		printIndexingResult(cmd, result)
	}
	if !result.Success {
		return fmt.Errorf("indexing failed: %s", result.Error)
	}
	return nil
}

func printIndexingResult(cmd *cobra.Command, r domain.IndexingResult) {
	if !r.Success {
		cmd.Printf("  %s failed: %s\n", r.DocumentID, r.Error)
		return
	}
	cmd.Printf("  %s indexed: %d chunks, %d tokens, %d pages in %s\n",
		r.DocumentID, r.ChunksCreated, r.TotalTokens, r.PageCount, r.Timings.Total)
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

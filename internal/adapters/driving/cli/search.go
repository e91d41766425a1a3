package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docgraph/internal/core/domain"
)

var (
	searchLimit    int
	searchMinScore float64
	searchStatus   []string
	searchJSON     bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search indexed documents",
	Long: `Performs semantic search across the organization's indexed documents.
Each document appears once, ranked by its best-matching chunk. When nothing
scores above the threshold, documents whose filename matches the query are
returned instead.`,
	Args:        cobra.ExactArgs(1),
	Annotations: noQueue(),
	RunE:        runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of results")
	searchCmd.Flags().Float64Var(&searchMinScore, "min-score", -1, "minimum similarity (default from config)")
	searchCmd.Flags().StringSliceVar(&searchStatus, "status", nil, "document statuses to search (default indexed)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := args[0]

	if searchService == nil {
		return errors.New("search service not configured")
	}

	minScore := appConfig.Search.MinScore
	if searchMinScore >= 0 {
		minScore = searchMinScore
	}
	opts := domain.SearchOptions{
		Limit:        searchLimit,
		MinScore:     &minScore,
		StatusFilter: domain.ParseIndexStatuses(searchStatus),
	}

	results, err := searchService.SearchWithFallback(cmd.Context(), currentOrg(), query, opts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return printJSON(cmd, results)
	}

	return outputSearchTable(cmd, results)
}

func outputSearchTable(cmd *cobra.Command, results []domain.SearchResult) error {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i := range results {
		// Format: [N] Filename (Score)
		name := results[i].Document.Filename
		if name == "" {
			name = results[i].Document.ID
		}

		cmd.Printf("  [%d] %s (%.2f)\n", i+1, name, results[i].Score)
		if results[i].Fallback {
			cmd.Println("      Matched by filename")
		}
		if results[i].Snippet != "" {
			cmd.Printf("      %s\n", results[i].Snippet)
		}
		cmd.Println()
	}

	return nil
}

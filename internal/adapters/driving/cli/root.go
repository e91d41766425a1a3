// Package cli implements the docgraph command line.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docgraph/internal/core/domain"
	"github.com/custodia-labs/docgraph/internal/core/ports/driving"
	"github.com/custodia-labs/docgraph/internal/logger"
)

// DefaultOrg is used when --org is not given.
const DefaultOrg = "default"

// annotationNoQueue marks commands that never touch the job queue, so the
// badger directory is not locked while they run.
const annotationNoQueue = "docgraph/no-queue"

// annotationNoBootstrap marks commands that need no services at all.
const annotationNoBootstrap = "docgraph/no-bootstrap"

var version = "dev"

// Services are the driving ports the commands call into.
type Services struct {
	Config     domain.Config
	Documents  driving.DocumentService
	Indexing   driving.IndexingService
	Extraction driving.ExtractionService
	Graph      driving.GraphService
	Search     driving.SearchService
	Queue      driving.QueueService
	Scheduler  driving.Scheduler
	Workers    driving.WorkerPool

	// FileTypes lists the file types text can be extracted from.
	FileTypes []string
}

// BootstrapOptions are resolved from the global flags.
type BootstrapOptions struct {
	ConfigPath string
	Verbose    bool
	NeedsQueue bool

	// Concurrency overrides the configured workers per queue when positive.
	Concurrency int
}

// BootstrapFunc builds the services for one command. The cleanup function
// runs after the command returns.
type BootstrapFunc func(ctx context.Context, opts BootstrapOptions) (*Services, func() error, error)

var (
	documentService   driving.DocumentService
	indexingService   driving.IndexingService
	extractionService driving.ExtractionService
	graphService      driving.GraphService
	searchService     driving.SearchService
	queueService      driving.QueueService
	schedulerService  driving.Scheduler
	workerPool        driving.WorkerPool
	appConfig         = domain.DefaultConfig("")
	supportedTypes    []string

	bootstrap BootstrapFunc
	cleanup   func() error
)

var (
	configPath string
	verbose    bool
	orgID      string
)

var rootCmd = &cobra.Command{
	Use:   "docgraph",
	Short: "Document ingestion, semantic search and knowledge graph",
	Long: `docgraph turns uploaded documents into a searchable semantic index and a
per-organization knowledge graph.

Documents are chunked, embedded and stored; entities and relationships are
extracted from the chunks and resolved into a graph. Long-running work goes
through a durable job queue processed by "docgraph worker".`,
	SilenceUsage:      true,
	PersistentPreRunE: runBootstrap,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.docgraph/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&orgID, "org", DefaultOrg, "organization id")
}

// SetVersion sets the version reported by "docgraph version".
func SetVersion(v string) {
	version = v
}

// SetBootstrap installs the function that builds services before each command.
func SetBootstrap(fn BootstrapFunc) {
	bootstrap = fn
}

// SetServices installs services directly, bypassing bootstrap.
func SetServices(s *Services) {
	if s == nil {
		return
	}
	appConfig = s.Config
	documentService = s.Documents
	indexingService = s.Indexing
	extractionService = s.Extraction
	graphService = s.Graph
	searchService = s.Search
	queueService = s.Queue
	schedulerService = s.Scheduler
	workerPool = s.Workers
	supportedTypes = s.FileTypes
}

// Execute runs the root command and releases bootstrapped resources.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if cleanup != nil {
		if cerr := cleanup(); cerr != nil {
			logger.Warn("cleanup: %v", cerr)
		}
		cleanup = nil
	}
	return err
}

func runBootstrap(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)

	if bootstrap == nil || hasAnnotation(cmd, annotationNoBootstrap) {
		return nil
	}

	services, done, err := bootstrap(cmd.Context(), BootstrapOptions{
		ConfigPath:  configPath,
		Verbose:     verbose,
		NeedsQueue:  !hasAnnotation(cmd, annotationNoQueue),
		Concurrency: workerConcurrency,
	})
	if err != nil {
		return err
	}
	SetServices(services)
	cleanup = done
	return nil
}

func hasAnnotation(cmd *cobra.Command, key string) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if _, ok := c.Annotations[key]; ok {
			return true
		}
	}
	return false
}

func noQueue() map[string]string {
	return map[string]string{annotationNoQueue: "true"}
}

func currentOrg() string {
	if orgID == "" {
		return DefaultOrg
	}
	return orgID
}

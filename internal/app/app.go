// Package app wires the driven adapters into the core services.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/custodia-labs/docgraph/internal/adapters/driven/ai"
	"github.com/custodia-labs/docgraph/internal/adapters/driven/blob/filesystem"
	"github.com/custodia-labs/docgraph/internal/adapters/driven/config/file"
	"github.com/custodia-labs/docgraph/internal/adapters/driven/graph/neo4j"
	"github.com/custodia-labs/docgraph/internal/adapters/driven/queue/badger"
	"github.com/custodia-labs/docgraph/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/docgraph/internal/adapters/driven/tokenizer"
	"github.com/custodia-labs/docgraph/internal/core/domain"
	"github.com/custodia-labs/docgraph/internal/core/ports/driven"
	"github.com/custodia-labs/docgraph/internal/core/services"
	"github.com/custodia-labs/docgraph/internal/logger"
	"github.com/custodia-labs/docgraph/internal/normalisers"
)

// Options adjusts how New builds the application.
type Options struct {
	// PromptDir holds user prompt overrides. Empty means ~/.docgraph/prompts.
	PromptDir string

	// SkipQueue leaves the job broker closed. Commands that never touch
	// the queue use it so they do not contend for the badger lock.
	SkipQueue bool
}

// App holds every component built from one Config.
type App struct {
	Config domain.Config

	Store      *sqlite.Store
	Blobs      *filesystem.Store
	Extractors *normalisers.Registry
	Providers  *ai.InitResult
	Mirror     driven.GraphMirror

	Documents *services.DocumentService
	Indexer   *services.Indexer
	Extractor *services.EntityExtractor
	Resolver  *services.EntityResolver
	Search    *services.SearchService
	Queue     *services.JobQueue
	Workers   *services.WorkerPool
	Scheduler *services.Scheduler
}

// New builds the application. Close must be called to release the
// database, broker and provider clients.
func New(cfg domain.Config, opts Options) (*App, error) {
	a := &App{Config: cfg}

	if err := a.initStorage(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initProviders(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initServices(opts); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) initStorage() error {
	if err := os.MkdirAll(a.Config.Storage.DataDir, 0o700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	store, err := sqlite.NewStore(a.Config.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening datastore: %w", err)
	}
	a.Store = store

	blobs, err := filesystem.New(a.Config.Storage.BlobDir)
	if err != nil {
		return fmt.Errorf("opening blob store: %w", err)
	}
	a.Blobs = blobs
	a.Extractors = normalisers.Default()
	return nil
}

func (a *App) initProviders() error {
	providers, err := ai.Init(a.Config)
	if err != nil {
		return err
	}
	a.Providers = providers

	if a.Config.Graph.IsConfigured() {
		mirror, err := neo4j.New(neo4j.Config{
			URI:      a.Config.Graph.Neo4jURI,
			Username: a.Config.Graph.Neo4jUser,
			Password: a.Config.Graph.Neo4jPassword,
		})
		if err != nil {
			// The mirror is optional; the datastore stays authoritative.
			logger.Warn("graph mirror disabled: %v", err)
		} else {
			a.Mirror = mirror
		}
	}
	return nil
}

func (a *App) initServices(opts Options) error {
	cfg := a.Config
	docs := a.Store.DocumentStore()
	chunks := a.Store.ChunkStore()

	prompts, err := file.NewPromptStore(opts.PromptDir)
	if err != nil {
		return fmt.Errorf("creating prompt store: %w", err)
	}

	embedder := services.NewEmbeddingGenerator(
		a.Providers.Embedding,
		services.WithBatchSize(cfg.Embedding.BatchSize),
		services.WithBatchDelay(cfg.Embedding.BatchDelay),
		services.WithTokenCounter(tokenizer.New("")),
	)

	a.Documents = services.NewDocumentService(docs, chunks, a.Blobs)
	a.Indexer = services.NewIndexer(docs, chunks, a.Blobs, a.Extractors, embedder, cfg.Chunking)
	a.Extractor = services.NewEntityExtractor(a.Providers.LLM, prompts, cfg.Extraction)

	var resolverOpts []services.ResolverOption
	if a.Mirror != nil {
		resolverOpts = append(resolverOpts, services.WithGraphMirror(a.Mirror))
	}
	a.Resolver = services.NewEntityResolver(a.Store.EntityStore(), docs, chunks, a.Extractor, resolverOpts...)
	a.Search = services.NewSearchService(docs, chunks, embedder, services.WithSnippetWindow(cfg.Search.SnippetWindow))

	var broker driven.JobBroker
	if !opts.SkipQueue {
		b, err := badger.Open(badger.Config{
			Dir:               cfg.Queue.Dir,
			VisibilityTimeout: cfg.Queue.VisibilityTimeout,
		})
		if err != nil {
			return fmt.Errorf("opening job queue: %w", err)
		}
		broker = b
	}
	a.Queue = services.NewJobQueue(broker, cfg.Queue)

	a.Workers = services.NewWorkerPool(a.Queue, cfg.Queue.Concurrency, cfg.Queue.PollInterval)
	services.NewJobHandlers(a.Indexer, a.Resolver, docs, a.Queue, cfg.Extraction.AutoEnqueue).Register(a.Workers)
	a.Queue.Attach(a.Workers)

	a.Scheduler = services.NewScheduler(cfg.Scheduler, a.Store.SchedulerStore(), a.Queue)
	return nil
}

// Close releases everything New opened. Safe to call on a partially built App.
func (a *App) Close() error {
	var errs []error
	if a.Queue != nil {
		if err := a.Queue.Shutdown(context.Background()); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Mirror != nil {
		if err := a.Mirror.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Providers != nil {
		a.Providers.Close()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LoadConfig resolves the configuration at path, writing a commented
// default file on first run. It also returns the prompt directory that
// sits next to the config file.
func LoadConfig(path string) (domain.Config, string, error) {
	loader, err := file.NewLoader(path)
	if err != nil {
		return domain.Config{}, "", err
	}
	if err := loader.WriteDefault(); err != nil {
		logger.Warn("could not write default config: %v", err)
	}

	cfg, err := loader.Load()
	if err != nil {
		return domain.Config{}, "", err
	}
	return cfg, filepath.Join(filepath.Dir(loader.Path()), "prompts"), nil
}

// Command docgraph ingests documents into a semantic index and a
// per-organization knowledge graph.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/custodia-labs/docgraph/internal/adapters/driving/cli"
	"github.com/custodia-labs/docgraph/internal/app"
	"github.com/custodia-labs/docgraph/internal/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cli.SetVersion(version)
	cli.SetBootstrap(bootstrap)

	if err := cli.Execute(context.Background()); err != nil {
		os.Exit(1)
	}
}

func bootstrap(_ context.Context, opts cli.BootstrapOptions) (*cli.Services, func() error, error) {
	cfg, promptDir, err := app.LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	logger.Configure(cfg.Log.Format, cfg.Log.Verbose || opts.Verbose)

	if opts.Concurrency > 0 {
		cfg.Queue.Concurrency = opts.Concurrency
	}

	a, err := app.New(cfg, app.Options{
		PromptDir: promptDir,
		SkipQueue: !opts.NeedsQueue,
	})
	if err != nil {
		return nil, nil, err
	}

	return &cli.Services{
		Config:     cfg,
		Documents:  a.Documents,
		Indexing:   a.Indexer,
		Extraction: a.Resolver,
		Graph:      a.Resolver,
		Search:     a.Search,
		Queue:      a.Queue,
		Scheduler:  a.Scheduler,
		Workers:    a.Workers,
		FileTypes:  a.Extractors.FileTypes(),
	}, a.Close, nil
}

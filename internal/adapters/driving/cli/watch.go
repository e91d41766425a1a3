package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docgraph/internal/connectors/filesystem"
	"github.com/custodia-labs/docgraph/internal/core/domain"
	"github.com/custodia-labs/docgraph/internal/logger"
)

// watchQuietPeriod is how long a file must stay unchanged before it is ingested.
const watchQuietPeriod = 500 * time.Millisecond

var (
	watchExisting bool
	watchNoWorker bool
	watchPriority string
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Ingest files dropped into a directory",
	Long: `Watches a directory tree and registers every new or changed file with a
supported type, then enqueues an index job for it. A changed file replaces
the document registered for it earlier in the session; a removed file
deletes it.

The queue is single-process, so the worker pool runs inside this command
unless --no-worker is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchExisting, "existing", false, "ingest files already in the directory")
	watchCmd.Flags().BoolVar(&watchNoWorker, "no-worker", false, "only enqueue; do not process jobs")
	watchCmd.Flags().StringVar(&watchPriority, "priority", string(domain.PriorityNormal), "job priority: high, normal or low")
	watchCmd.Flags().IntVarP(&workerConcurrency, "concurrency", "c", 0, "workers per queue (default from config)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if documentService == nil || queueService == nil {
		return errors.New("document and queue services not configured")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher := filesystem.New(args[0])
	defer watcher.Close()

	ing := newIngester(currentOrg(), domain.ParsePriority(watchPriority))

	if watchExisting {
		files, err := watcher.Scan()
		if err != nil {
			return err
		}
		for _, f := range files {
			ing.ingest(ctx, f)
		}
	}

	changes, err := watcher.Watch(ctx)
	if err != nil {
		return err
	}

	if !watchNoWorker && workerPool != nil {
		if err := workerPool.Start(ctx); err != nil {
			return fmt.Errorf("starting workers: %w", err)
		}
	}
	cmd.Printf("Watching %s. Press Ctrl+C to stop.\n", watcher.Root())

	ing.run(ctx, changes)
	ing.wait()
	return shutdownQueue()
}

// ingester debounces file changes and turns them into documents and jobs.
type ingester struct {
	org      string
	priority domain.Priority
	quiet    time.Duration

	mu      sync.Mutex
	timers  map[string]*time.Timer
	byPath  map[string]string
	pending sync.WaitGroup
}

func newIngester(org string, priority domain.Priority) *ingester {
	return &ingester{
		org:      org,
		priority: priority,
		quiet:    watchQuietPeriod,
		timers:   make(map[string]*time.Timer),
		byPath:   make(map[string]string),
	}
}

func (i *ingester) run(ctx context.Context, changes <-chan filesystem.Change) {
	for {
		select {
		case <-ctx.Done():
			i.cancelTimers()
			return
		case change, ok := <-changes:
			if !ok {
				i.cancelTimers()
				return
			}
			i.handle(ctx, change)
		}
	}
}

func (i *ingester) handle(ctx context.Context, change filesystem.Change) {
	if change.Type == filesystem.ChangeDeleted {
		i.remove(ctx, change.Path)
		return
	}
	if !supported(change.Path) {
		logger.Debug("watch: skipping unsupported file %s", change.Path)
		return
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if t, ok := i.timers[change.Path]; ok && t.Stop() {
		t.Reset(i.quiet)
		return
	}
	i.pending.Add(1)
	path := change.Path
	var t *time.Timer
	t = time.AfterFunc(i.quiet, func() {
		defer i.pending.Done()
		i.mu.Lock()
		if i.timers[path] == t {
			delete(i.timers, path)
		}
		i.mu.Unlock()
		i.ingest(ctx, path)
	})
	i.timers[path] = t
}

// ingest registers path as a new document, replacing any document
// registered for it earlier, and enqueues indexing.
func (i *ingester) ingest(ctx context.Context, path string) {
	if !supported(path) {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("watch: reading %s: %v", path, err)
		return
	}

	doc, err := documentService.Register(ctx, i.org, filepath.Base(path), fileTypeOf(path), data)
	if err != nil {
		logger.Warn("watch: registering %s: %v", path, err)
		return
	}

	i.mu.Lock()
	previous := i.byPath[path]
	i.byPath[path] = doc.ID
	i.mu.Unlock()
	if previous != "" {
		if err := documentService.Delete(ctx, previous); err != nil && !errors.Is(err, domain.ErrNotFound) {
			logger.Warn("watch: deleting replaced document %s: %v", previous, err)
		}
	}

	job, _, err := queueService.EnqueueIndexJob(ctx, doc.ID, false, i.priority)
	if err != nil {
		logger.Warn("watch: enqueueing %s: %v", doc.ID, err)
		return
	}
	logger.WithFields(logger.Fields{
		"path":        path,
		"document_id": doc.ID,
		"job_id":      job.ID,
	}).Info("file ingested")
}

func (i *ingester) remove(ctx context.Context, path string) {
	i.mu.Lock()
	if t, ok := i.timers[path]; ok && t.Stop() {
		delete(i.timers, path)
		i.pending.Done()
	}
	id := i.byPath[path]
	delete(i.byPath, path)
	i.mu.Unlock()

	if id == "" {
		return
	}
	if err := documentService.Delete(ctx, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
		logger.Warn("watch: deleting %s: %v", id, err)
		return
	}
	logger.WithFields(logger.Fields{"path": path, "document_id": id}).Info("file removed")
}

func (i *ingester) cancelTimers() {
	i.mu.Lock()
	defer i.mu.Unlock()
	for path, t := range i.timers {
		if t.Stop() {
			i.pending.Done()
		}
		delete(i.timers, path)
	}
}

func (i *ingester) wait() {
	i.pending.Wait()
}

func fileTypeOf(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

func supported(path string) bool {
	if len(supportedTypes) == 0 {
		return fileTypeOf(path) != ""
	}
	return containsType(supportedTypes, fileTypeOf(path))
}

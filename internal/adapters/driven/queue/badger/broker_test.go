package badger

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docgraph/internal/core/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBroker(t *testing.T) (*Broker, *fakeClock) {
	t.Helper()
	b, err := Open(Config{Dir: t.TempDir(), VisibilityTimeout: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	b.SetClock(clock.Now)
	return b, clock
}

func indexJob(docID string, prio domain.Priority) domain.Job {
	payload, _ := json.Marshal(domain.IndexJobPayload{DocumentID: docID})
	return domain.Job{
		ID:          domain.IndexJobID(docID),
		Queue:       domain.QueueDocumentIndexing,
		Type:        domain.JobTypeIndexDocument,
		Payload:     payload,
		Priority:    prio,
		MaxAttempts: 3,
	}
}

var indexPolicy = domain.DefaultRetryPolicies()[domain.QueueDocumentIndexing]

func TestOpen_RequiresDir(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestEnqueue_Dedup(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBroker(t)

	first, created, err := b.Enqueue(ctx, indexJob("doc-1", domain.PriorityNormal))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, domain.JobStateWaiting, first.State)

	second, created, err := b.Enqueue(ctx, indexJob("doc-1", domain.PriorityHigh))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, domain.PriorityNormal, second.Priority)

	stats, err := b.Stats(ctx, domain.QueueDocumentIndexing)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Waiting)
}

func TestEnqueue_DedupWhileActive(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBroker(t)

	_, _, err := b.Enqueue(ctx, indexJob("doc-1", domain.PriorityNormal))
	require.NoError(t, err)
	_, err = b.Receive(ctx, domain.QueueDocumentIndexing)
	require.NoError(t, err)

	_, created, err := b.Enqueue(ctx, indexJob("doc-1", domain.PriorityNormal))
	require.NoError(t, err)
	assert.False(t, created)
}

func TestEnqueue_ReplacesFinished(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBroker(t)

	_, _, err := b.Enqueue(ctx, indexJob("doc-1", domain.PriorityNormal))
	require.NoError(t, err)
	job, err := b.Receive(ctx, domain.QueueDocumentIndexing)
	require.NoError(t, err)
	require.NoError(t, b.Complete(ctx, job, indexPolicy))

	again, created, err := b.Enqueue(ctx, indexJob("doc-1", domain.PriorityNormal))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, domain.JobStateWaiting, again.State)
	assert.Zero(t, again.Attempts)
}

func TestEnqueue_Validation(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBroker(t)

	job := indexJob("doc-1", domain.PriorityNormal)
	job.Queue = "nope"
	_, _, err := b.Enqueue(ctx, job)
	assert.ErrorIs(t, err, domain.ErrUnknownQueue)

	job = indexJob("doc-1", domain.PriorityNormal)
	job.ID = ""
	_, _, err = b.Enqueue(ctx, job)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestReceive_Empty(t *testing.T) {
	b, _ := newTestBroker(t)
	_, err := b.Receive(context.Background(), domain.QueueDocumentIndexing)
	assert.ErrorIs(t, err, domain.ErrNoJob)
}

func TestReceive_PriorityThenFIFO(t *testing.T) {
	ctx := context.Background()
	b, clock := newTestBroker(t)

	for _, j := range []struct {
		doc  string
		prio domain.Priority
	}{
		{"low", domain.PriorityLow},
		{"normal-1", domain.PriorityNormal},
		{"high", domain.PriorityHigh},
		{"normal-2", domain.PriorityNormal},
	} {
		_, _, err := b.Enqueue(ctx, indexJob(j.doc, j.prio))
		require.NoError(t, err)
		clock.Advance(time.Millisecond)
	}

	var order []string
	for {
		job, err := b.Receive(ctx, domain.QueueDocumentIndexing)
		if errors.Is(err, domain.ErrNoJob) {
			break
		}
		require.NoError(t, err)
		order = append(order, job.ID)
	}

	assert.Equal(t, []string{"index-high", "index-normal-1", "index-normal-2", "index-low"}, order)
}

func TestReceive_QueuesAreIsolated(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBroker(t)

	_, _, err := b.Enqueue(ctx, indexJob("doc-1", domain.PriorityNormal))
	require.NoError(t, err)

	_, err = b.Receive(ctx, domain.QueueEntityExtraction)
	assert.ErrorIs(t, err, domain.ErrNoJob)
}

func TestReceive_ClaimsLease(t *testing.T) {
	ctx := context.Background()
	b, clock := newTestBroker(t)

	_, _, err := b.Enqueue(ctx, indexJob("doc-1", domain.PriorityNormal))
	require.NoError(t, err)

	job, err := b.Receive(ctx, domain.QueueDocumentIndexing)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateActive, job.State)
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, clock.Now().Add(time.Minute), job.LeaseUntil)
	require.NotNil(t, job.StartedAt)

	_, err = b.Receive(ctx, domain.QueueDocumentIndexing)
	assert.ErrorIs(t, err, domain.ErrNoJob)

	stats, err := b.Stats(ctx, domain.QueueDocumentIndexing)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Active)
	assert.Zero(t, stats.Waiting)
}

func TestComplete(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBroker(t)

	_, _, err := b.Enqueue(ctx, indexJob("doc-1", domain.PriorityNormal))
	require.NoError(t, err)
	job, err := b.Receive(ctx, domain.QueueDocumentIndexing)
	require.NoError(t, err)

	require.NoError(t, b.Complete(ctx, job, indexPolicy))
	assert.Equal(t, domain.JobStateCompleted, job.State)

	stored, err := b.Get(ctx, domain.QueueDocumentIndexing, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateCompleted, stored.State)
	require.NotNil(t, stored.FinishedAt)

	stats, err := b.Stats(ctx, domain.QueueDocumentIndexing)
	require.NoError(t, err)
	assert.Equal(t, domain.QueueStats{Queue: domain.QueueDocumentIndexing, Completed: 1}, stats)
}

func TestFail_RetriesWithBackoffThenFails(t *testing.T) {
	ctx := context.Background()
	b, clock := newTestBroker(t)

	_, _, err := b.Enqueue(ctx, indexJob("doc-1", domain.PriorityNormal))
	require.NoError(t, err)

	wantDelays := []time.Duration{5 * time.Second, 10 * time.Second}
	for attempt, delay := range wantDelays {
		job, err := b.Receive(ctx, domain.QueueDocumentIndexing)
		require.NoError(t, err, "attempt %d", attempt+1)

		require.NoError(t, b.Fail(ctx, job, errors.New("boom"), indexPolicy))
		assert.Equal(t, domain.JobStateDelayed, job.State)
		assert.Equal(t, clock.Now().Add(delay), job.AvailableAt)
		assert.Equal(t, "boom", job.LastError)

		// Not runnable until the back-off elapses.
		_, err = b.Receive(ctx, domain.QueueDocumentIndexing)
		assert.ErrorIs(t, err, domain.ErrNoJob)

		stats, err := b.Stats(ctx, domain.QueueDocumentIndexing)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Delayed)

		clock.Advance(delay)
	}

	job, err := b.Receive(ctx, domain.QueueDocumentIndexing)
	require.NoError(t, err)
	assert.Equal(t, 3, job.Attempts)

	require.NoError(t, b.Fail(ctx, job, errors.New("still broken"), indexPolicy))
	assert.Equal(t, domain.JobStateFailed, job.State)

	_, err = b.Receive(ctx, domain.QueueDocumentIndexing)
	assert.ErrorIs(t, err, domain.ErrNoJob)

	stats, err := b.Stats(ctx, domain.QueueDocumentIndexing)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.False(t, stats.Healthy())
}

func TestReclaimExpired(t *testing.T) {
	ctx := context.Background()
	b, clock := newTestBroker(t)

	_, _, err := b.Enqueue(ctx, indexJob("doc-1", domain.PriorityNormal))
	require.NoError(t, err)
	_, err = b.Receive(ctx, domain.QueueDocumentIndexing)
	require.NoError(t, err)

	n, err := b.ReclaimExpired(ctx, domain.QueueDocumentIndexing, indexPolicy)
	require.NoError(t, err)
	assert.Zero(t, n, "lease still valid")

	clock.Advance(2 * time.Minute)
	n, err = b.ReclaimExpired(ctx, domain.QueueDocumentIndexing, indexPolicy)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	job, err := b.Receive(ctx, domain.QueueDocumentIndexing)
	require.NoError(t, err)
	assert.Equal(t, 2, job.Attempts)
}

func TestReclaimExpired_ExhaustedJobFails(t *testing.T) {
	ctx := context.Background()
	b, clock := newTestBroker(t)

	j := indexJob("doc-1", domain.PriorityNormal)
	j.MaxAttempts = 1
	_, _, err := b.Enqueue(ctx, j)
	require.NoError(t, err)
	_, err = b.Receive(ctx, domain.QueueDocumentIndexing)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	n, err := b.ReclaimExpired(ctx, domain.QueueDocumentIndexing, indexPolicy)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := b.Get(ctx, domain.QueueDocumentIndexing, j.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateFailed, stored.State)
	assert.Equal(t, "lease expired", stored.LastError)
}

func TestReceive_SkipsOrphanedIndexEntry(t *testing.T) {
	ctx := context.Background()
	b, clock := newTestBroker(t)

	ghost := &domain.Job{
		ID:          "ghost",
		Queue:       domain.QueueDocumentIndexing,
		Priority:    domain.PriorityHigh,
		AvailableAt: clock.Now().Add(-time.Second),
	}
	require.NoError(t, b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(readyKey(ghost), nil)
	}))

	_, _, err := b.Enqueue(ctx, indexJob("real", domain.PriorityNormal))
	require.NoError(t, err)

	job, err := b.Receive(ctx, domain.QueueDocumentIndexing)
	require.NoError(t, err)
	assert.Equal(t, domain.IndexJobID("real"), job.ID)

	err = b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get(readyKey(ghost))
		return err
	})
	assert.ErrorIs(t, err, badgerdb.ErrKeyNotFound, "orphaned entry should be deleted")

	_, err = b.Receive(ctx, domain.QueueDocumentIndexing)
	assert.ErrorIs(t, err, domain.ErrNoJob)
}

func TestReceive_OnlyOrphans(t *testing.T) {
	ctx := context.Background()
	b, clock := newTestBroker(t)

	ghost := &domain.Job{ID: "ghost", Queue: domain.QueueDocumentIndexing, AvailableAt: clock.Now()}
	require.NoError(t, b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(readyKey(ghost), nil)
	}))

	_, err := b.Receive(ctx, domain.QueueDocumentIndexing)
	assert.ErrorIs(t, err, domain.ErrNoJob)

	_, _, err = b.Enqueue(ctx, indexJob("doc-2", domain.PriorityLow))
	require.NoError(t, err)
	job, err := b.Receive(ctx, domain.QueueDocumentIndexing)
	require.NoError(t, err)
	assert.Equal(t, domain.IndexJobID("doc-2"), job.ID)
}

func TestReclaimExpired_UsesPolicyRetention(t *testing.T) {
	ctx := context.Background()
	b, clock := newTestBroker(t)

	j := indexJob("doc-1", domain.PriorityNormal)
	j.MaxAttempts = 1
	_, _, err := b.Enqueue(ctx, j)
	require.NoError(t, err)
	_, err = b.Receive(ctx, domain.QueueDocumentIndexing)
	require.NoError(t, err)

	policy := indexPolicy
	policy.FailedRetention = time.Hour
	clock.Advance(2 * time.Minute)
	n, err := b.ReclaimExpired(ctx, domain.QueueDocumentIndexing, policy)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	var expiresAt uint64
	require.NoError(t, b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(jobKey(domain.QueueDocumentIndexing, j.ID))
		if err != nil {
			return err
		}
		expiresAt = item.ExpiresAt()
		return nil
	}))
	assert.NotZero(t, expiresAt)
	assert.LessOrEqual(t, expiresAt, uint64(time.Now().Add(2*time.Hour).Unix()),
		"record should expire with the configured retention, not the default")
}

func TestGet_NotFound(t *testing.T) {
	b, _ := newTestBroker(t)
	_, err := b.Get(context.Background(), domain.QueueDocumentIndexing, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDurableAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	b, err := Open(Config{Dir: dir})
	require.NoError(t, err)
	_, _, err = b.Enqueue(ctx, indexJob("doc-1", domain.PriorityNormal))
	require.NoError(t, err)
	require.NoError(t, b.Close())

	b, err = Open(Config{Dir: dir})
	require.NoError(t, err)
	defer b.Close()

	job, err := b.Receive(ctx, domain.QueueDocumentIndexing)
	require.NoError(t, err)
	assert.Equal(t, "index-doc-1", job.ID)
}

func TestReceive_ConcurrentClaimsAreExclusive(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBroker(t)

	for i := 0; i < 20; i++ {
		_, _, err := b.Enqueue(ctx, indexJob(string(rune('a'+i)), domain.PriorityNormal))
		require.NoError(t, err)
	}

	var (
		mu   sync.Mutex
		seen = map[string]int{}
		wg   sync.WaitGroup
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := b.Receive(ctx, domain.QueueDocumentIndexing)
				if err != nil {
					return
				}
				mu.Lock()
				seen[job.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 20)
	for id, n := range seen {
		assert.Equal(t, 1, n, "job %s claimed more than once", id)
	}
}

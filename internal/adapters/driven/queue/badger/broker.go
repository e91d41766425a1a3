// Package badger provides a durable job broker backed by BadgerDB.
//
// Each job is stored once under job:{queue}:{id}. Two ordered index
// keyspaces drive scheduling:
//
//	ready:{queue}:{priority:03d}:{availableAt:020d}:{id}  waiting and delayed jobs
//	lease:{queue}:{leaseUntil:020d}:{id}                  active jobs
//
// Finished records are rewritten with a TTL equal to the queue's
// retention and disappear on their own.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/custodia-labs/docgraph/internal/core/domain"
	"github.com/custodia-labs/docgraph/internal/core/ports/driven"
	"github.com/custodia-labs/docgraph/internal/logger"
)

// Ensure Broker implements the interface.
var _ driven.JobBroker = (*Broker)(nil)

// DefaultVisibilityTimeout is how long a claimed job stays leased.
const DefaultVisibilityTimeout = 10 * time.Minute

// Config configures the broker.
type Config struct {
	// Dir is the badger directory. Ignored when InMemory is set.
	Dir string

	// InMemory keeps all data in memory.
	InMemory bool

	// VisibilityTimeout bounds how long a worker may hold a job.
	VisibilityTimeout time.Duration
}

// Broker is a badger-backed driven.JobBroker.
type Broker struct {
	db         *badgerdb.DB
	visibility time.Duration
	now        func() time.Time

	// claimMu serialises read-modify-write transactions so concurrent
	// workers never conflict on the same index keys.
	claimMu sync.Mutex
}

// Open opens (or creates) the broker database.
func Open(cfg Config) (*Broker, error) {
	opts := badgerdb.DefaultOptions(cfg.Dir).WithLogger(badgerLogger{})
	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	} else if cfg.Dir == "" {
		return nil, errors.New("badger: directory is required")
	}

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open %s: %w", cfg.Dir, err)
	}
	return newBroker(db, cfg.VisibilityTimeout), nil
}

func newBroker(db *badgerdb.DB, visibility time.Duration) *Broker {
	if visibility <= 0 {
		visibility = DefaultVisibilityTimeout
	}
	return &Broker{db: db, visibility: visibility, now: time.Now}
}

// SetClock replaces the broker's time source.
func (b *Broker) SetClock(now func() time.Time) {
	b.now = now
}

// Enqueue stores job as waiting (or delayed when AvailableAt is in the
// future). If a record with the same id is still outstanding, it is
// returned unchanged with created=false. Finished records are replaced.
func (b *Broker) Enqueue(_ context.Context, job domain.Job) (domain.Job, bool, error) {
	if !job.Queue.IsValid() {
		return domain.Job{}, false, fmt.Errorf("badger: enqueue %q: %w", job.Queue, domain.ErrUnknownQueue)
	}
	if job.ID == "" {
		return domain.Job{}, false, fmt.Errorf("badger: enqueue: job id is required: %w", domain.ErrInvalidInput)
	}

	b.claimMu.Lock()
	defer b.claimMu.Unlock()

	var result domain.Job
	created := false
	err := b.db.Update(func(txn *badgerdb.Txn) error {
		existing, err := getJob(txn, job.Queue, job.ID)
		switch {
		case err == nil && existing.State.IsOutstanding():
			result = *existing
			return nil
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			return err
		}

		now := b.now()
		job.Attempts = 0
		job.LastError = ""
		job.EnqueuedAt = now
		job.StartedAt = nil
		job.FinishedAt = nil
		job.LeaseUntil = time.Time{}
		if job.AvailableAt.IsZero() || job.AvailableAt.Before(now) {
			job.AvailableAt = now
		}
		job.State = domain.JobStateWaiting
		if job.AvailableAt.After(now) {
			job.State = domain.JobStateDelayed
		}

		if err := putJob(txn, &job, 0); err != nil {
			return err
		}
		if err := txn.Set(readyKey(&job), nil); err != nil {
			return err
		}
		result = job
		created = true
		return nil
	})
	if err != nil {
		return domain.Job{}, false, fmt.Errorf("badger: enqueue %s: %w", job.ID, err)
	}
	return result, created, nil
}

// Receive claims the runnable job with the lowest priority value,
// earliest first, and leases it for the visibility timeout.
func (b *Broker) Receive(_ context.Context, queue domain.QueueName) (*domain.Job, error) {
	if !queue.IsValid() {
		return nil, fmt.Errorf("badger: receive %q: %w", queue, domain.ErrUnknownQueue)
	}

	b.claimMu.Lock()
	defer b.claimMu.Unlock()

	var claimed *domain.Job
	err := b.db.Update(func(txn *badgerdb.Txn) error {
		now := b.now()
		prefix := []byte("ready:" + string(queue) + ":")

		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		var (
			readyK  []byte
			job     *domain.Job
			orphans [][]byte
			scanErr error
		)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			availableAt, jobID, err := parseReadyKey(key, len(prefix))
			if err != nil {
				logger.Debug("badger: skipping malformed key %q: %v", key, err)
				continue
			}
			if availableAt > now.UnixNano() {
				continue
			}
			stored, err := getJob(txn, queue, jobID)
			if errors.Is(err, domain.ErrNotFound) {
				orphans = append(orphans, key)
				continue
			}
			if err != nil {
				scanErr = err
				break
			}
			readyK, job = key, stored
			break
		}
		it.Close()

		if scanErr != nil {
			return scanErr
		}
		// Index entries without a record.
		for _, key := range orphans {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		if readyK == nil {
			return nil
		}

		started := now
		job.State = domain.JobStateActive
		job.Attempts++
		job.StartedAt = &started
		job.LeaseUntil = now.Add(b.visibility)

		if err := txn.Delete(readyK); err != nil {
			return err
		}
		if err := txn.Set(leaseKey(job), nil); err != nil {
			return err
		}
		if err := putJob(txn, job, 0); err != nil {
			return err
		}
		claimed = job
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger: receive from %s: %w", queue, err)
	}
	if claimed == nil {
		return nil, domain.ErrNoJob
	}
	return claimed, nil
}

// Complete marks a claimed job completed and keeps the record for the
// policy's completed retention.
func (b *Broker) Complete(_ context.Context, job *domain.Job, policy domain.RetryPolicy) error {
	b.claimMu.Lock()
	defer b.claimMu.Unlock()

	err := b.db.Update(func(txn *badgerdb.Txn) error {
		stored, err := getJob(txn, job.Queue, job.ID)
		if err != nil {
			return err
		}
		if err := b.clearIndexes(txn, stored); err != nil {
			return err
		}

		finished := b.now()
		stored.State = domain.JobStateCompleted
		stored.FinishedAt = &finished
		stored.LeaseUntil = time.Time{}
		stored.LastError = ""
		if err := putJob(txn, stored, policy.CompletedRetention); err != nil {
			return err
		}
		*job = *stored
		return nil
	})
	if err != nil {
		return fmt.Errorf("badger: complete %s: %w", job.ID, err)
	}
	return nil
}

// Fail records a failed attempt. While attempts remain the job is
// delayed by the policy's exponential back-off; afterwards it is marked
// failed and kept for the failed retention.
func (b *Broker) Fail(_ context.Context, job *domain.Job, cause error, policy domain.RetryPolicy) error {
	b.claimMu.Lock()
	defer b.claimMu.Unlock()

	err := b.db.Update(func(txn *badgerdb.Txn) error {
		stored, err := getJob(txn, job.Queue, job.ID)
		if err != nil {
			return err
		}
		if err := b.clearIndexes(txn, stored); err != nil {
			return err
		}

		now := b.now()
		if cause != nil {
			stored.LastError = cause.Error()
		}
		stored.LeaseUntil = time.Time{}

		maxAttempts := stored.MaxAttempts
		if maxAttempts <= 0 {
			maxAttempts = policy.MaxAttempts
		}

		if stored.Attempts >= maxAttempts {
			stored.State = domain.JobStateFailed
			stored.FinishedAt = &now
			if err := putJob(txn, stored, policy.FailedRetention); err != nil {
				return err
			}
		} else {
			stored.State = domain.JobStateDelayed
			stored.AvailableAt = now.Add(policy.Delay(stored.Attempts))
			if err := putJob(txn, stored, 0); err != nil {
				return err
			}
			if err := txn.Set(readyKey(stored), nil); err != nil {
				return err
			}
		}
		*job = *stored
		return nil
	})
	if err != nil {
		return fmt.Errorf("badger: fail %s: %w", job.ID, err)
	}
	return nil
}

// Get returns a job record.
func (b *Broker) Get(_ context.Context, queue domain.QueueName, id string) (*domain.Job, error) {
	var job *domain.Job
	err := b.db.View(func(txn *badgerdb.Txn) error {
		var err error
		job, err = getJob(txn, queue, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Stats counts records per state. Waiting jobs whose start time has not
// arrived count as delayed.
func (b *Broker) Stats(_ context.Context, queue domain.QueueName) (domain.QueueStats, error) {
	stats := domain.QueueStats{Queue: queue}
	if !queue.IsValid() {
		return stats, fmt.Errorf("badger: stats %q: %w", queue, domain.ErrUnknownQueue)
	}

	now := b.now()
	err := b.db.View(func(txn *badgerdb.Txn) error {
		prefix := []byte("job:" + string(queue) + ":")
		it := txn.NewIterator(badgerdb.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var job domain.Job
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &job)
			}); err != nil {
				return err
			}

			switch job.State {
			case domain.JobStateWaiting, domain.JobStateDelayed:
				if job.AvailableAt.After(now) {
					stats.Delayed++
				} else {
					stats.Waiting++
				}
			case domain.JobStateActive:
				stats.Active++
			case domain.JobStateCompleted:
				stats.Completed++
			case domain.JobStateFailed:
				stats.Failed++
			}
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("badger: stats %s: %w", queue, err)
	}
	return stats, nil
}

// ReclaimExpired returns jobs whose lease has lapsed to the waiting
// state. A job that has already used every attempt is marked failed.
func (b *Broker) ReclaimExpired(_ context.Context, queue domain.QueueName, policy domain.RetryPolicy) (int, error) {
	if !queue.IsValid() {
		return 0, fmt.Errorf("badger: reclaim %q: %w", queue, domain.ErrUnknownQueue)
	}

	b.claimMu.Lock()
	defer b.claimMu.Unlock()

	reclaimed := 0
	err := b.db.Update(func(txn *badgerdb.Txn) error {
		now := b.now()
		prefix := []byte("lease:" + string(queue) + ":")

		var expired []string
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			leaseUntil, id, err := parseLeaseKey(it.Item().Key(), len(prefix))
			if err != nil {
				continue
			}
			if leaseUntil > now.UnixNano() {
				break
			}
			expired = append(expired, id)
		}
		it.Close()

		for _, id := range expired {
			job, err := getJob(txn, queue, id)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					continue
				}
				return err
			}
			if err := b.clearIndexes(txn, job); err != nil {
				return err
			}
			job.LeaseUntil = time.Time{}

			if job.MaxAttempts > 0 && job.Attempts >= job.MaxAttempts {
				job.State = domain.JobStateFailed
				job.LastError = "lease expired"
				job.FinishedAt = &now
				if err := putJob(txn, job, policy.FailedRetention); err != nil {
					return err
				}
			} else {
				job.State = domain.JobStateWaiting
				job.AvailableAt = now
				if err := putJob(txn, job, 0); err != nil {
					return err
				}
				if err := txn.Set(readyKey(job), nil); err != nil {
					return err
				}
			}
			reclaimed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("badger: reclaim %s: %w", queue, err)
	}
	return reclaimed, nil
}

// Close closes the database.
func (b *Broker) Close() error {
	return b.db.Close()
}

// clearIndexes removes job's ready and lease entries for its stored state.
func (b *Broker) clearIndexes(txn *badgerdb.Txn, job *domain.Job) error {
	if err := txn.Delete(readyKey(job)); err != nil {
		return err
	}
	if !job.LeaseUntil.IsZero() {
		if err := txn.Delete(leaseKey(job)); err != nil {
			return err
		}
	}
	return nil
}

func jobKey(queue domain.QueueName, id string) []byte {
	return []byte("job:" + string(queue) + ":" + id)
}

func readyKey(job *domain.Job) []byte {
	return []byte(fmt.Sprintf("ready:%s:%03d:%020d:%s",
		job.Queue, job.Priority.Value(), job.AvailableAt.UnixNano(), job.ID))
}

func leaseKey(job *domain.Job) []byte {
	return []byte(fmt.Sprintf("lease:%s:%020d:%s", job.Queue, job.LeaseUntil.UnixNano(), job.ID))
}

// parseReadyKey returns availableAt (unix nanos) and the job id.
func parseReadyKey(key []byte, prefixLen int) (int64, string, error) {
	rest := string(key[prefixLen:])
	// {prio:3}:{ts:20}:{id}
	if len(rest) < 3+1+20+1+1 {
		return 0, "", fmt.Errorf("short ready key")
	}
	ts, err := strconv.ParseInt(rest[4:24], 10, 64)
	if err != nil {
		return 0, "", err
	}
	return ts, rest[25:], nil
}

// parseLeaseKey returns leaseUntil (unix nanos) and the job id.
func parseLeaseKey(key []byte, prefixLen int) (int64, string, error) {
	rest := string(key[prefixLen:])
	if len(rest) < 20+1+1 {
		return 0, "", fmt.Errorf("short lease key")
	}
	ts, err := strconv.ParseInt(rest[:20], 10, 64)
	if err != nil {
		return 0, "", err
	}
	return ts, rest[21:], nil
}

func getJob(txn *badgerdb.Txn, queue domain.QueueName, id string) (*domain.Job, error) {
	item, err := txn.Get(jobKey(queue, id))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var job domain.Job
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &job)
	}); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

// putJob writes job, expiring it after ttl when ttl is positive.
func putJob(txn *badgerdb.Txn, job *domain.Job, ttl time.Duration) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	entry := badgerdb.NewEntry(jobKey(job.Queue, job.ID), data)
	if ttl > 0 {
		entry = entry.WithTTL(ttl)
	}
	return txn.SetEntry(entry)
}

// badgerLogger routes badger's internal logging through logrus.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...any)   { logger.Error("badger: "+format, args...) }
func (badgerLogger) Warningf(format string, args ...any) { logger.Warn("badger: "+format, args...) }
func (badgerLogger) Infof(format string, args ...any)    { logger.Debug("badger: "+format, args...) }
func (badgerLogger) Debugf(format string, args ...any)   { logger.Debug("badger: "+format, args...) }

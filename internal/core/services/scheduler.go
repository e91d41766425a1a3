package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/custodia-labs/docgraph/internal/core/domain"
	"github.com/custodia-labs/docgraph/internal/core/ports/driven"
	"github.com/custodia-labs/docgraph/internal/core/ports/driving"
	"github.com/custodia-labs/docgraph/internal/logger"
)

// Verify interface compliance.
var _ driving.Scheduler = (*Scheduler)(nil)

// historyRetention is the number of results kept per task.
const historyRetention = 100

// pendingSweepLimit bounds each scheduled index_pending batch.
const pendingSweepLimit = 100

// Scheduler runs the built-in recurring tasks on cron schedules and
// records each run in the scheduler store.
type Scheduler struct {
	config domain.SchedulerConfig
	store  driven.SchedulerStore
	queue  *JobQueue

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler with configuration.
func NewScheduler(config domain.SchedulerConfig, store driven.SchedulerStore, queue *JobQueue) *Scheduler {
	return &Scheduler{
		config:  config,
		store:   store,
		queue:   queue,
		entries: make(map[string]cron.EntryID),
	}
}

// Start registers the enabled tasks with cron and blocks until ctx is
// cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	if !s.config.Enabled {
		s.mu.Unlock()
		logger.Info("scheduler disabled")
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{})), cron.WithLogger(cronLogger{}))
	for _, id := range []string{domain.TaskIDIndexPending, domain.TaskIDQueueMaintenance} {
		taskCfg := s.config.GetTaskConfig(id)
		if !taskCfg.Enabled {
			continue
		}
		taskID := id
		entryID, err := c.AddFunc(taskCfg.Schedule, func() { s.runTask(ctx, taskID) })
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("schedule %s %q: %w", taskID, taskCfg.Schedule, err)
		}
		s.entries[taskID] = entryID
	}

	s.cron = c
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	c.Start()
	s.mu.Unlock()

	if err := s.initialiseTasks(ctx); err != nil {
		logger.Warn("scheduler: failed to initialise tasks: %v", err)
	}
	logger.WithField("tasks", len(s.entries)).Info("scheduler started")

	select {
	case <-ctx.Done():
		_ = s.Stop()
		return ctx.Err()
	case <-stopCh:
		return nil
	}
}

// Stop halts cron and waits for running tasks to complete.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	stopped := s.cron.Stop()
	s.mu.Unlock()

	<-stopped.Done()
	s.wg.Wait()
	logger.Info("scheduler stopped")
	return nil
}

// RunNow runs a task immediately, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, taskID string) (domain.TaskResult, error) {
	switch taskID {
	case domain.TaskIDIndexPending, domain.TaskIDQueueMaintenance:
	default:
		return domain.TaskResult{}, fmt.Errorf("unknown task %q: %w", taskID, domain.ErrNotFound)
	}
	return s.execute(ctx, taskID), nil
}

// initialiseTasks ensures all configured tasks exist in the store with
// their current schedule and next run time.
func (s *Scheduler) initialiseTasks(ctx context.Context) error {
	names := map[string]string{
		domain.TaskIDIndexPending:     "Index Pending Documents",
		domain.TaskIDQueueMaintenance: "Queue Maintenance",
	}
	for id, name := range names {
		if err := s.ensureTask(ctx, id, name, s.config.GetTaskConfig(id)); err != nil {
			return err
		}
	}
	return nil
}

// ensureTask creates or updates a task in the store.
func (s *Scheduler) ensureTask(ctx context.Context, id, name string, cfg domain.TaskConfig) error {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if task == nil {
		task = &domain.ScheduledTask{ID: id, Name: name}
	}
	task.Schedule = cfg.Schedule
	task.Enabled = cfg.Enabled
	task.NextRun = s.nextRun(id)

	return s.store.SaveTask(ctx, task)
}

func (s *Scheduler) nextRun(taskID string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	entryID, ok := s.entries[taskID]
	if !ok || s.cron == nil {
		return time.Time{}
	}
	return s.cron.Entry(entryID).Next
}

func (s *Scheduler) runTask(ctx context.Context, taskID string) {
	s.wg.Add(1)
	defer s.wg.Done()
	s.execute(ctx, taskID)
}

// execute runs one task and records its result.
func (s *Scheduler) execute(ctx context.Context, taskID string) domain.TaskResult {
	result := domain.TaskResult{
		TaskID:    taskID,
		StartedAt: time.Now(),
	}

	var err error
	switch taskID {
	case domain.TaskIDIndexPending:
		result.ItemsProcessed, err = s.runIndexPending(ctx)
	case domain.TaskIDQueueMaintenance:
		result.ItemsProcessed, err = s.queue.ReclaimExpired(ctx)
	}

	result.EndedAt = time.Now()
	result.Success = err == nil
	if err != nil {
		result.Error = err.Error()
		logger.WithField("task", taskID).WithError(err).Warn("scheduled task failed")
	} else {
		logger.WithFields(logger.Fields{"task": taskID, "items": result.ItemsProcessed}).Debug("scheduled task ran")
	}

	s.recordRun(ctx, taskID, result)
	return result
}

// runIndexPending enqueues one index_pending batch job.
func (s *Scheduler) runIndexPending(ctx context.Context) (int, error) {
	_, err := s.queue.EnqueueBatchJob(ctx, domain.BatchJobPayload{
		Operation: domain.BatchIndexPending,
		Limit:     pendingSweepLimit,
	}, domain.PriorityLow)
	if err != nil {
		return 0, err
	}
	return 1, nil
}

func (s *Scheduler) recordRun(ctx context.Context, taskID string, result domain.TaskResult) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		logger.Warn("scheduler: failed to load task %s: %v", taskID, err)
		return
	}
	if task == nil {
		task = &domain.ScheduledTask{ID: taskID, Name: taskID, Enabled: true}
	}

	task.LastRun = result.StartedAt
	task.NextRun = s.nextRun(taskID)
	if result.Success {
		task.LastError = ""
		task.LastSuccess = result.EndedAt
	} else {
		task.LastError = result.Error
	}

	if err := s.store.SaveTask(ctx, task); err != nil {
		logger.Warn("scheduler: failed to save task %s: %v", taskID, err)
	}
	if err := s.store.RecordResult(ctx, &result); err != nil {
		logger.Warn("scheduler: failed to record result for %s: %v", taskID, err)
	}
	if err := s.store.PruneHistory(ctx, historyRetention); err != nil {
		logger.Warn("scheduler: failed to prune history: %v", err)
	}
}

// cronLogger adapts cron's logger to logrus.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	logger.WithFields(kvFields(keysAndValues)).Debug("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	logger.WithFields(kvFields(keysAndValues)).WithError(err).Error("cron: " + msg)
}

func kvFields(kv []any) logger.Fields {
	fields := logger.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}

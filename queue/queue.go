// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/kbase/core"
)

// Status is a point-in-time summary of a Queue.
type Status struct {
	Pending     int
	Processing  int
	Completed   int
	Failed      int
	Workload    int64
	MaxWorkload int64
	AtCapacity  bool
}

// entry is the queue's record of one task.
type entry struct {
	task    Task
	future  *Future[Task]
	cancel  context.CancelFunc
	attempt int
	retry   *time.Timer
}

// Queue is a workload-aware task scheduler. All methods are safe for
// concurrent use.
type Queue struct {
	executor Executor
	pool     *ants.Pool
	events   *broker
	logger   *slog.Logger

	mu        sync.Mutex
	cfg       Config
	pending   []*entry
	inflight  map[string]*entry
	failed    map[string]*entry
	workload  int64
	completed int
	failures  int
	busy      bool
	closed    bool

	running sync.WaitGroup
}

// Option configures a Queue.
type Option func(*Queue) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) error {
		if logger == nil {
			logger = slog.Default()
		}
		q.logger = logger
		return nil
	}
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(q *Queue) error {
		q.cfg = cfg
		return nil
	}
}

// WithMaxConcurrent sets the number of tasks processed at once.
func WithMaxConcurrent(n int) Option {
	return func(q *Queue) error {
		q.cfg.MaxConcurrent = n
		return nil
	}
}

// WithMaxWorkload sets the workload budget in bytes.
func WithMaxWorkload(n int64) Option {
	return func(q *Queue) error {
		q.cfg.MaxWorkload = n
		return nil
	}
}

// WithMaxRetries sets the retry budget given to new tasks.
func WithMaxRetries(n int) Option {
	return func(q *Queue) error {
		q.cfg.MaxRetries = n
		return nil
	}
}

// WithRetryDelay sets the delay before an automatic retry.
func WithRetryDelay(d time.Duration) Option {
	return func(q *Queue) error {
		q.cfg.RetryDelay = d
		return nil
	}
}

// antsLoggerAdapter adapts slog.Logger to the ants.Logger interface.
type antsLoggerAdapter struct {
	logger *slog.Logger
}

var _ ants.Logger = (*antsLoggerAdapter)(nil)

func (al *antsLoggerAdapter) Printf(format string, args ...any) {
	al.logger.Warn(fmt.Sprintf(format, args...))
}

// New creates a queue that runs tasks with executor.
func New(executor Executor, opts ...Option) (*Queue, error) {
	if executor == nil {
		return nil, ErrExecutorRequired
	}

	q := &Queue{
		executor: executor,
		events:   &broker{},
		logger:   slog.Default(),
		cfg:      DefaultConfig(),
		inflight: make(map[string]*entry),
		failed:   make(map[string]*entry),
	}

	for _, opt := range opts {
		if err := opt(q); err != nil {
			return nil, err
		}
	}
	if err := q.cfg.Validate(); err != nil {
		return nil, err
	}
	q.logger = q.logger.With("component", "queue")

	// Admission control bounds concurrency, so the pool itself is unbounded.
	pool, err := ants.NewPool(-1, ants.WithLogger(&antsLoggerAdapter{logger: q.logger}))
	if err != nil {
		return nil, err
	}
	q.pool = pool

	return q, nil
}

// CreateTask builds a pending task for payload without submitting it.
func (q *Queue) CreateTask(collectionID core.ID, payload Payload) Task {
	q.mu.Lock()
	maxRetries := q.cfg.MaxRetries
	q.mu.Unlock()

	task := Task{
		ID:           uuid.NewString(),
		CollectionID: collectionID,
		Payload:      payload,
		State:        StatePending,
		SizeHint:     Estimate(payload),
		MaxRetries:   maxRetries,
		CreatedAt:    time.Now(),
	}
	if payload != nil {
		task.Kind = payload.Kind()
		task.Name = payload.Name()
	}
	return task
}

// AddTask submits a task. The returned future resolves with the task's
// final snapshot: Done, Cancelled, or Failed with no retries left.
func (q *Queue) AddTask(task Task) *Future[Task] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.addLocked(task)
}

// AddTasks submits several tasks. The future resolves once every task has
// reached its final state, with the snapshots in submission order.
func (q *Queue) AddTasks(tasks []Task) *Future[[]Task] {
	q.mu.Lock()
	futures := make([]*Future[Task], len(tasks))
	for i, task := range tasks {
		futures[i] = q.addLocked(task)
	}
	q.mu.Unlock()
	return all(futures)
}

func (q *Queue) addLocked(task Task) *Future[Task] {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	if task.Payload != nil {
		if task.Kind == "" {
			task.Kind = task.Payload.Kind()
		}
		if task.Name == "" {
			task.Name = task.Payload.Name()
		}
		if task.SizeHint == 0 {
			task.SizeHint = Estimate(task.Payload)
		}
	}

	if q.closed {
		return resolvedFuture(q.rejected(task, ErrQueueClosed))
	}
	if q.trackedLocked(task.ID) {
		return resolvedFuture(q.rejected(task, ErrDuplicateTask))
	}

	task.State = StatePending
	task.Progress = 0
	task.Stage = ""
	task.LastError = nil
	e := &entry{task: task, future: newFuture[Task]()}

	q.pending = append(q.pending, e)
	q.busy = true
	q.publishLocked(EventTaskQueued, e)
	q.logger.Debug("task queued",
		"task", task.ID,
		"name", task.Name,
		"size", task.SizeHint,
		"pending", len(q.pending))

	q.dispatchLocked()
	return e.future
}

func (q *Queue) rejected(task Task, err error) Task {
	q.logger.Warn("task rejected", "task", task.ID, "name", task.Name, "err", err)
	task.State = StateCancelled
	task.LastError = err
	task.CompletedAt = time.Now()
	return task.stripped()
}

func (q *Queue) trackedLocked(id string) bool {
	if _, ok := q.inflight[id]; ok {
		return true
	}
	if _, ok := q.failed[id]; ok {
		return true
	}
	return slices.ContainsFunc(q.pending, func(e *entry) bool { return e.task.ID == id })
}

func (q *Queue) atCapacityLocked() bool {
	return len(q.inflight) >= q.cfg.MaxConcurrent || q.workload >= q.cfg.MaxWorkload
}

// dispatchLocked admits pending tasks in submission order while capacity
// remains. A task that does not fit the remaining workload is skipped while
// other tasks are running; with nothing running it is admitted regardless
// of size.
func (q *Queue) dispatchLocked() {
	if q.closed {
		return
	}

	remaining := q.pending[:0]
	var started []*entry
	for _, e := range q.pending {
		if q.atCapacityLocked() {
			remaining = append(remaining, e)
			continue
		}
		if q.workload+e.task.SizeHint > q.cfg.MaxWorkload && len(q.inflight) > 0 {
			remaining = append(remaining, e)
			continue
		}

		e.task.State = StateProcessing
		e.task.StartedAt = time.Now()
		e.attempt++
		q.workload += e.task.SizeHint
		q.inflight[e.task.ID] = e
		started = append(started, e)
	}
	clear(q.pending[len(remaining):])
	q.pending = remaining

	for _, e := range started {
		q.startLocked(e)
	}
}

func (q *Queue) startLocked(e *entry) {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	attempt := e.attempt
	task := e.task

	q.publishLocked(EventTaskStarted, e)
	q.logger.Info("task started",
		"task", task.ID,
		"name", task.Name,
		"attempt", attempt,
		"concurrency", len(q.inflight),
		"maxConcurrent", q.cfg.MaxConcurrent,
		"workload", q.workload,
		"maxWorkload", q.cfg.MaxWorkload)

	q.running.Add(1)
	err := q.pool.Submit(func() {
		defer q.running.Done()
		err := q.execute(ctx, task, q.reporter(task.ID, attempt))
		q.settle(task.ID, attempt, err)
	})
	if err != nil {
		q.running.Done()
		// settle takes the lock, so it runs once this dispatch pass returns
		go q.settle(task.ID, attempt, err)
	}
}

func (q *Queue) execute(ctx context.Context, task Task, report ProgressFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrExecutorPanic, r)
		}
	}()
	return q.executor.Execute(ctx, task, report)
}

func (q *Queue) reporter(id string, attempt int) ProgressFunc {
	return func(percent int, stage Stage) {
		q.mu.Lock()
		defer q.mu.Unlock()

		e, ok := q.inflight[id]
		if !ok || e.attempt != attempt || e.task.State != StateProcessing {
			return
		}
		percent = max(0, min(100, percent))
		if percent < e.task.Progress {
			return
		}
		e.task.Progress = percent
		e.task.Stage = stage
		q.publishLocked(EventTaskProgress, e)
	}
}

// settle records the outcome of an attempt, frees its capacity and runs
// another dispatch pass.
func (q *Queue) settle(id string, attempt int, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.inflight[id]
	if !ok || e.attempt != attempt {
		return
	}
	delete(q.inflight, id)
	q.workload -= e.task.SizeHint
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.task.CompletedAt = time.Now()
	elapsed := e.task.CompletedAt.Sub(e.task.StartedAt)

	switch {
	case e.task.State == StateCancelled || errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled):
		e.task.State = StateCancelled
		e.task.LastError = nil
		q.finishLocked(e, EventTaskCancelled)
		q.logger.Info("task cancelled", "task", id, "name", e.task.Name)

	case err == nil:
		e.task.State = StateDone
		e.task.Progress = 100
		q.completed++
		q.finishLocked(e, EventTaskCompleted)
		q.logger.Info("task completed", "task", id, "name", e.task.Name, "elapsed", elapsed)

	default:
		e.task.State = StateFailed
		e.task.LastError = err
		q.failures++
		q.failed[id] = e
		q.publishLocked(EventTaskFailed, e)
		q.logger.Error("task failed",
			"task", id,
			"name", e.task.Name,
			"retry", e.task.RetryCount,
			"maxRetries", e.task.MaxRetries,
			"err", err)

		if e.task.RetryCount < e.task.MaxRetries {
			q.scheduleRetryLocked(e)
		} else {
			e.task.Payload = releasePayload(e.task.Payload)
			e.future.resolve(e.task.stripped())
		}
	}

	q.dispatchLocked()
	q.drainedLocked()
}

// finishLocked moves e to a terminal state that no retry can leave.
func (q *Queue) finishLocked(e *entry, ev EventType) {
	if e.retry != nil {
		e.retry.Stop()
		e.retry = nil
	}
	e.task.Payload = releasePayload(e.task.Payload)
	q.publishLocked(ev, e)
	e.future.resolve(e.task.stripped())
}

func (q *Queue) scheduleRetryLocked(e *entry) {
	id, count := e.task.ID, e.task.RetryCount
	delay := q.cfg.RetryDelay
	q.logger.Info("scheduling retry",
		"task", id,
		"name", e.task.Name,
		"delay", delay,
		"retry", count+1,
		"maxRetries", e.task.MaxRetries)

	e.retry = time.AfterFunc(delay, func() {
		q.mu.Lock()
		defer q.mu.Unlock()

		// The task may have been retried, cancelled or removed meanwhile.
		cur, ok := q.failed[id]
		if !ok || cur != e || cur.task.State != StateFailed || cur.task.RetryCount != count {
			return
		}
		q.retryLocked(cur)
	})
}

// drainedLocked publishes EventQueueDrained when the queue has just become
// empty.
func (q *Queue) drainedLocked() {
	if !q.busy || len(q.pending) > 0 || len(q.inflight) > 0 {
		return
	}
	q.busy = false
	q.events.publish(Event{Type: EventQueueDrained, Time: time.Now()})
	q.logger.Info("queue drained", "completed", q.completed, "failed", q.failures)
}

// CancelTask cancels a pending, processing or failed task. A pending or
// failed task is cancelled at once. A processing task has its context
// cancelled and settles as Cancelled when its executor returns. It returns
// false for unknown or finished tasks.
func (q *Queue) CancelTask(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if i := slices.IndexFunc(q.pending, func(e *entry) bool { return e.task.ID == id }); i >= 0 {
		e := q.pending[i]
		q.pending = slices.Delete(q.pending, i, i+1)
		q.cancelWaitingLocked(e)
		q.drainedLocked()
		return true
	}

	if e, ok := q.inflight[id]; ok {
		q.cancelRunningLocked(e)
		return true
	}

	if e, ok := q.failed[id]; ok {
		delete(q.failed, id)
		q.cancelWaitingLocked(e)
		return true
	}

	return false
}

// CancelAll cancels every pending and processing task, and every failed
// task still waiting for an automatic retry.
func (q *Queue) CancelAll() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelAllLocked()
}

func (q *Queue) cancelAllLocked() {
	pending := q.pending
	q.pending = nil
	for _, e := range pending {
		q.cancelWaitingLocked(e)
	}

	for _, e := range q.inflight {
		q.cancelRunningLocked(e)
	}

	for id, e := range q.failed {
		if e.retry == nil {
			continue
		}
		delete(q.failed, id)
		q.cancelWaitingLocked(e)
	}

	q.logger.Info("cancelled all tasks", "pending", len(pending), "processing", len(q.inflight))
	q.drainedLocked()
}

func (q *Queue) cancelWaitingLocked(e *entry) {
	e.task.State = StateCancelled
	e.task.CompletedAt = time.Now()
	e.task.LastError = nil
	q.finishLocked(e, EventTaskCancelled)
	q.logger.Info("task cancelled", "task", e.task.ID, "name", e.task.Name)
}

func (q *Queue) cancelRunningLocked(e *entry) {
	if e.task.State == StateCancelled {
		return
	}
	e.task.State = StateCancelled
	if e.cancel != nil {
		e.cancel()
	}
	q.logger.Info("cancelling running task", "task", e.task.ID, "name", e.task.Name)
}

// RetryTask re-queues a failed task. It returns false when the task is not
// failed or has used its retry budget.
func (q *Queue) RetryTask(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.failed[id]
	if !ok || q.closed {
		return false
	}
	if e.task.RetryCount >= e.task.MaxRetries {
		q.logger.Warn("retry limit reached", "task", id, "name", e.task.Name, "maxRetries", e.task.MaxRetries)
		return false
	}
	q.retryLocked(e)
	return true
}

func (q *Queue) retryLocked(e *entry) {
	if e.retry != nil {
		e.retry.Stop()
		e.retry = nil
	}
	delete(q.failed, e.task.ID)

	e.task.State = StatePending
	e.task.Progress = 0
	e.task.Stage = ""
	e.task.LastError = nil
	e.task.StartedAt = time.Time{}
	e.task.CompletedAt = time.Time{}
	e.task.RetryCount++

	q.pending = append(q.pending, e)
	q.busy = true
	q.publishLocked(EventTaskQueued, e)
	q.logger.Info("retrying task",
		"task", e.task.ID,
		"name", e.task.Name,
		"retry", e.task.RetryCount,
		"maxRetries", e.task.MaxRetries)

	q.dispatchLocked()
}

// RemoveTask forgets a failed task, acknowledging its failure. It returns
// false when the task is not failed.
func (q *Queue) RemoveTask(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.failed[id]
	if !ok {
		return false
	}
	delete(q.failed, id)
	if e.retry != nil {
		e.retry.Stop()
		e.retry = nil
	}
	e.task.Payload = releasePayload(e.task.Payload)
	e.future.resolve(e.task.stripped())
	return true
}

// GetStatus returns a summary of the queue.
func (q *Queue) GetStatus() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Status{
		Pending:     len(q.pending),
		Processing:  len(q.inflight),
		Completed:   q.completed,
		Failed:      q.failures,
		Workload:    q.workload,
		MaxWorkload: q.cfg.MaxWorkload,
		AtCapacity:  q.atCapacityLocked(),
	}
}

// GetTask returns a snapshot of a pending, processing or failed task.
func (q *Queue) GetTask(id string) (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if e, ok := q.inflight[id]; ok {
		return e.task.stripped(), true
	}
	if e, ok := q.failed[id]; ok {
		return e.task.stripped(), true
	}
	for _, e := range q.pending {
		if e.task.ID == id {
			return e.task.stripped(), true
		}
	}
	return Task{}, false
}

// GetActiveTasks returns the pending tasks in queue order followed by the
// processing tasks in start order.
func (q *Queue) GetActiveTasks() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	tasks := make([]Task, 0, len(q.pending)+len(q.inflight))
	for _, e := range q.pending {
		tasks = append(tasks, e.task.stripped())
	}
	return append(tasks, sortedSnapshots(q.inflight, func(t Task) time.Time { return t.StartedAt })...)
}

// GetFailedTasks returns the failed tasks still tracked, oldest failure first.
func (q *Queue) GetFailedTasks() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return sortedSnapshots(q.failed, func(t Task) time.Time { return t.CompletedAt })
}

func sortedSnapshots(entries map[string]*entry, key func(Task) time.Time) []Task {
	tasks := make([]Task, 0, len(entries))
	for _, e := range entries {
		tasks = append(tasks, e.task.stripped())
	}
	slices.SortFunc(tasks, func(a, b Task) int {
		if c := key(a).Compare(key(b)); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return tasks
}

// IsIdle reports whether nothing is pending or processing.
func (q *Queue) IsIdle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) == 0 && len(q.inflight) == 0
}

// Config returns the current configuration.
func (q *Queue) Config() Config {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cfg
}

// UpdateConfig merges u into the configuration. Running tasks are not
// affected; new limits apply from the next admission pass, which runs
// immediately. New MaxRetries values apply to tasks created afterwards.
func (q *Queue) UpdateConfig(u ConfigUpdate) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	cfg := u.apply(q.cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	q.cfg = cfg
	q.logger.Info("queue configuration updated",
		"maxConcurrent", cfg.MaxConcurrent,
		"maxWorkload", cfg.MaxWorkload,
		"maxRetries", cfg.MaxRetries,
		"retryDelay", cfg.RetryDelay)

	q.dispatchLocked()
	return nil
}

// ResetCounters zeroes the completed and failed counters.
func (q *Queue) ResetCounters() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed = 0
	q.failures = 0
}

// Subscribe returns a subscription to the given event types, or to every
// event when none are given.
func (q *Queue) Subscribe(types ...EventType) *Subscription {
	return q.events.subscribe(types)
}

// Close cancels all work, waits for running executors to return and closes
// every subscription once its buffered events are delivered. Failed tasks
// are resolved as they are.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.cancelAllLocked()
	q.closed = true
	q.mu.Unlock()

	q.running.Wait()

	q.mu.Lock()
	for id, e := range q.failed {
		delete(q.failed, id)
		e.future.resolve(e.task.stripped())
	}
	q.mu.Unlock()

	q.pool.Release()
	q.events.close()
	return nil
}

func (q *Queue) publishLocked(t EventType, e *entry) {
	q.events.publish(Event{Type: t, Task: e.task.stripped(), Time: time.Now()})
}

// stripped returns a copy of t without payload data.
func (t Task) stripped() Task {
	t.Payload = releasePayload(t.Payload)
	return t
}

func releasePayload(p Payload) Payload {
	if p == nil {
		return nil
	}
	return p.released()
}

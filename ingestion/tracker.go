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

package ingestion

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/queue"
	"github.com/poiesic/kbase/storage"
)

// Tracker records the state of every submitted source by following queue
// events.
type Tracker struct {
	collections storage.CollectionRepository
	sources     storage.SourceRepository
	documents   storage.DocumentRepository
	sub         *queue.Subscription
	logger      *slog.Logger

	// mu serializes record with Forget.
	mu        sync.Mutex
	forgotten map[sourceKey]time.Time

	done chan struct{}
	once sync.Once
}

type sourceKey struct {
	collection core.ID
	source     core.ID
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithTrackerLogger sets a custom logger.
// Default is slog.Default().
func WithTrackerLogger(logger *slog.Logger) TrackerOption {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewTracker subscribes to q and starts persisting sources.
func NewTracker(
	q *queue.Queue,
	collections storage.CollectionRepository,
	sources storage.SourceRepository,
	documents storage.DocumentRepository,
	opts ...TrackerOption,
) (*Tracker, error) {
	if q == nil {
		return nil, ErrQueueRequired
	}
	if collections == nil {
		return nil, ErrCollectionRepositoryRequired
	}
	if sources == nil {
		return nil, ErrSourceRepositoryRequired
	}
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}

	t := &Tracker{
		collections: collections,
		sources:     sources,
		documents:   documents,
		logger:      slog.Default(),
		forgotten:   make(map[sourceKey]time.Time),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("component", "tracker")

	t.sub = q.Subscribe(
		queue.EventTaskQueued,
		queue.EventTaskStarted,
		queue.EventTaskProgress,
		queue.EventTaskCompleted,
		queue.EventTaskFailed,
		queue.EventTaskCancelled,
	)
	go t.run()
	return t, nil
}

func (t *Tracker) run() {
	defer close(t.done)
	for ev := range t.sub.Events() {
		if err := t.record(context.Background(), ev); err != nil {
			t.logger.Error("failed to record source", "task", ev.Task.ID, "event", ev.Type, "err", err)
		}
	}
}

// record applies one event to the task's source.
func (t *Tracker) record(ctx context.Context, ev queue.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	task := ev.Task
	id := SourceID(task)
	if deleted, ok := t.forgotten[sourceKey{task.CollectionID, id}]; ok && !task.CreatedAt.After(deleted) {
		return nil
	}

	// Events can trail the deletion of their collection.
	if _, err := t.collections.GetCollection(ctx, task.CollectionID); errors.Is(err, storage.ErrNotFound) {
		return nil
	} else if err != nil {
		return err
	}

	source, err := t.sources.GetSource(ctx, task.CollectionID, id)
	if errors.Is(err, storage.ErrNotFound) {
		source = &core.Source{
			Id:           id,
			CollectionId: task.CollectionID,
		}
	} else if err != nil {
		return err
	}

	// A refresh keeps the kind of the source it replaces.
	if task.Kind != queue.KindRefresh || source.Kind == "" {
		source.Kind = string(task.Kind)
	}
	source.Name = task.Name
	source.Size = task.SizeHint
	source.Progress = task.Progress
	source.Stage = string(task.Stage)
	source.RetryCount = task.RetryCount
	source.TaskId = task.ID
	source.Error = ""

	switch ev.Type {
	case queue.EventTaskQueued:
		source.Status = core.SourceStatusPending
	case queue.EventTaskStarted, queue.EventTaskProgress:
		source.Status = core.SourceStatusProcessing
	case queue.EventTaskCompleted:
		source.Status = core.SourceStatusCompleted
		count, err := t.documents.CountDocumentsBySource(ctx, task.CollectionID, id)
		if err != nil {
			return err
		}
		source.ChunkCount = count
	case queue.EventTaskFailed:
		source.Status = core.SourceStatusFailed
		if task.LastError != nil {
			source.Error = task.LastError.Error()
		}
	case queue.EventTaskCancelled:
		source.Status = core.SourceStatusCancelled
	default:
		return nil
	}

	_, err = t.sources.PutSource(ctx, source)
	return err
}

// Forget makes the tracker ignore the events of every task created so far
// for a source, so that events trailing its deletion cannot recreate it.
// Tasks created afterwards are recorded as usual. When Forget returns, no
// record for the source is in flight.
func (t *Tracker) Forget(collectionID, sourceID core.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.forgotten[sourceKey{collectionID, sourceID}] = time.Now()
}

// Close stops following events and waits until every event already
// published has been recorded. It is safe to call more than once.
func (t *Tracker) Close() error {
	t.once.Do(t.sub.Close)
	<-t.done
	return nil
}

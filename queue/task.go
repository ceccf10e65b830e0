package queue

import (
	"context"
	"time"

	"github.com/poiesic/kbase/core"
)

// State is the lifecycle state of a Task.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateDone       State = "done"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// Stage names the pipeline step a processing task is in.
type Stage string

const (
	StageReading   Stage = "reading"
	StageParsing   Stage = "parsing"
	StageChunking  Stage = "chunking"
	StageEmbedding Stage = "embedding"
	StageSaving    Stage = "saving"
)

// Kind identifies the payload variant of a Task.
type Kind string

const (
	KindFile    Kind = "file"
	KindURL     Kind = "url"
	KindNote    Kind = "note"
	KindRefresh Kind = "refresh"
)

// Payload is the content of a Task. It is implemented only by FilePayload,
// URLPayload, NotePayload and RefreshPayload.
type Payload interface {
	Kind() Kind
	// Name is the display name of the content: a file name, URL or title.
	Name() string
	// released returns the payload with any large buffers dropped.
	released() Payload
}

// FilePayload is an uploaded file.
type FilePayload struct {
	FileName string
	Data     []byte
}

func (p FilePayload) Kind() Kind   { return KindFile }
func (p FilePayload) Name() string { return p.FileName }

func (p FilePayload) released() Payload {
	p.Data = nil
	return p
}

// URLPayload is a web page. Content holds the page text when it was fetched
// before submission; otherwise the executor fetches URL itself.
type URLPayload struct {
	URL     string
	Content string
}

func (p URLPayload) Kind() Kind   { return KindURL }
func (p URLPayload) Name() string { return p.URL }

func (p URLPayload) released() Payload {
	p.Content = ""
	return p
}

// NotePayload is free text entered by a user.
type NotePayload struct {
	Title string
	Text  string
}

func (p NotePayload) Kind() Kind   { return KindNote }
func (p NotePayload) Name() string { return p.Title }

func (p NotePayload) released() Payload {
	p.Text = ""
	return p
}

// RefreshPayload replaces the documents of an existing source with new content.
type RefreshPayload struct {
	SourceID core.ID
	FileName string
	Data     []byte
}

func (p RefreshPayload) Kind() Kind   { return KindRefresh }
func (p RefreshPayload) Name() string { return p.FileName }

func (p RefreshPayload) released() Payload {
	p.Data = nil
	return p
}

// Task is a unit of ingestion work. Values handed out by the queue are
// snapshots; changing them has no effect on the queue.
type Task struct {
	ID           string
	Kind         Kind
	Name         string
	CollectionID core.ID
	Payload      Payload

	State      State
	SizeHint   int64
	Progress   int
	Stage      Stage
	RetryCount int
	MaxRetries int
	LastError  error

	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// Terminal reports whether t is Done or Cancelled, or Failed with no retries left.
func (t Task) Terminal() bool {
	switch t.State {
	case StateDone, StateCancelled:
		return true
	case StateFailed:
		return t.RetryCount >= t.MaxRetries
	default:
		return false
	}
}

// ProgressFunc reports the progress of the running attempt. Percent values
// lower than an earlier report in the same attempt are ignored.
type ProgressFunc func(percent int, stage Stage)

// Executor runs one attempt of a task. It should return ErrCancelled, or
// ctx.Err(), when it stops because ctx was cancelled.
type Executor interface {
	Execute(ctx context.Context, task Task, report ProgressFunc) error
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, task Task, report ProgressFunc) error

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, task Task, report ProgressFunc) error {
	return f(ctx, task, report)
}

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

import "errors"

var (
	// ErrExecutorRequired is returned when a queue is created without an executor.
	ErrExecutorRequired = errors.New("executor required")

	// ErrInvalidConfig indicates a configuration value out of range.
	ErrInvalidConfig = errors.New("invalid queue configuration")

	// ErrCancelled is returned by executors that stop because their task was
	// cancelled. Tasks settling with it end Cancelled rather than Failed.
	ErrCancelled = errors.New("task cancelled")

	// ErrQueueClosed is recorded on tasks submitted after Close.
	ErrQueueClosed = errors.New("queue closed")

	// ErrDuplicateTask is recorded on a task submitted while another task
	// with the same ID is still tracked.
	ErrDuplicateTask = errors.New("task already queued")

	// ErrExecutorPanic wraps a panic recovered from an executor.
	ErrExecutorPanic = errors.New("executor panicked")
)

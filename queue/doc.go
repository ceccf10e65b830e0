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


// Package queue schedules ingestion tasks under two limits: the number of
// tasks running at once and the combined estimated size of those tasks.
//
// Tasks are admitted greedily in submission order. A task that would push
// the running workload over the limit is deferred while anything else is
// running, so smaller tasks behind it can start. A task larger than the
// whole budget still runs when the queue is otherwise empty. Every time a
// task settles the queue runs another admission pass.
//
// Failed tasks are retried after a delay until their retry budget is spent,
// then kept until RetryTask or RemoveTask is called. Cancellation is
// cooperative: the executor sees its context cancelled and the task settles
// as Cancelled, never as Failed.
//
// Lifecycle changes are published as Events to subscribers, and each
// submission returns a Future resolved once with the task's final snapshot.
package queue

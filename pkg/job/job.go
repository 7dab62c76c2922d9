/*
Copyright 2011 Google Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package job implements C6, the background job/poll state machine that
// the cffi boundary sits on top of: a long-running Update or Install
// call is started on its own goroutine, and the caller polls for
// progress and, eventually, the final result without ever blocking.
//
// It is grounded on the original's UpdatePoll enum
// (rust/cmsis-cffi/src/pack_index.rs): a Running/Complete/Drained state
// machine driven by an atomic done flag and an unbounded mpsc channel of
// progress updates (std::sync::mpsc::channel() is unbounded; see
// pack_index.rs:108). The Arc<AtomicBool> plus Receiver pair becomes a
// single mutex-guarded struct; the three-way enum becomes a State plus a
// result field that's only meaningful once State is Complete. The
// Receiver itself becomes a mutex-guarded slice rather than a Go
// channel, so that a slow or absent poller can never block the worker
// goroutine the way a fixed-capacity channel send would.
package job

import (
	"fmt"
	"sync"

	"packmirror.dev/packmirror/internal/pmerrors"
	"packmirror.dev/packmirror/pkg/pipeline"
)

// State names where a Job sits in its Running -> Complete -> Drained
// lifecycle. A Job starts Running, becomes Complete exactly once its
// worker goroutine returns, and becomes Drained exactly once its result
// has been collected by Result. Polling or fetching status on a Drained
// job is always a well-defined no-op, never an error, matching the
// original's treatment of Drained as an absorbing state.
type State int

const (
	Running State = iota
	Complete
	Drained
)

// Update is one progress notification, equivalent to the original's
// DownloadUpdate repr(C) struct: either a file-count announcement
// (IsSize true) or a single file's completion (IsSize false).
type Update struct {
	IsSize bool
	Size   int
}

// Job runs one Update or Install call on a background goroutine and
// exposes its progress and eventual result through non-blocking polling
// operations, for a cffi layer that cannot block its caller's thread.
type Job struct {
	mu    sync.Mutex
	state State
	paths []string
	err   error

	updatesMu sync.Mutex
	updates   []Update

	done chan struct{}
}

// Run is the shape of work a Job executes: given a Progress to send
// progress through, produce the final list of materialized paths.
type Run func(progress pipeline.Progress) ([]string, error)

// Start launches fn on a new goroutine and returns a Job in the Running
// state immediately. fn's progress reports accumulate on a
// mutex-guarded, unbounded queue that Status drains; the worker never
// blocks on a slow or absent poller, matching the original's unbounded
// mpsc channel.
func Start(fn Run) *Job {
	j := &Job{
		state: Running,
		done:  make(chan struct{}),
	}
	reporter := &jobProgress{job: j}

	go func() {
		defer close(j.done)
		paths, err := j.runCatchingPanic(fn, reporter)

		j.mu.Lock()
		j.paths, j.err = paths, err
		j.mu.Unlock()
	}()

	return j
}

func (j *Job) pushUpdate(u Update) {
	j.updatesMu.Lock()
	j.updates = append(j.updates, u)
	j.updatesMu.Unlock()
}

func (j *Job) runCatchingPanic(fn Run, reporter pipeline.Progress) (paths []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job: %w: %v", pmerrors.ErrWorkerPanic, r)
		}
	}()
	return fn(reporter)
}

// Poll reports whether the job has finished: true once it is Complete
// or Drained, false while Running. It is non-blocking, the Go analogue
// of the original's update_pdsc_poll, minus that function's side effect
// of joining the worker thread — here the worker's result is already
// waiting on j.done by the time Poll can observe it.
func (j *Job) Poll() bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state != Running {
		return true
	}
	select {
	case <-j.done:
		j.state = Complete
		return true
	default:
		return false
	}
}

// Status returns the next pending progress update, if any, without
// blocking. ok is false if no update is currently queued, the Go
// analogue of the original's update_pdsc_get_status trying a
// non-blocking channel receive.
func (j *Job) Status() (update Update, ok bool) {
	j.updatesMu.Lock()
	defer j.updatesMu.Unlock()

	if len(j.updates) == 0 {
		return Update{}, false
	}
	u := j.updates[0]
	j.updates = j.updates[1:]
	return u, true
}

// Result collects the job's outcome exactly once: the first call after
// the job reaches Complete returns its paths and error and transitions
// the Job to Drained; every call thereafter (and every call made while
// still Running) returns ok == false, matching the original's
// update_pdsc_result returning null once the UpdatePoll has already been
// replaced with Drained.
func (j *Job) Result() (paths []string, err error, ok bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state == Running {
		select {
		case <-j.done:
			j.state = Complete
		default:
			return nil, nil, false
		}
	}
	if j.state != Complete {
		return nil, nil, false
	}
	j.state = Drained
	return j.paths, j.err, true
}

// jobProgress adapts a Job's update queue to pipeline.Progress.
type jobProgress struct {
	job *Job
}

func (p *jobProgress) Size(n int) {
	p.job.pushUpdate(Update{IsSize: true, Size: n})
}

func (p *jobProgress) Complete() {
	p.job.pushUpdate(Update{IsSize: false})
}

func (p *jobProgress) ForFile(string) pipeline.Progress {
	return p
}

/*
Copyright 2013 The Camlistore Authors.

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

// Command packmirror-cffi is the C ABI surface over pkg/update and
// pkg/job, built with `go build -buildmode=c-shared` for a host that
// cannot block its calling thread. It is grounded on the original's
// rust/cmsis-cffi/src/pack_index.rs (crate-type = cdylib): a
// constructor that starts a background worker and returns an opaque
// handle, a non-blocking poll, a non-blocking progress-status fetch,
// and a result getter that can be called exactly once.
//
// Rust's version hands raw Box pointers across the boundary. Go's cgo
// pointer-passing rules forbid storing a Go pointer inside C memory
// past the duration of one call, so every object that crosses this
// boundary is instead kept in a process-wide handle table and referred
// to by an opaque, non-reusable C.uintptr_t, the same indirection
// sqlite and other cgo-exporting drivers in the wild use for the same
// reason.
package main

/*
#include <stdlib.h>

typedef struct {
	int is_size;
	size_t size;
} packmirror_download_update;
*/
import "C"

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"unsafe"

	"packmirror.dev/packmirror/internal/pmerrors"
	"packmirror.dev/packmirror/pkg/config"
	"packmirror.dev/packmirror/pkg/dstore"
	"packmirror.dev/packmirror/pkg/fetch"
	"packmirror.dev/packmirror/pkg/job"
	"packmirror.dev/packmirror/pkg/pipeline"
	"packmirror.dev/packmirror/pkg/update"
)

var (
	handleMu  sync.Mutex
	handleSeq uintptr
	handles   = map[uintptr]interface{}{}
)

func register(v interface{}) C.uintptr_t {
	handleMu.Lock()
	defer handleMu.Unlock()
	handleSeq++
	handles[handleSeq] = v
	return C.uintptr_t(handleSeq)
}

func lookup(h C.uintptr_t) (interface{}, bool) {
	handleMu.Lock()
	defer handleMu.Unlock()
	v, ok := handles[uintptr(h)]
	return v, ok
}

func unregister(h C.uintptr_t) {
	handleMu.Lock()
	defer handleMu.Unlock()
	delete(handles, uintptr(h))
}

var (
	lastErrMu  sync.Mutex
	lastErrMsg string
)

func setLastError(err error) {
	lastErrMu.Lock()
	defer lastErrMu.Unlock()
	lastErrMsg = err.Error()
}

// packmirror_last_error returns the message of the most recent error
// from any update_pdsc_index, install_pack_index or update_pdsc_result
// call, or NULL if none has occurred yet. There is one slot for the
// whole process, not one per calling thread: an error recorded on one
// host thread replaces the message left by another. The caller owns the returned string and must free
// it with cstring_free.
//
//export packmirror_last_error
func packmirror_last_error() *C.char {
	lastErrMu.Lock()
	msg := lastErrMsg
	lastErrMu.Unlock()
	if msg == "" {
		return nil
	}
	return C.CString(msg)
}

// cstring_free releases a string previously returned across this
// boundary (by packmirror_last_error or update_pdsc_index_next).
//
//export cstring_free
func cstring_free(ptr *C.char) {
	if ptr != nil {
		C.free(unsafe.Pointer(ptr))
	}
}

// optionalString converts a possibly-NULL C string to a Go string,
// returning "" for NULL the way the original's pack_index.rs treats a
// null pack_store/vidx_list pointer as "use the default".
func optionalString(s *C.char) string {
	if s == nil {
		return ""
	}
	return C.GoString(s)
}

func newLogger() *log.Logger {
	return log.New(os.Stderr, "packmirror: ", log.LstdFlags)
}

// update_pdsc_index starts a background Update run and returns an
// opaque job handle immediately, or 0 if the run could not even be
// started (bad config, unreadable vidx list). pack_store and vidx_list
// may be NULL to use the package defaults, matching the original's
// null-means-default convention.
//
//export update_pdsc_index
func update_pdsc_index(packStore, vidxList *C.char) C.uintptr_t {
	cfg, store, fetcher, vidxURLs, err := startUpdateDeps(packStore, vidxList)
	if err != nil {
		setLastError(err)
		return 0
	}

	j := job.Start(func(progress pipeline.Progress) ([]string, error) {
		defer store.Close()
		return update.Update(context.Background(), cfg, vidxURLs, fetcher, store, progress, newLogger())
	})
	return register(j)
}

func startUpdateDeps(packStore, vidxList *C.char) (config.Config, *dstore.Store, *fetch.Fetcher, []string, error) {
	cfg, err := config.NewBuilder().
		WithPackStore(optionalString(packStore)).
		WithVidxList(optionalString(vidxList)).
		Build()
	if err != nil {
		return config.Config{}, nil, nil, nil, fmt.Errorf("cffi: %w: %v", pmerrors.ErrConfigInvalid, err)
	}

	logger := newLogger()
	store, err := dstore.Open(cfg.DBPath(), logger)
	if err != nil {
		return config.Config{}, nil, nil, nil, err
	}

	vidxURLs, err := cfg.ReadVidxList()
	if err != nil {
		store.Close()
		return config.Config{}, nil, nil, nil, err
	}

	return cfg, store, fetch.NewFetcher(logger), vidxURLs, nil
}

// install_pack_index starts a background Install run for a single
// (vendor, name, version) key, the pack-download analogue of
// update_pdsc_index. The original has no direct equivalent function
// name; this mirrors cmsis-update::install the way update_pdsc_index
// mirrors cmsis-update::update.
//
//export install_pack_index
func install_pack_index(packStore, vendor, name, version, url *C.char) C.uintptr_t {
	cfg, err := config.NewBuilder().WithPackStore(optionalString(packStore)).Build()
	if err != nil {
		setLastError(fmt.Errorf("cffi: %w: %v", pmerrors.ErrConfigInvalid, err))
		return 0
	}
	if vendor == nil || name == nil || version == nil || url == nil {
		setLastError(fmt.Errorf("cffi: %w: install_pack_index requires vendor, name, version and url", pmerrors.ErrNullArgument))
		return 0
	}

	logger := newLogger()
	store, err := dstore.Open(cfg.DBPath(), logger)
	if err != nil {
		setLastError(err)
		return 0
	}
	fetcher := fetch.NewFetcher(logger)
	keys := []dstore.PdscKey{{
		Vendor:  C.GoString(vendor),
		Name:    C.GoString(name),
		Version: C.GoString(version),
		URL:     C.GoString(url),
	}}

	j := job.Start(func(progress pipeline.Progress) ([]string, error) {
		defer store.Close()
		return update.Install(context.Background(), cfg, keys, fetcher, store, progress, logger)
	})
	return register(j)
}

// update_pdsc_poll reports whether the job behind handle has finished
// (Complete or Drained); 0 while still Running. An unknown handle
// (already freed, or never valid) reports done, matching the original's
// null-pointer convention of returning false/true defensively rather
// than crashing the host.
//
//export update_pdsc_poll
func update_pdsc_poll(handle C.uintptr_t) C.int {
	v, ok := lookup(handle)
	if !ok {
		return 1
	}
	j := v.(*job.Job)
	if j.Poll() {
		return 1
	}
	return 0
}

// update_pdsc_get_status returns the next queued progress update for
// handle, or NULL if none is pending right now. The caller must free a
// non-NULL result with update_pdsc_status_free.
//
//export update_pdsc_get_status
func update_pdsc_get_status(handle C.uintptr_t) *C.packmirror_download_update {
	v, ok := lookup(handle)
	if !ok {
		return nil
	}
	j := v.(*job.Job)
	u, ok := j.Status()
	if !ok {
		return nil
	}

	out := (*C.packmirror_download_update)(C.malloc(C.size_t(unsafe.Sizeof(C.packmirror_download_update{}))))
	if u.IsSize {
		out.is_size = 1
	} else {
		out.is_size = 0
	}
	out.size = C.size_t(u.Size)
	return out
}

// update_pdsc_status_free releases a status struct returned by
// update_pdsc_get_status.
//
//export update_pdsc_status_free
func update_pdsc_status_free(ptr *C.packmirror_download_update) {
	if ptr != nil {
		C.free(unsafe.Pointer(ptr))
	}
}

// update_pdsc_result collects the outcome of the job behind handle,
// exactly once. It returns a new index handle (see
// update_pdsc_index_new/_next/_push/_free) holding the materialized
// paths on success, or 0 if the job errored (call
// packmirror_last_error for details) or was not yet Complete, or had
// already been drained. On success or error the job handle itself is
// released; it must not be polled or resulted again.
//
//export update_pdsc_result
func update_pdsc_result(handle C.uintptr_t) C.uintptr_t {
	v, ok := lookup(handle)
	if !ok {
		return 0
	}
	j := v.(*job.Job)

	paths, err, ok := j.Result()
	if !ok {
		return 0
	}
	unregister(handle)
	if err != nil {
		setLastError(err)
		return 0
	}
	return register(&paths)
}

// update_pdsc_index_new creates an empty path-list handle for the caller
// to push paths into, the way the original's update_pdsc_index_new
// seeded an UpdateReturn.
//
//export update_pdsc_index_new
func update_pdsc_index_new() C.uintptr_t {
	paths := []string{}
	return register(&paths)
}

// update_pdsc_index_next pops and returns one path from the list behind
// handle, or NULL once the list is empty. The caller owns the returned
// string and must free it with cstring_free.
//
//export update_pdsc_index_next
func update_pdsc_index_next(handle C.uintptr_t) *C.char {
	v, ok := lookup(handle)
	if !ok {
		return nil
	}
	paths := v.(*[]string)
	if len(*paths) == 0 {
		return nil
	}
	last := len(*paths) - 1
	path := (*paths)[last]
	*paths = (*paths)[:last]
	return C.CString(path)
}

// update_pdsc_index_push appends cstr to the path list behind handle.
// Returns 1 on success, 0 if handle or cstr is invalid.
//
//export update_pdsc_index_push
func update_pdsc_index_push(handle C.uintptr_t, cstr *C.char) C.int {
	v, ok := lookup(handle)
	if !ok || cstr == nil {
		return 0
	}
	paths := v.(*[]string)
	*paths = append(*paths, C.GoString(cstr))
	return 1
}

// update_pdsc_index_free releases a path-list handle.
//
//export update_pdsc_index_free
func update_pdsc_index_free(handle C.uintptr_t) {
	unregister(handle)
}

func main() {}

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

// Package pmerrors defines the sentinel error taxonomy shared by every
// packmirror component, so that callers can classify a failure with
// errors.Is instead of string matching.
package pmerrors

import "errors"

var (
	// ErrConfigInvalid means the loaded Config failed validation.
	ErrConfigInvalid = errors.New("packmirror: invalid configuration")

	// ErrNetwork means a connection or TLS handshake failed before any
	// response was received.
	ErrNetwork = errors.New("packmirror: network error")

	// ErrHTTPStatus means a terminal non-2xx/3xx response was received.
	ErrHTTPStatus = errors.New("packmirror: non-success HTTP status")

	// ErrRedirectLoop means the redirect chain exceeded MaxRedirects.
	ErrRedirectLoop = errors.New("packmirror: too many redirects")

	// ErrXMLParse means a vendor-index document failed to parse.
	ErrXMLParse = errors.New("packmirror: XML parse error")

	// ErrIO wraps a filesystem failure during materialization.
	ErrIO = errors.New("packmirror: I/O error")

	// ErrDatabase wraps a failure from the descriptor store.
	ErrDatabase = errors.New("packmirror: database error")

	// ErrEncoding means a path or string was not valid UTF-8.
	ErrEncoding = errors.New("packmirror: invalid encoding")

	// ErrNullArgument is returned across the FFI when a required pointer
	// argument was NULL.
	ErrNullArgument = errors.New("packmirror: null argument")

	// ErrWorkerPanic means the background worker goroutine recovered
	// from a panic instead of returning normally.
	ErrWorkerPanic = errors.New("packmirror: worker panicked")

	// ErrAlreadyDrained means Result was called on a job that already
	// had its result taken.
	ErrAlreadyDrained = errors.New("packmirror: job already drained")
)

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

// Package store implements C2, the atomic file writer: it drains a byte
// stream into a ".part" sibling of the destination and renames it into
// place only once the stream is fully and successfully written. It is
// grounded on the teacher's pkg/blobserver/localdisk.ReceiveBlob, which
// uses the identical temp-file-then-rename pattern to make blob writes
// crash-safe.
package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"packmirror.dev/packmirror/internal/pmerrors"
)

// Materialize streams src into dest atomically. If dest already exists,
// Materialize returns immediately without reading from src at all
// (spec.md §4.2's idempotence contract — a precondition for property 1
// in spec.md §8). Otherwise it creates dest's parent directories,
// writes to dest+".part", and renames .part onto dest once the copy
// succeeds. A failure mid-copy leaves the .part file behind; it is
// harmless and is overwritten on the next attempt.
func Materialize(dest string, src io.Reader) error {
	if _, err := os.Stat(dest); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("store: stat %s: %w: %v", dest, pmerrors.ErrIO, err)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("store: mkdir for %s: %w: %v", dest, pmerrors.ErrIO, err)
	}

	temp := dest + ".part"
	fd, err := os.OpenFile(temp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("store: open %s: %w: %v", temp, pmerrors.ErrIO, err)
	}

	if _, err := io.Copy(fd, src); err != nil {
		fd.Close()
		return fmt.Errorf("store: writing %s: %w: %v", temp, pmerrors.ErrIO, err)
	}
	if err := fd.Sync(); err != nil {
		fd.Close()
		return fmt.Errorf("store: sync %s: %w: %v", temp, pmerrors.ErrIO, err)
	}
	if err := fd.Close(); err != nil {
		return fmt.Errorf("store: close %s: %w: %v", temp, pmerrors.ErrIO, err)
	}

	// dest's directory is required (spec.md §4.2) to share a filesystem
	// with pack_store, so this rename is atomic.
	if err := os.Rename(temp, dest); err != nil {
		return fmt.Errorf("store: rename %s to %s: %w: %v", temp, dest, pmerrors.ErrIO, err)
	}
	return nil
}

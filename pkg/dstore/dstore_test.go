/*
Copyright 2012 The Camlistore Authors.

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

package dstore

import (
	"io"
	"log"
	"path/filepath"
	"testing"

	"packmirror.dev/packmirror/pkg/vidx"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.sqlite")
	s, err := Open(path, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertPdscIsIdempotent(t *testing.T) {
	s := openTest(t)
	ref := vidx.PdscRef{Vendor: "Acme", Name: "Widget", Version: "1.0.0", URL: "https://example.com/"}

	row1, err := s.UpsertPdsc(ref)
	if err != nil {
		t.Fatalf("first UpsertPdsc: %v", err)
	}
	if row1.Path != "" {
		t.Errorf("fresh row has non-empty Path %q", row1.Path)
	}

	row1, err = s.SetPdscPath(row1, "/store/Acme.Widget.1.0.0.pdsc")
	if err != nil {
		t.Fatalf("SetPdscPath: %v", err)
	}

	row2, err := s.UpsertPdsc(ref)
	if err != nil {
		t.Fatalf("second UpsertPdsc: %v", err)
	}
	if row2.Path != row1.Path {
		t.Errorf("repeated UpsertPdsc touched path: got %q, want unchanged %q", row2.Path, row1.Path)
	}
}

func TestSetPdscPathTransitionsOnce(t *testing.T) {
	s := openTest(t)
	ref := vidx.PdscRef{Vendor: "Acme", Name: "Gadget", Version: "2.1.3", URL: "https://example.com/"}

	row, err := s.UpsertPdsc(ref)
	if err != nil {
		t.Fatalf("UpsertPdsc: %v", err)
	}
	if row.Path != "" {
		t.Fatalf("new row already has a path: %q", row.Path)
	}

	row, err = s.SetPdscPath(row, "/store/Acme.Gadget.2.1.3.pdsc")
	if err != nil {
		t.Fatalf("SetPdscPath: %v", err)
	}
	if row.Path != "/store/Acme.Gadget.2.1.3.pdsc" {
		t.Errorf("Path = %q, want the materialized path", row.Path)
	}
}

func TestUpsertPackRoundTrip(t *testing.T) {
	s := openTest(t)
	key := PdscKey{Vendor: "Acme", Name: "Widget", Version: "1.0.0", URL: "https://example.com/"}

	row, err := s.UpsertPack(key)
	if err != nil {
		t.Fatalf("UpsertPack: %v", err)
	}
	row, err = s.SetPackPath(row, "/store/Acme/Widget/1.0.0.pack")
	if err != nil {
		t.Fatalf("SetPackPath: %v", err)
	}
	if row.Path != "/store/Acme/Widget/1.0.0.pack" {
		t.Errorf("Path = %q, want the materialized path", row.Path)
	}
}

func TestReopenRunsMigrationsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.sqlite")
	logger := log.New(io.Discard, "", 0)

	s1, err := Open(path, logger)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	s1.Close()

	s2, err := Open(path, logger)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer s2.Close()

	if _, err := s2.UpsertPdsc(vidx.PdscRef{Vendor: "A", Name: "B", Version: "1", URL: "u"}); err != nil {
		t.Fatalf("UpsertPdsc after reopen: %v", err)
	}
}

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

package update

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"packmirror.dev/packmirror/pkg/config"
	"packmirror.dev/packmirror/pkg/dstore"
	"packmirror.dev/packmirror/pkg/fetch"
	"packmirror.dev/packmirror/pkg/pipeline"
)

func testLogger() *log.Logger { return log.New(io.Discard, "", 0) }

const sampleVidx = `<?xml version="1.0" encoding="UTF-8"?>
<index schemaVersion="1.1.0">
  <vindex>
    <vendor>
      <vendorID>1</vendorID>
      <vendorName>Acme</vendorName>
      <url>%s/nested/</url>
      <date>2020-01-01</date>
    </vendor>
  </vindex>
  <pindex>
    <pdsc url="%s/" vendor="Acme" name="Widget" version="1.0.0"/>
    <pdsc url="%s/" vendor="Acme" name="Gadget" version="2.1.3"/>
  </pindex>
</index>`

func newTestStore(t *testing.T) *dstore.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.sqlite")
	s, err := dstore.Open(path, testLogger())
	if err != nil {
		t.Fatalf("dstore.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestUpdateHappyPath drives a single vendor index with two descriptor
// references through Update end to end: fetch the index, parse it,
// upsert both refs, fetch and materialize both .pdsc files.
func TestUpdateHappyPath(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/Acme.Widget.1.0.0.pdsc", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<package/>"))
	})
	mux.HandleFunc("/Acme.Gadget.2.1.3.pdsc", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<package/>"))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	vidxBody := fmt.Sprintf(sampleVidx, ts.URL, ts.URL, ts.URL)
	mux.HandleFunc("/vidx2", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(vidxBody))
	})

	store := newTestStore(t)
	fetcher := fetch.NewFetcher(testLogger())
	cfg := config.Config{PackStore: t.TempDir()}

	done, err := Update(context.Background(), cfg, []string{ts.URL + "/vidx2"}, fetcher, store, pipeline.NullProgress{}, testLogger())
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(done) != 2 {
		t.Fatalf("Update returned %d paths, want 2: %v", len(done), done)
	}
}

// TestUpdatePartialVendorFailure checks that one unreachable vendor index
// does not poison the run: refs from the other, reachable index are
// still upserted and materialized.
func TestUpdatePartialVendorFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	mux.HandleFunc("/Acme.Widget.1.0.0.pdsc", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<package/>"))
	})

	goodBody := fmt.Sprintf(`<?xml version="1.0"?><index><pindex><pdsc url="%s/" vendor="Acme" name="Widget" version="1.0.0"/></pindex></index>`, ts.URL)
	mux.HandleFunc("/good2", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(goodBody))
	})

	store := newTestStore(t)
	fetcher := fetch.NewFetcher(testLogger())
	cfg := config.Config{PackStore: t.TempDir()}

	done, err := Update(context.Background(), cfg, []string{ts.URL + "/gone", ts.URL + "/good2"}, fetcher, store, pipeline.NullProgress{}, testLogger())
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(done) != 1 {
		t.Fatalf("Update returned %d paths, want 1 (from the reachable index only): %v", len(done), done)
	}
}

func TestInstallRoundTrip(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/Acme.Widget.1.0.0.pack", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pack-bytes"))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	store := newTestStore(t)
	fetcher := fetch.NewFetcher(testLogger())
	cfg := config.Config{PackStore: t.TempDir()}

	keys := []dstore.PdscKey{{Vendor: "Acme", Name: "Widget", Version: "1.0.0", URL: ts.URL}}
	done, err := Install(context.Background(), cfg, keys, fetcher, store, pipeline.NullProgress{}, testLogger())
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if len(done) != 1 {
		t.Fatalf("Install returned %d paths, want 1: %v", len(done), done)
	}
}

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

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBuilderWithPackStoreOverride(t *testing.T) {
	dir := t.TempDir()
	cfg, err := NewBuilder().WithPackStore(dir).WithVidxList(filepath.Join(dir, "vidx_list.txt")).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if cfg.PackStore != dir {
		t.Errorf("PackStore = %q, want %q", cfg.PackStore, dir)
	}
	if got, want := cfg.DBPath(), filepath.Join(dir, "index.sqlite"); got != want {
		t.Errorf("DBPath = %q, want %q", got, want)
	}
}

func TestBuilderEmptyOverrideIsIgnored(t *testing.T) {
	b := NewBuilder()
	before := b.packStore
	b.WithPackStore("")
	if b.packStore != before {
		t.Errorf("WithPackStore(\"\") changed packStore from %q to %q", before, b.packStore)
	}
}

func TestBuildResolvesRelativePath(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(cwd)

	cfg, err := NewBuilder().WithPackStore("relative").Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !filepath.IsAbs(cfg.PackStore) {
		t.Errorf("PackStore = %q, want an absolute path", cfg.PackStore)
	}
}

func TestValidateRejectsEmpty(t *testing.T) {
	var cfg Config
	if err := cfg.Validate(); err == nil {
		t.Error("Validate on a zero-value Config should fail")
	}
}

func TestValidateRejectsRelative(t *testing.T) {
	cfg := Config{PackStore: "relative/path"}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate should reject a relative pack_store")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	storeDir := filepath.Join(dir, "store")
	path := filepath.Join(dir, "config.json")
	contents := `{"packStore": "` + storeDir + `", "vidxList": "` + filepath.Join(dir, "vidx_list.txt") + `"}`
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.PackStore != storeDir {
		t.Errorf("PackStore = %q, want %q", cfg.PackStore, storeDir)
	}
}

func TestReadVidxListSkipsBlankAndCommentLines(t *testing.T) {
	dir := t.TempDir()
	listPath := filepath.Join(dir, "vidx_list.txt")
	contents := "# a comment\nhttps://example.com/a.vidx\n\nhttps://example.com/b.vidx\n"
	if err := os.WriteFile(listPath, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := Config{PackStore: dir, VidxListPath: listPath}
	urls, err := cfg.ReadVidxList()
	if err != nil {
		t.Fatalf("ReadVidxList: %v", err)
	}
	want := []string{"https://example.com/a.vidx", "https://example.com/b.vidx"}
	if len(urls) != len(want) {
		t.Fatalf("urls = %v, want %v", urls, want)
	}
	for i, u := range urls {
		if u != want[i] {
			t.Errorf("urls[%d] = %q, want %q", i, u, want[i])
		}
	}
}

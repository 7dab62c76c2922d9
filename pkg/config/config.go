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

// Package config loads the immutable Config a packmirror update/install run
// is built from: the pack_store root and the vidx_list_path. It is an
// external collaborator relative to the download core (the core only
// borrows a built Config), but something has to produce one, so this
// package plays that role the way perkeep's internal/osutil and
// pkg/serverconfig produce a Config for the rest of that program.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go4.org/jsonconfig"

	"packmirror.dev/packmirror/internal/osutil"
)

// Config is immutable for the lifetime of one update/install run.
type Config struct {
	// PackStore is the absolute filesystem root under which
	// index.sqlite, *.pdsc and */*/*.pack files live.
	PackStore string

	// VidxListPath is the path to a newline-delimited file of vendor
	// index URLs.
	VidxListPath string
}

// DBPath returns the path to the SQLite database file under PackStore.
func (c Config) DBPath() string {
	return filepath.Join(c.PackStore, "index.sqlite")
}

// Validate checks that PackStore is set and absolute, per spec.md's
// requirement that the pack_store root live on a single filesystem (the
// atomic rename in the materializer depends on it).
func (c Config) Validate() error {
	if c.PackStore == "" {
		return fmt.Errorf("config: pack_store is required")
	}
	if !filepath.IsAbs(c.PackStore) {
		return fmt.Errorf("config: pack_store must be an absolute path, got %q", c.PackStore)
	}
	return nil
}

// Builder accumulates overrides the way the original ConfigBuilder did,
// before producing an immutable Config via Build.
type Builder struct {
	packStore    string
	vidxListPath string
}

// NewBuilder returns a Builder seeded with the package defaults.
func NewBuilder() *Builder {
	return &Builder{
		packStore:    osutil.DefaultPackStore(),
		vidxListPath: osutil.DefaultVidxList(),
	}
}

// WithPackStore overrides the pack_store root. Ignored if s is empty, so
// FFI callers can pass a NULL/empty string to mean "use the default".
func (b *Builder) WithPackStore(s string) *Builder {
	if s != "" {
		b.packStore = s
	}
	return b
}

// WithVidxList overrides the vendor-index list path. Ignored if s is empty.
func (b *Builder) WithVidxList(s string) *Builder {
	if s != "" {
		b.vidxListPath = s
	}
	return b
}

// Build validates the accumulated fields and returns the immutable Config.
func (b *Builder) Build() (Config, error) {
	abs, err := filepath.Abs(b.packStore)
	if err != nil {
		return Config{}, fmt.Errorf("config: resolving pack_store: %w", err)
	}
	c := Config{PackStore: abs, VidxListPath: b.vidxListPath}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// LoadFile loads a JSON config file of the form
//
//	{"packStore": "/srv/packs", "vidxList": "/srv/packs/vidx_list.txt"}
//
// using go4.org/jsonconfig, the way perkeep's blobserver constructors
// validate their jsonconfig.Obj. Both keys are optional (a missing or
// empty key keeps the builder default); an unknown key is an error.
func LoadFile(path string) (Config, error) {
	obj, err := jsonconfig.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	b := NewBuilder()
	if v := obj.OptionalString("packStore", ""); v != "" {
		b.WithPackStore(v)
	}
	if v := obj.OptionalString("vidxList", ""); v != "" {
		b.WithVidxList(v)
	}
	if err := obj.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return b.Build()
}

// ReadVidxList reads the newline-delimited vendor-index URL file named by
// c.VidxListPath, per spec.md §6: UTF-8 text, one URL per non-empty,
// non-comment ("#"-prefixed) line.
func (c Config) ReadVidxList() ([]string, error) {
	f, err := os.Open(c.VidxListPath)
	if err != nil {
		return nil, fmt.Errorf("config: reading vidx list %s: %w", c.VidxListPath, err)
	}
	defer f.Close()

	var urls []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("config: scanning vidx list %s: %w", c.VidxListPath, err)
	}
	return urls, nil
}

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

// Package update implements C4 (the VIDX fan-out) and wires it to C1,
// C3 and C5 as the two top-level entry points, Update and Install,
// corresponding to the original's cmsis-update::update/::install free
// functions (rust/cmsis-update/src/lib.rs).
package update

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"packmirror.dev/packmirror/pkg/config"
	"packmirror.dev/packmirror/pkg/dstore"
	"packmirror.dev/packmirror/pkg/fetch"
	"packmirror.dev/packmirror/pkg/pipeline"
	"packmirror.dev/packmirror/pkg/vidx"
)

// Update downloads and parses every vendor index in vidxURLs, inserts
// every descriptor reference it finds into store, and materializes
// each as a .pdsc file under cfg.PackStore, per spec.md §2's data flow.
// It returns the set of descriptor paths that were successfully
// materialized (newly, or already present from a prior run).
func Update(ctx context.Context, cfg config.Config, vidxURLs []string, fetcher *fetch.Fetcher, store *dstore.Store, progress pipeline.Progress, logger *log.Logger) ([]string, error) {
	refs := fanOut(ctx, vidxURLs, fetcher, logger)

	rows := make([]dstore.StoredPdsc, 0, len(refs))
	for _, ref := range refs {
		row, err := store.UpsertPdsc(ref)
		if err != nil {
			return nil, fmt.Errorf("update: %w", err)
		}
		rows = append(rows, row)
	}

	tasks := make([]pipeline.Task, 0, len(rows))
	for _, row := range rows {
		row := row
		tasks = append(tasks, pipeline.Task{
			Label: fmt.Sprintf("%s.%s.%s.pdsc", row.Vendor, row.Name, row.VersionFull),
			URI:   pdscURI(row.URL, row.Vendor, row.Name, row.VersionFull),
			Dest:  pdscPath(cfg, row.Vendor, row.Name, row.VersionFull),
			Commit: func(dest string) error {
				_, err := store.SetPdscPath(row, dest)
				return err
			},
		})
	}

	return pipeline.Run(ctx, tasks, fetcher, progress, pipeline.DefaultMaxInFlight, logger), nil
}

// Install downloads and materializes the .pack archive for each
// (vendor, name, version) key, per spec.md §2's second pipeline
// instantiation. As noted in SPEC_FULL.md's open-question resolution,
// this takes already-identified keys rather than parsed Package values,
// since the PDSC body parser producing release lists is out of scope.
func Install(ctx context.Context, cfg config.Config, keys []dstore.PdscKey, fetcher *fetch.Fetcher, store *dstore.Store, progress pipeline.Progress, logger *log.Logger) ([]string, error) {
	rows := make([]dstore.StoredPack, 0, len(keys))
	for _, key := range keys {
		row, err := store.UpsertPack(key)
		if err != nil {
			return nil, fmt.Errorf("install: %w", err)
		}
		rows = append(rows, row)
	}

	tasks := make([]pipeline.Task, 0, len(rows))
	for _, row := range rows {
		row := row
		tasks = append(tasks, pipeline.Task{
			Label: fmt.Sprintf("%s/%s/%s.pack", row.Vendor, row.Name, row.VersionFull),
			URI:   packURI(row.URL, row.Vendor, row.Name, row.VersionFull),
			Dest:  packPath(cfg, row.Vendor, row.Name, row.VersionFull),
			Commit: func(dest string) error {
				_, err := store.SetPackPath(row, dest)
				return err
			},
		})
	}

	return pipeline.Run(ctx, tasks, fetcher, progress, pipeline.DefaultMaxInFlight, logger), nil
}

// fanOut downloads and parses each vendor index, emitting a flat list
// of PdscRef values. Per spec.md §4.4, a failure fetching or parsing
// any single index is logged and that index is dropped; the rest of
// the run continues, since the federated index is partial by nature.
// VidxRef entries are not recursively expanded (spec.md §4.4, §9 note
// 2); each one is logged instead so the behavior is visible.
func fanOut(ctx context.Context, vidxURLs []string, fetcher *fetch.Fetcher, logger *log.Logger) []vidx.PdscRef {
	var refs []vidx.PdscRef
	for _, url := range vidxURLs {
		body, err := fetcher.Fetch(ctx, url)
		if err != nil {
			logger.Printf("update: fetching vendor index %s: %v", url, err)
			continue
		}
		doc, err := vidx.Parse(body)
		body.Close()
		if err != nil {
			logger.Printf("update: parsing vendor index %s: %v", url, err)
			continue
		}
		for _, v := range doc.Vidx {
			logger.Printf("vidx: nested index reference ignored: %s (%s)", v.URL, v.Vendor)
		}
		refs = append(refs, doc.Pdsc...)
	}
	return refs
}

// pdscURI builds the descriptor URI per spec.md §6.
func pdscURI(baseURL, vendor, name, version string) string {
	return joinURL(baseURL, fmt.Sprintf("%s.%s.%s.pdsc", vendor, name, version))
}

// packURI builds the pack URI per spec.md §6, correcting the
// non-trailing-slash asymmetry bug flagged in §9 note 1: both branches
// now emit .pack.
func packURI(baseURL, vendor, name, version string) string {
	return joinURL(baseURL, fmt.Sprintf("%s.%s.%s.pack", vendor, name, version))
}

func joinURL(baseURL, suffix string) string {
	if len(baseURL) > 0 && baseURL[len(baseURL)-1] == '/' {
		return baseURL + suffix
	}
	return baseURL + "/" + suffix
}

// pdscPath builds {pack_store}/{vendor}.{name}.{version}.pdsc.
func pdscPath(cfg config.Config, vendor, name, version string) string {
	return joinPath(cfg.PackStore, fmt.Sprintf("%s.%s.%s.pdsc", vendor, name, version))
}

// packPath builds {pack_store}/{vendor}/{name}/{version}.pack.
func packPath(cfg config.Config, vendor, name, version string) string {
	return joinPath(cfg.PackStore, vendor, name, version+".pack")
}

func joinPath(elem ...string) string {
	return filepath.Join(elem...)
}

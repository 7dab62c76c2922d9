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

// Package dstore implements C3, the descriptor store: idempotent
// upsert-then-select and update-by-primary-key over the current_pdsc
// and installed_packs tables, with schema migrations run at open. It is
// grounded on the teacher's pkg/sorted/sqlite (schema-version tracking,
// "meta" table, database/sql over a file path) generalized from a
// generic sorted.KeyValue to the two fixed-shape tables spec.md §6
// describes, using modernc.org/sqlite — the teacher's own pure-Go
// SQLite driver, which needs no cgo toolchain.
package dstore

import (
	"database/sql"
	"fmt"
	"log"
	"strings"

	_ "modernc.org/sqlite"

	"packmirror.dev/packmirror/internal/pmerrors"
	"packmirror.dev/packmirror/pkg/vidx"
)

// Store owns one SQLite connection (SetMaxOpenConns(1)), per spec.md
// §5's resource policy ("SQLite connection: one per run ... used
// synchronously"). It is not pinned to a goroutine: concurrent callers,
// such as the pipeline's per-task commit callbacks, take turns on that
// single connection through database/sql.
type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// StoredPdsc is a persisted current_pdsc row, uniquely keyed by
// (Vendor, Name, VersionFull). Path is empty until the descriptor file
// has been materialized; spec.md §3's invariant is that a non-empty
// Path guarantees the file exists and is complete.
type StoredPdsc struct {
	Vendor       string
	Name         string
	VersionFull  string
	VersionMajor int
	VersionMinor int
	VersionPatch int
	URL          string
	Parsed       bool
	Path         string
}

// StoredPack is the installed_packs analogue of StoredPdsc.
type StoredPack struct {
	Vendor       string
	Name         string
	VersionFull  string
	VersionMajor int
	VersionMinor int
	VersionPatch int
	URL          string
	Path         string
}

// Open opens (creating if absent) the SQLite database at path and runs
// any outstanding migrations inside a single transaction, per spec.md
// §4.3. A migration failure aborts the open and leaves the file
// unmodified from the caller's point of view.
func Open(path string, logger *log.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("dstore: open %s: %w: %v", path, pmerrors.ErrDatabase, err)
	}
	// database/sql over modernc.org/sqlite: a single connection avoids
	// "database is locked" errors from SQLite's file-level write lock,
	// matching the one-connection-per-run policy in spec.md §5.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("dstore: begin migration transaction: %w: %v", pmerrors.ErrDatabase, err)
	}
	defer tx.Rollback()

	var version int
	row := tx.QueryRow(`SELECT value FROM meta WHERE metakey = 'schema_version'`)
	switch err := row.Scan(&version); {
	case err == nil:
		// fall through with version set
	case err == sql.ErrNoRows, isNoSuchTable(err):
		version = 0
	default:
		return fmt.Errorf("dstore: reading schema version: %w: %v", pmerrors.ErrDatabase, err)
	}

	for v := version + 1; v <= requiredSchemaVersion; v++ {
		for _, stmt := range migrations[v] {
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("dstore: migration %d: %w: %v", v, pmerrors.ErrDatabase, err)
			}
		}
	}
	if _, err := tx.Exec(
		`INSERT INTO meta (metakey, value) VALUES ('schema_version', ?)
		 ON CONFLICT(metakey) DO UPDATE SET value = excluded.value`,
		requiredSchemaVersion,
	); err != nil {
		return fmt.Errorf("dstore: recording schema version: %w: %v", pmerrors.ErrDatabase, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("dstore: committing migration: %w: %v", pmerrors.ErrDatabase, err)
	}
	s.logger.Printf("dstore: schema at version %d", requiredSchemaVersion)
	return nil
}

func isNoSuchTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

// UpsertPdsc performs INSERT OR IGNORE on the unique key
// (vendor, name, version), then selects the row, exactly as spec.md
// §4.3 specifies: repeated calls with the same ref are idempotent and
// do not touch other columns.
func (s *Store) UpsertPdsc(ref vidx.PdscRef) (StoredPdsc, error) {
	if _, err := s.db.Exec(
		`INSERT OR IGNORE INTO current_pdsc
			(vendor, name, version_full, version_major, version_minor, version_patch, url, parsed)
		 VALUES (?, ?, ?, 0, 0, 0, ?, 0)`,
		ref.Vendor, ref.Name, ref.Version, ref.URL,
	); err != nil {
		return StoredPdsc{}, fmt.Errorf("dstore: upsert pdsc %s.%s.%s: %w: %v", ref.Vendor, ref.Name, ref.Version, pmerrors.ErrDatabase, err)
	}
	return s.findPdsc(ref.Vendor, ref.Name, ref.Version)
}

func (s *Store) findPdsc(vendor, name, version string) (StoredPdsc, error) {
	var row StoredPdsc
	var path sql.NullString
	err := s.db.QueryRow(
		`SELECT vendor, name, version_full, version_major, version_minor, version_patch, url, parsed, path
		 FROM current_pdsc WHERE vendor = ? AND name = ? AND version_full = ?`,
		vendor, name, version,
	).Scan(&row.Vendor, &row.Name, &row.VersionFull, &row.VersionMajor, &row.VersionMinor, &row.VersionPatch, &row.URL, &row.Parsed, &path)
	if err != nil {
		return StoredPdsc{}, fmt.Errorf("dstore: find pdsc %s.%s.%s: %w: %v", vendor, name, version, pmerrors.ErrDatabase, err)
	}
	row.Path = path.String
	return row, nil
}

// SetPdscPath updates only the path column of row, then re-selects it.
// Callers must call this only after the file at absPath is atomically
// in place (spec.md §4.3): the row's path transitions NULL -> <path>
// exactly once per materialization cycle.
func (s *Store) SetPdscPath(row StoredPdsc, absPath string) (StoredPdsc, error) {
	if _, err := s.db.Exec(
		`UPDATE current_pdsc SET path = ? WHERE vendor = ? AND name = ? AND version_full = ?`,
		absPath, row.Vendor, row.Name, row.VersionFull,
	); err != nil {
		return StoredPdsc{}, fmt.Errorf("dstore: set pdsc path %s.%s.%s: %w: %v", row.Vendor, row.Name, row.VersionFull, pmerrors.ErrDatabase, err)
	}
	return s.findPdsc(row.Vendor, row.Name, row.VersionFull)
}

// PdscKey identifies a pack to install by its already-stored descriptor
// key, per SPEC_FULL.md's resolution of the PDSC-body-parser open
// question: install() takes (vendor, name, version) triples rather than
// parsed Package values, since the PDSC body parser is out of scope.
type PdscKey struct {
	Vendor  string
	Name    string
	Version string
	URL     string
}

// UpsertPack is the installed_packs analogue of UpsertPdsc.
func (s *Store) UpsertPack(key PdscKey) (StoredPack, error) {
	if _, err := s.db.Exec(
		`INSERT OR IGNORE INTO installed_packs
			(vendor, name, version_full, version_major, version_minor, version_patch, url)
		 VALUES (?, ?, ?, 0, 0, 0, ?)`,
		key.Vendor, key.Name, key.Version, key.URL,
	); err != nil {
		return StoredPack{}, fmt.Errorf("dstore: upsert pack %s.%s.%s: %w: %v", key.Vendor, key.Name, key.Version, pmerrors.ErrDatabase, err)
	}
	return s.findPack(key.Vendor, key.Name, key.Version)
}

func (s *Store) findPack(vendor, name, version string) (StoredPack, error) {
	var row StoredPack
	var path sql.NullString
	err := s.db.QueryRow(
		`SELECT vendor, name, version_full, version_major, version_minor, version_patch, url, path
		 FROM installed_packs WHERE vendor = ? AND name = ? AND version_full = ?`,
		vendor, name, version,
	).Scan(&row.Vendor, &row.Name, &row.VersionFull, &row.VersionMajor, &row.VersionMinor, &row.VersionPatch, &row.URL, &path)
	if err != nil {
		return StoredPack{}, fmt.Errorf("dstore: find pack %s.%s.%s: %w: %v", vendor, name, version, pmerrors.ErrDatabase, err)
	}
	row.Path = path.String
	return row, nil
}

// SetPackPath is the installed_packs analogue of SetPdscPath.
func (s *Store) SetPackPath(row StoredPack, absPath string) (StoredPack, error) {
	if _, err := s.db.Exec(
		`UPDATE installed_packs SET path = ? WHERE vendor = ? AND name = ? AND version_full = ?`,
		absPath, row.Vendor, row.Name, row.VersionFull,
	); err != nil {
		return StoredPack{}, fmt.Errorf("dstore: set pack path %s.%s.%s: %w: %v", row.Vendor, row.Name, row.VersionFull, pmerrors.ErrDatabase, err)
	}
	return s.findPack(row.Vendor, row.Name, row.VersionFull)
}

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

// requiredSchemaVersion is bumped whenever a migration is appended to
// migrations. It mirrors the teacher's pkg/sorted/sqlite
// requiredSchemaVersion/meta-table convention, standing in for the
// original's diesel embed_migrations! embedded migration set.
const requiredSchemaVersion = 1

// migrations holds one batch of DDL statements per schema version, in
// order. Each is run inside the single open-time transaction described
// by spec.md §4.3 ("Schema migrations run inside a transaction at
// connect; failure aborts the open"). The authoritative table layout —
// separate current_pdsc and installed_packs tables, keyed by
// (vendor, name, version_full), with a nullable path column — is the
// one spec.md §9 calls out as superseding the earlier pdsc_text-column
// drafts in the original source.
var migrations = [][]string{
	1: {
		`CREATE TABLE current_pdsc (
			vendor VARCHAR(255) NOT NULL,
			name VARCHAR(255) NOT NULL,
			version_full VARCHAR(255) NOT NULL,
			version_major INTEGER NOT NULL DEFAULT 0,
			version_minor INTEGER NOT NULL DEFAULT 0,
			version_patch INTEGER NOT NULL DEFAULT 0,
			url VARCHAR(1024) NOT NULL,
			parsed BOOLEAN NOT NULL DEFAULT 0,
			path VARCHAR(4096),
			PRIMARY KEY (vendor, name, version_full)
		)`,
		`CREATE TABLE installed_packs (
			vendor VARCHAR(255) NOT NULL,
			name VARCHAR(255) NOT NULL,
			version_full VARCHAR(255) NOT NULL,
			version_major INTEGER NOT NULL DEFAULT 0,
			version_minor INTEGER NOT NULL DEFAULT 0,
			version_patch INTEGER NOT NULL DEFAULT 0,
			url VARCHAR(1024) NOT NULL,
			path VARCHAR(4096),
			PRIMARY KEY (vendor, name, version_full)
		)`,
		`CREATE TABLE meta (
			metakey VARCHAR(255) NOT NULL PRIMARY KEY,
			value VARCHAR(255) NOT NULL
		)`,
	},
}

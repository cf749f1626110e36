/*
Copyright © 2026 the GlacierFlow authors.
This file is part of GlacierFlow.

GlacierFlow is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

GlacierFlow is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with GlacierFlow.  If not, see <http://www.gnu.org/licenses/>.*/

// Package zarr provides read-only access to version 2 chunked,
// compressed array stores with consolidated metadata, such as the
// cloud-hosted datacubes holding glacier surface velocity observations.
package zarr

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Version is the zarr format version this package reads.
const Version = 2

// metadataKey is the object key holding consolidated metadata for a group.
const metadataKey = ".zmetadata"

// Compressor describes the compression codec applied to each chunk.
type Compressor struct {
	ID      string `json:"id"`
	CName   string `json:"cname"`
	CLevel  int    `json:"clevel"`
	Shuffle int    `json:"shuffle"`
	Level   int    `json:"level"`
}

// ArrayMeta is the metadata for a single array (the contents of a
// .zarray object).
type ArrayMeta struct {
	ZarrFormat         int               `json:"zarr_format"`
	Shape              []int             `json:"shape"`
	Chunks             []int             `json:"chunks"`
	DType              string            `json:"dtype"`
	Compressor         *Compressor       `json:"compressor"`
	FillValue          interface{}       `json:"fill_value"`
	Order              string            `json:"order"`
	Filters            []json.RawMessage `json:"filters"`
	DimensionSeparator string            `json:"dimension_separator"`
}

// check verifies that the metadata describes an array this package
// can read.
func (m *ArrayMeta) check() error {
	if m.ZarrFormat != Version {
		return fmt.Errorf("zarr: unsupported format version %d", m.ZarrFormat)
	}
	if len(m.Shape) != len(m.Chunks) {
		return fmt.Errorf("zarr: shape %v and chunks %v have different lengths", m.Shape, m.Chunks)
	}
	if m.Order != "" && m.Order != "C" {
		return fmt.Errorf("zarr: unsupported element order %q", m.Order)
	}
	if len(m.Filters) != 0 {
		return fmt.Errorf("zarr: filters are not supported")
	}
	if _, err := parseDType(m.DType); err != nil {
		return err
	}
	return nil
}

// separator returns the chunk-key dimension separator, defaulting to ".".
func (m *ArrayMeta) separator() string {
	if m.DimensionSeparator == "" {
		return "."
	}
	return m.DimensionSeparator
}

// chunkKey returns the object key for the chunk with the given
// per-dimension indices, relative to the array prefix.
func (m *ArrayMeta) chunkKey(coords []int) string {
	if len(coords) == 0 {
		return "0"
	}
	s := make([]string, len(coords))
	for i, c := range coords {
		s[i] = strconv.Itoa(c)
	}
	return strings.Join(s, m.separator())
}

// chunkCounts returns the number of chunks along each dimension.
func (m *ArrayMeta) chunkCounts() []int {
	n := make([]int, len(m.Shape))
	for i, s := range m.Shape {
		n[i] = (s + m.Chunks[i] - 1) / m.Chunks[i]
	}
	return n
}

// chunkSize returns the number of elements in one (full-size) chunk.
func (m *ArrayMeta) chunkSize() int {
	n := 1
	for _, c := range m.Chunks {
		n *= c
	}
	return n
}

// fillFloat returns the fill value as a float64. String fill values
// "NaN", "Infinity" and "-Infinity" follow the zarr v2 JSON encoding.
func (m *ArrayMeta) fillFloat() float64 {
	switch v := m.FillValue.(type) {
	case nil:
		return math.NaN()
	case float64:
		return v
	case string:
		switch v {
		case "NaN":
			return math.NaN()
		case "Infinity":
			return math.Inf(1)
		case "-Infinity":
			return math.Inf(-1)
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

// DType describes a parsed array element type.
type DType struct {
	// Kind is the numpy-style type kind: f, i, u, M (datetime),
	// m (timedelta) or S (fixed-length bytes).
	Kind byte
	// Size is the element size in bytes.
	Size int
}

// parseDType parses a numpy-style dtype string such as "<f4", "<i2",
// "<M8[ns]" or "|S2". Only little-endian and byte-order-free types are
// supported.
func parseDType(s string) (DType, error) {
	if len(s) < 3 {
		return DType{}, fmt.Errorf("zarr: invalid dtype %q", s)
	}
	switch s[0] {
	case '<', '|':
	default:
		return DType{}, fmt.Errorf("zarr: unsupported byte order in dtype %q", s)
	}
	kind := s[1]
	sizeStr := s[2:]
	if i := strings.IndexByte(sizeStr, '['); i >= 0 {
		// Time units, e.g. "<M8[ns]". Nanoseconds are the only
		// unit stored in the datacubes we read.
		if unit := s[2+i:]; unit != "[ns]" {
			return DType{}, fmt.Errorf("zarr: unsupported time unit in dtype %q", s)
		}
		sizeStr = sizeStr[:i]
	}
	size, err := strconv.Atoi(sizeStr)
	if err != nil {
		return DType{}, fmt.Errorf("zarr: invalid dtype %q", s)
	}
	switch kind {
	case 'f':
		if size != 4 && size != 8 {
			return DType{}, fmt.Errorf("zarr: unsupported float size in dtype %q", s)
		}
	case 'i', 'u':
		if size != 1 && size != 2 && size != 4 && size != 8 {
			return DType{}, fmt.Errorf("zarr: unsupported integer size in dtype %q", s)
		}
	case 'M', 'm':
		if size != 8 {
			return DType{}, fmt.Errorf("zarr: unsupported time size in dtype %q", s)
		}
	case 'S':
		if size < 1 {
			return DType{}, fmt.Errorf("zarr: invalid string size in dtype %q", s)
		}
	default:
		return DType{}, fmt.Errorf("zarr: unsupported dtype %q", s)
	}
	return DType{Kind: kind, Size: size}, nil
}

// ConsolidatedMetadata is the contents of a .zmetadata object: all of
// the group's metadata objects gathered into one document so that a
// single fetch describes the entire store.
type ConsolidatedMetadata struct {
	ZarrConsolidatedFormat int                        `json:"zarr_consolidated_format"`
	Metadata               map[string]json.RawMessage `json:"metadata"`
}

// arrayMeta returns the parsed .zarray metadata for the named array.
func (cm *ConsolidatedMetadata) arrayMeta(name string) (*ArrayMeta, error) {
	raw, ok := cm.Metadata[name+"/.zarray"]
	if !ok {
		return nil, fmt.Errorf("zarr: no array %q in consolidated metadata", name)
	}
	m := new(ArrayMeta)
	if err := json.Unmarshal(raw, m); err != nil {
		return nil, fmt.Errorf("zarr: parsing metadata for array %q: %v", name, err)
	}
	if err := m.check(); err != nil {
		return nil, fmt.Errorf("zarr: array %q: %v", name, err)
	}
	return m, nil
}

// Attrs unmarshals the .zattrs document for the named array (or for
// the group itself if name is empty) into dst. Missing attributes are
// not an error; dst is left unmodified.
func (cm *ConsolidatedMetadata) Attrs(name string, dst interface{}) error {
	key := ".zattrs"
	if name != "" {
		key = name + "/.zattrs"
	}
	raw, ok := cm.Metadata[key]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("zarr: parsing attributes %q: %v", key, err)
	}
	return nil
}

// ArrayNames returns the names of all arrays in the group, in
// unspecified order.
func (cm *ConsolidatedMetadata) ArrayNames() []string {
	var names []string
	for k := range cm.Metadata {
		if strings.HasSuffix(k, "/.zarray") {
			names = append(names, strings.TrimSuffix(k, "/.zarray"))
		}
	}
	return names
}

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

package datacube

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/binary"
	"fmt"
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ctessum/geom"
)

// writeTestCube builds a small velocity datacube on disk with
// longitude/latitude axes (EPSG:4326), so no projection math enters
// the expected values:
//
//	x:        -50, -49.5, -49
//	y:        70.5, 70, 69.5 (descending, as in the real cubes)
//	mid_date: 4 dates 30 days apart
//	vx:       100*t + 10*iy + ix
//	vy:       0 everywhere
func writeTestCube(t *testing.T, dir string) {
	t.Helper()

	const meta = `{
		"zarr_consolidated_format": 1,
		"metadata": {
			".zattrs": {"title": "test velocity cube"},
			"x/.zarray": {"zarr_format": 2, "shape": [3], "chunks": [3],
				"dtype": "<f8", "fill_value": "NaN", "order": "C",
				"compressor": {"id": "zlib", "level": 1}},
			"y/.zarray": {"zarr_format": 2, "shape": [3], "chunks": [3],
				"dtype": "<f8", "fill_value": "NaN", "order": "C",
				"compressor": {"id": "zlib", "level": 1}},
			"mid_date/.zarray": {"zarr_format": 2, "shape": [4], "chunks": [4],
				"dtype": "<M8[ns]", "fill_value": null, "order": "C",
				"compressor": {"id": "zlib", "level": 1}},
			"date_dt/.zarray": {"zarr_format": 2, "shape": [4], "chunks": [4],
				"dtype": "<m8[ns]", "fill_value": null, "order": "C",
				"compressor": {"id": "zlib", "level": 1}},
			"satellite_img1/.zarray": {"zarr_format": 2, "shape": [4], "chunks": [4],
				"dtype": "|S2", "fill_value": "", "order": "C",
				"compressor": {"id": "zlib", "level": 1}},
			"vx/.zarray": {"zarr_format": 2, "shape": [4, 3, 3], "chunks": [4, 3, 3],
				"dtype": "<f4", "fill_value": -32767.0, "order": "C",
				"compressor": {"id": "zlib", "level": 1}},
			"vy/.zarray": {"zarr_format": 2, "shape": [4, 3, 3], "chunks": [4, 3, 3],
				"dtype": "<f4", "fill_value": -32767.0, "order": "C",
				"compressor": {"id": "zlib", "level": 1}}
		}
	}`
	if err := ioutil.WriteFile(filepath.Join(dir, ".zmetadata"), []byte(meta), 0644); err != nil {
		t.Fatal(err)
	}

	writeChunk := func(name string, b []byte) {
		var buf bytes.Buffer
		w := zlib.NewWriter(&buf)
		if _, err := w.Write(b); err != nil {
			t.Fatal(err)
		}
		if err := w.Close(); err != nil {
			t.Fatal(err)
		}
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := ioutil.WriteFile(path, buf.Bytes(), 0644); err != nil {
			t.Fatal(err)
		}
	}
	float64Chunk := func(vals ...float64) []byte {
		b := make([]byte, len(vals)*8)
		for i, v := range vals {
			binary.LittleEndian.PutUint64(b[i*8:], math.Float64bits(v))
		}
		return b
	}
	int64Chunk := func(vals ...int64) []byte {
		b := make([]byte, len(vals)*8)
		for i, v := range vals {
			binary.LittleEndian.PutUint64(b[i*8:], uint64(v))
		}
		return b
	}

	writeChunk("x/0", float64Chunk(-50, -49.5, -49))
	writeChunk("y/0", float64Chunk(70.5, 70, 69.5))
	const day = int64(86400e9)
	writeChunk("mid_date/0", int64Chunk(0, 30*day, 60*day, 90*day))
	writeChunk("date_dt/0", int64Chunk(30*day, 45*day, 60*day, 90*day))
	writeChunk("satellite_img1/0", []byte("1\x002\x008\x009\x00"))

	velChunk := func(f func(tt, yy, xx int) float32) []byte {
		b := make([]byte, 4*3*3*4)
		i := 0
		for tt := 0; tt < 4; tt++ {
			for yy := 0; yy < 3; yy++ {
				for xx := 0; xx < 3; xx++ {
					binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f(tt, yy, xx)))
					i++
				}
			}
		}
		return b
	}
	writeChunk("vx/0.0.0", velChunk(func(tt, yy, xx int) float32 {
		return float32(100*tt + 10*yy + xx)
	}))
	writeChunk("vy/0.0.0", velChunk(func(tt, yy, xx int) float32 { return 0 }))
}

// newTestTools writes a cube to a temporary directory and returns a
// Tools whose catalog points at it.
func newTestTools(t *testing.T) *Tools {
	t.Helper()
	dir, err := ioutil.TempDir("", "cubetest")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	writeTestCube(t, dir)

	catalogJSON := fmt.Sprintf(`{
		"type": "FeatureCollection",
		"features": [{
			"type": "Feature",
			"properties": {"zarr_url": %q, "epsg": "4326", "pair_count": 4},
			"geometry": {"type": "Polygon", "coordinates": [[[-51, 69], [-48, 69], [-48, 71], [-51, 71], [-51, 69]]]}
		}]
	}`, dir)
	catalog, err := ParseCatalog([]byte(catalogJSON))
	if err != nil {
		t.Fatal(err)
	}
	return NewTools(catalog)
}

func TestGetTimeseriesAtPoint(t *testing.T) {
	tools := newTestTools(t)
	ctx := context.Background()

	cube, series, err := tools.GetTimeseriesAtPoint(ctx, geom.Point{X: -49.5, Y: 70}, "4326", "vx", "vy")
	if err != nil {
		t.Fatal(err)
	}
	if cube == nil {
		t.Fatal("nil cube")
	}
	if series.Len() != 4 {
		t.Fatalf("observations: got %d, want 4", series.Len())
	}
	// (-49.5, 70) is the center cell: iy = 1, ix = 1.
	wantVx := []float64{11, 111, 211, 311}
	for i, want := range wantVx {
		if series.Values["vx"][i] != want {
			t.Errorf("vx[%d]: got %g, want %g", i, series.Values["vx"][i], want)
		}
		if series.Values["vy"][i] != 0 {
			t.Errorf("vy[%d]: got %g, want 0", i, series.Values["vy"][i])
		}
	}
	wantDt := []float64{30, 45, 60, 90}
	for i, want := range wantDt {
		if series.SeparationDays[i] != want {
			t.Errorf("separation[%d]: got %g, want %g", i, series.SeparationDays[i], want)
		}
	}
	if got := series.MidDate[1].Sub(series.MidDate[0]).Hours(); got != 30*24 {
		t.Errorf("mid date spacing: got %g hours", got)
	}
	wantSat := []string{"1", "2", "8", "9"}
	for i, want := range wantSat {
		if series.Satellites[i] != want {
			t.Errorf("satellite[%d]: got %q, want %q", i, series.Satellites[i], want)
		}
	}
}

func TestGetTimeseriesAtPoint_derived(t *testing.T) {
	tools := newTestTools(t)
	ctx := context.Background()

	_, series, err := tools.GetTimeseriesAtPoint(ctx, geom.Point{X: -50, Y: 70.5}, "4326",
		"sqrt(vx**2 + vy**2)")
	if err != nil {
		t.Fatal(err)
	}
	// vy is zero, so speed reduces to vx at (iy=0, ix=0).
	want := []float64{0, 100, 200, 300}
	got := series.Values["sqrt(vx**2 + vy**2)"]
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("speed[%d]: got %g, want %g", i, got[i], want[i])
		}
	}

	if _, _, err := tools.GetTimeseriesAtPoint(ctx, geom.Point{X: -50, Y: 70.5}, "4326",
		"sqrt(nosuchvar**2)"); err == nil {
		t.Error("expected error for expression over a missing variable")
	}
}

func TestGetTimeseriesAtPoint_noCoverage(t *testing.T) {
	tools := newTestTools(t)
	_, _, err := tools.GetTimeseriesAtPoint(context.Background(), geom.Point{X: 10, Y: 50}, "4326", "vx")
	if err != ErrNoCoverage {
		t.Errorf("got %v, want ErrNoCoverage", err)
	}
}

func TestOpenCubes(t *testing.T) {
	tools := newTestTools(t)
	ctx := context.Background()

	if n := len(tools.OpenCubes()); n != 0 {
		t.Fatalf("open cubes before any query: %d", n)
	}
	cube1, _, err := tools.GetTimeseriesAtPoint(ctx, geom.Point{X: -49.5, Y: 70}, "4326", "vx")
	if err != nil {
		t.Fatal(err)
	}
	cube2, _, err := tools.GetTimeseriesAtPoint(ctx, geom.Point{X: -49, Y: 70}, "4326", "vx")
	if err != nil {
		t.Fatal(err)
	}
	if cube1 != cube2 {
		t.Error("queries in the same footprint should share one cube handle")
	}
	open := tools.OpenCubes()
	if len(open) != 1 {
		t.Fatalf("open cubes: got %d, want 1", len(open))
	}
	for uri, c := range open {
		if uri != c.URI {
			t.Errorf("map key %q does not match cube URI %q", uri, c.URI)
		}
	}
}

func TestCubeSummary(t *testing.T) {
	tools := newTestTools(t)
	cube, _, err := tools.GetTimeseriesAtPoint(context.Background(), geom.Point{X: -49.5, Y: 70}, "4326", "vx")
	if err != nil {
		t.Fatal(err)
	}
	s := cube.Summary()
	for _, want := range []string{"test velocity cube", "EPSG:4326", "mid_date: 4", "vx", "vy"} {
		if !strings.Contains(s, want) {
			t.Errorf("summary missing %q:\n%s", want, s)
		}
	}
	if got := cube.Variables(); len(got) != 2 || got[0] != "vx" || got[1] != "vy" {
		t.Errorf("variables: %v", got)
	}
}

func TestGetTimeseriesAtPoint_badSatelliteAxis(t *testing.T) {
	dir, err := ioutil.TempDir("", "cubetest")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	writeTestCube(t, dir)
	// Overwrite the satellite chunk with bytes that do not
	// decompress. The sensor axis is optional, so the cube must still
	// open and serve velocities, just without satellite ids.
	if err := ioutil.WriteFile(filepath.Join(dir, "satellite_img1", "0"), []byte("not a chunk"), 0644); err != nil {
		t.Fatal(err)
	}

	catalogJSON := fmt.Sprintf(`{
		"type": "FeatureCollection",
		"features": [{
			"type": "Feature",
			"properties": {"zarr_url": %q, "epsg": "4326", "pair_count": 4},
			"geometry": {"type": "Polygon", "coordinates": [[[-51, 69], [-48, 69], [-48, 71], [-51, 71], [-51, 69]]]}
		}]
	}`, dir)
	catalog, err := ParseCatalog([]byte(catalogJSON))
	if err != nil {
		t.Fatal(err)
	}
	tools := NewTools(catalog)

	_, series, err := tools.GetTimeseriesAtPoint(context.Background(), geom.Point{X: -49.5, Y: 70}, "4326", "vx")
	if err != nil {
		t.Fatalf("corrupt satellite axis should not fail the query: %v", err)
	}
	if series.Len() != 4 {
		t.Errorf("observations: got %d, want 4", series.Len())
	}
	if len(series.Satellites) != 0 {
		t.Errorf("satellites: got %v, want none", series.Satellites)
	}
}

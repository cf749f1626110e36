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

package glacierflow

import (
	"bytes"
	"io/ioutil"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/geom"

	"github.com/spatialmodel/glacierflow/datacube"
)

func exportTestSeries() *datacube.Series {
	return &datacube.Series{
		URI:            "s3://its-live-data/test.zarr",
		EPSG:           "32622",
		Point:          geom.Point{X: 557000, Y: 7767000},
		LonLat:         geom.Point{X: -49.5, Y: 70},
		MidDate:        []time.Time{day(0), day(30), day(60)},
		SeparationDays: []float64{30, 45, 60},
		Satellites:     []string{"1", "2", "8"},
		Values: map[string][]float64{
			"v": {100, 110, 120},
		},
	}
}

func TestWriteSeriesCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSeriesCSV(&buf, exportTestSeries()); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("lines: got %d, want 4\n%s", len(lines), buf.String())
	}
	if lines[0] != "mid_date,separation_days,satellite,v" {
		t.Errorf("header: %q", lines[0])
	}
	if lines[1] != "2020-01-01,30,1,100" {
		t.Errorf("first row: %q", lines[1])
	}
}

func TestWriteSeriesXLSX(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSeriesXLSX(&buf, exportTestSeries()); err != nil {
		t.Fatal(err)
	}
	if buf.Len() == 0 {
		t.Error("empty spreadsheet")
	}
}

func TestWriteSeriesNetCDF(t *testing.T) {
	f, err := ioutil.TempFile("", "seriestest*.nc")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	s := exportTestSeries()
	if err := WriteSeriesNetCDF(f, s); err != nil {
		t.Fatal(err)
	}

	// Read the file back and check one variable.
	nc, err := cdf.Open(f)
	if err != nil {
		t.Fatal(err)
	}
	r := nc.Reader("v", nil, nil)
	vals := r.Zero(-1).([]float32)
	if _, err := r.Read(vals); err != nil {
		t.Fatal(err)
	}
	want := []float32{100, 110, 120}
	for i := range want {
		if vals[i] != want[i] {
			t.Errorf("v[%d]: got %g, want %g", i, vals[i], want[i])
		}
	}
}

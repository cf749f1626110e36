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
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/ctessum/cdf"
	"github.com/tealeg/xlsx"

	"github.com/spatialmodel/glacierflow/datacube"
)

// sortedVariables returns the variable names in s in a stable order.
func sortedVariables(s *datacube.Series) []string {
	var names []string
	for name := range s.Values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WriteSeriesNetCDF writes a fetched time series to rw in NetCDF
// format. The image-pair axis is the single dimension; mid dates are
// stored as seconds since the Unix epoch.
func WriteSeriesNetCDF(rw cdf.ReaderWriterAt, s *datacube.Series) error {
	h := cdf.NewHeader([]string{"mid_date"}, []int{s.Len()})
	h.AddAttribute("", "uri", s.URI)
	h.AddAttribute("", "epsg", s.EPSG)
	h.AddAttribute("", "point_x", []float64{s.Point.X})
	h.AddAttribute("", "point_y", []float64{s.Point.Y})
	h.AddAttribute("", "longitude", []float64{s.LonLat.X})
	h.AddAttribute("", "latitude", []float64{s.LonLat.Y})

	h.AddVariable("mid_date", []string{"mid_date"}, []float64{0})
	h.AddAttribute("mid_date", "units", "seconds since 1970-01-01 00:00:00")
	h.AddVariable("separation_days", []string{"mid_date"}, []float64{0})
	names := sortedVariables(s)
	for _, name := range names {
		h.AddVariable(name, []string{"mid_date"}, []float32{0})
		h.AddAttribute(name, "units", "m/yr")
	}
	h.Define()

	f, err := cdf.Create(rw, h)
	if err != nil {
		return fmt.Errorf("glacierflow: creating NetCDF file: %v", err)
	}
	write := func(name string, data interface{}) error {
		end := f.Header.Lengths(name)
		start := make([]int, len(end))
		if _, err := f.Writer(name, start, end).Write(data); err != nil {
			return fmt.Errorf("glacierflow: writing %s: %v", name, err)
		}
		return nil
	}

	dates := make([]float64, s.Len())
	for i, t := range s.MidDate {
		dates[i] = float64(t.Unix())
	}
	if err := write("mid_date", dates); err != nil {
		return err
	}
	if err := write("separation_days", s.SeparationDays); err != nil {
		return err
	}
	for _, name := range names {
		vals := s.Values[name]
		v32 := make([]float32, len(vals))
		for i, v := range vals {
			v32[i] = float32(v)
		}
		if err := write(name, v32); err != nil {
			return err
		}
	}
	return nil
}

// WriteSeriesXLSX writes a fetched time series to w as a spreadsheet
// with one row per image pair.
func WriteSeriesXLSX(w io.Writer, s *datacube.Series) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("timeseries")
	if err != nil {
		return fmt.Errorf("glacierflow: creating spreadsheet: %v", err)
	}
	names := sortedVariables(s)

	header := sheet.AddRow()
	header.AddCell().Value = "mid_date"
	header.AddCell().Value = "separation_days"
	header.AddCell().Value = "satellite"
	for _, name := range names {
		header.AddCell().Value = name
	}
	for i := 0; i < s.Len(); i++ {
		row := sheet.AddRow()
		row.AddCell().Value = s.MidDate[i].Format("2006-01-02")
		row.AddCell().SetFloat(s.SeparationDays[i])
		if i < len(s.Satellites) {
			row.AddCell().Value = s.Satellites[i]
		} else {
			row.AddCell()
		}
		for _, name := range names {
			row.AddCell().SetFloat(s.Values[name][i])
		}
	}
	return file.Write(w)
}

// WriteSeriesCSV writes a fetched time series to w as CSV with one
// row per image pair.
func WriteSeriesCSV(w io.Writer, s *datacube.Series) error {
	cw := csv.NewWriter(w)
	names := sortedVariables(s)
	header := append([]string{"mid_date", "separation_days", "satellite"}, names...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for i := 0; i < s.Len(); i++ {
		row := make([]string, 0, len(header))
		row = append(row, s.MidDate[i].Format("2006-01-02"))
		row = append(row, strconv.FormatFloat(s.SeparationDays[i], 'g', -1, 64))
		if i < len(s.Satellites) {
			row = append(row, s.Satellites[i])
		} else {
			row = append(row, "")
		}
		for _, name := range names {
			row = append(row, strconv.FormatFloat(s.Values[name][i], 'g', -1, 64))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

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
	"image/color"
	"math"
	"sort"
	"time"

	"github.com/GaryBoone/GoStats/stats"
	"gonum.org/v1/plot/plotter"

	"github.com/spatialmodel/glacierflow/datacube"
)

// Marker colors and legend labels for the satellites that acquire the
// image pairs.
var (
	satelliteColors = map[string]color.Color{
		"1": color.RGBA{R: 0xff, A: 0xff},                   // red
		"2": color.RGBA{B: 0xff, A: 0xff},                   // blue
		"4": color.RGBA{R: 0xbf, G: 0xbf, A: 0xff},          // yellow
		"5": color.RGBA{R: 0xbf, G: 0xbf, A: 0xff},          // yellow
		"7": color.RGBA{G: 0xbf, B: 0xbf, A: 0xff},          // cyan
		"8": color.RGBA{G: 0x80, A: 0xff},                   // green
		"9": color.RGBA{R: 0xbf, B: 0xbf, A: 0xff},          // magenta
	}
	satelliteLabels = map[string]string{
		"1": "Sentinel 1",
		"2": "Sentinel 2",
		"4": "Landsat 4",
		"5": "Landsat 5",
		"7": "Landsat 7",
		"8": "Landsat 8",
		"9": "Landsat 9",
	}
)

// An observation is one image pair surviving the separation filter.
type observation struct {
	date      time.Time
	value     float64
	satellite string
}

// filterObservations keeps the pairs whose separation lies within
// [minDays, maxDays] and whose value is not NaN.
func filterObservations(s *datacube.Series, variable string, minDays, maxDays int) []observation {
	vals := s.Values[variable]
	var out []observation
	for i, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		dt := s.SeparationDays[i]
		if dt < float64(minDays) || dt > float64(maxDays) {
			continue
		}
		o := observation{date: s.MidDate[i], value: v}
		if i < len(s.Satellites) {
			o.satellite = s.Satellites[i]
		}
		out = append(out, o)
	}
	return out
}

// runningMean computes centered window means through the
// observations: window centers are spaced freq apart from the
// earliest to the latest date, each window spans 2×freq, and windows
// with fewer than minPts observations are skipped. The date assigned
// to each mean is the mean date of the contributing observations.
func runningMean(obs []observation, minPts int, freq time.Duration) plotter.XYs {
	if len(obs) == 0 {
		return nil
	}
	tmin, tmax := obs[0].date, obs[0].date
	for _, o := range obs {
		if o.date.Before(tmin) {
			tmin = o.date
		}
		if o.date.After(tmax) {
			tmax = o.date
		}
	}
	half := freq / 2
	var xys plotter.XYs
	for t0 := tmin; t0.Before(tmax); t0 = t0.Add(freq) {
		lo, hi := t0.Add(-half), t0.Add(freq+half)
		var sum, tsum float64
		n := 0
		for _, o := range obs {
			if o.date.Before(lo) || !o.date.Before(hi) {
				continue
			}
			sum += o.value
			tsum += float64(o.date.Unix())
			n++
		}
		if n < minPts {
			continue
		}
		xys = append(xys, struct{ X, Y float64 }{tsum / float64(n), sum / float64(n)})
	}
	return xys
}

// satellites returns the distinct satellite ids among the
// observations, sorted.
func satellites(obs []observation) []string {
	seen := make(map[string]bool)
	var out []string
	for _, o := range obs {
		if o.satellite != "" && !seen[o.satellite] {
			seen[o.satellite] = true
			out = append(out, o.satellite)
		}
	}
	sort.Strings(out)
	return out
}

// toXYs converts observations to plot points, with time on the x axis
// in unix seconds.
func toXYs(obs []observation) plotter.XYs {
	xys := make(plotter.XYs, len(obs))
	for i, o := range obs {
		xys[i] = struct{ X, Y float64 }{float64(o.date.Unix()), o.value}
	}
	return xys
}

// SeriesStats summarizes one plotted time series.
type SeriesStats struct {
	Count  int
	Mean   float64
	Min    float64
	Max    float64
	StdDev float64
}

// summarize computes summary statistics over the observations.
func summarize(obs []observation) SeriesStats {
	var d stats.Stats
	for _, o := range obs {
		d.Update(o.value)
	}
	if d.Count() == 0 {
		return SeriesStats{}
	}
	return SeriesStats{
		Count:  d.Count(),
		Mean:   d.Mean(),
		Min:    d.Min(),
		Max:    d.Max(),
		StdDev: d.SampleStandardDeviation(),
	}
}

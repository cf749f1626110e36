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
	"context"
	"fmt"
	"image/color"
	"sync"
	"time"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/carto"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/plot/vg"

	"github.com/spatialmodel/glacierflow/datacube"
)

const (
	plotTitle  = "ITS_LIVE Ice Flow Speed m/yr"
	plotXLabel = "Date"
	plotYLabel = "Speed (m/yr)"

	runningMeanMinPts = 5
	runningMeanFreq   = 30 * 24 * time.Hour
)

// A Widget plots glacier velocity time series for map-picked points.
// All methods are safe for concurrent use.
type Widget struct {
	// Log receives progress and diagnostic messages.
	Log logrus.FieldLogger

	tools *datacube.Tools
	fig   *Fig

	mx             sync.Mutex
	config         Config
	points         []geom.Point // picked points, EPSG:4326
	colorIndex     int          // palette position for plotted series
	iconColorIndex int          // palette position for map markers

	coverageOnce sync.Once
	coverage     *carto.MapData
	coverageErr  error
}

// NewWidget returns a widget with the default configuration and an
// empty point selection.
func NewWidget(tools *datacube.Tools) *Widget {
	return &Widget{
		Log:    logrus.StandardLogger(),
		tools:  tools,
		fig:    NewFig(),
		config: DefaultConfig(),
	}
}

// Tools returns the widget's datacube query layer; its OpenCubes
// method gives the mapping from storage URI to open cube handle.
func (w *Widget) Tools() *datacube.Tools { return w.tools }

// Fig returns the widget's figure.
func (w *Widget) Fig() *Fig { return w.fig }

// Config returns the current configuration.
func (w *Widget) Config() Config {
	w.mx.Lock()
	defer w.mx.Unlock()
	return w.config
}

// SetConfig validates and applies a configuration.
func (w *Widget) SetConfig(c Config) error {
	if err := c.check(); err != nil {
		return err
	}
	w.mx.Lock()
	defer w.mx.Unlock()
	w.config = c
	if l, ok := w.Log.(*logrus.Logger); ok {
		if c.Verbose {
			l.SetLevel(logrus.DebugLevel)
		} else {
			l.SetLevel(logrus.InfoLevel)
		}
	}
	return nil
}

// SetConfigMap applies a raw configuration mapping. Unrecognized keys
// are an error; missing keys keep their current values.
func (w *Widget) SetConfigMap(m map[string]interface{}) error {
	c := w.Config()
	for key, value := range m {
		if err := c.apply(key, value); err != nil {
			return err
		}
	}
	return w.SetConfig(c)
}

// AddPoint records a map-picked point (EPSG:4326) and returns the
// marker color assigned to it by pick order.
func (w *Widget) AddPoint(p geom.Point) color.Color {
	w.mx.Lock()
	defer w.mx.Unlock()
	w.points = append(w.points, p)
	c := tab10(w.iconColorIndex)
	w.iconColorIndex++
	w.Log.Debugf("glacierflow: point added (%g, %g)", p.X, p.Y)
	return c
}

// Points returns the picked points in pick order.
func (w *Widget) Points() []geom.Point {
	w.mx.Lock()
	defer w.mx.Unlock()
	out := make([]geom.Point, len(w.points))
	copy(out, w.points)
	return out
}

// ClearPoints discards all picked points, resets the color indices
// and clears the axes.
func (w *Widget) ClearPoints() {
	w.mx.Lock()
	w.points = nil
	w.colorIndex = 0
	w.iconColorIndex = 0
	w.mx.Unlock()
	w.fig.Ax().Clear()
	w.Log.Info("glacierflow: all points cleared")
}

// PlotPointOnFig fetches the configured variable's time series at the
// given point, interpreted in the projection named by epsgCode, and
// adds it to the figure. A point outside all datacube coverage draws
// nothing but still advances the color palette, keeping plotted
// colors aligned with marker colors. The returned statistics cover
// the observations that were plotted.
func (w *Widget) PlotPointOnFig(ctx context.Context, p geom.Point, epsgCode string) (SeriesStats, error) {
	w.mx.Lock()
	cfg := w.config
	colorIndex := w.colorIndex
	w.colorIndex++
	w.mx.Unlock()

	w.Log.Debugf("glacierflow: fetching timeseries for point x=%10.2f y=%10.2f", p.X, p.Y)
	start := time.Now()

	variable := cfg.Plot
	if variable == "" {
		variable = "v"
	}
	_, series, err := w.tools.GetTimeseriesAtPoint(ctx, p, epsgCode, variable)
	if err == datacube.ErrNoCoverage {
		w.Log.Infof("glacierflow: no datacube coverage at (%g, %g)", p.X, p.Y)
		return SeriesStats{}, nil
	}
	if err != nil {
		return SeriesStats{}, fmt.Errorf("glacierflow: fetching timeseries at (%g, %g): %v", p.X, p.Y, err)
	}

	obs := filterObservations(series, variable, cfg.MinSeparationDays, cfg.MaxSeparationDays)
	ax := w.fig.Ax()
	ax.setLabels(plotTitle, plotXLabel, plotYLabel)
	if cfg.ColorBy == ColorBySatellite {
		w.plotBySatellite(ax, obs, colorIndex, cfg)
	} else {
		w.plotByPoints(ax, obs, p, colorIndex, cfg)
	}

	st := summarize(obs)
	w.Log.Debugf("glacierflow: plotted %d observations in %v", st.Count, time.Since(start))
	return st, nil
}

// plotByPoints draws one series colored by pick order.
func (w *Widget) plotByPoints(ax *Ax, obs []observation, p geom.Point, colorIndex int, cfg Config) {
	c := tab10(colorIndex)
	radius := vg.Points(3)
	markerColor := withAlpha(c, 0xbf)
	if cfg.RunningMean {
		// The raw markers fade into the background when the
		// running-mean line carries the signal.
		radius = vg.Points(2)
		markerColor = withAlpha(c, 0x40)
		ax.addLine(c, vg.Points(2), runningMean(obs, runningMeanMinPts, runningMeanFreq))
	}
	label := fmt.Sprintf("Point (%.2f, %.2f)", p.X, p.Y)
	ax.addMarkers(label, markerColor, circleMarker, radius, toXYs(obs))
}

// plotBySatellite draws one marker series per satellite.
func (w *Widget) plotBySatellite(ax *Ax, obs []observation, colorIndex int, cfg Config) {
	if cfg.RunningMean {
		ax.addLine(tab10(colorIndex), vg.Points(2), runningMean(obs, runningMeanMinPts, runningMeanFreq))
	}
	sats := satellites(obs)
	for i := len(sats) - 1; i >= 0; i-- {
		sat := sats[i]
		var satObs []observation
		for _, o := range obs {
			if o.satellite == sat {
				satObs = append(satObs, o)
			}
		}
		c, ok := satelliteColors[sat]
		if !ok {
			c = color.Black
		}
		label := satelliteLabels[sat]
		if label == "" {
			label = "Satellite " + sat
		}
		ax.addMarkers(label, c, plusMarker, vg.Points(3), toXYs(satObs))
	}
}

// PlotTimeSeries clears the axes and re-plots every picked point.
func (w *Widget) PlotTimeSeries(ctx context.Context) error {
	ax := w.fig.Ax()
	ax.Clear()
	ax.setLabels(plotTitle, plotXLabel, plotYLabel)
	w.mx.Lock()
	w.colorIndex = 0
	points := make([]geom.Point, len(w.points))
	copy(points, w.points)
	w.mx.Unlock()

	if len(points) == 0 {
		w.Log.Info("glacierflow: no picked points to plot yet - pick some!")
		return nil
	}
	for _, p := range points {
		if _, err := w.PlotPointOnFig(ctx, p, "4326"); err != nil {
			return err
		}
	}
	return nil
}

func withAlpha(c color.Color, a uint8) color.Color {
	r, g, b, _ := c.RGBA()
	return color.NRGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: a}
}

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
	"fmt"
	"image/color"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// Tab10 is the categorical palette used to color picked points, in
// pick order.
var Tab10 = []color.Color{
	color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
	color.RGBA{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff},
	color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff},
	color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff},
	color.RGBA{R: 0x94, G: 0x67, B: 0xbd, A: 0xff},
	color.RGBA{R: 0x8c, G: 0x56, B: 0x4b, A: 0xff},
	color.RGBA{R: 0xe3, G: 0x77, B: 0xc2, A: 0xff},
	color.RGBA{R: 0x7f, G: 0x7f, B: 0x7f, A: 0xff},
	color.RGBA{R: 0xbc, G: 0xbd, B: 0x22, A: 0xff},
	color.RGBA{R: 0x17, G: 0xbe, B: 0xcf, A: 0xff},
}

// tab10 returns the palette color for the given index, wrapping
// around when the palette is exhausted.
func tab10(i int) color.Color {
	return Tab10[i%len(Tab10)]
}

// hexColor formats a color as an HTML hex string for the map client.
func hexColor(c color.Color) string {
	r, g, b, _ := c.RGBA()
	return fmt.Sprintf("#%02x%02x%02x", r>>8, g>>8, b>>8)
}

// glyph styles for time-series markers.
type markerShape int

const (
	circleMarker markerShape = iota
	plusMarker
)

// A figSeries is one accumulated data series on the axes.
type figSeries struct {
	label  string
	color  color.Color
	xys    plotter.XYs
	line   bool
	shape  markerShape
	radius vg.Length
	width  vg.Length
}

// Ax is the axes state of a figure: title, axis labels and the
// accumulated series. It mirrors the mutable axes handle the plot
// methods draw onto. Mutations share the figure's lock so they are
// safe against concurrent rendering.
type Ax struct {
	Title  string
	XLabel string
	YLabel string

	mx     *sync.Mutex // the owning figure's lock
	series []figSeries
}

// Clear drops all accumulated series and labels.
func (ax *Ax) Clear() {
	ax.mx.Lock()
	defer ax.mx.Unlock()
	ax.Title = ""
	ax.XLabel = ""
	ax.YLabel = ""
	ax.series = nil
}

func (ax *Ax) setLabels(title, xlabel, ylabel string) {
	ax.mx.Lock()
	defer ax.mx.Unlock()
	ax.Title = title
	ax.XLabel = xlabel
	ax.YLabel = ylabel
}

func (ax *Ax) addMarkers(label string, c color.Color, shape markerShape, radius vg.Length, xys plotter.XYs) {
	ax.mx.Lock()
	defer ax.mx.Unlock()
	ax.series = append(ax.series, figSeries{
		label:  label,
		color:  c,
		xys:    xys,
		shape:  shape,
		radius: radius,
	})
}

func (ax *Ax) addLine(c color.Color, width vg.Length, xys plotter.XYs) {
	ax.mx.Lock()
	defer ax.mx.Unlock()
	ax.series = append(ax.series, figSeries{
		color: c,
		xys:   xys,
		line:  true,
		width: width,
	})
}

// A Fig is a renderable time-series figure. Drawing is separated from
// accumulation so the axes can be mutated repeatedly between renders.
type Fig struct {
	Width, Height vg.Length

	mx sync.Mutex
	ax *Ax
}

// NewFig returns an empty figure with the default size.
func NewFig() *Fig {
	f := &Fig{
		Width:  9 * vg.Inch,
		Height: 4 * vg.Inch,
	}
	f.ax = &Ax{mx: &f.mx}
	return f
}

// Ax returns the figure's axes.
func (f *Fig) Ax() *Ax {
	f.mx.Lock()
	defer f.mx.Unlock()
	return f.ax
}

// Draw renders the figure to a PNG image.
func (f *Fig) Draw() ([]byte, error) {
	f.mx.Lock()
	defer f.mx.Unlock()

	p, err := plot.New()
	if err != nil {
		return nil, fmt.Errorf("glacierflow: creating plot: %v", err)
	}
	p.Title.Text = f.ax.Title
	p.X.Label.Text = f.ax.XLabel
	p.Y.Label.Text = f.ax.YLabel
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01"}
	p.Legend.Top = true
	p.Legend.Left = true

	seenLabels := make(map[string]bool)
	for _, s := range f.ax.series {
		if s.line {
			l, err := plotter.NewLine(s.xys)
			if err != nil {
				return nil, fmt.Errorf("glacierflow: adding line: %v", err)
			}
			l.LineStyle.Color = s.color
			l.LineStyle.Width = s.width
			p.Add(l)
			continue
		}
		sc, err := plotter.NewScatter(s.xys)
		if err != nil {
			return nil, fmt.Errorf("glacierflow: adding markers: %v", err)
		}
		sc.GlyphStyle = draw.GlyphStyle{
			Color:  s.color,
			Radius: s.radius,
		}
		switch s.shape {
		case plusMarker:
			sc.GlyphStyle.Shape = draw.PlusGlyph{}
		default:
			sc.GlyphStyle.Shape = draw.CircleGlyph{}
		}
		p.Add(sc)
		// Repeated labels collapse to one legend entry.
		if s.label != "" && !seenLabels[s.label] {
			seenLabels[s.label] = true
			p.Legend.Add(s.label, sc)
		}
	}

	c := vgimg.New(f.Width, f.Height)
	dc := draw.New(c)
	p.Draw(dc)
	var buf bytes.Buffer
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("glacierflow: rendering figure: %v", err)
	}
	return buf.Bytes(), nil
}

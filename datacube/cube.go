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
	"context"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/ctessum/geom/proj"
	"github.com/sirupsen/logrus"

	"github.com/spatialmodel/glacierflow/cloud"
	"github.com/spatialmodel/glacierflow/zarr"
)

// nanosecondsPerDay converts the image-pair separations stored in the
// cubes (timedeltas in nanoseconds) to days.
const nanosecondsPerDay = 86400e9

// A Cube is an open velocity datacube: its consolidated metadata plus
// the fully read coordinate axes. Velocity variables stay remote and
// are fetched chunk-by-chunk on demand.
type Cube struct {
	// URI is the cube's location in remote storage.
	URI string
	// EPSG is the cube's native projection code.
	EPSG string

	// X and Y are the spatial grid cell centers in the cube's
	// native projection.
	X, Y []float64
	// MidDate holds the center date of each image pair.
	MidDate []time.Time
	// SeparationDays holds each image pair's time separation.
	SeparationDays []float64
	// Satellites identifies the sensor for each image pair (empty
	// if the cube does not record it).
	Satellites []string

	sr    *proj.SR
	group *zarr.Group
	attrs struct {
		Title   string `json:"title"`
		Mission string `json:"mission"`
	}
}

// openCube opens the datacube at uri and reads its coordinate axes.
// Opening fetches the consolidated metadata plus the coordinate
// arrays, which can take several seconds for remote stores; callers
// cache the result.
func openCube(ctx context.Context, uri string, entry *Entry, log logrus.FieldLogger) (*Cube, error) {
	store, err := openStore(ctx, uri)
	if err != nil {
		return nil, err
	}
	g, err := zarr.OpenGroup(ctx, store)
	if err != nil {
		return nil, fmt.Errorf("datacube: opening %s: %v", uri, err)
	}
	c := &Cube{URI: uri, group: g}
	if entry != nil {
		c.EPSG = entry.EPSG
		c.sr, err = entry.SR()
		if err != nil {
			return nil, err
		}
	}
	g.Meta().Attrs("", &c.attrs)

	if c.X, err = c.readCoord(ctx, "x"); err != nil {
		return nil, err
	}
	if c.Y, err = c.readCoord(ctx, "y"); err != nil {
		return nil, err
	}
	md, err := c.readInt64(ctx, "mid_date")
	if err != nil {
		return nil, err
	}
	c.MidDate = make([]time.Time, len(md))
	for i, ns := range md {
		c.MidDate[i] = time.Unix(0, ns).UTC()
	}
	dt, err := c.readInt64(ctx, "date_dt")
	if err != nil {
		return nil, err
	}
	c.SeparationDays = make([]float64, len(dt))
	for i, ns := range dt {
		c.SeparationDays[i] = float64(ns) / nanosecondsPerDay
	}
	// The sensor axis is optional.
	if sat, err := g.Array("satellite_img1"); err == nil {
		if sat.DTypeKind() == 'S' {
			if c.Satellites, err = sat.ReadStrings(ctx); err != nil {
				log.Debugf("datacube: reading satellite axis of %s: %v", uri, err)
			}
		} else if vals, err := sat.ReadFloat64(ctx); err == nil {
			c.Satellites = make([]string, len(vals))
			for i, v := range vals {
				c.Satellites[i] = fmt.Sprintf("%d", int(v))
			}
		}
	}
	return c, nil
}

func (c *Cube) readCoord(ctx context.Context, name string) ([]float64, error) {
	a, err := c.group.Array(name)
	if err != nil {
		return nil, fmt.Errorf("datacube: %s has no %q coordinate: %v", c.URI, name, err)
	}
	vals, err := a.ReadFloat64(ctx)
	if err != nil {
		return nil, fmt.Errorf("datacube: reading %q coordinate of %s: %v", name, c.URI, err)
	}
	return vals, nil
}

func (c *Cube) readInt64(ctx context.Context, name string) ([]int64, error) {
	a, err := c.group.Array(name)
	if err != nil {
		return nil, fmt.Errorf("datacube: %s has no %q axis: %v", c.URI, name, err)
	}
	vals, err := a.ReadInt64(ctx)
	if err != nil {
		return nil, fmt.Errorf("datacube: reading %q axis of %s: %v", name, c.URI, err)
	}
	return vals, nil
}

// HasVariable reports whether the cube stores the named variable.
func (c *Cube) HasVariable(name string) bool {
	_, err := c.group.Array(name)
	return err == nil
}

// Variables returns the names of the cube's three-dimensional data
// variables, sorted.
func (c *Cube) Variables() []string {
	var names []string
	for _, name := range c.group.Meta().ArrayNames() {
		a, err := c.group.Array(name)
		if err != nil {
			continue
		}
		if len(a.Shape()) == 3 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Column reads the full time series of the named variable at spatial
// indices (iy, ix).
func (c *Cube) Column(ctx context.Context, variable string, iy, ix int) ([]float64, error) {
	a, err := c.group.Array(variable)
	if err != nil {
		return nil, err
	}
	return a.ReadColumn(ctx, iy, ix)
}

// Index returns the indices of the grid cell nearest to the given
// point in the cube's native projection.
func (c *Cube) Index(x, y float64) (iy, ix int) {
	return nearestIndex(c.Y, y), nearestIndex(c.X, x)
}

// Summary returns a printable description of the cube: its location,
// dimensions, time range and variables.
func (c *Cube) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "<datacube %s>\n", c.URI)
	if c.attrs.Title != "" {
		fmt.Fprintf(&b, "  title:      %s\n", c.attrs.Title)
	}
	if c.EPSG != "" {
		fmt.Fprintf(&b, "  projection: EPSG:%s\n", c.EPSG)
	}
	fmt.Fprintf(&b, "  dimensions: mid_date: %d, y: %d, x: %d\n",
		len(c.MidDate), len(c.Y), len(c.X))
	if len(c.MidDate) > 0 {
		fmt.Fprintf(&b, "  time range: %s to %s\n",
			c.MidDate[0].Format("2006-01-02"), c.MidDate[len(c.MidDate)-1].Format("2006-01-02"))
	}
	fmt.Fprintf(&b, "  variables:  %s", strings.Join(c.Variables(), ", "))
	return b.String()
}

// String implements fmt.Stringer.
func (c *Cube) String() string { return c.Summary() }

// openStore creates a zarr store for the given URI. Supported schemes
// are http(s), s3, gs and file; anything else is treated as a local
// directory path.
func openStore(ctx context.Context, uri string) (zarr.Store, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("datacube: parsing URI %q: %v", uri, err)
	}
	switch u.Scheme {
	case "http", "https":
		return zarr.NewHTTPStore(uri)
	case "s3", "gs", "file":
		bucket, err := cloud.OpenBucket(ctx, u.Scheme+"://"+u.Host)
		if err != nil {
			return nil, err
		}
		return zarr.NewBlobStore(bucket, strings.TrimPrefix(u.Path, "/")), nil
	default:
		return zarr.NewDirStore(uri)
	}
}

// nearestIndex returns the index of the element of coords closest to
// v. The coordinates must be monotonic but may run in either
// direction (y axes typically descend).
func nearestIndex(coords []float64, v float64) int {
	n := len(coords)
	if n == 0 {
		return -1
	}
	ascending := coords[0] <= coords[n-1]
	i := sort.Search(n, func(i int) bool {
		if ascending {
			return coords[i] >= v
		}
		return coords[i] <= v
	})
	if i == n {
		return n - 1
	}
	if i > 0 && math.Abs(v-coords[i-1]) <= math.Abs(v-coords[i]) {
		return i - 1
	}
	return i
}

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
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/Knetic/govaluate"
	"github.com/ctessum/geom"
	"github.com/ctessum/requestcache"
	"github.com/sirupsen/logrus"
)

// ErrNoCoverage is returned by GetTimeseriesAtPoint when no cube in
// the catalog covers the requested point.
var ErrNoCoverage = errors.New("datacube: no datacube covers the requested point")

func init() {
	gob.Register(Series{})
}

// A Series is the time series extracted from one datacube at one grid
// cell.
type Series struct {
	// URI identifies the cube the series came from.
	URI string
	// Point is the queried location in the cube's native projection.
	Point geom.Point
	// LonLat is the queried location in EPSG:4326.
	LonLat geom.Point
	// EPSG is the cube's native projection code.
	EPSG string

	// MidDate, SeparationDays and Satellites describe the image
	// pairs, parallel to each Values slice.
	MidDate        []time.Time
	SeparationDays []float64
	Satellites     []string

	// Values holds one time series per requested variable.
	Values map[string][]float64
}

// Len returns the number of observations in the series.
func (s *Series) Len() int { return len(s.MidDate) }

// Tools matches points to datacubes and extracts time series,
// caching the opened cube handles and the extracted series.
type Tools struct {
	// Log receives progress messages.
	Log logrus.FieldLogger

	// CacheDir, if non-empty, persists extracted time series to
	// disk so they survive restarts. It can only be set before the
	// first query.
	CacheDir string

	catalog *Catalog

	mx        sync.Mutex
	openCubes map[string]*Cube
	opening   map[string]chan struct{}

	seriesCache *requestcache.Cache
	seriesOnce  sync.Once
}

// NewTools creates a Tools using the given datacube catalog.
func NewTools(catalog *Catalog) *Tools {
	return &Tools{
		Log:       logrus.StandardLogger(),
		catalog:   catalog,
		openCubes: make(map[string]*Cube),
		opening:   make(map[string]chan struct{}),
	}
}

// Catalog returns the datacube catalog.
func (t *Tools) Catalog() *Catalog { return t.catalog }

// OpenCubes returns a snapshot of the open-cubes mapping: storage URI
// to open cube handle. Entries appear when a query first touches a
// cube and are never evicted.
func (t *Tools) OpenCubes() map[string]*Cube {
	t.mx.Lock()
	defer t.mx.Unlock()
	out := make(map[string]*Cube, len(t.openCubes))
	for k, v := range t.openCubes {
		out[k] = v
	}
	return out
}

// Cube returns the open handle for the given catalog entry, opening
// the cube on first access. Concurrent requests for the same cube
// share one fetch.
func (t *Tools) Cube(ctx context.Context, entry *Entry) (*Cube, error) {
	for {
		t.mx.Lock()
		if c, ok := t.openCubes[entry.URI]; ok {
			t.mx.Unlock()
			return c, nil
		}
		wait, inflight := t.opening[entry.URI]
		if !inflight {
			wait = make(chan struct{})
			t.opening[entry.URI] = wait
		}
		t.mx.Unlock()

		if inflight {
			select {
			case <-wait:
				continue // retry the map lookup
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		t.Log.Printf("datacube: opening %s", entry.URI)
		start := time.Now()
		c, err := openCube(ctx, entry.URI, entry, t.Log)

		t.mx.Lock()
		delete(t.opening, entry.URI)
		if err == nil {
			t.openCubes[entry.URI] = c
		}
		t.mx.Unlock()
		close(wait)

		if err != nil {
			return nil, err
		}
		t.Log.Printf("datacube: opened %s in %v", entry.URI, time.Since(start))
		return c, nil
	}
}

// GetTimeseriesAtPoint returns the cube covering the given point and
// the time series of the requested variables at the grid cell nearest
// to it. The point is interpreted in the projection given by its EPSG
// code. A variable not stored in the cube may be an expression over
// stored variables, e.g. "sqrt(vx**2 + vy**2)". Results are cached
// and concurrent identical requests are deduplicated.
//
// If no cube covers the point, the returned error is ErrNoCoverage.
func (t *Tools) GetTimeseriesAtPoint(ctx context.Context, p geom.Point, epsgCode string, variables ...string) (*Cube, *Series, error) {
	srIn, err := SRFromEPSG(epsgCode)
	if err != nil {
		return nil, nil, err
	}
	sr4326, err := SRFromEPSG("4326")
	if err != nil {
		return nil, nil, err
	}
	lonLat, err := transformPoint(p, srIn, sr4326)
	if err != nil {
		return nil, nil, err
	}
	entries := t.catalog.Query(lonLat)
	if len(entries) == 0 {
		return nil, nil, ErrNoCoverage
	}
	entry := entries[0]
	cube, err := t.Cube(ctx, entry)
	if err != nil {
		return nil, nil, err
	}
	cubeSR, err := entry.SR()
	if err != nil {
		return nil, nil, err
	}
	native, err := transformPoint(lonLat, sr4326, cubeSR)
	if err != nil {
		return nil, nil, err
	}
	iy, ix := cube.Index(native.X, native.Y)

	t.seriesOnce.Do(func() {
		cachefuncs := []requestcache.CacheFunc{
			requestcache.Deduplicate(), requestcache.Memory(100),
		}
		if t.CacheDir != "" {
			cachefuncs = append(cachefuncs, requestcache.Disk(t.CacheDir,
				requestcache.MarshalGob, requestcache.UnmarshalGob))
		}
		t.seriesCache = requestcache.NewCache(
			func(ctx context.Context, request interface{}) (interface{}, error) {
				r := request.(*seriesRequest)
				return t.extract(ctx, r)
			}, runtime.GOMAXPROCS(-1), cachefuncs...)
	})

	req := &seriesRequest{
		cube:      cube,
		iy:        ix2(iy),
		ix:        ix2(ix),
		lonLat:    lonLat,
		native:    native,
		variables: variables,
	}
	key := fmt.Sprintf("%s_%d_%d", cube.URI, iy, ix)
	for _, v := range variables {
		key += "_" + v
	}
	result, err := t.seriesCache.NewRequest(ctx, req, key).Result()
	if err != nil {
		return cube, nil, err
	}
	series := result.(Series)
	return cube, &series, nil
}

// ix2 guards against accidental negative indices from empty axes.
func ix2(i int) int {
	if i < 0 {
		return 0
	}
	return i
}

type seriesRequest struct {
	cube      *Cube
	iy, ix    int
	lonLat    geom.Point
	native    geom.Point
	variables []string
}

// extract reads the requested variable columns from the cube.
func (t *Tools) extract(ctx context.Context, r *seriesRequest) (interface{}, error) {
	c := r.cube
	start := time.Now()
	s := Series{
		URI:            c.URI,
		Point:          r.native,
		LonLat:         r.lonLat,
		EPSG:           c.EPSG,
		MidDate:        c.MidDate,
		SeparationDays: c.SeparationDays,
		Satellites:     c.Satellites,
		Values:         make(map[string][]float64, len(r.variables)),
	}
	for _, variable := range r.variables {
		var vals []float64
		var err error
		if c.HasVariable(variable) {
			vals, err = c.Column(ctx, variable, r.iy, r.ix)
		} else {
			vals, err = t.derive(ctx, c, variable, r.iy, r.ix)
		}
		if err != nil {
			return nil, err
		}
		s.Values[variable] = vals
	}
	t.Log.Printf("datacube: fetched %d observations at (%.2f, %.2f) in %v",
		s.Len(), r.lonLat.X, r.lonLat.Y, time.Since(start))
	return s, nil
}

// exprFunctions are the functions available to derived-variable
// expressions.
var exprFunctions = map[string]govaluate.ExpressionFunction{
	"sqrt": func(args ...interface{}) (interface{}, error) {
		if len(args) != 1 {
			return nil, errors.New("sqrt takes one argument")
		}
		return math.Sqrt(args[0].(float64)), nil
	},
	"abs": func(args ...interface{}) (interface{}, error) {
		if len(args) != 1 {
			return nil, errors.New("abs takes one argument")
		}
		return math.Abs(args[0].(float64)), nil
	},
	"atan2": func(args ...interface{}) (interface{}, error) {
		if len(args) != 2 {
			return nil, errors.New("atan2 takes two arguments")
		}
		return math.Atan2(args[0].(float64), args[1].(float64)), nil
	},
}

// derive evaluates a variable that is not stored in the cube as an
// expression over variables that are, sample by sample.
func (t *Tools) derive(ctx context.Context, c *Cube, expression string, iy, ix int) ([]float64, error) {
	expr, err := govaluate.NewEvaluableExpressionWithFunctions(expression, exprFunctions)
	if err != nil {
		return nil, fmt.Errorf("datacube: variable %q is not in the cube and is not a valid expression: %v",
			expression, err)
	}
	inputs := make(map[string][]float64)
	n := 0
	for _, name := range expr.Vars() {
		if _, ok := inputs[name]; ok {
			continue
		}
		if !c.HasVariable(name) {
			return nil, fmt.Errorf("datacube: expression %q references %q, which is not in the cube",
				expression, name)
		}
		vals, err := c.Column(ctx, name, iy, ix)
		if err != nil {
			return nil, err
		}
		inputs[name] = vals
		n = len(vals)
	}
	out := make([]float64, n)
	params := make(map[string]interface{}, len(inputs))
	for i := range out {
		for name, vals := range inputs {
			params[name] = vals[i]
		}
		v, err := expr.Evaluate(params)
		if err != nil {
			return nil, fmt.Errorf("datacube: evaluating %q: %v", expression, err)
		}
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("datacube: expression %q is not numeric", expression)
		}
		out[i] = f
	}
	return out, nil
}

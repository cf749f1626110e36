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

// Package datacube matches geographic points to cloud-hosted glacier
// velocity datacubes and extracts time series from them.
package datacube

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"

	"github.com/cenkalti/backoff"
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"
	"github.com/ctessum/geom/index/rtree"
	"github.com/ctessum/geom/proj"
	"github.com/spf13/cast"

	"github.com/spatialmodel/glacierflow/cloud"
)

// An Entry is one datacube in the catalog: its storage URI, its native
// projection and its footprint in EPSG:4326 coordinates.
type Entry struct {
	// URI locates the cube's chunked array store.
	URI string
	// EPSG is the cube's native projection code.
	EPSG string
	// Proj4 optionally overrides the built-in EPSG definitions.
	Proj4 string
	// Footprint is the cube's spatial coverage in EPSG:4326.
	Footprint geom.Polygonal
	// PairCount is the number of image pairs in the cube, when the
	// catalog reports it.
	PairCount float64
}

// Bounds implements rtree.Spatial.
func (e *Entry) Bounds() *geom.Bounds {
	return e.Footprint.Bounds()
}

// footprint carries an entry through the rtree, which indexes
// geometries.
type footprint struct {
	geom.Polygonal
	entry *Entry
}

// SR returns the cube's native spatial reference.
func (e *Entry) SR() (*proj.SR, error) {
	if e.Proj4 != "" {
		return proj.Parse(e.Proj4)
	}
	return SRFromEPSG(e.EPSG)
}

// A Catalog is a spatially indexed collection of datacube footprints,
// loaded from a GeoJSON feature collection.
type Catalog struct {
	entries []*Entry
	index   *rtree.Rtree
	raw     []byte
}

// LoadCatalog reads the datacube catalog from path, which may be a
// local file, an http(s) URL or a blob URL (s3://bucket/key).
func LoadCatalog(ctx context.Context, path string) (*Catalog, error) {
	b, err := fetch(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("datacube: loading catalog: %v", err)
	}
	return ParseCatalog(b)
}

// ParseCatalog parses a GeoJSON feature collection where each feature
// carries zarr_url and epsg properties and a polygonal footprint in
// EPSG:4326 coordinates.
func ParseCatalog(b []byte) (*Catalog, error) {
	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Properties map[string]interface{} `json:"properties"`
			Geometry   *geojson.Geometry      `json:"geometry"`
		} `json:"features"`
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		return nil, fmt.Errorf("datacube: parsing catalog: %v", err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("datacube: catalog is a %q, want a FeatureCollection", fc.Type)
	}
	c := &Catalog{
		index: rtree.NewTree(25, 50),
		raw:   b,
	}
	for i, f := range fc.Features {
		if f.Geometry == nil {
			return nil, fmt.Errorf("datacube: catalog feature %d has no geometry", i)
		}
		g, err := geojson.FromGeoJSON(f.Geometry)
		if err != nil {
			return nil, fmt.Errorf("datacube: catalog feature %d: %v", i, err)
		}
		poly, ok := g.(geom.Polygonal)
		if !ok {
			return nil, fmt.Errorf("datacube: catalog feature %d is a %T, want a polygon", i, g)
		}
		uri, err := cast.ToStringE(f.Properties["zarr_url"])
		if err != nil || uri == "" {
			return nil, fmt.Errorf("datacube: catalog feature %d has no zarr_url", i)
		}
		epsg, err := cast.ToStringE(f.Properties["epsg"])
		if err != nil {
			return nil, fmt.Errorf("datacube: catalog feature %d: epsg: %v", i, err)
		}
		e := &Entry{
			URI:       uri,
			EPSG:      epsg,
			Proj4:     cast.ToString(f.Properties["proj4"]),
			Footprint: poly,
			PairCount: cast.ToFloat64(f.Properties["pair_count"]),
		}
		c.entries = append(c.entries, e)
		c.index.Insert(&footprint{Polygonal: poly, entry: e})
	}
	return c, nil
}

// Entries returns all catalog entries in file order.
func (c *Catalog) Entries() []*Entry { return c.entries }

// Len returns the number of cubes in the catalog.
func (c *Catalog) Len() int { return len(c.entries) }

// GeoJSON returns the raw feature collection the catalog was loaded
// from, for serving to map clients.
func (c *Catalog) GeoJSON() []byte { return c.raw }

// Query returns the entries whose footprints contain the given
// EPSG:4326 point, in file order.
func (c *Catalog) Query(p geom.Point) []*Entry {
	var out []*Entry
	for _, s := range c.index.SearchIntersect(p.Bounds()) {
		e := s.(*footprint).entry
		if p.Within(e.Footprint) != geom.Outside {
			out = append(out, e)
		}
	}
	return out
}

// fetch reads the contents of a local file, an http(s) URL or a blob
// URL. HTTP fetches are retried with exponential backoff.
func fetch(ctx context.Context, path string) ([]byte, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		var body []byte
		err := backoff.Retry(func() error {
			req, err := http.NewRequest(http.MethodGet, path, nil)
			if err != nil {
				return backoff.Permanent(err)
			}
			resp, err := http.DefaultClient.Do(req.WithContext(ctx))
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				err = fmt.Errorf("fetching %s: %s", path, resp.Status)
				if resp.StatusCode < 500 {
					return backoff.Permanent(err)
				}
				return err
			}
			body, err = ioutil.ReadAll(resp.Body)
			return err
		}, backoff.WithMaxRetries(backoff.WithContext(backoff.NewExponentialBackOff(), ctx), 5))
		if perr, ok := err.(*backoff.PermanentError); ok {
			return nil, perr.Err
		}
		return body, err
	}
	if u, err := url.Parse(path); err == nil && (u.Scheme == "s3" || u.Scheme == "gs" || u.Scheme == "file") {
		bucket, err := cloud.OpenBucket(ctx, u.Scheme+"://"+u.Host)
		if err != nil {
			return nil, err
		}
		return bucket.ReadAll(ctx, strings.TrimPrefix(u.Path, "/"))
	}
	return ioutil.ReadFile(path)
}

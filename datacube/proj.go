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
	"fmt"
	"strconv"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
)

// Proj4 definitions for the coordinate reference systems used by the
// velocity archives and for web mapping.
const (
	longLatProj = "+proj=longlat +datum=WGS84 +no_defs"
	webMapProj  = "+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0 +k=1.0 +units=m +nadgrids=@null +no_defs"
)

// SRFromEPSG returns the spatial reference for a numeric EPSG code
// given as a string (e.g. "4326"), as used in the datacube catalog and
// in point-plotting requests. Codes without a built-in definition
// need an explicit proj4 string instead.
func SRFromEPSG(code string) (*proj.SR, error) {
	switch code {
	case "4326":
		return proj.Parse(longLatProj)
	case "3857", "900913":
		return proj.Parse(webMapProj)
	}
	c, err := strconv.Atoi(code)
	if err != nil {
		return nil, fmt.Errorf("datacube: invalid EPSG code %q", code)
	}
	switch {
	case c >= 32601 && c <= 32660: // UTM north
		return proj.Parse(fmt.Sprintf("+proj=utm +zone=%d +datum=WGS84 +units=m +no_defs", c-32600))
	case c >= 32701 && c <= 32760: // UTM south
		return proj.Parse(fmt.Sprintf("+proj=utm +zone=%d +south +datum=WGS84 +units=m +no_defs", c-32700))
	}
	return nil, fmt.Errorf("datacube: no built-in definition for EPSG %q; supply a proj4 string", code)
}

// transformPoint converts p from one spatial reference to another.
func transformPoint(p geom.Point, from, to *proj.SR) (geom.Point, error) {
	if from.Equal(to, 10) {
		return p, nil
	}
	t, err := from.NewTransform(to)
	if err != nil {
		return geom.Point{}, fmt.Errorf("datacube: creating transform: %v", err)
	}
	g, err := p.Transform(t)
	if err != nil {
		return geom.Point{}, fmt.Errorf("datacube: transforming point: %v", err)
	}
	return g.(geom.Point), nil
}

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

// Package glacierflow provides an interactive map widget for plotting
// glacier surface velocity time series from cloud-hosted datacubes.
// Users pick points on a web map; for each point the covering datacube
// is found, opened lazily, and the velocity time series at the nearest
// grid cell is fetched and drawn.
package glacierflow

// Version gives the version number of this version of GlacierFlow.
const Version = "0.1.0"

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
	"fmt"

	"github.com/spf13/cast"
)

// Valid values for Config.ColorBy.
const (
	ColorByPoints    = "points"
	ColorBySatellite = "satellite"
)

// Config holds the widget display options.
type Config struct {
	// Plot is the variable to plot. It is either the name of a
	// datacube variable (e.g. "v", "vx", "vy") or an expression over
	// datacube variables (e.g. "sqrt(vx**2 + vy**2)").
	Plot string

	// MinSeparationDays and MaxSeparationDays bound the image-pair
	// time separation; pairs outside the bounds are not plotted.
	MinSeparationDays int
	MaxSeparationDays int

	// ColorBy chooses whether series are colored by picked point or
	// by the satellite that acquired each image pair.
	ColorBy string

	// RunningMean adds a running-mean line through each series.
	RunningMean bool

	// Verbose enables diagnostic logging.
	Verbose bool
}

// DefaultConfig returns the default widget configuration.
func DefaultConfig() Config {
	return Config{
		Plot:              "v",
		MinSeparationDays: 5,
		MaxSeparationDays: 90,
		ColorBy:           ColorByPoints,
		RunningMean:       true,
		Verbose:           false,
	}
}

func (c Config) check() error {
	if c.Plot == "" {
		return fmt.Errorf("glacierflow: config: plot variable must not be empty")
	}
	if c.MinSeparationDays < 0 {
		return fmt.Errorf("glacierflow: config: min_separation_days is %d but must be >= 0", c.MinSeparationDays)
	}
	if c.MaxSeparationDays < c.MinSeparationDays {
		return fmt.Errorf("glacierflow: config: max_separation_days (%d) < min_separation_days (%d)",
			c.MaxSeparationDays, c.MinSeparationDays)
	}
	if c.ColorBy != ColorByPoints && c.ColorBy != ColorBySatellite {
		return fmt.Errorf("glacierflow: config: color_by is %q but must be %q or %q",
			c.ColorBy, ColorByPoints, ColorBySatellite)
	}
	return nil
}

// apply sets the configuration value for one key, returning an error
// for unrecognized keys and uncastable values.
func (c *Config) apply(key string, value interface{}) error {
	var err error
	switch key {
	case "plot":
		c.Plot, err = cast.ToStringE(value)
	case "min_separation_days":
		c.MinSeparationDays, err = cast.ToIntE(value)
	case "max_separation_days":
		c.MaxSeparationDays, err = cast.ToIntE(value)
	case "color_by":
		c.ColorBy, err = cast.ToStringE(value)
	case "running_mean":
		c.RunningMean, err = cast.ToBoolE(value)
	case "verbose":
		c.Verbose, err = cast.ToBoolE(value)
	default:
		return fmt.Errorf("glacierflow: config: unrecognized key %q", key)
	}
	if err != nil {
		return fmt.Errorf("glacierflow: config: key %q: %v", key, err)
	}
	return nil
}

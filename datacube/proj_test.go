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
	"math"
	"testing"

	"github.com/ctessum/geom"
)

func TestSRFromEPSG(t *testing.T) {
	for _, code := range []string{"4326", "3857", "900913", "32622", "32722"} {
		if _, err := SRFromEPSG(code); err != nil {
			t.Errorf("EPSG %s: %v", code, err)
		}
	}
	for _, code := range []string{"", "abc", "3413", "99999"} {
		if _, err := SRFromEPSG(code); err == nil {
			t.Errorf("EPSG %q: expected error", code)
		}
	}
}

func TestTransformPoint(t *testing.T) {
	sr4326, err := SRFromEPSG("4326")
	if err != nil {
		t.Fatal(err)
	}
	sr3857, err := SRFromEPSG("3857")
	if err != nil {
		t.Fatal(err)
	}

	p := geom.Point{X: -49.5, Y: 70}
	same, err := transformPoint(p, sr4326, sr4326)
	if err != nil {
		t.Fatal(err)
	}
	if same != p {
		t.Errorf("identity transform changed the point: %+v", same)
	}

	// A 4326 -> 3857 -> 4326 round trip should recover the
	// original coordinates.
	merc, err := transformPoint(p, sr4326, sr3857)
	if err != nil {
		t.Fatal(err)
	}
	if merc.X >= 0 || merc.Y <= 0 {
		t.Errorf("web mercator point in wrong quadrant: %+v", merc)
	}
	back, err := transformPoint(merc, sr3857, sr4326)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(back.X-p.X) > 1e-6 || math.Abs(back.Y-p.Y) > 1e-6 {
		t.Errorf("round trip: got %+v, want %+v", back, p)
	}
}

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

package glacierflowutil

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"os"
	"strings"
	"testing"

	"github.com/spatialmodel/glacierflow"
)

func TestDefaults(t *testing.T) {
	cases := []struct {
		name string
		want interface{}
	}{
		{"catalog", DefaultCatalog},
		{"plot", "v"},
		{"min_separation_days", 5},
		{"max_separation_days", 90},
		{"color_by", "points"},
		{"running_mean", true},
		{"addr", "localhost:8080"},
		{"epsg", "4326"},
		{"output", "timeseries.csv"},
	}
	for _, test := range cases {
		var got interface{}
		switch test.want.(type) {
		case string:
			got = Cfg.GetString(test.name)
		case int:
			got = Cfg.GetInt(test.name)
		case bool:
			got = Cfg.GetBool(test.name)
		}
		if got != test.want {
			t.Errorf("%s: got %v, want %v", test.name, got, test.want)
		}
	}
}

func TestSetConfig(t *testing.T) {
	f, err := ioutil.TempFile("", "glacierflowcfg*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(f.Name())
	fmt.Fprintln(f, `cache_dir: /tmp/glacierflow-cache`)
	f.Close()

	Cfg.Set("config", f.Name())
	defer Cfg.Set("config", "")
	if err := setConfig(); err != nil {
		t.Fatal(err)
	}
	if got := Cfg.GetString("cache_dir"); got != "/tmp/glacierflow-cache" {
		t.Errorf("cache_dir: %q", got)
	}
}

func TestSetConfig_missingFile(t *testing.T) {
	Cfg.Set("config", "no_such_file.yaml")
	defer Cfg.Set("config", "")
	if err := setConfig(); err == nil {
		t.Error("expected error for missing configuration file")
	}
}

func TestVersionCmd(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOutput(&buf)
	versionCmd.Run(versionCmd, nil)
	want := "GlacierFlow v" + glacierflow.Version
	if !strings.Contains(buf.String(), want) {
		t.Errorf("version output %q does not contain %q", buf.String(), want)
	}
}

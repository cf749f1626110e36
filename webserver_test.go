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
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ctessum/geom"
	"github.com/gorilla/websocket"
)

func TestMapServerPage(t *testing.T) {
	srv := httptest.NewServer(newTestWidget(t).MapServer())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	page := string(body)
	for _, want := range []string{"leaflet", "Clear Points", "Make Plot", "/coverage/{z}/{x}/{y}.png"} {
		if !strings.Contains(page, want) {
			t.Errorf("page missing %q", want)
		}
	}

	resp2, err := http.Get(srv.URL + "/nosuchpage")
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("unknown page status: %d", resp2.StatusCode)
	}
}

func TestPlotAndLegendHandlers(t *testing.T) {
	w := newTestWidget(t)
	w.AddPoint(geom.Point{X: -49.5, Y: 70})
	srv := httptest.NewServer(w.MapServer())
	defer srv.Close()

	for _, path := range []string{"/plot.png", "/legend.png"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		body, err := ioutil.ReadAll(resp.Body)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s status: %d", path, resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
			t.Errorf("%s content type: %s", path, ct)
		}
		if len(body) < 8 || string(body[1:4]) != "PNG" {
			t.Errorf("%s is not a PNG", path)
		}
	}
}

func TestCubesHandler(t *testing.T) {
	w := newTestWidget(t)
	if _, err := w.PlotPointOnFig(context.Background(), geom.Point{X: -49.5, Y: 70}, "4326"); err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(w.MapServer())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/cubes")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var cubes map[string]struct {
		EPSG      string   `json:"epsg"`
		Pairs     int      `json:"pairs"`
		Variables []string `json:"variables"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&cubes); err != nil {
		t.Fatal(err)
	}
	if len(cubes) != 1 {
		t.Fatalf("open cubes: got %d, want 1", len(cubes))
	}
	for _, c := range cubes {
		if c.EPSG != "4326" || c.Pairs != 8 {
			t.Errorf("cube info: %+v", c)
		}
	}
}

func TestCoverageTileHandler(t *testing.T) {
	srv := httptest.NewServer(newTestWidget(t).MapServer())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/coverage/3/1/1.png")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("tile status: %d", resp.StatusCode)
	}

	resp2, err := http.Get(srv.URL + "/coverage/bad.png")
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed tile path status: %d", resp2.StatusCode)
	}
}

func TestClearHandler(t *testing.T) {
	w := newTestWidget(t)
	w.AddPoint(geom.Point{X: -49.5, Y: 70})
	srv := httptest.NewServer(w.MapServer())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/clear")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET status: %d", resp.StatusCode)
	}

	resp2, err := http.Post(srv.URL+"/clear", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusNoContent {
		t.Errorf("POST status: %d", resp2.StatusCode)
	}
	if got := len(w.Points()); got != 0 {
		t.Errorf("points after clear: %d", got)
	}
}

func TestWebSocketPick(t *testing.T) {
	srv := httptest.NewServer(newTestWidget(t).MapServer())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(pickMessage{Action: "pick", Lon: -49.5, Lat: 70}); err != nil {
		t.Fatal(err)
	}
	var msg pickMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Error != "" {
		t.Fatalf("pick error: %s", msg.Error)
	}
	if msg.Color != "#1f77b4" {
		t.Errorf("first pick color: %s", msg.Color)
	}

	if err := conn.WriteJSON(pickMessage{Action: "dance"}); err != nil {
		t.Fatal(err)
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(msg.Error, "unknown action") {
		t.Errorf("unknown action error: %q", msg.Error)
	}
}

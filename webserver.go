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
	"fmt"
	"html/template"
	"image/color"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/carto"
	"github.com/ctessum/plotextra"
	"github.com/golang/groupcache/lru"
	"github.com/gorilla/websocket"
	"github.com/skratchdot/open-golang/open"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/spatialmodel/glacierflow/datacube"
	"github.com/spatialmodel/glacierflow/internal/hash"
)

// Tile layers shown on the map.
const (
	baseTileURL     = "https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/{z}/{y}/{x}.jpg"
	velocityTileURL = "https://glacierflow.nyc3.digitaloceanspaces.com/webmaps/vel_map/{z}/{x}/{y}.png"

	velocityAttribution = `ITS_LIVE velocity mosaic (<a href="https://its-live.jpl.nasa.gov">ITS_LIVE</a>) with funding provided by NASA MEaSUREs.`
)

// Display serves the interactive map and plot pane at addr until the
// context is canceled. If openBrowser is true, the default browser is
// pointed at the page.
func (w *Widget) Display(ctx context.Context, addr string, openBrowser bool) error {
	srv := &http.Server{Addr: addr, Handler: w.MapServer()}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	w.Log.Infof("glacierflow: serving map widget at http://%s", addr)
	if openBrowser {
		go func() {
			time.Sleep(100 * time.Millisecond)
			if err := open.Run("http://" + addr); err != nil {
				w.Log.Errorf("glacierflow: opening browser: %v", err)
			}
		}()
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	}
}

// MapServer returns the HTTP handler for the widget user interface.
func (w *Widget) MapServer() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", w.pageHandler)
	mux.HandleFunc("/ws", w.wsHandler)
	mux.HandleFunc("/plot.png", w.plotHandler)
	mux.HandleFunc("/coverage/", w.coverageTileHandler)
	mux.HandleFunc("/legend.png", w.legendHandler)
	mux.HandleFunc("/cubes", w.cubesHandler)
	mux.HandleFunc("/clear", w.clearHandler)
	return mux
}

func (w *Widget) pageHandler(rw http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(rw, r)
		return
	}
	err := mapPageTemplate.Execute(rw, struct {
		BaseTiles     string
		VelocityTiles string
		Attribution   template.HTML
	}{
		BaseTiles:     baseTileURL,
		VelocityTiles: velocityTileURL,
		Attribution:   template.HTML(velocityAttribution),
	})
	if err != nil {
		w.Log.Errorf("glacierflow: rendering map page: %v", err)
	}
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// pickMessage is the wire format for browser interaction events.
type pickMessage struct {
	Action string  `json:"action"` // "pick", "clear" or "plot"
	Lon    float64 `json:"lon"`
	Lat    float64 `json:"lat"`
	Color  string  `json:"color,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// wsHandler relays point-picking events between the browser and the
// widget. Each pick is acknowledged with the marker color assigned by
// pick order.
func (w *Widget) wsHandler(rw http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.Log.Errorf("glacierflow: websocket upgrade: %v", err)
		return
	}
	defer conn.Close()
	for {
		var msg pickMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Action {
		case "pick":
			c := w.AddPoint(geom.Point{X: msg.Lon, Y: msg.Lat})
			msg.Color = hexColor(c)
		case "clear":
			w.ClearPoints()
		case "plot":
			if err := w.PlotTimeSeries(r.Context()); err != nil {
				w.Log.Errorf("glacierflow: plotting time series: %v", err)
				msg.Error = err.Error()
			}
		default:
			msg.Error = fmt.Sprintf("unknown action %q", msg.Action)
		}
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// plotCache memoizes rendered figures for repeated requests with an
// unchanged point set and configuration.
var (
	plotCacheMx sync.Mutex
	plotCache   = lru.New(20)
)

func (w *Widget) plotHandler(rw http.ResponseWriter, r *http.Request) {
	w.mx.Lock()
	key := hash.Hash(struct {
		Config Config
		Points []geom.Point
	}{w.config, w.points})
	w.mx.Unlock()

	plotCacheMx.Lock()
	cached, ok := plotCache.Get(key)
	plotCacheMx.Unlock()
	var png []byte
	if ok {
		png = cached.([]byte)
	} else {
		if err := w.PlotTimeSeries(r.Context()); err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		var err error
		png, err = w.fig.Draw()
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		plotCacheMx.Lock()
		plotCache.Add(key, png)
		plotCacheMx.Unlock()
	}
	rw.Header().Set("Content-Type", "image/png")
	rw.Write(png)
}

// coverageMapData builds the web-Mercator map data for the datacube
// footprints, colored by image-pair count, once.
func (w *Widget) coverageMapData() (*carto.MapData, error) {
	w.coverageOnce.Do(func() {
		sr4326, err := datacube.SRFromEPSG("4326")
		if err != nil {
			w.coverageErr = err
			return
		}
		webSR, err := datacube.SRFromEPSG("3857")
		if err != nil {
			w.coverageErr = err
			return
		}
		trans, err := sr4326.NewTransform(webSR)
		if err != nil {
			w.coverageErr = err
			return
		}
		entries := w.tools.Catalog().Entries()
		m := carto.NewMapData(len(entries), carto.LinCutoff)
		for i, e := range entries {
			g, err := e.Footprint.Transform(trans)
			if err != nil {
				w.coverageErr = fmt.Errorf("glacierflow: projecting footprint %d: %v", i, err)
				return
			}
			m.Shapes[i] = g
			m.Data[i] = e.PairCount
		}
		m.Cmap.AddArray(m.Data)
		m.Cmap.Set()
		w.coverage = m
	})
	return w.coverage, w.coverageErr
}

// coverageTileHandler serves map tiles of the datacube footprints at
// /coverage/{z}/{x}/{y}.png.
func (w *Widget) coverageTileHandler(rw http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/coverage/"), ".png"), "/")
	if len(parts) != 3 {
		http.Error(rw, "want /coverage/{z}/{x}/{y}.png", http.StatusBadRequest)
		return
	}
	var z, x, y int
	for i, dst := range []*int{&z, &x, &y} {
		if _, err := fmt.Sscanf(parts[i], "%d", dst); err != nil {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
	}
	m, err := w.coverageMapData()
	if err != nil {
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Content-Type", "image/png")
	if err := m.WriteGoogleMapTile(rw, z, x, y); err != nil {
		http.Error(rw, err.Error(), http.StatusInternalServerError)
	}
}

// legendHandler serves a colormap legend for the velocity mosaic
// layer (0 - 1000 m/yr with the top of the range compressed).
func (w *Widget) legendHandler(rw http.ResponseWriter, r *http.Request) {
	const maxSpeed = 1000.0
	base := moreland.ExtendedBlackBody()
	over, err := moreland.NewLuminance([]color.Color{
		color.NRGBA{G: 176, A: 255},
		color.NRGBA{G: 255, A: 255},
	})
	if err != nil {
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}
	cm := &plotextra.BrokenColorMap{
		Base:     base,
		OverFlow: palette.Reverse(over),
	}
	cm.SetMin(0)
	cm.SetMax(maxSpeed)
	cutpt := 0.9 * maxSpeed
	cm.SetHighCut(cutpt)

	p, err := plot.New()
	if err != nil {
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}
	p.Add(&plotter.ColorBar{ColorMap: cm})
	p.X.Scale = plotextra.BrokenScale{HighCut: cutpt, HighCutFraction: 0.9}
	p.X.Tick.Marker = plotextra.BrokenTicks{HighCut: cutpt}
	p.X.Label.Text = "Speed (m/yr)"
	p.HideY()
	p.X.Padding = 0

	img := vgimg.New(300, 40)
	p.Draw(draw.New(img))
	rw.Header().Set("Content-Type", "image/png")
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(rw); err != nil {
		w.Log.Errorf("glacierflow: writing legend: %v", err)
	}
}

// cubesHandler reports the open-cubes mapping as JSON.
func (w *Widget) cubesHandler(rw http.ResponseWriter, r *http.Request) {
	type cubeInfo struct {
		EPSG      string   `json:"epsg"`
		Pairs     int      `json:"pairs"`
		Width     int      `json:"width"`
		Height    int      `json:"height"`
		Variables []string `json:"variables"`
	}
	out := make(map[string]cubeInfo)
	for uri, c := range w.tools.OpenCubes() {
		out[uri] = cubeInfo{
			EPSG:      c.EPSG,
			Pairs:     len(c.MidDate),
			Width:     len(c.X),
			Height:    len(c.Y),
			Variables: c.Variables(),
		}
	}
	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(out); err != nil {
		w.Log.Errorf("glacierflow: encoding open cubes: %v", err)
	}
}

func (w *Widget) clearHandler(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(rw, "POST required", http.StatusMethodNotAllowed)
		return
	}
	w.ClearPoints()
	rw.WriteHeader(http.StatusNoContent)
}

var mapPageTemplate = template.Must(template.New("map").Parse(`<!DOCTYPE html>
<html>
<head>
<title>GlacierFlow</title>
<meta charset="utf-8"/>
<link rel="stylesheet" href="https://unpkg.com/leaflet@1.7.1/dist/leaflet.css"/>
<script src="https://unpkg.com/leaflet@1.7.1/dist/leaflet.js"></script>
<style>
body { margin: 0; font-family: sans-serif; }
#map { height: 60vh; cursor: crosshair; }
#controls { padding: 0.5em; }
#plot { max-width: 100%; }
.pick-marker { font-size: 2rem; font-weight: bold; transform: rotate(45deg); }
</style>
</head>
<body>
<div id="map"></div>
<div id="controls">
  <button id="clear">Clear Points</button>
  <button id="plot-btn">Make Plot</button>
  <img id="legend" src="/legend.png" alt="legend"/>
</div>
<img id="plot" src="/plot.png" alt="time series plot"/>
<script>
var map = L.map('map', {doubleClickZoom: false}).setView([64.20, -49.43], 3);
L.tileLayer('{{.BaseTiles}}', {attribution: 'Imagery provided by ESRI'}).addTo(map);
L.tileLayer('{{.VelocityTiles}}', {attribution: '{{.Attribution}}'}).addTo(map);
L.tileLayer('/coverage/{z}/{x}/{y}.png', {opacity: 0.4}).addTo(map);

var markers = L.layerGroup().addTo(map);
var ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
var pending = [];

map.on('dblclick', function(e) {
	pending.push(e.latlng);
	ws.send(JSON.stringify({action: 'pick', lon: e.latlng.lng, lat: e.latlng.lat}));
});

ws.onmessage = function(ev) {
	var msg = JSON.parse(ev.data);
	if (msg.error) { alert(msg.error); return; }
	if (msg.action === 'pick') {
		var ll = pending.shift();
		var icon = L.divIcon({className: 'pick-marker', html:
			'<span style="color:' + msg.color + '">+</span>', iconSize: [0, 0]});
		markers.addLayer(L.marker(ll, {icon: icon}));
	} else if (msg.action === 'plot') {
		document.getElementById('plot').src = '/plot.png?t=' + Date.now();
	} else if (msg.action === 'clear') {
		markers.clearLayers();
		document.getElementById('plot').src = '/plot.png?t=' + Date.now();
	}
};

document.getElementById('clear').onclick = function() {
	ws.send(JSON.stringify({action: 'clear'}));
};
document.getElementById('plot-btn').onclick = function() {
	ws.send(JSON.stringify({action: 'plot'}));
};
</script>
</body>
</html>
`))

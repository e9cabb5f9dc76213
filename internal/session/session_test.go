package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-mapview/internal/crs"
	"github.com/joeblew999/plat-mapview/internal/errs"
	"github.com/joeblew999/plat-mapview/internal/featurestore"
	"github.com/joeblew999/plat-mapview/internal/layer"
	"github.com/joeblew999/plat-mapview/internal/service"
	"github.com/joeblew999/plat-mapview/internal/spatial"
	"github.com/joeblew999/plat-mapview/internal/style"
)

const capabilities = `<?xml version="1.0"?>
<WMS_Capabilities version="1.3.0">
  <Service><Title>Test</Title></Service>
  <Capability><Layer>
    <CRS>EPSG:4326</CRS><CRS>EPSG:3857</CRS>
    <Layer><Name>roads</Name><Title>Roads</Title></Layer>
    <Layer><Name>parcels</Name><Title>Parcels</Title></Layer>
  </Layer></Capability>
</WMS_Capabilities>`

const lineCollection = `{"type":"FeatureCollection","features":[
  {"type":"Feature","id":"a","properties":{"name":"Vistula"},"geometry":{"type":"LineString","coordinates":[[21,52],[21.001,52.0005],[21.002,52],[21.003,52.0005],[21.004,52]]}},
  {"type":"Feature","id":"b","properties":{"name":"Oder"},"geometry":{"type":"Point","coordinates":[14.5,53.4]}}
]}`

func upstream(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/wms", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(capabilities))
	})
	mux.HandleFunc("/api/v1/feeds/rivers", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/geo+json")
		w.Write([]byte(lineCollection))
	})
	mux.HandleFunc("/api/v1/feeds/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newSession(t *testing.T, srv *httptest.Server, dataDir string) *Session {
	t.Helper()
	cfg := Config{SimplifyMinZoom: 4, SimplifyMaxZoom: 14, SimplifyMaxTolerance: 0.01}
	deps := Deps{Logger: zerolog.Nop()}
	if srv != nil {
		cfg.FeedBaseURL = srv.URL
		deps.Client = srv.Client()
	}
	if dataDir != "" {
		deps.Sources = service.NewSourceService(dataDir)
	}
	s := New(cfg, deps)
	t.Cleanup(s.Close)
	return s
}

func TestUploadMalformedLeavesRegistryUnchanged(t *testing.T) {
	s := newSession(t, nil, "")
	for _, body := range []string{"not json", `{"type":"Feature","geometry":null,"properties":{}}`} {
		if _, err := s.Upload("bad", strings.NewReader(body)); !errors.Is(err, errs.ErrParse) {
			t.Fatalf("%q: err=%v want ErrParse", body, err)
		}
	}
	if len(s.Layers()) != 0 {
		t.Fatalf("layers=%d", len(s.Layers()))
	}
}

func TestUploadAndStyle(t *testing.T) {
	s := newSession(t, nil, "")
	rec, err := s.Upload("Rivers", strings.NewReader(lineCollection))
	if err != nil {
		t.Fatal(err)
	}
	if rec.Kind != layer.VectorLocal || !rec.Active || !rec.HasAttributes || rec.ZIndex != 1 {
		t.Fatalf("rec=%+v", rec)
	}
	if !s.Cache.Has(rec.ID) {
		t.Fatal("originals not captured")
	}

	if _, err := s.SetLabelColumn(rec.ID, "name"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SetColor(rec.ID, style.Color{R: 200, G: 10, B: 10, A: 0.5}); err != nil {
		t.Fatal(err)
	}
	_, feats, err := s.StyledFeatures(rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(feats) != 2 || feats[0].Style.Label != "Vistula" || feats[0].Style.Fill != "rgba(200,10,10,0.5)" || feats[0].Style.Stroke != "rgba(200,10,10,1)" {
		t.Fatalf("styled=%+v", feats[0].Style)
	}
}

func TestZoomDrivesSimplification(t *testing.T) {
	s := newSession(t, nil, "")
	rec, _ := s.Upload("Rivers", strings.NewReader(lineCollection))
	vs, _ := rec.Vector()

	s.SetView(ViewUpdate{Zoom: ptr(4.0)})
	f, _ := vs.Get("a")
	if n := len(f.Geometry.(orb.LineString)); n != 2 {
		t.Fatalf("points at zoom 4 = %d want 2", n)
	}

	s.SetView(ViewUpdate{Zoom: ptr(14.0)})
	f, _ = vs.Get("a")
	orig, _ := s.Cache.Original(rec.ID, "a")
	if !orb.Equal(f.Geometry, orig) || len(orig.(orb.LineString)) != 5 {
		t.Fatal("restore at max zoom did not return the original")
	}
}

func TestRemovePrunesCache(t *testing.T) {
	s := newSession(t, nil, "")
	rec, _ := s.Upload("Rivers", strings.NewReader(lineCollection))
	if _, err := s.Remove(rec.ID); err != nil {
		t.Fatal(err)
	}
	if s.Cache.Has(rec.ID) || s.Cache.Len() != 0 {
		t.Fatal("geometry cache not pruned")
	}
}

func TestLoadedAfterRemoveLeavesCacheEmpty(t *testing.T) {
	s := newSession(t, nil, "")
	rec, _ := s.Upload("Rivers", strings.NewReader(lineCollection))
	if _, err := s.Remove(rec.ID); err != nil {
		t.Fatal(err)
	}

	// The load hook of a removed layer can still run after Remove.
	s.onLoaded(rec, featurestore.Outcome{Features: 2})
	if s.Cache.Has(rec.ID) || s.Cache.Len() != 0 {
		t.Fatal("removed layer tracked again")
	}
}

func TestAddRemoteLayer(t *testing.T) {
	srv := upstream(t)
	s := newSession(t, srv, "")

	layers, err := s.FetchAvailableLayers(context.Background(), srv.URL+"/wms")
	if err != nil || len(layers) != 2 || layers[0].Name != "roads" {
		t.Fatalf("layers=%v err=%v", layers, err)
	}

	rec, err := s.AddRemoteLayer(context.Background(), RemoteLayer{ServiceURL: srv.URL + "/wms", LayerName: "roads", Active: true})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Kind != layer.TiledRemote || rec.Name != "Roads" || rec.ID != "roads" {
		t.Fatalf("rec=%+v", rec)
	}

	raw, err := s.TileURL(rec.ID, orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1000, 1000}}, 256, 256)
	if err != nil {
		t.Fatal(err)
	}
	u, _ := url.Parse(raw)
	if u.Query().Get("CRS") != crs.WebMercator || u.Query().Get("LAYERS") != "roads" {
		t.Fatalf("tile url=%s", raw)
	}

	if _, err := s.AddRemoteLayer(context.Background(), RemoteLayer{ServiceURL: srv.URL + "/wms", LayerName: "buildings"}); !errors.Is(err, errs.ErrLayerNotFound) {
		t.Fatalf("err=%v", err)
	}
	if len(s.Layers()) != 1 {
		t.Fatalf("failed negotiation mutated the registry: %d layers", len(s.Layers()))
	}
	if _, err := s.TileURL("nope", orb.Bound{}, 256, 256); !errors.Is(err, errs.ErrUnknownLayer) {
		t.Fatalf("err=%v", err)
	}
}

func TestFeedLayerLazyLoad(t *testing.T) {
	srv := upstream(t)
	s := newSession(t, srv, "")

	rec, err := s.AddFeedLayer("Rivers", srv.URL+"/api/v1/feeds/rivers", style.Spec{LabelColumn: "name"}, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.ZoomToLayerExtent(rec.ID); !errors.Is(err, errs.ErrInvalidGeometry) {
		t.Fatalf("empty layer: err=%v", err)
	}
	if len(s.View.Fits()) != 0 {
		t.Fatal("empty layer issued a fit")
	}

	s.Toggle(rec.ID)
	s.Registry.Wait()

	got, _ := s.Layer(rec.ID)
	if got.State != layer.Loaded || !got.HasAttributes || got.Loading {
		t.Fatalf("rec=%+v", got)
	}
	if !s.Cache.Has(rec.ID) {
		t.Fatal("loaded features not registered with the simplifier")
	}

	m, err := s.ZoomToFeature(spatial.Criteria{Properties: map[string]any{"name": "Oder"}})
	if err != nil {
		t.Fatal(err)
	}
	if m.LayerID != rec.ID || len(s.View.Fits()) != 1 {
		t.Fatalf("match=%+v fits=%d", m, len(s.View.Fits()))
	}
}

func TestFeedLayerFetchFailure(t *testing.T) {
	srv := upstream(t)
	s := newSession(t, srv, "")

	rec, _ := s.AddFeedLayer("Broken", srv.URL+"/api/v1/feeds/broken", style.Spec{}, false)
	s.Toggle(rec.ID)
	s.Registry.Wait()

	got, _ := s.Layer(rec.ID)
	vs, _ := got.Vector()
	if got.Loading || got.HasAttributes || !got.Active || vs.Len() != 0 {
		t.Fatalf("rec=%+v features=%d", got, vs.Len())
	}
}

func TestVectorTile(t *testing.T) {
	s := newSession(t, nil, "")
	rec, _ := s.Upload("Rivers", strings.NewReader(lineCollection))

	data, err := s.VectorTile(rec.ID, 0, 0, 0)
	if err != nil || len(data) == 0 {
		t.Fatalf("data=%d err=%v", len(data), err)
	}
	if _, err := s.VectorTile(rec.ID, 1, 2, 0); err == nil {
		t.Fatal("x outside zoom 1 accepted")
	}
}

func TestBootstrap(t *testing.T) {
	srv := upstream(t)
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "sources"), 0755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(dir, "sources", "rivers.geojson"), []byte(lineCollection), 0644)

	yml := `
feeds:
  - name: rivers
    table: JCWPRzeczne
    nameColumn: Nazwa_JCWP
layers:
  - name: Rivers feed
    kind: vector-remote
    feed: rivers
    fill: "#336699"
    labelColumn: name
  - name: Roads
    kind: tiled-remote
    service: ` + srv.URL + `/wms
    layer: roads
    active: true
  - name: Local rivers
    kind: vector-local
    file: rivers.geojson
  - name: Missing
    kind: tiled-remote
    service: ` + srv.URL + `/wms
    layer: nope
`
	path := filepath.Join(dir, "layers.yaml")
	os.WriteFile(path, []byte(yml), 0644)

	b, err := LoadBootstrap(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Feeds) != 1 || b.Feeds[0].NameColumn != "Nazwa_JCWP" {
		t.Fatalf("feeds=%+v", b.Feeds)
	}

	s := newSession(t, srv, dir)
	err = s.Bootstrap(context.Background(), b)
	if !errors.Is(err, errs.ErrLayerNotFound) {
		t.Fatalf("err=%v want the missing layer reported", err)
	}

	snap := s.Layers()
	if len(snap) != 3 {
		t.Fatalf("layers=%d", len(snap))
	}
	if snap[0].Name != "Rivers feed" || snap[1].Name != "Roads" || snap[2].Name != "Local rivers" {
		t.Fatalf("order=%q,%q,%q", snap[0].Name, snap[1].Name, snap[2].Name)
	}
	if snap[0].APIURL != srv.URL+"/api/v1/feeds/rivers" || snap[0].Style.Fill == nil || snap[0].Style.Fill.B != 0x99 {
		t.Fatalf("feed layer=%+v", snap[0])
	}
	if snap[2].Active {
		t.Fatal("local layer should follow its configured visibility")
	}

	if b, err := LoadBootstrap(filepath.Join(dir, "absent.yaml")); err != nil || len(b.Layers) != 0 {
		t.Fatalf("missing file: %+v %v", b, err)
	}
}

func ptr[T any](v T) *T { return &v }

//go:build integration

// Integration test against a real DuckDB with the spatial extension.
//
// Run: go test -tags=integration ./internal/server/
package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

const feedYAML = `feeds:
  - name: rivers
    table: rivers
    nameColumn: Nazwa_PL
layers:
  - name: Rivers
    kind: vector-remote
    feed: rivers
`

func TestFeedLayerLoadsFromDuckDB(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "layers.yaml"), feedYAML)

	var handler http.Handler = http.NotFoundHandler()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)

	cfg := Config{DataDir: dir, LayersFile: "layers.yaml", Logger: zerolog.Nop()}
	cfg.Session.FeedBaseURL = ts.URL
	s, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	if s.db == nil {
		t.Skip("duckdb not available")
	}
	handler = s

	ctx := context.Background()
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE rivers AS
		SELECT * FROM (VALUES
			(1, 'Wisła', ST_GeomFromText('LINESTRING(21 52, 21.1 52.1)')),
			(2, 'Odra', NULL)
		) t(id, Nazwa_PL, geom)`); err != nil {
		t.Skipf("spatial extension unavailable: %v", err)
	}
	if err := s.Prepare(ctx); err != nil {
		t.Fatalf("prepare: %v", err)
	}

	_, body := get(t, ts, "/api/v1/feeds/rivers")
	if !strings.Contains(body, `"name":"Wisła"`) || strings.Contains(body, "Odra") {
		t.Fatalf("feed=%s", body)
	}

	resp, err := ts.Client().Post(ts.URL+"/api/v1/map/layers/rivers/toggle", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	s.Session().Registry.Wait()

	rec, err := s.Session().Layer("rivers")
	if err != nil {
		t.Fatal(err)
	}
	vs, _ := rec.Vector()
	if rec.State != "loaded" || vs.Len() != 1 || !rec.HasAttributes {
		t.Fatalf("layer=%+v features=%d", rec, vs.Len())
	}
}

package featurestore

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-mapview/internal/errs"
	"github.com/joeblew999/plat-mapview/internal/layer"
)

const rivers = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "id": 1, "properties": {"id": 1, "name": "Wisła"},
     "geometry": {"type": "LineString", "coordinates": [[18.6, 54.3], [19.0, 52.0], [21.0, 52.2]]}},
    {"type": "Feature", "properties": {"id": 2, "name": "Odra"},
     "geometry": {"type": "LineString", "coordinates": [[14.5, 53.4], [16.9, 51.1]]}}
  ]
}`

func serve(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLoadAppendsFeatures(t *testing.T) {
	srv := serve(t, http.StatusOK, rivers)
	a := New(srv.Client(), zerolog.Nop())
	dst := layer.NewVectorSource()

	out := a.Load(context.Background(), srv.URL, dst)
	if out.Err != nil {
		t.Fatal(out.Err)
	}
	if out.Features != 2 || dst.Len() != 2 {
		t.Fatalf("features=%d len=%d want 2", out.Features, dst.Len())
	}
	if _, ok := dst.Get("1"); !ok {
		t.Fatal("feature id 1 should be kept")
	}
	if len(out.Columns) != 2 {
		t.Fatalf("columns=%v", out.Columns)
	}
}

func TestLoadServerErrorResolvesEmpty(t *testing.T) {
	srv := serve(t, http.StatusInternalServerError, `{"error":"boom"}`)
	a := New(srv.Client(), zerolog.Nop())
	dst := layer.NewVectorSource()

	out := a.Load(context.Background(), srv.URL, dst)
	if !errors.Is(out.Err, errs.ErrNetwork) {
		t.Fatalf("err=%v want ErrNetwork", out.Err)
	}
	if out.Features != 0 || dst.Len() != 0 {
		t.Fatal("no features may be appended on failure")
	}
}

func TestLoadMalformedBody(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"type": "FeatureCollection", "features": [`)
	a := New(srv.Client(), zerolog.Nop())
	dst := layer.NewVectorSource()

	out := a.Load(context.Background(), srv.URL, dst)
	if !errors.Is(out.Err, errs.ErrParse) {
		t.Fatalf("err=%v want ErrParse", out.Err)
	}
	if dst.Len() != 0 {
		t.Fatal("no features may be appended on failure")
	}
}

func TestLoadUnreachable(t *testing.T) {
	srv := serve(t, http.StatusOK, rivers)
	url := srv.URL
	srv.Close()

	out := New(nil, zerolog.Nop()).Load(context.Background(), url, layer.NewVectorSource())
	if !errors.Is(out.Err, errs.ErrNetwork) {
		t.Fatalf("err=%v want ErrNetwork", out.Err)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, doc := range []string{"not json", `{"type":"Feature","geometry":null,"properties":{}}`} {
		if _, err := Decode(strings.NewReader(doc)); !errors.Is(err, errs.ErrParse) {
			t.Fatalf("%q: err=%v want ErrParse", doc, err)
		}
	}
}

package registry

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-mapview/internal/errs"
	"github.com/joeblew999/plat-mapview/internal/featurestore"
	"github.com/joeblew999/plat-mapview/internal/layer"
	"github.com/joeblew999/plat-mapview/internal/style"
)

// gatedLoader blocks every load until release is closed.
type gatedLoader struct {
	calls   atomic.Int32
	release chan struct{}
	fail    bool
}

func newGatedLoader() *gatedLoader {
	return &gatedLoader{release: make(chan struct{})}
}

func (l *gatedLoader) Load(ctx context.Context, url string, dst *layer.VectorSource) featurestore.Outcome {
	l.calls.Add(1)
	<-l.release
	if l.fail {
		return featurestore.Outcome{Err: errs.ErrNetwork}
	}
	f := geojson.NewFeature(orb.Point{21, 52})
	f.Properties["name"] = "Warsaw"
	dst.Append(f)
	return featurestore.Outcome{Features: 1, Columns: dst.Columns()}
}

func remote(name string) layer.Record {
	return layer.Record{Name: name, Kind: layer.VectorRemote, APIURL: "http://feeds.test/" + name}
}

func TestAddAssignsIDAndZIndex(t *testing.T) {
	r := New(nil, nil, zerolog.Nop())
	defer r.Close()

	a, err := r.Add(layer.Record{Name: "Ecological Corridors", Kind: layer.VectorLocal})
	if err != nil {
		t.Fatal(err)
	}
	if a.ID != "ecological_corridors" {
		t.Fatalf("id=%q", a.ID)
	}
	b, _ := r.Add(layer.Record{Name: "Ecological corridors!", Kind: layer.VectorLocal})
	if b.ID != "ecological_corridors_2" {
		t.Fatalf("clash id=%q", b.ID)
	}
	if _, err := r.Add(layer.Record{ID: a.ID, Name: "dup", Kind: layer.VectorLocal}); err == nil {
		t.Fatal("duplicate id should fail")
	}

	snap := r.Snapshot()
	if snap[0].ID != b.ID || snap[0].ZIndex != 2 || snap[1].ZIndex != 1 {
		t.Fatalf("new layer should be on top: %+v", snap)
	}
	if snap[1].State != layer.LoadedEmpty || snap[1].Style.StrokeWidth != style.DefaultStrokeWidth {
		t.Fatalf("defaults not applied: %+v", snap[1])
	}
}

func TestAddValidation(t *testing.T) {
	r := New(nil, nil, zerolog.Nop())
	defer r.Close()

	cases := []layer.Record{
		{Name: "x", Kind: "raster"},
		{Kind: layer.VectorLocal},
		{Name: "no url", Kind: layer.VectorRemote},
	}
	for _, rec := range cases {
		if _, err := r.Add(rec); err == nil {
			t.Fatalf("expected error for %+v", rec)
		}
	}
	if r.Len() != 0 {
		t.Fatalf("failed adds mutated the registry: %d", r.Len())
	}
}

func TestToggleIdempotenceAndSingleFetch(t *testing.T) {
	loader := newGatedLoader()
	r := New(loader, nil, zerolog.Nop())
	defer r.Close()

	rec, _ := r.Add(remote("rivers"))
	if rec.State != layer.Unloaded || rec.Active {
		t.Fatalf("initial=%+v", rec)
	}

	on, _ := r.Toggle(rec.ID)
	if !on.Active || !on.Loading || on.State != layer.Loading {
		t.Fatalf("after first toggle=%+v", on)
	}
	off, _ := r.Toggle(rec.ID)
	if off.Active {
		t.Fatal("second toggle should deactivate")
	}
	for i := 0; i < 4; i++ {
		r.Toggle(rec.ID)
	}
	if got, _ := r.Get(rec.ID); got.Active != rec.Active {
		t.Fatalf("even number of toggles changed active: %+v", got)
	}

	close(loader.release)
	r.Wait()

	if n := loader.calls.Load(); n != 1 {
		t.Fatalf("fetches=%d want 1", n)
	}
	got, _ := r.Get(rec.ID)
	if got.Loading || !got.HasAttributes || got.State != layer.Loaded {
		t.Fatalf("after load=%+v", got)
	}
	if got.Active {
		t.Fatal("load completion must not change active")
	}

	r.Toggle(rec.ID)
	r.Wait()
	if n := loader.calls.Load(); n != 1 {
		t.Fatalf("reactivation refetched: %d", n)
	}
}

func TestToggleLoadFailure(t *testing.T) {
	loader := newGatedLoader()
	loader.fail = true
	close(loader.release)

	var loaded atomic.Int32
	r := New(loader, nil, zerolog.Nop())
	r.SetHooks(Hooks{OnLoaded: func(rec layer.Record, out featurestore.Outcome) {
		if out.Err != nil {
			loaded.Add(1)
		}
	}})
	defer r.Close()

	rec, _ := r.Add(remote("broken"))
	r.Toggle(rec.ID)
	r.Wait()

	got, _ := r.Get(rec.ID)
	if got.Loading || got.HasAttributes || !got.Active || got.State != layer.LoadedEmpty {
		t.Fatalf("after failed load=%+v", got)
	}
	if loaded.Load() != 1 {
		t.Fatal("OnLoaded hook not called with the failure")
	}

	r.Toggle(rec.ID)
	r.Toggle(rec.ID)
	r.Wait()
	if loader.calls.Load() != 1 {
		t.Fatalf("failed layer refetched: %d", loader.calls.Load())
	}
}

func TestToggleHTTP500(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := New(featurestore.New(srv.Client(), zerolog.Nop()), nil, zerolog.Nop())
	defer r.Close()

	rec, _ := r.Add(layer.Record{Name: "corridors", Kind: layer.VectorRemote, APIURL: srv.URL + "/feeds/korytarze"})
	r.Toggle(rec.ID)
	r.Wait()

	got, _ := r.Get(rec.ID)
	if got.Loading || got.HasAttributes || !got.Active {
		t.Fatalf("got %+v", got)
	}
	vs, _ := got.Vector()
	if vs.Len() != 0 {
		t.Fatalf("features=%d want 0", vs.Len())
	}
}

func TestActiveRemoteLayerLoadsOnAdd(t *testing.T) {
	loader := newGatedLoader()
	close(loader.release)
	r := New(loader, nil, zerolog.Nop())
	defer r.Close()

	rec := remote("preloaded")
	rec.Active = true
	added, _ := r.Add(rec)
	if !added.Loading {
		t.Fatalf("added=%+v", added)
	}
	r.Wait()
	if got, _ := r.Get(added.ID); got.State != layer.Loaded {
		t.Fatalf("state=%s", got.State)
	}
}

func TestReorderPermutation(t *testing.T) {
	r := New(nil, nil, zerolog.Nop())
	defer r.Close()
	const n = 7
	for i := 0; i < n; i++ {
		r.Add(layer.Record{Name: string(rune('a' + i)), Kind: layer.TiledRemote})
	}

	rng := rand.New(rand.NewSource(1))
	for round := 0; round < 50; round++ {
		from, to := rng.Intn(n), rng.Intn(n)
		before := r.Snapshot()
		out, err := r.Reorder(from, to)
		if err != nil {
			t.Fatal(err)
		}
		if out[to].ID != before[from].ID {
			t.Fatalf("round %d: moved record not at destination", round)
		}
		for i, rec := range out {
			if rec.ZIndex != n-i {
				t.Fatalf("round %d: position %d has zIndex %d", round, i, rec.ZIndex)
			}
		}
	}
}

func TestReorderOutOfRange(t *testing.T) {
	r := New(nil, nil, zerolog.Nop())
	defer r.Close()
	r.Add(layer.Record{Name: "only", Kind: layer.TiledRemote})

	for _, mv := range [][2]int{{-1, 0}, {0, 1}, {1, 0}} {
		if _, err := r.Reorder(mv[0], mv[1]); !errors.Is(err, errs.ErrIndexOutOfRange) {
			t.Fatalf("%v: err=%v", mv, err)
		}
	}
}

func TestSnapshotsAreImmutable(t *testing.T) {
	r := New(nil, nil, zerolog.Nop())
	defer r.Close()
	rec, _ := r.Add(layer.Record{Name: "parcels", Kind: layer.VectorLocal})

	before := r.Snapshot()
	r.Rename(rec.ID, "Cadastral parcels")
	r.SetColor(rec.ID, style.Color{R: 255, A: 1})

	if before[0].Name != "parcels" || before[0].Style.Fill != nil {
		t.Fatalf("snapshot changed: %+v", before[0])
	}
	after, _ := r.Get(rec.ID)
	if after.Name != "Cadastral parcels" || after.Style.Fill == nil || after.Style.Fill.R != 255 {
		t.Fatalf("after=%+v", after)
	}
}

func TestRestyleForcesRedraw(t *testing.T) {
	r := New(nil, nil, zerolog.Nop())
	defer r.Close()
	vs := layer.NewVectorSource()
	f := geojson.NewFeature(orb.Point{1, 2})
	f.Properties["name"] = "a"
	vs.Append(f)
	rec, _ := r.Add(layer.Record{Name: "points", Kind: layer.VectorLocal, Source: vs})

	rev := vs.Revision()
	r.SetLabelColumn(rec.ID, "name")
	r.SetColor(rec.ID, style.Color{G: 200, A: 0.5})
	if vs.Revision() != rev+2 {
		t.Fatalf("revision=%d want %d", vs.Revision(), rev+2)
	}
	got, _ := r.Get(rec.ID)
	if got.Style.LabelColumn != "name" {
		t.Fatalf("label=%q", got.Style.LabelColumn)
	}
	if feat, _ := vs.Get(layer.FeatureID(f)); feat.Properties["name"] != "a" {
		t.Fatal("restyle touched feature data")
	}
}

func TestUnknownLayer(t *testing.T) {
	r := New(nil, nil, zerolog.Nop())
	defer r.Close()

	ops := map[string]func() error{
		"toggle": func() error { _, err := r.Toggle("nope"); return err },
		"rename": func() error { _, err := r.Rename("nope", "x"); return err },
		"color":  func() error { _, err := r.SetColor("nope", style.Color{}); return err },
		"label":  func() error { _, err := r.SetLabelColumn("nope", "x"); return err },
		"remove": func() error { _, err := r.Remove("nope"); return err },
	}
	for name, op := range ops {
		if err := op(); !errors.Is(err, errs.ErrUnknownLayer) {
			t.Fatalf("%s: err=%v", name, err)
		}
	}
}

func TestRemoveRunsHookAndRenumbers(t *testing.T) {
	r := New(nil, nil, zerolog.Nop())
	defer r.Close()
	var removed []string
	r.SetHooks(Hooks{OnRemove: func(rec layer.Record) { removed = append(removed, rec.ID) }})

	a, _ := r.Add(layer.Record{Name: "a", Kind: layer.VectorLocal})
	r.Add(layer.Record{Name: "b", Kind: layer.VectorLocal})
	r.Add(layer.Record{Name: "c", Kind: layer.VectorLocal})

	if _, err := r.Remove("b"); err != nil {
		t.Fatal(err)
	}
	snap := r.Snapshot()
	if len(snap) != 2 || snap[0].ID != "c" || snap[0].ZIndex != 2 || snap[1].ID != a.ID || snap[1].ZIndex != 1 {
		t.Fatalf("snapshot=%+v", snap)
	}
	if len(removed) != 1 || removed[0] != "b" {
		t.Fatalf("hook calls=%v", removed)
	}
}

func TestMutationsPublishEvents(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	r := New(nil, bus, zerolog.Nop())
	defer r.Close()
	rec, _ := r.Add(layer.Record{Name: "roads", Kind: layer.TiledRemote})
	r.Toggle(rec.ID)
	r.Remove(rec.ID)

	want := []string{ActionCreated, ActionUpdated, ActionDeleted}
	for _, action := range want {
		e := <-ch
		if e.Action != action || e.ID != rec.ID || e.Resource != "layers" {
			t.Fatalf("event=%+v want %s", e, action)
		}
	}
}

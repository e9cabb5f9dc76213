package layer

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func feature(id any, g orb.Geometry, props map[string]any) *geojson.Feature {
	f := geojson.NewFeature(g)
	f.ID = id
	for k, v := range props {
		f.Properties[k] = v
	}
	return f
}

func TestAppendGeneratesIDs(t *testing.T) {
	s := NewVectorSource()
	ids := s.Append(
		feature(nil, orb.Point{1, 1}, nil),
		feature("river-1", orb.Point{2, 2}, nil),
		feature("river-1", orb.Point{3, 3}, nil),
		feature(7.0, orb.Point{4, 4}, nil),
	)
	if len(ids) != 4 {
		t.Fatalf("ids=%v", ids)
	}
	if ids[0] == "" {
		t.Fatal("missing id should be generated")
	}
	if ids[1] != "river-1" {
		t.Fatalf("explicit id changed: %q", ids[1])
	}
	if ids[2] == "river-1" {
		t.Fatal("duplicate id must be replaced")
	}
	if ids[3] != "7" {
		t.Fatalf("numeric id=%q want 7", ids[3])
	}
	if s.Revision() != 1 {
		t.Fatalf("revision=%d want 1", s.Revision())
	}
}

func TestFeaturesAreCopies(t *testing.T) {
	s := NewVectorSource()
	s.Append(feature("a", orb.Point{1, 1}, nil))

	got := s.Features()
	got[0].Geometry = orb.Point{9, 9}

	f, _ := s.Get("a")
	if f.Geometry.(orb.Point) != (orb.Point{1, 1}) {
		t.Fatal("callers must not be able to replace stored geometry")
	}
}

func TestSwap(t *testing.T) {
	s := NewVectorSource()
	s.Append(feature("a", orb.LineString{{0, 0}, {1, 1}}, nil))

	if !s.Swap("a", orb.LineString{{0, 0}, {2, 2}}) {
		t.Fatal("swap should find feature")
	}
	if s.Swap("missing", orb.Point{}) {
		t.Fatal("swap on missing id should report false")
	}
	f, _ := s.Get("a")
	if !orb.Equal(f.Geometry, orb.LineString{{0, 0}, {2, 2}}) {
		t.Fatalf("geometry=%v", f.Geometry)
	}
}

func TestExtentSkipsMissingGeometry(t *testing.T) {
	s := NewVectorSource()
	if _, n := s.Extent(); n != 0 {
		t.Fatalf("empty source n=%d", n)
	}

	s.Append(
		feature("a", orb.Point{1, 5}, nil),
		&geojson.Feature{ID: "b", Type: "Feature"},
		feature("c", orb.LineString{{-2, 0}, {3, 1}}, nil),
	)
	b, n := s.Extent()
	if n != 2 {
		t.Fatalf("n=%d want 2", n)
	}
	want := orb.Bound{Min: orb.Point{-2, 0}, Max: orb.Point{3, 5}}
	if b != want {
		t.Fatalf("extent=%v want %v", b, want)
	}
}

func TestColumns(t *testing.T) {
	s := NewVectorSource()
	s.Append(
		feature("a", orb.Point{}, map[string]any{"name": "x", "id": 1}),
		feature("b", orb.Point{}, map[string]any{"kind": "y"}),
	)
	cols := s.Columns()
	want := []string{"id", "kind", "name"}
	if len(cols) != len(want) {
		t.Fatalf("cols=%v", cols)
	}
	for i := range want {
		if cols[i] != want[i] {
			t.Fatalf("cols=%v want %v", cols, want)
		}
	}
}

func TestFinite(t *testing.T) {
	if !Finite(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}) {
		t.Fatal("finite bound reported non-finite")
	}
	if Finite(orb.Bound{Min: orb.Point{math.Inf(-1), 0}, Max: orb.Point{1, 1}}) {
		t.Fatal("infinite bound reported finite")
	}
	if Finite(orb.Bound{Min: orb.Point{0, math.NaN()}, Max: orb.Point{1, 1}}) {
		t.Fatal("NaN bound reported finite")
	}
}

func TestKind(t *testing.T) {
	if !VectorLocal.IsVector() || !VectorRemote.IsVector() || TiledRemote.IsVector() {
		t.Fatal("IsVector mismatch")
	}
	if Kind("raster").Valid() {
		t.Fatal("unknown kind must be invalid")
	}
}

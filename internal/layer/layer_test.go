package layer

import "testing"

var _ Source = (*VectorSource)(nil)

func TestRecordVector(t *testing.T) {
	vs := NewVectorSource()
	rec := Record{ID: "rivers", Kind: VectorLocal, Source: vs}

	got, ok := rec.Vector()
	if !ok || got != vs {
		t.Fatalf("Vector()=%v,%v want the stored source", got, ok)
	}
	if _, ok := (Record{Kind: TiledRemote, Source: &Counter{}}).Vector(); ok {
		t.Fatal("non-vector source reported as vector")
	}
	if _, ok := (Record{Kind: VectorRemote}).Vector(); ok {
		t.Fatal("nil source reported as vector")
	}
}

func TestCounterThroughSource(t *testing.T) {
	var src Source = NewVectorSource()
	src.Changed()
	src.Changed()
	if src.Revision() != 2 {
		t.Fatalf("revision=%d want 2", src.Revision())
	}
}

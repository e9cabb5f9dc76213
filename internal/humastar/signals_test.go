package humastar

import (
	"errors"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2"
)

func TestSignalsAccessors(t *testing.T) {
	s, err := ParseSignals([]byte(`{"layerId":"roads","from":2,"active":false,"none":null}`))
	if err != nil {
		t.Fatal(err)
	}
	if s.String("layerId") != "roads" || s.String("from") != "" {
		t.Fatalf("String: %q %q", s.String("layerId"), s.String("from"))
	}
	if s.Int("from") != 2 || s.Int("layerId") != 0 {
		t.Fatalf("Int: %d %d", s.Int("from"), s.Int("layerId"))
	}
	if s.Bool("active") || !s.Has("active") || !s.Has("none") || s.Has("to") {
		t.Fatal("Bool/Has mismatch")
	}
}

func TestSignalsInputParse(t *testing.T) {
	in := SignalsInput{RawBody: []byte(`{nope`)}
	_, err := in.Parse()
	var se huma.StatusError
	if !errors.As(err, &se) || se.GetStatus() != http.StatusBadRequest {
		t.Fatalf("err=%v want 400", err)
	}
}

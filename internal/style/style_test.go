package style

import (
	"encoding/json"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func featureWith(props map[string]any) *geojson.Feature {
	f := geojson.NewFeature(orb.Point{0, 0})
	for k, v := range props {
		f.Properties[k] = v
	}
	return f
}

func TestResolveDefaults(t *testing.T) {
	r := Resolve(featureWith(nil), Spec{})
	if r.Fill != DefaultFill.String() {
		t.Fatalf("fill=%s want %s", r.Fill, DefaultFill)
	}
	if r.Stroke != DefaultStroke.String() {
		t.Fatalf("stroke=%s want %s", r.Stroke, DefaultStroke)
	}
	if r.StrokeWidth != DefaultStrokeWidth {
		t.Fatalf("width=%v", r.StrokeWidth)
	}
	if r.Label != "" {
		t.Fatalf("label=%q want empty", r.Label)
	}
}

func TestResolveFillDrivesStroke(t *testing.T) {
	r := Resolve(featureWith(nil), Spec{Fill: &Color{R: 255, A: 0.3}})
	if r.Fill != "rgba(255,0,0,0.3)" {
		t.Fatalf("fill=%s", r.Fill)
	}
	if r.Stroke != "rgba(255,0,0,1)" {
		t.Fatalf("stroke=%s", r.Stroke)
	}
}

func TestResolveTransparentFill(t *testing.T) {
	transparent, err := ParseColor("rgba(0,0,0,0)")
	if err != nil {
		t.Fatal(err)
	}
	r := Resolve(featureWith(nil), Spec{Fill: &transparent})
	if r.Fill != "rgba(0,0,0,0)" {
		t.Fatalf("fill=%s want transparent", r.Fill)
	}
	if r.Stroke != "rgba(0,0,0,1)" {
		t.Fatalf("stroke=%s", r.Stroke)
	}

	r = Resolve(featureWith(nil), Spec{Fill: &Color{R: 9, G: 9, B: 9, A: 1}, Stroke: &transparent})
	if r.Stroke != "rgba(0,0,0,0)" {
		t.Fatalf("stroke=%s want transparent", r.Stroke)
	}
}

func TestResolveLabel(t *testing.T) {
	f := featureWith(map[string]any{"name": "Wisła", "code": 42.0, "empty": nil})

	tests := []struct {
		column string
		want   string
	}{
		{"name", "Wisła"},
		{"code", "42"},
		{"empty", ""},
		{"missing", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Resolve(f, Spec{LabelColumn: tt.column}).Label; got != tt.want {
			t.Fatalf("column %q: label=%q want %q", tt.column, got, tt.want)
		}
	}
}

func TestResolveNilFeature(t *testing.T) {
	if r := Resolve(nil, Spec{LabelColumn: "name"}); r.Label != "" {
		t.Fatalf("label=%q", r.Label)
	}
}

func TestFuncDoesNotTouchFeature(t *testing.T) {
	f := featureWith(map[string]any{"name": "a"})
	fn := Func(Spec{LabelColumn: "name"})
	fn(f)
	if len(f.Properties) != 1 {
		t.Fatalf("properties mutated: %v", f.Properties)
	}
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in   string
		want Color
	}{
		{"#3388ff", Color{R: 0x33, G: 0x88, B: 0xff, A: 1}},
		{"#fff", Color{R: 255, G: 255, B: 255, A: 1}},
		{"#ff000080", Color{R: 255, A: 128.0 / 255}},
		{"rgb(1, 2, 3)", Color{R: 1, G: 2, B: 3, A: 1}},
		{"RGBA(10,20,30,0.5)", Color{R: 10, G: 20, B: 30, A: 0.5}},
	}
	for _, tt := range tests {
		got, err := ParseColor(tt.in)
		if err != nil {
			t.Fatalf("%q: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("%q: got %+v want %+v", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"red", "#12", "rgb(1,2)", "rgba(1,2,3,7)", "rgb(300,0,0)"} {
		if _, err := ParseColor(bad); err == nil {
			t.Fatalf("%q should fail", bad)
		}
	}
}

func TestColorJSON(t *testing.T) {
	var c Color
	if err := json.Unmarshal([]byte(`"#00ff00"`), &c); err != nil {
		t.Fatal(err)
	}
	if c != (Color{G: 255, A: 1}) {
		t.Fatalf("got %+v", c)
	}
	if err := json.Unmarshal([]byte(`{"r":1,"g":2,"b":3,"a":0.5}`), &c); err != nil {
		t.Fatal(err)
	}
	if c != (Color{R: 1, G: 2, B: 3, A: 0.5}) {
		t.Fatalf("got %+v", c)
	}
}

// Package style computes per-feature render styles from a layer's colour
// and label selection. Resolution is pure: nothing is stored on features.
package style

import (
	"fmt"

	"github.com/paulmach/orb/geojson"
)

// Baseline values used when a layer has no explicit style.
var (
	DefaultFill   = Color{R: 51, G: 136, B: 255, A: 0.4}
	DefaultStroke = Color{R: 34, G: 102, B: 204, A: 1}
)

// DefaultStrokeWidth is the stroke width used when none is set.
const DefaultStrokeWidth = 1.25

// Spec is the style state attached to a layer. A nil colour is unset; a
// set colour is used as is, fully transparent included.
type Spec struct {
	Fill        *Color  `json:"fill,omitempty" doc:"Fill colour"`
	Stroke      *Color  `json:"stroke,omitempty" doc:"Stroke colour"`
	StrokeWidth float64 `json:"strokeWidth,omitempty" doc:"Stroke width in pixels"`
	LabelColumn string  `json:"labelColumn,omitempty" doc:"Property used as label text"`
}

// Render is the style a renderer applies to one feature.
type Render struct {
	Fill        string  `json:"fill" doc:"CSS fill colour" example:"rgba(51,136,255,0.4)"`
	Stroke      string  `json:"stroke" doc:"CSS stroke colour"`
	StrokeWidth float64 `json:"strokeWidth" doc:"Stroke width in pixels"`
	Label       string  `json:"label,omitempty" doc:"Label text"`
}

// Resolve computes the render style of f under spec. A missing or null
// label property yields an empty label.
func Resolve(f *geojson.Feature, spec Spec) Render {
	fill := DefaultFill
	if spec.Fill != nil {
		fill = *spec.Fill
	}

	var stroke Color
	switch {
	case spec.Stroke != nil:
		stroke = *spec.Stroke
	case spec.Fill != nil:
		stroke = *spec.Fill
		stroke.A = 1
	default:
		stroke = DefaultStroke
	}

	width := spec.StrokeWidth
	if width <= 0 {
		width = DefaultStrokeWidth
	}

	r := Render{Fill: fill.String(), Stroke: stroke.String(), StrokeWidth: width}
	if spec.LabelColumn != "" && f != nil {
		r.Label = label(f.Properties, spec.LabelColumn)
	}
	return r
}

// Func returns the style-on-draw closure a layer uses for spec.
func Func(spec Spec) func(*geojson.Feature) Render {
	return func(f *geojson.Feature) Render {
		return Resolve(f, spec)
	}
}

func label(props geojson.Properties, column string) string {
	v, ok := props[column]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

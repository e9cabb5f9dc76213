// Package spatial answers zoom queries against the layers of a session.
//
// Failures are logged and returned but never change the view: a query that
// cannot be answered leaves the map where it was.
package spatial

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-mapview/internal/errs"
	"github.com/joeblew999/plat-mapview/internal/layer"
	"github.com/joeblew999/plat-mapview/internal/view"
)

// Defaults for fit requests.
const (
	DefaultMaxZoom = 16
	DefaultPadding = 50
)

// Layers is the read side of the layer registry.
type Layers interface {
	Get(id string) (layer.Record, bool)
	Snapshot() []layer.Record
}

// Fitter moves the view onto an extent.
type Fitter interface {
	Fit(extent orb.Bound, opts view.FitOptions) view.Fit
}

// Engine runs zoom queries.
type Engine struct {
	Layers  Layers
	View    Fitter
	MaxZoom float64
	Padding int
	Logger  zerolog.Logger
}

// New creates an engine with the default fit bounds.
func New(layers Layers, v Fitter, log zerolog.Logger) *Engine {
	return &Engine{
		Layers:  layers,
		View:    v,
		MaxZoom: DefaultMaxZoom,
		Padding: DefaultPadding,
		Logger:  log,
	}
}

// Criteria select a feature. ID is tried first; Properties must all match
// exactly.
type Criteria struct {
	ID         string         `json:"id,omitempty" doc:"Feature identity" example:"42"`
	Properties map[string]any `json:"properties,omitempty" doc:"Exact property values to match"`
}

// Match is a feature found by ZoomToFeature.
type Match struct {
	LayerID string           `json:"layerId"`
	Feature *geojson.Feature `json:"feature"`
	Fit     view.Fit         `json:"fit"`
}

// ZoomToLayerExtent fits the view to every feature of a vector layer.
func (e *Engine) ZoomToLayerExtent(id string) (view.Fit, error) {
	log := e.Logger.With().Str("layer", id).Logger()

	rec, ok := e.Layers.Get(id)
	if !ok {
		err := fmt.Errorf("%w: %q", errs.ErrUnknownLayer, id)
		log.Error().Err(err).Msg("zoom to layer extent")
		return view.Fit{}, err
	}
	vs, ok := rec.Vector()
	if !ok || !rec.Kind.IsVector() {
		err := fmt.Errorf("%w: layer %q has no features to fit", errs.ErrInvalidGeometry, id)
		log.Error().Err(err).Str("kind", string(rec.Kind)).Msg("zoom to layer extent")
		return view.Fit{}, err
	}
	b, n := vs.Extent()
	if n == 0 {
		err := fmt.Errorf("%w: layer %q is empty", errs.ErrInvalidGeometry, id)
		log.Error().Err(err).Msg("zoom to layer extent")
		return view.Fit{}, err
	}
	if !layer.Finite(b) {
		err := fmt.Errorf("%w: layer %q has a non-finite extent", errs.ErrInvalidGeometry, id)
		log.Error().Err(err).Msg("zoom to layer extent")
		return view.Fit{}, err
	}

	fit := e.View.Fit(b, e.options())
	log.Debug().Int("features", n).Float64("zoom", fit.Zoom).Msg("zoomed to layer extent")
	return fit, nil
}

// ZoomToFeature searches active vector layers in registry order and fits
// the view to the first matching feature. Within a layer an identity match
// wins over a property match.
func (e *Engine) ZoomToFeature(c Criteria) (Match, error) {
	if c.ID == "" && len(c.Properties) == 0 {
		err := fmt.Errorf("%w: empty criteria", errs.ErrFeatureNotFound)
		e.Logger.Error().Err(err).Msg("zoom to feature")
		return Match{}, err
	}

	for _, rec := range e.Layers.Snapshot() {
		if !rec.Active || !rec.Kind.IsVector() {
			continue
		}
		vs, ok := rec.Vector()
		if !ok {
			continue
		}
		f, ok := find(vs, c)
		if !ok {
			continue
		}

		log := e.Logger.With().Str("layer", rec.ID).Str("feature", layer.FeatureID(f)).Logger()
		if f.Geometry == nil {
			err := fmt.Errorf("%w: feature %q has no geometry", errs.ErrInvalidGeometry, layer.FeatureID(f))
			log.Error().Err(err).Msg("zoom to feature")
			return Match{}, err
		}
		b := f.Geometry.Bound()
		if !layer.Finite(b) {
			err := fmt.Errorf("%w: feature %q has a non-finite extent", errs.ErrInvalidGeometry, layer.FeatureID(f))
			log.Error().Err(err).Msg("zoom to feature")
			return Match{}, err
		}
		fit := e.View.Fit(b, e.options())
		log.Debug().Float64("zoom", fit.Zoom).Msg("zoomed to feature")
		return Match{LayerID: rec.ID, Feature: f, Fit: fit}, nil
	}

	err := fmt.Errorf("%w: id=%q properties=%v", errs.ErrFeatureNotFound, c.ID, c.Properties)
	e.Logger.Error().Err(err).Msg("zoom to feature")
	return Match{}, err
}

func (e *Engine) options() view.FitOptions {
	return view.FitOptions{MaxZoom: e.MaxZoom, Padding: e.Padding}
}

func find(vs *layer.VectorSource, c Criteria) (*geojson.Feature, bool) {
	if c.ID != "" {
		if f, ok := vs.Get(c.ID); ok {
			return f, true
		}
	}
	if len(c.Properties) == 0 {
		return nil, false
	}
	return vs.Find(func(f *geojson.Feature) bool {
		return matches(f.Properties, c.Properties)
	})
}

package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-mapview/internal/session"
	"github.com/joeblew999/plat-mapview/internal/spatial"
	"github.com/joeblew999/plat-mapview/internal/view"
)

// ViewBody changes parts of the view. Absent fields are left alone.
type ViewBody struct {
	CRS    *string    `json:"crs,omitempty" enum:"EPSG:3857,EPSG:4326" doc:"View CRS"`
	Zoom   *float64   `json:"zoom,omitempty" minimum:"0" doc:"Zoom level"`
	Center *orb.Point `json:"center,omitempty" doc:"Center in the view CRS"`
	Width  int        `json:"width,omitempty" minimum:"0" doc:"Viewport width in pixels"`
	Height int        `json:"height,omitempty" minimum:"0" doc:"Viewport height in pixels"`
}

type ViewOutput struct {
	Body view.State
}

type MatchOutput struct {
	Body spatial.Match
}

// RegisterView registers the view and feature search routes.
func (h *APIHandler) RegisterView(api huma.API) {
	tags := huma.OperationTags("view")
	huma.Get(api, "/api/v1/map/view", h.GetView, tags)
	huma.Put(api, "/api/v1/map/view", h.PutView, tags)
	huma.Post(api, "/api/v1/map/zoom-to-feature", h.ZoomToFeature, tags)
}

func (h *APIHandler) GetView(ctx context.Context, input *struct{}) (*ViewOutput, error) {
	return &ViewOutput{Body: h.deps.Session.View.State()}, nil
}

func (h *APIHandler) PutView(ctx context.Context, input *struct{ Body ViewBody }) (*ViewOutput, error) {
	st, err := h.deps.Session.SetView(session.ViewUpdate{
		CRS:    input.Body.CRS,
		Zoom:   input.Body.Zoom,
		Center: input.Body.Center,
		Width:  input.Body.Width,
		Height: input.Body.Height,
	})
	if err != nil {
		return nil, problem(err)
	}
	return &ViewOutput{Body: st}, nil
}

func (h *APIHandler) ZoomToFeature(ctx context.Context, input *struct{ Body spatial.Criteria }) (*MatchOutput, error) {
	if input.Body.ID == "" && len(input.Body.Properties) == 0 {
		return nil, huma.Error400BadRequest("id or properties is required")
	}
	m, err := h.deps.Session.ZoomToFeature(input.Body)
	if err != nil {
		return nil, problem(err)
	}
	return &MatchOutput{Body: m}, nil
}

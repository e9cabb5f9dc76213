package api

import (
	"bytes"
	"context"
	"fmt"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-mapview/internal/humastar"
	"github.com/joeblew999/plat-mapview/internal/layer"
	"github.com/joeblew999/plat-mapview/internal/session"
	"github.com/joeblew999/plat-mapview/internal/style"
	"github.com/joeblew999/plat-mapview/internal/view"
)

// LayerBody is the wire form of a layer record.
type LayerBody struct {
	ID            string          `json:"id" doc:"Layer ID" example:"roads"`
	Name          string          `json:"name" doc:"Display name" example:"Roads"`
	Kind          layer.Kind      `json:"kind" enum:"vector-local,vector-remote,tiled-remote" doc:"Data origin"`
	Active        bool            `json:"active" doc:"Whether the layer is shown"`
	Loading       bool            `json:"loading" doc:"Whether a feature fetch is in flight"`
	ZIndex        int             `json:"zIndex" doc:"Draw order, higher is on top"`
	APIURL        string          `json:"apiUrl,omitempty" doc:"Feature endpoint of a remote vector layer"`
	HasAttributes bool            `json:"hasAttributes" doc:"Whether features carry usable properties"`
	State         layer.LoadState `json:"state" doc:"Load state"`
	Style         style.Spec      `json:"style" doc:"Colour and label selection"`
	Features      int             `json:"features" doc:"Number of features held"`
	Columns       []string        `json:"columns,omitempty" doc:"Property names usable as labels"`
	Revision      uint64          `json:"revision" doc:"Redraw counter of the source"`
}

var layerActions = []humastar.ActionDef{
	{Rel: "activate", Pattern: "/api/v1/map/layers/%s/toggle", Method: "POST", Title: "Show layer",
		When: func(s any) bool { return !s.(LayerBody).Active }},
	{Rel: "deactivate", Pattern: "/api/v1/map/layers/%s/toggle", Method: "POST", Title: "Hide layer",
		When: func(s any) bool { return s.(LayerBody).Active }},
	{Rel: "features", Pattern: "/api/v1/map/layers/%s/features", Method: "GET", Title: "Styled features",
		When: func(s any) bool { return s.(LayerBody).Kind.IsVector() }},
	{Rel: "zoom", Pattern: "/api/v1/map/layers/%s/zoom", Method: "POST", Title: "Zoom to layer",
		When: func(s any) bool { return s.(LayerBody).Features > 0 }},
	{Rel: "label", Pattern: "/api/v1/map/layers/%s/label", Method: "PUT", Title: "Choose label column",
		When: func(s any) bool { return s.(LayerBody).HasAttributes }},
	{Rel: "tile", Pattern: "/api/v1/map/layers/%s/tile", Method: "GET", Title: "Map image request",
		When: func(s any) bool { return s.(LayerBody).Kind == layer.TiledRemote }},
	{Rel: "edit", Pattern: "/api/v1/map/layers/%s/color", Method: "PUT", Title: "Change colour"},
	{Rel: "delete", Pattern: "/api/v1/map/layers/%s", Method: "DELETE", Title: "Remove layer"},
}

// Actions implements humastar.Actor.
func (b LayerBody) Actions() []humastar.Action {
	return humastar.ActionsFor(b.ID, b, layerActions)
}

func layerBody(rec layer.Record) LayerBody {
	b := LayerBody{
		ID:            rec.ID,
		Name:          rec.Name,
		Kind:          rec.Kind,
		Active:        rec.Active,
		Loading:       rec.Loading,
		ZIndex:        rec.ZIndex,
		APIURL:        rec.APIURL,
		HasAttributes: rec.HasAttributes,
		State:         rec.State,
		Style:         rec.Style,
	}
	if rec.Source != nil {
		b.Revision = rec.Source.Revision()
	}
	if vs, ok := rec.Vector(); ok {
		b.Features = vs.Len()
		b.Columns = vs.Columns()
	}
	return b
}

func layerBodies(recs []layer.Record) []LayerBody {
	out := make([]LayerBody, len(recs))
	for i, rec := range recs {
		out[i] = layerBody(rec)
	}
	return out
}

type LayerOutput struct {
	Body LayerBody
}

type LayersOutput struct {
	Body []LayerBody
}

// CreateLayerBody adds a remote vector layer backed by a feed or any
// feature collection endpoint.
type CreateLayerBody struct {
	Name        string  `json:"name" minLength:"1" doc:"Display name" example:"Ecological corridors"`
	ID          string  `json:"id,omitempty" doc:"Layer ID, derived from the name when empty"`
	Feed        string  `json:"feed,omitempty" doc:"Feed name on this server" example:"korytarze"`
	APIURL      string  `json:"apiUrl,omitempty" doc:"Feature collection URL, used when no feed is given"`
	Active      bool    `json:"active,omitempty" doc:"Show and load the layer immediately"`
	Fill        string  `json:"fill,omitempty" doc:"CSS fill colour" example:"#228b22"`
	Stroke      string  `json:"stroke,omitempty" doc:"CSS stroke colour"`
	StrokeWidth float64 `json:"strokeWidth,omitempty" minimum:"0" doc:"Stroke width in pixels"`
	LabelColumn string  `json:"labelColumn,omitempty" doc:"Property used as label text"`
}

type UploadInput struct {
	Name    string `query:"name" required:"true" minLength:"1" doc:"Layer name" example:"parcels"`
	RawBody []byte `contentType:"application/geo+json" doc:"GeoJSON FeatureCollection"`
}

type RemoteLayerBody struct {
	URL    string `json:"url" minLength:"1" doc:"Map service URL" example:"https://example.org/wms"`
	Layer  string `json:"layer" minLength:"1" doc:"Layer name in the service catalog" example:"roads"`
	Name   string `json:"name,omitempty" doc:"Display name, the layer title when empty"`
	Active bool   `json:"active,omitempty" doc:"Show the layer immediately"`
}

type ImportBody struct {
	File string `json:"file" minLength:"1" doc:"File name in the sources directory" example:"parcels.geojson"`
	Name string `json:"name,omitempty" doc:"Layer name, the file name when empty"`
}

type ReorderBody struct {
	From int `json:"from" minimum:"0" doc:"Current position, 0 is the top layer"`
	To   int `json:"to" minimum:"0" doc:"Target position"`
}

type ColorInput struct {
	IDInput
	Body struct {
		Color string `json:"color" minLength:"1" doc:"CSS colour" example:"rgba(255,0,0,0.5)"`
	}
}

type LabelInput struct {
	IDInput
	Body struct {
		Column string `json:"column" doc:"Property name, empty clears the label"`
	}
}

type NameInput struct {
	IDInput
	Body struct {
		Name string `json:"name" minLength:"1" doc:"New display name"`
	}
}

type FeaturesBody struct {
	Layer    LayerBody               `json:"layer"`
	Features []session.StyledFeature `json:"features"`
}

type TileInput struct {
	IDInput
	BBox   []float64 `query:"bbox" required:"true" doc:"minx,miny,maxx,maxy in the layer CRS"`
	Width  int       `query:"width" default:"256" minimum:"1" maximum:"4096"`
	Height int       `query:"height" default:"256" minimum:"1" maximum:"4096"`
}

type TileURLBody struct {
	URL string `json:"url" doc:"GetMap request"`
}

type VectorTileInput struct {
	IDInput
	Z int `path:"z" minimum:"0" maximum:"22"`
	X int `path:"x" minimum:"0"`
	Y int `path:"y" minimum:"0"`
}

type VectorTileOutput struct {
	Status          int
	ContentType     string `header:"Content-Type"`
	ContentEncoding string `header:"Content-Encoding"`
	Body            []byte
}

// RegisterLayers registers the layer registry routes.
func (h *APIHandler) RegisterLayers(api huma.API) {
	tags := huma.OperationTags("layers")
	huma.Get(api, "/api/v1/map/layers", h.ListLayers, tags)
	huma.Post(api, "/api/v1/map/layers", h.CreateLayer, tags)
	huma.Post(api, "/api/v1/map/layers/upload", h.UploadLayer, tags)
	huma.Post(api, "/api/v1/map/layers/wms", h.AddRemoteLayer, tags)
	huma.Post(api, "/api/v1/map/layers/import", h.ImportLayer, tags)
	huma.Post(api, "/api/v1/map/layers/reorder", h.ReorderLayers, tags)
	huma.Get(api, "/api/v1/map/layers/{id}", h.GetLayer, tags)
	huma.Delete(api, "/api/v1/map/layers/{id}", h.DeleteLayer, tags)
	huma.Post(api, "/api/v1/map/layers/{id}/toggle", h.ToggleLayer, tags)
	huma.Put(api, "/api/v1/map/layers/{id}/color", h.SetColor, tags)
	huma.Put(api, "/api/v1/map/layers/{id}/label", h.SetLabel, tags)
	huma.Put(api, "/api/v1/map/layers/{id}/name", h.RenameLayer, tags)
	huma.Get(api, "/api/v1/map/layers/{id}/features", h.LayerFeatures, tags)
	huma.Post(api, "/api/v1/map/layers/{id}/zoom", h.ZoomToLayer, tags)
	huma.Get(api, "/api/v1/map/layers/{id}/tile", h.LayerTileURL, tags)
	huma.Get(api, "/api/v1/map/layers/{id}/tiles/{z}/{x}/{y}", h.LayerVectorTile, tags)
}

// Handlers

func (h *APIHandler) ListLayers(ctx context.Context, input *struct{}) (*LayersOutput, error) {
	return &LayersOutput{Body: layerBodies(h.deps.Session.Layers())}, nil
}

func (h *APIHandler) CreateLayer(ctx context.Context, input *struct{ Body CreateLayerBody }) (*LayerOutput, error) {
	in := input.Body
	target := in.APIURL
	if in.Feed != "" {
		var err error
		if target, err = h.deps.Session.FeedURL(in.Feed); err != nil {
			return nil, problem(err)
		}
	}
	if target == "" {
		return nil, huma.Error400BadRequest("either feed or apiUrl is required")
	}
	spec, err := session.LayerConfig{
		Fill: in.Fill, Stroke: in.Stroke, StrokeWidth: in.StrokeWidth, LabelColumn: in.LabelColumn,
	}.Spec()
	if err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}
	rec, err := h.deps.Session.AddLayer(layer.Record{
		ID:     in.ID,
		Name:   in.Name,
		Kind:   layer.VectorRemote,
		Active: in.Active,
		APIURL: target,
		Style:  spec,
	})
	if err != nil {
		return nil, problem(err)
	}
	return &LayerOutput{Body: layerBody(rec)}, nil
}

func (h *APIHandler) UploadLayer(ctx context.Context, input *UploadInput) (*LayerOutput, error) {
	rec, err := h.deps.Session.Upload(input.Name, bytes.NewReader(input.RawBody))
	if err != nil {
		return nil, problem(err)
	}
	return &LayerOutput{Body: layerBody(rec)}, nil
}

func (h *APIHandler) AddRemoteLayer(ctx context.Context, input *struct{ Body RemoteLayerBody }) (*LayerOutput, error) {
	rec, err := h.deps.Session.AddRemoteLayer(ctx, session.RemoteLayer{
		ServiceURL: input.Body.URL,
		LayerName:  input.Body.Layer,
		Name:       input.Body.Name,
		Active:     input.Body.Active,
	})
	if err != nil {
		return nil, problem(err)
	}
	return &LayerOutput{Body: layerBody(rec)}, nil
}

func (h *APIHandler) ImportLayer(ctx context.Context, input *struct{ Body ImportBody }) (*LayerOutput, error) {
	if h.deps.Sources == nil {
		return nil, huma.Error503ServiceUnavailable("no sources directory configured")
	}
	rec, err := h.deps.Session.ImportSource(input.Body.File, input.Body.Name)
	if err != nil {
		return nil, problem(err)
	}
	return &LayerOutput{Body: layerBody(rec)}, nil
}

func (h *APIHandler) ReorderLayers(ctx context.Context, input *struct{ Body ReorderBody }) (*LayersOutput, error) {
	recs, err := h.deps.Session.Reorder(input.Body.From, input.Body.To)
	if err != nil {
		return nil, problem(err)
	}
	return &LayersOutput{Body: layerBodies(recs)}, nil
}

func (h *APIHandler) GetLayer(ctx context.Context, input *IDInput) (*LayerOutput, error) {
	rec, err := h.deps.Session.Layer(input.ID)
	if err != nil {
		return nil, problem(err)
	}
	return &LayerOutput{Body: layerBody(rec)}, nil
}

func (h *APIHandler) DeleteLayer(ctx context.Context, input *IDInput) (*struct{ Body MessageBody }, error) {
	if _, err := h.deps.Session.Remove(input.ID); err != nil {
		return nil, problem(err)
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Layer removed"}}, nil
}

func (h *APIHandler) ToggleLayer(ctx context.Context, input *IDInput) (*LayerOutput, error) {
	rec, err := h.deps.Session.Toggle(input.ID)
	if err != nil {
		return nil, problem(err)
	}
	return &LayerOutput{Body: layerBody(rec)}, nil
}

func (h *APIHandler) SetColor(ctx context.Context, input *ColorInput) (*LayerOutput, error) {
	c, err := style.ParseColor(input.Body.Color)
	if err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}
	rec, err := h.deps.Session.SetColor(input.ID, c)
	if err != nil {
		return nil, problem(err)
	}
	return &LayerOutput{Body: layerBody(rec)}, nil
}

func (h *APIHandler) SetLabel(ctx context.Context, input *LabelInput) (*LayerOutput, error) {
	rec, err := h.deps.Session.SetLabelColumn(input.ID, input.Body.Column)
	if err != nil {
		return nil, problem(err)
	}
	return &LayerOutput{Body: layerBody(rec)}, nil
}

func (h *APIHandler) RenameLayer(ctx context.Context, input *NameInput) (*LayerOutput, error) {
	rec, err := h.deps.Session.Rename(input.ID, input.Body.Name)
	if err != nil {
		return nil, problem(err)
	}
	return &LayerOutput{Body: layerBody(rec)}, nil
}

func (h *APIHandler) LayerFeatures(ctx context.Context, input *IDInput) (*struct{ Body FeaturesBody }, error) {
	rec, feats, err := h.deps.Session.StyledFeatures(input.ID)
	if err != nil {
		return nil, problem(err)
	}
	if feats == nil {
		feats = []session.StyledFeature{}
	}
	return &struct{ Body FeaturesBody }{Body: FeaturesBody{Layer: layerBody(rec), Features: feats}}, nil
}

func (h *APIHandler) ZoomToLayer(ctx context.Context, input *IDInput) (*struct{ Body view.Fit }, error) {
	fit, err := h.deps.Session.ZoomToLayerExtent(input.ID)
	if err != nil {
		return nil, problem(err)
	}
	return &struct{ Body view.Fit }{Body: fit}, nil
}

func (h *APIHandler) LayerTileURL(ctx context.Context, input *TileInput) (*struct{ Body TileURLBody }, error) {
	if len(input.BBox) != 4 {
		return nil, huma.Error400BadRequest(fmt.Sprintf("bbox needs 4 numbers, got %d", len(input.BBox)))
	}
	bbox := orb.Bound{
		Min: orb.Point{input.BBox[0], input.BBox[1]},
		Max: orb.Point{input.BBox[2], input.BBox[3]},
	}
	u, err := h.deps.Session.TileURL(input.ID, bbox, input.Width, input.Height)
	if err != nil {
		return nil, problem(err)
	}
	return &struct{ Body TileURLBody }{Body: TileURLBody{URL: u}}, nil
}

func (h *APIHandler) LayerVectorTile(ctx context.Context, input *VectorTileInput) (*VectorTileOutput, error) {
	data, err := h.deps.Session.VectorTile(input.ID, uint32(input.Z), uint32(input.X), uint32(input.Y))
	if err != nil {
		return nil, problem(err)
	}
	if data == nil {
		return &VectorTileOutput{Status: 204}, nil
	}
	return &VectorTileOutput{
		Status:          200,
		ContentType:     "application/vnd.mapbox-vector-tile",
		ContentEncoding: "gzip",
		Body:            data,
	}, nil
}

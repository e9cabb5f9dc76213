package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-mapview/internal/wms"
)

type CatalogInput struct {
	URL string `query:"url" required:"true" minLength:"1" doc:"Map service URL" example:"https://example.org/wms"`
}

// RegisterWMS registers the map service catalog route.
func (h *APIHandler) RegisterWMS(api huma.API) {
	huma.Get(api, "/api/v1/wms/layers", h.ListServiceLayers, huma.OperationTags("wms"))
}

func (h *APIHandler) ListServiceLayers(ctx context.Context, input *CatalogInput) (*struct{ Body []wms.LayerSummary }, error) {
	layers, err := h.deps.Session.FetchAvailableLayers(ctx, input.URL)
	if err != nil {
		h.log.Warn().Err(err).Str("url", input.URL).Msg("catalog request failed")
		return nil, problem(err)
	}
	if layers == nil {
		layers = []wms.LayerSummary{}
	}
	return &struct{ Body []wms.LayerSummary }{Body: layers}, nil
}

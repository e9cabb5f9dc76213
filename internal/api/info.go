package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

type InfoBody struct {
	Name       string   `json:"name" doc:"Service name"`
	Version    string   `json:"version" doc:"Service version"`
	DataDir    string   `json:"data_dir" doc:"Data directory path"`
	DB         bool     `json:"db" doc:"Whether database is available"`
	ViewCRS    string   `json:"view_crs" doc:"Current view CRS" example:"EPSG:3857"`
	WorkingCRS string   `json:"working_crs" doc:"CRS of stored features" example:"EPSG:4326"`
	Features   []string `json:"features" doc:"Available features"`
}

// RegisterInfo registers the service information route.
func (h *APIHandler) RegisterInfo(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

func (h *APIHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	st := h.deps.Session.View.State()
	features := []string{"layers", "wms", "upload", "vector-tiles", "events"}
	if h.deps.Feeds != nil {
		features = append(features, "feeds")
	}
	if h.deps.DB != nil {
		features = append(features, "duckdb")
	}
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:       "plat-mapview",
		Version:    Version,
		DataDir:    h.deps.DataDir,
		DB:         h.deps.DB != nil,
		ViewCRS:    st.CRS,
		WorkingCRS: st.WorkingCRS,
		Features:   features,
	}}, nil
}

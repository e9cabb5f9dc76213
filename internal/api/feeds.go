package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-mapview/internal/db"
	"github.com/joeblew999/plat-mapview/internal/feeds"
	"github.com/joeblew999/plat-mapview/internal/service"
)

type FeedInput struct {
	Name string `path:"name" doc:"Feed name" example:"korytarze"`
}

type FeatureCollectionOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

// TablesOutput is the response for listing tables.
type TablesOutput struct {
	Body struct {
		Tables []string `json:"tables" doc:"List of table names"`
	}
}

// RegisterFeeds registers the feed backend routes remote vector layers
// point at.
func (h *APIHandler) RegisterFeeds(api huma.API) {
	huma.Get(api, "/api/v1/feeds", h.ListFeeds, huma.OperationTags("feeds"))
	huma.Get(api, "/api/v1/feeds/{name}", h.GetFeed, huma.OperationTags("feeds"))
	huma.Get(api, "/api/v1/db/tables", h.ListTables, huma.OperationTags("feeds"))
}

// RegisterSources registers source listing routes.
func (h *APIHandler) RegisterSources(api huma.API) {
	huma.Get(api, "/api/v1/sources", h.GetSources, huma.OperationTags("sources"))
}

func (h *APIHandler) ListFeeds(ctx context.Context, input *struct{}) (*struct{ Body []feeds.Feed }, error) {
	if h.deps.Feeds == nil {
		return &struct{ Body []feeds.Feed }{Body: []feeds.Feed{}}, nil
	}
	return &struct{ Body []feeds.Feed }{Body: h.deps.Feeds.List()}, nil
}

// GetFeed serves a feed as a GeoJSON FeatureCollection.
func (h *APIHandler) GetFeed(ctx context.Context, input *FeedInput) (*FeatureCollectionOutput, error) {
	if h.deps.Feeds == nil {
		return nil, huma.Error404NotFound("no feeds configured")
	}
	fc, err := h.deps.Feeds.Collection(ctx, input.Name)
	if err != nil {
		h.log.Error().Err(err).Str("feed", input.Name).Msg("feed query failed")
		return nil, problem(err)
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return nil, huma.Error500InternalServerError("encoding feed", err)
	}
	return &FeatureCollectionOutput{ContentType: "application/geo+json", Body: data}, nil
}

// ListTables returns all DuckDB tables.
func (h *APIHandler) ListTables(ctx context.Context, input *struct{}) (*TablesOutput, error) {
	if h.deps.DB == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}
	tables, err := db.Tables(ctx, h.deps.DB)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list tables", err)
	}
	out := &TablesOutput{}
	out.Body.Tables = tables
	if out.Body.Tables == nil {
		out.Body.Tables = []string{}
	}
	return out, nil
}

func (h *APIHandler) GetSources(ctx context.Context, input *struct{}) (*struct{ Body []service.SourceFile }, error) {
	if h.deps.Sources == nil {
		return &struct{ Body []service.SourceFile }{Body: []service.SourceFile{}}, nil
	}
	sources, err := h.deps.Sources.List()
	if err != nil {
		h.log.Warn().Err(err).Msg("listing sources")
		return &struct{ Body []service.SourceFile }{Body: []service.SourceFile{}}, nil
	}
	return &struct{ Body []service.SourceFile }{Body: sources}, nil
}

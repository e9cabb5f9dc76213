// Package api defines the Huma API routes and handlers of the map session.
package api

import (
	"context"
	"database/sql"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-mapview/internal/errs"
	"github.com/joeblew999/plat-mapview/internal/feeds"
	"github.com/joeblew999/plat-mapview/internal/service"
	"github.com/joeblew999/plat-mapview/internal/session"
)

// Version is reported by /health and /api/v1/info.
const Version = "0.1.0"

// Deps holds the collaborators of the API handlers. Feeds, Sources and DB
// may be nil; their routes then answer with empty lists or 503.
type Deps struct {
	Session *session.Session
	Feeds   *feeds.Store
	Sources *service.SourceService
	DB      *sql.DB
	DataDir string
	Logger  zerolog.Logger
}

// Types

type IDInput struct {
	ID string `path:"id" doc:"Layer ID" example:"roads"`
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"0.1.0"`
	Layers  int    `json:"layers" doc:"Number of registered layers"`
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	deps Deps
	log  zerolog.Logger
}

func NewAPIHandler(deps Deps) *APIHandler {
	return &APIHandler{deps: deps, log: deps.Logger}
}

// RegisterRoutes registers every route of the handler and installs the
// Link header transformer.
func RegisterRoutes(api huma.API, h *APIHandler) {
	huma.AutoRegister(api, h)
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{
		Status:  "ok",
		Version: Version,
		Layers:  h.deps.Session.Registry.Len(),
	}}, nil
}

// problem maps domain errors onto HTTP problems.
func problem(err error) error {
	switch {
	case errors.Is(err, errs.ErrUnknownLayer),
		errors.Is(err, errs.ErrLayerNotFound),
		errors.Is(err, errs.ErrFeatureNotFound),
		errors.Is(err, feeds.ErrUnknownFeed):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, feeds.ErrNoDatabase):
		return huma.Error503ServiceUnavailable(err.Error())
	case errors.Is(err, errs.ErrNetwork):
		return huma.Error502BadGateway(err.Error())
	case errors.Is(err, errs.ErrParse),
		errors.Is(err, errs.ErrUnsupportedProjection),
		errors.Is(err, errs.ErrInvalidGeometry):
		return huma.Error422UnprocessableEntity(err.Error())
	default:
		return huma.Error400BadRequest(err.Error())
	}
}

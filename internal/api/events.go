package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-mapview/internal/humastar"
)

// RegisterEvents registers the Datastar change stream. Every registry
// mutation patches the layers and view signals of the UI.
func (h *APIHandler) RegisterEvents(api huma.API) {
	huma.Get(api, "/api/v1/map/events", h.Events, huma.OperationTags("events"))
}

func (h *APIHandler) Events(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	bus := h.deps.Session.Registry.Bus()
	return humastar.Stream(func(sse humastar.SSE) {
		ch := bus.Subscribe()
		defer bus.Unsubscribe(ch)

		if err := h.pushState(sse); err != nil {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if err := h.pushState(sse); err != nil {
					h.log.Debug().Err(err).Msg("event stream closed")
					return
				}
				if err := sse.Event("layer-changed", map[string]any{
					"resource": ev.Resource,
					"action":   ev.Action,
					"id":       ev.ID,
				}); err != nil {
					return
				}
			}
		}
	}), nil
}

func (h *APIHandler) pushState(sse humastar.SSE) error {
	return sse.Signals(map[string]any{
		"layers": layerBodies(h.deps.Session.Layers()),
		"view":   h.deps.Session.View.State(),
	})
}

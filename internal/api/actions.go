package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-mapview/internal/humastar"
)

// RegisterActions registers the Datastar mutation endpoints. They take the
// UI's signals as the request body and answer with an SSE stream patching
// the layers signal, or the error signal when the mutation fails.
func (h *APIHandler) RegisterActions(api huma.API) {
	tags := huma.OperationTags("events")
	huma.Post(api, "/api/v1/map/actions/toggle", h.ToggleAction, tags)
	huma.Post(api, "/api/v1/map/actions/reorder", h.ReorderAction, tags)
}

// ToggleAction flips the layer named by the layerId signal. When an active
// signal is present the layer is set to that visibility instead.
func (h *APIHandler) ToggleAction(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.Parse()
	if err != nil {
		return nil, err
	}
	id := signals.String("layerId")
	if id == "" {
		return nil, huma.Error400BadRequest("layerId signal is required")
	}

	return humastar.Stream(func(sse humastar.SSE) {
		rec, err := h.deps.Session.Layer(id)
		if err == nil && (!signals.Has("active") || signals.Bool("active") != rec.Active) {
			_, err = h.deps.Session.Toggle(id)
		}
		h.answer(sse, err)
	}), nil
}

// ReorderAction moves the layer at the from signal to the to signal.
func (h *APIHandler) ReorderAction(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.Parse()
	if err != nil {
		return nil, err
	}
	if !signals.Has("from") || !signals.Has("to") {
		return nil, huma.Error400BadRequest("from and to signals are required")
	}

	return humastar.Stream(func(sse humastar.SSE) {
		_, err := h.deps.Session.Reorder(signals.Int("from"), signals.Int("to"))
		h.answer(sse, err)
	}), nil
}

func (h *APIHandler) answer(sse humastar.SSE, err error) {
	if err != nil {
		if sendErr := sse.Error(err.Error()); sendErr != nil {
			h.log.Debug().Err(sendErr).Msg("action stream closed")
		}
		return
	}
	if err := sse.Signals(map[string]any{
		"layers": layerBodies(h.deps.Session.Layers()),
		"error":  "",
	}); err != nil {
		h.log.Debug().Err(err).Msg("action stream closed")
	}
}

// Package registry holds the ordered set of layers of a map session.
//
// The registry is copy-on-write: every mutation builds a new slice of
// layer.Record values and swaps it in under the lock, so a snapshot handed to
// a reader never changes underneath it.
package registry

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-mapview/internal/errs"
	"github.com/joeblew999/plat-mapview/internal/featurestore"
	"github.com/joeblew999/plat-mapview/internal/layer"
	"github.com/joeblew999/plat-mapview/internal/metrics"
	"github.com/joeblew999/plat-mapview/internal/style"
)

// Loader fetches the features of a remote vector layer into dst. It must
// always return, reporting failures in the Outcome.
type Loader interface {
	Load(ctx context.Context, url string, dst *layer.VectorSource) featurestore.Outcome
}

// Hooks are called outside the registry lock after the matching mutation.
type Hooks struct {
	// OnLoaded runs when a lazy load completes, successful or not.
	OnLoaded func(rec layer.Record, out featurestore.Outcome)
	// OnRemove runs after a layer has been removed.
	OnRemove func(rec layer.Record)
}

// Registry is the single source of truth for the layers of one session.
type Registry struct {
	mu      sync.Mutex
	records []layer.Record

	loader Loader
	hooks  Hooks
	bus    *EventBus
	log    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an empty registry. A nil bus gets a private one.
func New(loader Loader, bus *EventBus, log zerolog.Logger) *Registry {
	if bus == nil {
		bus = NewEventBus()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		loader: loader,
		bus:    bus,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetHooks installs lifecycle hooks. Call before the registry is shared.
func (r *Registry) SetHooks(h Hooks) {
	r.mu.Lock()
	r.hooks = h
	r.mu.Unlock()
}

// Bus returns the event bus mutations are published on.
func (r *Registry) Bus() *EventBus { return r.bus }

// Snapshot returns the current ordered records, top layer first.
func (r *Registry) Snapshot() []layer.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.records)
}

// Len returns the number of registered layers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Get returns the record with id.
func (r *Registry) Get(id string) (layer.Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(id)
	if i < 0 {
		return layer.Record{}, false
	}
	return r.records[i], true
}

// Add registers rec at the top of the stack. An empty ID is derived from the
// name, with a numeric suffix when it clashes. Vector layers without a source
// get an empty one. An active remote vector layer starts loading immediately.
func (r *Registry) Add(rec layer.Record) (layer.Record, error) {
	if !rec.Kind.Valid() {
		return layer.Record{}, fmt.Errorf("invalid layer kind %q", rec.Kind)
	}
	rec.Name = strings.TrimSpace(rec.Name)
	if rec.Name == "" {
		rec.Name = rec.ID
	}
	if rec.Name == "" {
		return layer.Record{}, fmt.Errorf("layer needs a name or an id")
	}
	if rec.Kind == layer.VectorRemote && rec.APIURL == "" {
		return layer.Record{}, fmt.Errorf("remote vector layer %q needs an api url", rec.Name)
	}
	if rec.Kind.IsVector() && rec.Source == nil {
		rec.Source = layer.NewVectorSource()
	}
	if rec.Style.StrokeWidth == 0 {
		rec.Style.StrokeWidth = style.DefaultStrokeWidth
	}
	rec.Loading = false
	rec.State = initialState(rec)
	if vs, ok := rec.Vector(); ok && rec.Kind == layer.VectorLocal {
		rec.HasAttributes = vs.Len() > 0
	}

	r.mu.Lock()
	if rec.ID == "" {
		rec.ID = r.uniqueID(generateID(rec.Name))
	} else if r.indexOf(rec.ID) >= 0 {
		r.mu.Unlock()
		return layer.Record{}, fmt.Errorf("layer with ID %q already exists", rec.ID)
	}
	load := rec.Active && r.shouldLoad(rec)
	if load {
		rec.Loading = true
		rec.State = layer.Loading
	}
	next := make([]layer.Record, 0, len(r.records)+1)
	next = append(next, rec)
	next = append(next, r.records...)
	renumber(next)
	r.records = next
	rec = next[0]
	r.mu.Unlock()

	r.committed(ActionCreated, rec.ID)
	if load {
		r.load(rec)
	}
	return rec, nil
}

// Toggle flips the visibility of a layer. Activating a remote vector layer
// that was never loaded starts exactly one background fetch.
func (r *Registry) Toggle(id string) (layer.Record, error) {
	r.mu.Lock()
	i := r.indexOf(id)
	if i < 0 {
		r.mu.Unlock()
		return layer.Record{}, fmt.Errorf("%w: %q", errs.ErrUnknownLayer, id)
	}
	rec := r.records[i]
	rec.Active = !rec.Active
	load := rec.Active && r.shouldLoad(rec)
	if load {
		rec.Loading = true
		rec.State = layer.Loading
	}
	r.replace(i, rec)
	r.mu.Unlock()

	r.committed(ActionUpdated, id)
	if load {
		r.load(rec)
	}
	return rec, nil
}

// Reorder moves the record at index from to index to and reassigns every
// z-index so the first record is drawn on top.
func (r *Registry) Reorder(from, to int) ([]layer.Record, error) {
	r.mu.Lock()
	n := len(r.records)
	if from < 0 || from >= n || to < 0 || to >= n {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: move %d to %d with %d layers", errs.ErrIndexOutOfRange, from, to, n)
	}
	next := slices.Clone(r.records)
	moved := next[from]
	next = slices.Delete(next, from, from+1)
	next = slices.Insert(next, to, moved)
	renumber(next)
	r.records = next
	out := slices.Clone(next)
	r.mu.Unlock()

	r.committed(ActionReordered, "")
	return out, nil
}

// SetColor changes the fill colour of a layer and forces a redraw. The
// stroke follows the fill unless it was set explicitly.
func (r *Registry) SetColor(id string, c style.Color) (layer.Record, error) {
	return r.restyle(id, func(s *style.Spec) { s.Fill = &c })
}

// SetLabelColumn selects the property rendered as label. An empty column
// removes labels.
func (r *Registry) SetLabelColumn(id, column string) (layer.Record, error) {
	return r.restyle(id, func(s *style.Spec) { s.LabelColumn = column })
}

// SetStyle replaces the whole style of a layer.
func (r *Registry) SetStyle(id string, spec style.Spec) (layer.Record, error) {
	return r.restyle(id, func(s *style.Spec) { *s = spec })
}

// Rename changes the display name of a layer. The ID is stable.
func (r *Registry) Rename(id, name string) (layer.Record, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return layer.Record{}, fmt.Errorf("layer name must not be empty")
	}
	return r.update(id, func(rec *layer.Record) { rec.Name = name })
}

// Remove deletes a layer and renumbers the rest. The OnRemove hook runs
// afterwards so dependent caches can be pruned.
func (r *Registry) Remove(id string) (layer.Record, error) {
	r.mu.Lock()
	i := r.indexOf(id)
	if i < 0 {
		r.mu.Unlock()
		return layer.Record{}, fmt.Errorf("%w: %q", errs.ErrUnknownLayer, id)
	}
	rec := r.records[i]
	next := slices.Delete(slices.Clone(r.records), i, i+1)
	renumber(next)
	r.records = next
	hook := r.hooks.OnRemove
	r.mu.Unlock()

	if hook != nil {
		hook(rec)
	}
	r.committed(ActionDeleted, id)
	return rec, nil
}

// Wait blocks until every in-flight load has completed.
func (r *Registry) Wait() { r.wg.Wait() }

// Close cancels in-flight loads and waits for them to return.
func (r *Registry) Close() {
	r.cancel()
	r.wg.Wait()
}

func (r *Registry) restyle(id string, fn func(*style.Spec)) (layer.Record, error) {
	rec, err := r.update(id, func(rec *layer.Record) { fn(&rec.Style) })
	if err != nil {
		return rec, err
	}
	if rec.Source != nil {
		rec.Source.Changed()
	}
	return rec, nil
}

func (r *Registry) update(id string, fn func(*layer.Record)) (layer.Record, error) {
	r.mu.Lock()
	i := r.indexOf(id)
	if i < 0 {
		r.mu.Unlock()
		return layer.Record{}, fmt.Errorf("%w: %q", errs.ErrUnknownLayer, id)
	}
	rec := r.records[i]
	fn(&rec)
	r.replace(i, rec)
	r.mu.Unlock()

	r.committed(ActionUpdated, id)
	return rec, nil
}

// load runs the lazy fetch of rec in the background.
func (r *Registry) load(rec layer.Record) {
	vs, _ := rec.Vector()
	log := r.log.With().Str("layer", rec.ID).Str("url", rec.APIURL).Logger()
	log.Debug().Msg("layer load started")

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		out := r.loader.Load(r.ctx, rec.APIURL, vs)
		r.finishLoad(rec.ID, out)
	}()
}

// finishLoad applies a load result in one update. Active is left as it is
// now, which may differ from when the load started.
func (r *Registry) finishLoad(id string, out featurestore.Outcome) {
	r.mu.Lock()
	i := r.indexOf(id)
	if i < 0 {
		r.mu.Unlock()
		r.log.Debug().Str("layer", id).Msg("layer removed before its load completed")
		return
	}
	rec := r.records[i]
	rec.Loading = false
	rec.State = layer.LoadedEmpty
	if out.Err == nil {
		rec.HasAttributes = true
		if out.Features > 0 {
			rec.State = layer.Loaded
		}
	}
	r.replace(i, rec)
	hook := r.hooks.OnLoaded
	r.mu.Unlock()

	metrics.ObserveLayerLoad(string(rec.State))
	r.log.Info().Str("layer", id).Str("state", string(rec.State)).Int("features", out.Features).Msg("layer load finished")
	if rec.Source != nil {
		rec.Source.Changed()
	}
	if hook != nil {
		hook(rec, out)
	}
	r.committed(ActionLoaded, id)
}

// shouldLoad is the single-fetch guard. Caller holds mu.
func (r *Registry) shouldLoad(rec layer.Record) bool {
	if r.loader == nil || rec.Kind != layer.VectorRemote || rec.State != layer.Unloaded {
		return false
	}
	vs, ok := rec.Vector()
	return ok && vs.Len() == 0
}

// replace swaps record i for rec in a fresh slice. Caller holds mu.
func (r *Registry) replace(i int, rec layer.Record) {
	next := slices.Clone(r.records)
	next[i] = rec
	r.records = next
}

func (r *Registry) indexOf(id string) int {
	for i := range r.records {
		if r.records[i].ID == id {
			return i
		}
	}
	return -1
}

func (r *Registry) uniqueID(base string) string {
	if base == "" {
		base = "layer"
	}
	id := base
	for n := 2; r.indexOf(id) >= 0; n++ {
		id = base + "_" + strconv.Itoa(n)
	}
	return id
}

func (r *Registry) committed(action, id string) {
	metrics.ObserveMutation(action, r.Len())
	r.bus.Publish(Event{Resource: "layers", Action: action, ID: id})
}

func initialState(rec layer.Record) layer.LoadState {
	if rec.Kind == layer.VectorRemote {
		if vs, ok := rec.Vector(); ok && vs.Len() > 0 {
			return layer.Loaded
		}
		return layer.Unloaded
	}
	if vs, ok := rec.Vector(); ok && vs.Len() == 0 {
		return layer.LoadedEmpty
	}
	return layer.Loaded
}

// renumber sets ZIndex = count - position, so index 0 is drawn on top.
func renumber(recs []layer.Record) {
	for i := range recs {
		recs[i].ZIndex = len(recs) - i
	}
}

// generateID creates a URL-safe ID from a name.
func generateID(name string) string {
	id := strings.ToLower(name)
	id = strings.ReplaceAll(id, " ", "_")
	// Remove any characters that aren't alphanumeric or underscore
	var result strings.Builder
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			result.WriteRune(r)
		}
	}
	return result.String()
}

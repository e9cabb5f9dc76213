// Package session wires the registry, view, negotiator and caches of one
// map session together and exposes the operations the UI calls.
package session

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-mapview/internal/crs"
	"github.com/joeblew999/plat-mapview/internal/errs"
	"github.com/joeblew999/plat-mapview/internal/featurestore"
	"github.com/joeblew999/plat-mapview/internal/geocache"
	"github.com/joeblew999/plat-mapview/internal/layer"
	"github.com/joeblew999/plat-mapview/internal/logger"
	"github.com/joeblew999/plat-mapview/internal/registry"
	"github.com/joeblew999/plat-mapview/internal/service"
	"github.com/joeblew999/plat-mapview/internal/simplifier"
	"github.com/joeblew999/plat-mapview/internal/spatial"
	"github.com/joeblew999/plat-mapview/internal/style"
	"github.com/joeblew999/plat-mapview/internal/tiler"
	"github.com/joeblew999/plat-mapview/internal/view"
	"github.com/joeblew999/plat-mapview/internal/wms"
)

// Config holds the tunables of a session. Zero values take defaults.
type Config struct {
	ViewCRS       string
	WorkingCRS    string
	DefaultCRS    string
	FallbackProxy string

	FitMaxZoom float64
	FitPadding int

	SimplifyMinZoom      float64
	SimplifyMaxZoom      float64
	SimplifyMaxTolerance float64

	// FeedBaseURL prefixes feed references of bootstrap layers.
	FeedBaseURL string
}

// Deps are the shared collaborators of a session. Nil fields get defaults.
type Deps struct {
	Client  *http.Client
	CRS     *crs.Registry
	Bus     *registry.EventBus
	Sources *service.SourceService
	Logger  zerolog.Logger
}

// Session is one map: its layers, camera and caches.
type Session struct {
	Registry   *registry.Registry
	View       *view.View
	Negotiator *wms.Negotiator
	Adapter    *featurestore.Adapter
	Cache      *geocache.Cache
	Simplifier *simplifier.Controller
	Spatial    *spatial.Engine
	Sources    *service.SourceService

	cfg Config
	log zerolog.Logger
}

// New builds a session and wires its components.
func New(cfg Config, deps Deps) *Session {
	log := deps.Logger
	if deps.CRS == nil {
		deps.CRS = crs.NewRegistry(nil)
	}

	s := &Session{
		Cache:   geocache.New(),
		Sources: deps.Sources,
		cfg:     cfg,
		log:     logger.Component(log, "session"),
	}
	s.Adapter = featurestore.New(deps.Client, logger.Component(log, "featurestore"))
	s.Registry = registry.New(s.Adapter, deps.Bus, logger.Component(log, "registry"))
	s.View = view.New(cfg.ViewCRS, cfg.WorkingCRS, logger.Component(log, "view"))

	s.Negotiator = wms.NewNegotiator(deps.Client, deps.CRS, logger.Component(log, "wms"))
	s.Negotiator.FallbackProxy = cfg.FallbackProxy
	if cfg.DefaultCRS != "" {
		s.Negotiator.DefaultCRS = crs.Normalize(cfg.DefaultCRS)
	}

	s.Simplifier = simplifier.New(s.Cache, logger.Component(log, "simplifier"))
	if cfg.SimplifyMaxZoom > 0 {
		s.Simplifier.MinZoom = cfg.SimplifyMinZoom
		s.Simplifier.MaxZoom = cfg.SimplifyMaxZoom
	}
	if cfg.SimplifyMaxTolerance > 0 {
		s.Simplifier.MaxTolerance = cfg.SimplifyMaxTolerance
	}

	s.Spatial = spatial.New(s.Registry, s.View, logger.Component(log, "spatial"))
	if cfg.FitMaxZoom > 0 {
		s.Spatial.MaxZoom = cfg.FitMaxZoom
	}
	if cfg.FitPadding > 0 {
		s.Spatial.Padding = cfg.FitPadding
	}

	s.Registry.SetHooks(registry.Hooks{
		OnLoaded: s.onLoaded,
		OnRemove: func(rec layer.Record) { s.Simplifier.Forget(rec.ID) },
	})
	s.View.OnZoom(s.Simplifier.Apply)
	return s
}

// Close stops in-flight loads.
func (s *Session) Close() { s.Registry.Close() }

func (s *Session) onLoaded(rec layer.Record, out featurestore.Outcome) {
	if out.Err != nil || out.Features == 0 {
		return
	}
	vs, ok := rec.Vector()
	if !ok {
		return
	}
	s.track(rec.ID, vs)
	// A Remove racing the hook has already forgotten the layer; drop what
	// track captured for it.
	if _, live := s.Registry.Get(rec.ID); !live {
		s.Simplifier.Forget(rec.ID)
	}
}

// track hands a vector layer to the simplifier and brings it to the
// current zoom.
func (s *Session) track(id string, vs *layer.VectorSource) {
	if s.Simplifier.Register(id, vs) > 0 {
		s.Simplifier.Apply(s.View.Zoom())
	}
}

// Layers returns the current registry snapshot.
func (s *Session) Layers() []layer.Record { return s.Registry.Snapshot() }

// Layer returns one layer.
func (s *Session) Layer(id string) (layer.Record, error) {
	rec, ok := s.Registry.Get(id)
	if !ok {
		return layer.Record{}, fmt.Errorf("%w: %q", errs.ErrUnknownLayer, id)
	}
	return rec, nil
}

// AddLayer registers rec on top of the stack.
func (s *Session) AddLayer(rec layer.Record) (layer.Record, error) {
	added, err := s.Registry.Add(rec)
	if err != nil {
		return layer.Record{}, err
	}
	if vs, ok := added.Vector(); ok && vs.Len() > 0 {
		s.track(added.ID, vs)
	}
	return added, nil
}

// Toggle flips the visibility of a layer.
func (s *Session) Toggle(id string) (layer.Record, error) { return s.Registry.Toggle(id) }

// Reorder moves a layer from one stack position to another.
func (s *Session) Reorder(from, to int) ([]layer.Record, error) { return s.Registry.Reorder(from, to) }

// SetColor changes a layer's fill colour.
func (s *Session) SetColor(id string, c style.Color) (layer.Record, error) {
	return s.Registry.SetColor(id, c)
}

// SetLabelColumn selects the label property of a layer.
func (s *Session) SetLabelColumn(id, column string) (layer.Record, error) {
	return s.Registry.SetLabelColumn(id, column)
}

// Rename changes a layer's display name.
func (s *Session) Rename(id, name string) (layer.Record, error) { return s.Registry.Rename(id, name) }

// Remove deletes a layer and its cached geometry.
func (s *Session) Remove(id string) (layer.Record, error) { return s.Registry.Remove(id) }

// ZoomToLayerExtent fits the view to a vector layer.
func (s *Session) ZoomToLayerExtent(id string) (view.Fit, error) {
	return s.Spatial.ZoomToLayerExtent(id)
}

// ZoomToFeature fits the view to the first feature matching c.
func (s *Session) ZoomToFeature(c spatial.Criteria) (spatial.Match, error) {
	return s.Spatial.ZoomToFeature(c)
}

// FetchAvailableLayers lists the named layers of a map service.
func (s *Session) FetchAvailableLayers(ctx context.Context, serviceURL string) ([]wms.LayerSummary, error) {
	return s.Negotiator.AvailableLayers(ctx, serviceURL)
}

// RemoteLayer describes a tiled layer to attach.
type RemoteLayer struct {
	ServiceURL string
	LayerName  string
	// Name is the display name; the layer title is used when empty.
	Name   string
	Active bool
}

// AddRemoteLayer negotiates a map service layer in the view's CRS and adds
// it on top. Failures leave the registry unchanged.
func (s *Session) AddRemoteLayer(ctx context.Context, rl RemoteLayer) (layer.Record, error) {
	ts, desc, err := s.Negotiator.Attach(ctx, rl.ServiceURL, rl.LayerName, s.View.CRS())
	if err != nil {
		s.log.Warn().Err(err).Str("service", rl.ServiceURL).Str("layer", rl.LayerName).Msg("remote layer not added")
		return layer.Record{}, err
	}
	name := rl.Name
	if name == "" {
		name = desc.Title
	}
	if name == "" {
		name = desc.Name
	}
	return s.AddLayer(layer.Record{
		Name:   name,
		Kind:   layer.TiledRemote,
		Active: rl.Active,
		Source: ts,
	})
}

// AddFeedLayer adds a server-backed vector layer whose features are fetched
// from url on first activation.
func (s *Session) AddFeedLayer(name, url string, spec style.Spec, active bool) (layer.Record, error) {
	return s.AddLayer(layer.Record{
		Name:   name,
		Kind:   layer.VectorRemote,
		APIURL: url,
		Active: active,
		Style:  spec,
	})
}

// Upload ingests a feature collection document as a new active local
// layer. Malformed input is ErrParse and adds nothing.
func (s *Session) Upload(name string, r io.Reader) (layer.Record, error) {
	fc, err := featurestore.Decode(r)
	if err != nil {
		s.log.Warn().Err(err).Str("name", name).Msg("upload rejected")
		return layer.Record{}, err
	}
	vs := layer.NewVectorSource()
	vs.Append(fc.Features...)
	return s.AddLayer(layer.Record{
		Name:   name,
		Kind:   layer.VectorLocal,
		Active: true,
		Source: vs,
	})
}

// ImportSource ingests a file from the sources directory.
func (s *Session) ImportSource(filename, name string) (layer.Record, error) {
	if s.Sources == nil {
		return layer.Record{}, fmt.Errorf("no sources directory configured")
	}
	rc, err := s.Sources.Open(filename)
	if err != nil {
		return layer.Record{}, err
	}
	defer rc.Close()
	if name == "" {
		name = strings.TrimSuffix(filename, filepath.Ext(filename))
	}
	return s.Upload(name, rc)
}

// StyledFeature is a feature with the style it is drawn with.
type StyledFeature struct {
	Feature *geojson.Feature `json:"feature"`
	Style   style.Render     `json:"style"`
}

// StyledFeatures returns the current features of a vector layer with their
// resolved styles.
func (s *Session) StyledFeatures(id string) (layer.Record, []StyledFeature, error) {
	rec, err := s.Layer(id)
	if err != nil {
		return layer.Record{}, nil, err
	}
	vs, ok := rec.Vector()
	if !ok {
		return rec, nil, fmt.Errorf("%w: layer %q is not a vector layer", errs.ErrInvalidGeometry, id)
	}
	draw := style.Func(rec.Style)
	feats := vs.Features()
	out := make([]StyledFeature, len(feats))
	for i, f := range feats {
		out[i] = StyledFeature{Feature: f, Style: draw(f)}
	}
	return rec, out, nil
}

// TileURL returns the GetMap request for a tiled layer covering bbox in the
// layer's resolved CRS.
func (s *Session) TileURL(id string, bbox orb.Bound, width, height int) (string, error) {
	rec, err := s.Layer(id)
	if err != nil {
		return "", err
	}
	ts, ok := rec.Source.(*wms.TileSource)
	if !ok || ts == nil {
		return "", fmt.Errorf("layer %q is not a tiled layer", id)
	}
	if width <= 0 || height <= 0 {
		return "", fmt.Errorf("tile size %dx%d must be positive", width, height)
	}
	return ts.GetMapURL(bbox, width, height), nil
}

// VectorTile encodes one MVT tile of a vector layer, simplified for z.
// An empty tile returns nil.
func (s *Session) VectorTile(id string, z, x, y uint32) ([]byte, error) {
	rec, err := s.Layer(id)
	if err != nil {
		return nil, err
	}
	vs, ok := rec.Vector()
	if !ok {
		return nil, fmt.Errorf("%w: layer %q is not a vector layer", errs.ErrInvalidGeometry, id)
	}
	if z > tiler.MaxZoom || uint64(x) >= 1<<z || uint64(y) >= 1<<z {
		return nil, fmt.Errorf("tile %d/%d/%d out of range", z, x, y)
	}
	tile := maptile.New(x, y, maptile.Zoom(z))
	return tiler.Encode(vs.Features(), tile, rec.ID, s.Simplifier.Tolerance(float64(z)))
}

// ViewUpdate changes parts of the view. Nil fields are left alone.
type ViewUpdate struct {
	CRS    *string
	Zoom   *float64
	Center *orb.Point
	Width  int
	Height int
}

// SetView applies u and returns the resulting view.
func (s *Session) SetView(u ViewUpdate) (view.State, error) {
	if u.CRS != nil {
		if err := s.View.SetCRS(*u.CRS); err != nil {
			return s.View.State(), err
		}
	}
	if u.Width != 0 || u.Height != 0 {
		if err := s.View.SetSize(u.Width, u.Height); err != nil {
			return s.View.State(), err
		}
	}
	if u.Center != nil {
		s.View.SetCenter(*u.Center)
	}
	if u.Zoom != nil {
		s.View.SetZoom(*u.Zoom)
	}
	return s.View.State(), nil
}

// Package simplifier swaps zoom-dependent simplified geometry into vector
// layers and restores the originals at high zoom.
package simplifier

import (
	"math"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-mapview/internal/geocache"
	"github.com/joeblew999/plat-mapview/internal/layer"
)

// Defaults for the simplification band. Tolerance is in working CRS units.
const (
	DefaultMinZoom      = 4
	DefaultMaxZoom      = 14
	DefaultMaxTolerance = 0.01
)

// Controller owns the zoom band and the originals of registered layers.
type Controller struct {
	Cache        *geocache.Cache
	MinZoom      float64
	MaxZoom      float64
	MaxTolerance float64
	Logger       zerolog.Logger

	mu      sync.Mutex
	sources map[string]*layer.VectorSource
}

// New creates a controller with the default band.
func New(cache *geocache.Cache, log zerolog.Logger) *Controller {
	if cache == nil {
		cache = geocache.New()
	}
	return &Controller{
		Cache:        cache,
		MinZoom:      DefaultMinZoom,
		MaxZoom:      DefaultMaxZoom,
		MaxTolerance: DefaultMaxTolerance,
		Logger:       log,
		sources:      make(map[string]*layer.VectorSource),
	}
}

// Register captures the original geometry of every feature of src that is
// not cached yet. Registering again after more features arrive captures only
// the new ones.
func (c *Controller) Register(layerID string, src *layer.VectorSource) int {
	n := 0
	for _, f := range src.Features() {
		if c.Cache.Capture(layerID, layer.FeatureID(f), f.Geometry) {
			n++
		}
	}
	c.mu.Lock()
	c.sources[layerID] = src
	c.mu.Unlock()
	c.Logger.Debug().Str("layer", layerID).Int("captured", n).Msg("originals captured")
	return n
}

// Forget drops a layer and its cached originals.
func (c *Controller) Forget(layerID string) {
	c.mu.Lock()
	delete(c.sources, layerID)
	c.mu.Unlock()
	dropped := c.Cache.DropLayer(layerID)
	c.Logger.Debug().Str("layer", layerID).Int("dropped", dropped).Msg("originals dropped")
}

// Tolerance returns the simplification tolerance for zoom:
// MaxTolerance * max((MaxZoom-zoom)/(MaxZoom-MinZoom), 0).
func (c *Controller) Tolerance(zoom float64) float64 {
	span := c.MaxZoom - c.MinZoom
	if span <= 0 {
		if zoom >= c.MaxZoom {
			return 0
		}
		return c.MaxTolerance
	}
	return c.MaxTolerance * math.Max((c.MaxZoom-zoom)/span, 0)
}

// Apply rewrites every registered layer for zoom. At or above MaxZoom the
// cached originals are restored; below it each feature gets a simplified
// copy of its original. The cache itself is never modified.
func (c *Controller) Apply(zoom float64) {
	c.mu.Lock()
	layers := make(map[string]*layer.VectorSource, len(c.sources))
	for id, src := range c.sources {
		layers[id] = src
	}
	c.mu.Unlock()

	tol := c.Tolerance(zoom)
	restore := zoom >= c.MaxZoom || tol <= 0
	for id, src := range layers {
		swapped := 0
		for _, f := range src.Features() {
			fid := layer.FeatureID(f)
			orig, ok := c.Cache.Original(id, fid)
			if !ok {
				continue
			}
			if !restore {
				orig = simplified(orig, tol)
			}
			if src.Swap(fid, orig) {
				swapped++
			}
		}
		if swapped > 0 {
			src.Changed()
		}
		c.Logger.Debug().Str("layer", id).Float64("zoom", zoom).Float64("tolerance", tol).Int("features", swapped).Msg("geometry applied")
	}
}

// simplified returns g simplified with Douglas-Peucker. Points pass through
// unchanged. g must be a private copy: the simplifier works in place.
func simplified(g orb.Geometry, tol float64) orb.Geometry {
	switch g.(type) {
	case orb.Point, orb.MultiPoint:
		return g
	}
	return simplify.DouglasPeucker(tol).Simplify(g)
}

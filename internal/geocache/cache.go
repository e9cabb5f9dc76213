// Package geocache holds the original, un-simplified geometry of features.
//
// Entries are keyed per layer so that removing a layer drops all of its
// geometries in one call.
package geocache

import (
	"sync"

	"github.com/paulmach/orb"
)

// Cache stores read-only clones of original geometries.
type Cache struct {
	mu      sync.RWMutex
	byLayer map[string]map[string]orb.Geometry
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{byLayer: make(map[string]map[string]orb.Geometry)}
}

// Capture stores a clone of geom for the feature unless one is already
// cached. It reports whether the geometry was stored.
func (c *Cache) Capture(layerID, featureID string, geom orb.Geometry) bool {
	if geom == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	feats, ok := c.byLayer[layerID]
	if !ok {
		feats = make(map[string]orb.Geometry)
		c.byLayer[layerID] = feats
	}
	if _, exists := feats[featureID]; exists {
		return false
	}
	feats[featureID] = orb.Clone(geom)
	return true
}

// Original returns a clone of the cached original geometry.
func (c *Cache) Original(layerID, featureID string) (orb.Geometry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	g, ok := c.byLayer[layerID][featureID]
	if !ok {
		return nil, false
	}
	return orb.Clone(g), true
}

// Has reports whether any geometry is cached for the layer.
func (c *Cache) Has(layerID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byLayer[layerID]) > 0
}

// DropLayer removes every geometry cached for the layer and returns how many
// were removed.
func (c *Cache) DropLayer(layerID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.byLayer[layerID])
	delete(c.byLayer, layerID)
	return n
}

// Len returns the total number of cached geometries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, feats := range c.byLayer {
		n += len(feats)
	}
	return n
}

// Package tiler encodes the features of a vector layer as Mapbox vector
// tiles, so large layers can be drawn tile by tile.
package tiler

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"
)

// MaxZoom is the deepest tile zoom served.
const MaxZoom = 22

// Encode builds one gzipped MVT tile from features in WGS84. Features are
// cloned first: clipping and projection work in place. A tile with no
// features left returns nil.
func Encode(features []*geojson.Feature, tile maptile.Tile, layerName string, epsilon float64) ([]byte, error) {
	if tile.Z > MaxZoom {
		return nil, fmt.Errorf("zoom %d above %d", tile.Z, MaxZoom)
	}
	fc := geojson.NewFeatureCollection()
	bound := tile.Bound()

	for _, f := range features {
		if f == nil || f.Geometry == nil || !Intersects(f.Geometry, bound) {
			continue
		}
		clone := geojson.NewFeature(orb.Clone(f.Geometry))
		for k, v := range f.Properties {
			clone.Properties[k] = v
		}
		fc.Append(clone)
	}
	if len(fc.Features) == 0 {
		return nil, nil
	}

	layer := mvt.NewLayer(layerName, fc)
	if epsilon > 0 {
		layer.Simplify(simplify.DouglasPeucker(epsilon))
	}
	layer.Clip(bound)
	layer.ProjectToTile(tile)
	layer.RemoveEmpty(0.5, 0.5)
	if len(layer.Features) == 0 {
		return nil, nil
	}

	data, err := mvt.MarshalGzipped(mvt.Layers{layer})
	if err != nil {
		return nil, fmt.Errorf("encoding tile %d/%d/%d: %w", tile.Z, tile.X, tile.Y, err)
	}
	return data, nil
}

// Covering returns the tiles at zoom that intersect b.
func Covering(b orb.Bound, zoom maptile.Zoom) []maptile.Tile {
	lo := maptile.At(b.Min, zoom)
	hi := maptile.At(b.Max, zoom)

	minX, maxX := lo.X, hi.X
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	minY, maxY := lo.Y, hi.Y
	if minY > maxY {
		minY, maxY = maxY, minY
	}

	var tiles []maptile.Tile
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			tiles = append(tiles, maptile.New(x, y, zoom))
		}
	}
	return tiles
}

// Intersects reports whether geom touches the tile bound. Lines are
// accepted on a bounding box overlap.
func Intersects(geom orb.Geometry, tb orb.Bound) bool {
	if !geom.Bound().Intersects(tb) {
		return false
	}

	switch g := geom.(type) {
	case orb.Point:
		return tb.Contains(g)
	case orb.MultiPoint:
		for _, p := range g {
			if tb.Contains(p) {
				return true
			}
		}
		return false
	case orb.Polygon:
		for _, ring := range g {
			for _, p := range ring {
				if tb.Contains(p) {
					return true
				}
			}
		}
		corners := []orb.Point{tb.Min, {tb.Max[0], tb.Min[1]}, tb.Max, {tb.Min[0], tb.Max[1]}, tb.Center()}
		for _, p := range corners {
			if planar.PolygonContains(g, p) {
				return true
			}
		}
		return false
	case orb.MultiPolygon:
		for _, poly := range g {
			if Intersects(poly, tb) {
				return true
			}
		}
		return false
	case orb.MultiLineString:
		for _, ls := range g {
			if Intersects(ls, tb) {
				return true
			}
		}
		return false
	}
	return true
}

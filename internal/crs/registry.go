// Package crs keeps the projection definitions known to a map session and
// resolves which CRS a remote layer should be displayed in.
//
// A Registry is an explicit object owned by whoever negotiates remote
// layers; nothing here is process-global.
package crs

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/joeblew999/plat-mapview/internal/errs"
)

// Well-known codes.
const (
	WGS84       = "EPSG:4326"
	WebMercator = "EPSG:3857"
)

// Units of a CRS's coordinates.
type Units string

const (
	Degrees Units = "degrees"
	Metres  Units = "m"
)

// Definition is a registered projection.
type Definition struct {
	Code  string `json:"code" doc:"Canonical CRS code" example:"EPSG:3857"`
	Proj4 string `json:"proj4" doc:"proj4 definition string"`
	Units Units  `json:"units" doc:"Coordinate units" example:"m"`
}

// DefinitionSource looks up a proj4 definition for a CRS code.
type DefinitionSource interface {
	Lookup(ctx context.Context, code string) (string, error)
}

// Registry is a set of projection definitions plus an optional source for
// definitions it does not know yet.
type Registry struct {
	mu      sync.RWMutex
	defs    map[string]Definition
	aliases map[string]string
	source  DefinitionSource
}

// NewRegistry creates a registry holding the built-in WGS84 and Web
// Mercator definitions. src may be nil.
func NewRegistry(src DefinitionSource) *Registry {
	r := &Registry{
		defs:    make(map[string]Definition),
		aliases: make(map[string]string),
		source:  src,
	}
	r.Register(Definition{
		Code:  WGS84,
		Proj4: "+proj=longlat +datum=WGS84 +no_defs",
		Units: Degrees,
	})
	r.Register(Definition{
		Code:  WebMercator,
		Proj4: "+proj=merc +a=6378137 +b=6378137 +lat_ts=0 +lon_0=0 +x_0=0 +y_0=0 +k=1 +units=m +nadgrids=@null +wktext +no_defs",
		Units: Metres,
	})
	r.Alias("CRS:84", WGS84)
	r.Alias("EPSG:900913", WebMercator)
	r.Alias("EPSG:102100", WebMercator)
	return r
}

// Normalize canonicalises a CRS code: upper case, trimmed, and OGC URNs
// (urn:ogc:def:crs:EPSG::3857) folded into EPSG:3857.
func Normalize(code string) string {
	c := strings.ToUpper(strings.TrimSpace(code))
	if strings.HasPrefix(c, "URN:OGC:DEF:CRS:") {
		parts := strings.Split(c, ":")
		if len(parts) >= 7 {
			auth, num := parts[4], parts[len(parts)-1]
			if auth == "OGC" && num == "CRS84" {
				return "CRS:84"
			}
			return auth + ":" + num
		}
	}
	return c
}

// Register adds or replaces a definition.
func (r *Registry) Register(def Definition) {
	def.Code = Normalize(def.Code)
	if def.Units == "" {
		def.Units = unitsOf(def.Proj4)
	}
	r.mu.Lock()
	r.defs[def.Code] = def
	r.mu.Unlock()
}

// Alias makes alias resolve to the definition registered under code.
func (r *Registry) Alias(alias, code string) {
	r.mu.Lock()
	r.aliases[Normalize(alias)] = Normalize(code)
	r.mu.Unlock()
}

// Definition returns the registered definition for code.
func (r *Registry) Definition(code string) (Definition, bool) {
	c := Normalize(code)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if target, ok := r.aliases[c]; ok {
		c = target
	}
	def, ok := r.defs[c]
	return def, ok
}

// Known reports whether code can be used without a lookup.
func (r *Registry) Known(code string) bool {
	_, ok := r.Definition(code)
	return ok
}

// Codes returns the canonical codes currently registered.
func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.defs))
	for c := range r.defs {
		out = append(out, c)
	}
	return out
}

// Ensure returns the definition for code, fetching and registering it from
// the definition source first if needed. Any failure to obtain a definition
// is ErrUnsupportedProjection.
func (r *Registry) Ensure(ctx context.Context, code string) (Definition, error) {
	if def, ok := r.Definition(code); ok {
		return def, nil
	}
	c := Normalize(code)
	if r.source == nil {
		return Definition{}, fmt.Errorf("%w: %s: no definition source", errs.ErrUnsupportedProjection, c)
	}

	proj4, err := r.source.Lookup(ctx, c)
	if err != nil {
		return Definition{}, fmt.Errorf("%w: %s: %w", errs.ErrUnsupportedProjection, c, err)
	}
	proj4 = strings.TrimSpace(proj4)
	if !strings.Contains(proj4, "+proj=") {
		return Definition{}, fmt.Errorf("%w: %s: definition is not proj4", errs.ErrUnsupportedProjection, c)
	}

	def := Definition{Code: c, Proj4: proj4, Units: unitsOf(proj4)}
	r.Register(def)
	return def, nil
}

func unitsOf(proj4 string) Units {
	if strings.Contains(proj4, "+proj=longlat") || strings.Contains(proj4, "+proj=latlong") {
		return Degrees
	}
	return Metres
}

package layer

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// VectorSource holds the features of a vector layer. Features handed out are
// shallow copies; geometry is replaced through Swap, never edited in place.
type VectorSource struct {
	Counter

	mu       sync.RWMutex
	features []*geojson.Feature
	index    map[string]int
}

// NewVectorSource creates an empty source.
func NewVectorSource() *VectorSource {
	return &VectorSource{index: make(map[string]int)}
}

// FeatureID returns the identity of a feature as a string, or "" when unset.
func FeatureID(f *geojson.Feature) string {
	switch id := f.ID.(type) {
	case nil:
		return ""
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return fmt.Sprint(id)
	}
}

// Append adds features, generating an id for any feature without one (or
// whose id is already taken in this source), and returns the ids assigned.
func (s *VectorSource) Append(fs ...*geojson.Feature) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(fs))
	for _, f := range fs {
		if f == nil {
			continue
		}
		id := FeatureID(f)
		if _, taken := s.index[id]; id == "" || taken {
			id = uuid.NewString()
			f.ID = id
		}
		if f.Properties == nil {
			f.Properties = geojson.Properties{}
		}
		s.index[id] = len(s.features)
		s.features = append(s.features, f)
		ids = append(ids, id)
	}
	if len(ids) > 0 {
		s.Changed()
	}
	return ids
}

// Len returns the number of features.
func (s *VectorSource) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.features)
}

// Features returns shallow copies of all features in insertion order.
func (s *VectorSource) Features() []*geojson.Feature {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*geojson.Feature, len(s.features))
	for i, f := range s.features {
		c := *f
		out[i] = &c
	}
	return out
}

// Collection returns the features as a GeoJSON feature collection.
func (s *VectorSource) Collection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.Features = s.Features()
	return fc
}

// Get returns a copy of the feature with the given id.
func (s *VectorSource) Get(id string) (*geojson.Feature, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	c := *s.features[i]
	return &c, true
}

// Find returns a copy of the first feature matching pred.
func (s *VectorSource) Find(pred func(f *geojson.Feature) bool) (*geojson.Feature, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, f := range s.features {
		if pred(f) {
			c := *f
			return &c, true
		}
	}
	return nil, false
}

// Swap replaces the geometry of a feature. It reports whether the feature
// exists.
func (s *VectorSource) Swap(id string, g orb.Geometry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return false
	}
	s.features[i].Geometry = g
	return true
}

// Extent returns the bounding box of all feature geometries and how many
// geometries contributed. Features without geometry are skipped.
func (s *VectorSource) Extent() (orb.Bound, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var b orb.Bound
	n := 0
	for _, f := range s.features {
		if f.Geometry == nil {
			continue
		}
		if n == 0 {
			b = f.Geometry.Bound()
		} else {
			b = b.Union(f.Geometry.Bound())
		}
		n++
	}
	return b, n
}

// Columns returns the sorted union of property names across features.
func (s *VectorSource) Columns() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := map[string]struct{}{}
	for _, f := range s.features {
		for k := range f.Properties {
			seen[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// Finite reports whether every coordinate of b is a finite number.
func Finite(b orb.Bound) bool {
	for _, v := range []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

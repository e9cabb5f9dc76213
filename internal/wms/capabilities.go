// Package wms negotiates with remote OGC Web Map Services: it reads their
// capability documents, resolves a display CRS and builds tile requests.
package wms

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/joeblew999/plat-mapview/internal/crs"
	"github.com/joeblew999/plat-mapview/internal/errs"
)

// Descriptor describes one named layer of a capability document. It is
// immutable once parsed.
type Descriptor struct {
	Name          string                `json:"name" doc:"Layer name used in GetMap LAYERS" example:"parcels"`
	Title         string                `json:"title" doc:"Human readable title"`
	Abstract      string                `json:"abstract,omitempty" doc:"Layer description"`
	Queryable     bool                  `json:"queryable" doc:"Whether GetFeatureInfo is supported"`
	SupportedCRS  []string              `json:"supportedCRS" doc:"CRS codes in document order"`
	BoundingBoxes map[string][4]float64 `json:"boundingBoxes" doc:"Bounding box [minx,miny,maxx,maxy] per CRS"`
	GeographicBox *[4]float64           `json:"geographicBox,omitempty" doc:"WGS84 extent [west,south,east,north]"`
}

// Supports reports whether the layer advertises code.
func (d Descriptor) Supports(code string) bool {
	want := crs.Normalize(code)
	for _, c := range d.SupportedCRS {
		if c == want {
			return true
		}
	}
	return false
}

// Capabilities is a parsed capability document.
type Capabilities struct {
	Version string
	Title   string
	Formats []string
	Layers  map[string]Descriptor
	// Order lists layer names by first appearance in the document.
	Order []string
}

// Catalog returns the descriptors in document order.
func (c *Capabilities) Catalog() []Descriptor {
	out := make([]Descriptor, 0, len(c.Order))
	for _, name := range c.Order {
		out = append(out, c.Layers[name])
	}
	return out
}

// Layer returns the descriptor for name or ErrLayerNotFound.
func (c *Capabilities) Layer(name string) (Descriptor, error) {
	d, ok := c.Layers[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", errs.ErrLayerNotFound, name)
	}
	return d, nil
}

type xmlDocument struct {
	XMLName xml.Name
	Version string `xml:"version,attr"`
	Service struct {
		Title string `xml:"Title"`
	} `xml:"Service"`
	Capability struct {
		Request struct {
			GetMap struct {
				Formats []string `xml:"Format"`
			} `xml:"GetMap"`
		} `xml:"Request"`
		Layers []xmlLayer `xml:"Layer"`
	} `xml:"Capability"`
}

type xmlLayer struct {
	Queryable string     `xml:"queryable,attr"`
	Name      string     `xml:"Name"`
	Title     string     `xml:"Title"`
	Abstract  string     `xml:"Abstract"`
	CRS       []string   `xml:"CRS"`
	SRS       []string   `xml:"SRS"`
	GeoBox    *xmlGeoBox `xml:"EX_GeographicBoundingBox"`
	LatLonBox *xmlBBox   `xml:"LatLonBoundingBox"`
	BBoxes    []xmlBBox  `xml:"BoundingBox"`
	Layers    []xmlLayer `xml:"Layer"`
}

type xmlGeoBox struct {
	West  float64 `xml:"westBoundLongitude"`
	East  float64 `xml:"eastBoundLongitude"`
	South float64 `xml:"southBoundLatitude"`
	North float64 `xml:"northBoundLatitude"`
}

type xmlBBox struct {
	CRS  string  `xml:"CRS,attr"`
	SRS  string  `xml:"SRS,attr"`
	MinX float64 `xml:"minx,attr"`
	MinY float64 `xml:"miny,attr"`
	MaxX float64 `xml:"maxx,attr"`
	MaxY float64 `xml:"maxy,attr"`
}

// ParseDocument parses a WMS 1.1.1 or 1.3.0 capability document. Layer CRS
// lists and bounding boxes are inherited from ancestor layers. When a name
// repeats, the last occurrence wins.
func ParseDocument(doc []byte) (*Capabilities, error) {
	var x xmlDocument
	if err := xml.NewDecoder(bytes.NewReader(doc)).Decode(&x); err != nil {
		return nil, fmt.Errorf("%w: capabilities: %w", errs.ErrParse, err)
	}
	root := x.XMLName.Local
	if root != "WMS_Capabilities" && root != "WMT_MS_Capabilities" {
		return nil, fmt.Errorf("%w: unexpected root element <%s>", errs.ErrParse, root)
	}

	caps := &Capabilities{
		Version: x.Version,
		Title:   strings.TrimSpace(x.Service.Title),
		Formats: x.Capability.Request.GetMap.Formats,
		Layers:  make(map[string]Descriptor),
	}
	for _, l := range x.Capability.Layers {
		caps.walk(l, nil, nil, nil)
	}
	return caps, nil
}

// ParseCapabilities parses doc and returns the descriptor of layerName.
func ParseCapabilities(doc []byte, layerName string) (Descriptor, error) {
	caps, err := ParseDocument(doc)
	if err != nil {
		return Descriptor{}, err
	}
	return caps.Layer(layerName)
}

func (c *Capabilities) walk(l xmlLayer, parentCRS []string, parentBoxes map[string][4]float64, parentGeo *[4]float64) {
	codes := append([]string(nil), parentCRS...)
	for _, raw := range append(l.CRS, l.SRS...) {
		// 1.1.1 servers sometimes pack several codes into one element
		for _, code := range strings.Fields(raw) {
			codes = appendUnique(codes, crs.Normalize(code))
		}
	}

	boxes := make(map[string][4]float64, len(parentBoxes)+len(l.BBoxes))
	for k, v := range parentBoxes {
		boxes[k] = v
	}
	for _, b := range l.BBoxes {
		code := b.CRS
		if code == "" {
			code = b.SRS
		}
		if code == "" {
			continue
		}
		boxes[crs.Normalize(code)] = [4]float64{b.MinX, b.MinY, b.MaxX, b.MaxY}
	}

	geo := parentGeo
	switch {
	case l.GeoBox != nil:
		geo = &[4]float64{l.GeoBox.West, l.GeoBox.South, l.GeoBox.East, l.GeoBox.North}
	case l.LatLonBox != nil:
		geo = &[4]float64{l.LatLonBox.MinX, l.LatLonBox.MinY, l.LatLonBox.MaxX, l.LatLonBox.MaxY}
	}

	if name := strings.TrimSpace(l.Name); name != "" {
		if _, seen := c.Layers[name]; !seen {
			c.Order = append(c.Order, name)
		}
		c.Layers[name] = Descriptor{
			Name:          name,
			Title:         strings.TrimSpace(l.Title),
			Abstract:      strings.TrimSpace(l.Abstract),
			Queryable:     l.Queryable == "1" || l.Queryable == "true",
			SupportedCRS:  codes,
			BoundingBoxes: boxes,
			GeographicBox: geo,
		}
	}

	for _, child := range l.Layers {
		c.walk(child, codes, boxes, geo)
	}
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

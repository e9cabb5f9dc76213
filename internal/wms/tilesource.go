package wms

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-mapview/internal/crs"
	"github.com/joeblew999/plat-mapview/internal/layer"
)

// TileSource is the live source of a tiled remote layer.
type TileSource struct {
	layer.Counter

	ServiceURL string
	LayerName  string
	CRS        string
	Version    string
	Format     string
	// Extent is the advertised bounding box in CRS, if any.
	Extent *[4]float64
}

var _ layer.Source = (*TileSource)(nil)

// GetMapURL builds the image request for one tile covering bbox (in the
// tile source's CRS).
func (t *TileSource) GetMapURL(bbox orb.Bound, width, height int) string {
	u, err := url.Parse(t.ServiceURL)
	if err != nil {
		return ""
	}
	q := u.Query()
	dropKeys(q, "service", "request", "version", "layers", "styles", "format",
		"transparent", "crs", "srs", "bbox", "width", "height")

	version := t.Version
	if version == "" {
		version = "1.3.0"
	}
	format := t.Format
	if format == "" {
		format = "image/png"
	}

	q.Set("SERVICE", "WMS")
	q.Set("VERSION", version)
	q.Set("REQUEST", "GetMap")
	q.Set("LAYERS", t.LayerName)
	q.Set("STYLES", "")
	q.Set("FORMAT", format)
	q.Set("TRANSPARENT", "true")
	q.Set("WIDTH", strconv.Itoa(width))
	q.Set("HEIGHT", strconv.Itoa(height))

	coords := []float64{bbox.Min[0], bbox.Min[1], bbox.Max[0], bbox.Max[1]}
	if strings.HasPrefix(version, "1.1") {
		q.Set("SRS", t.CRS)
	} else {
		q.Set("CRS", t.CRS)
		// 1.3.0 uses the authority axis order, latitude first for EPSG:4326
		if crs.Normalize(t.CRS) == crs.WGS84 {
			coords = []float64{bbox.Min[1], bbox.Min[0], bbox.Max[1], bbox.Max[0]}
		}
	}
	parts := make([]string, len(coords))
	for i, c := range coords {
		parts[i] = strconv.FormatFloat(c, 'f', -1, 64)
	}
	q.Set("BBOX", strings.Join(parts, ","))

	u.RawQuery = q.Encode()
	return u.String()
}

// Package view holds the camera of a map session: its CRS, zoom and center.
package view

import (
	"fmt"
	"math"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-mapview/internal/crs"
	"github.com/joeblew999/plat-mapview/internal/errs"
)

const (
	tileSize = 256
	// maxLat is the latitude limit of web mercator.
	maxLat        = 85.05112878
	mercatorWorld = 2 * 20037508.342789244
)

// FitOptions bound a fit request.
type FitOptions struct {
	MaxZoom float64 `json:"maxZoom" doc:"Upper zoom bound for the fit"`
	Padding int     `json:"padding" doc:"Padding in pixels on every side"`
}

// Fit is one recorded fit request and its result.
type Fit struct {
	// Extent in the working CRS as requested.
	Extent  orb.Bound  `json:"extent"`
	Options FitOptions `json:"options"`
	Center  orb.Point  `json:"center"`
	Zoom    float64    `json:"zoom"`
}

// State is a point-in-time copy of the view.
type State struct {
	CRS        string    `json:"crs" example:"EPSG:3857"`
	WorkingCRS string    `json:"workingCRS" example:"EPSG:4326"`
	Zoom       float64   `json:"zoom" example:"6"`
	Center     orb.Point `json:"center" doc:"Center in the view CRS"`
	Width      int       `json:"width" example:"1024"`
	Height     int       `json:"height" example:"768"`
}

// View is the shared map camera. Zoom listeners run synchronously after the
// lock is released.
type View struct {
	mu        sync.Mutex
	state     State
	minZoom   float64
	maxZoom   float64
	fits      []Fit
	listeners []func(zoom float64)
	log       zerolog.Logger
}

// New creates a view showing viewCRS, with data arriving in workingCRS.
func New(viewCRS, workingCRS string, log zerolog.Logger) *View {
	if viewCRS == "" {
		viewCRS = crs.WebMercator
	}
	if workingCRS == "" {
		workingCRS = crs.WGS84
	}
	return &View{
		state: State{
			CRS:        crs.Normalize(viewCRS),
			WorkingCRS: crs.Normalize(workingCRS),
			Width:      1024,
			Height:     768,
		},
		maxZoom: 22,
		log:     log,
	}
}

// State returns the current view.
func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// CRS returns the CRS the view is displayed in.
func (v *View) CRS() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state.CRS
}

// Zoom returns the current zoom level.
func (v *View) Zoom() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state.Zoom
}

// OnZoom registers fn to be called with the new zoom after every change.
func (v *View) OnZoom(fn func(zoom float64)) {
	v.mu.Lock()
	v.listeners = append(v.listeners, fn)
	v.mu.Unlock()
}

// SetZoom changes the zoom level, clamped to the view's range.
func (v *View) SetZoom(z float64) {
	v.mu.Lock()
	z = v.clamp(z)
	changed := z != v.state.Zoom
	v.state.Zoom = z
	v.mu.Unlock()
	if changed {
		v.notify(z)
	}
}

// SetCenter moves the view. c is in the view CRS.
func (v *View) SetCenter(c orb.Point) {
	v.mu.Lock()
	v.state.Center = c
	v.mu.Unlock()
}

// SetSize sets the viewport size in pixels.
func (v *View) SetSize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("viewport %dx%d must be positive", width, height)
	}
	v.mu.Lock()
	v.state.Width, v.state.Height = width, height
	v.mu.Unlock()
	return nil
}

// SetCRS switches the display CRS. Only geographic and web mercator
// displays are supported.
func (v *View) SetCRS(code string) error {
	c := crs.Normalize(code)
	if c != crs.WGS84 && c != crs.WebMercator {
		return fmt.Errorf("%w: view cannot display %s", errs.ErrUnsupportedProjection, c)
	}
	v.mu.Lock()
	if v.state.CRS != c {
		v.state.Center = convert(v.state.Center, v.state.CRS, c)
		v.state.CRS = c
	}
	v.mu.Unlock()
	return nil
}

// Fit centers the view on extent (in the working CRS) at the largest zoom
// that shows it whole, bounded by opts.MaxZoom.
func (v *View) Fit(extent orb.Bound, opts FitOptions) Fit {
	v.mu.Lock()
	b := convertBound(extent, v.state.WorkingCRS, v.state.CRS)
	w := float64(v.state.Width - 2*opts.Padding)
	h := float64(v.state.Height - 2*opts.Padding)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	world := mercatorWorld
	if v.state.CRS == crs.WGS84 {
		world = 360
	}
	res := math.Max(b.Max[0]-b.Min[0], 0) / w
	if yr := math.Max(b.Max[1]-b.Min[1], 0) / h; yr > res {
		res = yr
	}

	maxZoom := v.maxZoom
	if opts.MaxZoom > 0 && opts.MaxZoom < maxZoom {
		maxZoom = opts.MaxZoom
	}
	zoom := maxZoom
	if res > 0 {
		zoom = math.Min(math.Log2(world/tileSize/res), maxZoom)
	}
	zoom = math.Max(zoom, v.minZoom)

	fit := Fit{Extent: extent, Options: opts, Center: b.Center(), Zoom: zoom}
	changed := zoom != v.state.Zoom
	v.state.Center = fit.Center
	v.state.Zoom = zoom
	v.fits = append(v.fits, fit)
	v.mu.Unlock()

	v.log.Debug().Float64("zoom", zoom).Interface("center", fit.Center).Msg("view fitted")
	if changed {
		v.notify(zoom)
	}
	return fit
}

// Fits returns the fit requests issued so far, oldest first.
func (v *View) Fits() []Fit {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]Fit(nil), v.fits...)
}

// ViewportBound returns the area shown by the view, in the view CRS.
func (v *View) ViewportBound() orb.Bound {
	v.mu.Lock()
	defer v.mu.Unlock()
	world := mercatorWorld
	if v.state.CRS == crs.WGS84 {
		world = 360
	}
	res := world / tileSize / math.Pow(2, v.state.Zoom)
	hw := res * float64(v.state.Width) / 2
	hh := res * float64(v.state.Height) / 2
	c := v.state.Center
	return orb.Bound{Min: orb.Point{c[0] - hw, c[1] - hh}, Max: orb.Point{c[0] + hw, c[1] + hh}}
}

func (v *View) clamp(z float64) float64 {
	return math.Min(math.Max(z, v.minZoom), v.maxZoom)
}

func (v *View) notify(z float64) {
	v.mu.Lock()
	fns := append([]func(float64){}, v.listeners...)
	v.mu.Unlock()
	for _, fn := range fns {
		fn(z)
	}
}

func convertBound(b orb.Bound, from, to string) orb.Bound {
	if from == to {
		return b
	}
	return orb.Bound{Min: convert(b.Min, from, to), Max: convert(b.Max, from, to)}
}

// convert moves a point between geographic and web mercator coordinates.
func convert(p orb.Point, from, to string) orb.Point {
	switch {
	case from == to:
		return p
	case from == crs.WGS84 && to == crs.WebMercator:
		p[1] = math.Max(math.Min(p[1], maxLat), -maxLat)
		return project.WGS84.ToMercator(p)
	case from == crs.WebMercator && to == crs.WGS84:
		return project.Mercator.ToWGS84(p)
	}
	return p
}

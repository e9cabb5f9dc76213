// Package layer defines layer records and the live feature sources they
// reference.
package layer

import (
	"sync/atomic"

	"github.com/joeblew999/plat-mapview/internal/style"
)

// Kind is the origin of a layer's data.
type Kind string

const (
	VectorLocal  Kind = "vector-local"
	VectorRemote Kind = "vector-remote"
	TiledRemote  Kind = "tiled-remote"
)

// IsVector reports whether layers of this kind hold features.
func (k Kind) IsVector() bool {
	return k == VectorLocal || k == VectorRemote
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case VectorLocal, VectorRemote, TiledRemote:
		return true
	}
	return false
}

// LoadState tracks the one-shot lazy load of a remote vector layer:
// unloaded -> loading -> loaded | loaded-empty. No other transition exists.
type LoadState string

const (
	Unloaded    LoadState = "unloaded"
	Loading     LoadState = "loading"
	Loaded      LoadState = "loaded"
	LoadedEmpty LoadState = "loaded-empty"
)

// Source is the live feature or tile source behind a layer. Changed forces a
// redraw; renderers compare Revision to decide when to repaint.
type Source interface {
	Changed()
	Revision() uint64
}

// Record is one layer in the registry. Records are values: the registry
// replaces them, it never changes one in place.
type Record struct {
	ID            string
	Name          string
	Kind          Kind
	Active        bool
	Loading       bool
	ZIndex        int
	Source        Source
	APIURL        string
	HasAttributes bool
	Style         style.Spec
	State         LoadState
}

// Vector returns the record's vector source, if it has one.
func (r Record) Vector() (*VectorSource, bool) {
	vs, ok := r.Source.(*VectorSource)
	return vs, ok && vs != nil
}

// Counter is an embeddable redraw counter implementing Source.
type Counter struct {
	n atomic.Uint64
}

// Changed bumps the revision.
func (c *Counter) Changed() { c.n.Add(1) }

// Revision returns the current revision.
func (c *Counter) Revision() uint64 { return c.n.Load() }

package crs

import (
	"fmt"

	"github.com/joeblew999/plat-mapview/internal/errs"
)

// Resolve picks the CRS a layer advertising supported should be shown in:
// the view's CRS when supported, else defaultCRS when supported, else the
// first advertised code. An empty list is ErrUnsupportedProjection.
func Resolve(supported []string, viewCRS, defaultCRS string) (string, error) {
	if len(supported) == 0 {
		return "", fmt.Errorf("%w: layer advertises no CRS", errs.ErrUnsupportedProjection)
	}
	if c, ok := find(supported, viewCRS); ok {
		return c, nil
	}
	if c, ok := find(supported, defaultCRS); ok {
		return c, nil
	}
	return Normalize(supported[0]), nil
}

func find(supported []string, code string) (string, bool) {
	if code == "" {
		return "", false
	}
	want := Normalize(code)
	for _, s := range supported {
		if Normalize(s) == want {
			return want, true
		}
	}
	return "", false
}

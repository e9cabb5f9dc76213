// Package errs defines the error taxonomy shared by the map session.
//
// Callers wrap these sentinels with fmt.Errorf("...: %w", err) and test
// them with errors.Is. The API edge maps each one to an HTTP status.
package errs

import "errors"

var (
	// ErrNetwork means a fetch failed or returned a non-2xx status.
	ErrNetwork = errors.New("network error")

	// ErrParse means a capability or feature document was malformed.
	ErrParse = errors.New("parse error")

	// ErrLayerNotFound means the requested layer is absent from a capability document.
	ErrLayerNotFound = errors.New("layer not found in capabilities")

	// ErrUnsupportedProjection means no common or resolvable CRS exists.
	ErrUnsupportedProjection = errors.New("unsupported projection")

	// ErrInvalidGeometry means a zoom request had an absent or degenerate extent.
	ErrInvalidGeometry = errors.New("invalid geometry")

	// ErrUnknownLayer means no registered layer has the given id.
	ErrUnknownLayer = errors.New("unknown layer")

	// ErrFeatureNotFound means no active layer holds a feature matching a query.
	ErrFeatureNotFound = errors.New("feature not found")

	// ErrIndexOutOfRange means a reorder index is outside the registry.
	ErrIndexOutOfRange = errors.New("index out of range")
)

// Package featurestore fetches the features of server-backed vector layers
// and decodes feature-collection documents.
package featurestore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-mapview/internal/errs"
	"github.com/joeblew999/plat-mapview/internal/layer"
	"github.com/joeblew999/plat-mapview/internal/metrics"
)

// MaxDocumentBytes caps the size of a feature document.
const MaxDocumentBytes = 64 << 20

// Outcome is the resolved result of a load. Err is set when the fetch or
// decode failed; in that case no features were appended.
type Outcome struct {
	Features int
	Columns  []string
	Err      error
}

// Adapter loads remote feature collections into vector sources.
type Adapter struct {
	Client *http.Client
	Logger zerolog.Logger
}

// New creates an adapter. A nil client uses http.DefaultClient.
func New(client *http.Client, log zerolog.Logger) *Adapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &Adapter{Client: client, Logger: log}
}

// Load performs one GET of url and appends the decoded features into dst.
// It never returns an error: failures are logged and reported in Outcome so
// the caller can always leave its loading state.
func (a *Adapter) Load(ctx context.Context, url string, dst *layer.VectorSource) Outcome {
	start := time.Now()
	log := a.Logger.With().Str("url", url).Logger()

	fc, err := a.fetch(ctx, url)
	if err != nil {
		metrics.ObserveUpstream(metrics.UpstreamFeatures, "error", time.Since(start).Seconds())
		log.Error().Err(err).Msg("feature fetch failed; layer stays empty")
		return Outcome{Err: err}
	}
	metrics.ObserveUpstream(metrics.UpstreamFeatures, "ok", time.Since(start).Seconds())

	dst.Append(fc.Features...)
	out := Outcome{Features: len(fc.Features), Columns: dst.Columns()}
	log.Info().Int("features", out.Features).Dur("took", time.Since(start)).Msg("features loaded")
	return out
}

func (a *Adapter) fetch(ctx context.Context, url string) (*geojson.FeatureCollection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %w", errs.ErrNetwork, err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := a.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("%w: GET %s: status %d", errs.ErrNetwork, url, resp.StatusCode)
	}
	return Decode(resp.Body)
}

// Decode reads a GeoJSON feature collection. Coordinates are taken as-is in
// the working CRS.
func Decode(r io.Reader) (*geojson.FeatureCollection, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxDocumentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading document: %w", errs.ErrNetwork, err)
	}
	if len(data) > MaxDocumentBytes {
		return nil, fmt.Errorf("%w: document exceeds %d bytes", errs.ErrParse, MaxDocumentBytes)
	}
	return DecodeBytes(data)
}

// DecodeBytes parses a GeoJSON feature collection held in memory.
func DecodeBytes(data []byte) (*geojson.FeatureCollection, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrParse, err)
	}
	if fc.Type != "" && fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("%w: type %q is not a FeatureCollection", errs.ErrParse, fc.Type)
	}
	return fc, nil
}

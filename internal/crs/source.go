package crs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-mapview/internal/errs"
	"github.com/joeblew999/plat-mapview/internal/metrics"
)

// DefaultDefinitionURL serves proj4 strings as <base>/<number>.proj4.
const DefaultDefinitionURL = "https://epsg.io"

var errNoDefinition = errors.New("no definition published")

type lookup struct {
	proj4 string
	err   error
}

// HTTPDefinitionSource fetches proj4 definitions over HTTP and remembers
// both hits and misses.
type HTTPDefinitionSource struct {
	BaseURL string
	Client  *http.Client
	Logger  zerolog.Logger

	cache *lru.Cache[string, lookup]
}

// NewHTTPDefinitionSource creates a source with an LRU of the given size.
func NewHTTPDefinitionSource(baseURL string, client *http.Client, size int, log zerolog.Logger) (*HTTPDefinitionSource, error) {
	if baseURL == "" {
		baseURL = DefaultDefinitionURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	if size <= 0 {
		size = 128
	}
	cache, err := lru.New[string, lookup](size)
	if err != nil {
		return nil, fmt.Errorf("creating definition cache: %w", err)
	}
	return &HTTPDefinitionSource{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  client,
		Logger:  log,
		cache:   cache,
	}, nil
}

// Lookup implements DefinitionSource.
func (s *HTTPDefinitionSource) Lookup(ctx context.Context, code string) (string, error) {
	code = Normalize(code)
	if hit, ok := s.cache.Get(code); ok {
		return hit.proj4, hit.err
	}

	auth, num, ok := strings.Cut(code, ":")
	if !ok || auth != "EPSG" || num == "" {
		err := fmt.Errorf("%s: only EPSG codes can be looked up", code)
		s.cache.Add(code, lookup{err: err})
		return "", err
	}

	proj4, err := s.fetch(ctx, num)
	if err != nil && !errors.Is(err, errNoDefinition) {
		// transient failures are not remembered
		return "", err
	}
	s.cache.Add(code, lookup{proj4: proj4, err: err})
	if err != nil {
		return "", fmt.Errorf("%s: %w", code, err)
	}
	s.Logger.Debug().Str("crs", code).Msg("registered projection definition")
	return proj4, nil
}

func (s *HTTPDefinitionSource) fetch(ctx context.Context, num string) (string, error) {
	start := time.Now()
	url := fmt.Sprintf("%s/%s.proj4", s.BaseURL, num)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		metrics.ObserveUpstream(metrics.UpstreamProjection, "error", time.Since(start).Seconds())
		return "", fmt.Errorf("%w: %w", errs.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		metrics.ObserveUpstream(metrics.UpstreamProjection, "miss", time.Since(start).Seconds())
		return "", errNoDefinition
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.ObserveUpstream(metrics.UpstreamProjection, "error", time.Since(start).Seconds())
		return "", fmt.Errorf("%w: status %d", errs.ErrNetwork, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("%w: reading definition: %w", errs.ErrNetwork, err)
	}
	metrics.ObserveUpstream(metrics.UpstreamProjection, "ok", time.Since(start).Seconds())

	proj4 := strings.TrimSpace(string(body))
	if proj4 == "" {
		return "", errNoDefinition
	}
	return proj4, nil
}

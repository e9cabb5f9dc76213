package wms

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-mapview/internal/crs"
	"github.com/joeblew999/plat-mapview/internal/errs"
	"github.com/joeblew999/plat-mapview/internal/metrics"
)

// MaxDocumentBytes caps the size of a capability document.
const MaxDocumentBytes = 16 << 20

// Negotiator fetches capability documents and prepares tile sources.
type Negotiator struct {
	Client *http.Client
	// FallbackProxy is used for one retry when the direct request fails.
	// A "{url}" placeholder is replaced by the escaped target URL;
	// otherwise the escaped URL is appended.
	FallbackProxy string
	Protocol      string
	DefaultCRS    string
	Registry      *crs.Registry
	Logger        zerolog.Logger
}

// NewNegotiator creates a negotiator for WMS services.
func NewNegotiator(client *http.Client, registry *crs.Registry, log zerolog.Logger) *Negotiator {
	if client == nil {
		client = http.DefaultClient
	}
	if registry == nil {
		registry = crs.NewRegistry(nil)
	}
	return &Negotiator{
		Client:     client,
		Protocol:   "WMS",
		DefaultCRS: crs.WGS84,
		Registry:   registry,
		Logger:     log,
	}
}

// LayerSummary is a catalog entry offered to the user.
type LayerSummary struct {
	Name  string `json:"name" doc:"Layer name" example:"parcels"`
	Title string `json:"title" doc:"Layer title" example:"Cadastral parcels"`
}

// CapabilitiesURL builds the GetCapabilities request for serviceURL,
// keeping any unrelated query parameters.
func (n *Negotiator) CapabilitiesURL(serviceURL string) (string, error) {
	u, err := parseServiceURL(serviceURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	dropKeys(q, "service", "request")
	q.Set("SERVICE", n.protocol())
	q.Set("REQUEST", "GetCapabilities")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// FetchCapabilities downloads and parses the capability document of a
// service. Network failures are retried once through the fallback proxy.
func (n *Negotiator) FetchCapabilities(ctx context.Context, serviceURL string) (*Capabilities, error) {
	target, err := n.CapabilitiesURL(serviceURL)
	if err != nil {
		return nil, err
	}

	doc, err := n.fetch(ctx, target)
	if err != nil && n.FallbackProxy != "" {
		n.Logger.Warn().Err(err).Str("url", target).Msg("capabilities fetch failed, retrying via fallback")
		doc, err = n.fetch(ctx, n.viaProxy(target))
	}
	if err != nil {
		return nil, err
	}

	caps, err := ParseDocument(doc)
	if err != nil {
		return nil, err
	}
	n.Logger.Debug().Str("url", target).Int("layers", len(caps.Layers)).Msg("capabilities parsed")
	return caps, nil
}

// AvailableLayers lists the named layers a service offers, in document order.
func (n *Negotiator) AvailableLayers(ctx context.Context, serviceURL string) ([]LayerSummary, error) {
	caps, err := n.FetchCapabilities(ctx, serviceURL)
	if err != nil {
		return nil, err
	}
	out := make([]LayerSummary, 0, len(caps.Order))
	for _, d := range caps.Catalog() {
		out = append(out, LayerSummary{Name: d.Name, Title: d.Title})
	}
	return out, nil
}

// Attach negotiates layerName for a view currently in viewCRS and returns a
// tile source ready to request images. The CRS is resolved with crs.Resolve
// and registered before use.
func (n *Negotiator) Attach(ctx context.Context, serviceURL, layerName, viewCRS string) (*TileSource, Descriptor, error) {
	caps, err := n.FetchCapabilities(ctx, serviceURL)
	if err != nil {
		return nil, Descriptor{}, err
	}
	desc, err := caps.Layer(layerName)
	if err != nil {
		return nil, Descriptor{}, err
	}

	code, err := crs.Resolve(desc.SupportedCRS, viewCRS, n.DefaultCRS)
	if err != nil {
		return nil, Descriptor{}, fmt.Errorf("layer %q: %w", layerName, err)
	}
	if _, err := n.Registry.Ensure(ctx, code); err != nil {
		return nil, Descriptor{}, fmt.Errorf("layer %q: %w", layerName, err)
	}

	base, err := parseServiceURL(serviceURL)
	if err != nil {
		return nil, Descriptor{}, err
	}
	ts := &TileSource{
		ServiceURL: base.String(),
		LayerName:  desc.Name,
		CRS:        code,
		Version:    caps.Version,
		Format:     "image/png",
	}
	if box, ok := desc.BoundingBoxes[code]; ok {
		ts.Extent = &box
	}
	n.Logger.Info().Str("layer", desc.Name).Str("crs", code).Str("view_crs", viewCRS).Msg("remote layer attached")
	return ts, desc, nil
}

func (n *Negotiator) protocol() string {
	if n.Protocol == "" {
		return "WMS"
	}
	return n.Protocol
}

func (n *Negotiator) viaProxy(target string) string {
	escaped := url.QueryEscape(target)
	if strings.Contains(n.FallbackProxy, "{url}") {
		return strings.ReplaceAll(n.FallbackProxy, "{url}", escaped)
	}
	return n.FallbackProxy + escaped
}

func (n *Negotiator) fetch(ctx context.Context, target string) ([]byte, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %w", errs.ErrNetwork, err)
	}
	req.Header.Set("Accept", "application/vnd.ogc.wms_xml, text/xml, application/xml")

	resp, err := n.Client.Do(req)
	if err != nil {
		metrics.ObserveUpstream(metrics.UpstreamCapabilities, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("%w: %w", errs.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.ObserveUpstream(metrics.UpstreamCapabilities, "error", time.Since(start).Seconds())
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("%w: GET capabilities: status %d", errs.ErrNetwork, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxDocumentBytes))
	if err != nil {
		metrics.ObserveUpstream(metrics.UpstreamCapabilities, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("%w: reading capabilities: %w", errs.ErrNetwork, err)
	}
	metrics.ObserveUpstream(metrics.UpstreamCapabilities, "ok", time.Since(start).Seconds())
	return body, nil
}

func parseServiceURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid service url %q: %w", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid service url %q: need an http(s) URL", raw)
	}
	return u, nil
}

func dropKeys(q url.Values, keys ...string) {
	for k := range q {
		for _, drop := range keys {
			if strings.EqualFold(k, drop) {
				q.Del(k)
			}
		}
	}
}

package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-mapview/internal/feeds"
	"github.com/joeblew999/plat-mapview/internal/layer"
	"github.com/joeblew999/plat-mapview/internal/style"
)

// Bootstrap is the static layer file loaded at startup.
type Bootstrap struct {
	Feeds  []feeds.Feed  `yaml:"feeds"`
	Layers []LayerConfig `yaml:"layers"`
}

// LayerConfig is one static layer. Exactly one of Feed/URL (vector-remote),
// File (vector-local) or Service+Layer (tiled-remote) applies, by Kind.
type LayerConfig struct {
	ID          string     `yaml:"id"`
	Name        string     `yaml:"name"`
	Kind        layer.Kind `yaml:"kind"`
	Active      bool       `yaml:"active"`
	Feed        string     `yaml:"feed"`
	URL         string     `yaml:"url"`
	File        string     `yaml:"file"`
	Service     string     `yaml:"service"`
	Layer       string     `yaml:"layer"`
	Fill        string     `yaml:"fill"`
	Stroke      string     `yaml:"stroke"`
	StrokeWidth float64    `yaml:"strokeWidth"`
	LabelColumn string     `yaml:"labelColumn"`
}

// LoadBootstrap reads a bootstrap file. A missing file is an empty
// bootstrap.
func LoadBootstrap(path string) (Bootstrap, error) {
	var b Bootstrap
	if path == "" {
		return b, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return b, nil
		}
		return b, err
	}
	if err := yaml.Unmarshal(data, &b); err != nil {
		return b, fmt.Errorf("parsing %s: %w", path, err)
	}
	return b, nil
}

// Spec parses the style fields of the layer.
func (c LayerConfig) Spec() (style.Spec, error) {
	spec := style.Spec{StrokeWidth: c.StrokeWidth, LabelColumn: c.LabelColumn}
	if c.Fill != "" {
		fill, err := style.ParseColor(c.Fill)
		if err != nil {
			return spec, err
		}
		spec.Fill = &fill
	}
	if c.Stroke != "" {
		stroke, err := style.ParseColor(c.Stroke)
		if err != nil {
			return spec, err
		}
		spec.Stroke = &stroke
	}
	return spec, nil
}

// Bootstrap adds the configured layers so that the first listed ends on
// top. A layer that fails is logged and skipped; the errors are joined.
func (s *Session) Bootstrap(ctx context.Context, b Bootstrap) error {
	var errList []error
	for i := len(b.Layers) - 1; i >= 0; i-- {
		c := b.Layers[i]
		rec, err := s.addConfigured(ctx, c)
		if err != nil {
			s.log.Error().Err(err).Str("layer", c.Name).Msg("bootstrap layer skipped")
			errList = append(errList, fmt.Errorf("layer %q: %w", c.Name, err))
			continue
		}
		s.log.Info().Str("layer", rec.ID).Str("kind", string(rec.Kind)).Msg("bootstrap layer added")
	}
	return errors.Join(errList...)
}

// FeedURL returns the URL of the named feed on the configured backend.
func (s *Session) FeedURL(feed string) (string, error) {
	if feed == "" {
		return "", fmt.Errorf("feed name must not be empty")
	}
	return url.JoinPath(s.cfg.FeedBaseURL, "api/v1/feeds", feed)
}

func (s *Session) addConfigured(ctx context.Context, c LayerConfig) (layer.Record, error) {
	spec, err := c.Spec()
	if err != nil {
		return layer.Record{}, err
	}

	var rec layer.Record
	switch c.Kind {
	case layer.VectorRemote:
		target := c.URL
		if c.Feed != "" {
			if target, err = s.FeedURL(c.Feed); err != nil {
				return layer.Record{}, err
			}
		}
		rec = layer.Record{ID: c.ID, Name: c.Name, Kind: c.Kind, Active: c.Active, APIURL: target, Style: spec}
	case layer.VectorLocal:
		rec, err = s.ImportSource(c.File, c.Name)
		if err != nil {
			return layer.Record{}, err
		}
		if !c.Active {
			if rec, err = s.Toggle(rec.ID); err != nil {
				return layer.Record{}, err
			}
		}
		if spec != (style.Spec{}) {
			return s.Registry.SetStyle(rec.ID, spec)
		}
		return rec, nil
	case layer.TiledRemote:
		return s.AddRemoteLayer(ctx, RemoteLayer{ServiceURL: c.Service, LayerName: c.Layer, Name: c.Name, Active: c.Active})
	default:
		return layer.Record{}, fmt.Errorf("invalid layer kind %q", c.Kind)
	}
	return s.AddLayer(rec)
}

// Package feeds serves DuckDB tables as GeoJSON feature collections. Remote
// vector layers of a session point at these feeds.
package feeds

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-mapview/internal/db"
)

// ErrUnknownFeed means no feed is configured under the requested name.
var ErrUnknownFeed = errors.New("unknown feed")

// ErrNoDatabase means the store was built without a database connection.
var ErrNoDatabase = errors.New("database not available")

// Feed maps a table onto a feature collection.
type Feed struct {
	Name       string `yaml:"name" json:"name" doc:"Feed name used in the URL" example:"korytarze"`
	Title      string `yaml:"title" json:"title,omitempty" doc:"Display title" example:"Ecological corridors"`
	Table      string `yaml:"table" json:"table" doc:"Source table" example:"KorytarzeEkologiczne"`
	NameColumn string `yaml:"nameColumn" json:"nameColumn" doc:"Column exported as the name property" example:"Nazwa_PL"`
	IDColumn   string `yaml:"idColumn" json:"idColumn,omitempty" doc:"Identity column" default:"id"`
	GeomColumn string `yaml:"geomColumn" json:"geomColumn,omitempty" doc:"Geometry column" default:"geom"`
	// Source is an optional file imported into Table at startup.
	Source string `yaml:"source" json:"source,omitempty" doc:"File imported into the table at startup"`
}

func (f Feed) withDefaults() Feed {
	if f.IDColumn == "" {
		f.IDColumn = "id"
	}
	if f.GeomColumn == "" {
		f.GeomColumn = "geom"
	}
	if f.Title == "" {
		f.Title = f.Name
	}
	return f
}

// Query returns the select statement for the feed.
func (f Feed) Query() (string, error) {
	f = f.withDefaults()
	table, err := db.Quote(f.Table)
	if err != nil {
		return "", fmt.Errorf("feed %q table: %w", f.Name, err)
	}
	id, err := db.Quote(f.IDColumn)
	if err != nil {
		return "", fmt.Errorf("feed %q id column: %w", f.Name, err)
	}
	name, err := db.Quote(f.NameColumn)
	if err != nil {
		return "", fmt.Errorf("feed %q name column: %w", f.Name, err)
	}
	geom, err := db.Quote(f.GeomColumn)
	if err != nil {
		return "", fmt.Errorf("feed %q geometry column: %w", f.Name, err)
	}
	return fmt.Sprintf("SELECT %s, CAST(%s AS VARCHAR), ST_AsGeoJSON(%s) FROM %s WHERE %s IS NOT NULL ORDER BY %s",
		id, name, geom, table, geom, id), nil
}

// Store answers feed requests from one database.
type Store struct {
	db     *sql.DB
	feeds  map[string]Feed
	order  []string
	logger zerolog.Logger
}

// NewStore validates the feeds and returns a store. conn may be nil, in
// which case every collection request fails.
func NewStore(conn *sql.DB, feeds []Feed, log zerolog.Logger) (*Store, error) {
	s := &Store{db: conn, feeds: make(map[string]Feed), logger: log}
	for _, f := range feeds {
		f = f.withDefaults()
		if f.Name == "" {
			return nil, fmt.Errorf("feed without a name")
		}
		if _, dup := s.feeds[f.Name]; dup {
			return nil, fmt.Errorf("feed %q configured twice", f.Name)
		}
		if _, err := f.Query(); err != nil {
			return nil, err
		}
		s.feeds[f.Name] = f
		s.order = append(s.order, f.Name)
	}
	return s, nil
}

// List returns the feeds in configuration order.
func (s *Store) List() []Feed {
	out := make([]Feed, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.feeds[name])
	}
	return out
}

// Get returns the feed called name.
func (s *Store) Get(name string) (Feed, bool) {
	f, ok := s.feeds[name]
	return f, ok
}

// Import loads every feed that names a source file into its table.
func (s *Store) Import(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("feeds: %w", ErrNoDatabase)
	}
	var errList []error
	for _, name := range s.order {
		f := s.feeds[name]
		if f.Source == "" {
			continue
		}
		if err := db.ImportFile(ctx, s.db, f.Table, f.Source); err != nil {
			errList = append(errList, err)
			continue
		}
		s.logger.Info().Str("feed", name).Str("table", f.Table).Str("source", f.Source).Msg("feed source imported")
	}
	return errors.Join(errList...)
}

// Collection runs the feed query and returns its rows as features with
// properties {id, name}. Rows without geometry are skipped.
func (s *Store) Collection(ctx context.Context, name string) (*geojson.FeatureCollection, error) {
	f, ok := s.feeds[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFeed, name)
	}
	if s.db == nil {
		return nil, fmt.Errorf("feed %q: %w", name, ErrNoDatabase)
	}
	q, err := f.Query()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("feed %q: %w", name, err)
	}
	defer rows.Close()

	fc := geojson.NewFeatureCollection()
	skipped := 0
	for rows.Next() {
		var (
			id    any
			label sql.NullString
			geom  sql.NullString
		)
		if err := rows.Scan(&id, &label, &geom); err != nil {
			return nil, fmt.Errorf("feed %q: %w", name, err)
		}
		feat, err := RowFeature(id, label, geom)
		if err != nil {
			return nil, fmt.Errorf("feed %q: %w", name, err)
		}
		if feat == nil {
			skipped++
			continue
		}
		fc.Append(feat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("feed %q: %w", name, err)
	}

	s.logger.Debug().Str("feed", name).Int("features", len(fc.Features)).Int("skipped", skipped).Dur("took", time.Since(start)).Msg("feed served")
	return fc, nil
}

// RowFeature builds the feature for one feed row. A row without geometry
// yields nil.
func RowFeature(id any, name, geom sql.NullString) (*geojson.Feature, error) {
	if !geom.Valid || geom.String == "" {
		return nil, nil
	}
	g, err := geojson.UnmarshalGeometry([]byte(geom.String))
	if err != nil {
		return nil, fmt.Errorf("row %v: geometry: %w", id, err)
	}
	geometry := g.Geometry()
	if geometry == nil {
		return nil, nil
	}

	f := geojson.NewFeature(geometry)
	f.ID = normalizeID(id)
	f.Properties["id"] = f.ID
	if name.Valid {
		f.Properties["name"] = name.String
	} else {
		f.Properties["name"] = nil
	}
	return f, nil
}

// normalizeID turns database integer ids into JSON-friendly values.
func normalizeID(id any) any {
	switch v := id.(type) {
	case []byte:
		return string(v)
	case int32:
		return int64(v)
	}
	return id
}

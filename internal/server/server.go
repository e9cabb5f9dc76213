// Package server assembles the map session, its feed backend and the HTTP
// API into one handler.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-mapview/internal/api"
	"github.com/joeblew999/plat-mapview/internal/crs"
	"github.com/joeblew999/plat-mapview/internal/db"
	"github.com/joeblew999/plat-mapview/internal/feeds"
	"github.com/joeblew999/plat-mapview/internal/logger"
	"github.com/joeblew999/plat-mapview/internal/metrics"
	"github.com/joeblew999/plat-mapview/internal/registry"
	"github.com/joeblew999/plat-mapview/internal/service"
	"github.com/joeblew999/plat-mapview/internal/session"
)

// Config holds the server configuration.
type Config struct {
	Host    string
	Port    string
	DataDir string
	// LayersFile is the bootstrap YAML, relative to DataDir unless absolute.
	LayersFile string
	// NoDB skips DuckDB; feed routes then answer 503.
	NoDB bool
	// CRSDefinitionURL enables lookups of unknown projections when set.
	CRSDefinitionURL string
	// UpstreamTimeout bounds every outbound fetch.
	UpstreamTimeout time.Duration
	Session         session.Config
	Logger          zerolog.Logger
}

// Server is the map view HTTP server.
type Server struct {
	config  Config
	mux     *http.ServeMux
	humaAPI huma.API
	db      *sql.DB
	feeds   *feeds.Store
	session *session.Session
	boot    session.Bootstrap
	log     zerolog.Logger
}

// New creates a new map view server. The bootstrap layers are added by Run
// once the feed routes are reachable.
func New(cfg Config) (*Server, error) {
	log := cfg.Logger
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = 30 * time.Second
	}
	if cfg.Session.FeedBaseURL == "" {
		cfg.Session.FeedBaseURL = baseURL(cfg.Host, cfg.Port)
	}

	boot, err := session.LoadBootstrap(layersPath(cfg))
	if err != nil {
		return nil, err
	}

	s := &Server{
		config: cfg,
		mux:    http.NewServeMux(),
		boot:   boot,
		log:    logger.Component(log, "server"),
	}

	if !cfg.NoDB {
		conn, extErrs, err := db.Open(db.Config{
			DataDir:    cfg.DataDir,
			DBName:     "mapview",
			Extensions: db.DefaultExtensions,
		})
		if err != nil {
			s.log.Warn().Err(err).Msg("duckdb unavailable, feeds disabled")
		} else {
			s.db = conn
		}
		for _, e := range extErrs {
			s.log.Warn().Err(e).Msg("duckdb extension not loaded")
		}
	}
	if s.feeds, err = feeds.NewStore(s.db, boot.Feeds, logger.Component(log, "feeds")); err != nil {
		s.Close()
		return nil, err
	}

	client := &http.Client{Timeout: cfg.UpstreamTimeout}
	var src crs.DefinitionSource
	if cfg.CRSDefinitionURL != "" {
		hs, err := crs.NewHTTPDefinitionSource(cfg.CRSDefinitionURL, client, 256, logger.Component(log, "crs"))
		if err != nil {
			s.Close()
			return nil, err
		}
		src = hs
	}

	var sources *service.SourceService
	if cfg.DataDir != "" {
		sources = service.NewSourceService(cfg.DataDir)
	}
	s.session = session.New(cfg.Session, session.Deps{
		Client:  client,
		CRS:     crs.NewRegistry(src),
		Bus:     registry.NewEventBus(),
		Sources: sources,
		Logger:  log,
	})

	// Create Huma API with humago (pure stdlib) adapter
	humaConfig := huma.DefaultConfig("plat-mapview API", api.Version)
	humaConfig.Info.Description = "Map layer registry, WMS capability negotiation and feature feeds."
	humaConfig.Servers = []*huma.Server{
		{URL: baseURL(cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append([]huma.Transformer{api.LinkTransformer()}, humaConfig.Transformers...)
	s.humaAPI = humago.New(s.mux, humaConfig)

	s.routes(sources)
	return s, nil
}

func (s *Server) routes(sources *service.SourceService) {
	api.RegisterRoutes(s.humaAPI, api.NewAPIHandler(api.Deps{
		Session: s.session,
		Feeds:   s.feeds,
		Sources: sources,
		DB:      s.db,
		DataDir: s.config.DataDir,
		Logger:  logger.Component(s.config.Logger, "api"),
	}))

	s.mux.Handle("GET /metrics", metrics.Handler())
	s.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/docs", http.StatusFound)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the API description.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Session returns the map session served.
func (s *Server) Session() *session.Session {
	return s.session
}

// Prepare imports feed sources and adds the bootstrap layers. Feed layers
// marked active fetch from this server, so it must already be listening.
func (s *Server) Prepare(ctx context.Context) error {
	var errList []error
	if s.db != nil {
		if err := s.feeds.Import(ctx); err != nil {
			errList = append(errList, err)
		}
	}
	if err := s.session.Bootstrap(ctx, s.boot); err != nil {
		errList = append(errList, err)
	}
	return errors.Join(errList...)
}

// Run listens on the configured address, prepares the session and serves
// until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Host, s.config.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: s, ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.log.Info().Str("addr", addr).Msg("listening")

	if err := s.Prepare(ctx); err != nil {
		s.log.Warn().Err(err).Msg("startup incomplete")
	}

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Close stops in-flight loads and closes the database.
func (s *Server) Close() error {
	if s.session != nil {
		s.session.Close()
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func layersPath(cfg Config) string {
	if cfg.LayersFile == "" || filepath.IsAbs(cfg.LayersFile) || cfg.DataDir == "" {
		return cfg.LayersFile
	}
	return filepath.Join(cfg.DataDir, cfg.LayersFile)
}

func baseURL(host, port string) string {
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s", net.JoinHostPort(host, port))
}

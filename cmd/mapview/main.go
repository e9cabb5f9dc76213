package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-mapview/internal/crs"
	"github.com/joeblew999/plat-mapview/internal/logger"
	"github.com/joeblew999/plat-mapview/internal/server"
	"github.com/joeblew999/plat-mapview/internal/session"
	"github.com/joeblew999/plat-mapview/internal/wms"
)

// Options defines all CLI flags and env vars for the map view server.
// Flags: --host, --port, --data-dir, --layers, ...
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_LAYERS, ...
type Options struct {
	Host    string `doc:"Host to bind to" default:"0.0.0.0"`
	Port    int    `doc:"Port to listen on" short:"p" default:"8087"`
	DataDir string `doc:"Directory holding sources/, duckdb/ and the layers file" default:".data"`
	Layers  string `doc:"Bootstrap layers YAML, relative to the data dir" default:"layers.yaml"`
	NoDB    bool   `doc:"Run without DuckDB (feeds disabled)" default:"false"`

	FallbackProxy string `doc:"Proxy retried once when a capabilities fetch fails; {url} is replaced by the escaped target"`
	ViewCRS       string `doc:"Initial view CRS" default:"EPSG:3857"`
	WorkingCRS    string `doc:"CRS of stored features" default:"EPSG:4326"`
	DefaultCRS    string `doc:"CRS used when a service does not offer the view CRS" default:"EPSG:4326"`
	ProjectionURL string `doc:"Base URL for projection definition lookups, empty disables them" default:"https://epsg.io"`
	FeedBaseURL   string `doc:"Base URL of the feed backend, this server when empty"`

	SimplifyMinZoom      float64 `doc:"Zoom at or below which full simplification applies" default:"4"`
	SimplifyMaxZoom      float64 `doc:"Zoom at or above which original geometry is shown" default:"14"`
	SimplifyMaxTolerance float64 `doc:"Douglas-Peucker tolerance at the minimum zoom" default:"0.01"`
	FitMaxZoom           float64 `doc:"Maximum zoom when fitting to an extent" default:"16"`
	FitPadding           int     `doc:"Padding in pixels when fitting to an extent" default:"50"`
	UpstreamTimeout      int     `doc:"Timeout in seconds for outbound fetches" default:"30"`

	LogLevel   string `doc:"Log level: debug, info, warn, error" default:"info"`
	LogConsole bool   `doc:"Human-readable console logs" default:"false"`
}

func newLogger(opts *Options) zerolog.Logger {
	return logger.Build(logger.Config{Level: opts.LogLevel, Console: opts.LogConsole, Component: "mapview"}, os.Stderr)
}

func sessionConfig(opts *Options) session.Config {
	return session.Config{
		ViewCRS:              opts.ViewCRS,
		WorkingCRS:           opts.WorkingCRS,
		DefaultCRS:           opts.DefaultCRS,
		FallbackProxy:        opts.FallbackProxy,
		FitMaxZoom:           opts.FitMaxZoom,
		FitPadding:           opts.FitPadding,
		SimplifyMinZoom:      opts.SimplifyMinZoom,
		SimplifyMaxZoom:      opts.SimplifyMaxZoom,
		SimplifyMaxTolerance: opts.SimplifyMaxTolerance,
		FeedBaseURL:          opts.FeedBaseURL,
	}
}

func newServer(opts *Options, log zerolog.Logger) (*server.Server, error) {
	return server.New(server.Config{
		Host:             opts.Host,
		Port:             strconv.Itoa(opts.Port),
		DataDir:          opts.DataDir,
		LayersFile:       opts.Layers,
		NoDB:             opts.NoDB,
		CRSDefinitionURL: opts.ProjectionURL,
		UpstreamTimeout:  time.Duration(opts.UpstreamTimeout) * time.Second,
		Session:          sessionConfig(opts),
		Logger:           log,
	})
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		log := newLogger(opts)
		var srv *server.Server
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

		hooks.OnStart(func() {
			defer cancel()
			var err error
			if srv, err = newServer(opts, log); err != nil {
				log.Fatal().Err(err).Msg("server setup failed")
			}
			defer srv.Close()

			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)
			log.Info().
				Str("server", baseURL).
				Str("data", opts.DataDir).
				Str("docs", baseURL+"/docs").
				Str("openapi", baseURL+"/openapi.json").
				Msg("plat-mapview API server starting")

			if err := srv.Run(ctx); err != nil && err != http.ErrServerClosed {
				log.Fatal().Err(err).Msg("server error")
			}
		})
		hooks.OnStop(cancel)
	})

	cli.Root().Use = "mapview"
	cli.Root().Short = "Map layer registry and WMS capability negotiation server"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			opts.NoDB = true
			srv, err := newServer(opts, zerolog.Nop())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error creating server: %v\n", err)
				os.Exit(1)
			}
			defer srv.Close()
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling spec: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// capabilities subcommand: print a map service's layer catalog
	capsCmd := &cobra.Command{
		Use:   "capabilities <service-url>",
		Short: "List the named layers a map service offers",
		Args:  cobra.ExactArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			log := newLogger(opts)
			client := &http.Client{Timeout: time.Duration(opts.UpstreamTimeout) * time.Second}
			n := wms.NewNegotiator(client, crs.NewRegistry(nil), log)
			n.FallbackProxy = opts.FallbackProxy

			caps, err := n.FetchCapabilities(cmd.Context(), args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			for _, d := range caps.Catalog() {
				fmt.Printf("%-32s %-40s %v\n", d.Name, d.Title, d.SupportedCRS)
			}
		}),
	}
	cli.Root().AddCommand(capsCmd)

	cli.Run()
}

package api

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-mapview/internal/humastar"
)

// links maps operation paths to their RFC 8288 Link header values.
// Enables restish hypermedia navigation via `restish links <url>`.
var links = map[string][]string{
	"/health": {
		`</api/v1/info>; rel="info"`,
		`</api/v1/map/layers>; rel="layers"`,
		`</api/v1/map/view>; rel="view"`,
		`</api/v1/feeds>; rel="feeds"`,
		`</api/v1/sources>; rel="sources"`,
		`</openapi.json>; rel="service-desc"`,
	},
	"/api/v1/info": {
		`</health>; rel="health"`,
		`</api/v1/map/layers>; rel="layers"`,
	},
	"/api/v1/map/layers": {
		`</api/v1/map/layers/{id}>; rel="item"`,
		`</api/v1/map/layers/upload>; rel="create-form"`,
		`</api/v1/map/layers/wms>; rel="create-form"`,
		`</api/v1/map/events>; rel="monitor"`,
		`</api/v1/sources>; rel="sources"`,
	},
	"/api/v1/map/layers/{id}": {
		`</api/v1/map/layers>; rel="collection"`,
	},
	"/api/v1/map/view": {
		`</api/v1/map/zoom-to-feature>; rel="search"`,
		`</api/v1/map/layers>; rel="layers"`,
	},
	"/api/v1/wms/layers": {
		`</api/v1/map/layers/wms>; rel="create-form"`,
	},
	"/api/v1/feeds": {
		`</api/v1/feeds/{name}>; rel="item"`,
		`</api/v1/db/tables>; rel="tables"`,
	},
	"/api/v1/feeds/{name}": {
		`</api/v1/feeds>; rel="collection"`,
	},
	"/api/v1/sources": {
		`</api/v1/map/layers/import>; rel="create-form"`,
	},
}

// LinkTransformer returns the Huma Transformer that injects the map API's
// Link headers and the state-dependent layer actions.
func LinkTransformer() huma.Transformer {
	return humastar.LinkTransformer(links)
}

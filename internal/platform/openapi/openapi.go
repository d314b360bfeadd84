// Package openapi builds the huma API that publishes the service's OpenAPI document.
package openapi

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor"
	"github.com/go-chi/chi/v5"
)

const (
	Title       = "WildFly Swarm REST Example"
	Description = "An example using REST and Swagger"
	Version     = "1.0"

	// SpecPath is served as /swagger.json and /swagger.yaml.
	SpecPath = "/swagger"
)

// NewConfig returns the huma configuration for the document. An empty docsPath
// disables the interactive docs page.
func NewConfig(docsPath string, tags ...*huma.Tag) huma.Config {
	cfg := huma.DefaultConfig(Title, Version)
	cfg.Info.Description = Description
	cfg.OpenAPIPath = SpecPath
	cfg.DocsPath = docsPath
	cfg.Tags = append(cfg.Tags, tags...)
	return cfg
}

// NewAPI mounts a humachi API configured by NewConfig on router and appends
// MirrorCBOR to its OnAddOperation hooks.
func NewAPI(router chi.Router, docsPath string, tags ...*huma.Tag) huma.API {
	api := humachi.New(router, NewConfig(docsPath, tags...))
	api.OpenAPI().OnAddOperation = append(api.OpenAPI().OnAddOperation, MirrorCBOR)
	return api
}

// cborEquivalents maps JSON media types to the CBOR type served for them.
var cborEquivalents = [][2]string{
	{"application/json", "application/cbor"},
	{"application/problem+json", "application/problem+cbor"},
}

// MirrorCBOR advertises the CBOR variant next to every JSON request or response body.
func MirrorCBOR(_ *huma.OpenAPI, op *huma.Operation) {
	if op.RequestBody != nil && op.RequestBody.Content != nil {
		mirror(op.RequestBody.Content)
	}
	for _, resp := range op.Responses {
		if resp == nil || resp.Content == nil {
			continue
		}
		mirror(resp.Content)
	}
}

func mirror(content map[string]*huma.MediaType) {
	for _, pair := range cborEquivalents {
		if media, ok := content[pair[0]]; ok {
			if _, exists := content[pair[1]]; !exists {
				content[pair[1]] = media
			}
		}
	}
}

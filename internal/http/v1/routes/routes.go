// Package routes registers the documented v1 operations.
package routes

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/janisto/swarm-rest-example/internal/http/v1/greeting"
)

// Tags returns the document-level tags for the registered operations.
func Tags() []*huma.Tag {
	return []*huma.Tag{
		{Name: greeting.Tag, Description: greeting.TagDescription},
	}
}

// Register wires all HTTP routes into the provided API router.
func Register(api huma.API) {
	greeting.Register(api)
}

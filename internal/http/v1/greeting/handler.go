package greeting

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

const (
	// Tag groups the greeting operations in the API documentation.
	Tag = "demo"
	// TagDescription describes Tag in the API documentation.
	TagDescription = "Available REST services"

	// Path is the route template of the say operation.
	Path = "/service/say/{name}"

	contentTypeText = "text/plain; charset=utf-8"
	greetingPrefix  = "Hello from REST endpoint to "
)

// Message builds the greeting for name.
func Message(name string) string {
	return greetingPrefix + name
}

// Register wires the greeting routes into the provided API.
func Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "say",
		Method:      http.MethodGet,
		Path:        Path,
		Summary:     "Respond to request",
		Description: "Returns the response as a string",
		Tags:        []string{Tag},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Greeting for the given name",
				Content: map[string]*huma.MediaType{
					"text/plain": {
						Schema: &huma.Schema{Type: huma.TypeString, Examples: []any{Message("World")}},
					},
				},
			},
		},
	}, sayHandler)
}

func sayHandler(_ context.Context, input *SayInput) (*SayOutput, error) {
	return &SayOutput{
		ContentType: contentTypeText,
		Body:        []byte(Message(input.Name)),
	}, nil
}

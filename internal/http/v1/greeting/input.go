package greeting

// SayInput binds the name path segment. The router has already URL-decoded it.
type SayInput struct {
	Name string `path:"name" doc:"name"`
}

package greeting

// SayOutput is written verbatim as a plain-text body.
type SayOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

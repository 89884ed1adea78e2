package client

import "context"

// VisionClient sends one image with a prompt to a vision model and returns
// the raw text answer. Parsing belongs to the caller.
type VisionClient interface {
	Query(ctx context.Context, model, prompt, imgB64 string) (string, error)
}

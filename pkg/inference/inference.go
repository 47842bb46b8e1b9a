package inference

import (
	"context"
	"errors"
	"iter"

	"atelier/pkg/schema"
)

// ErrMissingAPIKey is returned when neither the request nor the server
// configuration supplies a key for the vendor.
var ErrMissingAPIKey = errors.New("inference: missing API key")

// ErrEmptyCompletion is returned when the vendor answers without content.
var ErrEmptyCompletion = errors.New("inference: empty completion content")

// Inferencer runs chat completions, either whole or as a stream of deltas.
type Inferencer interface {
	Infer(ctx context.Context, req *Request) (string, error)
	Stream(ctx context.Context, req *Request) iter.Seq2[string, error]
}

// Request is a vendor-neutral chat request.
type Request struct {
	// Model overrides the inferencer's default model when set.
	Model string
	// System is prepended as a system turn when non-empty.
	System   string
	Messages []schema.ChatMessage

	Temperature float64
	MaxTokens   int64

	// APIKey overrides the configured key for this call only.
	APIKey string
}

// HasImages reports whether any message carries image parts.
func (r *Request) HasImages() bool {
	for _, m := range r.Messages {
		if len(m.Images()) > 0 {
			return true
		}
	}
	return false
}

func errSeq(err error) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		yield("", err)
	}
}

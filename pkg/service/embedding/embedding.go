// Package embedding turns text into vectors for the memory stream.
package embedding

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/phrazzld/judith/pkg/adapter"
	"github.com/phrazzld/judith/pkg/model"
)

// Gemini embeds text with a Gemini embedding model
type Gemini struct {
	client     adapter.Gemini
	dimensions int
}

// Option is a functional option for Gemini
type Option func(*Gemini)

// WithDimensions truncates embeddings to the given size. All memories of an
// owner must be embedded with the same value.
func WithDimensions(n int) Option {
	return func(g *Gemini) {
		g.dimensions = n
	}
}

// New creates a Gemini embedder
func New(client adapter.Gemini, opts ...Option) *Gemini {
	g := &Gemini{client: client}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Embed returns the embedding of text. Provider failures are reported as
// model.ErrEmbedding.
func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, goerr.Wrap(model.ErrEmptyText, "cannot embed empty text")
	}

	vec, err := g.client.Embedding(ctx, text, g.dimensions)
	if err != nil {
		return nil, goerr.Wrap(model.ErrEmbedding, "gemini embedding failed",
			goerr.V("cause", err.Error()), goerr.V("dimensions", g.dimensions))
	}
	if g.dimensions > 0 && len(vec) != g.dimensions {
		return nil, goerr.Wrap(model.ErrEmbedding, "unexpected embedding size",
			goerr.V("expected", g.dimensions), goerr.V("actual", len(vec)))
	}

	return vec, nil
}

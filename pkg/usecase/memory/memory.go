// Package memory implements the memory stream: creating records and ranking
// them against a query by similarity, significance and recency.
package memory

import (
	"context"
	"time"

	"github.com/phrazzld/judith/pkg/adapter"
	"github.com/phrazzld/judith/pkg/model"
	"github.com/phrazzld/judith/pkg/repository"
)

const (
	DefaultTopK              = 3
	defaultUpdateConcurrency = 16
)

// Embedder converts text into an embedding vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Classifier rates the significance of text in [1,10]. A nil result means
// the text could not be classified.
type Classifier interface {
	Classify(ctx context.Context, kind model.MemoryKind, text string) (*int, error)
}

// UseCase provides memory stream operations for one repository
type UseCase struct {
	repo       repository.Repository
	embedder   Embedder
	classifier Classifier
	storage    adapter.Storage

	weights           Weights
	topK              int
	updateConcurrency int
	now               func() time.Time
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithEmbedder sets the embedding provider
func WithEmbedder(e Embedder) Option {
	return func(uc *UseCase) {
		uc.embedder = e
	}
}

// WithClassifier sets the significance classifier. Without one, recorded
// memories have no significance.
func WithClassifier(c Classifier) Option {
	return func(uc *UseCase) {
		uc.classifier = c
	}
}

// WithStorage sets the snapshot storage used by Export and Import
func WithStorage(s adapter.Storage) Option {
	return func(uc *UseCase) {
		uc.storage = s
	}
}

// WithWeights overrides the default scoring weights
func WithWeights(w Weights) Option {
	return func(uc *UseCase) {
		uc.weights = w
	}
}

// WithTopK sets the default number of memories returned by Recall
func WithTopK(k int) Option {
	return func(uc *UseCase) {
		uc.topK = k
	}
}

// WithUpdateConcurrency bounds the parallel last-accessed writes of one retrieval
func WithUpdateConcurrency(n int) Option {
	return func(uc *UseCase) {
		uc.updateConcurrency = n
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(uc *UseCase) {
		uc.now = now
	}
}

// New creates a new memory UseCase instance
func New(repo repository.Repository, opts ...Option) *UseCase {
	uc := &UseCase{
		repo:              repo,
		weights:           DefaultWeights(),
		topK:              DefaultTopK,
		updateConcurrency: defaultUpdateConcurrency,
		now:               time.Now,
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}

// Weights returns the default weights of this UseCase
func (u *UseCase) Weights() Weights {
	return u.weights
}

// TopK returns the default result size of this UseCase
func (u *UseCase) TopK() int {
	return u.topK
}

// Package vector provides numeric primitives over embedding vectors.
package vector

import (
	"math"

	"github.com/m-mizutani/goerr/v2"
	"github.com/phrazzld/judith/pkg/model"
)

// Validate checks that v is non-empty and holds only finite values
func Validate(v []float32) error {
	if len(v) == 0 {
		return goerr.Wrap(model.ErrEmptyVector, "vector has no elements")
	}
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return goerr.New("vector contains non-finite value", goerr.V("index", i), goerr.V("value", x))
		}
	}
	return nil
}

// CosineSimilarity returns dot(a,b) / (|a|*|b|). Vectors must be the same
// length and non-empty. If either vector has zero magnitude the result is 0
// so that rankings never see NaN.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, goerr.Wrap(model.ErrEmptyVector, "cannot compare empty vectors",
			goerr.V("len_a", len(a)), goerr.V("len_b", len(b)))
	}
	if len(a) != len(b) {
		return 0, goerr.Wrap(model.ErrDimensionMismatch, "vector lengths differ",
			goerr.V("len_a", len(a)), goerr.V("len_b", len(b)))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

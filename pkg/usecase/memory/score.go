package memory

import (
	"math"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/phrazzld/judith/pkg/model"
)

const (
	DefaultTimeDecayFactor    = 1e-10
	DefaultSignificanceWeight = 0.5
	DefaultSimilarityWeight   = 0.5

	weightSumTolerance = 1e-9
)

// Weights tunes how similarity, significance and recency combine into one score
type Weights struct {
	// TimeDecayFactor is applied per elapsed millisecond since last access
	TimeDecayFactor    float64 `yaml:"time_decay_factor" json:"time_decay_factor"`
	SignificanceWeight float64 `yaml:"significance_weight" json:"significance_weight"`
	SimilarityWeight   float64 `yaml:"similarity_weight" json:"similarity_weight"`
}

// DefaultWeights returns equal weighting with a decay that is negligible over
// minutes and material over weeks
func DefaultWeights() Weights {
	return Weights{
		TimeDecayFactor:    DefaultTimeDecayFactor,
		SignificanceWeight: DefaultSignificanceWeight,
		SimilarityWeight:   DefaultSimilarityWeight,
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Validate requires both weights in [0,1] summing to 1 and a non-negative decay factor
func (w Weights) Validate() error {
	if !finite(w.SignificanceWeight) || !finite(w.SimilarityWeight) {
		return goerr.Wrap(model.ErrInvalidWeighting, "weights must be finite",
			goerr.V("significance_weight", w.SignificanceWeight),
			goerr.V("similarity_weight", w.SimilarityWeight))
	}
	if w.SignificanceWeight < 0 || w.SignificanceWeight > 1 || w.SimilarityWeight < 0 || w.SimilarityWeight > 1 {
		return goerr.Wrap(model.ErrInvalidWeighting, "weights must be within [0,1]",
			goerr.V("significance_weight", w.SignificanceWeight),
			goerr.V("similarity_weight", w.SimilarityWeight))
	}
	if math.Abs(w.SignificanceWeight+w.SimilarityWeight-1) > weightSumTolerance {
		return goerr.Wrap(model.ErrInvalidWeighting, "the sum of significance and similarity weights must be 1",
			goerr.V("significance_weight", w.SignificanceWeight),
			goerr.V("similarity_weight", w.SimilarityWeight))
	}
	if !finite(w.TimeDecayFactor) || w.TimeDecayFactor < 0 {
		return goerr.Wrap(model.ErrInvalidWeighting, "time decay factor must be a non-negative number",
			goerr.V("time_decay_factor", w.TimeDecayFactor))
	}
	return nil
}

// Decay returns exp(-elapsedMillis * factor). Negative elapsed time (clock
// skew) counts as zero.
func Decay(lastAccessedAt, now time.Time, factor float64) float64 {
	elapsed := now.Sub(lastAccessedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	elapsedMillis := float64(elapsed) / float64(time.Millisecond)
	return math.Exp(-elapsedMillis * factor)
}

// WeightedScore is similarity*similarityWeight + significance*significanceWeight*decay.
// A nil significance contributes nothing. Decay only discounts the
// significance term.
func WeightedScore(similarity float64, significance *int, lastAccessedAt, now time.Time, w Weights) (float64, error) {
	if err := w.Validate(); err != nil {
		return 0, err
	}
	score, _ := weightedScore(similarity, significance, lastAccessedAt, now, w)
	return score, nil
}

// weightedScore assumes w has been validated and also returns the decay used
func weightedScore(similarity float64, significance *int, lastAccessedAt, now time.Time, w Weights) (float64, float64) {
	var sig float64
	if significance != nil {
		sig = float64(*significance)
	}

	decay := Decay(lastAccessedAt, now, w.TimeDecayFactor)
	return similarity*w.SimilarityWeight + sig*w.SignificanceWeight*decay, decay
}

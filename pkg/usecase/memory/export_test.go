package memory

// Export internal functions for testing
var (
	Rank               = rank
	WeightedScoreDecay = weightedScore
)

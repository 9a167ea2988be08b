// Package tokens provides the internal token and cost accounting used for
// usage reporting. Counts are heuristic estimates, not the provider's
// billing tokenization.
package tokens

import (
	"math"
	"strings"
)

// Per-1000-token rates in dollars, converted to cents at the end.
const (
	inputRatePer1K  = 1.0
	outputRatePer1K = 3.0
)

// EstimateTokenCount estimates the token count of a text as its
// whitespace-separated word count times 1.3, rounded up. Empty or
// whitespace-only input counts as zero.
func EstimateTokenCount(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return int(math.Ceil(float64(words) * 1.3))
}

// CalculateCost converts input and output token counts to a cost in cents.
// The result is rounded up so costs are never under-reported.
func CalculateCost(inputTokens, outputTokens int) int {
	dollars := float64(inputTokens)/1000.0*inputRatePer1K +
		float64(outputTokens)/1000.0*outputRatePer1K
	cents := math.Ceil(dollars * 100.0)
	return int(cents)
}

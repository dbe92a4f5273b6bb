package escape

import (
	"fmt"

	"escapemap/domain/core"
)

// Observation is one measured escape value: how strongly mutations at one
// site of the viral protein reduce binding or neutralization for one
// experimental condition (an antibody or serum).
type Observation struct {
	Condition string  `json:"condition"`
	Site      int     `json:"site"`
	Metric    float64 `json:"metric"`
}

// DissimilarityMethod names the transform from similarity to dissimilarity.
// The enumeration is closed; anything else is a configuration error.
type DissimilarityMethod string

const (
	// MethodOneMinus maps similarity s to 1 - s.
	MethodOneMinus DissimilarityMethod = "one_minus"
	// MethodMinusLog maps similarity s to -ln(s), undefined for s <= 0.
	MethodMinusLog DissimilarityMethod = "minus_log"
)

// ParseDissimilarityMethod validates a method name from configuration.
func ParseDissimilarityMethod(s string) (DissimilarityMethod, error) {
	switch DissimilarityMethod(s) {
	case MethodOneMinus:
		return MethodOneMinus, nil
	case MethodMinusLog:
		return MethodMinusLog, nil
	default:
		return "", fmt.Errorf("%w: %q (want %q or %q)", core.ErrUnknownMethod, s, MethodOneMinus, MethodMinusLog)
	}
}

// Aggregation names how per-mutation records collapse to one value per
// (condition, site) before a table is built.
type Aggregation string

const (
	AggregationSum  Aggregation = "sum"
	AggregationMean Aggregation = "mean"
	AggregationMax  Aggregation = "max"
)

// ParseAggregation validates an aggregation name from configuration.
func ParseAggregation(s string) (Aggregation, error) {
	switch Aggregation(s) {
	case AggregationSum, AggregationMean, AggregationMax:
		return Aggregation(s), nil
	default:
		return "", fmt.Errorf("%w: unknown aggregation %q (want sum, mean, or max)", core.ErrInvalidConfig, s)
	}
}

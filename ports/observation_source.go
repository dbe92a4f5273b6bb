package ports

import (
	"context"

	"escapemap/domain/escape"
)

// ObservationSource loads a validated escape table from wherever the raw
// measurements live. Implementations own parsing, column mapping, and
// per-mutation aggregation; the table they hand back is already validated.
type ObservationSource interface {
	ReadTable(ctx context.Context) (*escape.Table, error)
}

// FrequencySource loads per-site mutation frequencies for comparison
// against escape profiles. Sites absent from the map have no frequency
// data, which is different from a frequency of zero.
type FrequencySource interface {
	ReadFrequencies(ctx context.Context) (map[int]float64, error)
}

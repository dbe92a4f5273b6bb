package tabular

import "escapemap/domain/escape"

// Aggregate collapses per-mutation records to one observation per
// (condition, site). Output preserves first-appearance order so the table
// built from it indexes conditions the way the file listed them.
func Aggregate(records []Record, method escape.Aggregation) []escape.Observation {
	type key struct {
		condition string
		site      int
	}
	sums := make(map[key]float64)
	counts := make(map[key]int)
	maxima := make(map[key]float64)
	order := make([]key, 0, len(records))

	for _, rec := range records {
		k := key{rec.Condition, rec.Site}
		if _, seen := counts[k]; !seen {
			order = append(order, k)
			maxima[k] = rec.Metric
		} else if rec.Metric > maxima[k] {
			maxima[k] = rec.Metric
		}
		sums[k] += rec.Metric
		counts[k]++
	}

	observations := make([]escape.Observation, 0, len(order))
	for _, k := range order {
		var value float64
		switch method {
		case escape.AggregationMean:
			value = sums[k] / float64(counts[k])
		case escape.AggregationMax:
			value = maxima[k]
		default:
			value = sums[k]
		}
		observations = append(observations, escape.Observation{
			Condition: k.condition,
			Site:      k.site,
			Metric:    value,
		})
	}
	return observations
}

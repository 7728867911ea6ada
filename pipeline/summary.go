package pipeline

import (
	"github.com/montanaflynn/stats"
)

// Summary describes a set of per-unit values in a report.
type Summary struct {
	Count  int     `json:"count"`
	Total  float64 `json:"total"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Max    float64 `json:"max"`
}

// summarize is zero for no values.
func summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	data := stats.Float64Data(values)
	total, _ := data.Sum()
	mean, _ := data.Mean()
	median, _ := data.Median()
	maximum, _ := data.Max()
	return Summary{Count: len(values), Total: total, Mean: mean, Median: median, Max: maximum}
}

package charts

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ScoreSummary describes the distribution of per-device quality scores.
type ScoreSummary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Median float64 `json:"median"`
	Max    float64 `json:"max"`
}

// SummarizeScores computes the summary of scores. An empty input yields a
// zero summary.
func SummarizeScores(scores []float64) ScoreSummary {
	if len(scores) == 0 {
		return ScoreSummary{}
	}
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)
	s := ScoreSummary{
		Count:  len(sorted),
		Mean:   stat.Mean(sorted, nil),
		Min:    floats.Min(sorted),
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		Max:    floats.Max(sorted),
	}
	if len(sorted) > 1 {
		s.StdDev = stat.StdDev(sorted, nil)
	}
	return s
}

// scoreBucketEdges split 0..100 into ten-point bins; the last bin is closed.
var scoreBucketEdges = []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100.000001}

// ScoreHistogram counts scores per ten-point bucket. Scores outside 0..100
// are clamped into the end buckets.
func ScoreHistogram(scores []float64) []int {
	if len(scores) == 0 {
		return make([]int, len(scoreBucketEdges)-1)
	}
	sorted := make([]float64, len(scores))
	for i, v := range scores {
		switch {
		case v < 0:
			v = 0
		case v > 100:
			v = 100
		}
		sorted[i] = v
	}
	sort.Float64s(sorted)
	counts := stat.Histogram(nil, scoreBucketEdges, sorted, nil)
	out := make([]int, len(counts))
	for i, c := range counts {
		out[i] = int(c)
	}
	return out
}

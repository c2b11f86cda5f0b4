package detection

import (
	"math"
	"sort"
)

// distinctPositions sorts positions and merges runs whose neighbours lie
// within tol pixels of each other, returning the rounded mean of each run.
// With tol 0 it is a plain sort-and-deduplicate.
func distinctPositions(vals []int, tol int) []int {
	if len(vals) == 0 {
		return nil
	}
	sorted := append([]int(nil), vals...)
	sort.Ints(sorted)

	var out []int
	sum, n := sorted[0], 1
	for i := 1; i < len(sorted); i++ {
		if sorted[i]-sorted[i-1] <= tol {
			sum += sorted[i]
			n++
			continue
		}
		out = append(out, int(math.Round(float64(sum)/float64(n))))
		sum, n = sorted[i], 1
	}
	out = append(out, int(math.Round(float64(sum)/float64(n))))
	return dedupe(out)
}

func dedupe(sorted []int) []int {
	out := sorted[:0]
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			out = append(out, v)
		}
	}
	return out
}

// spacingStats returns the mean gap between consecutive sorted positions and
// its coefficient of variation (population standard deviation / mean).
// Fewer than two positions, or a zero mean, give an infinite CV.
func spacingStats(positions []int) (mean, cv float64) {
	if len(positions) < 2 {
		return 0, math.Inf(1)
	}
	gaps := make([]float64, len(positions)-1)
	for i := 1; i < len(positions); i++ {
		gaps[i-1] = float64(positions[i] - positions[i-1])
		mean += gaps[i-1]
	}
	mean /= float64(len(gaps))
	if mean == 0 {
		return 0, math.Inf(1)
	}

	var variance float64
	for _, g := range gaps {
		d := g - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(len(gaps)))
	return mean, std / mean
}

package detection

import "sort"

// Resolve removes duplicate candidates reported by different detectors.
//
// Candidates are ordered by confidence (highest first), ties broken by area
// (largest first) and then by input order. Walking that order, a candidate is
// dropped when it shares more than threshold of the smaller box's area with a
// candidate already kept. The survivors are returned in the walk order.
//
// For any two survivors a and b, IntersectionArea(a, b) <= threshold *
// min(a.Area, b.Area). The input slice is not modified.
func Resolve(cands []DiagramCandidate, threshold float64) []DiagramCandidate {
	if len(cands) == 0 {
		return nil
	}
	sorted := append([]DiagramCandidate(nil), cands...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Confidence != sorted[j].Confidence {
			return sorted[i].Confidence > sorted[j].Confidence
		}
		return sorted[i].Area > sorted[j].Area
	})

	kept := make([]DiagramCandidate, 0, len(sorted))
	for _, c := range sorted {
		if !overlapsAny(c, kept, threshold) {
			kept = append(kept, c)
		}
	}
	return kept
}

func overlapsAny(c DiagramCandidate, kept []DiagramCandidate, threshold float64) bool {
	for _, k := range kept {
		inter := c.BBox.IntersectionArea(k.BBox)
		if inter == 0 {
			continue
		}
		if float64(inter) > threshold*float64(min(c.Area, k.Area)) {
			return true
		}
	}
	return false
}

package detection

import (
	"log/slog"
	"math"
	"sort"

	"github.com/ironsheep/exam-diagrams/internal/imaging"
)

// DetectLayout is the coarse layout pass used when the tier-one detectors
// find nothing confident. It binarizes the raw grayscale with a small adaptive
// window and keeps the largest mid-sized blocks.
//
// Confidence = min(50 + circularity*50, MaxConfidence) where circularity is
// 4*pi*area/perimeter^2 of the block's outline. At most MaxResults candidates
// are returned, largest first.
func DetectLayout(page *Page, p LayoutParams) []DiagramCandidate {
	bin := imaging.AdaptiveThresholdInv(page.Gray(), p.AdaptiveBlock, p.AdaptiveC)

	var out []DiagramCandidate
	for _, c := range FindExternalContours(bin) {
		box := c.BBox()
		area := box.Area()
		if area <= p.MinArea || area >= p.MaxArea {
			continue
		}
		ar := float64(box.Width) / float64(box.Height)
		if ar <= p.MinAR || ar >= p.MaxAR {
			continue
		}
		circularity := 0.0
		if per := c.Perimeter(); per > 0 {
			circularity = 4 * math.Pi * float64(area) / (per * per)
		}
		conf := round1(math.Min(50+circularity*50, p.MaxConfidence))
		cand, err := NewCandidate(box, circularity, conf, SourceLayout)
		if err != nil {
			continue
		}
		out = append(out, cand)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Area > out[j].Area })
	if p.MaxResults > 0 && len(out) > p.MaxResults {
		out = out[:p.MaxResults]
	}
	slog.Debug("layout candidates", "page", page.Number, "count", len(out))
	return out
}

package detection

import (
	"image"
	"log/slog"
	"math"
	"sort"

	"github.com/ironsheep/exam-diagrams/internal/imaging"
)

// DetectContourDensity scores external contours as diagram candidates by
// comparing the edge density around them with the rest of the page.
//
// # Algorithm
//
//  1. Canny (CannyLow/CannyHigh) on the blurred page, dilated with a square
//     element so the strokes of one figure merge into a single blob.
//  2. The raw edge map is divided into CellSize x CellSize cells; the
//     Percentile-th cell density is the dense-cell threshold.
//  3. A contour is kept when its bbox is large but not page sized, has a
//     moderate aspect ratio, and the cell under its centre is denser than
//     DensityFactor * threshold.
//  4. Confidence = min(cell/threshold, 1)*40 + min(area/100000, 1)*30
//     + (20 if 0.3 < ar < 3 else 10) + min(edgeFraction*100, 10),
//     capped at 100 and rounded to 0.1.
//
// Densities are fractions of edge pixels, so the percentile threshold is
// independent of raster scale.
func DetectContourDensity(page *Page, p ContourDensityParams) []DiagramCandidate {
	edges := imaging.Canny(page.Blurred(), p.CannyLow, p.CannyHigh)
	dilated := imaging.Dilate(edges, p.DilateKernel, p.DilateKernel, p.DilateIterations)

	cells, cols := densityGrid(edges, p.CellSize)
	threshold := percentile(cells, p.Percentile)

	W, H := page.Width(), page.Height()
	pageArea := float64(page.Area())
	var out []DiagramCandidate

	for _, c := range FindExternalContours(dilated) {
		box := c.BBox()
		area := box.Area()
		if area == 0 {
			continue
		}
		ar := float64(box.Width) / float64(box.Height)
		if area <= p.MinArea ||
			float64(area) >= p.MaxPageFraction*pageArea ||
			float64(box.Width) >= p.MaxWidthFrac*float64(W) ||
			float64(box.Height) >= p.MaxHeightFrac*float64(H) ||
			ar <= p.MinAR || ar >= p.MaxAR {
			continue
		}

		cx := (box.X + box.Width/2) / p.CellSize
		cy := (box.Y + box.Height/2) / p.CellSize
		cell := 0.0
		if idx := cy*cols + cx; idx >= 0 && idx < len(cells) {
			cell = cells[idx]
		}
		if cell <= p.DensityFactor*threshold {
			continue
		}

		ratio := 1.0
		if threshold > 0 {
			ratio = math.Min(cell/threshold, 1)
		}
		conf := ratio*40 + math.Min(float64(area)/100000, 1)*30
		if ar > 0.3 && ar < 3.0 {
			conf += 20
		} else {
			conf += 10
		}
		edgeFraction := float64(imaging.CountNonZero(edges, c.Bounds)) / float64(area)
		conf += math.Min(edgeFraction*100, 10)
		conf = round1(math.Min(conf, 100))

		cand, err := NewCandidate(box, edgeFraction, conf, SourceContourDensity)
		if err != nil {
			continue
		}
		out = append(out, cand)
	}

	slog.Debug("contour density candidates", "page", page.Number, "threshold", threshold, "count", len(out))
	return out
}

// densityGrid returns the edge fraction of every cell, row-major, and the
// number of columns. Partial cells at the right and bottom borders are
// measured against the full cell area.
func densityGrid(edges *image.Gray, size int) ([]float64, int) {
	if size <= 0 {
		size = 100
	}
	w, h := edges.Rect.Dx(), edges.Rect.Dy()
	cols := (w + size - 1) / size
	rows := (h + size - 1) / size
	cells := make([]float64, 0, cols*rows)
	full := float64(size * size)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			r := image.Rect(x*size, y*size, (x+1)*size, (y+1)*size)
			cells = append(cells, float64(imaging.CountNonZero(edges, r))/full)
		}
	}
	return cells, cols
}

// percentile returns the q-th percentile (0..100) of vals with linear
// interpolation between closest ranks.
func percentile(vals []float64, q float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	pos := q / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo < 0 {
		lo = 0
	}
	if hi >= len(sorted) {
		hi = len(sorted) - 1
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

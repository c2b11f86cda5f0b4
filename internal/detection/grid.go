package detection

import (
	"image"
	"log/slog"
	"math"

	"github.com/ironsheep/exam-diagrams/internal/imaging"
)

// DetectGrid finds coordinate planes and squared-paper figures.
//
// Method 1 (intersections) runs first; Method 2 (Hough lines) only runs when
// Method 1 finds nothing.
func DetectGrid(page *Page, p GridParams) []DiagramCandidate {
	if out := detectGridIntersections(page, p); len(out) > 0 {
		return out
	}
	return detectGridLines(page, p)
}

// detectGridIntersections locates grids by the crossings of long horizontal
// and vertical rulings.
//
// # Algorithm
//
//  1. Canny of the blurred page.
//  2. Opening with a LineKernel x 1 element keeps horizontal rulings; a
//     1 x LineKernel element keeps vertical ones.
//  3. Both maps are dilated by JoinKernel and intersected. The intersection
//     is dilated once more so the fragments of one crossing join; every
//     connected blob is then one crossing, located at its centroid.
//  4. Crossings closer than ClusterGap (Chebyshev) are linked into clusters.
//  5. A cluster is a grid when it has enough crossings on enough distinct
//     rows and columns, evenly spaced, over a large enough area.
//
// Confidence = min(rows*cols*2 + (1-rowCV-colCV)*40, 100); Density is the
// number of crossings.
func detectGridIntersections(page *Page, p GridParams) []DiagramCandidate {
	edges := imaging.Canny(page.Blurred(), p.CannyLow, p.CannyHigh)
	horiz := imaging.Open(edges, p.LineKernel, 1, 1)
	vert := imaging.Open(edges, 1, p.LineKernel, 1)
	if p.JoinKernel > 1 {
		horiz = imaging.Dilate(horiz, p.JoinKernel, p.JoinKernel, 1)
		vert = imaging.Dilate(vert, p.JoinKernel, p.JoinKernel, 1)
	}
	cross := imaging.And(horiz, vert)
	if p.JoinKernel > 1 {
		cross = imaging.Dilate(cross, p.JoinKernel, p.JoinKernel, 1)
	}
	crossings := crossingBlobs(cross)
	if len(crossings) == 0 {
		return nil
	}

	var out []DiagramCandidate
	for _, cluster := range clusterCrossings(crossings, p.ClusterGap) {
		var box BBox
		xs := make([]int, 0, len(cluster))
		ys := make([]int, 0, len(cluster))
		for _, c := range cluster {
			box = box.Union(BBoxFromRect(c.Bounds))
			cx, cy := c.Centroid()
			xs = append(xs, int(math.Round(cx)))
			ys = append(ys, int(math.Round(cy)))
		}
		if box.Area() <= p.MinClusterArea || len(cluster) < p.MinPoints {
			continue
		}

		rows := distinctPositions(ys, p.PositionTolerance)
		cols := distinctPositions(xs, p.PositionTolerance)
		if len(rows) < p.MinRows || len(cols) < p.MinCols {
			continue
		}
		rowMean, rowCV := spacingStats(rows)
		colMean, colCV := spacingStats(cols)

		slog.Debug("grid cluster",
			"page", page.Number,
			"points", len(cluster),
			"rows", len(rows),
			"cols", len(cols),
			"row_cv", rowCV,
			"col_cv", colCV,
			"bbox", box)

		if rowCV >= p.MaxCV || colCV >= p.MaxCV ||
			rowMean <= p.MinSpacing || colMean <= p.MinSpacing ||
			box.Area() <= p.MinArea {
			continue
		}

		conf := math.Min(float64(len(rows)*len(cols)*2)+(1-rowCV-colCV)*40, 100)
		cand, err := NewCandidate(box, float64(len(cluster)), round1(conf), SourceGridIntersection)
		if err != nil {
			continue
		}
		out = append(out, cand)
	}
	return out
}

// crossingBlobs labels the foreground of a binary raster.
func crossingBlobs(bin *image.Gray) []component {
	w, h := bin.Rect.Dx(), bin.Rect.Dy()
	mask := make([]bool, w*h)
	found := false
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if bin.Pix[y*bin.Stride+x] != 0 {
				mask[y*w+x] = true
				found = true
			}
		}
	}
	if !found {
		return nil
	}
	_, comps := labelComponents(mask, w, h)
	return comps
}

// clusterCrossings groups crossings by single linkage: two crossings share a
// cluster when a chain of crossings connects them with every hop no longer
// than gap on both axes. Clusters keep the raster order of their first member.
func clusterCrossings(crossings []component, gap int) [][]component {
	parent := make([]int, len(crossings))
	for i := range parent {
		parent[i] = i
	}
	find := func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}

	cx := make([]float64, len(crossings))
	cy := make([]float64, len(crossings))
	for i, c := range crossings {
		cx[i], cy[i] = c.Centroid()
	}
	g := float64(gap)
	for i := range crossings {
		for j := i + 1; j < len(crossings); j++ {
			if math.Abs(cx[i]-cx[j]) <= g && math.Abs(cy[i]-cy[j]) <= g {
				if a, b := find(i), find(j); a != b {
					parent[b] = a
				}
			}
		}
	}

	index := make(map[int]int)
	var clusters [][]component
	for i, c := range crossings {
		root := find(i)
		k, ok := index[root]
		if !ok {
			k = len(clusters)
			index[root] = k
			clusters = append(clusters, nil)
		}
		clusters[k] = append(clusters[k], c)
	}
	return clusters
}

// detectGridLines is the Hough fallback for grids whose crossings are too
// faint to survive edge detection.
//
// # Algorithm
//
//  1. Inverted adaptive Gaussian threshold of the blurred page.
//  2. Probabilistic Hough segments; at least MinLines are required.
//  3. Segments are split into horizontal (dx > 2dy) and vertical (dy > 2dx);
//     their midpoint rows and columns are reduced to distinct positions.
//  4. Both families need MinRows/MinCols positions with regular spacing wider
//     than LineMinSpacing; the envelope of the classified lines must exceed
//     LineMinArea.
//
// Confidence = min(hCount*vCount + (1-hCV-vCV)*50, 100); Density is the
// number of classified lines.
func detectGridLines(page *Page, p GridParams) []DiagramCandidate {
	bin := imaging.AdaptiveThresholdInv(page.Blurred(), p.AdaptiveBlock, p.AdaptiveC)
	segs := HoughSegments(bin, p.Hough)
	if len(segs) < p.MinLines {
		return nil
	}

	var hs, vs []Segment
	var hPos, vPos []int
	for _, s := range segs {
		switch {
		case s.Horizontal():
			hs = append(hs, s)
			hPos = append(hPos, (s.Y1+s.Y2)/2)
		case s.Vertical():
			vs = append(vs, s)
			vPos = append(vPos, (s.X1+s.X2)/2)
		}
	}
	hPos = distinctPositions(hPos, p.PositionTolerance)
	vPos = distinctPositions(vPos, p.PositionTolerance)
	if len(hPos) < p.MinRows || len(vPos) < p.MinCols {
		return nil
	}
	hMean, hCV := spacingStats(hPos)
	vMean, vCV := spacingStats(vPos)

	lines := append(append([]Segment(nil), hs...), vs...)
	box := segmentEnvelope(lines)

	slog.Debug("grid lines",
		"page", page.Number,
		"segments", len(segs),
		"horizontal", len(hPos),
		"vertical", len(vPos),
		"h_cv", hCV,
		"v_cv", vCV,
		"bbox", box)

	if hCV >= p.MaxCV || vCV >= p.MaxCV ||
		hMean <= p.LineMinSpacing || vMean <= p.LineMinSpacing ||
		box.Area() <= p.LineMinArea {
		return nil
	}

	conf := math.Min(float64(len(hPos)*len(vPos))+(1-hCV-vCV)*50, 100)
	cand, err := NewCandidate(box, float64(len(lines)), round1(conf), SourceGridLines)
	if err != nil {
		return nil
	}
	return []DiagramCandidate{cand}
}

package detection

import (
	"image"
	"log/slog"

	"github.com/ironsheep/exam-diagrams/internal/imaging"
)

// RegionFeatures are the measurements classification is based on.
type RegionFeatures struct {
	Area        int
	AspectRatio float64
	EdgeDensity float64 // edge pixels / bbox area
	FillRatio   float64 // contour area / bbox area
}

// ClassifyRegion assigns a class to one contour. The first matching rule
// wins:
//
//  1. area below MinArea: discard
//  2. large, moderately shaped, with some edges and not a solid block: diagram
//  3. wide strip (aspect ratio above TextMinAR): text
//  4. anything else: mixed
//
// It is a pure function of its inputs.
func ClassifyRegion(f RegionFeatures, p RegionParams) Class {
	switch {
	case f.Area < p.MinArea:
		return ClassDiscard
	case f.Area > p.DiagramMinArea &&
		f.AspectRatio > p.DiagramMinAR && f.AspectRatio < p.DiagramMaxAR &&
		f.EdgeDensity > p.MinEdgeDensity &&
		f.FillRatio < p.MaxFillRatio:
		return ClassDiagram
	case f.AspectRatio > p.TextMinAR:
		return ClassText
	default:
		return ClassMixed
	}
}

// ClassifyRegions partitions the external contours of a page into text,
// diagram and mixed blocks.
//
// # Algorithm
//
//  1. Build the edge map (Canny, closing, dilation).
//  2. Trace external contours on the closed map.
//  3. For each contour measure bbox, aspect ratio, raw-edge density inside
//     the bbox and fill ratio, then classify with ClassifyRegion.
//  4. If no diagram was found, run the probabilistic Hough transform on the
//     raw edges; with at least HoughMinLines segments, their padded envelope
//     becomes a diagram block tagged DetectedViaHough when it is large enough.
//
// The result is deterministic for a given page and parameters.
func ClassifyRegions(page *Page, p RegionParams) PageRegions {
	em := imaging.BuildEdgeMapGray(page.Gray(), p.EdgeMap)
	regions := PageRegions{
		TextBlocks:    []Region{},
		DiagramBlocks: []Region{},
		MixedBlocks:   []Region{},
	}

	for _, c := range FindExternalContours(em.Closed) {
		region, err := NewRegion(c.BBox())
		if err != nil {
			continue
		}
		f := RegionFeatures{
			Area:        region.Area,
			AspectRatio: region.AspectRatio,
			EdgeDensity: float64(imaging.CountNonZero(em.Edges, c.Bounds)) / float64(region.Area),
			FillRatio:   c.Area() / float64(region.Area),
		}
		switch ClassifyRegion(f, p) {
		case ClassDiagram:
			regions.DiagramBlocks = append(regions.DiagramBlocks, region)
		case ClassText:
			regions.TextBlocks = append(regions.TextBlocks, region)
		case ClassMixed:
			regions.MixedBlocks = append(regions.MixedBlocks, region)
		}
	}

	if len(regions.DiagramBlocks) == 0 {
		if r, ok := houghEnvelope(em.Edges, page, p); ok {
			regions.DiagramBlocks = append(regions.DiagramBlocks, r)
		}
	}

	slog.Debug("classified page regions",
		"page", page.Number,
		"text", len(regions.TextBlocks),
		"diagram", len(regions.DiagramBlocks),
		"mixed", len(regions.MixedBlocks))
	return regions
}

// houghEnvelope is the line-based fallback of ClassifyRegions.
func houghEnvelope(edges *image.Gray, page *Page, p RegionParams) (Region, bool) {
	segs := HoughSegments(edges, p.Hough)
	if len(segs) < p.HoughMinLines {
		return Region{}, false
	}
	box := segmentEnvelope(segs).Pad(p.HoughPadding, page.Bounds())
	if box.Area() <= p.HoughMinArea || box.Width <= p.HoughMinSide || box.Height <= p.HoughMinSide {
		return Region{}, false
	}
	region, err := NewRegion(box)
	if err != nil {
		return Region{}, false
	}
	region.DetectedVia = DetectedViaHough
	slog.Debug("hough fallback region", "page", page.Number, "lines", len(segs), "bbox", box)
	return region, true
}

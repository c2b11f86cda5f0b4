package detection

import (
	"image"
	"log/slog"
	"math"

	"github.com/ironsheep/exam-diagrams/internal/imaging"
)

// DetectMorphological finds large dark structures that survive a grayscale
// closing, which erases text strokes thinner than the closing element.
//
// # Algorithm
//
//  1. Grayscale close (max then min filter) with a CloseKernel square.
//  2. Inverted Otsu threshold: dark structures become foreground.
//  3. External contours filtered by area, aspect ratio and page fraction.
//
// Confidence = 50 + fillRatio*30 + min(area/50000, 1)*20, capped at
// MaxConfidence; Density is the fill ratio (contour area / bbox area).
func DetectMorphological(page *Page, p MorphParams) []DiagramCandidate {
	closed := imaging.Close(page.Gray(), p.CloseKernel, p.CloseKernel, 1)
	bin := imaging.ThresholdInv(closed, imaging.OtsuLevel(closed))

	W, H := float64(page.Width()), float64(page.Height())
	pageArea := float64(page.Area())
	var out []DiagramCandidate
	for _, c := range FindExternalContours(bin) {
		box := c.BBox()
		area := box.Area()
		if area <= p.MinArea || float64(area) >= p.MaxPageFraction*pageArea {
			continue
		}
		ar := float64(box.Width) / float64(box.Height)
		if ar <= p.MinAR || ar >= p.MaxAR ||
			float64(box.Width) >= p.MaxSideFraction*W ||
			float64(box.Height) >= p.MaxSideFraction*H {
			continue
		}
		fill := c.Area() / float64(area)
		conf := 50 + fill*30 + math.Min(float64(area)/50000, 1)*20
		conf = round1(math.Min(conf, p.MaxConfidence))
		cand, err := NewCandidate(box, fill, conf, SourceMorphological)
		if err != nil {
			continue
		}
		out = append(out, cand)
	}
	slog.Debug("morphological candidates", "page", page.Number, "count", len(out))
	return out
}

// DetectBlobs proposes the envelope of repeated dark blobs (plotted points,
// dot diagrams, tally marks) as one diagram.
//
// # Algorithm
//
// The page is binarized at every threshold from MinThreshold to MaxThreshold.
// At each level the dark 8-connected components with MinArea..MaxArea pixels
// contribute their centroids. Centroids closer than MinDistance across levels
// are the same blob; a blob seen on at least MinRepeatability levels becomes a
// keypoint at the mean of its centroids. With at least MinKeypoints keypoints
// the envelope of their centres is reported when larger than MinEnvelopeArea.
func DetectBlobs(page *Page, p BlobParams) []DiagramCandidate {
	points := blobKeypoints(page.Gray(), p)
	if len(points) < p.MinKeypoints {
		return nil
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, pt := range points {
		minX, maxX = math.Min(minX, pt.x), math.Max(maxX, pt.x)
		minY, maxY = math.Min(minY, pt.y), math.Max(maxY, pt.y)
	}
	box := BBox{
		X:      int(minX),
		Y:      int(minY),
		Width:  int(maxX) - int(minX),
		Height: int(maxY) - int(minY),
	}
	slog.Debug("blob keypoints", "page", page.Number, "keypoints", len(points), "bbox", box)
	if box.Area() <= p.MinEnvelopeArea {
		return nil
	}
	cand, err := NewCandidate(box, float64(len(points)), p.Confidence, SourceBlob)
	if err != nil {
		return nil
	}
	return []DiagramCandidate{cand}
}

type keypoint struct {
	x, y float64
}

// blobGroup accumulates the centroids of one blob across threshold levels.
type blobGroup struct {
	sumX, sumY float64
	lastX      float64
	lastY      float64
	n          int
}

func blobKeypoints(gray *image.Gray, p BlobParams) []keypoint {
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	if w == 0 || h == 0 || p.ThresholdStep <= 0 {
		return nil
	}

	var groups []*blobGroup
	mask := make([]bool, w*h)
	for t := p.MinThreshold; t < p.MaxThreshold; t += p.ThresholdStep {
		for y := 0; y < h; y++ {
			row := gray.Pix[y*gray.Stride : y*gray.Stride+w]
			for x, v := range row {
				mask[y*w+x] = int(v) <= t
			}
		}
		_, comps := labelComponents(mask, w, h)

		// Centres from one level never merge with each other.
		seen := make(map[*blobGroup]bool)
		for _, c := range comps {
			if c.Area < p.MinArea || c.Area > p.MaxArea {
				continue
			}
			cx, cy := c.Centroid()
			var match *blobGroup
			for _, g := range groups {
				if seen[g] {
					continue
				}
				if math.Hypot(g.lastX-cx, g.lastY-cy) < p.MinDistance {
					match = g
					break
				}
			}
			if match == nil {
				match = &blobGroup{}
				groups = append(groups, match)
			}
			match.sumX += cx
			match.sumY += cy
			match.lastX, match.lastY = cx, cy
			match.n++
			seen[match] = true
		}
	}

	var out []keypoint
	for _, g := range groups {
		if g.n >= p.MinRepeatability {
			out = append(out, keypoint{x: g.sumX / float64(g.n), y: g.sumY / float64(g.n)})
		}
	}
	return out
}

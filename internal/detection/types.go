package detection

import (
	"errors"
	"fmt"
	"image"
	"math"
)

// BBox is an axis-aligned bounding box in page pixel coordinates.
//
// The origin is the top-left corner of the page. (X, Y) is the top-left
// pixel of the box (inclusive); the box spans Width columns and Height rows.
type BBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// BBoxFromRect converts an image.Rectangle (exclusive Max) into a BBox.
func BBoxFromRect(r image.Rectangle) BBox {
	r = r.Canon()
	return BBox{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

// Rect returns the box as an image.Rectangle.
func (b BBox) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

// Area returns Width*Height, or 0 for degenerate boxes.
func (b BBox) Area() int {
	if b.Width <= 0 || b.Height <= 0 {
		return 0
	}
	return b.Width * b.Height
}

// Empty reports whether the box covers no pixels.
func (b BBox) Empty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// IntersectionArea returns the area shared by two boxes, zero if disjoint.
func (b BBox) IntersectionArea(o BBox) int {
	return BBoxFromRect(b.Rect().Intersect(o.Rect())).Area()
}

// Pad grows the box by pad pixels on every side and clamps the result to
// bounds. The result may be empty if the box lies outside bounds.
func (b BBox) Pad(pad int, bounds image.Rectangle) BBox {
	r := image.Rect(b.X-pad, b.Y-pad, b.X+b.Width+pad, b.Y+b.Height+pad)
	return BBoxFromRect(r.Intersect(bounds))
}

// Union returns the smallest box containing both boxes. An empty operand is
// ignored.
func (b BBox) Union(o BBox) BBox {
	if b.Empty() {
		return o
	}
	if o.Empty() {
		return b
	}
	return BBoxFromRect(b.Rect().Union(o.Rect()))
}

// Scale multiplies every coordinate by f, rounding to the nearest pixel.
func (b BBox) Scale(f float64) BBox {
	return BBox{
		X:      int(math.Round(float64(b.X) * f)),
		Y:      int(math.Round(float64(b.Y) * f)),
		Width:  int(math.Round(float64(b.Width) * f)),
		Height: int(math.Round(float64(b.Height) * f)),
	}
}

// ErrEmptyRegion is returned when a region would have zero width or height.
var ErrEmptyRegion = errors.New("empty region")

// Region is a validated bounding box with its derived measurements.
//
// A Region always satisfies Area == BBox.Width*BBox.Height with both sides
// positive. Construct it through NewRegion.
type Region struct {
	BBox        BBox    `json:"bbox"`
	Area        int     `json:"area"`
	AspectRatio float64 `json:"aspect_ratio"`

	// DetectedVia names the method that produced the region when it is not
	// the default contour pass, e.g. "hough".
	DetectedVia string `json:"detected_via,omitempty"`
}

// NewRegion validates b and computes its area and aspect ratio (width/height).
func NewRegion(b BBox) (Region, error) {
	if b.Empty() {
		return Region{}, fmt.Errorf("bbox %dx%d at (%d,%d): %w", b.Width, b.Height, b.X, b.Y, ErrEmptyRegion)
	}
	return Region{
		BBox:        b,
		Area:        b.Width * b.Height,
		AspectRatio: float64(b.Width) / float64(b.Height),
	}, nil
}

// Source identifies the detector or tier that produced a candidate. It also
// forms part of the crop file name.
type Source string

const (
	SourceContourDensity   Source = "contour_density"
	SourceGridIntersection Source = "grid_intersection"
	SourceGridLines        Source = "grid_lines"
	SourceBlob             Source = "blob_detection"
	SourceMorphological    Source = "morphological_analysis"
	SourceLayout           Source = "layout_analysis"
	SourceModelBBox        Source = "model_bbox"
	SourceModelFallback    Source = "model_fallback"
	SourceHeuristic        Source = "fallback_heuristic"
)

// DetectedViaHough tags the region produced by the line-envelope fallback of
// region classification.
const DetectedViaHough = "hough"

// DiagramCandidate is a region proposed as a diagram by one detector.
type DiagramCandidate struct {
	Region

	// Density is detector specific: edge-pixel fraction for contour scoring,
	// intersection count for grid Method 1, line count for grid Method 2,
	// fill ratio for morphological analysis, keypoint count for blobs.
	Density float64 `json:"density"`

	// Confidence is in [0, 100].
	Confidence float64 `json:"confidence"`

	Source Source `json:"source"`
}

// NewCandidate builds a candidate, clamping confidence to [0, 100].
func NewCandidate(b BBox, density, confidence float64, source Source) (DiagramCandidate, error) {
	region, err := NewRegion(b)
	if err != nil {
		return DiagramCandidate{}, err
	}
	return DiagramCandidate{
		Region:     region,
		Density:    density,
		Confidence: math.Max(0, math.Min(100, confidence)),
		Source:     source,
	}, nil
}

// Class is the outcome of region classification.
type Class int

const (
	ClassDiscard Class = iota
	ClassDiagram
	ClassText
	ClassMixed
)

func (c Class) String() string {
	switch c {
	case ClassDiagram:
		return "diagram"
	case ClassText:
		return "text"
	case ClassMixed:
		return "mixed"
	default:
		return "discard"
	}
}

// PageRegions partitions the significant contours of a page. The three lists
// are disjoint.
type PageRegions struct {
	TextBlocks    []Region `json:"text_blocks"`
	DiagramBlocks []Region `json:"diagram_blocks"`
	MixedBlocks   []Region `json:"mixed_blocks"`
}

// Total returns the number of classified regions.
func (p PageRegions) Total() int {
	return len(p.TextBlocks) + len(p.DiagramBlocks) + len(p.MixedBlocks)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

package detection

import (
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Detector is one diagram-finding strategy. Implementations are pure: they
// read the page and their parameters and never mutate either.
type Detector interface {
	Name() string
	Detect(page *Page) ([]DiagramCandidate, error)
}

// ContourDensityDetector wraps DetectContourDensity.
type ContourDensityDetector struct {
	Params ContourDensityParams
}

func (d ContourDensityDetector) Name() string { return string(SourceContourDensity) }

func (d ContourDensityDetector) Detect(page *Page) ([]DiagramCandidate, error) {
	return DetectContourDensity(page, d.Params), nil
}

// GridDetector wraps DetectGrid.
type GridDetector struct {
	Params GridParams
}

func (d GridDetector) Name() string { return "grid" }

func (d GridDetector) Detect(page *Page) ([]DiagramCandidate, error) {
	return DetectGrid(page, d.Params), nil
}

// BlobDetector runs the morphological pass and the keypoint envelope.
type BlobDetector struct {
	Morph MorphParams
	Blob  BlobParams
}

func (d BlobDetector) Name() string { return "blob" }

func (d BlobDetector) Detect(page *Page) ([]DiagramCandidate, error) {
	out := DetectMorphological(page, d.Morph)
	return append(out, DetectBlobs(page, d.Blob)...), nil
}

// LayoutDetector wraps DetectLayout.
type LayoutDetector struct {
	Params LayoutParams
}

func (d LayoutDetector) Name() string { return string(SourceLayout) }

func (d LayoutDetector) Detect(page *Page) ([]DiagramCandidate, error) {
	return DetectLayout(page, d.Params), nil
}

// RunSafe runs a detector and converts a panic into an error, so one broken
// strategy cannot abort a page.
func RunSafe(d Detector, page *Page) (cands []DiagramCandidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("detector panic", "detector", d.Name(), "page", page.Number, "panic", r, "stack", string(debug.Stack()))
			cands = nil
			err = fmt.Errorf("detector %s panicked: %v", d.Name(), r)
		}
	}()
	return d.Detect(page)
}

// Hybrid is the tier-one combination: contour density, grid and blob
// detectors run independently and their candidates are deduplicated with
// Resolve.
type Hybrid struct {
	Detectors        []Detector
	OverlapThreshold float64
}

// NewHybrid builds the tier-one combination from params.
func NewHybrid(p Params) *Hybrid {
	return &Hybrid{
		Detectors: []Detector{
			ContourDensityDetector{Params: p.ContourDensity},
			GridDetector{Params: p.Grid},
			BlobDetector{Morph: p.Morph, Blob: p.Blob},
		},
		OverlapThreshold: p.OverlapThreshold,
	}
}

func (h *Hybrid) Name() string { return "hybrid" }

// Detect runs every detector. A failing detector is logged and contributes
// nothing; Detect itself never fails.
func (h *Hybrid) Detect(page *Page) ([]DiagramCandidate, error) {
	var all []DiagramCandidate
	for _, d := range h.Detectors {
		cands, err := RunSafe(d, page)
		if err != nil {
			slog.Warn("detector failed", "detector", d.Name(), "page", page.Number, "error", err)
			continue
		}
		slog.Debug("detector finished", "detector", d.Name(), "page", page.Number, "candidates", len(cands))
		all = append(all, cands...)
	}
	return Resolve(all, h.OverlapThreshold), nil
}

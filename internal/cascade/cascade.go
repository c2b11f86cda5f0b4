// Package cascade decides, per question, where its diagram is.
//
// A Cascade is a small state machine. NEED_CHECK decides whether the question
// refers to a figure at all; the four tiers then run in order until one of
// them produces a crop:
//
//	TIER1  contour density + grid + blob detectors, confident results only
//	TIER2  layout analysis
//	TIER3  the model's own box, from enrichment or a locate request
//	TIER4  a fixed band across the middle of the page
//
// Tier four always produces a crop, so every question that needs a diagram
// ends with at least one record. Detector and model failures make a tier
// empty; only failures to persist a crop are returned.
package cascade

import (
	"context"
	"log/slog"
	"strings"

	"github.com/pkg/errors"

	"github.com/ironsheep/exam-diagrams/internal/detection"
	"github.com/ironsheep/exam-diagrams/internal/imaging"
	"github.com/ironsheep/exam-diagrams/internal/model"
)

// State is a cascade state.
type State int

const (
	StateNeedCheck State = iota
	StateTier1
	StateTier2
	StateTier3
	StateTier4
	StateDone
)

func (s State) String() string {
	switch s {
	case StateNeedCheck:
		return "NEED_CHECK"
	case StateTier1:
		return "TIER1"
	case StateTier2:
		return "TIER2"
	case StateTier3:
		return "TIER3"
	case StateTier4:
		return "TIER4"
	case StateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the state name in JSON output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for st := StateNeedCheck; st <= StateDone; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return errors.Errorf("unknown cascade state %q", text)
}

// Question is what the cascade needs to know about a question.
type Question struct {
	Text            string
	Parts           []string
	QuestionType    string
	RequiresDiagram bool
	// DiagramBBox is a box the model already reported while reading the
	// page, in page pixels.
	DiagramBBox *detection.BBox
}

// QuestionFromModel adapts a question read by the model.
func QuestionFromModel(q model.Question) Question {
	out := Question{
		Text:            q.Question,
		Parts:           q.PartTexts(),
		QuestionType:    q.Type(),
		RequiresDiagram: q.Enrichment.RequiresDiagram,
	}
	if b := q.Enrichment.DiagramBBox; b != nil {
		box := b.BBox()
		out.DiagramBBox = &box
	}
	return out
}

// DiagramRecord is one persisted diagram crop.
type DiagramRecord struct {
	// BBox is the crop rectangle: the detected box after padding and
	// clamping to the page.
	BBox detection.BBox `json:"bbox"`
	// Detected is the box before padding.
	Detected   detection.BBox   `json:"detected_bbox"`
	Area       int              `json:"area"`
	Confidence float64          `json:"confidence"`
	Source     detection.Source `json:"source"`
	Density    float64          `json:"density,omitempty"`
	Filename   string           `json:"filename"`
	Path       string           `json:"path"`
	FileSize   int64            `json:"file_size"`
	Page       int              `json:"page_number"`
	// Verified is false for the heuristic crop, which is a guess.
	Verified bool `json:"verified"`
}

// Result is the outcome of one cascade run.
type Result struct {
	// Tier is the state that produced the records; StateNeedCheck when the
	// question needs no diagram.
	Tier    State           `json:"tier"`
	Records []DiagramRecord `json:"records"`
	// Trace lists the states visited, ending with StateDone.
	Trace []State `json:"trace"`
}

// Cascade runs the tier state machine for questions on a page.
type Cascade struct {
	Tier1   detection.Detector
	Tier2   detection.Detector
	Locator model.DiagramLocator // may be nil
	Sink    Sink
	Options Options
}

// New builds a cascade with the standard detectors.
func New(params detection.Params, locator model.DiagramLocator, sink Sink, opts Options) *Cascade {
	return &Cascade{
		Tier1:   detection.NewHybrid(params),
		Tier2:   detection.LayoutDetector{Params: params.Layout},
		Locator: locator,
		Sink:    sink,
		Options: opts,
	}
}

// NeedsDiagram reports whether q refers to a figure.
func (c *Cascade) NeedsDiagram(q Question) bool {
	if q.QuestionType == "diagram_based" || q.RequiresDiagram || q.DiagramBBox != nil {
		return true
	}
	text := strings.ToLower(q.Text + " " + strings.Join(q.Parts, " "))
	for _, k := range c.Options.Keywords {
		if k != "" && strings.Contains(text, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

// Run drives the state machine for one question on page. The returned error
// is non-nil only when a crop could not be persisted.
func (c *Cascade) Run(ctx context.Context, page *detection.Page, q Question) (*Result, error) {
	res := &Result{Tier: StateNeedCheck}
	state := StateNeedCheck
	for {
		res.Trace = append(res.Trace, state)
		if state == StateDone {
			return res, nil
		}
		if state == StateNeedCheck {
			if c.NeedsDiagram(q) {
				state = StateTier1
			} else {
				state = StateDone
			}
			continue
		}

		cands, pad := c.tier(ctx, state, page, q)
		crops := cropBoxes(cands, pad, page)
		if len(crops) == 0 {
			slog.Debug("cascade tier empty", "page", page.Number, "tier", state)
			state++
			continue
		}
		records, err := c.persist(page, crops, state != StateTier4)
		if err != nil {
			return nil, errors.Wrapf(err, "page %d %s", page.Number, state)
		}
		res.Tier = state
		res.Records = records
		slog.Info("cascade produced diagrams", "page", page.Number, "tier", state, "count", len(records))
		state = StateDone
	}
}

// tier returns the candidates of one tier and the padding for their crops.
func (c *Cascade) tier(ctx context.Context, state State, page *detection.Page, q Question) ([]detection.DiagramCandidate, int) {
	switch state {
	case StateTier1:
		var out []detection.DiagramCandidate
		for _, cand := range c.detect(c.Tier1, page) {
			if cand.Confidence > c.Options.ConfidenceFloor {
				out = append(out, cand)
			}
		}
		return c.limit(out), c.Options.DetectorPadding
	case StateTier2:
		return c.limit(c.detect(c.Tier2, page)), c.Options.DetectorPadding
	case StateTier3:
		return c.modelBox(ctx, page, q), c.Options.ModelPadding
	case StateTier4:
		return []detection.DiagramCandidate{c.heuristic(page)}, 0
	}
	return nil, 0
}

func (c *Cascade) detect(d detection.Detector, page *detection.Page) []detection.DiagramCandidate {
	if d == nil {
		return nil
	}
	cands, err := detection.RunSafe(d, page)
	if err != nil {
		slog.Warn("detector failed", "detector", d.Name(), "page", page.Number, "error", err)
		return nil
	}
	return cands
}

func (c *Cascade) limit(cands []detection.DiagramCandidate) []detection.DiagramCandidate {
	if c.Options.MaxPerTier > 0 && len(cands) > c.Options.MaxPerTier {
		return cands[:c.Options.MaxPerTier]
	}
	return cands
}

// modelBox prefers the box the model gave while reading the page and falls
// back to a locate request.
func (c *Cascade) modelBox(ctx context.Context, page *detection.Page, q Question) []detection.DiagramCandidate {
	if q.DiagramBBox != nil && !q.DiagramBBox.Empty() {
		cand, err := detection.NewCandidate(*q.DiagramBBox, 0, c.Options.DefaultModelConfidence, detection.SourceModelBBox)
		if err == nil {
			return []detection.DiagramCandidate{cand}
		}
	}
	if c.Locator == nil {
		return nil
	}

	loc, err := c.Locator.LocateDiagram(ctx, page.Image(), model.QuestionContext(q.Text, q.Parts))
	if err != nil {
		if errors.Is(err, model.ErrNoDiagram) {
			slog.Info("model found no diagram", "page", page.Number)
		} else {
			slog.Warn("locate diagram failed", "page", page.Number, "error", err)
		}
		return nil
	}
	if loc == nil || loc.BBox == nil {
		return nil
	}
	conf := c.Options.DefaultModelConfidence
	if loc.Confidence != nil {
		conf = *loc.Confidence
	}
	cand, err := detection.NewCandidate(loc.BBox.BBox(), 0, conf, detection.SourceModelFallback)
	if err != nil {
		slog.Warn("model returned an empty box", "page", page.Number, "error", err)
		return nil
	}
	return []detection.DiagramCandidate{cand}
}

// heuristic is the fixed middle band of the page at full width.
func (c *Cascade) heuristic(page *detection.Page) detection.DiagramCandidate {
	h := page.Height()
	top := int(float64(h) * c.Options.HeuristicTop)
	height := int(float64(h) * (c.Options.HeuristicBottom - c.Options.HeuristicTop))
	top = min(max(top, 0), h-1)
	height = min(max(height, 1), h-top)
	box := detection.BBox{X: 0, Y: top, Width: page.Width(), Height: height}
	cand, _ := detection.NewCandidate(box, 0, c.Options.HeuristicConfidence, detection.SourceHeuristic)
	return cand
}

type crop struct {
	cand detection.DiagramCandidate
	box  detection.BBox
}

// cropBoxes pads every candidate, clamps it to the page and drops those that
// end up empty.
func cropBoxes(cands []detection.DiagramCandidate, pad int, page *detection.Page) []crop {
	var out []crop
	for _, cand := range cands {
		box := cand.BBox.Pad(pad, page.Bounds())
		if box.Empty() {
			slog.Debug("candidate outside page", "page", page.Number, "source", cand.Source, "bbox", cand.BBox)
			continue
		}
		out = append(out, crop{cand: cand, box: box})
	}
	return out
}

func (c *Cascade) persist(page *detection.Page, crops []crop, verified bool) ([]DiagramRecord, error) {
	records := make([]DiagramRecord, 0, len(crops))
	for i, cr := range crops {
		img, err := imaging.CropRegion(page.Image(), cr.box.Rect())
		if err != nil {
			return nil, err
		}
		saved, err := c.Sink.Save(page.Number, cr.cand.Source, i, img)
		if err != nil {
			return nil, err
		}
		records = append(records, DiagramRecord{
			BBox:       cr.box,
			Detected:   cr.cand.BBox,
			Area:       cr.box.Area(),
			Confidence: cr.cand.Confidence,
			Source:     cr.cand.Source,
			Density:    cr.cand.Density,
			Filename:   saved.Filename,
			Path:       saved.Path,
			FileSize:   saved.FileSize,
			Page:       page.Number,
			Verified:   verified,
		})
	}
	return records, nil
}

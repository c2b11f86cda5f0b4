package cascade

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/exam-diagrams/internal/detection"
	"github.com/ironsheep/exam-diagrams/internal/model"
)

type stubDetector struct {
	cands []detection.DiagramCandidate
	err   error
	crash bool
	calls int
}

func (s *stubDetector) Name() string { return "stub" }

func (s *stubDetector) Detect(page *detection.Page) ([]detection.DiagramCandidate, error) {
	s.calls++
	if s.crash {
		panic("boom")
	}
	return s.cands, s.err
}

type stubLocator struct {
	loc   *model.Location
	err   error
	calls int
	ctx   string
}

func (s *stubLocator) LocateDiagram(ctx context.Context, img image.Image, questionContext string) (*model.Location, error) {
	s.calls++
	s.ctx = questionContext
	return s.loc, s.err
}

type memorySink struct {
	names  []string
	bounds []image.Rectangle
	err    error
}

func (m *memorySink) Save(page int, source detection.Source, index int, img image.Image) (Saved, error) {
	if m.err != nil {
		return Saved{}, m.err
	}
	name := CropFilename(page, source, index)
	m.names = append(m.names, name)
	m.bounds = append(m.bounds, img.Bounds())
	return Saved{Filename: name, Path: "/mem/" + name, FileSize: 1}, nil
}

func whitePage(t *testing.T, number, w, h int) *detection.Page {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	return detection.NewPage(number, img)
}

func cand(t *testing.T, x, y, w, h int, conf float64, src detection.Source) detection.DiagramCandidate {
	t.Helper()
	c, err := detection.NewCandidate(detection.BBox{X: x, Y: y, Width: w, Height: h}, 0.1, conf, src)
	require.NoError(t, err)
	return c
}

func newTestCascade(t1, t2 detection.Detector, loc model.DiagramLocator, sink Sink) *Cascade {
	return &Cascade{Tier1: t1, Tier2: t2, Locator: loc, Sink: sink, Options: DefaultOptions()}
}

var graphQuestion = Question{Text: "The graph below shows y = 2x + 1."}

func TestRunBlankPageFallsThroughToHeuristic(t *testing.T) {
	page := whitePage(t, 4, 400, 600)
	sink := &memorySink{}
	c := New(detection.DefaultParams(), nil, sink, DefaultOptions())

	res, err := c.Run(context.Background(), page, graphQuestion)
	require.NoError(t, err)

	assert.Equal(t, StateTier4, res.Tier)
	assert.Equal(t, []State{StateNeedCheck, StateTier1, StateTier2, StateTier3, StateTier4, StateDone}, res.Trace)
	require.Len(t, res.Records, 1)
	r := res.Records[0]
	assert.Equal(t, detection.SourceHeuristic, r.Source)
	assert.Equal(t, 70.0, r.Confidence)
	assert.Equal(t, detection.BBox{X: 0, Y: 150, Width: 400, Height: 300}, r.BBox)
	assert.False(t, r.Verified)
	assert.Equal(t, 4, r.Page)
	assert.Equal(t, "page_4_diagram_fallback_heuristic.png", r.Filename)
	assert.Equal(t, []image.Rectangle{image.Rect(0, 0, 400, 300)}, sink.bounds)
}

func TestRunSkipsQuestionsWithoutDiagram(t *testing.T) {
	t1 := &stubDetector{}
	sink := &memorySink{}
	c := newTestCascade(t1, &stubDetector{}, nil, sink)

	res, err := c.Run(context.Background(), whitePage(t, 1, 100, 100), Question{Text: "Solve 2x + 3 = 9", Parts: []string{"Find x."}})
	require.NoError(t, err)
	assert.Equal(t, StateNeedCheck, res.Tier)
	assert.Equal(t, []State{StateNeedCheck, StateDone}, res.Trace)
	assert.Empty(t, res.Records)
	assert.Zero(t, t1.calls)
	assert.Empty(t, sink.names)
}

func TestNeedsDiagram(t *testing.T) {
	c := newTestCascade(nil, nil, nil, &memorySink{})
	box := detection.BBox{X: 1, Y: 1, Width: 5, Height: 5}
	tests := []struct {
		name string
		q    Question
		want bool
	}{
		{"keyword in stem", Question{Text: "Study the FIGURE."}, true},
		{"keyword in part", Question{Text: "Q", Parts: []string{"a", "Complete the dot diagram"}}, true},
		{"substring", Question{Text: "Triangles ABC and PQR"}, true},
		{"question type", Question{Text: "Q", QuestionType: "diagram_based"}, true},
		{"requires diagram", Question{Text: "Q", RequiresDiagram: true}, true},
		{"model box", Question{Text: "Q", DiagramBBox: &box}, true},
		{"plain algebra", Question{Text: "Expand (x+1)(x-2)"}, false},
		{"empty", Question{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.NeedsDiagram(tt.q))
		})
	}
}

func TestTier1KeepsOnlyConfidentCandidates(t *testing.T) {
	page := whitePage(t, 2, 400, 600)
	t1 := &stubDetector{cands: []detection.DiagramCandidate{
		cand(t, 100, 100, 100, 100, 90, detection.SourceContourDensity),
		cand(t, 100, 300, 100, 100, 85, detection.SourceGridIntersection),
	}}
	t2 := &stubDetector{}
	c := newTestCascade(t1, t2, nil, &memorySink{})

	res, err := c.Run(context.Background(), page, graphQuestion)
	require.NoError(t, err)
	assert.Equal(t, StateTier1, res.Tier)
	require.Len(t, res.Records, 1)
	assert.Equal(t, 90.0, res.Records[0].Confidence)
	assert.Equal(t, detection.BBox{X: 60, Y: 60, Width: 180, Height: 180}, res.Records[0].BBox)
	assert.Equal(t, detection.BBox{X: 100, Y: 100, Width: 100, Height: 100}, res.Records[0].Detected)
	assert.Equal(t, 180*180, res.Records[0].Area)
	assert.True(t, res.Records[0].Verified)
	assert.Zero(t, t2.calls, "tier two must not run when tier one produced a crop")
}

func TestTier1CapsAndNamesCrops(t *testing.T) {
	page := whitePage(t, 3, 1000, 1000)
	var cands []detection.DiagramCandidate
	for i := 0; i < 5; i++ {
		cands = append(cands, cand(t, 10+i*190, 10, 100, 100, 99-float64(i), detection.SourceContourDensity))
	}
	sink := &memorySink{}
	c := newTestCascade(&stubDetector{cands: cands}, &stubDetector{}, nil, sink)

	res, err := c.Run(context.Background(), page, graphQuestion)
	require.NoError(t, err)
	require.Len(t, res.Records, 3)
	assert.Equal(t, []string{
		"page_3_diagram_contour_density.png",
		"page_3_diagram_contour_density_2.png",
		"page_3_diagram_contour_density_3.png",
	}, sink.names)
	// Padding is clamped at the page edge.
	assert.Equal(t, detection.BBox{X: 0, Y: 0, Width: 150, Height: 150}, res.Records[0].BBox)
}

func TestTier2RunsWhenTier1IsNotConfident(t *testing.T) {
	page := whitePage(t, 1, 1000, 1000)
	t1 := &stubDetector{cands: []detection.DiagramCandidate{cand(t, 0, 0, 50, 50, 40, detection.SourceBlob)}}
	var layout []detection.DiagramCandidate
	for i := 0; i < 4; i++ {
		layout = append(layout, cand(t, 100, 100+i*200, 150, 150, 60, detection.SourceLayout))
	}
	t2 := &stubDetector{cands: layout}
	c := newTestCascade(t1, t2, nil, &memorySink{})

	res, err := c.Run(context.Background(), page, graphQuestion)
	require.NoError(t, err)
	assert.Equal(t, StateTier2, res.Tier)
	assert.Len(t, res.Records, 3)
	for _, r := range res.Records {
		assert.Equal(t, detection.SourceLayout, r.Source)
		assert.True(t, r.Verified)
	}
}

func TestDetectorFailuresMakeTierEmpty(t *testing.T) {
	page := whitePage(t, 1, 200, 200)
	c := newTestCascade(&stubDetector{crash: true}, &stubDetector{err: errors.New("broken")}, nil, &memorySink{})

	res, err := c.Run(context.Background(), page, graphQuestion)
	require.NoError(t, err)
	assert.Equal(t, StateTier4, res.Tier)
}

func TestTier3UsesEnrichmentBox(t *testing.T) {
	page := whitePage(t, 5, 400, 600)
	loc := &stubLocator{}
	c := newTestCascade(&stubDetector{}, &stubDetector{}, loc, &memorySink{})
	q := graphQuestion
	q.DiagramBBox = &detection.BBox{X: 30, Y: 100, Width: 200, Height: 100}

	res, err := c.Run(context.Background(), page, q)
	require.NoError(t, err)
	assert.Equal(t, StateTier3, res.Tier)
	require.Len(t, res.Records, 1)
	r := res.Records[0]
	assert.Equal(t, detection.SourceModelBBox, r.Source)
	assert.Equal(t, 60.0, r.Confidence)
	assert.Equal(t, detection.BBox{X: 0, Y: 50, Width: 280, Height: 200}, r.BBox)
	assert.Equal(t, "page_5_diagram_model_bbox.png", r.Filename)
	assert.Zero(t, loc.calls)
}

func TestTier3AsksLocator(t *testing.T) {
	conf := 92.0
	tests := []struct {
		name string
		loc  *model.Location
		want float64
	}{
		{"model confidence", &model.Location{BBox: &model.Box{X: 100, Y: 100, Width: 100, Height: 100}, Confidence: &conf}, 92},
		{"default confidence", &model.Location{BBox: &model.Box{X: 100, Y: 100, Width: 100, Height: 100}}, 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc := &stubLocator{loc: tt.loc}
			c := newTestCascade(&stubDetector{}, &stubDetector{}, loc, &memorySink{})
			q := Question{Text: "Sketch the graph", Parts: []string{"Label the axes."}}

			res, err := c.Run(context.Background(), whitePage(t, 1, 400, 400), q)
			require.NoError(t, err)
			assert.Equal(t, StateTier3, res.Tier)
			require.Len(t, res.Records, 1)
			assert.Equal(t, detection.SourceModelFallback, res.Records[0].Source)
			assert.Equal(t, tt.want, res.Records[0].Confidence)
			assert.Equal(t, detection.BBox{X: 50, Y: 50, Width: 200, Height: 200}, res.Records[0].BBox)
			assert.Equal(t, 1, loc.calls)
			assert.Equal(t, "Sketch the graph Label the axes.", loc.ctx)
		})
	}
}

func TestTier3FailuresFallThrough(t *testing.T) {
	for _, err := range []error{model.ErrNoDiagram, errors.New("timeout")} {
		loc := &stubLocator{err: err}
		c := newTestCascade(&stubDetector{}, &stubDetector{}, loc, &memorySink{})

		res, runErr := c.Run(context.Background(), whitePage(t, 1, 100, 100), graphQuestion)
		require.NoError(t, runErr)
		assert.Equal(t, StateTier4, res.Tier)
		assert.Equal(t, 1, loc.calls)
	}
}

func TestCandidateOutsidePageIsDropped(t *testing.T) {
	t1 := &stubDetector{cands: []detection.DiagramCandidate{cand(t, 5000, 5000, 100, 100, 95, detection.SourceGridLines)}}
	c := newTestCascade(t1, &stubDetector{}, nil, &memorySink{})

	res, err := c.Run(context.Background(), whitePage(t, 1, 200, 200), graphQuestion)
	require.NoError(t, err)
	assert.Equal(t, StateTier4, res.Tier)
}

func TestSinkErrorIsReturned(t *testing.T) {
	c := newTestCascade(&stubDetector{}, &stubDetector{}, nil, &memorySink{err: errors.New("disk full")})

	_, err := c.Run(context.Background(), whitePage(t, 1, 100, 100), graphQuestion)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "NEED_CHECK", StateNeedCheck.String())
	assert.Equal(t, "TIER3", StateTier3.String())
	assert.Equal(t, "DONE", StateDone.String())
	assert.Equal(t, "UNKNOWN", State(42).String())
}

func TestStateText(t *testing.T) {
	text, err := StateTier2.MarshalText()
	require.NoError(t, err)
	var s State
	require.NoError(t, s.UnmarshalText(text))
	assert.Equal(t, StateTier2, s)
	assert.Error(t, s.UnmarshalText([]byte("TIER9")))
}

func TestQuestionFromModel(t *testing.T) {
	q := model.Question{
		Question: "Study the diagram.",
		Parts:    []model.Part{{QuestionText: "(a) find x"}},
		Enrichment: model.Enrichment{
			QuestionType:    "diagram_based",
			RequiresDiagram: true,
			DiagramBBox:     &model.Box{X: 1.6, Y: 2, Width: 30, Height: 40},
		},
	}
	got := QuestionFromModel(q)
	assert.Equal(t, "Study the diagram.", got.Text)
	assert.Equal(t, []string{"(a) find x"}, got.Parts)
	assert.Equal(t, "diagram_based", got.QuestionType)
	assert.True(t, got.RequiresDiagram)
	require.NotNil(t, got.DiagramBBox)
	assert.Equal(t, detection.BBox{X: 2, Y: 2, Width: 30, Height: 40}, *got.DiagramBBox)
}

func TestCropFilename(t *testing.T) {
	assert.Equal(t, "page_1_diagram_grid_intersection.png", CropFilename(1, detection.SourceGridIntersection, 0))
	assert.Equal(t, "page_12_diagram_layout_analysis_2.png", CropFilename(12, detection.SourceLayout, 1))
	assert.Equal(t, "page_2_diagram_model_fallback_3.png", CropFilename(2, detection.SourceModelFallback, 2))
}

func TestDiskSinkWritesPNG(t *testing.T) {
	dir := t.TempDir()
	img := image.NewRGBA(image.Rect(0, 0, 20, 10))
	img.Set(3, 3, color.Black)

	saved, err := DiskSink{Dir: filepath.Join(dir, "out")}.Save(7, detection.SourceBlob, 0, img)
	require.NoError(t, err)
	assert.Equal(t, "page_7_diagram_blob_detection.png", saved.Filename)
	info, err := os.Stat(saved.Path)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), saved.FileSize)
	assert.Positive(t, saved.FileSize)
}

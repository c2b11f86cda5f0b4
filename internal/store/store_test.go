//go:build cgo

package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/exam-diagrams/internal/cascade"
	"github.com/ironsheep/exam-diagrams/internal/detection"
	"github.com/ironsheep/exam-diagrams/internal/model"
	"github.com/ironsheep/exam-diagrams/internal/pipeline"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleDocument() *pipeline.Document {
	grid := cascade.DiagramRecord{
		BBox:       detection.BBox{X: 60, Y: 60, Width: 180, Height: 180},
		Area:       180 * 180,
		Confidence: 95,
		Source:     detection.SourceGridLines,
		Filename:   "page_1_diagram_grid_lines.png",
		Path:       "output/page_1_diagram_grid_lines.png",
		FileSize:   2048,
		Page:       1,
		Verified:   true,
	}
	band := cascade.DiagramRecord{
		BBox:       detection.BBox{X: 0, Y: 150, Width: 400, Height: 300},
		Area:       400 * 300,
		Confidence: 70,
		Source:     detection.SourceHeuristic,
		Filename:   "page_2_diagram_fallback_heuristic.png",
		Path:       "output/page_2_diagram_fallback_heuristic.png",
		Page:       2,
	}
	return &pipeline.Document{
		Info: pipeline.DocumentInfo{Filename: "paper.pdf", TotalPages: 2, APICallsUsed: 2, TotalQuestions: 3},
		Questions: []pipeline.EnrichedQuestion{
			{PageNumber: 1, QuestionNum: "1", QuestionText: "Plot the points.", Topic: "Coordinates",
				Marks: 3, DiagramTier: cascade.StateTier1, Status: pipeline.StatusDraft,
				Diagrams: []cascade.DiagramRecord{grid}},
			{PageNumber: 1, QuestionNum: "2", QuestionText: "Solve 2x = 4.", Status: pipeline.StatusDraft,
				Diagrams: []cascade.DiagramRecord{}},
			{PageNumber: 2, QuestionNum: "3", QuestionText: "Study the figure.", DiagramTier: cascade.StateTier4,
				Status: pipeline.StatusDraft, Diagrams: []cascade.DiagramRecord{band}},
		},
	}
}

func TestNewCreatesParentDir(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "sub", "dir", "test.db"))
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}

func TestSaveDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.SaveDocument(ctx, "/exams/paper.pdf", sampleDocument())
	require.NoError(t, err)
	assert.NotZero(t, id)

	doc, err := s.GetDocumentByPath(ctx, "/exams/paper.pdf")
	require.NoError(t, err)
	assert.Equal(t, id, doc.ID)
	assert.Equal(t, "paper.pdf", doc.Filename)
	assert.Equal(t, 2, doc.TotalPages)
	assert.Equal(t, 3, doc.TotalQuestions)

	questions, err := s.Questions(ctx, id)
	require.NoError(t, err)
	require.Len(t, questions, 3)
	assert.Equal(t, model.Label("1"), questions[0].QuestionNum)
	assert.Equal(t, "Coordinates", questions[0].Topic)
	assert.Equal(t, cascade.StateTier1, questions[0].DiagramTier)
	require.Len(t, questions[0].Diagrams, 1)
	assert.Equal(t, detection.SourceGridLines, questions[0].Diagrams[0].Source)

	diagrams, err := s.Diagrams(ctx, id)
	require.NoError(t, err)
	require.Len(t, diagrams, 2)
	assert.Equal(t, "1", diagrams[0].QuestionNum)
	assert.Equal(t, 60, diagrams[0].X)
	assert.Equal(t, 180, diagrams[0].Width)
	assert.Equal(t, int64(2048), diagrams[0].FileSize)
	assert.True(t, diagrams[0].Verified)
	assert.Equal(t, "fallback_heuristic", diagrams[1].Source)
	assert.False(t, diagrams[1].Verified)

	counts, err := s.SourceCounts(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"grid_lines": 1, "fallback_heuristic": 1}, counts)
}

func TestSaveDocumentReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.SaveDocument(ctx, "paper.pdf", sampleDocument())
	require.NoError(t, err)

	doc := sampleDocument()
	doc.Questions = doc.Questions[:1]
	doc.Info.TotalQuestions = 1
	second, err := s.SaveDocument(ctx, "paper.pdf", doc)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	questions, err := s.Questions(ctx, second)
	require.NoError(t, err)
	assert.Len(t, questions, 1)

	diagrams, err := s.Diagrams(ctx, second)
	require.NoError(t, err)
	assert.Len(t, diagrams, 1)

	docs, err := s.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, 1, docs[0].TotalQuestions)
}

func TestDeleteDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.SaveDocument(ctx, "paper.pdf", sampleDocument())
	require.NoError(t, err)
	require.NoError(t, s.DeleteDocument(ctx, id))

	_, err = s.GetDocumentByPath(ctx, "paper.pdf")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	var n int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM diagrams").Scan(&n))
	assert.Zero(t, n)
}

func TestListDocumentsEmpty(t *testing.T) {
	s := newTestStore(t)
	docs, err := s.ListDocuments(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs)
}

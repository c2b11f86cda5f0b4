package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ironsheep/exam-diagrams/internal/cascade"
	"github.com/ironsheep/exam-diagrams/internal/detection"
	"github.com/ironsheep/exam-diagrams/internal/model"
	"github.com/ironsheep/exam-diagrams/internal/pipeline"
)

func sampleDocument() *pipeline.Document {
	return &pipeline.Document{
		Info: pipeline.DocumentInfo{Filename: "paper.pdf", TotalPages: 1, APICallsUsed: 1, TotalQuestions: 3, ProcessingComplete: true},
		Questions: []pipeline.EnrichedQuestion{
			{
				PageNumber: 1, QuestionNum: "1", QuestionText: "Plot the points <A> & <B>.",
				Parts:    []model.Part{{Part: "a", QuestionText: "Label the axes.", Marks: 1}},
				Topic:    "Coordinates", Difficulty: "Easy", Marks: 1, Status: pipeline.StatusDraft,
				Keywords: []string{"axes", "points"}, DiagramTier: cascade.StateTier1,
				Diagrams: []cascade.DiagramRecord{{
					BBox:     detection.BBox{X: 10, Y: 20, Width: 300, Height: 200},
					Area:     60000,
					Source:   detection.SourceGridLines,
					Filename: "page_1_diagram_grid_lines.png",
					Page:     1,
				}},
			},
			{PageNumber: 1, QuestionNum: "2", QuestionText: "Solve.", Topic: "Algebra", Difficulty: "hard", Status: pipeline.StatusDraft},
			{PageNumber: 1, QuestionNum: "3", QuestionText: "Expand.", Topic: "Algebra", Status: pipeline.StatusDraft},
		},
	}
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "enriched", "enriched_questions.json")
	require.NoError(t, WriteJSON(path, sampleDocument()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<A> & <B>")
	assert.Contains(t, string(data), `"diagram_tier": "TIER1"`)

	var doc pipeline.Document
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, 3, doc.Info.TotalQuestions)
	assert.Equal(t, cascade.StateTier1, doc.Questions[0].DiagramTier)
	assert.Equal(t, "page_1_diagram_grid_lines.png", doc.Questions[0].Diagrams[0].Filename)
}

func TestTopics(t *testing.T) {
	questions := sampleDocument().Questions
	questions = append(questions, pipeline.EnrichedQuestion{Difficulty: "weird"})

	assert.Equal(t, []TopicCount{
		{Topic: "Algebra", Medium: 1, Hard: 1, Total: 2},
		{Topic: "Coordinates", Easy: 1, Total: 1},
		{Topic: "Unknown", Medium: 1, Total: 1},
	}, Topics(questions))
	assert.Empty(t, Topics(nil))
}

func TestWriteWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "review.xlsx")
	require.NoError(t, WriteWorkbook(path, sampleDocument()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{SheetQuestions, SheetDiagrams, SheetTopics}, f.GetSheetList())

	rows, err := f.GetRows(SheetQuestions)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Question", rows[0][1])
	assert.Equal(t, "1", rows[1][1])
	assert.Equal(t, "a Label the axes.", rows[1][3])
	assert.Equal(t, "axes, points", rows[1][12])
	assert.Equal(t, "TIER1", rows[1][14])

	rows, err = f.GetRows(SheetDiagrams)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "grid_lines", rows[1][3])
	assert.Equal(t, "300", rows[1][7])

	rows, err = f.GetRows(SheetTopics)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Algebra", "0", "1", "1", "2"}, rows[1])
}

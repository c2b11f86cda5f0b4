// Package export writes a processed document as JSON for the learning
// platform and as a spreadsheet for reviewers.
package export

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/ironsheep/exam-diagrams/internal/pipeline"
)

// Sheet names of the workbook.
const (
	SheetQuestions = "Questions"
	SheetDiagrams  = "Diagrams"
	SheetTopics    = "Topics"
)

// WriteJSON writes doc to path as indented JSON, creating the directory.
func WriteJSON(path string, doc *pipeline.Document) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create export dir")
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return errors.Wrap(err, "encode document")
	}
	return errors.Wrap(os.WriteFile(path, buf.Bytes(), 0o644), "write document")
}

// TopicCount tallies questions of one topic by difficulty.
type TopicCount struct {
	Topic  string
	Easy   int
	Medium int
	Hard   int
	Total  int
}

// Topics groups questions by topic, sorted by name. Missing topics count as
// "Unknown" and unknown difficulties as medium.
func Topics(questions []pipeline.EnrichedQuestion) []TopicCount {
	byTopic := map[string]*TopicCount{}
	for _, q := range questions {
		topic := q.Topic
		if topic == "" {
			topic = "Unknown"
		}
		tc, ok := byTopic[topic]
		if !ok {
			tc = &TopicCount{Topic: topic}
			byTopic[topic] = tc
		}
		switch strings.ToLower(q.Difficulty) {
		case "easy":
			tc.Easy++
		case "hard":
			tc.Hard++
		default:
			tc.Medium++
		}
		tc.Total++
	}
	out := make([]TopicCount, 0, len(byTopic))
	for _, tc := range byTopic {
		out = append(out, *tc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out
}

var (
	questionHeader = []interface{}{"Page", "Question", "Text", "Parts", "Topic", "Chapter", "Subject",
		"School level", "Difficulty", "Type", "Marks", "Minutes", "Keywords", "Diagrams", "Diagram tier", "Status"}
	diagramHeader = []interface{}{"Page", "Question", "File", "Source", "Confidence", "X", "Y",
		"Width", "Height", "Area", "Density", "Verified"}
	topicHeader = []interface{}{"Topic", "Easy", "Medium", "Hard", "Total"}
)

// WriteWorkbook writes a review workbook with one sheet of questions, one of
// diagram crops and one of per-topic counts.
func WriteWorkbook(path string, doc *pipeline.Document) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetQuestions); err != nil {
		return errors.Wrap(err, "rename sheet")
	}
	for _, name := range []string{SheetDiagrams, SheetTopics} {
		if _, err := f.NewSheet(name); err != nil {
			return errors.Wrapf(err, "add sheet %s", name)
		}
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return errors.Wrap(err, "create style")
	}

	questions := [][]interface{}{questionHeader}
	var diagrams [][]interface{}
	diagrams = append(diagrams, diagramHeader)
	for _, q := range doc.Questions {
		parts := make([]string, 0, len(q.Parts))
		for _, p := range q.Parts {
			parts = append(parts, strings.TrimSpace(p.Part+" "+p.QuestionText))
		}
		questions = append(questions, []interface{}{
			q.PageNumber, string(q.QuestionNum), q.QuestionText, strings.Join(parts, "\n"),
			q.Topic, q.Chapter, q.Subject, q.SchoolLevel, q.Difficulty, q.QuestionType,
			q.Marks, q.TimeEstimateMinutes, strings.Join(q.Keywords, ", "), len(q.Diagrams),
			q.DiagramTier.String(), q.Status,
		})
		for _, d := range q.Diagrams {
			diagrams = append(diagrams, []interface{}{
				d.Page, string(q.QuestionNum), d.Filename, string(d.Source), d.Confidence,
				d.BBox.X, d.BBox.Y, d.BBox.Width, d.BBox.Height, d.Area, d.Density, d.Verified,
			})
		}
	}
	topics := [][]interface{}{topicHeader}
	for _, tc := range Topics(doc.Questions) {
		topics = append(topics, []interface{}{tc.Topic, tc.Easy, tc.Medium, tc.Hard, tc.Total})
	}

	for sheet, rows := range map[string][][]interface{}{
		SheetQuestions: questions,
		SheetDiagrams:  diagrams,
		SheetTopics:    topics,
	} {
		if err := writeRows(f, sheet, rows, bold); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create export dir")
	}
	return errors.Wrap(f.SaveAs(path), "save workbook")
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}, headerStyle int) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return errors.Wrapf(err, "write %s row %d", sheet, i+1)
		}
	}
	last, err := excelize.CoordinatesToCellName(len(rows[0]), 1)
	if err != nil {
		return err
	}
	return errors.Wrapf(f.SetCellStyle(sheet, "A1", last, headerStyle), "style %s header", sheet)
}

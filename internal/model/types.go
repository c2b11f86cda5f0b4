package model

import (
	"bytes"
	"encoding/json"
	"image"
	"math"
	"strconv"

	"github.com/ironsheep/exam-diagrams/internal/detection"
)

// PageImage is one rendered page submitted to the model.
type PageImage struct {
	Number int
	Image  image.Image
}

// PageResult is the model's reading of one page.
type PageResult struct {
	PageNumber int    `json:"page_number"`
	Text       string `json:"text"`
	Quiz       Quiz   `json:"quiz"`
}

// Quiz holds the questions found on a page.
type Quiz struct {
	Questions []Question `json:"questions"`
}

// Question is one numbered exam question with its parts.
type Question struct {
	Number       Label      `json:"number"`
	Question     string     `json:"question"`
	Parts        []Part     `json:"parts"`
	QuestionType string     `json:"question_type,omitempty"`
	Enrichment   Enrichment `json:"enrichment"`
}

// Empty reports whether the question has neither a stem nor parts.
func (q Question) Empty() bool {
	return q.Question == "" && len(q.Parts) == 0
}

// TotalMarks sums the marks of every part.
func (q Question) TotalMarks() float64 {
	var total float64
	for _, p := range q.Parts {
		total += p.Marks
	}
	return total
}

// PartTexts returns the text of every part of q.
func (q Question) PartTexts() []string {
	out := make([]string, len(q.Parts))
	for i, p := range q.Parts {
		out[i] = p.QuestionText
	}
	return out
}

// Type returns the question type, preferring the question's own field over
// the enrichment's.
func (q Question) Type() string {
	if q.QuestionType != "" {
		return q.QuestionType
	}
	return q.Enrichment.QuestionType
}

// Part is a lettered sub-question.
type Part struct {
	Part             string   `json:"part"`
	QuestionText     string   `json:"question_text"`
	Marks            float64  `json:"marks"`
	Options          []Option `json:"options,omitempty"`
	CorrectOption    string   `json:"correct_option,omitempty"`
	SampleAnswer     string   `json:"sample_answer,omitempty"`
	Explanation      string   `json:"explanation,omitempty"`
	StepByStepAnswer string   `json:"step_by_step_answer,omitempty"`
	Hints            []string `json:"hints,omitempty"`
}

// Option is one multiple-choice option.
type Option struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// Enrichment is the metadata the model attaches to a question.
type Enrichment struct {
	Topic               string   `json:"topic,omitempty"`
	Chapter             string   `json:"chapter,omitempty"`
	Subject             string   `json:"subject,omitempty"`
	SchoolLevel         string   `json:"school_level,omitempty"`
	Level               string   `json:"level,omitempty"`
	QuestionLevel       string   `json:"question_level,omitempty"`
	Difficulty          string   `json:"difficulty,omitempty"`
	QuestionType        string   `json:"question_type,omitempty"`
	TimeEstimateMinutes float64  `json:"time_estimate_minutes,omitempty"`
	LearningOutcomes    []string `json:"learning_outcomes,omitempty"`
	Keywords            []string `json:"keywords,omitempty"`
	PrerequisiteTopics  []string `json:"prerequisite_topics,omitempty"`
	CommonMistakes      []string `json:"common_mistakes,omitempty"`
	RequiresDiagram     bool     `json:"requires_diagram,omitempty"`
	DiagramBBox         *Box     `json:"diagram_bbox,omitempty"`
	DiagramDescription  string   `json:"diagram_description,omitempty"`
}

// Location is the model's answer to a diagram location request. BBox is nil
// when the model found nothing.
type Location struct {
	BBox *Box   `json:"bbox"`
	Type string `json:"type"`
	// Confidence is nil when the model omitted it.
	Confidence *float64 `json:"confidence"`
}

// Box is a bounding box as the model reports it, in pixels of the image it
// was shown. Coordinates may be fractional.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// BBox rounds the box to whole pixels.
func (b Box) BBox() detection.BBox {
	return detection.BBox{
		X:      int(math.Round(b.X)),
		Y:      int(math.Round(b.Y)),
		Width:  int(math.Round(b.Width)),
		Height: int(math.Round(b.Height)),
	}
}

func (b Box) scale(f float64) Box {
	return Box{X: b.X * f, Y: b.Y * f, Width: b.Width * f, Height: b.Height * f}
}

// Label is a question number. The model emits it either as a string or as a
// bare number.
type Label string

func (l *Label) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = Label(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		*l = Label(strconv.FormatInt(i, 10))
		return nil
	}
	*l = Label(n.String())
	return nil
}

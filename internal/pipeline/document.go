package pipeline

import (
	"github.com/ironsheep/exam-diagrams/internal/cascade"
	"github.com/ironsheep/exam-diagrams/internal/model"
)

// DefaultSchoolLevel is used when the model names no level.
const DefaultSchoolLevel = "Secondary 2"

// StatusDraft marks questions awaiting review.
const StatusDraft = "draft"

// Document is the result of processing one PDF.
type Document struct {
	Info      DocumentInfo       `json:"document_info"`
	Pages     []PageSummary      `json:"pages"`
	Questions []EnrichedQuestion `json:"enriched_questions"`
}

// DocumentInfo summarizes a run.
type DocumentInfo struct {
	Filename           string `json:"filename"`
	TotalPages         int    `json:"total_pages"`
	APICallsUsed       int    `json:"api_calls_used"`
	TotalQuestions     int    `json:"total_questions"`
	ProcessingComplete bool   `json:"processing_complete"`
}

// TextSource says where the text of a page came from.
type TextSource string

const (
	TextFromLayer TextSource = "text_layer"
	TextFromModel TextSource = "model"
	TextFromOCR   TextSource = "ocr"
	TextNone      TextSource = "none"
)

// PageSummary describes one processed page.
type PageSummary struct {
	PageNumber    int        `json:"page_number"`
	Snapshot      string     `json:"snapshot"`
	Text          string     `json:"text"`
	TextSource    TextSource `json:"text_source"`
	QuestionCount int        `json:"question_count"`
	// Overlay is the debug image path, when overlays are enabled.
	Overlay string `json:"overlay,omitempty"`
}

// EnrichedQuestion is one question ready for review, with its diagram crops
// and the model's metadata.
type EnrichedQuestion struct {
	PageNumber   int                     `json:"page_number"`
	QuestionNum  model.Label             `json:"question_num"`
	QuestionText string                  `json:"question_text"`
	Parts        []model.Part            `json:"parts"`
	Diagrams     []cascade.DiagramRecord `json:"diagrams"`
	DiagramTier  cascade.State           `json:"diagram_tier"`

	Topic               string   `json:"topic"`
	Chapter             string   `json:"chapter"`
	Subject             string   `json:"subject"`
	SchoolLevel         string   `json:"school_level"`
	QuestionLevel       string   `json:"question_level"`
	Difficulty          string   `json:"difficulty"`
	QuestionType        string   `json:"question_type"`
	TimeEstimateMinutes float64  `json:"time_estimate_minutes"`
	LearningOutcomes    []string `json:"learning_outcomes"`
	Keywords            []string `json:"keywords"`
	PrerequisiteTopics  []string `json:"prerequisite_topics"`
	CommonMistakes      []string `json:"common_mistakes"`
	DiagramDescription  string   `json:"diagram_description,omitempty"`

	Marks      float64 `json:"marks"`
	Status     string  `json:"status"`
	IsVerified bool    `json:"is_verified"`
}

// Enrich combines a model question with its cascade result.
func Enrich(page int, q model.Question, res *cascade.Result) EnrichedQuestion {
	e := q.Enrichment
	level := e.SchoolLevel
	if level == "" {
		level = e.Level
	}
	if level == "" {
		level = DefaultSchoolLevel
	}
	out := EnrichedQuestion{
		PageNumber:          page,
		QuestionNum:         q.Number,
		QuestionText:        q.Question,
		Parts:               nonNil(q.Parts),
		Diagrams:            []cascade.DiagramRecord{},
		DiagramTier:         cascade.StateNeedCheck,
		Topic:               e.Topic,
		Chapter:             e.Chapter,
		Subject:             e.Subject,
		SchoolLevel:         level,
		QuestionLevel:       e.QuestionLevel,
		Difficulty:          e.Difficulty,
		QuestionType:        q.Type(),
		TimeEstimateMinutes: e.TimeEstimateMinutes,
		LearningOutcomes:    nonNil(e.LearningOutcomes),
		Keywords:            nonNil(e.Keywords),
		PrerequisiteTopics:  nonNil(e.PrerequisiteTopics),
		CommonMistakes:      nonNil(e.CommonMistakes),
		DiagramDescription:  e.DiagramDescription,
		Marks:               q.TotalMarks(),
		Status:              StatusDraft,
	}
	if res != nil {
		out.DiagramTier = res.Tier
		if res.Records != nil {
			out.Diagrams = res.Records
		}
	}
	return out
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

package model

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const quizSchema = `{
  "page_number": 1,
  "text": "full text of the page",
  "quiz": {
    "questions": [
      {
        "number": "1",
        "question": "main question stem or null",
        "parts": [
          {"part": "(a)", "question_text": "sub-question text", "marks": 1}
        ]
      }
    ]
  }
}`

const textQuizPrompt = `Extract all text and every exam question from this page.
Keep all parts of a question under one question object. Preserve mathematical notation.

Return only JSON with this structure:
` + quizSchema

const enrichedBatchPrompt = `Extract all text and every exam question from these exam pages, one entry per image in the order given.
Keep all parts of a question under one question object. Preserve mathematical notation.

For every question add an "enrichment" object with: topic, chapter, subject, school_level,
question_level, difficulty (easy, medium or hard), question_type (use "diagram_based" when the
question depends on a figure), time_estimate_minutes, learning_outcomes, keywords,
prerequisite_topics, common_mistakes.

When a question refers to a diagram, graph, chart, table or other figure, set
"requires_diagram": true, give its pixel bounding box in the page image as
"diagram_bbox": {"x": left, "y": top, "width": w, "height": h}, and describe it in
"diagram_description". Give separate boxes when a page has several figures.

Return only JSON of the form {"pages": [ ... ]} where every page has this structure:
` + quizSchema

const locatePromptFormat = `This page contains a diagram for the following question:
%q

Return only a JSON object with the bounding box of the diagram, chart, graph or table that
belongs to this question and a confidence score from 0 to 100:
{"bbox": {"x": left, "y": top, "width": w, "height": h}, "type": "diagram type", "confidence": 80}

If there is no relevant diagram, return {"bbox": null, "type": "none", "confidence": 0}.`

func locatePrompt(questionContext string) string {
	return fmt.Sprintf(locatePromptFormat, questionContext)
}

// QuestionContext summarizes a question for a locate request: the first 200
// characters of the stem followed by the first 100 characters of up to two
// parts, the parts summary itself capped at 200 characters.
func QuestionContext(stem string, parts []string) string {
	var head []string
	for i, p := range parts {
		if i == 2 {
			break
		}
		head = append(head, truncate(p, 100))
	}
	summary := truncate(strings.Join(head, " "), 200)
	return strings.TrimSpace(truncate(stem, 200) + " " + summary)
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

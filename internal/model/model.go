// Package model talks to the multimodal model that reads exam pages.
//
// The pipeline depends only on the three narrow interfaces below; Client
// implements all of them against an OpenAI-compatible chat completions
// endpoint (Gemini by default). Any failure is reported as an error and the
// caller degrades to "no result".
package model

import (
	"context"
	"image"

	"github.com/pkg/errors"
)

var (
	// ErrNoDiagram is returned by LocateDiagram when the model reports no
	// relevant diagram on the page.
	ErrNoDiagram = errors.New("model found no diagram")

	// ErrMalformedResponse is returned when the model's reply cannot be
	// decoded even after repair.
	ErrMalformedResponse = errors.New("malformed model response")
)

// TextQuizExtractor reads the text and questions of a single page.
type TextQuizExtractor interface {
	ExtractTextAndQuiz(ctx context.Context, img image.Image) (*PageResult, error)
}

// BatchEnricher reads several pages in one request and attaches enrichment
// metadata to every question. Results are keyed by the input page numbers.
type BatchEnricher interface {
	ExtractEnrichedBatch(ctx context.Context, pages []PageImage) (map[int]*PageResult, error)
}

// DiagramLocator asks the model where the diagram for a question is. The
// returned box is in the pixel coordinates of img.
type DiagramLocator interface {
	LocateDiagram(ctx context.Context, img image.Image, questionContext string) (*Location, error)
}

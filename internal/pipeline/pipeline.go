// Package pipeline turns an exam PDF into enriched questions with diagram
// crops.
//
// Pages are rendered and processed in order. Each page is read by the model
// once; page text comes from the PDF text layer when it has enough
// characters, otherwise from the model, otherwise from local OCR. Every
// question that refers to a figure goes through the diagram cascade.
// Batches of pages are separated by a fixed delay to stay under the model's
// rate limit.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/ironsheep/exam-diagrams/internal/cascade"
	"github.com/ironsheep/exam-diagrams/internal/detection"
	"github.com/ironsheep/exam-diagrams/internal/imaging"
	"github.com/ironsheep/exam-diagrams/internal/model"
	"github.com/ironsheep/exam-diagrams/internal/pdf"
)

// Config controls a run.
type Config struct {
	OutputDir string `yaml:"output_dir" json:"output_dir"`
	DPI       int    `yaml:"dpi" json:"dpi"`
	// BatchSize is the number of pages between rate-limit pauses.
	BatchSize  int           `yaml:"batch_size" json:"batch_size"`
	BatchDelay time.Duration `yaml:"batch_delay" json:"batch_delay"`
	// MinTextChars is the text layer length below which the page text is
	// taken from the model or OCR instead.
	MinTextChars int `yaml:"min_text_chars" json:"min_text_chars"`
	// DebugOverlays writes page_{n}_debug.png with every crop outlined.
	DebugOverlays bool `yaml:"debug_overlays" json:"debug_overlays"`
}

// DefaultConfig returns the defaults: 300 DPI, batches of 5 pages, 7.5 s
// between batches (8 requests a minute).
func DefaultConfig() Config {
	return Config{
		OutputDir:    "output",
		DPI:          pdf.DefaultDPI,
		BatchSize:    5,
		BatchDelay:   7500 * time.Millisecond,
		MinTextChars: 100,
	}
}

// PageReader reads text from a page image locally.
type PageReader interface {
	PageText(img image.Image) (string, error)
}

// Pipeline processes PDFs. Enricher and Cascade are required; Reader and OCR
// are optional fallbacks.
type Pipeline struct {
	Config   Config
	Enricher model.BatchEnricher
	// Reader is asked for text and questions when the enriched call fails.
	Reader  model.TextQuizExtractor
	OCR     PageReader
	Cascade *cascade.Cascade

	// OpenRasterizer and OpenTextLayer default to MuPDF and the PDF text
	// reader.
	OpenRasterizer func(path string, dpi int) (pdf.Rasterizer, error)
	OpenTextLayer  func(path string) (*pdf.TextLayer, error)
	// Sleep waits between batches.
	Sleep func(ctx context.Context, d time.Duration) error
}

// New returns a pipeline with the default PDF backends.
func New(cfg Config, enricher model.BatchEnricher, c *cascade.Cascade) *Pipeline {
	return &Pipeline{
		Config:   cfg,
		Enricher: enricher,
		Cascade:  c,
	}
}

func openFitz(path string, dpi int) (pdf.Rasterizer, error) {
	return pdf.OpenFitz(path, dpi)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type run struct {
	p        *Pipeline
	doc      *Document
	layer    *pdf.TextLayer
	apiCalls int
}

// Process runs the pipeline over the PDF at path. Errors opening or rendering
// the document are returned; model, OCR and detector failures are logged and
// degrade the affected page.
func (p *Pipeline) Process(ctx context.Context, path string) (*Document, error) {
	if p.Enricher == nil || p.Cascade == nil {
		return nil, errors.New("pipeline needs an enricher and a cascade")
	}
	cfg := p.Config
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	open := p.OpenRasterizer
	if open == nil {
		open = openFitz
	}
	openText := p.OpenTextLayer
	if openText == nil {
		openText = pdf.OpenTextLayer
	}
	wait := p.Sleep
	if wait == nil {
		wait = sleep
	}

	raster, err := open(path, cfg.DPI)
	if err != nil {
		return nil, errors.Wrap(err, "open pdf")
	}
	defer raster.Close()
	total := raster.PageCount()
	if total == 0 {
		return nil, errors.Wrap(pdf.ErrNoPages, path)
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create output dir")
	}

	layer, err := openText(path)
	if err != nil {
		slog.Warn("no text layer", "path", path, "error", err)
	} else {
		slog.Debug("text layer", "path", path, "layer", layer.String())
	}

	r := &run{
		p:     p,
		layer: layer,
		doc: &Document{
			Info:      DocumentInfo{Filename: filepath.Base(path), TotalPages: total},
			Pages:     []PageSummary{},
			Questions: []EnrichedQuestion{},
		},
	}
	slog.Info("processing pdf", "path", path, "pages", total, "batch_size", cfg.BatchSize)

	for start := 1; start <= total; start += cfg.BatchSize {
		if start > 1 {
			slog.Debug("rate limit pause", "delay", cfg.BatchDelay)
			if err := wait(ctx, cfg.BatchDelay); err != nil {
				return nil, err
			}
		}
		end := min(start+cfg.BatchSize-1, total)
		for n := start; n <= end; n++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			img, err := raster.RenderPage(n)
			if err != nil {
				return nil, errors.Wrapf(err, "page %d", n)
			}
			if err := r.page(ctx, cfg, n, img); err != nil {
				return nil, err
			}
		}
	}

	r.doc.Info.APICallsUsed = r.apiCalls
	r.doc.Info.TotalQuestions = len(r.doc.Questions)
	r.doc.Info.ProcessingComplete = true
	slog.Info("pdf processed", "path", path, "pages", total,
		"api_calls", r.apiCalls, "questions", len(r.doc.Questions))
	return r.doc, nil
}

func (r *run) page(ctx context.Context, cfg Config, n int, img image.Image) error {
	snapshot := filepath.Join(cfg.OutputDir, fmt.Sprintf("page_%d.png", n))
	if _, err := imaging.SavePNG(img, snapshot); err != nil {
		return errors.Wrapf(err, "save page %d", n)
	}

	result := r.read(ctx, n, img)
	text, source := r.pageText(n, img, result, cfg.MinTextChars)
	summary := PageSummary{PageNumber: n, Snapshot: snapshot, Text: text, TextSource: source}

	page := detection.NewPage(n, img)
	var overlay []imaging.OverlayBox
	if result != nil {
		for _, q := range result.Quiz.Questions {
			if q.Empty() {
				slog.Warn("skipping empty question", "page", n, "number", q.Number)
				continue
			}
			res, err := r.p.Cascade.Run(ctx, page, cascade.QuestionFromModel(q))
			if err != nil {
				return err
			}
			eq := Enrich(n, q, res)
			r.doc.Questions = append(r.doc.Questions, eq)
			summary.QuestionCount++
			for _, d := range eq.Diagrams {
				overlay = append(overlay, imaging.OverlayBox{
					Rect:  d.BBox.Rect(),
					Label: fmt.Sprintf("Q%s %s %.0f", eq.QuestionNum, d.Source, d.Confidence),
					Group: string(d.Source),
				})
			}
			slog.Info("question processed", "page", n, "number", q.Number,
				"topic", eq.Topic, "difficulty", eq.Difficulty, "diagrams", len(eq.Diagrams))
		}
	} else {
		slog.Warn("no questions for page", "page", n)
	}

	if cfg.DebugOverlays {
		path := filepath.Join(cfg.OutputDir, fmt.Sprintf("page_%d_debug.png", n))
		dbg := imaging.DrawOverlay(img, overlay, imaging.OverlayOptions{})
		if _, err := imaging.SavePNG(dbg, path); err != nil {
			slog.Warn("debug overlay failed", "page", n, "error", err)
		} else {
			summary.Overlay = path
		}
	}
	r.doc.Pages = append(r.doc.Pages, summary)
	return nil
}

// read asks the model for the enriched reading of one page, falling back to
// the plain reader. It returns nil when neither produced a result.
func (r *run) read(ctx context.Context, n int, img image.Image) *model.PageResult {
	r.apiCalls++
	results, err := r.p.Enricher.ExtractEnrichedBatch(ctx, []model.PageImage{{Number: n, Image: img}})
	if err == nil {
		if res, ok := results[n]; ok && res != nil {
			res.PageNumber = n
			return res
		}
		slog.Warn("model returned no data for page", "page", n)
	} else {
		slog.Warn("enriched extraction failed", "page", n, "error", err)
	}

	if r.p.Reader == nil {
		return nil
	}
	r.apiCalls++
	res, err := r.p.Reader.ExtractTextAndQuiz(ctx, img)
	if err != nil {
		slog.Warn("text extraction failed", "page", n, "error", err)
		return nil
	}
	res.PageNumber = n
	return res
}

// pageText picks the page text: the text layer when it is long enough, the
// model's text when longer, OCR when the model gave nothing.
func (r *run) pageText(n int, img image.Image, res *model.PageResult, minChars int) (string, TextSource) {
	text := r.layer.PageText(n)
	if utf8.RuneCountInString(text) >= minChars {
		return text, TextFromLayer
	}
	if res != nil && res.Text != "" {
		if utf8.RuneCountInString(res.Text) > utf8.RuneCountInString(text) {
			return res.Text, TextFromModel
		}
		return text, TextFromLayer
	}
	if r.p.OCR != nil {
		ocrText, err := r.p.OCR.PageText(img)
		if err != nil {
			slog.Warn("ocr failed", "page", n, "error", err)
		} else if ocrText != "" && utf8.RuneCountInString(ocrText) > utf8.RuneCountInString(text) {
			return ocrText, TextFromOCR
		}
	}
	if text != "" {
		return text, TextFromLayer
	}
	return "", TextNone
}

package ocr

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

// DefaultContrast is the contrast increase, in percent, applied before
// recognition.
const DefaultContrast = 50

// Word is one recognized word with its box in page pixels.
type Word struct {
	Text string `json:"text"`
	// Confidence is Tesseract's word confidence scaled to 0..1.
	Confidence float64         `json:"confidence"`
	Bounds     image.Rectangle `json:"bounds"`
}

// Result is the text recognized on an image.
type Result struct {
	Text  string `json:"text"`
	Words []Word `json:"words"`
}

// Tesseract recognizes page text.
type Tesseract struct {
	Language string
	Contrast float64
}

// New returns a recognizer for language ("eng" when empty).
func New(language string) *Tesseract {
	if language == "" {
		language = "eng"
	}
	return &Tesseract{Language: language, Contrast: DefaultContrast}
}

// Prepare converts img to grayscale and raises its contrast by contrast
// percent.
func Prepare(img image.Image, contrast float64) *image.NRGBA {
	return imaging.AdjustContrast(imaging.Grayscale(img), contrast)
}

// PageText returns the trimmed text of img.
func (t *Tesseract) PageText(img image.Image) (string, error) {
	res, err := t.recognize(img, false)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// Read returns the text of img with word boxes. When word boxes cannot be
// produced the text is still returned with no words.
func (t *Tesseract) Read(img image.Image) (*Result, error) {
	return t.recognize(img, true)
}

func (t *Tesseract) recognize(img image.Image, words bool) (*Result, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, Prepare(img, t.Contrast), imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.Language); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("tesseract OCR failed: %w", err)
	}
	res := &Result{Text: strings.TrimSpace(text), Words: []Word{}}
	if !words {
		return res, nil
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return res, nil
	}
	origin := img.Bounds().Min
	for _, box := range boxes {
		if strings.TrimSpace(box.Word) == "" {
			continue
		}
		res.Words = append(res.Words, Word{
			Text:       box.Word,
			Confidence: float64(box.Confidence) / 100.0,
			Bounds:     box.Box.Add(origin),
		})
	}
	return res, nil
}

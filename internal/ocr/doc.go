// Package ocr reads page text locally with Tesseract (gosseract/v2).
//
// It is the last resort for page text: the pipeline uses it only when the PDF
// has no usable text layer and the model could not read the page either.
//
// # Preprocessing
//
// Pages are converted to grayscale and their contrast is raised by 50%
// before recognition. Tesseract runs in single-block mode (PSM 6), which
// suits exam pages better than automatic segmentation.
//
// # Prerequisites
//
// Tesseract and the language data must be installed:
//   - Ubuntu/Debian: apt-get install tesseract-ocr tesseract-ocr-eng
//   - macOS: brew install tesseract
package ocr

package cascade

import (
	"fmt"
	"image"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/ironsheep/exam-diagrams/internal/detection"
	"github.com/ironsheep/exam-diagrams/internal/imaging"
)

// Saved describes a persisted crop.
type Saved struct {
	Filename string
	Path     string
	FileSize int64
}

// Sink persists diagram crops.
type Sink interface {
	Save(page int, source detection.Source, index int, img image.Image) (Saved, error)
}

// CropFilename names the index-th crop (0-based) of source on page. The first
// crop carries no suffix, later ones _2, _3 and so on.
func CropFilename(page int, source detection.Source, index int) string {
	suffix := ""
	if index > 0 {
		suffix = fmt.Sprintf("_%d", index+1)
	}
	return fmt.Sprintf("page_%d_diagram_%s%s.png", page, source, suffix)
}

// DiskSink writes crops as PNG files into Dir. A crop with the same name from
// an earlier question on the same page is overwritten.
type DiskSink struct {
	Dir string
}

func (s DiskSink) Save(page int, source detection.Source, index int, img image.Image) (Saved, error) {
	name := CropFilename(page, source, index)
	path := filepath.Join(s.Dir, name)
	size, err := imaging.SavePNG(img, path)
	if err != nil {
		return Saved{}, errors.Wrapf(err, "save crop %s", name)
	}
	return Saved{Filename: name, Path: path, FileSize: size}, nil
}

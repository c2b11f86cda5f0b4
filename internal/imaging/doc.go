// Package imaging provides the raster operations that page analysis is built on.
//
// This package turns rendered exam pages into the intermediate rasters the
// detectors consume: grayscale and blurred copies, binary Canny edge maps,
// morphological variants (erode, dilate, open, close with rectangular
// elements), global Otsu and adaptive Gaussian thresholds. It also crops and
// saves diagram regions and renders debug overlays of detector output.
// All operations work with standard Go image.Image types and use a coordinate system
// where (0,0) is at the top-left corner, X increases rightward, and Y increases downward.
//
// # Coordinate System
//
// All pixel coordinates in this package are 0-based:
//   - X: horizontal position (0 = leftmost pixel)
//   - Y: vertical position (0 = topmost pixel)
//   - For regions, Min is inclusive (top-left) and Max is exclusive (bottom-right)
//
// Derived rasters (*image.Gray) are always anchored at the origin.
//
// # Binary Rasters
//
// Binary maps use 0 for background and 255 for foreground. Edge maps,
// threshold outputs and morphology results all follow this convention.
//
// # Thread Safety
//
// The PageCache type is safe for concurrent use. Every other function is
// stateless and returns new rasters, so inputs are never modified.
//
// # Libraries
//
// Grayscale conversion, Gaussian blur and histograms come from
// github.com/anthonynsimon/bild. Cropping, decoding and PNG output use
// github.com/disintegration/imaging. Overlay colours come from
// github.com/lucasb-eyer/go-colorful and labels are drawn with
// golang.org/x/image/font/basicfont.
package imaging

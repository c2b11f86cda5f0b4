package imaging

import (
	"image"
)

// EdgeMapOptions controls how a page image is reduced to a binary edge map.
type EdgeMapOptions struct {
	// BlurRadius is the Gaussian radius applied before gradient computation.
	// Zero disables blurring.
	BlurRadius float64 `yaml:"blur_radius" json:"blur_radius"`

	// Low and High are the Canny hysteresis thresholds, in the units of the
	// L1 Sobel magnitude of an 8-bit image (|gx| + |gy|).
	Low  float64 `yaml:"low" json:"low"`
	High float64 `yaml:"high" json:"high"`

	// CloseKernel is the side of the square structuring element used for
	// morphological closing. Zero disables the closing step.
	CloseKernel     int `yaml:"close_kernel" json:"close_kernel"`
	CloseIterations int `yaml:"close_iterations" json:"close_iterations"`

	// DilateKernel is the side of the square element used for the final
	// dilation. Zero disables dilation.
	DilateKernel     int `yaml:"dilate_kernel" json:"dilate_kernel"`
	DilateIterations int `yaml:"dilate_iterations" json:"dilate_iterations"`
}

// DefaultEdgeMapOptions returns the settings used for region classification:
// 5x5 blur, Canny 50/150, 5x5 close twice, 5x5 dilate once.
func DefaultEdgeMapOptions() EdgeMapOptions {
	return EdgeMapOptions{
		BlurRadius:       2,
		Low:              50,
		High:             150,
		CloseKernel:      5,
		CloseIterations:  2,
		DilateKernel:     5,
		DilateIterations: 1,
	}
}

// EdgeMap holds the raw Canny output and the post-processed map used for
// contour extraction. Both are binary rasters ({0,255}) of the page size.
// When no closing or dilation is configured, Closed is the same raster as
// Edges.
type EdgeMap struct {
	Edges  *image.Gray
	Closed *image.Gray
}

// BuildEdgeMap converts a page image into a binary edge map.
//
// # Algorithm
//
//  1. Grayscale conversion.
//  2. Gaussian blur (opts.BlurRadius) for noise suppression.
//  3. Canny edge detection with opts.Low / opts.High.
//  4. Optional morphological closing to bridge small gaps.
//  5. Optional dilation to merge nearby strokes into connected blobs.
//
// The function never fails. A blank page yields an all-zero map.
func BuildEdgeMap(img image.Image, opts EdgeMapOptions) *EdgeMap {
	return BuildEdgeMapGray(Grayscale(img), opts)
}

// BuildEdgeMapGray is BuildEdgeMap for a page that is already grayscale.
func BuildEdgeMapGray(gray *image.Gray, opts EdgeMapOptions) *EdgeMap {
	edges := Canny(Blur(gray, opts.BlurRadius), opts.Low, opts.High)

	closed := edges
	if opts.CloseKernel > 0 && opts.CloseIterations > 0 {
		closed = Close(closed, opts.CloseKernel, opts.CloseKernel, opts.CloseIterations)
	}
	if opts.DilateKernel > 0 && opts.DilateIterations > 0 {
		closed = Dilate(closed, opts.DilateKernel, opts.DilateKernel, opts.DilateIterations)
	}
	return &EdgeMap{Edges: edges, Closed: closed}
}

// Canny runs Canny edge detection on an already smoothed grayscale raster.
//
// # Algorithm
//
//  1. Gradient computation with 3x3 Sobel operators, replicated borders,
//     magnitude = |Gx| + |Gy|.
//  2. Non-maximum suppression along the quantised gradient direction
//     (0, 45, 90, 135 degrees).
//  3. Hysteresis: pixels above high are seeds; pixels above low are kept only
//     when 8-connected to a seed through other kept pixels.
//
// The output is a new raster at the origin with edges set to 255.
func Canny(gray *image.Gray, low, high float64) *image.Gray {
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	if w < 3 || h < 3 {
		return out
	}
	if low > high {
		low, high = high, low
	}

	at := func(x, y int) int32 {
		x = clamp(x, 0, w-1)
		y = clamp(y, 0, h-1)
		return int32(gray.Pix[y*gray.Stride+x])
	}

	gx := make([]int16, w*h)
	gy := make([]int16, w*h)
	mag := make([]int32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			tl, tc, tr := at(x-1, y-1), at(x, y-1), at(x+1, y-1)
			ml, mr := at(x-1, y), at(x+1, y)
			bl, bc, br := at(x-1, y+1), at(x, y+1), at(x+1, y+1)

			dx := (tr + 2*mr + br) - (tl + 2*ml + bl)
			dy := (bl + 2*bc + br) - (tl + 2*tc + tr)
			i := y*w + x
			gx[i] = int16(dx)
			gy[i] = int16(dy)
			mag[i] = abs32(dx) + abs32(dy)
		}
	}

	const (
		weak   = 1
		strong = 2
	)
	lowT := int32(low)
	highT := int32(high)
	state := make([]uint8, w*h)
	stack := make([]int, 0, 1024)

	// tan(22.5) and tan(67.5) in 15-bit fixed point
	const tg22 = 13573
	const tg67 = 79109

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			m := mag[i]
			if m <= lowT {
				continue
			}
			ax := int64(abs32(int32(gx[i])))
			ay := int64(abs32(int32(gy[i]))) << 15

			var n1, n2 int32
			switch {
			case ay < ax*tg22:
				n1, n2 = mag[i-1], mag[i+1]
			case ay > ax*tg67:
				n1, n2 = mag[i-w], mag[i+w]
			case (gx[i] < 0) != (gy[i] < 0):
				n1, n2 = mag[i-w+1], mag[i+w-1]
			default:
				n1, n2 = mag[i-w-1], mag[i+w+1]
			}
			if m <= n1 || m < n2 {
				continue
			}
			if m > highT {
				state[i] = strong
				stack = append(stack, i)
			} else {
				state[i] = weak
			}
		}
	}

	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out.Pix[(i/w)*out.Stride+i%w] = 255

		y, x := i/w, i%w
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				ny, nx := y+dy, x+dx
				if ny < 0 || ny >= h || nx < 0 || nx >= w {
					continue
				}
				j := ny*w + nx
				if state[j] == weak {
					state[j] = strong
					stack = append(stack, j)
				}
			}
		}
	}

	return out
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

// clamp constrains an integer value to the range [min, max].
// Used for boundary handling in convolution operations.
func clamp(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

package imaging

import (
	"image"
	"math"

	"github.com/anthonynsimon/bild/histogram"
)

// OtsuLevel computes the global threshold that maximises the between-class
// variance of the grayscale histogram. Pixels <= level form the dark class.
func OtsuLevel(gray *image.Gray) uint8 {
	bins := histogram.NewRGBAHistogram(gray).R.Bins
	total := 0
	sum := 0.0
	for v, n := range bins {
		total += n
		sum += float64(v * n)
	}
	if total == 0 {
		return 0
	}

	var best uint8
	bestVar := -1.0
	fTotal := float64(total)
	w0, sum0 := 0, 0.0
	for t := 0; t < len(bins) && t < 256; t++ {
		w0 += bins[t]
		if w0 == 0 {
			continue
		}
		w1 := total - w0
		if w1 == 0 {
			break
		}
		sum0 += float64(t * bins[t])
		m0 := sum0 / float64(w0)
		m1 := (sum - sum0) / float64(w1)
		between := float64(w0) / fTotal * float64(w1) / fTotal * (m0 - m1) * (m0 - m1)
		if between > bestVar {
			bestVar = between
			best = uint8(t)
		}
	}
	return best
}

// ThresholdInv marks dark pixels: the output is 255 where the input is
// <= level and 0 elsewhere.
func ThresholdInv(gray *image.Gray, level uint8) *image.Gray {
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		src := gray.Pix[y*gray.Stride : y*gray.Stride+w]
		dst := out.Pix[y*out.Stride : y*out.Stride+w]
		for x, v := range src {
			if v <= level {
				dst[x] = 255
			}
		}
	}
	return out
}

// AdaptiveThresholdInv marks pixels darker than their neighbourhood.
//
// The local threshold is the Gaussian-weighted mean over a block x block
// window (sigma = 0.3*((block-1)*0.5-1)+0.8, replicated borders) minus c.
// The output is 0 where pixel > threshold and 255 otherwise. Even block
// sizes are rounded up to the next odd value.
func AdaptiveThresholdInv(gray *image.Gray, block int, c float64) *image.Gray {
	if block < 3 {
		block = 3
	}
	if block%2 == 0 {
		block++
	}
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return out
	}

	sigma := 0.3*(float64(block-1)*0.5-1) + 0.8
	kernel := gaussianKernel(block, sigma)
	r := block / 2

	tmp := make([]float64, w*h)
	for y := 0; y < h; y++ {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+w]
		for x := 0; x < w; x++ {
			s := 0.0
			for k, kv := range kernel {
				s += kv * float64(row[clamp(x+k-r, 0, w-1)])
			}
			tmp[y*w+x] = s
		}
	}

	ic := int(math.Round(c))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			s := 0.0
			for k, kv := range kernel {
				s += kv * tmp[clamp(y+k-r, 0, h-1)*w+x]
			}
			mean := int(math.Round(s))
			v := int(gray.Pix[y*gray.Stride+x])
			if v-mean <= -ic {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}

// gaussianKernel returns a normalised 1-D Gaussian of the given odd size.
func gaussianKernel(size int, sigma float64) []float64 {
	k := make([]float64, size)
	r := size / 2
	sum := 0.0
	for i := range k {
		x := float64(i - r)
		k[i] = math.Exp(-x * x / (2 * sigma * sigma))
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

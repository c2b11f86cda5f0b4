package imaging

import "image"

// Dilate replaces every pixel with the maximum over a kw x kh rectangle
// centred on it, repeated iterations times. Works on binary and grayscale
// rasters. Pixels outside the raster never contribute.
func Dilate(g *image.Gray, kw, kh, iterations int) *image.Gray {
	out := cloneGray(g)
	for i := 0; i < iterations; i++ {
		out = rankFilter(out, kw, kh, true)
	}
	return out
}

// Erode replaces every pixel with the minimum over a kw x kh rectangle
// centred on it, repeated iterations times.
func Erode(g *image.Gray, kw, kh, iterations int) *image.Gray {
	out := cloneGray(g)
	for i := 0; i < iterations; i++ {
		out = rankFilter(out, kw, kh, false)
	}
	return out
}

// Close is dilation followed by erosion with the same element. Each phase is
// applied iterations times, so Close(g, 5, 5, 2) dilates twice then erodes
// twice. Closing bridges gaps narrower than the element.
func Close(g *image.Gray, kw, kh, iterations int) *image.Gray {
	return Erode(Dilate(g, kw, kh, iterations), kw, kh, iterations)
}

// Open is erosion followed by dilation. Opening a binary map with a long thin
// element keeps only the strokes that contain the element, which is how
// horizontal and vertical rulings are isolated.
func Open(g *image.Gray, kw, kh, iterations int) *image.Gray {
	return Dilate(Erode(g, kw, kh, iterations), kw, kh, iterations)
}

// rankFilter runs one separable max (dilate) or min (erode) pass.
func rankFilter(g *image.Gray, kw, kh int, max bool) *image.Gray {
	if kw < 1 {
		kw = 1
	}
	if kh < 1 {
		kh = 1
	}
	w, h := g.Rect.Dx(), g.Rect.Dy()
	tmp := image.NewGray(image.Rect(0, 0, w, h))
	out := image.NewGray(image.Rect(0, 0, w, h))

	better := func(a, b uint8) bool {
		if max {
			return a > b
		}
		return a < b
	}

	ax := kw / 2
	for y := 0; y < h; y++ {
		src := g.Pix[y*g.Stride : y*g.Stride+w]
		dst := tmp.Pix[y*tmp.Stride : y*tmp.Stride+w]
		for x := 0; x < w; x++ {
			lo := x - ax
			hi := lo + kw - 1
			if lo < 0 {
				lo = 0
			}
			if hi > w-1 {
				hi = w - 1
			}
			v := src[lo]
			for k := lo + 1; k <= hi; k++ {
				if better(src[k], v) {
					v = src[k]
				}
			}
			dst[x] = v
		}
	}

	ay := kh / 2
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			lo := y - ay
			hi := lo + kh - 1
			if lo < 0 {
				lo = 0
			}
			if hi > h-1 {
				hi = h - 1
			}
			v := tmp.Pix[lo*tmp.Stride+x]
			for k := lo + 1; k <= hi; k++ {
				if p := tmp.Pix[k*tmp.Stride+x]; better(p, v) {
					v = p
				}
			}
			out.Pix[y*out.Stride+x] = v
		}
	}
	return out
}

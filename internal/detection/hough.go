package detection

import (
	"image"
	"math"
	"math/rand"
)

// Segment is a detected line segment with integer endpoints.
type Segment struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Dx returns the absolute horizontal extent.
func (s Segment) Dx() int { return absInt(s.X2 - s.X1) }

// Dy returns the absolute vertical extent.
func (s Segment) Dy() int { return absInt(s.Y2 - s.Y1) }

// Length returns the Euclidean length of the segment.
func (s Segment) Length() float64 {
	return math.Hypot(float64(s.X2-s.X1), float64(s.Y2-s.Y1))
}

// Horizontal reports whether the segment is dominated by its x extent
// (dx > 2*dy).
func (s Segment) Horizontal() bool { return s.Dx() > 2*s.Dy() }

// Vertical reports whether the segment is dominated by its y extent
// (dy > 2*dx).
func (s Segment) Vertical() bool { return s.Dy() > 2*s.Dx() }

// HoughParams configures probabilistic line detection. The accumulator
// resolution is fixed at 1 pixel and 1 degree.
type HoughParams struct {
	// Threshold is the minimum accumulator vote for a line.
	Threshold int `yaml:"threshold" json:"threshold"`
	// MinLineLength rejects segments shorter than this on both axes.
	MinLineLength int `yaml:"min_line_length" json:"min_line_length"`
	// MaxLineGap is the largest run of missing pixels bridged inside a line.
	MaxLineGap int `yaml:"max_line_gap" json:"max_line_gap"`
}

// houghSeed fixes the pixel visiting order so detection is reproducible.
const houghSeed = 0x5eed

// HoughSegments finds line segments in a binary raster with the progressive
// probabilistic Hough transform.
//
// # Algorithm
//
// Foreground pixels are visited in a seeded random order. Each pixel votes
// for all 180 line orientations through it. When the strongest orientation
// reaches Threshold, the line is walked in both directions from the pixel,
// bridging gaps up to MaxLineGap. The pixels on the walked span are removed
// from further consideration (and their votes withdrawn when the span is long
// enough), and the span is reported if it is at least MinLineLength long on
// either axis.
func HoughSegments(bin *image.Gray, p HoughParams) []Segment {
	w, h := bin.Rect.Dx(), bin.Rect.Dy()
	if w == 0 || h == 0 || p.Threshold <= 0 {
		return nil
	}

	const numAngle = 180
	numRho := (w+h)*2 + 1
	offset := (numRho - 1) / 2

	var cosTab, sinTab [numAngle]float64
	for n := 0; n < numAngle; n++ {
		theta := float64(n) * math.Pi / numAngle
		cosTab[n] = math.Cos(theta)
		sinTab[n] = math.Sin(theta)
	}

	mask := make([]bool, w*h)
	var points []int
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if bin.Pix[y*bin.Stride+x] != 0 {
				mask[y*w+x] = true
				points = append(points, y*w+x)
			}
		}
	}
	if len(points) == 0 {
		return nil
	}

	rng := rand.New(rand.NewSource(houghSeed))
	rng.Shuffle(len(points), func(i, j int) { points[i], points[j] = points[j], points[i] })

	accum := make([]int32, numAngle*numRho)
	vote := func(x, y int, delta int32) (int32, int) {
		best, bestN := int32(-1), 0
		for n := 0; n < numAngle; n++ {
			r := int(math.Round(float64(x)*cosTab[n]+float64(y)*sinTab[n])) + offset
			idx := n*numRho + r
			accum[idx] += delta
			if accum[idx] > best {
				best, bestN = accum[idx], n
			}
		}
		return best, bestN
	}

	const shift = 16
	var segments []Segment

	for _, pi := range points {
		if !mask[pi] {
			continue
		}
		px, py := pi%w, pi/w

		maxVal, maxN := vote(px, py, 1)
		if int(maxVal) < p.Threshold {
			continue
		}

		// Walk direction is perpendicular to the normal (cos, sin).
		a := -sinTab[maxN]
		b := cosTab[maxN]
		x0, y0 := px, py
		var dx0, dy0 int
		xflag := math.Abs(a) > math.Abs(b)
		if xflag {
			dx0 = 1
			if a < 0 {
				dx0 = -1
			}
			dy0 = int(math.Round(b * (1 << shift) / math.Abs(a)))
			y0 = (y0 << shift) + (1 << (shift - 1))
		} else {
			dy0 = 1
			if b < 0 {
				dy0 = -1
			}
			dx0 = int(math.Round(a * (1 << shift) / math.Abs(b)))
			x0 = (x0 << shift) + (1 << (shift - 1))
		}

		walk := func(k int, visit func(j, i int) bool) {
			x, y := x0, y0
			dx, dy := dx0, dy0
			if k > 0 {
				dx, dy = -dx, -dy
			}
			for ; ; x, y = x+dx, y+dy {
				var j, i int
				if xflag {
					j, i = x, y>>shift
				} else {
					j, i = x>>shift, y
				}
				if j < 0 || j >= w || i < 0 || i >= h {
					return
				}
				if !visit(j, i) {
					return
				}
			}
		}

		var ends [2]image.Point
		for k := 0; k < 2; k++ {
			gap := 0
			walk(k, func(j, i int) bool {
				if mask[i*w+j] {
					gap = 0
					ends[k] = image.Pt(j, i)
				} else {
					gap++
					if gap > p.MaxLineGap {
						return false
					}
				}
				return true
			})
		}

		good := absInt(ends[1].X-ends[0].X) >= p.MinLineLength ||
			absInt(ends[1].Y-ends[0].Y) >= p.MinLineLength

		for k := 0; k < 2; k++ {
			walk(k, func(j, i int) bool {
				if mask[i*w+j] {
					if good {
						vote(j, i, -1)
					}
					mask[i*w+j] = false
				}
				return !(i == ends[k].Y && j == ends[k].X)
			})
		}

		if good {
			segments = append(segments, Segment{
				X1: ends[0].X, Y1: ends[0].Y,
				X2: ends[1].X, Y2: ends[1].Y,
			})
		}
	}
	return segments
}

// segmentEnvelope returns the bounding box of all segment endpoints
// (inclusive of the end pixels).
func segmentEnvelope(segs []Segment) BBox {
	if len(segs) == 0 {
		return BBox{}
	}
	minX, minY := math.MaxInt, math.MaxInt
	maxX, maxY := math.MinInt, math.MinInt
	for _, s := range segs {
		minX = min(minX, s.X1, s.X2)
		minY = min(minY, s.Y1, s.Y2)
		maxX = max(maxX, s.X1, s.X2)
		maxY = max(maxY, s.Y1, s.Y2)
	}
	return BBox{X: minX, Y: minY, Width: maxX - minX + 1, Height: maxY - minY + 1}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

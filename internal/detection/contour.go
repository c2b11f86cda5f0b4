package detection

import (
	"image"
	"math"
)

// Contour is the outer boundary of one connected foreground region.
type Contour struct {
	// Points lists the boundary pixels in clockwise order (image coordinates),
	// starting at the top-most, left-most pixel of the region.
	Points []image.Point

	// Bounds is the bounding rectangle of the region (Max exclusive).
	Bounds image.Rectangle
}

// BBox returns the contour's bounding box.
func (c Contour) BBox() BBox { return BBoxFromRect(c.Bounds) }

// Area returns the polygon area enclosed by the boundary points (shoelace
// formula). Boundary pixels are treated as polygon vertices at pixel
// centres, so a solid w x h block has area (w-1)*(h-1).
func (c Contour) Area() float64 {
	n := len(c.Points)
	if n < 3 {
		return 0
	}
	var s int
	for i := 0; i < n; i++ {
		p, q := c.Points[i], c.Points[(i+1)%n]
		s += p.X*q.Y - q.X*p.Y
	}
	return math.Abs(float64(s)) / 2
}

// Perimeter returns the length of the closed boundary polyline.
func (c Contour) Perimeter() float64 {
	n := len(c.Points)
	if n < 2 {
		return 0
	}
	var l float64
	for i := 0; i < n; i++ {
		p, q := c.Points[i], c.Points[(i+1)%n]
		l += math.Hypot(float64(q.X-p.X), float64(q.Y-p.Y))
	}
	return l
}

// FindExternalContours traces the outer boundary of every 8-connected
// foreground region of a binary raster. Holes are ignored: a ring and a
// filled disc of the same outline produce the same contour. Contours are
// returned in raster order of their first pixel.
//
// # Algorithm
//
//  1. Background pixels that cannot reach the border through 4-connected
//     background are holes; they are filled.
//  2. The filled raster is labelled into 8-connected components.
//  3. Each component's boundary is walked with Moore-neighbour tracing,
//     stopping when the walk re-enters its first edge.
func FindExternalContours(bin *image.Gray) []Contour {
	w, h := bin.Rect.Dx(), bin.Rect.Dy()
	if w == 0 || h == 0 {
		return nil
	}
	fg := make([]bool, w*h)
	for y := 0; y < h; y++ {
		row := bin.Pix[y*bin.Stride : y*bin.Stride+w]
		for x, v := range row {
			fg[y*w+x] = v != 0
		}
	}
	fillHoles(fg, w, h)

	labels, comps := labelComponents(fg, w, h)
	contours := make([]Contour, 0, len(comps))
	for _, c := range comps {
		start := image.Pt(c.Start%w, c.Start/w)
		lab := c.Label
		inside := func(x, y int) bool {
			return x >= 0 && x < w && y >= 0 && y < h && labels[y*w+x] == lab
		}
		contours = append(contours, Contour{
			Points: traceBoundary(start, inside, 4*c.Area+16),
			Bounds: c.Bounds,
		})
	}
	return contours
}

// component summarises one connected region of a label image.
type component struct {
	Label  int32
	Start  int // index of the first pixel in raster order
	Area   int
	SumX   int64
	SumY   int64
	Bounds image.Rectangle
}

// Centroid returns the mean pixel position of the component.
func (c component) Centroid() (float64, float64) {
	return float64(c.SumX) / float64(c.Area), float64(c.SumY) / float64(c.Area)
}

// labelComponents assigns 8-connected labels (starting at 1) to the true
// cells of mask using an explicit stack, as a flood fill does.
func labelComponents(mask []bool, w, h int) ([]int32, []component) {
	labels := make([]int32, w*h)
	var comps []component
	stack := make([]int, 0, 256)
	next := int32(0)

	for start, on := range mask {
		if !on || labels[start] != 0 {
			continue
		}
		next++
		c := component{
			Label:  next,
			Start:  start,
			Bounds: image.Rect(start%w, start/w, start%w+1, start/w+1),
		}
		labels[start] = next
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := i%w, i/w
			c.Area++
			c.SumX += int64(x)
			c.SumY += int64(y)
			c.Bounds = c.Bounds.Union(image.Rect(x, y, x+1, y+1))

			for dy := -1; dy <= 1; dy++ {
				ny := y + dy
				if ny < 0 || ny >= h {
					continue
				}
				for dx := -1; dx <= 1; dx++ {
					nx := x + dx
					if nx < 0 || nx >= w || (dx == 0 && dy == 0) {
						continue
					}
					j := ny*w + nx
					if mask[j] && labels[j] == 0 {
						labels[j] = next
						stack = append(stack, j)
					}
				}
			}
		}
		comps = append(comps, c)
	}
	return labels, comps
}

// fillHoles sets every background cell not 4-connected to the border.
func fillHoles(fg []bool, w, h int) {
	outside := make([]bool, w*h)
	stack := make([]int, 0, 2*(w+h))
	push := func(i int) {
		if !fg[i] && !outside[i] {
			outside[i] = true
			stack = append(stack, i)
		}
	}
	for x := 0; x < w; x++ {
		push(x)
		push((h-1)*w + x)
	}
	for y := 0; y < h; y++ {
		push(y * w)
		push(y*w + w - 1)
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%w, i/w
		if x > 0 {
			push(i - 1)
		}
		if x < w-1 {
			push(i + 1)
		}
		if y > 0 {
			push(i - w)
		}
		if y < h-1 {
			push(i + w)
		}
	}
	for i := range fg {
		if !fg[i] && !outside[i] {
			fg[i] = true
		}
	}
}

// moore lists the 8 neighbours clockwise starting from west.
var moore = [8]image.Point{
	{-1, 0}, {-1, -1}, {0, -1}, {1, -1},
	{1, 0}, {1, 1}, {0, 1}, {-1, 1},
}

func mooreIndex(d image.Point) int {
	for i, m := range moore {
		if m == d {
			return i
		}
	}
	return 0
}

// traceBoundary walks the outer boundary of the region containing start,
// which must be the region's first pixel in raster order.
func traceBoundary(start image.Point, inside func(x, y int) bool, limit int) []image.Point {
	pts := []image.Point{start}
	p := start
	back := 0 // west of the first pixel is always outside

	for steps := 0; steps < limit; steps++ {
		var q image.Point
		found := false
		for k := 1; k <= 8; k++ {
			idx := (back + k) % 8
			cand := p.Add(moore[idx])
			if inside(cand.X, cand.Y) {
				prev := p.Add(moore[(back+k-1)%8])
				back = mooreIndex(prev.Sub(cand))
				q = cand
				found = true
				break
			}
		}
		if !found {
			break // isolated pixel
		}
		if p == start && len(pts) > 1 && q == pts[1] {
			break
		}
		pts = append(pts, q)
		p = q
	}

	if n := len(pts); n > 1 && pts[n-1] == start {
		pts = pts[:n-1]
	}
	return pts
}

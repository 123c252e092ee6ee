package detection

import (
	"image"
	"math"
)

// edgeThreshold is the grayscale step that counts as an edge.
const edgeThreshold = 30.0

// EdgeMap marks edge pixels of an image. Rows are indexed from the image's
// top-left corner, not from Bounds().Min.
type EdgeMap struct {
	Width, Height int
	Origin        image.Point
	px            [][]bool
}

// At reports whether (x, y), relative to the map, is an edge.
func (m *EdgeMap) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.px[y][x]
}

// Count returns the number of edge pixels inside r (map coordinates).
func (m *EdgeMap) Count(r image.Rectangle) int {
	r = r.Intersect(image.Rect(0, 0, m.Width, m.Height))
	n := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if m.px[y][x] {
				n++
			}
		}
	}
	return n
}

// Density is the fraction of edge pixels in the whole map.
func (m *EdgeMap) Density() float64 {
	if m.Width == 0 || m.Height == 0 {
		return 0
	}
	return float64(m.Count(image.Rect(0, 0, m.Width, m.Height))) / float64(m.Width*m.Height)
}

// Edges computes the edge map of img with a forward-difference gradient.
// Border pixels are never edges.
func Edges(img image.Image) *EdgeMap {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	m := &EdgeMap{Width: w, Height: h, Origin: b.Min, px: make([][]bool, h)}

	for y := 0; y < h; y++ {
		m.px[y] = make([]bool, w)
		if y == 0 || y == h-1 {
			continue
		}
		for x := 1; x < w-1; x++ {
			c := luma(img, b.Min.X+x, b.Min.Y+y)
			cx := luma(img, b.Min.X+x+1, b.Min.Y+y)
			cy := luma(img, b.Min.X+x, b.Min.Y+y+1)
			if math.Abs(c-cx) > edgeThreshold || math.Abs(c-cy) > edgeThreshold {
				m.px[y][x] = true
			}
		}
	}
	return m
}

// luma converts a pixel to grayscale with ITU-R BT.601 weights.
func luma(img image.Image, x, y int) float64 {
	r, g, b, _ := img.At(x, y).RGBA()
	return float64(r>>8)*0.299 + float64(g>>8)*0.587 + float64(b>>8)*0.114
}

// Blank reports whether img has fewer than minDensity edge pixels per
// pixel. A uniform or nearly uniform capture has nothing to recognize.
func Blank(img image.Image, minDensity float64) bool {
	return Edges(img).Density() < minDensity
}

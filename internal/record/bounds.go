package record

import (
	"image"
	"math"
	"net/url"

	"github.com/ironsheep/snaptext/internal/errors"
)

// MinDim is the smallest accepted selection width and height, in CSS pixels.
const MinDim = 50

// Bounds is an axis-aligned viewport rectangle in CSS pixels.
type Bounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// FromPoints builds the rectangle spanned by two pointer positions.
func FromPoints(p0, p1 image.Point) Bounds {
	return Bounds{
		X:      min(p0.X, p1.X),
		Y:      min(p0.Y, p1.Y),
		Width:  abs(p1.X - p0.X),
		Height: abs(p1.Y - p0.Y),
	}
}

// Validate rejects selections under MinDim in either dimension.
func (b Bounds) Validate() error {
	if b.Width < MinDim || b.Height < MinDim {
		return errors.NewSelectionTooSmall(b.Width, b.Height, MinDim)
	}
	return nil
}

// Right returns the exclusive right edge.
func (b Bounds) Right() int { return b.X + b.Width }

// Bottom returns the exclusive bottom edge.
func (b Bounds) Bottom() int { return b.Y + b.Height }

// Intersects reports whether the rectangle (left, top, right, bottom)
// overlaps b. Touching edges do not count.
func (b Bounds) Intersects(left, top, right, bottom float64) bool {
	return left < float64(b.Right()) &&
		right > float64(b.X) &&
		top < float64(b.Bottom()) &&
		bottom > float64(b.Y)
}

// Scale converts CSS-pixel bounds to device pixels. All four crop
// coordinates are multiplied by dpr before rounding.
func (b Bounds) Scale(dpr float64) image.Rectangle {
	if dpr <= 0 {
		dpr = 1
	}
	x0 := int(math.Round(float64(b.X) * dpr))
	y0 := int(math.Round(float64(b.Y) * dpr))
	x1 := int(math.Round(float64(b.Right()) * dpr))
	y1 := int(math.Round(float64(b.Bottom()) * dpr))
	return image.Rect(x0, y0, x1, y1)
}

// Hostname returns the host of a URL, or "" when it cannot be parsed.
func Hostname(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

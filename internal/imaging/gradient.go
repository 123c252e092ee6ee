package imaging

import (
	"image"
	"math"
	"time"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Gradient fills a w x h image with a diagonal blend from one color to
// another, interpolated in HCL space.
func Gradient(w, h int, from, to colorful.Color) *image.RGBA {
	w, h = max(w, 1), max(h, 1)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	span := float64(w + h - 2)
	if span <= 0 {
		span = 1
	}
	// One blend per diagonal; pixels on the same diagonal share a color.
	ramp := make([]colorful.Color, w+h-1)
	for i := range ramp {
		ramp[i] = from.BlendHcl(to, float64(i)/span).Clamped()
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Set(x, y, ramp[x+y])
		}
	}
	return dst
}

// TimeColors derives a pair of gradient endpoints from a timestamp. Captures
// taken at different moments get visibly different placeholders.
func TimeColors(t time.Time) (colorful.Color, colorful.Color) {
	secs := float64(t.UnixMilli()%86_400_000) / 1000
	hue := math.Mod(secs*7.3, 360)
	from := colorful.Hsv(hue, 0.55, 0.85)
	to := colorful.Hsv(math.Mod(hue+140, 360), 0.65, 0.45)
	return from, to
}

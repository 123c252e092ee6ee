package detection

import (
	"image"
	"math"
	"sort"
)

// Region is a rectangle likely to contain text.
type Region struct {
	Rect       image.Rectangle `json:"rect"`
	Confidence float64         `json:"confidence"`
}

// windows are the sliding-window sizes, roughly one line of small, medium
// and large UI text.
var windows = []image.Point{
	{X: 80, Y: 25},
	{X: 100, Y: 30},
	{X: 150, Y: 40},
	{X: 200, Y: 50},
}

// TextRegions finds areas whose edge structure looks like text, merged and
// sorted by descending confidence. Images smaller than the smallest window
// yield no regions.
func TextRegions(img image.Image, minConfidence float64) []Region {
	m := Edges(img)

	var candidates []Region
	for _, ws := range windows {
		stepX, stepY := ws.X/2, ws.Y/2
		area := float64(ws.X * ws.Y)
		for y := 0; y+ws.Y <= m.Height; y += stepY {
			for x := 0; x+ws.X <= m.Width; x += stepX {
				win := image.Rect(x, y, x+ws.X, y+ws.Y)
				density := float64(m.Count(win)) / area

				// Text has medium density: sparse windows are background,
				// dense ones are photos or patterns.
				if density < 0.05 || density > 0.4 {
					continue
				}
				conf := horizontalScore(m, win) * (1 - math.Abs(density-0.2)/0.2)
				if conf < minConfidence {
					continue
				}
				candidates = append(candidates, Region{
					Rect:       win.Add(m.Origin),
					Confidence: math.Round(conf*1000) / 1000,
				})
			}
		}
	}

	merged := mergeRegions(candidates)
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Confidence > merged[j].Confidence
	})
	return merged
}

// TextBounds returns the union of all text regions grown by pad pixels and
// clamped to the image. ok is false when no region was found.
func TextBounds(img image.Image, minConfidence float64, pad int) (r image.Rectangle, ok bool) {
	regions := TextRegions(img, minConfidence)
	if len(regions) == 0 {
		return image.Rectangle{}, false
	}
	r = regions[0].Rect
	for _, reg := range regions[1:] {
		r = r.Union(reg.Rect)
	}
	return r.Inset(-pad).Intersect(img.Bounds()), true
}

// horizontalScore is the share of edge runs that are horizontal.
func horizontalScore(m *EdgeMap, win image.Rectangle) float64 {
	horizontal, vertical := 0, 0

	for y := win.Min.Y; y < win.Max.Y; y++ {
		inRun := false
		for x := win.Min.X; x < win.Max.X; x++ {
			if m.At(x, y) {
				if !inRun {
					horizontal++
				}
				inRun = true
			} else {
				inRun = false
			}
		}
	}
	for x := win.Min.X; x < win.Max.X; x++ {
		inRun := false
		for y := win.Min.Y; y < win.Max.Y; y++ {
			if m.At(x, y) {
				if !inRun {
					vertical++
				}
				inRun = true
			} else {
				inRun = false
			}
		}
	}

	if horizontal+vertical == 0 {
		return 0
	}
	return float64(horizontal) / float64(horizontal+vertical)
}

// mergeRegions folds each candidate into the first region it overlaps.
func mergeRegions(regions []Region) []Region {
	var merged []Region
	for _, r := range regions {
		folded := false
		for i := range merged {
			if r.Rect.Overlaps(merged[i].Rect) {
				merged[i].Rect = merged[i].Rect.Union(r.Rect)
				merged[i].Confidence = math.Max(r.Confidence, merged[i].Confidence)
				folded = true
				break
			}
		}
		if !folded {
			merged = append(merged, r)
		}
	}
	return merged
}

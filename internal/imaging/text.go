package imaging

import (
	"image"
	"image/color"
	"image/draw"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Glyph metrics of basicfont.Face7x13.
const (
	CharWidth  = 7
	LineHeight = 16
	ascent     = 11
)

// DrawText draws s in the fixed 7x13 face with its top-left corner at (x, y).
func DrawText(dst draw.Image, x, y int, s string, col color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y + ascent)},
	}
	d.DrawString(s)
}

// Wrap breaks s into lines of at most maxChars runes. Words longer than
// maxChars are split.
func Wrap(s string, maxChars int) []string {
	if maxChars <= 0 {
		return nil
	}
	var lines []string
	for _, para := range strings.Split(s, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		var cur []rune
		for _, w := range words {
			rw := []rune(w)
			for len(rw) > maxChars {
				if len(cur) > 0 {
					lines = append(lines, string(cur))
					cur = nil
				}
				lines = append(lines, string(rw[:maxChars]))
				rw = rw[maxChars:]
			}
			switch {
			case len(cur) == 0:
				cur = append(cur, rw...)
			case len(cur)+1+len(rw) <= maxChars:
				cur = append(cur, ' ')
				cur = append(cur, rw...)
			default:
				lines = append(lines, string(cur))
				cur = append([]rune(nil), rw...)
			}
		}
		if len(cur) > 0 {
			lines = append(lines, string(cur))
		}
	}
	return lines
}

// Card is a synthetic raster: a background, a block of body text laid out
// line by line from the top, and annotation lines pinned to the bottom.
type Card struct {
	Width, Height int

	// Background is drawn first. A nil Background paints Fill.
	Background image.Image
	Fill       color.Color

	Foreground color.Color
	Body       []string

	// Footer lines sit on a translucent strip at the bottom edge.
	Footer      []string
	FooterColor color.Color

	Padding int
}

// Render draws the card. Body text that does not fit above the footer is
// truncated with an ellipsis line.
func (c Card) Render() *image.RGBA {
	w, h := max(c.Width, 1), max(c.Height, 1)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))

	if c.Background != nil {
		draw.Draw(dst, dst.Bounds(), c.Background, c.Background.Bounds().Min, draw.Src)
	} else {
		fill := c.Fill
		if fill == nil {
			fill = color.White
		}
		draw.Draw(dst, dst.Bounds(), image.NewUniform(fill), image.Point{}, draw.Src)
	}

	pad := c.Padding
	if pad <= 0 {
		pad = 8
	}
	fg := c.Foreground
	if fg == nil {
		fg = color.Black
	}
	maxChars := (w - 2*pad) / CharWidth

	footerTop := h
	if len(c.Footer) > 0 {
		footerTop = h - len(c.Footer)*LineHeight - pad
		strip := image.Rect(0, max(footerTop-pad/2, 0), w, h)
		draw.Draw(dst, strip, image.NewUniform(color.RGBA{0, 0, 0, 140}), image.Point{}, draw.Over)
		fc := c.FooterColor
		if fc == nil {
			fc = color.White
		}
		for i, line := range c.Footer {
			DrawText(dst, pad, footerTop+i*LineHeight, truncate(line, maxChars), fc)
		}
	}

	y := pad
	for _, para := range c.Body {
		for _, line := range Wrap(para, maxChars) {
			if y+2*LineHeight > footerTop {
				DrawText(dst, pad, y, "...", fg)
				return dst
			}
			DrawText(dst, pad, y, line, fg)
			y += LineHeight
		}
	}
	return dst
}

func truncate(s string, maxChars int) string {
	r := []rune(s)
	if maxChars <= 0 {
		return ""
	}
	if len(r) <= maxChars {
		return s
	}
	if maxChars <= 3 {
		return string(r[:maxChars])
	}
	return string(r[:maxChars-3]) + "..."
}

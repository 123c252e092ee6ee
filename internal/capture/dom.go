package capture

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/ironsheep/snaptext/internal/errors"
	"github.com/ironsheep/snaptext/internal/imaging"
	"github.com/ironsheep/snaptext/internal/record"
)

// MaxElements caps how many intersecting elements are rendered.
const MaxElements = 10

// Element is a leaf node of the page with its viewport rectangle in CSS
// pixels.
type Element struct {
	Text   string  `json:"text"`
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// ElementSource enumerates the page's leaf elements in document order.
type ElementSource interface {
	LeafElements(ctx context.Context) ([]Element, error)
}

// DOMProvider reconstructs the selection from page text when no raster is
// available.
type DOMProvider struct {
	Source ElementSource
}

var (
	domBackground = color.RGBA{248, 249, 250, 255}
	domForeground = color.RGBA{33, 37, 41, 255}
)

func (p *DOMProvider) Name() string { return record.TierDOM }

// Attempt renders the trimmed text of up to MaxElements intersecting
// elements, one per line, on a fixed background.
func (p *DOMProvider) Attempt(ctx context.Context, req Request) (image.Image, error) {
	if p.Source == nil {
		return nil, errors.NewCaptureUnavailable(p.Name(), fmt.Errorf("no element source"))
	}
	elems, err := p.Source.LeafElements(ctx)
	if err != nil {
		return nil, errors.NewCaptureUnavailable(p.Name(), err)
	}

	w, h := canvasSize(req.Bounds)
	card := imaging.Card{
		Width:      w,
		Height:     h,
		Fill:       domBackground,
		Foreground: domForeground,
		Body:       SelectText(elems, req.Bounds),
		Footer:     annotation(req),
	}
	return card.Render(), nil
}

// SelectText returns the trimmed, non-empty text of the first MaxElements
// elements intersecting b.
func SelectText(elems []Element, b record.Bounds) []string {
	var lines []string
	for _, e := range elems {
		if len(lines) == MaxElements {
			break
		}
		if !b.Intersects(e.Left, e.Top, e.Right, e.Bottom) {
			continue
		}
		text := strings.Join(strings.Fields(e.Text), " ")
		if text == "" {
			continue
		}
		lines = append(lines, text)
	}
	return lines
}

package capture

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/ironsheep/snaptext/internal/imaging"
	"github.com/ironsheep/snaptext/internal/record"
)

// PlaceholderProvider always succeeds. Its gradient is derived from the
// capture time so successive placeholders look different.
type PlaceholderProvider struct{}

func (p *PlaceholderProvider) Name() string { return record.TierPlaceholder }

func (p *PlaceholderProvider) Attempt(_ context.Context, req Request) (image.Image, error) {
	w, h := canvasSize(req.Bounds)
	from, to := imaging.TimeColors(req.CapturedAt)

	footer := annotation(req)
	if req.ID != "" {
		footer = append(footer, "id "+req.ID)
	}
	card := imaging.Card{
		Width:      w,
		Height:     h,
		Background: imaging.Gradient(w, h, from, to),
		Foreground: color.White,
		Body:       []string{"Screen capture unavailable", fmt.Sprintf("Selected area %dx%d", req.Bounds.Width, req.Bounds.Height)},
		Footer:     footer,
	}
	return card.Render(), nil
}

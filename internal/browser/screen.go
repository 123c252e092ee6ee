package browser

import (
	"context"
	"fmt"
	"image"

	"github.com/vova616/screenshot"

	"github.com/ironsheep/snaptext/internal/capture"
	"github.com/ironsheep/snaptext/internal/errors"
	"github.com/ironsheep/snaptext/internal/record"
)

// ScreenURL is the source URL recorded for desktop captures.
const ScreenURL = "screen://local"

// ScreenPage captures the primary display. Selections are interpreted in
// logical pixels and scaled by Scale.
type ScreenPage struct {
	Scale float64

	// grab is replaced in tests.
	grab func() (*image.RGBA, error)
}

var _ capture.Page = (*ScreenPage)(nil)

// NewScreenPage returns a desktop capture source.
func NewScreenPage(scale float64) *ScreenPage {
	if scale <= 0 {
		scale = 1
	}
	return &ScreenPage{Scale: scale, grab: screenshot.CaptureScreen}
}

// GrabFrame captures the whole primary display.
func (s *ScreenPage) GrabFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := s.grab()
	if err != nil {
		return nil, fmt.Errorf("screen: capture: %w", err)
	}
	return img, nil
}

// LeafElements always fails: a desktop has no document.
func (s *ScreenPage) LeafElements(context.Context) ([]capture.Element, error) {
	return nil, errors.NewCaptureUnavailable(record.TierDOM, fmt.Errorf("desktop capture has no document"))
}

// Info reports the screen pseudo-URL and configured scale.
func (s *ScreenPage) Info(context.Context) (capture.PageInfo, error) {
	return capture.PageInfo{URL: ScreenURL, DevicePixelRatio: s.Scale}, nil
}

// Close is a no-op.
func (s *ScreenPage) Close() error { return nil }

// ScreenRect reports the primary display bounds.
func ScreenRect() (image.Rectangle, error) {
	return screenshot.ScreenRect()
}

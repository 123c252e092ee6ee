package capture

import (
	"context"
	"fmt"
	"image"

	"github.com/ironsheep/snaptext/internal/errors"
	"github.com/ironsheep/snaptext/internal/imaging"
	"github.com/ironsheep/snaptext/internal/record"
)

// FrameGrabber returns a full-viewport raster in device pixels. It lives in
// the privileged context: a browser connection or the local display.
type FrameGrabber interface {
	GrabFrame(ctx context.Context) (image.Image, error)
}

// NativeProvider crops the selection out of a full frame.
type NativeProvider struct {
	Grabber FrameGrabber
}

func (p *NativeProvider) Name() string { return record.TierNative }

// Attempt grabs a frame and crops it at the request's device pixel ratio.
func (p *NativeProvider) Attempt(ctx context.Context, req Request) (image.Image, error) {
	if p.Grabber == nil {
		return nil, errors.NewCaptureUnavailable(p.Name(), fmt.Errorf("no frame source"))
	}
	frame, err := p.Grabber.GrabFrame(ctx)
	if err != nil {
		return nil, errors.NewCaptureUnavailable(p.Name(), err)
	}
	if frame == nil || frame.Bounds().Empty() {
		return nil, errors.NewCaptureUnavailable(p.Name(), fmt.Errorf("empty frame"))
	}
	img, err := imaging.CropViewport(frame, req.Bounds, req.DevicePixelRatio)
	if err != nil {
		return nil, errors.NewCaptureUnavailable(p.Name(), err)
	}
	return img, nil
}

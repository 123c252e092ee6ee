package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/snaptext/internal/record"
)

// CropViewport cuts the region described by CSS-pixel bounds out of a
// full-viewport frame captured at the given device pixel ratio.
//
// All four crop coordinates are multiplied by dpr before sampling, then
// clamped to the frame. The result is in device pixels.
func CropViewport(frame image.Image, b record.Bounds, dpr float64) (image.Image, error) {
	if frame == nil {
		return nil, fmt.Errorf("crop: nil frame")
	}
	fb := frame.Bounds()
	if fb.Empty() {
		return nil, fmt.Errorf("crop: empty frame")
	}

	r := b.Scale(dpr).Add(fb.Min).Intersect(fb)
	if r.Empty() {
		return nil, fmt.Errorf("crop region %v outside frame %v", b.Scale(dpr), fb)
	}

	return imaging.Crop(frame, r), nil
}

// CropRect cuts r, in img's own coordinates, out of img.
func CropRect(img image.Image, r image.Rectangle) image.Image {
	return imaging.Crop(img, r.Intersect(img.Bounds()))
}

// Upscale enlarges small images so their shorter side reaches minSide.
// Images already at or above minSide are returned unchanged.
func Upscale(img image.Image, minSide int) image.Image {
	b := img.Bounds()
	short := min(b.Dx(), b.Dy())
	if short <= 0 || short >= minSide {
		return img
	}
	scale := float64(minSide) / float64(short)
	newWidth := int(float64(b.Dx()) * scale)
	newHeight := int(float64(b.Dy()) * scale)
	return imaging.Resize(img, newWidth, newHeight, imaging.Lanczos)
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

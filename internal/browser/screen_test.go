package browser

import (
	"context"
	"fmt"
	"image"
	"testing"

	"github.com/ironsheep/snaptext/internal/capture"
	"github.com/ironsheep/snaptext/internal/errors"
	"github.com/ironsheep/snaptext/internal/record"
)

func TestScreenPage_Info(t *testing.T) {
	tests := []struct {
		scale float64
		want  float64
	}{
		{0, 1},
		{-2, 1},
		{2, 2},
		{1.25, 1.25},
	}

	for _, tt := range tests {
		info, err := NewScreenPage(tt.scale).Info(context.Background())
		if err != nil {
			t.Fatalf("Info failed: %v", err)
		}
		if info.DevicePixelRatio != tt.want || info.URL != ScreenURL {
			t.Errorf("NewScreenPage(%v).Info() = %+v", tt.scale, info)
		}
	}
}

func TestScreenPage_GrabFrame(t *testing.T) {
	s := NewScreenPage(1)
	s.grab = func() (*image.RGBA, error) {
		return image.NewRGBA(image.Rect(0, 0, 640, 480)), nil
	}

	img, err := s.GrabFrame(context.Background())
	if err != nil {
		t.Fatalf("GrabFrame failed: %v", err)
	}
	if img.Bounds().Dx() != 640 {
		t.Errorf("width: got %d, want 640", img.Bounds().Dx())
	}
}

func TestScreenPage_ChainFallsToPlaceholder(t *testing.T) {
	s := NewScreenPage(1)
	s.grab = func() (*image.RGBA, error) { return nil, fmt.Errorf("no display") }

	chain := capture.DefaultChain(nil, s, s)
	res := chain.Capture(context.Background(), capture.Request{
		Bounds: record.Bounds{Width: 80, Height: 60},
	})
	if res.Tier != record.TierPlaceholder {
		t.Errorf("Tier: got %q, want placeholder", res.Tier)
	}
}

func TestScreenPage_NoElements(t *testing.T) {
	_, err := NewScreenPage(1).LeafElements(context.Background())
	if !errors.Is(err, errors.ErrCaptureUnavailable) {
		t.Errorf("expected CAPTURE_UNAVAILABLE, got %v", err)
	}
}

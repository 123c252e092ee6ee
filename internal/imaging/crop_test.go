package imaging

import (
	"image"
	"image/color"
	"testing"

	"github.com/ironsheep/snaptext/internal/record"
)

// createInMemoryImage creates an in-memory test image
func createInMemoryImage(width, height int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// createPatternImage creates an image with different colors in each quadrant
func createPatternImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var c color.Color
			if x < width/2 && y < height/2 {
				c = color.RGBA{255, 0, 0, 255} // Red top-left
			} else if x >= width/2 && y < height/2 {
				c = color.RGBA{0, 255, 0, 255} // Green top-right
			} else if x < width/2 && y >= height/2 {
				c = color.RGBA{0, 0, 255, 255} // Blue bottom-left
			} else {
				c = color.RGBA{255, 255, 255, 255} // White bottom-right
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func rgb8(c color.Color) (uint8, uint8, uint8) {
	r, g, b, _ := c.RGBA()
	return uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)
}

func TestCropViewport(t *testing.T) {
	img := createPatternImage(200, 200)

	tests := []struct {
		name         string
		bounds       record.Bounds
		dpr          float64
		wantW, wantH int
	}{
		{"unit ratio", record.Bounds{X: 0, Y: 0, Width: 60, Height: 60}, 1, 60, 60},
		{"double density", record.Bounds{X: 0, Y: 0, Width: 60, Height: 60}, 2, 120, 120},
		{"fractional density", record.Bounds{X: 10, Y: 10, Width: 60, Height: 50}, 1.5, 90, 75},
		{"zero ratio treated as one", record.Bounds{X: 0, Y: 0, Width: 60, Height: 60}, 0, 60, 60},
		{"clamped to frame", record.Bounds{X: 180, Y: 180, Width: 60, Height: 60}, 1, 20, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CropViewport(img, tt.bounds, tt.dpr)
			if err != nil {
				t.Fatalf("CropViewport failed: %v", err)
			}
			if got.Bounds().Dx() != tt.wantW || got.Bounds().Dy() != tt.wantH {
				t.Errorf("dimensions: got %dx%d, want %dx%d",
					got.Bounds().Dx(), got.Bounds().Dy(), tt.wantW, tt.wantH)
			}
		})
	}
}

func TestCropViewport_ScalesOrigin(t *testing.T) {
	img := createPatternImage(200, 200)

	// At 2x the CSS origin (50,50) lands on device pixel (100,100), the
	// white quadrant. Sampling at 1x would start in the red one.
	got, err := CropViewport(img, record.Bounds{X: 50, Y: 50, Width: 50, Height: 50}, 2)
	if err != nil {
		t.Fatalf("CropViewport failed: %v", err)
	}
	r, g, b := rgb8(got.At(got.Bounds().Min.X+5, got.Bounds().Min.Y+5))
	if r != 255 || g != 255 || b != 255 {
		t.Errorf("origin color: got (%d,%d,%d), want white", r, g, b)
	}
}

func TestCropViewport_VerifyContent(t *testing.T) {
	img := createPatternImage(100, 100)

	got, err := CropViewport(img, record.Bounds{X: 0, Y: 0, Width: 50, Height: 50}, 1)
	if err != nil {
		t.Fatalf("CropViewport failed: %v", err)
	}

	r, g, b := rgb8(got.At(25, 25))
	if r != 255 || g != 0 || b != 0 {
		t.Errorf("cropped image color: got (%d,%d,%d), want (255,0,0)", r, g, b)
	}
}

func TestCropViewport_OffsetFrame(t *testing.T) {
	frame := image.NewRGBA(image.Rect(100, 100, 200, 200))
	for y := 100; y < 200; y++ {
		for x := 100; x < 200; x++ {
			frame.Set(x, y, color.RGBA{0, 0, 255, 255})
		}
	}

	got, err := CropViewport(frame, record.Bounds{X: 0, Y: 0, Width: 50, Height: 50}, 1)
	if err != nil {
		t.Fatalf("CropViewport failed: %v", err)
	}
	if got.Bounds().Dx() != 50 {
		t.Errorf("width: got %d, want 50", got.Bounds().Dx())
	}
}

func TestCropViewport_Errors(t *testing.T) {
	img := createInMemoryImage(100, 100, color.RGBA{255, 0, 0, 255})

	tests := []struct {
		name   string
		frame  image.Image
		bounds record.Bounds
	}{
		{"nil frame", nil, record.Bounds{Width: 50, Height: 50}},
		{"empty frame", image.NewRGBA(image.Rect(0, 0, 0, 0)), record.Bounds{Width: 50, Height: 50}},
		{"outside frame", img, record.Bounds{X: 500, Y: 500, Width: 50, Height: 50}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := CropViewport(tt.frame, tt.bounds, 1); err == nil {
				t.Error("CropViewport should fail")
			}
		})
	}
}

func TestUpscale(t *testing.T) {
	tests := []struct {
		name         string
		w, h         int
		minSide      int
		wantW, wantH int
	}{
		{"small image grows", 20, 10, 40, 80, 40},
		{"already large", 100, 80, 40, 100, 80},
		{"exact size", 40, 40, 40, 40, 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := createInMemoryImage(tt.w, tt.h, color.Black)
			got := Upscale(img, tt.minSide)
			if got.Bounds().Dx() != tt.wantW || got.Bounds().Dy() != tt.wantH {
				t.Errorf("dimensions: got %dx%d, want %dx%d",
					got.Bounds().Dx(), got.Bounds().Dy(), tt.wantW, tt.wantH)
			}
		})
	}
}

func TestEncodePNG(t *testing.T) {
	img := createPatternImage(64, 32)

	data, err := EncodePNG(img)
	if err != nil {
		t.Fatalf("EncodePNG failed: %v", err)
	}

	info, err := Info(data)
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if info.Format != "png" || info.Width != 64 || info.Height != 32 {
		t.Errorf("info: got %+v", info)
	}
	if info.SizeBytes != len(data) {
		t.Errorf("SizeBytes: got %d, want %d", info.SizeBytes, len(data))
	}
}

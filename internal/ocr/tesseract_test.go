package ocr

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"testing"
	"time"

	"github.com/ironsheep/snaptext/internal/errors"
	"github.com/ironsheep/snaptext/internal/imaging"
)

// createImageWithText renders text with basicfont and scales it up so
// Tesseract has a fighting chance.
func createImageWithText(t *testing.T, text string, scale int) []byte {
	t.Helper()

	width := len(text)*imaging.CharWidth + 40
	height := 40

	small := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(small, small.Bounds(), image.White, image.Point{}, draw.Src)
	imaging.DrawText(small, 20, 12, text, color.Black)

	img := image.NewRGBA(image.Rect(0, 0, width*scale, height*scale))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := small.At(x, y)
			for dy := 0; dy < scale; dy++ {
				for dx := 0; dx < scale; dx++ {
					img.Set(x*scale+dx, y*scale+dy, c)
				}
			}
		}
	}

	data, err := imaging.EncodePNG(img)
	if err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return data
}

func TestPreprocess(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 100, 50))
	draw.Draw(src, src.Bounds(), image.NewUniform(color.RGBA{200, 30, 30, 255}), image.Point{}, draw.Src)

	tests := []struct {
		name         string
		minSide      int
		contrast     float64
		wantW, wantH int
	}{
		{"upscaled", 200, 0, 400, 200},
		{"no upscale", 0, 0, 100, 50},
		{"with contrast", 0, 0.3, 100, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Preprocess(src, tt.minSide, tt.contrast)
			if got.Bounds().Dx() != tt.wantW || got.Bounds().Dy() != tt.wantH {
				t.Errorf("dimensions: got %dx%d, want %dx%d",
					got.Bounds().Dx(), got.Bounds().Dy(), tt.wantW, tt.wantH)
			}
			r, g, b, _ := got.At(got.Bounds().Min.X+1, got.Bounds().Min.Y+1).RGBA()
			if r != g || g != b {
				t.Errorf("pixel not grayscale: (%d,%d,%d)", r>>8, g>>8, b>>8)
			}
		})
	}
}

func TestMeanConfidence(t *testing.T) {
	tests := []struct {
		name  string
		confs []float64
		want  float64
	}{
		{"empty", nil, 0},
		{"single", []float64{87}, 87},
		{"mean", []float64{90, 70, 80}, 80},
		{"clamped high", []float64{150}, 100},
		{"clamped low", []float64{-5}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := meanConfidence(tt.confs); got != tt.want {
				t.Errorf("meanConfidence(%v) = %v, want %v", tt.confs, got, tt.want)
			}
		})
	}
}

func TestTesseract_InvalidImage(t *testing.T) {
	tess := NewTesseract("eng", "")

	_, err := tess.Recognize(context.Background(), []byte("not an image"))
	if !errors.Is(err, errors.ErrRecognitionFailure) {
		t.Errorf("expected RECOGNITION_FAILURE, got %v", err)
	}
}

func TestTesseract_BlankImage(t *testing.T) {
	blank := image.NewRGBA(image.Rect(0, 0, 320, 200))
	draw.Draw(blank, blank.Bounds(), image.White, image.Point{}, draw.Src)
	data, err := imaging.EncodePNG(blank)
	if err != nil {
		t.Fatal(err)
	}

	// Rejected before the engine runs, so no Tesseract install is needed.
	_, err = NewTesseract("eng", "").Recognize(context.Background(), data)
	if !errors.Is(err, errors.ErrRecognitionFailure) {
		t.Errorf("expected RECOGNITION_FAILURE, got %v", err)
	}
}

func TestTrimToText(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 600, 400))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	for y := 300; y < 360; y += 10 {
		for x := 350; x < 550; x++ {
			if x%15 < 5 {
				img.Set(x, y, color.Black)
				img.Set(x, y+1, color.Black)
				img.Set(x, y+5, color.Black)
			}
		}
	}

	trimmed := TrimToText(img)
	b := trimmed.Bounds()
	if b.Dx() >= 600 && b.Dy() >= 400 {
		t.Errorf("expected a crop, got %v", b)
	}

	blank := image.NewRGBA(image.Rect(0, 0, 300, 200))
	if got := TrimToText(blank); got.Bounds() != blank.Bounds() {
		t.Errorf("blank image should be unchanged, got %v", got.Bounds())
	}
}

func TestTesseract_CancelledContext(t *testing.T) {
	tess := NewTesseract("", "")
	if tess.Language != DefaultLanguage {
		t.Errorf("Language: got %q, want %q", tess.Language, DefaultLanguage)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tess.Recognize(ctx, createImageWithText(t, "HELLO", 3))
	if !errors.Is(err, errors.ErrRecognitionFailure) {
		t.Errorf("expected RECOGNITION_FAILURE, got %v", err)
	}
}

func TestTesseract_Recognize(t *testing.T) {
	tess := NewTesseract("eng", "")

	res, err := tess.Recognize(context.Background(), createImageWithText(t, "HELLO WORLD", 4))
	if err != nil {
		// Tesseract or its language data might not be installed.
		t.Skipf("Tesseract not available: %v", err)
	}
	if res.Text == "" {
		t.Error("Recognize returned empty text without an error")
	}
	if res.Confidence < 0 || res.Confidence > 100 {
		t.Errorf("Confidence out of range: %v", res.Confidence)
	}
}

func TestWithTimeout(t *testing.T) {
	slow := RecognizerFunc(func(ctx context.Context, _ []byte) (Result, error) {
		select {
		case <-time.After(5 * time.Second):
			return Result{Text: "late"}, nil
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	})
	fast := RecognizerFunc(func(context.Context, []byte) (Result, error) {
		return Result{Text: "hello", Confidence: 91}, nil
	})

	t.Run("deadline", func(t *testing.T) {
		start := time.Now()
		_, err := WithTimeout(slow, 20*time.Millisecond).Recognize(context.Background(), nil)
		if !errors.Is(err, errors.ErrRecognitionFailure) {
			t.Fatalf("expected RECOGNITION_FAILURE, got %v", err)
		}
		if time.Since(start) > 2*time.Second {
			t.Error("timeout did not bound the wait")
		}
	})

	t.Run("caller cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()
		_, err := WithTimeout(slow, time.Minute).Recognize(ctx, nil)
		if !errors.Is(err, errors.ErrRecognitionFailure) {
			t.Fatalf("expected RECOGNITION_FAILURE, got %v", err)
		}
	})

	t.Run("completes in time", func(t *testing.T) {
		res, err := WithTimeout(fast, time.Second).Recognize(context.Background(), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Text != "hello" || res.Confidence != 91 {
			t.Errorf("result: got %+v", res)
		}
	})

	t.Run("zero disables", func(t *testing.T) {
		r := WithTimeout(fast, 0)
		if _, ok := r.(RecognizerFunc); !ok {
			t.Errorf("WithTimeout(r, 0) should return r unchanged, got %T", r)
		}
	})
}

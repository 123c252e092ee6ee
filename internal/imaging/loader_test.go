package imaging

import (
	"bytes"
	"image/color"
	"image/jpeg"
	"strings"
	"testing"
)

func TestDecode(t *testing.T) {
	data, err := EncodePNG(createPatternImage(40, 40))
	if err != nil {
		t.Fatalf("EncodePNG failed: %v", err)
	}

	img, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	r, g, b := rgb8(img.At(30, 5))
	if r != 0 || g != 255 || b != 0 {
		t.Errorf("top-right color: got (%d,%d,%d), want green", r, g, b)
	}
}

func TestDecode_DataURL(t *testing.T) {
	data, err := EncodePNG(createInMemoryImage(10, 12, color.White))
	if err != nil {
		t.Fatalf("EncodePNG failed: %v", err)
	}

	url := DataURL(data)
	if !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Fatalf("DataURL prefix: got %q", url[:30])
	}

	img, err := Decode([]byte(url))
	if err != nil {
		t.Fatalf("Decode data URL failed: %v", err)
	}
	if img.Bounds().Dx() != 10 || img.Bounds().Dy() != 12 {
		t.Errorf("dimensions: got %v", img.Bounds())
	}
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"not an image", []byte("this is not an image")},
		{"data URL without base64", []byte("data:image/png,abc")},
		{"data URL bad payload", []byte("data:image/png;base64,!!!")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.data); err == nil {
				t.Error("Decode should fail")
			}
		})
	}
}

func TestInfo_FormatDetection(t *testing.T) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, createInMemoryImage(30, 20, color.Black), nil); err != nil {
		t.Fatalf("jpeg.Encode failed: %v", err)
	}

	info, err := Info(buf.Bytes())
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if info.Format != "jpeg" {
		t.Errorf("Format: got %q, want jpeg", info.Format)
	}
	if info.Width != 30 || info.Height != 20 {
		t.Errorf("dimensions: got %dx%d, want 30x20", info.Width, info.Height)
	}
}

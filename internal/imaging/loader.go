package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"strings"
)

// ImageInfo describes an encoded image payload.
type ImageInfo struct {
	// Width is the image width in pixels.
	Width int `json:"width"`

	// Height is the image height in pixels.
	Height int `json:"height"`

	// Format is the decoder name reported by image.DecodeConfig ("png", "jpeg", "gif").
	Format string `json:"format"`

	// SizeBytes is the encoded payload size.
	SizeBytes int `json:"size_bytes"`
}

// Decode decodes an encoded image payload.
//
// PNG, JPEG and GIF are supported. Payloads written as data URLs
// ("data:image/png;base64,...") are accepted as well.
func Decode(data []byte) (image.Image, error) {
	raw, err := Payload(data)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// Info reads dimensions and format without decoding pixel data.
func Info(data []byte) (*ImageInfo, error) {
	raw, err := Payload(data)
	if err != nil {
		return nil, err
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to read image header: %w", err)
	}
	return &ImageInfo{
		Width:     cfg.Width,
		Height:    cfg.Height,
		Format:    format,
		SizeBytes: len(raw),
	}, nil
}

// DataURL renders a PNG payload as a data URL.
func DataURL(pngData []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngData)
}

// Payload returns the raw encoded bytes of data, stripping a data-URL
// envelope when present.
func Payload(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image payload")
	}
	s := string(data)
	if !strings.HasPrefix(s, "data:") {
		return data, nil
	}
	comma := strings.IndexByte(s, ',')
	if comma < 0 || !strings.Contains(s[:comma], ";base64") {
		return nil, fmt.Errorf("unsupported data URL")
	}
	raw, err := base64.StdEncoding.DecodeString(s[comma+1:])
	if err != nil {
		return nil, fmt.Errorf("invalid data URL payload: %w", err)
	}
	return raw, nil
}

package ocr

import (
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/effect"
	"github.com/otiai10/gosseract/v2"

	"github.com/ironsheep/snaptext/internal/detection"
	"github.com/ironsheep/snaptext/internal/errors"
	"github.com/ironsheep/snaptext/internal/imaging"
)

// DefaultLanguage is the Tesseract language used when none is configured.
const DefaultLanguage = "eng"

// DefaultBlankDensity is the edge density below which a capture is treated
// as blank and never sent to Tesseract.
const DefaultBlankDensity = 0.002

// DefaultMinSide is the shorter-side length small captures are upscaled to
// before recognition.
const DefaultMinSide = 300

// Tesseract recognizes text with a local Tesseract installation.
//
// A fresh gosseract client is created per call, so a single Tesseract value
// is safe for concurrent use.
type Tesseract struct {
	// Language is the Tesseract language code ("eng", "deu+eng", ...).
	Language string

	// TessdataPrefix overrides the traineddata directory. Empty uses the
	// system default (TESSDATA_PREFIX or the compiled-in path).
	TessdataPrefix string

	// MinSide is the upscale target for small captures. Zero uses
	// DefaultMinSide; a negative value disables upscaling.
	MinSide int

	// Contrast is the bild contrast change applied after grayscale
	// conversion, in [-1, 1]. Zero leaves contrast alone.
	Contrast float64

	// BlankDensity rejects near-uniform captures up front. Zero uses
	// DefaultBlankDensity; a negative value disables the check.
	BlankDensity float64

	// TrimToText crops the capture to its text-like areas before
	// recognition.
	TrimToText bool
}

// NewTesseract returns a recognizer for the given language with the default
// preprocessing.
func NewTesseract(language, tessdataPrefix string) *Tesseract {
	if language == "" {
		language = DefaultLanguage
	}
	return &Tesseract{
		Language:       language,
		TessdataPrefix: tessdataPrefix,
		Contrast:       0.2,
		TrimToText:     true,
	}
}

// Recognize decodes the payload, preprocesses it and runs Tesseract in
// single-uniform-block mode.
//
// Confidence is the mean of the per-word confidences. If word boxes are
// unavailable the confidence is zero and the text is still returned.
func (t *Tesseract) Recognize(ctx context.Context, data []byte) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, errors.NewRecognitionFailure("recognition cancelled", err)
	}
	start := time.Now()

	img, err := imaging.Decode(data)
	if err != nil {
		return Result{}, errors.NewRecognitionFailure("unreadable image", err)
	}
	if d := t.blankDensity(); d > 0 && detection.Blank(img, d) {
		return Result{}, errors.NewRecognitionFailure("no text recognized: image is blank", nil)
	}
	if t.TrimToText {
		img = TrimToText(img)
	}
	prepared, err := imaging.EncodePNG(Preprocess(img, t.minSide(), t.Contrast))
	if err != nil {
		return Result{}, errors.NewRecognitionFailure("preprocessing failed", err)
	}

	client := gosseract.NewClient()
	defer client.Close()

	if t.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(t.TessdataPrefix); err != nil {
			return Result{}, errors.NewRecognitionFailure("failed to set tessdata path", err)
		}
	}
	lang := t.Language
	if lang == "" {
		lang = DefaultLanguage
	}
	if err := client.SetLanguage(strings.Split(lang, "+")...); err != nil {
		return Result{}, errors.NewRecognitionFailure("failed to set language", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		return Result{}, errors.NewRecognitionFailure("failed to set page segmentation", err)
	}
	if err := client.SetImageFromBytes(prepared); err != nil {
		return Result{}, errors.NewRecognitionFailure("failed to set image", err)
	}

	text, err := client.Text()
	if err != nil {
		return Result{}, errors.NewRecognitionFailure("OCR failed", err)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, errors.NewRecognitionFailure("recognition cancelled", err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, errors.NewRecognitionFailure("no text recognized", nil)
	}

	var confs []float64
	if boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD); err == nil {
		for _, box := range boxes {
			if strings.TrimSpace(box.Word) == "" {
				continue
			}
			confs = append(confs, float64(box.Confidence))
		}
	}

	return Result{
		Text:       text,
		Confidence: meanConfidence(confs),
		Duration:   time.Since(start),
	}, nil
}

func (t *Tesseract) minSide() int {
	if t.MinSide == 0 {
		return DefaultMinSide
	}
	return t.MinSide
}

func (t *Tesseract) blankDensity() float64 {
	if t.BlankDensity == 0 {
		return DefaultBlankDensity
	}
	return t.BlankDensity
}

// TrimToText crops img to the padded union of its text-like regions. Images
// with no detectable text region are returned unchanged.
func TrimToText(img image.Image) image.Image {
	r, ok := detection.TextBounds(img, 0.1, 12)
	if !ok || r == img.Bounds() {
		return img
	}
	return imaging.CropRect(img, r)
}

// Preprocess prepares a capture for recognition: small images are upscaled
// so their shorter side reaches minSide, then converted to grayscale and,
// when contrast is non-zero, contrast-adjusted.
func Preprocess(img image.Image, minSide int, contrast float64) image.Image {
	if minSide > 0 {
		img = imaging.Upscale(img, minSide)
	}
	gray := effect.Grayscale(img)
	if contrast == 0 {
		return gray
	}
	return adjust.Contrast(gray, contrast)
}

// meanConfidence averages word confidences and clamps the result to [0,100].
func meanConfidence(confs []float64) float64 {
	if len(confs) == 0 {
		return 0
	}
	var sum float64
	for _, c := range confs {
		sum += c
	}
	mean := sum / float64(len(confs))
	switch {
	case mean < 0:
		return 0
	case mean > 100:
		return 100
	}
	return mean
}

// Version returns the linked Tesseract version.
func Version() string {
	client := gosseract.NewClient()
	defer client.Close()
	return client.Version()
}

// Info describes the OCR subsystem for diagnostics.
type Info struct {
	Version        string `json:"version"`
	Language       string `json:"language"`
	TessdataPrefix string `json:"tessdata_prefix,omitempty"`
}

// Describe reports the configured engine.
func (t *Tesseract) Describe() Info {
	return Info{
		Version:        Version(),
		Language:       t.Language,
		TessdataPrefix: t.TessdataPrefix,
	}
}

// String implements fmt.Stringer.
func (t *Tesseract) String() string {
	return fmt.Sprintf("tesseract(%s)", t.Language)
}

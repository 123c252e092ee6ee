// Package record defines the screenshot record persisted by the store and the
// viewport rectangle a capture is taken from.
package record

import (
	"crypto/rand"
	"image"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Capture tiers, recorded on each record so the panel can tell a real
// capture from a reconstruction.
const (
	TierNative      = "native"
	TierDOM         = "dom"
	TierPlaceholder = "placeholder"
)

// Origin tells the store who produced a text update.
type Origin string

const (
	OriginOCR  Origin = "ocr"
	OriginUser Origin = "user"
)

// Record is one persisted capture: image, metadata and (optionally) the
// recognized text.
type Record struct {
	ID            string     `json:"id"`
	ImageData     []byte     `json:"imageData"`
	Bounds        Bounds     `json:"bounds"`
	SourceURL     string     `json:"sourceUrl"`
	CapturedAt    time.Time  `json:"capturedAt"`
	CaptureTier   string     `json:"captureTier,omitempty"`
	ExtractedText *string    `json:"extractedText,omitempty"`
	Confidence    *float64   `json:"confidence,omitempty"`
	LastEditedAt  *time.Time `json:"lastEditedAt,omitempty"`
}

// HasText reports whether OCR or the user has produced non-blank text.
func (r Record) HasText() bool {
	return r.ExtractedText != nil && strings.TrimSpace(*r.ExtractedText) != ""
}

// Extracted reports whether the text field has been set at all. A record
// whose text was set (even to blank by a user edit) is not re-queued for OCR.
func (r Record) Extracted() bool {
	return r.ExtractedText != nil
}

// Text returns the extracted text or "".
func (r Record) Text() string {
	if r.ExtractedText == nil {
		return ""
	}
	return *r.ExtractedText
}

// Clone returns a deep copy so mirrors never alias the store's slices.
func (r Record) Clone() Record {
	c := r
	if r.ImageData != nil {
		c.ImageData = append([]byte(nil), r.ImageData...)
	}
	if r.ExtractedText != nil {
		s := *r.ExtractedText
		c.ExtractedText = &s
	}
	if r.Confidence != nil {
		f := *r.Confidence
		c.Confidence = &f
	}
	if r.LastEditedAt != nil {
		ts := *r.LastEditedAt
		c.LastEditedAt = &ts
	}
	return c
}

// CloneAll deep-copies a slice of records.
func CloneAll(in []Record) []Record {
	if in == nil {
		return nil
	}
	out := make([]Record, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}

// TextUpdate is the payload of updateRecordText.
type TextUpdate struct {
	ID         string   `json:"id"`
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
	Origin     Origin   `json:"origin,omitempty"`
}

// Hostname returns the host part of the record's source URL.
func (r Record) Hostname() string {
	return Hostname(r.SourceURL)
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a new ULID: creation time plus a random tie-breaker,
// monotonic within this process.
func NewID(now time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), entropy).String()
}

// ValidID reports whether id parses as a ULID.
func ValidID(id string) bool {
	_, err := ulid.ParseStrict(id)
	return err == nil
}

// IDTime extracts the creation time embedded in a ULID.
func IDTime(id string) (time.Time, bool) {
	u, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(u.Time()), true
}

// Rect converts bounds to an image rectangle.
func (b Bounds) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

package ocr

import (
	"context"
	"time"

	"github.com/ironsheep/snaptext/internal/errors"
)

// Result is the outcome of one recognition pass.
type Result struct {
	// Text is the recognized text, trimmed of surrounding whitespace.
	Text string `json:"text"`

	// Confidence is the mean word confidence reported by the engine, 0-100.
	Confidence float64 `json:"confidence"`

	// Duration is how long the engine took.
	Duration time.Duration `json:"duration"`
}

// Recognizer extracts text from an encoded image.
//
// Implementations must honour ctx: a cancelled context returns a
// RECOGNITION_FAILURE promptly. A blank result is also a failure, so callers
// never persist empty text.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (Result, error)
}

// RecognizerFunc adapts a function to the Recognizer interface.
type RecognizerFunc func(ctx context.Context, image []byte) (Result, error)

// Recognize calls f.
func (f RecognizerFunc) Recognize(ctx context.Context, image []byte) (Result, error) {
	return f(ctx, image)
}

// WithTimeout bounds every Recognize call on r to d. The underlying engine
// call keeps running in its goroutine after the deadline; its result is
// discarded.
func WithTimeout(r Recognizer, d time.Duration) Recognizer {
	if d <= 0 {
		return r
	}
	return &timeoutRecognizer{next: r, timeout: d}
}

type timeoutRecognizer struct {
	next    Recognizer
	timeout time.Duration
}

type outcome struct {
	res Result
	err error
}

func (t *timeoutRecognizer) Recognize(ctx context.Context, image []byte) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		res, err := t.next.Recognize(ctx, image)
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		if o.err != nil && ctx.Err() != nil {
			return Result{}, t.abandoned(ctx)
		}
		return o.res, o.err
	case <-ctx.Done():
		return Result{}, t.abandoned(ctx)
	}
}

func (t *timeoutRecognizer) abandoned(ctx context.Context) error {
	if ctx.Err() == context.DeadlineExceeded {
		return errors.NewRecognitionFailure("recognition timed out after "+t.timeout.String(), ctx.Err())
	}
	return errors.NewRecognitionFailure("recognition cancelled", ctx.Err())
}

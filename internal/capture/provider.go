// Package capture turns a viewport selection into an image.
//
// A Chain tries its providers in order (native frame, DOM reconstruction,
// synthetic placeholder) and returns the first image produced. Provider
// failures, including panics, are recorded and never surface to the
// caller: Capture always returns an image.
package capture

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log/slog"
	"time"

	"github.com/ironsheep/snaptext/internal/errors"
	"github.com/ironsheep/snaptext/internal/imaging"
	"github.com/ironsheep/snaptext/internal/record"
)

// maxCanvas bounds synthetic renders so a bogus selection cannot allocate
// an unbounded image.
const maxCanvas = 8192

// Request describes one capture.
type Request struct {
	// ID is the record id minted for this capture. Placeholders print it.
	ID string

	Bounds    record.Bounds
	SourceURL string

	// DevicePixelRatio maps CSS pixels to frame pixels. Zero means 1.
	DevicePixelRatio float64

	CapturedAt time.Time
}

// Provider is one capture tier.
type Provider interface {
	Name() string
	Attempt(ctx context.Context, req Request) (image.Image, error)
}

// Failure records why a tier was skipped.
type Failure struct {
	Tier  string `json:"tier"`
	Error string `json:"error"`
}

// Result is the output of a chain run.
type Result struct {
	Image    image.Image
	PNG      []byte
	Tier     string
	Attempts []Failure
}

// Chain runs providers in order until one succeeds.
type Chain struct {
	providers []Provider
	logger    *slog.Logger
}

// NewChain builds a chain over the given providers.
func NewChain(logger *slog.Logger, providers ...Provider) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{providers: providers, logger: logger}
}

// DefaultChain wires the three standard tiers. Either source may be nil,
// in which case that tier always falls through.
func DefaultChain(logger *slog.Logger, frames FrameGrabber, elements ElementSource) *Chain {
	return NewChain(logger,
		&NativeProvider{Grabber: frames},
		&DOMProvider{Source: elements},
		&PlaceholderProvider{},
	)
}

// Tiers lists provider names in attempt order.
func (c *Chain) Tiers() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

// Capture runs the chain. It never fails; when every provider fails it
// returns a solid gray image sized to the selection.
func (c *Chain) Capture(ctx context.Context, req Request) Result {
	if req.CapturedAt.IsZero() {
		req.CapturedAt = time.Now()
	}
	var res Result
	for _, p := range c.providers {
		img, err := c.attempt(ctx, p, req)
		if err == nil {
			var data []byte
			data, err = imaging.EncodePNG(img)
			if err == nil {
				res.Image, res.PNG, res.Tier = img, data, p.Name()
				c.logger.Debug("capture: tier succeeded", "tier", p.Name(), "id", req.ID,
					"width", img.Bounds().Dx(), "height", img.Bounds().Dy())
				return res
			}
		}
		res.Attempts = append(res.Attempts, Failure{Tier: p.Name(), Error: err.Error()})
		c.logger.Info("capture: tier unavailable", "tier", p.Name(), "id", req.ID, "error", err)
	}

	img := solid(req.Bounds, color.Gray{Y: 128})
	data, _ := imaging.EncodePNG(img)
	res.Image, res.PNG, res.Tier = img, data, record.TierPlaceholder
	c.logger.Warn("capture: all tiers failed", "id", req.ID, "attempts", len(res.Attempts))
	return res
}

func (c *Chain) attempt(ctx context.Context, p Provider, req Request) (img image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			img = nil
			err = errors.NewCaptureUnavailable(p.Name(), fmt.Errorf("panic: %v", r))
		}
	}()
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCaptureUnavailable(p.Name(), err)
	}
	img, err = p.Attempt(ctx, req)
	if err != nil {
		return nil, err
	}
	if img == nil || img.Bounds().Empty() {
		return nil, errors.NewCaptureUnavailable(p.Name(), fmt.Errorf("empty image"))
	}
	return img, nil
}

// canvasSize clamps selection dimensions to [1, maxCanvas].
func canvasSize(b record.Bounds) (int, int) {
	return min(max(b.Width, 1), maxCanvas), min(max(b.Height, 1), maxCanvas)
}

func solid(b record.Bounds, c color.Color) *image.RGBA {
	w, h := canvasSize(b)
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

// annotation is the footer shared by the synthetic tiers.
func annotation(req Request) []string {
	host := record.Hostname(req.SourceURL)
	if host == "" {
		host = "unknown source"
	}
	return []string{
		fmt.Sprintf("%s  %dx%d", host, req.Bounds.Width, req.Bounds.Height),
		req.CapturedAt.Format("2006-01-02 15:04:05"),
	}
}

// PageInfo describes the page a selection was made on.
type PageInfo struct {
	URL              string  `json:"url"`
	DevicePixelRatio float64 `json:"devicePixelRatio"`
}

// Page is the privileged context a capture runs against.
type Page interface {
	FrameGrabber
	ElementSource
	Info(ctx context.Context) (PageInfo, error)
}

// Package coordinator is the long-lived context that owns the store.
//
// It serializes local writes, runs captures against the privileged page,
// drives the region selector and broadcasts storeChanged after every
// committed mutation, including ones made by other processes sharing the
// database.
package coordinator

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/ironsheep/snaptext/internal/capture"
	"github.com/ironsheep/snaptext/internal/errors"
	"github.com/ironsheep/snaptext/internal/imaging"
	"github.com/ironsheep/snaptext/internal/notify"
	"github.com/ironsheep/snaptext/internal/record"
	"github.com/ironsheep/snaptext/internal/selector"
	"github.com/ironsheep/snaptext/internal/store"
)

// Announcer tells other hosts that the store moved.
type Announcer interface {
	Announce(ctx context.Context, version int64) error
}

// Options wires a Coordinator. Store is required; the rest default to
// working stand-ins.
type Options struct {
	Store    *store.Store
	Hub      *notify.Hub
	Chain    *capture.Chain
	Page     capture.Page
	Selector *selector.Selector
	Logger   *slog.Logger

	// Announcer, when set, is told about every local commit.
	Announcer Announcer

	Now func() time.Time
}

// Coordinator is safe for concurrent use.
type Coordinator struct {
	store    *store.Store
	hub      *notify.Hub
	chain    *capture.Chain
	page     capture.Page
	selector *selector.Selector
	announce Announcer
	logger   *slog.Logger
	now      func() time.Time

	// writeMu orders local mutations and their broadcasts.
	writeMu sync.Mutex

	pubMu     sync.Mutex
	published int64
}

// New builds a coordinator.
func New(opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Hub == nil {
		opts.Hub = notify.NewHub()
	}
	if opts.Selector == nil {
		opts.Selector = selector.New()
	}
	if opts.Chain == nil {
		if opts.Page != nil {
			opts.Chain = capture.DefaultChain(opts.Logger, opts.Page, opts.Page)
		} else {
			opts.Chain = capture.DefaultChain(opts.Logger, nil, nil)
		}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coordinator{
		store:    opts.Store,
		hub:      opts.Hub,
		chain:    opts.Chain,
		page:     opts.Page,
		selector: opts.Selector,
		announce: opts.Announcer,
		logger:   opts.Logger,
		now:      opts.Now,
	}
}

// Hub returns the broadcast hub.
func (c *Coordinator) Hub() *notify.Hub { return c.hub }

// Subscribe registers a storeChanged receiver.
func (c *Coordinator) Subscribe(buf int) (<-chan notify.Event, func()) {
	return c.hub.Subscribe(buf)
}

// ListRecords returns the committed records, newest first.
func (c *Coordinator) ListRecords(ctx context.Context) ([]record.Record, error) {
	return c.store.List(ctx)
}

// GetRecord returns one record or RECORD_NOT_FOUND.
func (c *Coordinator) GetRecord(ctx context.Context, id string) (record.Record, error) {
	return c.store.Get(ctx, id)
}

// AppendRecord stores a record produced elsewhere.
func (c *Coordinator) AppendRecord(ctx context.Context, rec record.Record) (store.AppendResult, error) {
	if len(rec.ImageData) == 0 {
		return store.AppendResult{}, errors.NewInvalidRequest("imageData is required")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	res, err := c.store.Append(ctx, rec)
	if err != nil {
		return store.AppendResult{}, err
	}
	c.logger.Info("coordinator: record appended", "id", res.ID, "evicted", len(res.Evicted))
	c.broadcast(ctx)
	return res, nil
}

// UpdateRecordText merges text into a record. An absent id acks with false.
func (c *Coordinator) UpdateRecordText(ctx context.Context, u record.TextUpdate) (bool, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	changed, err := c.store.UpdateText(ctx, u)
	if err != nil {
		return false, err
	}
	if changed {
		c.broadcast(ctx)
	}
	return changed, nil
}

// DeleteRecord removes a record. An absent id acks with false.
func (c *Coordinator) DeleteRecord(ctx context.Context, id string) (bool, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deleted, err := c.store.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if deleted {
		c.logger.Info("coordinator: record deleted", "id", id)
		c.broadcast(ctx)
	}
	return deleted, nil
}

// ClearRecords removes every record.
func (c *Coordinator) ClearRecords(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.store.Clear(ctx); err != nil {
		return err
	}
	c.broadcast(ctx)
	return nil
}

// FrameResult is a full-viewport (or cropped) raster.
type FrameResult struct {
	PNG    []byte `json:"image"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// CaptureFullFrame asks the privileged page for its viewport. With bounds
// the frame is cropped at the page's device pixel ratio.
func (c *Coordinator) CaptureFullFrame(ctx context.Context, bounds *record.Bounds) (FrameResult, error) {
	if c.page == nil {
		return FrameResult{}, errors.NewCaptureUnavailable(record.TierNative, fmt.Errorf("no capture source configured"))
	}
	frame, err := c.page.GrabFrame(ctx)
	if err != nil {
		return FrameResult{}, errors.NewCaptureUnavailable(record.TierNative, err)
	}
	img := frame
	if bounds != nil {
		info := c.pageInfo(ctx)
		img, err = imaging.CropViewport(frame, *bounds, info.DevicePixelRatio)
		if err != nil {
			return FrameResult{}, errors.NewInvalidRequest(err.Error())
		}
	}
	data, err := imaging.EncodePNG(img)
	if err != nil {
		return FrameResult{}, errors.NewInternal(err)
	}
	return FrameResult{PNG: data, Width: img.Bounds().Dx(), Height: img.Bounds().Dy()}, nil
}

// CaptureResult reports a stored capture.
type CaptureResult struct {
	ID       string            `json:"id"`
	Tier     string            `json:"tier"`
	Evicted  []string          `json:"evicted,omitempty"`
	Attempts []capture.Failure `json:"attempts,omitempty"`
}

// CaptureRegion captures bounds through the tier chain and stores the
// result. Selections under the minimum size are rejected before capture.
func (c *Coordinator) CaptureRegion(ctx context.Context, b record.Bounds) (CaptureResult, error) {
	if err := b.Validate(); err != nil {
		return CaptureResult{}, err
	}
	info := c.pageInfo(ctx)
	now := c.now()
	req := capture.Request{
		ID:               record.NewID(now),
		Bounds:           b,
		SourceURL:        info.URL,
		DevicePixelRatio: info.DevicePixelRatio,
		CapturedAt:       now,
	}
	res := c.chain.Capture(ctx, req)

	app, err := c.AppendRecord(ctx, record.Record{
		ID:          req.ID,
		ImageData:   res.PNG,
		Bounds:      b,
		SourceURL:   req.SourceURL,
		CapturedAt:  now,
		CaptureTier: res.Tier,
	})
	if err != nil {
		return CaptureResult{}, err
	}
	return CaptureResult{ID: app.ID, Tier: res.Tier, Evicted: app.Evicted, Attempts: res.Attempts}, nil
}

func (c *Coordinator) pageInfo(ctx context.Context) capture.PageInfo {
	info := capture.PageInfo{DevicePixelRatio: 1}
	if c.page == nil {
		return info
	}
	got, err := c.page.Info(ctx)
	if err != nil {
		c.logger.Warn("coordinator: page info unavailable", "error", err)
		return info
	}
	if got.DevicePixelRatio <= 0 {
		got.DevicePixelRatio = 1
	}
	return got
}

// Pointer phases accepted by SelectionPointer.
const (
	PhaseDown = "down"
	PhaseMove = "move"
	PhaseUp   = "up"
)

// SelectionResult is the outcome of a pointer event.
type SelectionResult struct {
	Status  selector.Status `json:"status"`
	Capture *CaptureResult  `json:"capture,omitempty"`
}

// SelectionStart arms a new selection session.
func (c *Coordinator) SelectionStart() selector.Status {
	c.selector.Start()
	return c.selector.Status()
}

// SelectionPointer feeds a pointer event to the selector. A pointer-up that
// yields a valid selection triggers CaptureRegion.
func (c *Coordinator) SelectionPointer(ctx context.Context, phase string, p image.Point) (SelectionResult, error) {
	switch phase {
	case PhaseDown:
		if err := c.selector.PointerDown(p); err != nil {
			return SelectionResult{}, err
		}
	case PhaseMove:
		if _, err := c.selector.PointerMove(p); err != nil {
			return SelectionResult{}, err
		}
	case PhaseUp:
		b, err := c.selector.PointerUp(p)
		if err != nil {
			return SelectionResult{Status: c.selector.Status()}, err
		}
		res, err := c.CaptureRegion(ctx, b)
		if err != nil {
			return SelectionResult{Status: c.selector.Status()}, err
		}
		return SelectionResult{Status: c.selector.Status(), Capture: &res}, nil
	default:
		return SelectionResult{}, errors.NewInvalidRequest(fmt.Sprintf("unknown pointer phase %q", phase))
	}
	return SelectionResult{Status: c.selector.Status()}, nil
}

// SelectionCancel aborts the active selection.
func (c *Coordinator) SelectionCancel() bool {
	return c.selector.Cancel()
}

// Refresh publishes the committed state if it is newer than the last
// broadcast. Watchers call it when another process writes.
func (c *Coordinator) Refresh(ctx context.Context) error {
	recs, ver, err := c.store.Snapshot(ctx)
	if err != nil {
		return err
	}
	c.publish(recs, ver)
	return nil
}

// broadcast publishes after a local commit. Failures are logged: the
// write itself already succeeded.
func (c *Coordinator) broadcast(ctx context.Context) {
	recs, ver, err := c.store.Snapshot(ctx)
	if err != nil {
		c.logger.Warn("coordinator: broadcast skipped", "error", err)
		return
	}
	if !c.publish(recs, ver) {
		return
	}
	if c.announce != nil {
		if err := c.announce.Announce(ctx, ver); err != nil {
			c.logger.Warn("coordinator: announce failed", "version", ver, "error", err)
		}
	}
}

func (c *Coordinator) publish(recs []record.Record, ver int64) bool {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	if ver <= c.published {
		return false
	}
	c.published = ver
	n := c.hub.Publish(notify.Event{Records: recs, Version: ver})
	c.logger.Debug("coordinator: storeChanged", "version", ver, "records", len(recs), "listeners", n)
	return true
}

// Watch polls the store for writes by other processes until ctx ends.
func (c *Coordinator) Watch(ctx context.Context, interval time.Duration) {
	w := store.NewWatcher(c.store, interval, c.logger)
	w.Run(ctx, func(int64) {
		if err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
			c.logger.Warn("coordinator: refresh failed", "error", err)
		}
	})
}

// Package browser adapts privileged capture sources to the capture chain.
//
// RodPage drives a Chrome tab over the DevTools protocol (go-rod) and
// provides full-viewport frames, leaf-element geometry and the page's
// device pixel ratio. ScreenPage grabs the local display instead and has no
// document to reconstruct from.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/ironsheep/snaptext/internal/capture"
	"github.com/ironsheep/snaptext/internal/imaging"
)

// Options configures a browser connection.
type Options struct {
	// ControlURL is the DevTools websocket of a running Chrome. Empty
	// launches a local headless Chrome.
	ControlURL string

	// PageURL is opened in a new tab. Empty attaches to the first existing
	// tab (or a blank one).
	PageURL string

	// NavigateTimeout bounds the initial navigation. Zero means 30s.
	NavigateTimeout time.Duration

	Logger *slog.Logger
}

// RodPage is a Chrome tab used as the privileged capture context.
type RodPage struct {
	mu      sync.Mutex
	browser *rod.Browser
	page    *rod.Page
	lnch    *launcher.Launcher
	logger  *slog.Logger
}

var _ capture.Page = (*RodPage)(nil)

// Connect attaches to (or launches) Chrome and selects a tab.
func Connect(ctx context.Context, opts Options) (*RodPage, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	p := &RodPage{logger: log}
	wsURL := opts.ControlURL
	if wsURL == "" {
		l := launcher.New().Headless(true)
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		p.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL)
	} else {
		log.Info("browser: connecting to remote", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		p.cleanup()
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	p.browser = b

	page, err := p.selectPage(ctx, opts)
	if err != nil {
		p.cleanup()
		return nil, err
	}
	p.page = page
	return p, nil
}

func (p *RodPage) selectPage(ctx context.Context, opts Options) (*rod.Page, error) {
	if opts.PageURL == "" {
		pages, err := p.browser.Pages()
		if err == nil && len(pages) > 0 {
			return pages.First(), nil
		}
		page, err := p.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
		if err != nil {
			return nil, fmt.Errorf("browser: create tab: %w", err)
		}
		return page, nil
	}

	page, err := p.browser.Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	timeout := opts.NavigateTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(opts.PageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", opts.PageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		p.logger.Warn("browser: wait load timeout", "url", opts.PageURL, "error", err)
	}
	return page, nil
}

// GrabFrame screenshots the visible viewport in device pixels.
func (p *RodPage) GrabFrame(ctx context.Context) (image.Image, error) {
	page, err := p.current()
	if err != nil {
		return nil, err
	}
	data, err := page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("browser: screenshot: %w", err)
	}
	img, err := imaging.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("browser: screenshot: %w", err)
	}
	return img, nil
}

const infoScript = `() => JSON.stringify({
	url: location.href,
	devicePixelRatio: window.devicePixelRatio || 1
})`

// Info reports the tab's URL and device pixel ratio.
func (p *RodPage) Info(ctx context.Context) (capture.PageInfo, error) {
	page, err := p.current()
	if err != nil {
		return capture.PageInfo{}, err
	}
	res, err := page.Context(ctx).Eval(infoScript)
	if err != nil {
		return capture.PageInfo{}, fmt.Errorf("browser: page info: %w", err)
	}
	var info capture.PageInfo
	if err := json.Unmarshal([]byte(res.Value.Str()), &info); err != nil {
		return capture.PageInfo{}, fmt.Errorf("browser: decode page info: %w", err)
	}
	if info.DevicePixelRatio <= 0 {
		info.DevicePixelRatio = 1
	}
	return info, nil
}

// leafScript collects visible elements without element children, in
// document order, with their viewport rectangles.
const leafScript = `() => {
	const out = [];
	const all = document.body ? document.body.querySelectorAll('*') : [];
	for (const el of all) {
		if (el.children.length !== 0) continue;
		const tag = el.tagName;
		if (tag === 'SCRIPT' || tag === 'STYLE' || tag === 'NOSCRIPT') continue;
		const text = (el.innerText || el.textContent || '').trim();
		if (!text) continue;
		const r = el.getBoundingClientRect();
		if (r.width === 0 || r.height === 0) continue;
		out.push({text: text, left: r.left, top: r.top, right: r.right, bottom: r.bottom});
		if (out.length >= 5000) break;
	}
	return JSON.stringify(out);
}`

// LeafElements enumerates text-bearing leaf elements.
func (p *RodPage) LeafElements(ctx context.Context) ([]capture.Element, error) {
	page, err := p.current()
	if err != nil {
		return nil, err
	}
	res, err := page.Context(ctx).Eval(leafScript)
	if err != nil {
		return nil, fmt.Errorf("browser: leaf elements: %w", err)
	}
	var elems []capture.Element
	if err := json.Unmarshal([]byte(res.Value.Str()), &elems); err != nil {
		return nil, fmt.Errorf("browser: decode leaf elements: %w", err)
	}
	return elems, nil
}

func (p *RodPage) current() (*rod.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.page == nil {
		return nil, fmt.Errorf("browser: no active tab")
	}
	return p.page, nil
}

// Close detaches from the tab and stops a launched Chrome.
func (p *RodPage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.page = nil
	p.cleanup()
	return nil
}

func (p *RodPage) cleanup() {
	if p.browser != nil {
		p.browser.Close()
		p.browser = nil
	}
	if p.lnch != nil {
		p.lnch.Cleanup()
		p.lnch = nil
	}
}

// Package panel implements the review panel: a local mirror of the store
// that shows each record's text, lets the user edit it, and runs OCR for
// records that have none yet.
//
// # Edit States
//
// Each record is in one of three states:
//
//	Display     showing the stored text
//	Editing     the user is typing; local text is authoritative
//	Committing  a debounced save is in flight
//
// Focus or Input moves a record to Editing. Every Input restarts the
// debounce timer; when it fires the text is written with user origin and
// the record returns to Display. Input that arrives during the write is
// saved after another debounce period, and a failed write is retried the
// same way. Blur commits at once; a record that was focused but never
// edited returns to Display without writing.
//
// While a record is Editing or Committing, storeChanged events refresh its
// metadata but never its displayed text.
//
// # OCR
//
// OCR is launched only for records whose text was never set, at most once
// per record per Load, with at most Concurrency calls in flight. A failed or
// blank recognition leaves the text unset so the next Load retries it.
package panel

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ironsheep/snaptext/internal/errors"
	"github.com/ironsheep/snaptext/internal/notify"
	"github.com/ironsheep/snaptext/internal/ocr"
	"github.com/ironsheep/snaptext/internal/record"
)

// DefaultDebounce is the pause after the last keystroke before a save.
const DefaultDebounce = 500 * time.Millisecond

// Client is the panel's view of the coordinator.
type Client interface {
	ListRecords(ctx context.Context) ([]record.Record, error)
	UpdateRecordText(ctx context.Context, u record.TextUpdate) (bool, error)
	DeleteRecord(ctx context.Context, id string) (bool, error)
	ClearRecords(ctx context.Context) error
	Subscribe(buf int) (<-chan notify.Event, func())
}

// State is a record's edit state.
type State int

const (
	Display State = iota
	Editing
	Committing
)

func (s State) String() string {
	switch s {
	case Display:
		return "display"
	case Editing:
		return "editing"
	case Committing:
		return "committing"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Item is one row of the panel.
type Item struct {
	Number      int       `json:"number"`
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	State       State     `json:"state"`
	Loading     bool      `json:"loading"`
	Host        string    `json:"host"`
	SourceURL   string    `json:"sourceUrl"`
	CapturedAt  time.Time `json:"capturedAt"`
	CaptureTier string    `json:"captureTier,omitempty"`
	Confidence  *float64  `json:"confidence,omitempty"`
}

// Options configures a Panel. Client is required.
type Options struct {
	Client Client

	// Recognizer runs OCR. A nil Recognizer disables OCR.
	Recognizer ocr.Recognizer

	Clock       Clock
	Debounce    time.Duration
	OCRTimeout  time.Duration
	Concurrency int
	Logger      *slog.Logger
}

type entry struct {
	rec   record.Record
	state State
	text  string
	timer Timer

	// gen counts inputs; committed is the last gen written to the store.
	gen       uint64
	committed uint64

	// flush asks an in-flight commit to write newer input immediately.
	flush bool
}

// Panel is safe for concurrent use.
type Panel struct {
	client   Client
	ocr      ocr.Recognizer
	clock    Clock
	debounce time.Duration
	logger   *slog.Logger
	sem      *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	order     []string
	items     map[string]*entry
	pending   map[string]bool
	attempted map[string]bool
	status    string
}

// New builds a panel. Call Load to populate it.
func New(opts Options) *Panel {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	rec := opts.Recognizer
	if rec != nil {
		rec = ocr.WithTimeout(rec, opts.OCRTimeout)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Panel{
		client:    opts.Client,
		ocr:       rec,
		clock:     opts.Clock,
		debounce:  opts.Debounce,
		logger:    opts.Logger,
		sem:       semaphore.NewWeighted(int64(opts.Concurrency)),
		ctx:       ctx,
		cancel:    cancel,
		items:     make(map[string]*entry),
		pending:   make(map[string]bool),
		attempted: make(map[string]bool),
	}
}

// Load fetches the record list, rebuilds the mirror and starts OCR for
// records without text. Records whose OCR failed earlier are retried.
func (p *Panel) Load(ctx context.Context) error {
	recs, err := p.client.ListRecords(ctx)
	if err != nil {
		p.setStatus("Failed to load screenshots")
		return err
	}
	p.mu.Lock()
	p.attempted = make(map[string]bool)
	p.apply(recs)
	todo := p.ocrCandidates()
	p.mu.Unlock()

	p.logger.Debug("panel: loaded", "records", len(recs), "ocr", len(todo))
	p.launch(todo)
	return nil
}

// Run applies storeChanged events until ctx ends or the subscription
// closes.
func (p *Panel) Run(ctx context.Context) error {
	events, unsubscribe := p.client.Subscribe(16)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			p.Apply(ev)
		}
	}
}

// Apply merges one storeChanged event into the mirror.
func (p *Panel) Apply(ev notify.Event) {
	p.mu.Lock()
	p.apply(ev.Records)
	todo := p.ocrCandidates()
	p.mu.Unlock()
	p.launch(todo)
}

// apply rebuilds the mirror from recs. Caller holds p.mu.
func (p *Panel) apply(recs []record.Record) {
	next := make(map[string]*entry, len(recs))
	order := make([]string, 0, len(recs))
	for _, r := range recs {
		e, ok := p.items[r.ID]
		if !ok {
			e = &entry{}
		}
		e.rec = r.Clone()
		if e.state == Display {
			e.text = r.Text()
		}
		next[r.ID] = e
		order = append(order, r.ID)
	}
	for id, e := range p.items {
		if _, ok := next[id]; ok {
			continue
		}
		if e.timer != nil {
			e.timer.Stop()
		}
		if e.state != Display {
			p.logger.Info("panel: record removed while editing", "id", id)
			p.status = "Record no longer exists"
		}
	}
	p.items = next
	p.order = order
}

// ocrCandidates marks and returns records due for OCR. Caller holds p.mu.
func (p *Panel) ocrCandidates() []record.Record {
	if p.ocr == nil {
		return nil
	}
	var out []record.Record
	for _, id := range p.order {
		e := p.items[id]
		if e.rec.Extracted() || p.pending[id] || p.attempted[id] {
			continue
		}
		p.pending[id] = true
		p.attempted[id] = true
		out = append(out, e.rec)
	}
	return out
}

func (p *Panel) launch(recs []record.Record) {
	for _, r := range recs {
		p.wg.Add(1)
		go p.recognize(r)
	}
}

func (p *Panel) recognize(rec record.Record) {
	defer p.wg.Done()
	defer func() {
		p.mu.Lock()
		delete(p.pending, rec.ID)
		p.mu.Unlock()
	}()

	if err := p.sem.Acquire(p.ctx, 1); err != nil {
		return
	}
	res, err := p.ocr.Recognize(p.ctx, rec.ImageData)
	p.sem.Release(1)
	if err == nil && strings.TrimSpace(res.Text) == "" {
		err = errors.NewRecognitionFailure("no text recognized", nil)
	}
	if err != nil {
		p.logger.Warn("panel: ocr failed", "id", rec.ID, "error", err)
		p.setStatus("Text extraction failed")
		return
	}

	conf := res.Confidence
	changed, err := p.client.UpdateRecordText(p.ctx, record.TextUpdate{
		ID:         rec.ID,
		Text:       res.Text,
		Confidence: &conf,
		Origin:     record.OriginOCR,
	})
	if err != nil {
		p.logger.Warn("panel: saving ocr text failed", "id", rec.ID, "error", err)
		p.setStatus("Failed to save extracted text")
		return
	}
	p.logger.Debug("panel: ocr done", "id", rec.ID, "confidence", conf, "duration", res.Duration, "stored", changed)
	if !changed {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.items[rec.ID]
	if !ok || e.rec.Extracted() {
		return
	}
	text := res.Text
	e.rec.ExtractedText = &text
	e.rec.Confidence = &conf
	if e.state == Display {
		e.text = text
	}
}

// Loading reports whether OCR is in flight for id.
func (p *Panel) Loading(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending[id]
}

// WaitOCR blocks until every launched OCR call has finished.
func (p *Panel) WaitOCR() {
	p.wg.Wait()
}

func (p *Panel) lookup(id string) (*entry, error) {
	e, ok := p.items[id]
	if !ok {
		return nil, errors.NewRecordNotFound(id)
	}
	return e, nil
}

// Focus moves a record into Editing.
func (p *Panel) Focus(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, err := p.lookup(id)
	if err != nil {
		return err
	}
	if e.state == Display {
		e.state = Editing
	}
	return nil
}

// Input replaces a record's displayed text and restarts the debounce timer.
func (p *Panel) Input(id, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, err := p.lookup(id)
	if err != nil {
		return err
	}
	// A record being committed stays Committing; the running commit picks
	// up the new text when it finishes.
	if e.state == Display {
		e.state = Editing
	}
	e.text = text
	e.gen++
	p.armLocked(id, e)
	return nil
}

// armLocked (re)starts the debounce timer for e. Caller holds p.mu.
func (p *Panel) armLocked(id string, e *entry) {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if p.ctx.Err() != nil {
		return
	}
	gen := e.gen
	e.timer = p.clock.AfterFunc(p.debounce, func() {
		if err := p.commit(p.ctx, id, gen); err != nil && p.ctx.Err() == nil {
			p.logger.Warn("panel: save failed", "id", id, "error", err)
		}
	})
}

// Blur commits a record's pending edit immediately. A record with no input
// since its last save returns to Display without a write.
func (p *Panel) Blur(ctx context.Context, id string) error {
	p.mu.Lock()
	e, err := p.lookup(id)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	switch e.state {
	case Committing:
		if e.gen != e.committed {
			e.flush = true
		}
		p.mu.Unlock()
		return nil
	case Editing:
	default:
		p.mu.Unlock()
		return nil
	}
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if e.gen == e.committed {
		e.state = Display
		e.text = e.rec.Text()
		p.mu.Unlock()
		return nil
	}
	gen := e.gen
	p.mu.Unlock()
	return p.commit(ctx, id, gen)
}

// commit writes the text typed up to generation gen. A stale timer whose
// generation was superseded does nothing, as does a timer that fires while
// another write for the record is running.
func (p *Panel) commit(ctx context.Context, id string, gen uint64) error {
	for {
		p.mu.Lock()
		e, ok := p.items[id]
		if !ok || e.gen != gen || e.state != Editing || e.gen == e.committed {
			p.mu.Unlock()
			return nil
		}
		e.state = Committing
		e.flush = false
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
		text := e.text
		p.mu.Unlock()

		changed, err := p.client.UpdateRecordText(ctx, record.TextUpdate{
			ID:     id,
			Text:   text,
			Origin: record.OriginUser,
		})

		p.mu.Lock()
		e, ok = p.items[id]
		if !ok {
			p.status = "Record no longer exists"
			p.mu.Unlock()
			return nil
		}
		if err != nil {
			e.state = Editing
			e.flush = false
			p.status = "Failed to save text"
			p.armLocked(id, e)
			p.mu.Unlock()
			return err
		}
		if !changed {
			// Evicted or deleted by another context before the write landed.
			p.dropLocked(id)
			p.status = "Record no longer exists"
			p.mu.Unlock()
			return nil
		}
		e.rec.ExtractedText = &text
		e.committed = gen
		p.status = "Text saved"
		if e.gen == gen {
			e.state = Display
			e.flush = false
			p.mu.Unlock()
			return nil
		}

		// Input arrived during the write.
		e.state = Editing
		if !e.flush {
			p.armLocked(id, e)
			p.mu.Unlock()
			return nil
		}
		gen = e.gen
		p.mu.Unlock()
	}
}

func (p *Panel) dropLocked(id string) {
	if e, ok := p.items[id]; ok && e.timer != nil {
		e.timer.Stop()
	}
	delete(p.items, id)
	for i, o := range p.order {
		if o == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// Delete removes a record from the store and the mirror.
func (p *Panel) Delete(ctx context.Context, id string) error {
	if _, err := p.client.DeleteRecord(ctx, id); err != nil {
		p.setStatus("Failed to delete screenshot")
		return err
	}
	p.mu.Lock()
	p.dropLocked(id)
	p.status = "Screenshot deleted"
	p.mu.Unlock()
	return nil
}

// Clear removes every record. It does nothing when the panel is empty.
func (p *Panel) Clear(ctx context.Context) error {
	p.mu.Lock()
	empty := len(p.items) == 0
	p.mu.Unlock()
	if empty {
		p.setStatus("Nothing to clear")
		return nil
	}
	if err := p.client.ClearRecords(ctx); err != nil {
		p.setStatus("Failed to clear screenshots")
		return err
	}
	p.mu.Lock()
	for _, e := range p.items {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	p.items = make(map[string]*entry)
	p.order = nil
	p.status = "All screenshots cleared"
	p.mu.Unlock()
	return nil
}

// SaveText writes a record's displayed text to dir/text-<id>.txt and
// returns the path.
func (p *Panel) SaveText(id, dir string) (string, error) {
	p.mu.Lock()
	e, err := p.lookup(id)
	var text string
	if err == nil {
		text = e.text
	}
	p.mu.Unlock()
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.NewInvalidRequest("record has no text to save")
	}
	path := filepath.Join(dir, "text-"+id+".txt")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		p.setStatus("Failed to save file")
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	p.setStatus("Text saved to " + path)
	return path, nil
}

// Status returns the last user-visible message.
func (p *Panel) Status() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Panel) setStatus(s string) {
	p.mu.Lock()
	p.status = s
	p.mu.Unlock()
}

// Items returns every row, newest first, numbered from 1.
func (p *Panel) Items() []Item {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Item, 0, len(p.order))
	for i, id := range p.order {
		e := p.items[id]
		var conf *float64
		if e.rec.Confidence != nil {
			c := *e.rec.Confidence
			conf = &c
		}
		out = append(out, Item{
			Number:      i + 1,
			ID:          id,
			Text:        e.text,
			State:       e.state,
			Loading:     p.pending[id],
			Host:        e.rec.Hostname(),
			SourceURL:   e.rec.SourceURL,
			CapturedAt:  e.rec.CapturedAt,
			CaptureTier: e.rec.CaptureTier,
			Confidence:  conf,
		})
	}
	return out
}

// WithContent returns the rows whose displayed text is not blank.
func (p *Panel) WithContent() []Item {
	var out []Item
	for _, it := range p.Items() {
		if strings.TrimSpace(it.Text) != "" {
			out = append(out, it)
		}
	}
	return out
}

// Close stops pending timers and cancels in-flight OCR.
func (p *Panel) Close() {
	p.cancel()
	p.mu.Lock()
	for _, e := range p.items {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	p.mu.Unlock()
	p.wg.Wait()
}

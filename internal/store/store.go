// Package store is the bounded, newest-first list of screenshot records.
//
// The whole list lives under one backend key as a JSON array. Every
// mutation reads the list, applies a change, writes it back with a
// compare-and-swap on the key's version, and reads it back to verify. When
// another writer got there first the mutation is re-applied to the fresh
// list, so concurrent writers in different processes converge and a record
// removed by one of them is never written back by another.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ironsheep/snaptext/internal/errors"
	"github.com/ironsheep/snaptext/internal/record"
)

const (
	// Key is the backend key holding the record list.
	Key = "screenshots"

	// DefaultCapacity is the maximum number of records kept.
	DefaultCapacity = 5

	maxAttempts = 8
)

// Options configures a Store.
type Options struct {
	Capacity int
	Key      string
	Logger   *slog.Logger

	// Now stamps ids, capture times and edit times. Defaults to time.Now.
	Now func() time.Time
}

// Store is safe for concurrent use. Writes from one Store are serialized;
// writes from different Stores over the same backend are reconciled by the
// compare-and-swap loop.
type Store struct {
	backend  Backend
	key      string
	capacity int
	logger   *slog.Logger
	now      func() time.Time

	mu sync.Mutex
}

// New wraps a backend.
func New(backend Backend, opts Options) *Store {
	if opts.Capacity < 1 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Key == "" {
		opts.Key = Key
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		backend:  backend,
		key:      opts.Key,
		capacity: opts.Capacity,
		logger:   opts.Logger,
		now:      opts.Now,
	}
}

// Capacity returns the maximum number of records kept.
func (s *Store) Capacity() int { return s.capacity }

// Close closes the backend.
func (s *Store) Close() error { return s.backend.Close() }

// AppendResult reports the outcome of Append.
type AppendResult struct {
	ID      string   `json:"id"`
	Evicted []string `json:"evicted,omitempty"`
	Version int64    `json:"version"`
}

// Append inserts rec at the head of the list and evicts the oldest records
// beyond capacity. An empty ID is assigned; a duplicate ID is rejected.
func (s *Store) Append(ctx context.Context, rec record.Record) (AppendResult, error) {
	now := s.now()
	if rec.ID == "" {
		rec.ID = record.NewID(now)
	}
	if rec.CapturedAt.IsZero() {
		rec.CapturedAt = now
	}
	rec = rec.Clone()

	var evicted []string
	_, ver, _, err := s.mutate(ctx, "append", func(recs []record.Record) ([]record.Record, bool, error) {
		evicted = nil
		for _, r := range recs {
			if r.ID == rec.ID {
				return nil, false, errors.NewInvalidRequest(fmt.Sprintf("record %s already exists", rec.ID))
			}
		}
		next := append([]record.Record{rec}, recs...)
		if len(next) > s.capacity {
			for _, r := range next[s.capacity:] {
				evicted = append(evicted, r.ID)
			}
			next = next[:s.capacity]
		}
		return next, true, nil
	})
	if err != nil {
		return AppendResult{}, err
	}
	s.logger.Debug("store: append", "id", rec.ID, "evicted", evicted, "version", ver)
	return AppendResult{ID: rec.ID, Evicted: evicted, Version: ver}, nil
}

// List returns the committed records, newest first.
func (s *Store) List(ctx context.Context) ([]record.Record, error) {
	recs, _, err := s.Snapshot(ctx)
	return recs, err
}

// Snapshot returns the committed records together with their version.
func (s *Store) Snapshot(ctx context.Context) ([]record.Record, int64, error) {
	recs, ver, err := s.load(ctx)
	if err != nil {
		return nil, 0, err
	}
	if len(recs) > s.capacity {
		recs = recs[:s.capacity]
	}
	return recs, ver, nil
}

// Get returns one record or RECORD_NOT_FOUND.
func (s *Store) Get(ctx context.Context, id string) (record.Record, error) {
	recs, err := s.List(ctx)
	if err != nil {
		return record.Record{}, err
	}
	for _, r := range recs {
		if r.ID == id {
			return r, nil
		}
	}
	return record.Record{}, errors.NewRecordNotFound(id)
}

// UpdateText merges recognized or edited text into a record. It reports
// whether the record changed. An absent id is a no-op, as is OCR output for
// a record that already has text.
func (s *Store) UpdateText(ctx context.Context, u record.TextUpdate) (bool, error) {
	if u.Origin == "" {
		u.Origin = record.OriginUser
	}
	now := s.now()
	_, ver, changed, err := s.mutate(ctx, "update", func(recs []record.Record) ([]record.Record, bool, error) {
		i := indexOf(recs, u.ID)
		if i < 0 {
			return recs, false, nil
		}
		r := &recs[i]
		if u.Origin == record.OriginOCR && r.Extracted() {
			return recs, false, nil
		}
		text := u.Text
		r.ExtractedText = &text
		if u.Confidence != nil {
			c := *u.Confidence
			r.Confidence = &c
		}
		if u.Origin == record.OriginUser {
			t := now
			r.LastEditedAt = &t
		}
		return recs, true, nil
	})
	if err != nil {
		return false, err
	}
	if changed {
		s.logger.Debug("store: update text", "id", u.ID, "origin", u.Origin, "version", ver)
	}
	return changed, nil
}

// Delete removes a record. An absent id is a no-op.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	_, ver, changed, err := s.mutate(ctx, "delete", func(recs []record.Record) ([]record.Record, bool, error) {
		i := indexOf(recs, id)
		if i < 0 {
			return recs, false, nil
		}
		return append(recs[:i], recs[i+1:]...), true, nil
	})
	if err != nil {
		return false, err
	}
	if changed {
		s.logger.Debug("store: delete", "id", id, "version", ver)
	}
	return changed, nil
}

// Clear removes every record.
func (s *Store) Clear(ctx context.Context) error {
	_, ver, changed, err := s.mutate(ctx, "clear", func(recs []record.Record) ([]record.Record, bool, error) {
		return []record.Record{}, len(recs) > 0, nil
	})
	if err != nil {
		return err
	}
	if changed {
		s.logger.Debug("store: clear", "version", ver)
	}
	return nil
}

// Version returns the durable version of the record list. It changes on
// every committed write from any process sharing the backend.
func (s *Store) Version(ctx context.Context) (int64, error) {
	if v, ok := s.backend.(versioner); ok {
		ver, err := v.Version(ctx, s.key)
		if err != nil {
			return 0, errors.NewInternal(err)
		}
		return ver, nil
	}
	snap, err := s.backend.Read(ctx, s.key)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return snap.Version, nil
}

func (s *Store) load(ctx context.Context) ([]record.Record, int64, error) {
	snap, err := s.backend.Read(ctx, s.key)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	recs, err := decode(snap.Payload)
	if err != nil {
		return nil, 0, errors.NewInternal(fmt.Errorf("decode %q: %w", s.key, err))
	}
	return recs, snap.Version, nil
}

type mutation func(recs []record.Record) (next []record.Record, changed bool, err error)

// mutate runs read, apply, compare-and-swap, verify. fn may run several
// times and must derive everything from its argument.
func (s *Store) mutate(ctx context.Context, op string, fn mutation) ([]record.Record, int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		recs, ver, err := s.load(ctx)
		if err != nil {
			return nil, 0, false, err
		}

		next, changed, err := fn(record.CloneAll(recs))
		if err != nil {
			return nil, 0, false, err
		}
		if !changed {
			return recs, ver, false, nil
		}
		if next == nil {
			next = []record.Record{}
		}
		if len(next) > s.capacity {
			next = next[:s.capacity]
		}

		payload, err := json.Marshal(next)
		if err != nil {
			return nil, 0, false, errors.NewInternal(fmt.Errorf("encode %q: %w", s.key, err))
		}

		newVer, err := s.backend.CompareAndSwap(ctx, s.key, ver, payload)
		if stderrors.Is(err, ErrVersionConflict) {
			s.logger.Debug("store: concurrent write, retrying", "op", op, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, 0, false, errors.NewInternal(err)
		}

		if err := s.verify(ctx, newVer, payload); err != nil {
			s.logger.Warn("store: write not verified", "op", op, "error", err)
			return nil, 0, false, err
		}
		return next, newVer, true, nil
	}
	return nil, 0, false, errors.NewConflict(fmt.Sprintf("%s: gave up after %d concurrent writes", op, maxAttempts))
}

// verify reads the key back. A newer version means a later writer already
// built on ours; an older version, or our version with different bytes,
// means the write did not stick.
func (s *Store) verify(ctx context.Context, wrote int64, payload []byte) error {
	snap, err := s.backend.Read(ctx, s.key)
	if err != nil {
		return errors.NewInternal(fmt.Errorf("read back %q: %w", s.key, err))
	}
	if snap.Version < wrote || (snap.Version == wrote && !bytes.Equal(snap.Payload, payload)) {
		return errors.NewStoreWriteMismatch(s.key, wrote, snap.Version)
	}
	return nil
}

func decode(payload []byte) ([]record.Record, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return []record.Record{}, nil
	}
	var recs []record.Record
	if err := json.Unmarshal(payload, &recs); err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []record.Record{}
	}
	return recs, nil
}

func indexOf(recs []record.Record, id string) int {
	for i, r := range recs {
		if r.ID == id {
			return i
		}
	}
	return -1
}

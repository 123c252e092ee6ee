package store

import (
	"context"
	stderrors "errors"
	"sync"
	"time"
)

// ErrVersionConflict is returned by Backend.CompareAndSwap when the stored
// version no longer matches the expected one.
var ErrVersionConflict = stderrors.New("store: version conflict")

// Snapshot is one committed value of a key.
type Snapshot struct {
	Payload   []byte
	Version   int64
	UpdatedAt time.Time
}

// Backend is a durable key/value cell with versioned compare-and-swap.
//
// A key that was never written reads as the zero Snapshot (version 0). A
// successful CompareAndSwap stores payload at version expect+1 and returns
// the new version.
type Backend interface {
	Read(ctx context.Context, key string) (Snapshot, error)
	CompareAndSwap(ctx context.Context, key string, expect int64, payload []byte) (int64, error)
	Close() error
}

// versioner is implemented by backends that can report a key's version
// without reading its payload.
type versioner interface {
	Version(ctx context.Context, key string) (int64, error)
}

// MemoryBackend keeps values in process memory. Instances share nothing, so
// two stores over the same MemoryBackend behave like two contexts over one
// durable store.
type MemoryBackend struct {
	mu    sync.Mutex
	cells map[string]Snapshot
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{cells: make(map[string]Snapshot)}
}

func (m *MemoryBackend) Read(ctx context.Context, key string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.cells[key]
	snap.Payload = append([]byte(nil), snap.Payload...)
	return snap, nil
}

func (m *MemoryBackend) CompareAndSwap(ctx context.Context, key string, expect int64, payload []byte) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.cells[key]
	if cur.Version != expect {
		return cur.Version, ErrVersionConflict
	}
	next := Snapshot{
		Payload:   append([]byte(nil), payload...),
		Version:   expect + 1,
		UpdatedAt: time.Now(),
	}
	m.cells[key] = next
	return next.Version, nil
}

func (m *MemoryBackend) Version(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cells[key].Version, nil
}

func (m *MemoryBackend) Close() error { return nil }

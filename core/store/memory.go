package store

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var (
	errReadOnly = errors.New("store: write in read-only transaction")
	errClosed   = errors.New("store: closed")
)

type recKey struct {
	kind Kind
	id   string
}

// MemoryBackend keeps records in process memory. Update buffers writes and
// applies them under the store mutex when fn succeeds.
type MemoryBackend struct {
	mu     sync.RWMutex
	data   map[recKey]Record
	closed bool
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[recKey]Record)}
}

// Update implements Backend.
func (b *MemoryBackend) Update(ctx context.Context, fn func(RecordTx) error) error {
	if err := b.check(ctx); err != nil {
		return err
	}
	tx := &memTx{b: b, writes: make(map[recKey]Record)}
	if err := fn(tx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errClosed
	}
	for k, rec := range tx.writes {
		b.data[k] = rec
	}
	return nil
}

// View implements Backend.
func (b *MemoryBackend) View(ctx context.Context, fn func(RecordTx) error) error {
	if err := b.check(ctx); err != nil {
		return err
	}
	return fn(&memTx{b: b, readOnly: true})
}

// Close implements Backend.
func (b *MemoryBackend) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return errClosed
	}
	return nil
}

type memTx struct {
	b        *MemoryBackend
	writes   map[recKey]Record
	readOnly bool
}

func cloneRecord(r Record) Record {
	r.Body = append([]byte(nil), r.Body...)
	return r
}

func (t *memTx) Get(_ context.Context, kind Kind, id string) (Record, error) {
	k := recKey{kind, id}
	if rec, ok := t.writes[k]; ok {
		return cloneRecord(rec), nil
	}
	t.b.mu.RLock()
	rec, ok := t.b.data[k]
	t.b.mu.RUnlock()
	if !ok {
		return Record{}, ErrNoRecord
	}
	return cloneRecord(rec), nil
}

func (t *memTx) Put(_ context.Context, rec Record) error {
	if t.readOnly {
		return errReadOnly
	}
	t.writes[recKey{rec.Kind, rec.ID}] = cloneRecord(rec)
	return nil
}

func (t *memTx) Find(_ context.Context, q Query) ([]Record, error) {
	merged := make(map[recKey]Record)
	t.b.mu.RLock()
	for k, rec := range t.b.data {
		if k.kind == q.Kind {
			merged[k] = rec
		}
	}
	t.b.mu.RUnlock()
	for k, rec := range t.writes {
		if k.kind == q.Kind {
			merged[k] = rec
		}
	}
	var out []Record
	for _, rec := range merged {
		if q.Match(rec) {
			out = append(out, cloneRecord(rec))
		}
	}
	SortRecords(out)
	return out, nil
}

// SortRecords orders records by CreatedAt then ID.
func SortRecords(recs []Record) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.Before(recs[j].CreatedAt)
		}
		return recs[i].ID < recs[j].ID
	})
}

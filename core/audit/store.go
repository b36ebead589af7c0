// Package audit persists one record per committed fleet mutation.
package audit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/ridefleet/core/model"
)

// Record captures one committed operation.
type Record struct {
	Timestamp time.Time      `json:"timestamp"`
	Operation string         `json:"operation"`
	Actor     string         `json:"actor"`
	Role      model.Role     `json:"role"`
	Subject   string         `json:"subject"`
	DriverID  string         `json:"driver_id,omitempty"`
	RideID    string         `json:"ride_id,omitempty"`
	From      string         `json:"from,omitempty"`
	To        string         `json:"to,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Query defines filters for retrieving records.
type Query struct {
	Start     time.Time
	End       time.Time
	DriverID  string
	RideID    string
	Operation string
}

// Match reports whether r satisfies q.
func (q Query) Match(r Record) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.DriverID != "" && r.DriverID != q.DriverID {
		return false
	}
	if q.RideID != "" && r.RideID != q.RideID {
		return false
	}
	if q.Operation != "" && r.Operation != q.Operation {
		return false
	}
	return true
}

// Store persists Records and supports querying.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// Open creates the store selected by backend: "memory", "jsonl" or "sqlite".
func Open(backend, path string, maxSizeMB, maxBackups, maxAgeDays int) (Store, error) {
	switch backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "jsonl":
		return NewRotatingJSONLStore(path, maxSizeMB, maxBackups, maxAgeDays)
	case "sqlite":
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown audit backend %s", backend)
	}
}

// MemoryStore keeps records in memory.
type MemoryStore struct {
	mu   sync.RWMutex
	recs []Record
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Append(_ context.Context, rec Record) error {
	m.mu.Lock()
	m.recs = append(m.recs, rec)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Query(_ context.Context, q Query) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []Record
	for _, r := range m.recs {
		if q.Match(r) {
			res = append(res, r)
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].Timestamp.Before(res[j].Timestamp) })
	return res, nil
}

func (m *MemoryStore) Close() error { return nil }

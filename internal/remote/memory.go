package remote

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/tally/internal/ledger"
)

// FaultFunc lets tests fail or delay individual calls. It runs before the
// call touches the table, outside the table lock; a non-nil error aborts
// the call.
type FaultFunc func(op, ownerID string, rec Record) error

// Memory is an in-process Adapter. Rows of all owners share one id space.
//
// Thread-safety: Memory is safe for concurrent use.
type Memory struct {
	mu    sync.Mutex
	rows  map[string]Record
	ids   ledger.IDGenerator
	clock ledger.Clock
	fault FaultFunc
	calls map[string]int
}

// MemoryOption configures a Memory adapter.
type MemoryOption func(*Memory)

// WithIDs sets the generator for new row ids. Default: ledger.UUIDGenerator.
func WithIDs(g ledger.IDGenerator) MemoryOption {
	return func(m *Memory) {
		m.ids = g
	}
}

// WithMemoryClock sets the clock used when a record carries no timestamps.
func WithMemoryClock(c ledger.Clock) MemoryOption {
	return func(m *Memory) {
		m.clock = c
	}
}

// NewMemory creates an empty in-memory table.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		rows:  make(map[string]Record),
		ids:   ledger.UUIDGenerator{},
		clock: ledger.SystemClock{},
		calls: make(map[string]int),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetFault installs (or, with nil, removes) a fault hook.
func (m *Memory) SetFault(f FaultFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fault = f
}

// Calls returns how many times op was invoked, including failed calls.
func (m *Memory) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Len returns the number of rows owned by ownerID.
func (m *Memory) Len(ownerID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rows {
		if r.OwnerID == ownerID {
			n++
		}
	}
	return n
}

// Row returns a row by id regardless of owner.
func (m *Memory) Row(id string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	return r, ok
}

func (m *Memory) enter(op, ownerID string, rec Record) error {
	m.mu.Lock()
	m.calls[op]++
	fault := m.fault
	m.mu.Unlock()

	if ownerID == "" {
		return &Error{Op: op, Err: ErrUnauthenticated}
	}
	if fault != nil {
		if err := fault(op, ownerID, rec); err != nil {
			return wrap(op, err)
		}
	}
	return nil
}

// Insert implements Adapter.
func (m *Memory) Insert(ctx context.Context, ownerID string, rec Record) (string, error) {
	if err := m.enter("insert", ownerID, rec); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", wrap("insert", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = m.ids.NewID()
	m.store(ownerID, rec)
	return rec.ID, nil
}

// Upsert implements Adapter.
func (m *Memory) Upsert(ctx context.Context, ownerID string, rec Record) (string, error) {
	if err := m.enter("upsert", ownerID, rec); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", wrap("upsert", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == "" {
		rec.ID = m.ids.NewID()
	} else if existing, ok := m.rows[rec.ID]; ok && existing.OwnerID != ownerID {
		return "", &Error{Op: "upsert", Err: fmt.Errorf("row %s belongs to another owner: %w", rec.ID, ErrUnauthenticated)}
	}
	m.store(ownerID, rec)
	return rec.ID, nil
}

// Select implements Adapter.
func (m *Memory) Select(ctx context.Context, ownerID string) ([]Record, error) {
	if err := m.enter("select", ownerID, Record{}); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, wrap("select", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Record{}
	for _, r := range m.rows {
		if r.OwnerID == ownerID {
			out = append(out, r)
		}
	}
	sortRecords(out)
	return out, nil
}

// UpdateByRemoteID implements Adapter.
func (m *Memory) UpdateByRemoteID(ctx context.Context, ownerID, remoteID string, p Patch) error {
	if err := m.enter("update", ownerID, Record{ID: remoteID}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return wrap("update", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[remoteID]
	if !ok || r.OwnerID != ownerID {
		return &Error{Op: "update", Err: ErrNotFound}
	}
	r = r.Apply(p)
	r.UpdatedAt = m.clock.Now()
	m.rows[remoteID] = r
	return nil
}

// store writes rec for ownerID. Caller holds m.mu.
func (m *Memory) store(ownerID string, rec Record) {
	now := m.clock.Now()
	rec.OwnerID = ownerID
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
	m.rows[rec.ID] = rec
}

// sortRecords orders rows newest date first, then by id.
func sortRecords(rs []Record) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].Date.Equal(rs[j].Date) {
			return rs[i].Date.After(rs[j].Date)
		}
		return rs[i].ID < rs[j].ID
	})
}

package testutil

import (
	"fmt"
	"sync"
)

// SeqIDs generates predictable identifiers: "<prefix>-1", "<prefix>-2", ...
//
// This keeps golden snapshots byte-identical across runs, which random
// UUIDs would not.
//
// Thread-safety: SeqIDs is safe for concurrent use via internal mutex.
type SeqIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSeqIDs creates a generator. If prefix is empty, "tx" is used.
func NewSeqIDs(prefix string) *SeqIDs {
	if prefix == "" {
		prefix = "tx"
	}
	return &SeqIDs{prefix: prefix}
}

// NewID returns the next identifier.
//
// Implements ledger.IDGenerator interface.
func (g *SeqIDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// Reset restarts the sequence at 1.
func (g *SeqIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}

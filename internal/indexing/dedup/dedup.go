// Package dedup keeps a bounded window of recently seen transaction hashes.
package dedup

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Window is a concurrent-safe set of recent hashes. When it grows past its
// ceiling it is trimmed in one batch to the most recently inserted entries.
type Window struct {
	mu      sync.Mutex
	ceiling int
	retain  int
	seen    map[common.Hash]struct{}
	order   []common.Hash // insertion order, oldest first
	trims   uint64
}

// New creates a window that trims to retain entries once it holds more than
// ceiling. retain is clamped into [0, ceiling).
func New(ceiling, retain int) *Window {
	if ceiling <= 0 {
		ceiling = 10000
	}
	if retain >= ceiling || retain < 0 {
		retain = ceiling / 2
	}
	return &Window{
		ceiling: ceiling,
		retain:  retain,
		seen:    make(map[common.Hash]struct{}, ceiling+1),
		order:   make([]common.Hash, 0, ceiling+1),
	}
}

// Seen reports whether hash was already in the window and records it if not.
func (w *Window) Seen(hash common.Hash) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.seen[hash]; ok {
		return true
	}
	w.seen[hash] = struct{}{}
	w.order = append(w.order, hash)

	if len(w.order) > w.ceiling {
		w.trimLocked()
	}
	return false
}

// Contains reports whether hash is in the window without recording it.
func (w *Window) Contains(hash common.Hash) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.seen[hash]
	return ok
}

// Len returns the number of hashes held.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.order)
}

// Trims returns how many batch trims have run.
func (w *Window) Trims() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.trims
}

func (w *Window) trimLocked() {
	cut := len(w.order) - w.retain
	for _, h := range w.order[:cut] {
		delete(w.seen, h)
	}
	// Copy into a fresh slice so the evicted prefix can be collected.
	kept := make([]common.Hash, w.retain, w.ceiling+1)
	copy(kept, w.order[cut:])
	w.order = kept
	w.trims++
}

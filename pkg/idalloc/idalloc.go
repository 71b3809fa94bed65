// Package idalloc maintains the per-location monotonic counter used to
// assign FilePath ids.
package idalloc

import (
	"sync"
)

// Watermark returns the current persisted high-watermark for a location,
// reading from the catalog on first use for that location.
type Watermark func(locationID int32) (int32, error)

// Allocator hands out disjoint, contiguous id ranges per location. It is
// constructed once per Engine and passed through job context; it is
// deliberately not a process-wide singleton (see the design notes on global
// mutable state).
type Allocator struct {
	mu       sync.Mutex
	counters map[int32]int32 // location id -> highest id assigned so far
	cold     Watermark
}

// New creates an Allocator. cold is consulted the first time a location's
// counter is needed.
func New(cold Watermark) *Allocator {
	return &Allocator{
		counters: make(map[int32]int32),
		cold:     cold,
	}
}

// CurrentMax returns the highest id assigned so far for locationID.
func (a *Allocator) CurrentMax(locationID int32) (int32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentMaxLocked(locationID)
}

func (a *Allocator) currentMaxLocked(locationID int32) (int32, error) {
	if max, ok := a.counters[locationID]; ok {
		return max, nil
	}
	max, err := a.cold(locationID)
	if err != nil {
		return 0, err
	}
	a.counters[locationID] = max
	return max, nil
}

// Reserve atomically advances locationID's counter by n and returns the
// first id in the reserved, disjoint, contiguous range [firstID, firstID+n).
func (a *Allocator) Reserve(locationID int32, n int32) (int32, error) {
	if n <= 0 {
		return 0, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	max, err := a.currentMaxLocked(locationID)
	if err != nil {
		return 0, err
	}

	firstID := max + 1
	a.counters[locationID] = max + n
	return firstID, nil
}

// Forget drops the in-memory counter for a location, forcing the next call
// to re-read the watermark from the catalog. Used after a location is
// deleted or to recover from an external rewrite of the catalog.
func (a *Allocator) Forget(locationID int32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.counters, locationID)
}

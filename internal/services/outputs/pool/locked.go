package pool

import "sync"

// Locked serializes access to a Pool shared by several owners.
type Locked[T any] struct {
	mu   sync.Mutex
	pool *Pool[T]
}

// NewLocked wraps p.
func NewLocked[T any](p *Pool[T]) *Locked[T] {
	return &Locked[T]{pool: p}
}

// Alloc returns a zeroed block.
func (l *Locked[T]) Alloc() (Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pool.Alloc()
}

// Free returns a block to the free list.
func (l *Locked[T]) Free(h Handle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pool.Free(h)
}

// Get returns the block addressed by h. Callers must own h exclusively.
func (l *Locked[T]) Get(h Handle) *T {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pool.Get(h)
}

// Stats reports outstanding and peak block counts and the blob count.
func (l *Locked[T]) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		Count:     l.pool.Count(),
		PeakCount: l.pool.PeakCount(),
		Blobs:     l.pool.NumBlobs(),
	}
}

// Clear releases every blob of the wrapped pool.
func (l *Locked[T]) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pool.Clear()
}

// Stats is a point-in-time view of pool usage.
type Stats struct {
	Count     int
	PeakCount int
	Blobs     int
}

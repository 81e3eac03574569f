// Package pool provides fixed-size block allocation from growable blobs.
//
// Blocks are addressed by Handle rather than by pointer so that linked
// structures built on top of a pool can store "next" links as plain values.
// A Pool is not safe for concurrent use; wrap it in Locked when it is shared.
package pool

import (
	"fmt"
	"log"

	apperrors "github.com/louisbranch/outputinfo/internal/platform/errors"
)

// GrowMode controls how a pool acquires new blobs once its free list is empty.
type GrowMode int

const (
	// GrowNone allows only the initial blob.
	GrowNone GrowMode = iota
	// GrowFast sizes blob k (1-based) at BlocksPerBlob*k elements.
	GrowFast
	// GrowSlow sizes every blob at BlocksPerBlob elements.
	GrowSlow
)

// String returns the configuration name of the grow mode.
func (m GrowMode) String() string {
	switch m {
	case GrowNone:
		return "none"
	case GrowFast:
		return "fast"
	case GrowSlow:
		return "slow"
	default:
		return fmt.Sprintf("GrowMode(%d)", int(m))
	}
}

// ParseGrowMode converts a configuration value into a GrowMode.
func ParseGrowMode(value string) (GrowMode, error) {
	switch value {
	case "none":
		return GrowNone, nil
	case "fast", "":
		return GrowFast, nil
	case "slow":
		return GrowSlow, nil
	default:
		return GrowFast, apperrors.WithMetadata(apperrors.CodeInvalidArgument,
			fmt.Sprintf("unknown pool grow mode %q", value),
			map[string]string{"Reason": "grow mode must be none, fast or slow"})
	}
}

// ErrAllocationExhausted reports that a pool may not grow and has no free blocks.
var ErrAllocationExhausted = apperrors.New(apperrors.CodeAllocationExhausted, "allocation exhausted")

// Handle addresses one block in a pool. The zero value is Nil.
type Handle uint64

// Nil is the handle that addresses no block.
const Nil Handle = 0

func makeHandle(blob, slot int) Handle {
	return Handle(uint64(blob)<<32|uint64(uint32(slot))) + 1
}

func (h Handle) split() (blob, slot int) {
	raw := uint64(h - 1)
	return int(raw >> 32), int(uint32(raw))
}

// ReportFunc receives allocator diagnostics.
type ReportFunc func(format string, args ...any)

// Config configures a Pool.
type Config struct {
	// BlocksPerBlob is the element count of the first blob.
	BlocksPerBlob int
	// Grow selects the growth policy.
	Grow GrowMode
	// Owner names the pool in diagnostics.
	Owner string
	// Report receives exhaustion and misuse reports. Defaults to log.Printf.
	Report ReportFunc
}

type slot[T any] struct {
	value    T
	nextFree Handle
	live     bool
}

// Pool serves fixed-size blocks of T.
type Pool[T any] struct {
	blocksPerBlob int
	grow          GrowMode
	owner         string
	report        ReportFunc

	blobs     [][]slot[T]
	freeHead  Handle
	allocated int
	peak      int
}

// New creates an empty pool. No blob is allocated until the first Alloc.
func New[T any](cfg Config) (*Pool[T], error) {
	if cfg.BlocksPerBlob <= 0 {
		return nil, apperrors.WithMetadata(apperrors.CodeInvalidArgument,
			fmt.Sprintf("blocks per blob must be positive, got %d", cfg.BlocksPerBlob),
			map[string]string{"Reason": "blocks per blob must be positive"})
	}
	switch cfg.Grow {
	case GrowNone, GrowFast, GrowSlow:
	default:
		return nil, apperrors.WithMetadata(apperrors.CodeInvalidArgument,
			fmt.Sprintf("unknown grow mode %d", int(cfg.Grow)),
			map[string]string{"Reason": "unknown grow mode"})
	}
	report := cfg.Report
	if report == nil {
		report = log.Printf
	}
	owner := cfg.Owner
	if owner == "" {
		owner = "pool"
	}
	return &Pool[T]{
		blocksPerBlob: cfg.BlocksPerBlob,
		grow:          cfg.Grow,
		owner:         owner,
		report:        report,
	}, nil
}

// Alloc returns a zeroed block.
func (p *Pool[T]) Alloc() (Handle, error) {
	if p.freeHead == Nil {
		if p.grow == GrowNone && len(p.blobs) > 0 {
			p.report("%s: tried to allocate beyond budget of %d blocks", p.owner, p.blocksPerBlob)
			return Nil, ErrAllocationExhausted
		}
		p.addBlob()
	}

	h := p.freeHead
	s := p.slotAt(h)
	p.freeHead = s.nextFree
	s.nextFree = Nil
	s.live = true

	p.allocated++
	if p.allocated > p.peak {
		p.peak = p.allocated
	}
	return h, nil
}

// Free returns a block to the free list. Freeing Nil is a no-op.
// The block's value is zeroed.
func (p *Pool[T]) Free(h Handle) {
	if h == Nil {
		return
	}
	s := p.slotAt(h)
	if !s.live {
		p.report("%s: double free of block %d", p.owner, uint64(h))
		return
	}
	var zero T
	s.value = zero
	s.live = false
	s.nextFree = p.freeHead
	p.freeHead = h
	p.allocated--
}

// Get returns the block addressed by h, or nil when h is Nil or not allocated.
// The pointer stays valid until the block is freed or the pool is cleared.
func (p *Pool[T]) Get(h Handle) *T {
	if h == Nil {
		return nil
	}
	s := p.slotAt(h)
	if !s.live {
		return nil
	}
	return &s.value
}

// Count returns the number of outstanding blocks.
func (p *Pool[T]) Count() int { return p.allocated }

// PeakCount returns the highest Count observed since creation or Clear.
func (p *Pool[T]) PeakCount() int { return p.peak }

// NumBlobs returns how many blobs the pool has allocated.
func (p *Pool[T]) NumBlobs() int { return len(p.blobs) }

// BlobLen returns the element count of blob k.
func (p *Pool[T]) BlobLen(k int) int { return len(p.blobs[k]) }

// Clear releases every blob. Handles obtained before Clear must not be used.
func (p *Pool[T]) Clear() {
	p.blobs = nil
	p.freeHead = Nil
	p.allocated = 0
	p.peak = 0
}

func (p *Pool[T]) addBlob() {
	multiplier := 1
	if p.grow == GrowFast {
		multiplier = len(p.blobs) + 1
	}
	blob := make([]slot[T], p.blocksPerBlob*multiplier)
	index := len(p.blobs)
	p.blobs = append(p.blobs, blob)

	// Thread the new blob onto the free list in address order.
	for i := len(blob) - 1; i >= 0; i-- {
		blob[i].nextFree = p.freeHead
		p.freeHead = makeHandle(index, i)
	}
}

func (p *Pool[T]) slotAt(h Handle) *slot[T] {
	blob, index := h.split()
	return &p.blobs[blob][index]
}

package pool

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

type block struct {
	value int
}

func newTestPool(t *testing.T, cfg Config) *Pool[block] {
	t.Helper()
	if cfg.Report == nil {
		cfg.Report = func(string, ...any) {}
	}
	p, err := New[block](cfg)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	return p
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	if _, err := New[block](Config{BlocksPerBlob: 0}); err == nil {
		t.Fatal("expected zero blocks per blob to fail")
	}
	if _, err := New[block](Config{BlocksPerBlob: 4, Grow: GrowMode(9)}); err == nil {
		t.Fatal("expected unknown grow mode to fail")
	}
}

func TestAllocLazilyCreatesFirstBlob(t *testing.T) {
	p := newTestPool(t, Config{BlocksPerBlob: 4, Grow: GrowSlow})
	if p.NumBlobs() != 0 {
		t.Fatalf("expected no blobs before first alloc, got %d", p.NumBlobs())
	}
	if _, err := p.Alloc(); err != nil {
		t.Fatalf("alloc: %v", err)
	}
	if p.NumBlobs() != 1 {
		t.Fatalf("expected one blob, got %d", p.NumBlobs())
	}
}

func TestGrowSlowAddsOneFixedBlobPerFullBlob(t *testing.T) {
	p := newTestPool(t, Config{BlocksPerBlob: 3, Grow: GrowSlow})

	for i := 1; i <= 9; i++ {
		if _, err := p.Alloc(); err != nil {
			t.Fatalf("alloc %d: %v", i, err)
		}
		wantBlobs := (i + 2) / 3
		if p.NumBlobs() != wantBlobs {
			t.Fatalf("after %d allocs expected %d blobs, got %d", i, wantBlobs, p.NumBlobs())
		}
	}
	for k := 0; k < p.NumBlobs(); k++ {
		if p.BlobLen(k) != 3 {
			t.Fatalf("blob %d: expected 3 elements, got %d", k, p.BlobLen(k))
		}
	}
}

func TestGrowFastBlobsGetLarger(t *testing.T) {
	p := newTestPool(t, Config{BlocksPerBlob: 2, Grow: GrowFast})

	// 2 + 4 + 6 = 12 blocks fill three blobs.
	for i := 0; i < 12; i++ {
		if _, err := p.Alloc(); err != nil {
			t.Fatalf("alloc %d: %v", i, err)
		}
	}
	if p.NumBlobs() != 3 {
		t.Fatalf("expected 3 blobs, got %d", p.NumBlobs())
	}
	for k, want := range []int{2, 4, 6} {
		if got := p.BlobLen(k); got != want {
			t.Fatalf("blob %d: expected %d elements, got %d", k, want, got)
		}
	}
}

func TestGrowNoneExhaustsAndReports(t *testing.T) {
	var reports []string
	p := newTestPool(t, Config{
		BlocksPerBlob: 2,
		Grow:          GrowNone,
		Owner:         "actions",
		Report: func(format string, args ...any) {
			reports = append(reports, fmt.Sprintf(format, args...))
		},
	})

	for i := 0; i < 2; i++ {
		if _, err := p.Alloc(); err != nil {
			t.Fatalf("alloc %d: %v", i, err)
		}
	}
	h, err := p.Alloc()
	if !errors.Is(err, ErrAllocationExhausted) {
		t.Fatalf("expected allocation exhausted, got %v", err)
	}
	if h != Nil {
		t.Fatalf("expected nil handle on failure, got %d", h)
	}
	if len(reports) != 1 {
		t.Fatalf("expected one report, got %v", reports)
	}
	if p.Count() != 2 {
		t.Fatalf("expected failed alloc to leave count at 2, got %d", p.Count())
	}
}

func TestFreeRecyclesBlocks(t *testing.T) {
	p := newTestPool(t, Config{BlocksPerBlob: 2, Grow: GrowNone})

	a, _ := p.Alloc()
	b, _ := p.Alloc()
	p.Get(a).value = 7
	p.Free(a)

	if p.Get(a) != nil {
		t.Fatal("expected freed block to be unreachable")
	}
	c, err := p.Alloc()
	if err != nil {
		t.Fatalf("alloc after free: %v", err)
	}
	if c != a {
		t.Fatalf("expected free list to hand back the freed block")
	}
	if p.Get(c).value != 0 {
		t.Fatalf("expected recycled block to be zeroed, got %d", p.Get(c).value)
	}
	if p.Get(b) == nil {
		t.Fatal("expected untouched block to stay live")
	}
}

func TestCountAndPeak(t *testing.T) {
	p := newTestPool(t, Config{BlocksPerBlob: 4, Grow: GrowFast})

	handles := make([]Handle, 0, 5)
	for i := 0; i < 5; i++ {
		h, err := p.Alloc()
		if err != nil {
			t.Fatalf("alloc: %v", err)
		}
		handles = append(handles, h)
	}
	p.Free(handles[0])
	p.Free(handles[1])

	if p.Count() != 3 {
		t.Fatalf("expected count 3, got %d", p.Count())
	}
	if p.PeakCount() != 5 {
		t.Fatalf("expected peak 5, got %d", p.PeakCount())
	}
}

func TestFreeIgnoresNilAndDoubleFree(t *testing.T) {
	var reports int
	p := newTestPool(t, Config{BlocksPerBlob: 2, Grow: GrowSlow, Report: func(string, ...any) { reports++ }})

	p.Free(Nil)
	h, _ := p.Alloc()
	p.Free(h)
	p.Free(h)

	if p.Count() != 0 {
		t.Fatalf("expected count 0 after double free, got %d", p.Count())
	}
	if reports != 1 {
		t.Fatalf("expected double free to be reported once, got %d", reports)
	}
}

func TestClearResetsPool(t *testing.T) {
	p := newTestPool(t, Config{BlocksPerBlob: 2, Grow: GrowNone})
	_, _ = p.Alloc()
	_, _ = p.Alloc()

	p.Clear()

	if p.Count() != 0 || p.PeakCount() != 0 || p.NumBlobs() != 0 {
		t.Fatalf("expected empty pool, got count=%d peak=%d blobs=%d", p.Count(), p.PeakCount(), p.NumBlobs())
	}
	if _, err := p.Alloc(); err != nil {
		t.Fatalf("expected cleared GrowNone pool to allocate its initial blob again: %v", err)
	}
}

func TestParseGrowMode(t *testing.T) {
	tests := map[string]GrowMode{"none": GrowNone, "fast": GrowFast, "": GrowFast, "slow": GrowSlow}
	for input, want := range tests {
		got, err := ParseGrowMode(input)
		if err != nil {
			t.Fatalf("parse %q: %v", input, err)
		}
		if got != want {
			t.Fatalf("parse %q: expected %s, got %s", input, want, got)
		}
	}
	if _, err := ParseGrowMode("sometimes"); err == nil {
		t.Fatal("expected unknown grow mode to fail")
	}
}

func TestLockedConcurrentAllocFree(t *testing.T) {
	p := newTestPool(t, Config{BlocksPerBlob: 8, Grow: GrowFast})
	locked := NewLocked(p)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				h, err := locked.Alloc()
				if err != nil {
					t.Errorf("alloc: %v", err)
					return
				}
				locked.Get(h).value = i
				locked.Free(h)
			}
		}()
	}
	wg.Wait()

	stats := locked.Stats()
	if stats.Count != 0 {
		t.Fatalf("expected all blocks returned, got %d", stats.Count)
	}
	if stats.PeakCount == 0 || stats.PeakCount > 8 {
		t.Fatalf("expected peak between 1 and 8, got %d", stats.PeakCount)
	}
}

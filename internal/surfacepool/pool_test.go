package surfacepool

import (
	"testing"

	"github.com/vdpu/vdpu/internal/backend"
)

func newTestPool(n int) *Pool {
	surfaces := make([]backend.SurfaceID, n)
	for i := range surfaces {
		surfaces[i] = backend.SurfaceID(i + 1)
	}
	return New(nil, surfaces)
}

func TestAllocateLowestFreeSlot(t *testing.T) {
	t.Parallel()
	p := newTestPool(3)
	h0, _, err := p.Allocate(0)
	if err != nil {
		t.Fatal(err)
	}
	if h0.Index != 0 {
		t.Errorf("first allocate: got index %d want 0", h0.Index)
	}
	h1, _, err := p.Allocate(1)
	if err != nil {
		t.Fatal(err)
	}
	if h1.Index != 1 {
		t.Errorf("second allocate: got index %d want 1", h1.Index)
	}
}

func TestAllocateExhausted(t *testing.T) {
	t.Parallel()
	p := newTestPool(1)
	if _, _, err := p.Allocate(0); err != nil {
		t.Fatal(err)
	}
	if _, _, err := p.Allocate(1); err == nil {
		t.Error("expected PoolExhausted")
	}
}

func TestConservationInvariant(t *testing.T) {
	t.Parallel()
	p := newTestPool(4)
	h0, _, _ := p.Allocate(0)
	h1, _, _ := p.Allocate(1)
	_ = h1
	p.SetDisplaying(h0)
	p.ReleaseDecode(h0)

	decoding, displayOnly, free := p.Conservation()
	if decoding+displayOnly+free != 4 {
		t.Errorf("conservation violated: %d+%d+%d != 4", decoding, displayOnly, free)
	}
	if decoding != 1 {
		t.Errorf("decoding: got %d want 1 (h1 still decode-held)", decoding)
	}
	if displayOnly != 1 {
		t.Errorf("displayOnly: got %d want 1 (h0)", displayOnly)
	}
}

func TestStaleHandleRejectedAfterReuse(t *testing.T) {
	t.Parallel()
	p := newTestPool(1)
	h0, _, _ := p.Allocate(0)
	if err := p.ReleaseDecode(h0); err != nil {
		t.Fatal(err)
	}
	// slot is free again; re-allocate to bump usage but keep same index.
	h0Again, _, err := p.Allocate(1)
	if err != nil {
		t.Fatal(err)
	}
	if h0Again.Generation == h0.Generation {
		t.Error("expected generation to change across free/reallocate")
	}
	if _, err := p.Surface(h0); err == nil {
		t.Error("expected stale handle to be rejected")
	}
}

// Package surfacepool implements the fixed-size surface slot array of §3,
// replacing the original's cyclic DPB/surface pointers with an arena of
// (slot_index, generation_counter) handles per §9's design note.
package surfacepool

import (
	"log/slog"
	"sync"

	"github.com/vdpu/vdpu/internal/backend"
	"github.com/vdpu/vdpu/internal/verrors"
)

// UseStatus is a slot's use_status bitset (§3).
type UseStatus uint8

const (
	Free UseStatus = 0
	UsedForDecode UseStatus = 1 << iota
	UsedForDisplay
)

// Handle is a weak reference to a slot: the index plus the generation it
// was allocated under. A stale Handle (generation mismatch) fails checks
// instead of silently aliasing a reused slot.
type Handle struct {
	Index      int
	Generation uint32
}

type slot struct {
	surface    backend.SurfaceID
	generation uint32
	status     UseStatus
	pts        int64
}

// Pool is the fixed-capacity array of hardware surfaces backing the DPB,
// per §3: N = max_dpb_size + display_delay + safety_margin.
type Pool struct {
	mu   sync.Mutex
	log  *slog.Logger
	slots []slot
}

// New returns a Pool over the given backend surfaces, one slot per surface,
// all initially Free.
func New(logger *slog.Logger, surfaces []backend.SurfaceID) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{log: logger.With("component", "surfacepool"), slots: make([]slot, len(surfaces))}
	for i, s := range surfaces {
		p.slots[i] = slot{surface: s, generation: 1, status: Free}
	}
	return p
}

// NumSurfaces returns the pool's fixed capacity.
func (p *Pool) NumSurfaces() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}

// Allocate picks the lowest-indexed Free slot and marks it UsedForDecode,
// per §4.6's "session picks the lowest-indexed slot with use_status ==
// Free" rule. It returns PoolExhausted if none is free.
func (p *Pool) Allocate(pts int64) (Handle, backend.SurfaceID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.slots {
		if p.slots[i].status == Free {
			p.slots[i].status = UsedForDecode
			p.slots[i].pts = pts
			return Handle{Index: i, Generation: p.slots[i].generation}, p.slots[i].surface, nil
		}
	}
	return Handle{}, 0, verrors.Sentinel(verrors.KindPoolExhausted)
}

// Surface resolves a handle to its backend surface id, validating the
// generation counter.
func (p *Pool) Surface(h Handle) (backend.SurfaceID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, err := p.checkLocked(h)
	if err != nil {
		return 0, err
	}
	return s.surface, nil
}

// SetDisplaying marks a slot UsedForDisplay (additively; decode and display
// flags may coexist while a picture is both referenced and being shown).
func (p *Pool) SetDisplaying(h Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.checkLocked(h); err != nil {
		return err
	}
	p.slots[h.Index].status |= UsedForDisplay
	return nil
}

// ReleaseDecode clears UsedForDecode; the slot returns to Free only if
// UsedForDisplay is also clear, matching §4.7's unmap rule.
func (p *Pool) ReleaseDecode(h Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, err := p.checkLocked(h)
	if err != nil {
		return err
	}
	s.status &^= UsedForDecode
	if s.status == Free {
		p.bumpGenerationLocked(h.Index)
	}
	return nil
}

// ReleaseDisplay clears UsedForDisplay; the slot returns to Free only if
// UsedForDecode is also clear.
func (p *Pool) ReleaseDisplay(h Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, err := p.checkLocked(h)
	if err != nil {
		return err
	}
	s.status &^= UsedForDisplay
	if s.status == Free {
		p.bumpGenerationLocked(h.Index)
	}
	return nil
}

// Conservation returns the three counts §8 property 5 requires sum to
// NumSurfaces: decoding, display-only, and free slots.
func (p *Pool) Conservation() (decoding, displayOnly, free int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.slots {
		switch {
		case s.status&UsedForDecode != 0:
			decoding++
		case s.status&UsedForDisplay != 0:
			displayOnly++
		default:
			free++
		}
	}
	return decoding, displayOnly, free
}

func (p *Pool) checkLocked(h Handle) (*slot, error) {
	if h.Index < 0 || h.Index >= len(p.slots) {
		return nil, verrors.New(verrors.KindInvalidParameter, "surfacepool", nil)
	}
	s := &p.slots[h.Index]
	if s.generation != h.Generation {
		p.log.Warn("stale surface handle", "index", h.Index, "want_generation", s.generation, "got_generation", h.Generation)
		return nil, verrors.New(verrors.KindInvalidParameter, "surfacepool", nil)
	}
	return s, nil
}

func (p *Pool) bumpGenerationLocked(index int) {
	p.slots[index].generation++
}

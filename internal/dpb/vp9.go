package dpb

import (
	"github.com/vdpu/vdpu/internal/verrors"
	"github.com/vdpu/vdpu/internal/vp9"
)

// VP9Store is the 8-slot frame store VP9 uses in place of a general DPB
// (§4.4 "VP9"). Unlike HEVC/AVC's POC-ordered DPB, slots are addressed
// directly by index and rewritten wholesale via refresh_frame_flags.
//
// The spec's Open Questions note that the source's FindFreeInDpbAndMark is
// largely commented out, so this slot-mask refresh behavior is inferred
// from the VP9 bitstream spec, not ported from observed source behavior.
type VP9Store struct {
	slots [8]int // surface slot index per VP9 reference slot, -1 if empty
}

// NewVP9Store returns an empty 8-slot store.
func NewVP9Store() *VP9Store {
	s := &VP9Store{}
	for i := range s.slots {
		s.slots[i] = -1
	}
	return s
}

// Slot returns the surface slot currently occupying VP9 reference slot i.
func (s *VP9Store) Slot(i int) (surfaceSlot int, ok bool) {
	if i < 0 || i >= 8 || s.slots[i] < 0 {
		return 0, false
	}
	return s.slots[i], true
}

// Refresh rewrites every VP9 reference slot whose bit is set in
// refreshFrameFlags to point at newSurfaceSlot, per §4.4's refresh rule.
func (s *VP9Store) Refresh(refreshFrameFlags uint8, newSurfaceSlot int) {
	for i := 0; i < 8; i++ {
		if refreshFrameFlags&(1<<uint(i)) != 0 {
			s.slots[i] = newSurfaceSlot
		}
	}
}

// ResolveShowExisting looks up the surface slot for a show_existing_frame
// picture, short-circuiting decode entirely per §4.4's fast path.
func (s *VP9Store) ResolveShowExisting(h vp9.FrameHeader) (int, error) {
	slot, ok := s.Slot(int(h.FrameToShowMapIdx))
	if !ok {
		return 0, verrors.New(verrors.KindInvalidParameter, "vp9_show_existing", nil)
	}
	return slot, nil
}

// Package dpb implements the decoded picture buffer: picture records,
// per-codec reference marking, and the surface-slot conservation
// bookkeeping described in §3 and §4.4.
package dpb

// UseFlag is one bit of a picture record's use_flags bitset (§3).
type UseFlag uint8

const (
	UsedForDecode UseFlag = 1 << iota
	UsedForDisplay
	ShortTermRef
	LongTermRef
)

// Has reports whether f contains all of other's bits.
func (f UseFlag) Has(other UseFlag) bool { return f&other == other }

// Record is one DPB entry: a decoded (or in-flight) picture.
type Record struct {
	PictureID   uint64
	OrderHint   int64 // POC for HEVC/AVC, frame_num-derived for VP9/AV1
	SurfaceSlot int
	Generation  uint32
	DecodeStatus DecodeStatus
	RefCount    int
	Flags       UseFlag
	PTS         int64
	ErrorConcealed bool

	// FrameNum is the AVC frame_num the record was decoded with, needed by
	// MMCO 1's picture-number-based unused-for-reference marking (§4.4
	// "AVC", std 8.2.5.4.1). Unused by other codecs.
	FrameNum uint32
	// LongTermFrameIdx is the AVC long-term frame index assigned to this
	// record, or -1 when it is not a long-term reference. Checked by MMCO 2.
	LongTermFrameIdx int
}

// DecodeStatus mirrors the per-slot status enum of §4.6.
type DecodeStatus int

const (
	StatusInvalid DecodeStatus = iota
	StatusInProgress
	StatusSuccess
	StatusDisplaying
	StatusError
	StatusErrorConcealed
)

// Freeable reports whether r may be returned to the surface pool, per §3's
// invariant: ref_count == 0 and no flags set.
func (r Record) Freeable() bool {
	return r.RefCount == 0 && r.Flags == 0
}

// DPB is a fixed-capacity array of picture records shared by all codec
// reference-management algorithms in this package.
type DPB struct {
	records  []*Record
	capacity int
}

// New returns an empty DPB with the given capacity (derived from
// sps_max_dec_pic_buffering plus display delay plus safety margin, per §3).
func New(capacity int) *DPB {
	return &DPB{capacity: capacity}
}

// Capacity returns the DPB's fixed capacity.
func (d *DPB) Capacity() int { return d.capacity }

// Records returns the live records in insertion order. Callers must treat
// the returned slice as read-only.
func (d *DPB) Records() []*Record { return d.records }

// Insert adds a new record, enforcing the capacity invariant.
func (d *DPB) Insert(r *Record) bool {
	if len(d.records) >= d.capacity {
		return false
	}
	d.records = append(d.records, r)
	return true
}

// RemoveFreeable evicts every record with Freeable()==true, returning the
// removed records so the surface pool can release their slots.
func (d *DPB) RemoveFreeable() []*Record {
	var removed []*Record
	kept := d.records[:0]
	for _, r := range d.records {
		if r.Freeable() {
			removed = append(removed, r)
			continue
		}
		kept = append(kept, r)
	}
	d.records = kept
	return removed
}

// ReferenceCount returns the number of records currently flagged as either
// short- or long-term reference, for the §3/§8 DPB invariant check.
func (d *DPB) ReferenceCount() int {
	n := 0
	for _, r := range d.records {
		if r.Flags.Has(ShortTermRef) || r.Flags.Has(LongTermRef) {
			n++
		}
	}
	return n
}

// FindByOrderHint returns the record with the given order hint, if present.
func (d *DPB) FindByOrderHint(hint int64) (*Record, bool) {
	for _, r := range d.records {
		if r.OrderHint == hint {
			return r, true
		}
	}
	return nil, false
}

// ClearAllReferenceFlags drops ShortTermRef/LongTermRef from every record
// not present in keep; used by both the HEVC and AVC marking steps, which
// first compute the surviving reference set and then sweep the rest.
func (d *DPB) ClearAllReferenceFlags(keep map[int64]bool) {
	for _, r := range d.records {
		if !keep[r.OrderHint] {
			r.Flags &^= ShortTermRef | LongTermRef
		}
	}
}

// Package picture implements the codec-agnostic picture boundary detector
// of §4.3: it watches the stream of parsed NAL units and slice headers and
// decides when a new access unit has started.
package picture

import "github.com/vdpu/vdpu/internal/nal"

// SliceInfo is the minimal per-slice information the detector needs,
// independent of codec.
type SliceInfo struct {
	NALType          uint8
	IsFirstSlice     bool // first_mb_in_slice==0 / first_slice_segment_in_pic_flag
	IsIRAP           bool
	FieldPicFlag     bool
	BottomFieldFlag  bool
}

// Kind classifies a NAL unit for boundary purposes.
type Kind int

const (
	KindSlice Kind = iota
	KindParameterSet
	KindAUD
	KindOther
)

// Classifier maps a raw NAL unit to a Kind and, for slices, to SliceInfo.
// Each codec package supplies its own; the detector itself is codec-blind.
type Classifier func(u nal.Unit) (Kind, SliceInfo)

// Detector implements §4.3's boundary rules.
type Detector struct {
	classify Classifier

	sliceSeen        bool
	prevSliceNALType uint8
	prevFieldInfo    SliceInfo

	pending []nal.Unit
}

// NewDetector constructs a Detector for one codec's classifier.
func NewDetector(classify Classifier) *Detector {
	return &Detector{classify: classify}
}

// Feed processes one NAL unit in stream order. It returns a completed
// Picture when this unit's arrival closes the previous one (the new unit
// is then buffered into the next picture), or ok==false if no boundary
// fired yet.
func (d *Detector) Feed(u nal.Unit) (pic Picture, ok bool) {
	kind, info := d.classify(u)

	boundary := false
	switch kind {
	case KindParameterSet, KindAUD:
		if d.sliceSeen {
			boundary = true
		}
	case KindSlice:
		if d.sliceSeen {
			if info.NALType != d.prevSliceNALType {
				boundary = true
			} else if info.IsFirstSlice && !d.isSecondField(info) {
				boundary = true
			}
		}
	}

	if boundary {
		pic = d.flushLocked()
		ok = true
	}

	d.pending = append(d.pending, u)
	if kind == KindSlice {
		d.sliceSeen = true
		d.prevSliceNALType = info.NALType
		d.prevFieldInfo = info
	}
	return pic, ok
}

// isSecondField reports whether info pairs with the previous slice as the
// bottom field of one frame, per the supplemented field-pairing rule
// (SPEC_FULL §12): same nal_type, both field pictures, opposite parity.
func (d *Detector) isSecondField(info SliceInfo) bool {
	if !d.prevFieldInfo.FieldPicFlag || !info.FieldPicFlag {
		return false
	}
	return d.prevFieldInfo.BottomFieldFlag != info.BottomFieldFlag
}

// Flush forces emission of any in-progress picture, for EOS per §4.3.
func (d *Detector) Flush() (pic Picture, ok bool) {
	if len(d.pending) == 0 {
		return Picture{}, false
	}
	return d.flushLocked(), true
}

func (d *Detector) flushLocked() Picture {
	pic := Picture{NALUnits: d.pending}
	d.pending = nil
	d.sliceSeen = false
	return pic
}

// Picture is the assembled access unit the detector emits: the raw NAL
// units since the previous boundary. Per-slice parsed headers and resolved
// SPS/PPS are attached downstream by the codec-specific DPB step, since
// that requires the parameter-set store which the detector does not own.
type Picture struct {
	NALUnits []nal.Unit
}

// Package submit builds the hardware-neutral decode submission of §4.5
// from parsed picture state: reference-index-to-surface-handle
// substitution, scaling-list defaults, and slice-data offset translation.
package submit

import (
	"github.com/vdpu/vdpu/internal/backend"
	"github.com/vdpu/vdpu/internal/bits"
	"github.com/vdpu/vdpu/internal/verrors"
)

// RefSentinel is the agreed sentinel for an unused reference slot, per
// §4.5.
const RefSentinel = 0xFF

// Submission is the self-contained decode submission of §3: read-only
// after construction, never mutated by the session.
type Submission struct {
	PicParams   []byte
	SliceParams []byte
	ScalingList []byte
	BitstreamData []byte
	TargetSlot  int
}

// Builder assembles Submissions from DPB-resolved reference lists.
type Builder struct {
	// SurfaceForDPBIndex resolves a DPB index (0..DPB_CAPACITY) into the
	// backend surface id currently assigned, for reference substitution.
	SurfaceForDPBIndex func(dpbIndex int) (backend.SurfaceID, bool)
}

// SubstituteReferences replaces each DPB index in refs with its current
// surface handle, emitting RefSentinel for any index with no live mapping
// (an unused reference slot, per §4.5).
func (b *Builder) SubstituteReferences(refs []int) []uint64 {
	out := make([]uint64, len(refs))
	for i, idx := range refs {
		if idx < 0 {
			out[i] = RefSentinel
			continue
		}
		surface, ok := b.SurfaceForDPBIndex(idx)
		if !ok {
			out[i] = RefSentinel
			continue
		}
		out[i] = uint64(surface)
	}
	return out
}

// SliceDataByteOffset translates a slice_data()/slice_segment_data() bit
// offset, measured against RBSP-extracted bytes, back into a byte offset
// inside the original EBSP bytes the hardware consumes, per §4.5.
func SliceDataByteOffset(rbspBitOffset int, ebsp []byte) int {
	return bits.BitOffsetToByteOffset(rbspBitOffset, ebsp) / 8
}

// HEVCScalingListSizeClass enumerates the three size classes the default
// scaling-list tables are organized by, per §4.5.
type HEVCScalingListSizeClass int

const (
	ScalingList4x4 HEVCScalingListSizeClass = iota
	ScalingList8x8
	ScalingList16x16Plus
)

// DefaultHEVCScalingList returns the standard-defined default scaling list
// for sizeClass when the sequence disables explicit scaling lists (§4.5).
// Values follow Rec. H.265 Table 7-5/7-6 (flat default for 4x4, intra/inter
// default matrices for 8x8 and larger).
func DefaultHEVCScalingList(sizeClass HEVCScalingListSizeClass, intra bool) []byte {
	switch sizeClass {
	case ScalingList4x4:
		flat := make([]byte, 16)
		for i := range flat {
			flat[i] = 16
		}
		return flat
	default:
		if intra {
			return append([]byte{}, defaultIntra8x8...)
		}
		return append([]byte{}, defaultInter8x8...)
	}
}

// defaultIntra8x8/defaultInter8x8 are the Rec. H.265 Table 7-6 default
// scaling list matrices in raster (row-major) order.
var defaultIntra8x8 = []byte{
	16, 16, 16, 16, 17, 18, 21, 24,
	16, 16, 16, 16, 17, 19, 22, 25,
	16, 16, 17, 18, 20, 22, 25, 29,
	16, 16, 18, 21, 24, 27, 31, 36,
	17, 17, 20, 24, 30, 35, 41, 47,
	18, 19, 22, 27, 35, 44, 54, 65,
	21, 22, 25, 31, 41, 54, 70, 88,
	24, 25, 29, 36, 47, 65, 88, 115,
}

var defaultInter8x8 = []byte{
	16, 16, 16, 16, 17, 18, 20, 24,
	16, 16, 16, 17, 18, 20, 24, 25,
	16, 16, 17, 18, 20, 24, 25, 28,
	16, 17, 18, 20, 24, 25, 28, 33,
	17, 18, 20, 24, 25, 28, 33, 41,
	18, 20, 24, 25, 28, 33, 41, 54,
	20, 24, 25, 28, 33, 41, 54, 71,
	24, 25, 28, 33, 41, 54, 71, 91,
}

// Build constructs a Submission, failing the whole picture atomically if
// any buffer cannot be assembled, per §4.5's atomic-submission rule.
func Build(picParams, sliceParams, scalingList, bitstreamData []byte, targetSlot int) (Submission, error) {
	if len(picParams) == 0 || len(sliceParams) == 0 {
		return Submission{}, verrors.New(verrors.KindDecodeSubmitFailed, "build_submission", nil)
	}
	return Submission{
		PicParams:     picParams,
		SliceParams:   sliceParams,
		ScalingList:   scalingList,
		BitstreamData: bitstreamData,
		TargetSlot:    targetSlot,
	}, nil
}

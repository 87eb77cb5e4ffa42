package hevc

import (
	"github.com/vdpu/vdpu/internal/bits"
	"github.com/vdpu/vdpu/internal/nal"
	"github.com/vdpu/vdpu/internal/picture"
)

// Classify adapts an HEVC NAL unit to the codec-agnostic boundary
// detector's Classifier contract (§4.3).
func Classify(u nal.Unit) (picture.Kind, picture.SliceInfo) {
	switch {
	case u.Type <= NALRaslR || (u.Type >= NALBlaWLp && u.Type <= NALCra):
		firstSlice, fieldPic, bottomField := peekFirstSliceFlags(u.RBSP)
		return picture.KindSlice, picture.SliceInfo{
			NALType:         u.Type,
			IsFirstSlice:    firstSlice,
			IsIRAP:          IsIRAP(u.Type),
			FieldPicFlag:    fieldPic,
			BottomFieldFlag: bottomField,
		}
	case u.Type == NALVps, u.Type == NALSps, u.Type == NALPps:
		return picture.KindParameterSet, picture.SliceInfo{}
	case u.Type == NALAud:
		return picture.KindAUD, picture.SliceInfo{}
	default:
		return picture.KindOther, picture.SliceInfo{}
	}
}

// peekFirstSliceFlags reads only first_slice_segment_in_pic_flag, the
// single bit the boundary detector needs before parameter sets are
// necessarily resolved. HEVC has no per-slice field-coding flag (the
// sequence is either entirely progressive or interlaced is expressed via
// source scan type SEI, not slice_segment_header), so field pairing never
// applies to this codec.
func peekFirstSliceFlags(rbsp []byte) (firstSlice, fieldPic, bottomField bool) {
	r := bits.NewReader(rbsp)
	v, err := r.ReadFlag()
	if err != nil {
		return false, false, false
	}
	return v, false, false
}

package h264

import (
	"github.com/vdpu/vdpu/internal/bits"
	"github.com/vdpu/vdpu/internal/nal"
	"github.com/vdpu/vdpu/internal/picture"
)

// NAL unit type constants relevant to boundary detection (Rec. H.264 Table 7-1).
const (
	NALSliceNonIDR = 1
	NALSliceIDR    = 5
	NALSEI         = 6
	NALSPS         = 7
	NALPPS         = 8
	NALAUD         = 9
	NALEndOfSeq    = 10
	NALEndOfStream = 11
)

// Classify adapts an H.264 NAL unit to the codec-agnostic boundary
// detector's Classifier contract (§4.3). It parses just enough of the
// slice header (first_mb_in_slice) to decide IsFirstSlice without fully
// resolving SPS/PPS, since the detector fires before parameter-set
// resolution is guaranteed possible.
func Classify(u nal.Unit) (picture.Kind, picture.SliceInfo) {
	switch u.Type {
	case NALSliceNonIDR, NALSliceIDR:
		firstMB, _ := peekFirstMbInSlice(u.RBSP)
		return picture.KindSlice, picture.SliceInfo{
			NALType:      u.Type,
			IsFirstSlice: firstMB == 0,
			IsIRAP:       u.Type == NALSliceIDR,
		}
	case NALSPS, NALPPS:
		return picture.KindParameterSet, picture.SliceInfo{}
	case NALAUD:
		return picture.KindAUD, picture.SliceInfo{}
	default:
		return picture.KindOther, picture.SliceInfo{}
	}
}

func peekFirstMbInSlice(rbsp []byte) (uint32, error) {
	r := bits.NewReader(rbsp)
	return r.ReadUE()
}

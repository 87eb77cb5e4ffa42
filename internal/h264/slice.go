package h264

import "github.com/vdpu/vdpu/internal/bits"

// SliceType enumerates the five H.264 slice types (mod 5, since slice_type
// may be coded in the 5..9 range to indicate "all slices in picture share
// this type").
type SliceType int

const (
	SliceP SliceType = iota
	SliceB
	SliceI
	SliceSP
	SliceSI
)

// MMCOOp is one memory_management_control_operation from dec_ref_pic_marking(),
// used by the AVC DPB's sliding-window/adaptive marking (§4.4).
type MMCOOp struct {
	Op                     uint32
	DifferenceOfPicNumsMinus1 uint32
	LongTermPicNum         uint32
	LongTermFrameIdx       uint32
	MaxLongTermFrameIdxPlus1 uint32
}

// RefPicListMod is one ref_pic_list_modification_flag_l0/l1 operation.
type RefPicListMod struct {
	ModOfPicNumsIdc uint32
	Value           uint32
}

// SliceHeader holds the subset of slice_header() fields the picture boundary
// detector and DPB need.
type SliceHeader struct {
	FirstMbInSlice uint32
	SliceType      SliceType
	PPSID          uint32
	FrameNum       uint32
	FieldPicFlag   bool
	BottomFieldFlag bool
	IDRPicID       uint32
	IsIDR          bool
	NALRefIDC      uint8

	PicOrderCntLsb          uint32
	DeltaPicOrderCntBottom  int32
	DeltaPicOrderCnt        [2]int32

	NoOutputOfPriorPicsFlag bool
	LongTermReferenceFlag   bool
	AdaptiveRefPicMarking    bool
	MMCOs                    []MMCOOp

	RefPicListModL0 []RefPicListMod
	RefPicListModL1 []RefPicListMod

	// SliceDataBitOffset is the bit offset, measured against the
	// RBSP-extracted bytes, of the first bit of slice_data(). The decode
	// submission builder translates this back into an EBSP byte offset
	// (§4.5, bits.BitOffsetToByteOffset).
	SliceDataBitOffset int
}

// IsFirstSliceOfPicture reports whether this slice starts a new access
// unit, per the AVC "first_mb_in_slice == 0" rule in §4.3.
func (h SliceHeader) IsFirstSliceOfPicture() bool {
	return h.FirstMbInSlice == 0
}

// ParseSliceHeader parses slice_header() given the already-resolved SPS/PPS
// for this slice's pps_id. nalType/nalRefIdc come from the NAL header.
func ParseSliceHeader(rbsp []byte, sps SPS, pps PPS, nalType uint8, nalRefIdc uint8) (SliceHeader, error) {
	r := bits.NewReader(rbsp)
	var h SliceHeader
	h.NALRefIDC = nalRefIdc
	h.IsIDR = nalType == 5
	var err error

	if h.FirstMbInSlice, err = r.ReadUE(); err != nil {
		return h, wrapTrunc(err)
	}
	sliceTypeVal, err := r.ReadUE()
	if err != nil {
		return h, wrapTrunc(err)
	}
	h.SliceType = SliceType(sliceTypeVal % 5)
	if h.PPSID, err = r.ReadUE(); err != nil {
		return h, wrapTrunc(err)
	}

	frameNum, err := r.ReadBits(int(sps.Log2MaxFrameNumMinus4) + 4)
	if err != nil {
		return h, wrapTrunc(err)
	}
	h.FrameNum = frameNum

	if !sps.FrameMbsOnlyFlag {
		if h.FieldPicFlag, err = r.ReadFlag(); err != nil {
			return h, wrapTrunc(err)
		}
		if h.FieldPicFlag {
			if h.BottomFieldFlag, err = r.ReadFlag(); err != nil {
				return h, wrapTrunc(err)
			}
		}
	}
	if h.IsIDR {
		if h.IDRPicID, err = r.ReadUE(); err != nil {
			return h, wrapTrunc(err)
		}
	}
	if sps.PicOrderCntType == 0 {
		if h.PicOrderCntLsb, err = r.ReadBits(int(sps.Log2MaxPicOrderCntLsbMinus4) + 4); err != nil {
			return h, wrapTrunc(err)
		}
		if pps.BottomFieldPicOrderInFramePresent && !h.FieldPicFlag {
			if h.DeltaPicOrderCntBottom, err = r.ReadSE(); err != nil {
				return h, wrapTrunc(err)
			}
		}
	} else if sps.PicOrderCntType == 1 && !sps.DeltaPicOrderAlwaysZero {
		if h.DeltaPicOrderCnt[0], err = r.ReadSE(); err != nil {
			return h, wrapTrunc(err)
		}
		if pps.BottomFieldPicOrderInFramePresent && !h.FieldPicFlag {
			if h.DeltaPicOrderCnt[1], err = r.ReadSE(); err != nil {
				return h, wrapTrunc(err)
			}
		}
	}

	if pps.RedundantPicCntPresent {
		if _, err = r.ReadUE(); err != nil {
			return h, wrapTrunc(err)
		}
	}

	if h.SliceType == SliceB {
		if _, err = r.ReadFlag(); err != nil { // direct_spatial_mv_pred_flag
			return h, wrapTrunc(err)
		}
	}

	if h.SliceType == SliceP || h.SliceType == SliceSP || h.SliceType == SliceB {
		numRefIdxActiveOverride, err := r.ReadFlag()
		if err != nil {
			return h, wrapTrunc(err)
		}
		if numRefIdxActiveOverride {
			if _, err = r.ReadUE(); err != nil { // num_ref_idx_l0_active_minus1
				return h, wrapTrunc(err)
			}
			if h.SliceType == SliceB {
				if _, err = r.ReadUE(); err != nil { // num_ref_idx_l1_active_minus1
					return h, wrapTrunc(err)
				}
			}
		}
	}

	if h.SliceType != SliceI && h.SliceType != SliceSI {
		mods, err := parseRefPicListMods(r)
		if err != nil {
			return h, wrapTrunc(err)
		}
		h.RefPicListModL0 = mods
	}
	if h.SliceType == SliceB {
		mods, err := parseRefPicListMods(r)
		if err != nil {
			return h, wrapTrunc(err)
		}
		h.RefPicListModL1 = mods
	}

	if (pps.WeightedPredFlag && (h.SliceType == SliceP || h.SliceType == SliceSP)) ||
		(pps.WeightedBipredIdc == 1 && h.SliceType == SliceB) {
		// pred_weight_table(): skipped in detail; not needed beyond
		// knowing it is present, since explicit weights are forwarded to
		// the backend verbatim from the raw bitstream, not re-derived.
	}

	if nalRefIdc != 0 {
		if h.IsIDR {
			if h.NoOutputOfPriorPicsFlag, err = r.ReadFlag(); err != nil {
				return h, wrapTrunc(err)
			}
			if h.LongTermReferenceFlag, err = r.ReadFlag(); err != nil {
				return h, wrapTrunc(err)
			}
		} else {
			if h.AdaptiveRefPicMarking, err = r.ReadFlag(); err != nil {
				return h, wrapTrunc(err)
			}
			if h.AdaptiveRefPicMarking {
				mmcos, err := parseMMCOs(r)
				if err != nil {
					return h, wrapTrunc(err)
				}
				h.MMCOs = mmcos
			}
		}
	}

	h.SliceDataBitOffset = r.BitPosition()
	return h, nil
}

func parseRefPicListMods(r *bits.Reader) ([]RefPicListMod, error) {
	present, err := r.ReadFlag()
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, nil
	}
	var mods []RefPicListMod
	for {
		idc, err := r.ReadUE()
		if err != nil {
			return nil, err
		}
		if idc == 3 {
			break
		}
		val, err := r.ReadUE()
		if err != nil {
			return nil, err
		}
		mods = append(mods, RefPicListMod{ModOfPicNumsIdc: idc, Value: val})
		if len(mods) > 64 {
			break // defensive bound; conformant streams never need this many
		}
	}
	return mods, nil
}

func parseMMCOs(r *bits.Reader) ([]MMCOOp, error) {
	var ops []MMCOOp
	for {
		op, err := r.ReadUE()
		if err != nil {
			return nil, err
		}
		if op == 0 {
			break
		}
		var m MMCOOp
		m.Op = op
		switch op {
		case 1, 3:
			if m.DifferenceOfPicNumsMinus1, err = r.ReadUE(); err != nil {
				return nil, err
			}
			if op == 3 {
				if m.LongTermFrameIdx, err = r.ReadUE(); err != nil {
					return nil, err
				}
			}
		case 2:
			if m.LongTermPicNum, err = r.ReadUE(); err != nil {
				return nil, err
			}
		case 4:
			if m.MaxLongTermFrameIdxPlus1, err = r.ReadUE(); err != nil {
				return nil, err
			}
		case 6:
			if m.LongTermFrameIdx, err = r.ReadUE(); err != nil {
				return nil, err
			}
		}
		ops = append(ops, m)
		if len(ops) > 64 {
			break
		}
	}
	return ops, nil
}

// PeekPPSID reads just first_mb_in_slice and slice_type to get to
// pic_parameter_set_id, letting the caller resolve the active SPS/PPS
// before committing to a full ParseSliceHeader call.
func PeekPPSID(rbsp []byte) (uint32, error) {
	r := bits.NewReader(rbsp)
	if _, err := r.ReadUE(); err != nil { // first_mb_in_slice
		return 0, err
	}
	if _, err := r.ReadUE(); err != nil { // slice_type
		return 0, err
	}
	return r.ReadUE() // pic_parameter_set_id
}

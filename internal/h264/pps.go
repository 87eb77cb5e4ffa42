package h264

import "github.com/vdpu/vdpu/internal/bits"

// PPS holds the subset of pic_parameter_set_rbsp() fields needed to resolve
// slice headers and build decode submissions.
type PPS struct {
	ID                          uint32
	SPSID                       uint32
	EntropyCodingMode           bool
	BottomFieldPicOrderInFramePresent bool
	NumSliceGroupsMinus1        uint32
	NumRefIdxL0DefaultActiveMinus1 uint32
	NumRefIdxL1DefaultActiveMinus1 uint32
	WeightedPredFlag            bool
	WeightedBipredIdc           uint32
	PicInitQpMinus26            int32
	DeblockingFilterControlPresent bool
	RedundantPicCntPresent      bool
}

// ParsePPS parses an H.264 PPS NAL unit's RBSP payload.
func ParsePPS(rbsp []byte) (PPS, error) {
	r := bits.NewReader(rbsp)
	var p PPS
	var err error

	if p.ID, err = r.ReadUE(); err != nil {
		return p, wrapTrunc(err)
	}
	if p.SPSID, err = r.ReadUE(); err != nil {
		return p, wrapTrunc(err)
	}
	if p.EntropyCodingMode, err = r.ReadFlag(); err != nil {
		return p, wrapTrunc(err)
	}
	if p.BottomFieldPicOrderInFramePresent, err = r.ReadFlag(); err != nil {
		return p, wrapTrunc(err)
	}
	if p.NumSliceGroupsMinus1, err = r.ReadUE(); err != nil {
		return p, wrapTrunc(err)
	}
	if p.NumSliceGroupsMinus1 > 0 {
		// Slice group map parsing is not needed by the decode submission
		// builder for the baseline/main/high profiles this spec targets;
		// FMO is a deprecated feature of older profiles.
		return p, nil
	}
	if p.NumRefIdxL0DefaultActiveMinus1, err = r.ReadUE(); err != nil {
		return p, wrapTrunc(err)
	}
	if p.NumRefIdxL1DefaultActiveMinus1, err = r.ReadUE(); err != nil {
		return p, wrapTrunc(err)
	}
	if p.WeightedPredFlag, err = r.ReadFlag(); err != nil {
		return p, wrapTrunc(err)
	}
	if p.WeightedBipredIdc, err = r.ReadBits(2); err != nil {
		return p, wrapTrunc(err)
	}
	picInitQp, err := r.ReadSE()
	if err != nil {
		return p, wrapTrunc(err)
	}
	p.PicInitQpMinus26 = picInitQp
	if _, err = r.ReadSE(); err != nil { // pic_init_qs_minus26
		return p, wrapTrunc(err)
	}
	if _, err = r.ReadSE(); err != nil { // chroma_qp_index_offset
		return p, wrapTrunc(err)
	}
	if p.DeblockingFilterControlPresent, err = r.ReadFlag(); err != nil {
		return p, wrapTrunc(err)
	}
	if _, err = r.ReadFlag(); err != nil { // constrained_intra_pred_flag
		return p, wrapTrunc(err)
	}
	if p.RedundantPicCntPresent, err = r.ReadFlag(); err != nil {
		return p, wrapTrunc(err)
	}
	return p, nil
}

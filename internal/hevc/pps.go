package hevc

import "github.com/vdpu/vdpu/internal/bits"

// PPS holds the subset of pic_parameter_set_rbsp() the slice header parser
// needs to know which optional fields are present.
type PPS struct {
	ID    uint32
	SPSID uint32

	DependentSliceSegmentsEnabled bool
	OutputFlagPresent             bool
	NumExtraSliceHeaderBits       uint32
	SignDataHidingEnabled         bool
	CabacInitPresent              bool

	NumRefIdxL0DefaultActiveMinus1 uint32
	NumRefIdxL1DefaultActiveMinus1 uint32
	InitQPMinus26                  int32
	ConstrainedIntraPred           bool
	TransformSkipEnabled           bool

	CuQpDeltaEnabled bool
	DiffCuQpDeltaDepth uint32

	PpsSliceChromaQpOffsetsPresent bool
	WeightedPred                   bool
	WeightedBipred                 bool
	TransquantBypassEnabled        bool

	TilesEnabled                bool
	EntropyCodingSyncEnabled    bool
	NumTileColumnsMinus1        uint32
	NumTileRowsMinus1           uint32
	UniformSpacing              bool
	LoopFilterAcrossTilesEnabled bool

	LoopFilterAcrossSlicesEnabled bool
	DeblockingFilterControlPresent bool
	DeblockingFilterOverrideEnabled bool
	PpsDeblockingFilterDisabled     bool

	ListsModificationPresent  bool
	Log2ParallelMergeLevelMinus2 uint32
	SliceSegmentHeaderExtensionPresent bool
}

// ParsePPS parses an HEVC PPS NAL unit's RBSP payload.
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
	if p.DependentSliceSegmentsEnabled, err = r.ReadFlag(); err != nil {
		return p, wrapTrunc(err)
	}
	if p.OutputFlagPresent, err = r.ReadFlag(); err != nil {
		return p, wrapTrunc(err)
	}
	if p.NumExtraSliceHeaderBits, err = r.ReadBits(3); err != nil {
		return p, wrapTrunc(err)
	}
	if p.SignDataHidingEnabled, err = r.ReadFlag(); err != nil {
		return p, wrapTrunc(err)
	}
	if p.CabacInitPresent, err = r.ReadFlag(); err != nil {
		return p, wrapTrunc(err)
	}
	if p.NumRefIdxL0DefaultActiveMinus1, err = r.ReadUE(); err != nil {
		return p, wrapTrunc(err)
	}
	if p.NumRefIdxL1DefaultActiveMinus1, err = r.ReadUE(); err != nil {
		return p, wrapTrunc(err)
	}
	initQP, err := r.ReadSE()
	if err != nil {
		return p, wrapTrunc(err)
	}
	p.InitQPMinus26 = initQP
	if p.ConstrainedIntraPred, err = r.ReadFlag(); err != nil {
		return p, wrapTrunc(err)
	}
	if p.TransformSkipEnabled, err = r.ReadFlag(); err != nil {
		return p, wrapTrunc(err)
	}
	if p.CuQpDeltaEnabled, err = r.ReadFlag(); err != nil {
		return p, wrapTrunc(err)
	}
	if p.CuQpDeltaEnabled {
		if p.DiffCuQpDeltaDepth, err = r.ReadUE(); err != nil {
			return p, wrapTrunc(err)
		}
	}
	if _, err = r.ReadSE(); err != nil { // pps_cb_qp_offset
		return p, wrapTrunc(err)
	}
	if _, err = r.ReadSE(); err != nil { // pps_cr_qp_offset
		return p, wrapTrunc(err)
	}
	if p.PpsSliceChromaQpOffsetsPresent, err = r.ReadFlag(); err != nil {
		return p, wrapTrunc(err)
	}
	if p.WeightedPred, err = r.ReadFlag(); err != nil {
		return p, wrapTrunc(err)
	}
	if p.WeightedBipred, err = r.ReadFlag(); err != nil {
		return p, wrapTrunc(err)
	}
	if p.TransquantBypassEnabled, err = r.ReadFlag(); err != nil {
		return p, wrapTrunc(err)
	}
	if p.TilesEnabled, err = r.ReadFlag(); err != nil {
		return p, wrapTrunc(err)
	}
	if p.EntropyCodingSyncEnabled, err = r.ReadFlag(); err != nil {
		return p, wrapTrunc(err)
	}
	if p.TilesEnabled {
		if p.NumTileColumnsMinus1, err = r.ReadUE(); err != nil {
			return p, wrapTrunc(err)
		}
		if p.NumTileRowsMinus1, err = r.ReadUE(); err != nil {
			return p, wrapTrunc(err)
		}
		if p.UniformSpacing, err = r.ReadFlag(); err != nil {
			return p, wrapTrunc(err)
		}
		if !p.UniformSpacing {
			for i := uint32(0); i < p.NumTileColumnsMinus1; i++ {
				if _, err = r.ReadUE(); err != nil {
					return p, wrapTrunc(err)
				}
			}
			for i := uint32(0); i < p.NumTileRowsMinus1; i++ {
				if _, err = r.ReadUE(); err != nil {
					return p, wrapTrunc(err)
				}
			}
		}
		if p.LoopFilterAcrossTilesEnabled, err = r.ReadFlag(); err != nil {
			return p, wrapTrunc(err)
		}
	}
	if p.LoopFilterAcrossSlicesEnabled, err = r.ReadFlag(); err != nil {
		return p, wrapTrunc(err)
	}
	if p.DeblockingFilterControlPresent, err = r.ReadFlag(); err != nil {
		return p, wrapTrunc(err)
	}
	if p.DeblockingFilterControlPresent {
		if p.DeblockingFilterOverrideEnabled, err = r.ReadFlag(); err != nil {
			return p, wrapTrunc(err)
		}
		if p.PpsDeblockingFilterDisabled, err = r.ReadFlag(); err != nil {
			return p, wrapTrunc(err)
		}
		if !p.PpsDeblockingFilterDisabled {
			if _, err = r.ReadSE(); err != nil { // pps_beta_offset_div2
				return p, wrapTrunc(err)
			}
			if _, err = r.ReadSE(); err != nil { // pps_tc_offset_div2
				return p, wrapTrunc(err)
			}
		}
	}
	scalingListPresent, err := r.ReadFlag()
	if err != nil {
		return p, wrapTrunc(err)
	}
	if scalingListPresent {
		if err := skipScalingListData(r); err != nil {
			return p, wrapTrunc(err)
		}
	}
	if p.ListsModificationPresent, err = r.ReadFlag(); err != nil {
		return p, wrapTrunc(err)
	}
	if p.Log2ParallelMergeLevelMinus2, err = r.ReadUE(); err != nil {
		return p, wrapTrunc(err)
	}
	if p.SliceSegmentHeaderExtensionPresent, err = r.ReadFlag(); err != nil {
		return p, wrapTrunc(err)
	}
	return p, nil
}

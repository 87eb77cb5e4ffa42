// Package h264 parses H.264/AVC sequence/picture/slice headers into the
// structures the DPB and decode-parameter builder need, per §4.4's AVC
// path and §9's note that the original H264VideoParser was stubbed —
// this is a from-the-standard implementation, not a port of that stub.
package h264

import (
	"github.com/vdpu/vdpu/internal/bits"
	"github.com/vdpu/vdpu/internal/verrors"
)

// SPS holds the subset of sequence_parameter_set_rbsp() fields the DPB and
// decode submission builder need.
type SPS struct {
	ID                    uint32
	ProfileIDC            uint8
	LevelIDC              uint8
	ChromaFormatIDC       uint32
	BitDepthLumaMinus8    uint32
	BitDepthChromaMinus8  uint32
	Log2MaxFrameNumMinus4 uint32
	PicOrderCntType       uint32
	Log2MaxPicOrderCntLsbMinus4 uint32
	DeltaPicOrderAlwaysZero     bool
	MaxNumRefFrames       uint32
	GapsInFrameNumAllowed bool
	PicWidthInMbsMinus1   uint32
	PicHeightInMapUnitsMinus1 uint32
	FrameMbsOnlyFlag      bool
	MbAdaptiveFrameField  bool
	Width                 int
	Height                int
}

// MaxFrameNum returns MaxFrameNum = 2^(log2_max_frame_num_minus4+4).
func (s SPS) MaxFrameNum() uint32 {
	return 1 << (s.Log2MaxFrameNumMinus4 + 4)
}

// MaxPicOrderCntLsb returns 2^(log2_max_pic_order_cnt_lsb_minus4+4).
func (s SPS) MaxPicOrderCntLsb() uint32 {
	return 1 << (s.Log2MaxPicOrderCntLsbMinus4 + 4)
}

var chromaFormatProfiles = map[uint32]bool{
	100: true, 110: true, 122: true, 244: true, 44: true,
	83: true, 86: true, 118: true, 128: true, 138: true, 139: true, 134: true,
}

// ParseSPS parses an H.264 SPS NAL unit's RBSP payload (NAL header byte
// already stripped, per nal.Unit.RBSP).
func ParseSPS(rbsp []byte) (SPS, error) {
	r := bits.NewReader(rbsp)
	var s SPS

	profile, err := r.ReadBits(8)
	if err != nil {
		return s, verrors.New(verrors.KindBitstreamTruncated, "parse_sps", err)
	}
	s.ProfileIDC = uint8(profile)
	if _, err := r.ReadBits(8); err != nil { // constraint_set flags + reserved
		return s, verrors.New(verrors.KindBitstreamTruncated, "parse_sps", err)
	}
	level, err := r.ReadBits(8)
	if err != nil {
		return s, verrors.New(verrors.KindBitstreamTruncated, "parse_sps", err)
	}
	s.LevelIDC = uint8(level)

	id, err := r.ReadUE()
	if err != nil {
		return s, verrors.New(verrors.KindBitstreamTruncated, "parse_sps", err)
	}
	s.ID = id

	s.ChromaFormatIDC = 1
	separateColourPlane := false
	if chromaFormatProfiles[uint32(s.ProfileIDC)] {
		s.ChromaFormatIDC, err = r.ReadUE()
		if err != nil {
			return s, wrapTrunc(err)
		}
		if s.ChromaFormatIDC == 3 {
			v, err := r.ReadFlag()
			if err != nil {
				return s, wrapTrunc(err)
			}
			separateColourPlane = v
		}
		if s.BitDepthLumaMinus8, err = r.ReadUE(); err != nil {
			return s, wrapTrunc(err)
		}
		if s.BitDepthChromaMinus8, err = r.ReadUE(); err != nil {
			return s, wrapTrunc(err)
		}
		if _, err := r.ReadFlag(); err != nil { // qpprime_y_zero_transform_bypass_flag
			return s, wrapTrunc(err)
		}
		scalingMatrixPresent, err := r.ReadFlag()
		if err != nil {
			return s, wrapTrunc(err)
		}
		if scalingMatrixPresent {
			limit := 8
			if s.ChromaFormatIDC == 3 {
				limit = 12
			}
			for i := 0; i < limit; i++ {
				present, err := r.ReadFlag()
				if err != nil {
					return s, wrapTrunc(err)
				}
				if present {
					size := 16
					if i >= 6 {
						size = 64
					}
					if err := skipScalingList(r, size); err != nil {
						return s, wrapTrunc(err)
					}
				}
			}
		}
	}

	if s.Log2MaxFrameNumMinus4, err = r.ReadUE(); err != nil {
		return s, wrapTrunc(err)
	}
	if s.PicOrderCntType, err = r.ReadUE(); err != nil {
		return s, wrapTrunc(err)
	}
	switch s.PicOrderCntType {
	case 0:
		if s.Log2MaxPicOrderCntLsbMinus4, err = r.ReadUE(); err != nil {
			return s, wrapTrunc(err)
		}
	case 1:
		if s.DeltaPicOrderAlwaysZero, err = r.ReadFlag(); err != nil {
			return s, wrapTrunc(err)
		}
		if _, err = r.ReadSE(); err != nil { // offset_for_non_ref_pic
			return s, wrapTrunc(err)
		}
		if _, err = r.ReadSE(); err != nil { // offset_for_top_to_bottom_field
			return s, wrapTrunc(err)
		}
		numRefFramesInCycle, err := r.ReadUE()
		if err != nil {
			return s, wrapTrunc(err)
		}
		for i := uint32(0); i < numRefFramesInCycle; i++ {
			if _, err := r.ReadSE(); err != nil {
				return s, wrapTrunc(err)
			}
		}
	}

	if s.MaxNumRefFrames, err = r.ReadUE(); err != nil {
		return s, wrapTrunc(err)
	}
	if s.GapsInFrameNumAllowed, err = r.ReadFlag(); err != nil {
		return s, wrapTrunc(err)
	}
	if s.PicWidthInMbsMinus1, err = r.ReadUE(); err != nil {
		return s, wrapTrunc(err)
	}
	if s.PicHeightInMapUnitsMinus1, err = r.ReadUE(); err != nil {
		return s, wrapTrunc(err)
	}
	if s.FrameMbsOnlyFlag, err = r.ReadFlag(); err != nil {
		return s, wrapTrunc(err)
	}
	if !s.FrameMbsOnlyFlag {
		if s.MbAdaptiveFrameField, err = r.ReadFlag(); err != nil {
			return s, wrapTrunc(err)
		}
	}
	if _, err = r.ReadFlag(); err != nil { // direct_8x8_inference_flag
		return s, wrapTrunc(err)
	}

	cropLeft, cropRight, cropTop, cropBottom := uint32(0), uint32(0), uint32(0), uint32(0)
	cropPresent, err := r.ReadFlag()
	if err != nil {
		return s, wrapTrunc(err)
	}
	if cropPresent {
		if cropLeft, err = r.ReadUE(); err != nil {
			return s, wrapTrunc(err)
		}
		if cropRight, err = r.ReadUE(); err != nil {
			return s, wrapTrunc(err)
		}
		if cropTop, err = r.ReadUE(); err != nil {
			return s, wrapTrunc(err)
		}
		if cropBottom, err = r.ReadUE(); err != nil {
			return s, wrapTrunc(err)
		}
	}

	chromaArrayType := s.ChromaFormatIDC
	if separateColourPlane {
		chromaArrayType = 0
	}
	subWidthC, subHeightC := uint32(2), uint32(2)
	switch chromaArrayType {
	case 1:
		subWidthC, subHeightC = 2, 2
	case 2:
		subWidthC, subHeightC = 2, 1
	case 3:
		subWidthC, subHeightC = 1, 1
	case 0:
		subWidthC, subHeightC = 1, 1
	}

	frameMbsOnlyMul := uint32(2)
	if s.FrameMbsOnlyFlag {
		frameMbsOnlyMul = 1
	}
	cropUnitX := subWidthC
	cropUnitY := subHeightC * frameMbsOnlyMul

	s.Width = int((s.PicWidthInMbsMinus1+1)*16 - cropUnitX*(cropLeft+cropRight))
	heightMapUnits := (s.PicHeightInMapUnitsMinus1 + 1) * 16
	if !s.FrameMbsOnlyFlag {
		heightMapUnits *= 2
	}
	s.Height = int(heightMapUnits - cropUnitY*(cropTop+cropBottom))

	return s, nil
}

func wrapTrunc(err error) error {
	return verrors.New(verrors.KindBitstreamTruncated, "parse_sps", err)
}

func skipScalingList(r *bits.Reader, size int) error {
	lastScale, nextScale := int32(8), int32(8)
	for j := 0; j < size; j++ {
		if nextScale != 0 {
			delta, err := r.ReadSE()
			if err != nil {
				return err
			}
			nextScale = (lastScale + delta + 256) % 256
		}
		if nextScale != 0 {
			lastScale = nextScale
		}
	}
	return nil
}

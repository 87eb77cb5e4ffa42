// Package hevc parses H.265/HEVC VPS/SPS/PPS/slice headers and derives POC
// and short-term reference picture sets, per §4.4's HEVC path. Ported and
// generalized from the profile/tier/level and dimension parsing the teacher
// repo already does for RFC 6381 codec strings (demux/h265.go), extended
// here with the fields the DPB and decode submission builder need.
package hevc

import (
	"github.com/vdpu/vdpu/internal/bits"
	"github.com/vdpu/vdpu/internal/verrors"
)

// ShortTermRPS is one short_term_ref_pic_set() entry, either signaled in the
// SPS or the slice header, per §4.4.2.
type ShortTermRPS struct {
	NumNegativePics int
	NumPositivePics int
	DeltaPocS0      []int32 // cumulative negative-direction deltas
	UsedByCurrS0    []bool
	DeltaPocS1      []int32 // cumulative positive-direction deltas
	UsedByCurrS1    []bool
}

// SPS holds the subset of seq_parameter_set_rbsp() fields the DPB and
// submission builder need.
type SPS struct {
	ID                   uint32
	VPSID                uint32
	MaxSubLayersMinus1   uint32

	ProfileIDC           uint8
	TierFlag             uint8
	LevelIDC             uint8

	ChromaFormatIDC      uint32
	SeparateColourPlane  bool
	Width                int
	Height               int
	BitDepthLumaMinus8   uint32
	BitDepthChromaMinus8 uint32

	Log2MaxPicOrderCntLsbMinus4 uint32
	MaxDecPicBuffering          []uint32 // per sub-layer, sps_max_dec_pic_buffering_minus1+1
	MaxNumReorderPics           []uint32

	ShortTermRPS []ShortTermRPS

	LongTermRefPicsPresent bool
	NumLongTermRefPicsSPS  uint32
	LtRefPicPocLsbSPS      []uint32
	UsedByCurrPicLtSPS     []bool

	TemporalMVPEnabled bool
	StrongIntraSmoothing bool

	ScalingListEnabled bool
	ScalingListDataPresent bool

	SAOEnabled bool
}

// MaxPicOrderCntLsb returns 2^(log2_max_pic_order_cnt_lsb_minus4+4).
func (s SPS) MaxPicOrderCntLsb() uint32 {
	return 1 << (s.Log2MaxPicOrderCntLsbMinus4 + 4)
}

// ParseSPS parses an HEVC SPS NAL unit's RBSP payload (the 2-byte NAL
// header already stripped, per nal.Unit.RBSP).
func ParseSPS(rbsp []byte) (SPS, error) {
	r := bits.NewReader(rbsp)
	var s SPS
	var err error

	vpsID, err := r.ReadBits(4)
	if err != nil {
		return s, wrapTrunc(err)
	}
	s.VPSID = vpsID

	maxSubLayersMinus1, err := r.ReadBits(3)
	if err != nil {
		return s, wrapTrunc(err)
	}
	s.MaxSubLayersMinus1 = maxSubLayersMinus1

	if _, err = r.ReadFlag(); err != nil { // sps_temporal_id_nesting_flag
		return s, wrapTrunc(err)
	}

	if err := parseProfileTierLevel(r, &s, maxSubLayersMinus1); err != nil {
		return s, wrapTrunc(err)
	}

	if s.ID, err = r.ReadUE(); err != nil {
		return s, wrapTrunc(err)
	}
	if s.ChromaFormatIDC, err = r.ReadUE(); err != nil {
		return s, wrapTrunc(err)
	}
	if s.ChromaFormatIDC == 3 {
		if s.SeparateColourPlane, err = r.ReadFlag(); err != nil {
			return s, wrapTrunc(err)
		}
	}
	width, err := r.ReadUE()
	if err != nil {
		return s, wrapTrunc(err)
	}
	height, err := r.ReadUE()
	if err != nil {
		return s, wrapTrunc(err)
	}
	s.Width, s.Height = int(width), int(height)

	confWindow, err := r.ReadFlag()
	if err != nil {
		return s, wrapTrunc(err)
	}
	if confWindow {
		left, _ := r.ReadUE()
		right, _ := r.ReadUE()
		top, _ := r.ReadUE()
		bottom, _ := r.ReadUE()
		subW, subH := chromaSubsampling(s.ChromaFormatIDC)
		s.Width -= int((left + right) * subW)
		s.Height -= int((top + bottom) * subH)
	}

	if s.BitDepthLumaMinus8, err = r.ReadUE(); err != nil {
		return s, wrapTrunc(err)
	}
	if s.BitDepthChromaMinus8, err = r.ReadUE(); err != nil {
		return s, wrapTrunc(err)
	}
	if s.Log2MaxPicOrderCntLsbMinus4, err = r.ReadUE(); err != nil {
		return s, wrapTrunc(err)
	}

	subLayerOrderingInfoPresent, err := r.ReadFlag()
	if err != nil {
		return s, wrapTrunc(err)
	}
	first := uint32(0)
	if subLayerOrderingInfoPresent {
		first = 0
	} else {
		first = maxSubLayersMinus1
	}
	for i := first; i <= maxSubLayersMinus1; i++ {
		maxDecPicBuf, err := r.ReadUE()
		if err != nil {
			return s, wrapTrunc(err)
		}
		maxNumReorder, err := r.ReadUE()
		if err != nil {
			return s, wrapTrunc(err)
		}
		if _, err := r.ReadUE(); err != nil { // sps_max_latency_increase_plus1
			return s, wrapTrunc(err)
		}
		s.MaxDecPicBuffering = append(s.MaxDecPicBuffering, maxDecPicBuf+1)
		s.MaxNumReorderPics = append(s.MaxNumReorderPics, maxNumReorder)
	}

	if _, err = r.ReadUE(); err != nil { // log2_min_luma_coding_block_size_minus3
		return s, wrapTrunc(err)
	}
	if _, err = r.ReadUE(); err != nil { // log2_diff_max_min_luma_coding_block_size
		return s, wrapTrunc(err)
	}
	if _, err = r.ReadUE(); err != nil { // log2_min_luma_transform_block_size_minus2
		return s, wrapTrunc(err)
	}
	if _, err = r.ReadUE(); err != nil { // log2_diff_max_min_luma_transform_block_size
		return s, wrapTrunc(err)
	}
	if _, err = r.ReadUE(); err != nil { // max_transform_hierarchy_depth_inter
		return s, wrapTrunc(err)
	}
	if _, err = r.ReadUE(); err != nil { // max_transform_hierarchy_depth_intra
		return s, wrapTrunc(err)
	}

	if s.ScalingListEnabled, err = r.ReadFlag(); err != nil {
		return s, wrapTrunc(err)
	}
	if s.ScalingListEnabled {
		if s.ScalingListDataPresent, err = r.ReadFlag(); err != nil {
			return s, wrapTrunc(err)
		}
		if s.ScalingListDataPresent {
			if err := skipScalingListData(r); err != nil {
				return s, wrapTrunc(err)
			}
		}
	}

	if _, err = r.ReadFlag(); err != nil { // amp_enabled_flag
		return s, wrapTrunc(err)
	}

	if s.SAOEnabled, err = r.ReadFlag(); err != nil {
		return s, wrapTrunc(err)
	}

	pcmEnabled, err := r.ReadFlag()
	if err != nil {
		return s, wrapTrunc(err)
	}
	if pcmEnabled {
		if _, err = r.ReadBits(4); err != nil {
			return s, wrapTrunc(err)
		}
		if _, err = r.ReadBits(4); err != nil {
			return s, wrapTrunc(err)
		}
		if _, err = r.ReadUE(); err != nil {
			return s, wrapTrunc(err)
		}
		if _, err = r.ReadUE(); err != nil {
			return s, wrapTrunc(err)
		}
		if _, err = r.ReadFlag(); err != nil {
			return s, wrapTrunc(err)
		}
	}

	numShortTermRefPicSets, err := r.ReadUE()
	if err != nil {
		return s, wrapTrunc(err)
	}
	s.ShortTermRPS = make([]ShortTermRPS, 0, numShortTermRefPicSets)
	for i := uint32(0); i < numShortTermRefPicSets; i++ {
		rps, err := parseShortTermRPS(r, s.ShortTermRPS, int(i))
		if err != nil {
			return s, wrapTrunc(err)
		}
		s.ShortTermRPS = append(s.ShortTermRPS, rps)
	}

	if s.LongTermRefPicsPresent, err = r.ReadFlag(); err != nil {
		return s, wrapTrunc(err)
	}
	if s.LongTermRefPicsPresent {
		if s.NumLongTermRefPicsSPS, err = r.ReadUE(); err != nil {
			return s, wrapTrunc(err)
		}
		for i := uint32(0); i < s.NumLongTermRefPicsSPS; i++ {
			lsb, err := r.ReadBits(int(s.Log2MaxPicOrderCntLsbMinus4) + 4)
			if err != nil {
				return s, wrapTrunc(err)
			}
			used, err := r.ReadFlag()
			if err != nil {
				return s, wrapTrunc(err)
			}
			s.LtRefPicPocLsbSPS = append(s.LtRefPicPocLsbSPS, lsb)
			s.UsedByCurrPicLtSPS = append(s.UsedByCurrPicLtSPS, used)
		}
	}

	if s.TemporalMVPEnabled, err = r.ReadFlag(); err != nil {
		return s, wrapTrunc(err)
	}
	if s.StrongIntraSmoothing, err = r.ReadFlag(); err != nil {
		return s, wrapTrunc(err)
	}

	return s, nil
}

func chromaSubsampling(chromaFormatIDC uint32) (uint32, uint32) {
	switch chromaFormatIDC {
	case 1:
		return 2, 2
	case 2:
		return 2, 1
	default:
		return 1, 1
	}
}

func wrapTrunc(err error) error {
	return verrors.New(verrors.KindBitstreamTruncated, "parse_hevc", err)
}

func parseProfileTierLevel(r *bits.Reader, s *SPS, maxSubLayersMinus1 uint32) error {
	if _, err := r.ReadBits(2); err != nil { // general_profile_space
		return err
	}
	tier, err := r.ReadFlag()
	if err != nil {
		return err
	}
	if tier {
		s.TierFlag = 1
	}
	profile, err := r.ReadBits(5)
	if err != nil {
		return err
	}
	s.ProfileIDC = uint8(profile)
	if err := r.SkipBits(32); err != nil { // general_profile_compatibility_flags
		return err
	}
	if err := r.SkipBits(48); err != nil { // general_constraint_indicator_flags
		return err
	}
	level, err := r.ReadBits(8)
	if err != nil {
		return err
	}
	s.LevelIDC = uint8(level)

	if maxSubLayersMinus1 == 0 {
		return nil
	}
	profilePresent := make([]bool, maxSubLayersMinus1)
	levelPresent := make([]bool, maxSubLayersMinus1)
	for i := uint32(0); i < maxSubLayersMinus1; i++ {
		pp, err := r.ReadFlag()
		if err != nil {
			return err
		}
		profilePresent[i] = pp
		lp, err := r.ReadFlag()
		if err != nil {
			return err
		}
		levelPresent[i] = lp
	}
	if maxSubLayersMinus1 < 8 {
		for i := maxSubLayersMinus1; i < 8; i++ {
			if err := r.SkipBits(2); err != nil {
				return err
			}
		}
	}
	for i := uint32(0); i < maxSubLayersMinus1; i++ {
		if profilePresent[i] {
			if err := r.SkipBits(88); err != nil {
				return err
			}
		}
		if levelPresent[i] {
			if err := r.SkipBits(8); err != nil {
				return err
			}
		}
	}
	return nil
}

func skipScalingListData(r *bits.Reader) error {
	for sizeID := 0; sizeID < 4; sizeID++ {
		step := 1
		if sizeID == 3 {
			step = 3
		}
		for matrixID := 0; matrixID < 6; matrixID += step {
			predMode, err := r.ReadFlag()
			if err != nil {
				return err
			}
			if !predMode {
				if _, err := r.ReadUE(); err != nil { // scaling_list_pred_matrix_id_delta
					return err
				}
				continue
			}
			coefNum := 64
			if sizeID == 0 {
				coefNum = 16
			}
			if sizeID > 1 {
				if _, err := r.ReadSE(); err != nil { // scaling_list_dc_coef_minus8
					return err
				}
			}
			for i := 0; i < coefNum; i++ {
				if _, err := r.ReadSE(); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

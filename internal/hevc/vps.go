package hevc

import "github.com/vdpu/vdpu/internal/bits"

// VPS holds a subset of video_parameter_set_rbsp(). The parameter set
// store keeps it by ID but does not check an SPS's
// sps_video_parameter_set_id against it.
// The decode path itself never reads beyond the base layer, so profile/tier
// information is not duplicated here (it lives on SPS).
type VPS struct {
	ID                 uint32
	MaxSubLayersMinus1  uint32
	TemporalIDNesting   bool
}

// ParseVPS parses just enough of video_parameter_set_rbsp() to register the
// VPS id; profile_tier_level() and the layer-set tables are skipped since
// this decoder never enables multi-layer HEVC.
func ParseVPS(rbsp []byte) (VPS, error) {
	r := bits.NewReader(rbsp)
	var v VPS
	var err error

	if v.ID, err = r.ReadBits(4); err != nil {
		return v, wrapTrunc(err)
	}
	if err = r.SkipBits(2); err != nil { // vps_base_layer_internal/available_flag
		return v, wrapTrunc(err)
	}
	if err = r.SkipBits(6); err != nil { // vps_max_layers_minus1
		return v, wrapTrunc(err)
	}
	maxSubLayersMinus1, err := r.ReadBits(3)
	if err != nil {
		return v, wrapTrunc(err)
	}
	v.MaxSubLayersMinus1 = maxSubLayersMinus1
	if v.TemporalIDNesting, err = r.ReadFlag(); err != nil {
		return v, wrapTrunc(err)
	}
	return v, nil
}

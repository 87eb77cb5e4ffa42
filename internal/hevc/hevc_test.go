package hevc

import "testing"

// buildMainProfileSPS constructs a minimal single-sub-layer main-profile
// 1920x1080 SPS with pic_order_cnt_lsb width 8, no scaling lists, no VUI,
// no long-term reference pictures, and zero short_term_ref_pic_sets.
func buildMainProfileSPS() []byte {
	w := newBitWriter()
	w.bits(4, 0) // sps_video_parameter_set_id
	w.bits(3, 0) // sps_max_sub_layers_minus1
	w.flag(true) // sps_temporal_id_nesting_flag

	// profile_tier_level (general, maxSubLayersMinus1 == 0)
	w.bits(2, 0)   // general_profile_space
	w.flag(false)  // general_tier_flag
	w.bits(5, 1)   // general_profile_idc = Main
	w.bits(32, 0x60000000) // general_profile_compatibility_flags
	w.bits(48, 0)  // general_constraint_indicator_flags (spans reserved+flags)
	w.bits(8, 120) // general_level_idc

	w.ue(0) // sps_seq_parameter_set_id
	w.ue(1) // chroma_format_idc = 4:2:0
	w.ue(1920) // pic_width_in_luma_samples
	w.ue(1080) // pic_height_in_luma_samples
	w.flag(false) // conformance_window_flag
	w.ue(0) // bit_depth_luma_minus8
	w.ue(0) // bit_depth_chroma_minus8
	w.ue(4) // log2_max_pic_order_cnt_lsb_minus4 -> 8 bits
	w.flag(true) // sps_sub_layer_ordering_info_present_flag
	w.ue(5) // sps_max_dec_pic_buffering_minus1
	w.ue(2) // sps_max_num_reorder_pics
	w.ue(0) // sps_max_latency_increase_plus1
	w.ue(0) // log2_min_luma_coding_block_size_minus3
	w.ue(3) // log2_diff_max_min_luma_coding_block_size
	w.ue(0) // log2_min_luma_transform_block_size_minus2
	w.ue(3) // log2_diff_max_min_luma_transform_block_size
	w.ue(0) // max_transform_hierarchy_depth_inter
	w.ue(0) // max_transform_hierarchy_depth_intra
	w.flag(false) // scaling_list_enabled_flag
	w.flag(false) // amp_enabled_flag
	w.flag(true)  // sample_adaptive_offset_enabled_flag
	w.flag(false) // pcm_enabled_flag
	w.ue(0)       // num_short_term_ref_pic_sets
	w.flag(false) // long_term_ref_pics_present_flag
	w.flag(true)  // sps_temporal_mvp_enabled_flag
	w.flag(true)  // strong_intra_smoothing_enabled_flag
	return w.bytes()
}

func TestParseSPSResolution(t *testing.T) {
	t.Parallel()
	sps, err := ParseSPS(buildMainProfileSPS())
	if err != nil {
		t.Fatalf("ParseSPS: %v", err)
	}
	if sps.Width != 1920 || sps.Height != 1080 {
		t.Errorf("dimensions: got %dx%d want 1920x1080", sps.Width, sps.Height)
	}
	if sps.ProfileIDC != 1 {
		t.Errorf("ProfileIDC: got %d want 1", sps.ProfileIDC)
	}
	if sps.MaxPicOrderCntLsb() != 256 {
		t.Errorf("MaxPicOrderCntLsb: got %d want 256", sps.MaxPicOrderCntLsb())
	}
	if !sps.SAOEnabled {
		t.Error("expected SAOEnabled")
	}
	if !sps.StrongIntraSmoothing {
		t.Error("expected StrongIntraSmoothing")
	}
	if len(sps.ShortTermRPS) != 0 {
		t.Errorf("expected zero short-term RPS entries, got %d", len(sps.ShortTermRPS))
	}
}

func buildPPS() []byte {
	w := newBitWriter()
	w.ue(0)       // pps_pic_parameter_set_id
	w.ue(0)       // pps_seq_parameter_set_id
	w.flag(false) // dependent_slice_segments_enabled_flag
	w.flag(false) // output_flag_present_flag
	w.bits(3, 0)  // num_extra_slice_header_bits
	w.flag(false) // sign_data_hiding_enabled_flag
	w.flag(false) // cabac_init_present_flag
	w.ue(0)       // num_ref_idx_l0_default_active_minus1
	w.ue(0)       // num_ref_idx_l1_default_active_minus1
	w.se(0)       // init_qp_minus26
	w.flag(false) // constrained_intra_pred_flag
	w.flag(false) // transform_skip_enabled_flag
	w.flag(false) // cu_qp_delta_enabled_flag
	w.se(0)       // pps_cb_qp_offset
	w.se(0)       // pps_cr_qp_offset
	w.flag(false) // pps_slice_chroma_qp_offsets_present_flag
	w.flag(false) // weighted_pred_flag
	w.flag(false) // weighted_bipred_flag
	w.flag(false) // transquant_bypass_enabled_flag
	w.flag(false) // tiles_enabled_flag
	w.flag(false) // entropy_coding_sync_enabled_flag
	w.flag(true)  // pps_loop_filter_across_slices_enabled_flag
	w.flag(false) // deblocking_filter_control_present_flag
	w.flag(false) // pps_scaling_list_data_present_flag
	w.flag(false) // lists_modification_present_flag
	w.ue(2)       // log2_parallel_merge_level_minus2
	w.flag(false) // slice_segment_header_extension_present_flag
	return w.bytes()
}

func TestParsePPS(t *testing.T) {
	t.Parallel()
	pps, err := ParsePPS(buildPPS())
	if err != nil {
		t.Fatalf("ParsePPS: %v", err)
	}
	if pps.SPSID != 0 {
		t.Errorf("SPSID: got %d want 0", pps.SPSID)
	}
	if !pps.LoopFilterAcrossSlicesEnabled {
		t.Error("expected LoopFilterAcrossSlicesEnabled")
	}
}

func TestParseSliceHeaderIDR(t *testing.T) {
	t.Parallel()
	sps, err := ParseSPS(buildMainProfileSPS())
	if err != nil {
		t.Fatal(err)
	}
	pps, err := ParsePPS(buildPPS())
	if err != nil {
		t.Fatal(err)
	}

	w := newBitWriter()
	w.flag(true)  // first_slice_segment_in_pic_flag
	w.flag(false) // no_output_of_prior_pics_flag (IRAP)
	w.ue(0)       // slice_pic_parameter_set_id
	// first_slice_segment_in_pic_flag == true, so no segment address read
	w.bits(0, 0)  // (no extra slice header bits: num_extra_slice_header_bits == 0)
	w.ue(uint32(SliceI)) // slice_type
	// pps.OutputFlagPresent == false -> no pic_output_flag bit
	// IDR nal type: no poc_lsb / short-term rps / long-term / temporal mvp
	w.flag(true)  // sample_adaptive_offset_enabled: slice_sao_luma_flag
	w.flag(true)  // slice_sao_chroma_flag (chroma_format_idc != 0)
	w.se(0)       // slice_qp_delta
	w.flag(true)  // slice_loop_filter_across_slices_enabled_flag

	h, err := ParseSliceHeader(w.bytes(), sps, pps, NALIdrWRadl)
	if err != nil {
		t.Fatalf("ParseSliceHeader: %v", err)
	}
	if !h.FirstSliceSegmentInPic {
		t.Error("expected FirstSliceSegmentInPic")
	}
	if h.SliceType != SliceI {
		t.Errorf("SliceType: got %d want I", h.SliceType)
	}
}

func TestIRAPClassification(t *testing.T) {
	t.Parallel()
	if !IsIDR(NALIdrWRadl) || !IsIDR(NALIdrNLp) {
		t.Error("expected both IDR NAL types to report IsIDR")
	}
	if !IsBLA(NALBlaWLp) || !IsBLA(NALBlaWRadl) || !IsBLA(NALBlaNLp) {
		t.Error("expected all BLA NAL types to report IsBLA")
	}
	if !IsIRAP(NALCra) {
		t.Error("expected CRA to report IsIRAP")
	}
	if IsIRAP(NALTrailR) {
		t.Error("did not expect TRAIL_R to report IsIRAP")
	}
	if !IsRASL(NALRaslN) || !IsRASL(NALRaslR) {
		t.Error("expected RASL NAL types to report IsRASL")
	}
}

func TestDerivePOCWraparound(t *testing.T) {
	t.Parallel()
	sps := SPS{Log2MaxPicOrderCntLsbMinus4: 0} // MaxPicOrderCntLsb = 16
	state := POCState{PrevPicOrderCntMsb: 0, PrevPicOrderCntLsb: 15}
	// lsb wraps from 15 to 0: should bump MSB forward by MaxPicOrderCntLsb.
	poc := DerivePOC(sps, 0, false, state)
	if poc != 16 {
		t.Errorf("DerivePOC wraparound: got %d want 16", poc)
	}
}

func TestDerivePOCIRAP(t *testing.T) {
	t.Parallel()
	sps := SPS{Log2MaxPicOrderCntLsbMinus4: 4}
	poc := DerivePOC(sps, 42, true, POCState{})
	if poc != 42 {
		t.Errorf("DerivePOC IRAP: got %d want 42 (lsb passthrough)", poc)
	}
}

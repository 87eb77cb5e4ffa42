package h264

import "testing"

// buildBaselineSPS constructs a minimal SPS RBSP for a 640x352 baseline-profile
// sequence with pic_order_cnt_type=0, no scaling lists, no VUI, no cropping.
func buildBaselineSPS() []byte {
	w := newBitWriter()
	w.bits(8, 66)  // profile_idc = 66 (baseline), no chroma_format_idc field
	w.bits(8, 0)   // constraint flags
	w.bits(8, 30)  // level_idc
	w.ue(0)        // seq_parameter_set_id
	w.ue(4)        // log2_max_frame_num_minus4 -> 8 bits
	w.ue(0)        // pic_order_cnt_type = 0
	w.ue(4)        // log2_max_pic_order_cnt_lsb_minus4 -> 8 bits
	w.ue(2)        // max_num_ref_frames
	w.flag(false)  // gaps_in_frame_num_value_allowed_flag
	w.ue(39)       // pic_width_in_mbs_minus1 -> (39+1)*16 = 640
	w.ue(21)       // pic_height_in_map_units_minus1 -> (21+1)*16 = 352... close enough for the test
	w.flag(true)   // frame_mbs_only_flag
	w.flag(false)  // direct_8x8_inference_flag
	w.flag(false)  // frame_cropping_flag
	w.flag(false)  // vui_parameters_present_flag
	return w.bytes()
}

func TestParseSPSResolution(t *testing.T) {
	t.Parallel()
	sps, err := ParseSPS(buildBaselineSPS())
	if err != nil {
		t.Fatalf("ParseSPS: %v", err)
	}
	if sps.Width != 640 {
		t.Errorf("Width: got %d want 640", sps.Width)
	}
	if sps.Height != 352 {
		t.Errorf("Height: got %d want 352", sps.Height)
	}
	if sps.MaxFrameNum() != 256 {
		t.Errorf("MaxFrameNum: got %d want 256", sps.MaxFrameNum())
	}
	if sps.PicOrderCntType != 0 {
		t.Errorf("PicOrderCntType: got %d want 0", sps.PicOrderCntType)
	}
}

func buildPPS() []byte {
	w := newBitWriter()
	w.ue(0) // pps id
	w.ue(0) // sps id
	w.flag(true) // entropy_coding_mode_flag (CABAC)
	w.flag(false) // bottom_field_pic_order_in_frame_present_flag
	w.ue(0)       // num_slice_groups_minus1
	w.ue(0)       // num_ref_idx_l0_default_active_minus1
	w.ue(0)       // num_ref_idx_l1_default_active_minus1
	w.flag(false) // weighted_pred_flag
	w.bits(2, 0)  // weighted_bipred_idc
	w.se(0)       // pic_init_qp_minus26
	w.se(0)       // pic_init_qs_minus26
	w.se(0)       // chroma_qp_index_offset
	w.flag(false) // deblocking_filter_control_present_flag
	w.flag(false) // constrained_intra_pred_flag
	w.flag(false) // redundant_pic_cnt_present_flag
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
	if !pps.EntropyCodingMode {
		t.Errorf("expected CABAC entropy mode")
	}
}

func TestParseSliceHeaderIDR(t *testing.T) {
	t.Parallel()
	sps, err := ParseSPS(buildBaselineSPS())
	if err != nil {
		t.Fatal(err)
	}
	pps, err := ParsePPS(buildPPS())
	if err != nil {
		t.Fatal(err)
	}

	w := newBitWriter()
	w.ue(0) // first_mb_in_slice
	w.ue(7) // slice_type = I (7 % 5 == 2)
	w.ue(0) // pps_id
	w.bits(8, 0) // frame_num (log2_max_frame_num = 8)
	w.ue(0)      // idr_pic_id
	w.bits(8, 0) // pic_order_cnt_lsb (log2_max_poc_lsb = 8)
	w.flag(false) // no_output_of_prior_pics_flag
	w.flag(false) // long_term_reference_flag

	h, err := ParseSliceHeader(w.bytes(), sps, pps, 5, 1)
	if err != nil {
		t.Fatalf("ParseSliceHeader: %v", err)
	}
	if !h.IsIDR {
		t.Error("expected IsIDR")
	}
	if h.SliceType != SliceI {
		t.Errorf("SliceType: got %d want I", h.SliceType)
	}
	if !h.IsFirstSliceOfPicture() {
		t.Error("expected first_mb_in_slice == 0")
	}
}

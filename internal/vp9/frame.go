// Package vp9 provides minimal VP9 frame-header scaffolding: just enough
// of uncompressed_header() to drive the 8-slot reference store and the
// show_existing_frame fast path (§4.4 "VP9", §12 supplemented feature).
// Full residual/probability-table parsing is out of scope since the
// backend, not this package, performs VP9 entropy decoding.
package vp9

import (
	"github.com/vdpu/vdpu/internal/bits"
	"github.com/vdpu/vdpu/internal/verrors"
)

// FrameType distinguishes key frames (full reset) from inter frames.
type FrameType int

const (
	FrameKey FrameType = iota
	FrameInter
)

// FrameHeader holds the subset of VP9's uncompressed_header() the DPB and
// decode submission builder need.
type FrameHeader struct {
	ShowExistingFrame bool
	FrameToShowMapIdx uint8

	FrameType   FrameType
	ShowFrame   bool
	ErrorResilientMode bool

	Width, Height int

	RefreshFrameFlags uint8 // 8-bit mask, one bit per reference slot
	RefreshFrameContext bool

	RefFrameIdx [3]uint8 // LAST, GOLDEN, ALTREF slot indices for inter frames
	RefFrameSignBias [3]bool
}

const frameSyncCode = 0x498342

// ParseUncompressedHeaderPrefix parses the frame marker, profile, and
// show_existing_frame fast path, returning early for that case since no
// further header fields exist when a frame is merely re-shown.
func ParseUncompressedHeaderPrefix(data []byte) (FrameHeader, error) {
	r := bits.NewReader(data)
	var h FrameHeader

	frameMarker, err := r.ReadBits(2)
	if err != nil {
		return h, wrapTrunc(err)
	}
	if frameMarker != 2 {
		return h, verrors.New(verrors.KindInvalidFormat, "parse_vp9_header", nil)
	}

	profileLowBit, err := r.ReadBits(1)
	if err != nil {
		return h, wrapTrunc(err)
	}
	profileHighBit, err := r.ReadBits(1)
	if err != nil {
		return h, wrapTrunc(err)
	}
	profile := profileHighBit<<1 | profileLowBit
	if profile == 3 {
		if _, err := r.ReadBits(1); err != nil { // reserved_zero
			return h, wrapTrunc(err)
		}
	}

	showExisting, err := r.ReadFlag()
	if err != nil {
		return h, wrapTrunc(err)
	}
	h.ShowExistingFrame = showExisting
	if showExisting {
		idx, err := r.ReadBits(3)
		if err != nil {
			return h, wrapTrunc(err)
		}
		h.FrameToShowMapIdx = uint8(idx)
		return h, nil
	}

	frameType, err := r.ReadBits(1)
	if err != nil {
		return h, wrapTrunc(err)
	}
	if frameType == 0 {
		h.FrameType = FrameKey
	} else {
		h.FrameType = FrameInter
	}
	if h.ShowFrame, err = r.ReadFlag(); err != nil {
		return h, wrapTrunc(err)
	}
	if h.ErrorResilientMode, err = r.ReadFlag(); err != nil {
		return h, wrapTrunc(err)
	}

	if h.FrameType == FrameKey {
		if _, err := r.ReadBits(24); err != nil { // frame_sync_code
			return h, wrapTrunc(err)
		}
		h.RefreshFrameFlags = 0xFF
	}
	// Remaining fields (refresh_frame_flags for inter frames, ref_frame_idx,
	// loop filter / quantization params, tile info) require the full
	// color_config()/size parsing this scaffold intentionally omits; the
	// backend receives the raw frame and performs that parsing itself, per
	// §6.3's submit() taking opaque buffers. This scaffold exists only to
	// drive the DPB reference-slot bookkeeping (show_existing_frame and key
	// frame reset), per the supplemented feature in SPEC_FULL §12.
	return h, nil
}

func wrapTrunc(err error) error {
	return verrors.New(verrors.KindBitstreamTruncated, "parse_vp9_header", err)
}

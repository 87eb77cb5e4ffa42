// Package av1 provides minimal AV1 scaffolding: the OBU type constants, a
// FrameHeader type carrying the reference-slot fields, and an OBU header
// parser. It holds no reference-frame store and parses neither frame
// headers nor tile groups.
package av1

import (
	"github.com/vdpu/vdpu/internal/bits"
	"github.com/vdpu/vdpu/internal/verrors"
)

// ObuType enumerates the OBU types relevant to boundary detection and
// reference-store bookkeeping (AV1 spec §6.2.2).
type ObuType int

const (
	ObuSequenceHeader ObuType = 1
	ObuTemporalDelimiter ObuType = 2
	ObuFrameHeader ObuType = 3
	ObuFrame ObuType = 6
)

// FrameHeader holds the subset of AV1's uncompressed_header() needed to
// drive the 8-slot NUM_REF_FRAMES store.
type FrameHeader struct {
	ShowExistingFrame bool
	FrameToShowMapIdx uint8

	FrameType     int // KEY_FRAME=0, INTER_FRAME=1, INTRA_ONLY_FRAME=2, SWITCH_FRAME=3
	ShowFrame     bool
	RefreshFrameFlags uint8
	RefFrameIdx   [7]uint8
}

// ParseOBUHeader parses obu_header(), per AV1 spec §5.3.2, and returns the
// OBU type and the header length (1, or 2 with the extension byte). The
// leb128 obu_size that follows when obu_has_size_field is set is not parsed
// and is not counted in headerLen.
func ParseOBUHeader(data []byte) (obuType ObuType, headerLen int, err error) {
	r := bits.NewReader(data)
	if _, err = r.ReadBits(1); err != nil { // obu_forbidden_bit
		return 0, 0, wrapTrunc(err)
	}
	t, err := r.ReadBits(4)
	if err != nil {
		return 0, 0, wrapTrunc(err)
	}
	extFlag, err := r.ReadBits(1)
	if err != nil {
		return 0, 0, wrapTrunc(err)
	}
	hasSizeField, err := r.ReadBits(1)
	if err != nil {
		return 0, 0, wrapTrunc(err)
	}
	if _, err = r.ReadBits(1); err != nil { // obu_reserved_1bit
		return 0, 0, wrapTrunc(err)
	}
	n := 1
	if extFlag == 1 {
		n++
	}
	_ = hasSizeField
	return ObuType(t), n, nil
}

func wrapTrunc(err error) error {
	return verrors.New(verrors.KindBitstreamTruncated, "parse_av1_header", err)
}

package nal

// Codec identifies which bitstream syntax a parser instance understands.
type Codec int

const (
	CodecH264 Codec = iota
	CodecHEVC
	CodecVP9
	CodecAV1
)

func (c Codec) String() string {
	switch c {
	case CodecH264:
		return "h264"
	case CodecHEVC:
		return "hevc"
	case CodecVP9:
		return "vp9"
	case CodecAV1:
		return "av1"
	default:
		return "unknown"
	}
}

// Unit is a parsed NAL unit: the codec-specific type/layer/temporal ids and
// the RBSP payload (emulation-prevention bytes already stripped), per §3.
type Unit struct {
	Type          uint8
	LayerID       uint8
	TemporalID    uint8
	RBSP          []byte // emulation-prevention-stripped payload
	EBSP          []byte // original bytes, including the NAL header, no start code
	EmulationBytes int   // count of 0x00 0x00 0x03 -> 0x00 0x00 reductions in RBSP
}

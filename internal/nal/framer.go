// Package nal implements the NAL framer (§4.1): it scans a byte stream for
// Annex-B start codes (or, in AVCC mode, length-prefixed units) and yields
// (header, RBSP) pairs, tracking RBSP emulation-prevention-byte removal so
// slice-data offsets can be corrected afterwards (§4.5).
package nal

import (
	"encoding/binary"

	"github.com/vdpu/vdpu/internal/bits"
	"github.com/vdpu/vdpu/internal/verrors"
)

// noStartCodeThreshold bounds how much unterminated input the framer will
// buffer before giving up and reporting NoStartCode, per §4.1's "implementer-
// defined threshold to bound memory".
const noStartCodeThreshold = 8 << 20 // 8 MiB

// HeaderFunc extracts the codec-specific NAL type/layer/temporal ids from
// the raw NAL bytes (header byte(s) included). headerLen is how many bytes
// of the NAL header precede the RBSP payload.
type HeaderFunc func(raw []byte) (nalType, layerID, temporalID uint8, headerLen int)

// Framer scans a byte stream for NAL unit boundaries. It is not safe for
// concurrent use; callers serialize Feed/Units/Flush on one goroutine, per
// §5's single-threaded-from-the-parser's-perspective model.
type Framer struct {
	codec      Codec
	header     HeaderFunc
	buf        []byte
	sawAnyStartCode bool

	lengthPrefixed bool
	lengthSize     int // 1, 2, or 4 bytes, AVCC mode only
}

// NewFramer creates a Framer for codec, using header to classify each NAL's
// type/layer/temporal ids once its boundaries are known.
func NewFramer(codec Codec, header HeaderFunc) *Framer {
	return &Framer{codec: codec, header: header}
}

// SetLengthPrefixed switches the framer into AVCC mode: NAL units are
// delimited by a big-endian length prefix of lengthSize bytes rather than
// Annex-B start codes (§6.2, "adapted by the framer given a 4-byte
// length-prefix mode toggle").
func (f *Framer) SetLengthPrefixed(lengthSize int) {
	f.lengthPrefixed = true
	f.lengthSize = lengthSize
}

// Feed appends bytes into the internal scan buffer.
func (f *Framer) Feed(data []byte) error {
	f.buf = append(f.buf, data...)
	if !f.lengthPrefixed && !f.sawAnyStartCode && len(f.buf) > noStartCodeThreshold {
		if firstStartCode(f.buf) < 0 {
			return verrors.New(verrors.KindInvalidFormat, "feed", errNoStartCode)
		}
	}
	return nil
}

var errNoStartCode = &noStartCodeErr{}

type noStartCodeErr struct{}

func (*noStartCodeErr) Error() string { return "no start code found within buffered bytes" }

// Units extracts every NAL unit fully delimited by a subsequent start code
// (or length prefix), leaving any trailing partial unit buffered for the
// next Feed/Flush. The terminal NAL unit of a stream is only produced by
// Flush, per §4.1.
func (f *Framer) Units() ([]Unit, error) {
	if f.lengthPrefixed {
		return f.unitsLengthPrefixed(false)
	}
	return f.unitsAnnexB(false)
}

// Flush emits any remaining buffered bytes as a best-effort final NAL unit,
// even if it is not terminated by a following start code or is short for an
// AVCC length prefix.
func (f *Framer) Flush() ([]Unit, error) {
	if f.lengthPrefixed {
		return f.unitsLengthPrefixed(true)
	}
	return f.unitsAnnexB(true)
}

func (f *Framer) unitsAnnexB(flush bool) ([]Unit, error) {
	var out []Unit
	for {
		start := firstStartCode(f.buf)
		if start < 0 {
			break
		}
		f.sawAnyStartCode = true
		dataStart := start + startCodeLen(f.buf, start)
		next := firstStartCode(f.buf[dataStart:])
		if next < 0 {
			if !flush {
				break
			}
			// Best-effort: consume everything remaining as the final NAL.
			unit, err := f.buildUnit(f.buf[dataStart:])
			f.buf = nil
			if err != nil {
				return out, err
			}
			if unit != nil {
				out = append(out, *unit)
			}
			return out, nil
		}
		nalEnd := dataStart + next
		unit, err := f.buildUnit(f.buf[dataStart:nalEnd])
		if err != nil {
			return out, err
		}
		if unit != nil {
			out = append(out, *unit)
		}
		f.buf = f.buf[nalEnd:]
	}
	if flush && len(f.buf) > 0 {
		// No start code at all remains, but there is trailing data: Annex-B
		// requires a leading start code, so with nothing recognized this is
		// simply dropped (nothing to decode offsets against).
		f.buf = nil
	}
	return out, nil
}

func (f *Framer) unitsLengthPrefixed(flush bool) ([]Unit, error) {
	var out []Unit
	for len(f.buf) >= f.lengthSize {
		length := readLength(f.buf, f.lengthSize)
		total := f.lengthSize + int(length)
		if total > len(f.buf) {
			if !flush {
				break
			}
			// Truncated trailing unit: best-effort, take what's left.
			unit, err := f.buildUnit(f.buf[f.lengthSize:])
			f.buf = nil
			if err != nil {
				return out, err
			}
			if unit != nil {
				out = append(out, *unit)
			}
			return out, nil
		}
		unit, err := f.buildUnit(f.buf[f.lengthSize:total])
		if err != nil {
			return out, err
		}
		if unit != nil {
			out = append(out, *unit)
		}
		f.buf = f.buf[total:]
	}
	return out, nil
}

func readLength(buf []byte, size int) uint64 {
	switch size {
	case 1:
		return uint64(buf[0])
	case 2:
		return uint64(binary.BigEndian.Uint16(buf))
	default:
		return uint64(binary.BigEndian.Uint32(buf))
	}
}

func (f *Framer) buildUnit(raw []byte) (*Unit, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	nalType, layerID, temporalID, headerLen := f.header(raw)
	if headerLen > len(raw) {
		headerLen = len(raw)
	}
	rbsp, removed := bits.Strip(raw[headerLen:])
	return &Unit{
		Type:           nalType,
		LayerID:        layerID,
		TemporalID:     temporalID,
		RBSP:           rbsp,
		EBSP:           raw,
		EmulationBytes: removed,
	}, nil
}

// firstStartCode returns the index of the first 3- or 4-byte Annex-B start
// code (0x000001 or 0x00000001) in buf, or -1 if none is found.
func firstStartCode(buf []byte) int {
	for i := 0; i+2 < len(buf); i++ {
		if buf[i] == 0 && buf[i+1] == 0 && buf[i+2] == 1 {
			if i > 0 && buf[i-1] == 0 {
				return i - 1
			}
			return i
		}
	}
	return -1
}

// startCodeLen reports whether the start code found at index i is 3 or 4
// bytes long.
func startCodeLen(buf []byte, i int) int {
	if i+3 < len(buf) && buf[i] == 0 && buf[i+1] == 0 && buf[i+2] == 0 && buf[i+3] == 1 {
		return 4
	}
	return 3
}
